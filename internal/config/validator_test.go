package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePort(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidatePort(5055))
	assert.Error(t, v.ValidatePort(0))
	assert.Error(t, v.ValidatePort(65536))
}

func TestValidateLogLevel(t *testing.T) {
	v := NewValidator()

	for _, level := range []string{"trace", "debug", "info", "warn", "error"} {
		assert.NoError(t, v.ValidateLogLevel(level), level)
	}
	assert.Error(t, v.ValidateLogLevel("critical"))
}

func TestValidateProtocolVersion(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateProtocolVersion("3.10.0"))
	assert.NoError(t, v.ValidateProtocolVersion("3.10"))
	assert.Error(t, v.ValidateProtocolVersion("latest"))
}

func TestValidateSampler(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateSampler("parentbased", 0.5))
	assert.NoError(t, v.ValidateSampler("", 1))
	assert.Error(t, v.ValidateSampler("sometimes", 1))
	assert.Error(t, v.ValidateSampler("traceidratio", -0.1))
}

func TestValidateConfigCollectsAllErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Port = 0
	cfg.Logging.Level = "loud"
	cfg.Actions.Timeout = -1

	errs := NewValidator().ValidateConfig(cfg)
	assert.Len(t, errs, 3)
}
