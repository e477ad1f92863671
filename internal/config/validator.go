package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidatePort validates a TCP port
func (v *Validator) ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"trace", "debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateProtocolVersion checks that the server protocol version is semver.
func (v *Validator) ValidateProtocolVersion(version string) error {
	if _, err := semver.NewVersion(version); err != nil {
		return fmt.Errorf("invalid protocol version %q: %w", version, err)
	}
	return nil
}

// ValidateTLS checks that certificate and key are provided together and exist.
func (v *Validator) ValidateTLS(cert, key string) error {
	if cert == "" && key == "" {
		return nil
	}
	if cert == "" {
		return fmt.Errorf("ssl keyfile given without ssl certificate")
	}
	if key == "" {
		return fmt.Errorf("ssl certificate given without ssl keyfile")
	}
	for _, path := range []string{cert, key} {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("ssl file %s: %w", path, err)
		}
	}
	return nil
}

// ValidateSampler validates the trace sampler name and ratio.
func (v *Validator) ValidateSampler(name string, ratio float64) error {
	validSamplers := []string{"", "always_on", "always_off", "traceidratio", "parentbased"}
	found := false
	for _, valid := range validSamplers {
		if name == valid {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("invalid tracing sampler: %s", name)
	}
	if ratio < 0 || ratio > 1 {
		return fmt.Errorf("tracing sample_ratio must be between 0 and 1, got %f", ratio)
	}
	return nil
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	if err := v.ValidatePort(cfg.Server.Port); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateProtocolVersion(cfg.Server.ProtocolVersion); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateTLS(cfg.Server.SSLCertificate, cfg.Server.SSLKeyfile); err != nil {
		errors = append(errors, err)
	}
	if cfg.Server.MaxBodyBytes < 0 {
		errors = append(errors, fmt.Errorf("server.max_body_bytes must be >= 0"))
	}
	if cfg.Server.ReadTimeout < 0 || cfg.Server.WriteTimeout < 0 {
		errors = append(errors, fmt.Errorf("server timeouts must be >= 0"))
	}
	if cfg.Server.RateLimit < 0 {
		errors = append(errors, fmt.Errorf("server.rate_limit must be >= 0"))
	}
	if cfg.Actions.Timeout < 0 {
		errors = append(errors, fmt.Errorf("actions.timeout must be >= 0"))
	}
	if cfg.Actions.Watch && cfg.Actions.Dir == "" {
		errors = append(errors, fmt.Errorf("actions.watch requires actions.dir"))
	}
	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}
	if cfg.Tracing.Enabled {
		if err := v.ValidateSampler(cfg.Tracing.Sampler, cfg.Tracing.SampleRatio); err != nil {
			errors = append(errors, err)
		}
	}

	return errors
}
