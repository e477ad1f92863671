package webhook

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVersionCheckerInvalid(t *testing.T) {
	_, err := NewVersionChecker("not-a-version", zerolog.Nop())
	assert.Error(t, err)
}

func TestVersionCheck(t *testing.T) {
	c, err := NewVersionChecker("3.10.0", zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "3.10.0", c.ServerVersion())

	tests := []struct {
		version    string
		compatible bool
	}{
		{"3.10.0", true},
		{"3.10.7", true},
		{"3.10.0rc1", true},
		{"", true},
		{"garbage", true},
		{"3.9.0", false},
		{"2.10.0", false},
		{"4.0.0", false},
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			err := c.Check(tt.version)
			if tt.compatible {
				assert.NoError(t, err)
				return
			}

			var verr *VersionError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.version, verr.Version)
			assert.Equal(t, "3.10.0", verr.ServerVersion)
			assert.Contains(t, verr.Error(), tt.version)
		})
	}
}
