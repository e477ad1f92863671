package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override,
// e.g. ACTION_SERVER_SERVER_PORT=5056.
const EnvPrefix = "ACTION_SERVER"

// Loader handles configuration loading
type Loader struct {
	configPath string
	v          *viper.Viper
}

// NewLoader creates a config loader. v may carry flag bindings from the
// CLI; nil creates a fresh viper instance.
func NewLoader(configPath string, v *viper.Viper) *Loader {
	if v == nil {
		v = viper.New()
	}
	return &Loader{
		configPath: configPath,
		v:          v,
	}
}

// Load merges defaults, the optional config file, environment variables and
// any bound flags, in increasing order of precedence.
func (l *Loader) Load() (*Config, error) {
	v := l.v

	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if l.configPath != "" {
		if _, err := os.Stat(l.configPath); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("config file not found: %s", l.configPath)
			}
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}

		v.SetConfigFile(l.configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Server.CORSOrigins = normalizeOrigins(cfg.Server.CORSOrigins)

	return cfg, nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	return l.configPath
}

// Viper exposes the underlying viper instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath, nil).Load()
}

// setDefaults registers every key so environment overrides are visible to
// Unmarshal even when no config file mentions them.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.cors_origins", d.Server.CORSOrigins)
	v.SetDefault("server.auto_reload", d.Server.AutoReload)
	v.SetDefault("server.protocol_version", d.Server.ProtocolVersion)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.max_body_bytes", d.Server.MaxBodyBytes)
	v.SetDefault("server.ssl_certificate", d.Server.SSLCertificate)
	v.SetDefault("server.ssl_keyfile", d.Server.SSLKeyfile)
	v.SetDefault("server.ssl_password", d.Server.SSLPassword)
	v.SetDefault("server.rate_limit", d.Server.RateLimit)
	v.SetDefault("server.pid_file", d.Server.PIDFile)

	v.SetDefault("actions.dir", d.Actions.Dir)
	v.SetDefault("actions.watch", d.Actions.Watch)
	v.SetDefault("actions.timeout", d.Actions.Timeout)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.pretty", d.Logging.Pretty)
	v.SetDefault("logging.max_size", d.Logging.MaxSize)
	v.SetDefault("logging.max_age", d.Logging.MaxAge)
	v.SetDefault("logging.redaction", d.Logging.Redaction)
	v.SetDefault("logging.audit_file", d.Logging.AuditFile)

	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("tracing.endpoint", d.Tracing.Endpoint)
	v.SetDefault("tracing.insecure", d.Tracing.Insecure)
	v.SetDefault("tracing.sampler", d.Tracing.Sampler)
	v.SetDefault("tracing.sample_ratio", d.Tracing.SampleRatio)
}

// normalizeOrigins accepts both list and comma-separated forms and drops
// blanks. An empty result allows no cross-origin callers.
func normalizeOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, entry := range in {
		for _, origin := range strings.Split(entry, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				out = append(out, origin)
			}
		}
	}
	return out
}
