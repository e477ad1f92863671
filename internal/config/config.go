package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultPort is the port the action server listens on.
	DefaultPort = 5055

	// DefaultProtocolVersion is the dialogue engine protocol version this
	// server speaks. Callers on a different major.minor are rejected.
	DefaultProtocolVersion = "3.10.0"
)

// Config represents the action server configuration
type Config struct {
	Server  ServerConfig  `json:"server" mapstructure:"server"`
	Actions ActionsConfig `json:"actions" mapstructure:"actions"`
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`
}

// ServerConfig holds HTTP listener configuration
type ServerConfig struct {
	Host            string   `json:"host" mapstructure:"host"`
	Port            int      `json:"port" mapstructure:"port"`
	CORSOrigins     []string `json:"cors_origins" mapstructure:"cors_origins"`
	AutoReload      bool     `json:"auto_reload" mapstructure:"auto_reload"`
	ProtocolVersion string   `json:"protocol_version" mapstructure:"protocol_version"`
	ReadTimeout     int      `json:"read_timeout" mapstructure:"read_timeout"`   // seconds
	WriteTimeout    int      `json:"write_timeout" mapstructure:"write_timeout"` // seconds
	MaxBodyBytes    int64    `json:"max_body_bytes" mapstructure:"max_body_bytes"`
	SSLCertificate  string   `json:"ssl_certificate" mapstructure:"ssl_certificate"`
	SSLKeyfile      string   `json:"ssl_keyfile" mapstructure:"ssl_keyfile"`
	SSLPassword     string   `json:"ssl_password" mapstructure:"ssl_password"`
	RateLimit       int      `json:"rate_limit" mapstructure:"rate_limit"` // webhook requests per minute per client, 0 disables
	PIDFile         string   `json:"pid_file" mapstructure:"pid_file"`
}

// ActionsConfig controls where actions come from and how they run
type ActionsConfig struct {
	Dir     string `json:"dir" mapstructure:"dir"`
	Watch   bool   `json:"watch" mapstructure:"watch"`
	Timeout int    `json:"timeout" mapstructure:"timeout"` // seconds
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
	AuditFile string `json:"audit_file" mapstructure:"audit_file"` // JSON lines, one per dispatch
}

// TracingConfig holds OpenTelemetry configuration
type TracingConfig struct {
	Enabled     bool    `json:"enabled" mapstructure:"enabled"`
	ServiceName string  `json:"service_name" mapstructure:"service_name"`
	Endpoint    string  `json:"endpoint" mapstructure:"endpoint"`
	Insecure    bool    `json:"insecure" mapstructure:"insecure"`
	Sampler     string  `json:"sampler" mapstructure:"sampler"`
	SampleRatio float64 `json:"sample_ratio" mapstructure:"sample_ratio"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            DefaultPort,
			CORSOrigins:     []string{},
			AutoReload:      false,
			ProtocolVersion: DefaultProtocolVersion,
			ReadTimeout:     60,
			WriteTimeout:    60,
			MaxBodyBytes:    10 << 20,
			PIDFile:         DefaultPIDFile(),
		},
		Actions: ActionsConfig{
			Dir:     "actions",
			Watch:   false,
			Timeout: 30,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   0,
			MaxAge:    7,
			Redaction: true,
		},
		Tracing: TracingConfig{
			Enabled:     true,
			ServiceName: "action-server",
			Sampler:     "parentbased",
			SampleRatio: 1,
		},
	}
}

// DefaultPIDFile returns ~/.actionserver/actionserver.pid, or a path in the
// temp dir when there is no home directory.
func DefaultPIDFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "actionserver.pid")
	}
	return filepath.Join(home, ".actionserver", "actionserver.pid")
}

// TLSEnabled reports whether the listener should serve HTTPS.
func (c *Config) TLSEnabled() bool {
	return c.Server.SSLCertificate != ""
}

// Address returns host:port for the listener.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// String returns a JSON representation of the config with secrets masked
func (c *Config) String() string {
	masked := *c
	if masked.Server.SSLPassword != "" {
		masked.Server.SSLPassword = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	errs := NewValidator().ValidateConfig(c)
	if len(errs) == 0 {
		return nil
	}
	return errs[0]
}
