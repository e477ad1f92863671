package webhook

import (
	"time"
)

// ServerOptions configures the action server listener
type ServerOptions struct {
	Host               string        // Server host (default: "0.0.0.0")
	Port               int           // Server port (default: 5055)
	CORSOrigins        []string      // Allowed origins; "*" allows any, empty allows none
	ReadTimeout        time.Duration // default: 60s
	WriteTimeout       time.Duration // default: 60s
	MaxBodyBytes       int64         // Webhook body limit (default: 10 MiB)
	RateLimitPerMinute int           // Webhook requests per minute per client IP, 0 disables
	TLSCertFile        string        // PEM certificate; enables HTTPS when set
	TLSKeyFile         string        // PEM private key
	TLSKeyPassword     string        // Password for an encrypted private key
}

const (
	defaultPort         = 5055
	defaultHost         = "0.0.0.0"
	defaultTimeout      = 60 * time.Second
	defaultMaxBodyBytes = 10 << 20
)

func (o *ServerOptions) applyDefaults() {
	if o.Port == 0 {
		o.Port = defaultPort
	}
	if o.Host == "" {
		o.Host = defaultHost
	}
	if o.ReadTimeout == 0 {
		o.ReadTimeout = defaultTimeout
	}
	if o.WriteTimeout == 0 {
		o.WriteTimeout = defaultTimeout
	}
	if o.MaxBodyBytes == 0 {
		o.MaxBodyBytes = defaultMaxBodyBytes
	}
}

// Response is the outcome of one dispatch, ready to be written.
type Response struct {
	Status int
	Body   any
	Err    error // set for unclassified failures, Status is then 500
}

// ErrorResponse is the body of a malformed request or server error.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ActionErrorResponse is the body of a rejected or unknown action.
type ActionErrorResponse struct {
	Error      string `json:"error"`
	ActionName string `json:"action_name"`
}

// VersionErrorResponse is the body of an incompatible caller version.
type VersionErrorResponse struct {
	Error         string `json:"error"`
	Version       string `json:"version"`
	ServerVersion string `json:"server_version"`
}

// ActionInfo is one entry of the /actions listing.
type ActionInfo struct {
	Name string `json:"name"`
}

// HealthResponse is the body of /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// RateLimitState tracks rate limiting per IP
type RateLimitState struct {
	Requests []int64 // Timestamps of requests
}

// Fixed error messages returned to callers.
const (
	msgInvalidBody     = "Invalid body request"
	msgBodyTooLarge    = "Request body too large"
	msgInternalError   = "Internal Server Error"
	msgTooManyRequests = "Too Many Requests"
)
