package webhook

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/harun/actionserver/internal/metrics"
	"github.com/harun/actionserver/internal/tracing"
	"github.com/rs/zerolog"
)

// Server is the HTTP front of the action server.
type Server struct {
	options     ServerOptions
	dispatcher  *Dispatcher
	tracer      *tracing.Tracer
	metrics     *metrics.Metrics
	rateLimiter *RateLimiter
	router      chi.Router
	server      *http.Server
	logger      zerolog.Logger
	mu          sync.Mutex
	stopped     bool
}

// NewServer creates a server. A nil tracer uses the global provider, and
// nil metrics disable /metrics and request instrumentation.
func NewServer(options ServerOptions, dispatcher *Dispatcher, tracer *tracing.Tracer, m *metrics.Metrics, logger zerolog.Logger) (*Server, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if (options.TLSCertFile == "") != (options.TLSKeyFile == "") {
		return nil, fmt.Errorf("TLS requires both a certificate and a key file")
	}
	options.applyDefaults()

	if tracer == nil {
		tracer = tracing.NewTracer(nil, nil)
	}

	s := &Server{
		options:    options,
		dispatcher: dispatcher,
		tracer:     tracer,
		metrics:    m,
		logger:     logger.With().Str("component", "webhook-server").Logger(),
	}
	if options.RateLimitPerMinute > 0 {
		s.rateLimiter = NewRateLimiter(options.RateLimitPerMinute, logger)
	}
	s.router = s.routes()

	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(tracing.RequestID)
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
	}
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(corsOptions(s.options.CORSOrigins)))

	r.Get("/health", s.handleHealth)
	r.Get("/actions", s.handleActions)

	r.Group(func(r chi.Router) {
		r.Use(s.tracer.RootSpan)
		if s.rateLimiter != nil {
			r.Use(s.rateLimiter.Middleware)
		}
		r.Post("/webhook", s.handleWebhook)
	})

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	return r
}

// corsOptions allows the listed origins. "*" allows any origin and an empty
// list allows none.
func corsOptions(origins []string) cors.Options {
	opts := cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{tracing.RequestIDHeader},
		MaxAge:         300,
	}
	if len(origins) == 0 {
		opts.AllowOriginFunc = func(r *http.Request, origin string) bool { return false }
	}
	return opts
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.options.Host, strconv.Itoa(s.options.Port))
}

// Start listens on the configured address and blocks until the server stops.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.Addr(), err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln, with TLS when configured. It returns nil
// after a graceful Stop.
func (s *Server) Serve(ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.options.ReadTimeout,
		WriteTimeout: s.options.WriteTimeout,
	}

	scheme := "http"
	if s.options.TLSCertFile != "" {
		cert, err := LoadKeyPair(s.options.TLSCertFile, s.options.TLSKeyFile, s.options.TLSKeyPassword)
		if err != nil {
			ln.Close()
			return err
		}
		srv.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
		ln = tls.NewListener(ln, srv.TLSConfig)
		scheme = "https"
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		ln.Close()
		return nil
	}
	s.server = srv
	s.mu.Unlock()

	s.logger.Info().
		Str("address", ln.Addr().String()).
		Str("scheme", scheme).
		Msg("Action server listening")

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop shuts the server down, waiting for in-flight requests until ctx ends.
func (s *Server) Stop(ctx context.Context) error {
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	s.mu.Lock()
	s.stopped = true
	srv := s.server
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	s.logger.Info().Msg("Stopping action server")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
