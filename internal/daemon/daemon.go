package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/harun/actionserver/internal/config"
	"github.com/harun/actionserver/internal/logger"
	"github.com/harun/actionserver/internal/metrics"
	"github.com/harun/actionserver/internal/observability"
	"github.com/harun/actionserver/internal/tracing"
	"github.com/harun/actionserver/pkg/executor"
	"github.com/harun/actionserver/pkg/webhook"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 10 * time.Second

// Daemon wires the action server together and owns its lifecycle.
type Daemon struct {
	config *config.Config
	logger *logger.Logger
	log    zerolog.Logger

	metrics         *metrics.Metrics
	audit           *observability.AuditLogger
	tracer          *tracing.Tracer
	shutdownTracing tracing.ShutdownFunc
	registry        *executor.Registry
	source          *executor.ManifestSource
	executor        *executor.Executor
	server          *webhook.Server
	watcher         *executor.Watcher
	lifecycle       *LifecycleManager

	listener net.Listener
	serveErr chan error

	startTime time.Time
	running   bool
	mu        sync.RWMutex
}

// Status is a point-in-time view of the daemon.
type Status struct {
	Running   bool
	StartTime time.Time
	Uptime    time.Duration
	Address   string
	Actions   int
}

// New builds a daemon from cfg. Actions passed here are registered in
// process and take precedence over manifest actions of the same name.
func New(cfg *config.Config, log *logger.Logger, actions ...executor.Action) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	d := &Daemon{
		config:  cfg,
		logger:  log,
		log:     log.Component("daemon"),
		metrics: metrics.NewMetrics(),
	}

	if cfg.Tracing.Enabled {
		shutdown, err := tracing.InitOpenTelemetry(context.Background(), tracing.Config{
			ServiceName: cfg.Tracing.ServiceName,
			Endpoint:    cfg.Tracing.Endpoint,
			Insecure:    cfg.Tracing.Insecure,
			Sampler:     cfg.Tracing.Sampler,
			SampleRatio: cfg.Tracing.SampleRatio,
		})
		if err != nil {
			d.log.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
		} else {
			d.shutdownTracing = shutdown
		}
	}
	d.tracer = tracing.NewTracer(nil, nil)

	if path := cfg.Logging.AuditFile; path != "" {
		audit, err := observability.OpenAuditLogger(path)
		if err != nil {
			d.release(context.Background())
			return nil, err
		}
		d.audit = audit
	}

	if err := d.initializeActions(actions); err != nil {
		d.release(context.Background())
		return nil, err
	}
	if err := d.initializeServer(); err != nil {
		d.release(context.Background())
		return nil, err
	}

	d.lifecycle = NewLifecycleManager(cfg.Server.PIDFile, d.log)

	return d, nil
}

func (d *Daemon) initializeActions(actions []executor.Action) error {
	base := d.logger.GetZerolog()

	d.registry = executor.NewRegistry(base)
	d.registry.SetObserver(d.metrics)

	for _, action := range actions {
		if err := d.registry.Register(action); err != nil {
			return fmt.Errorf("failed to register action: %w", err)
		}
	}

	if dir := d.config.Actions.Dir; dir != "" {
		source, err := executor.NewManifestSource(dir, d.config.Server.ProtocolVersion, base)
		if err != nil {
			return fmt.Errorf("failed to create manifest source: %w", err)
		}
		d.source = source
		d.registry.AddSource(source)

		if d.config.Actions.Watch {
			watcher, err := executor.NewWatcher(executor.WatcherConfig{
				Dir:      dir,
				Reloader: d.registry,
				Logger:   base,
			})
			if err != nil {
				return fmt.Errorf("failed to create actions watcher: %w", err)
			}
			d.watcher = watcher
		}
	}

	d.executor = executor.New(d.registry, executor.Options{
		Timeout:  time.Duration(d.config.Actions.Timeout) * time.Second,
		Logger:   base,
		Observer: d.metrics,
	})

	return nil
}

func (d *Daemon) initializeServer() error {
	base := d.logger.GetZerolog()

	var auditor webhook.Auditor
	if d.audit != nil {
		auditor = d.audit
	}

	versions, err := webhook.NewVersionChecker(d.config.Server.ProtocolVersion, base)
	if err != nil {
		return err
	}

	dispatcher, err := webhook.NewDispatcher(webhook.DispatcherConfig{
		Executor:   d.executor,
		Counter:    d.metrics,
		Versions:   versions,
		Auditor:    auditor,
		AutoReload: d.config.Server.AutoReload,
		Logger:     base,
	})
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}

	srv := d.config.Server
	d.server, err = webhook.NewServer(webhook.ServerOptions{
		Host:               srv.Host,
		Port:               srv.Port,
		CORSOrigins:        srv.CORSOrigins,
		ReadTimeout:        time.Duration(srv.ReadTimeout) * time.Second,
		WriteTimeout:       time.Duration(srv.WriteTimeout) * time.Second,
		MaxBodyBytes:       srv.MaxBodyBytes,
		RateLimitPerMinute: srv.RateLimit,
		TLSCertFile:        srv.SSLCertificate,
		TLSKeyFile:         srv.SSLKeyfile,
		TLSKeyPassword:     srv.SSLPassword,
	}, dispatcher, d.tracer, d.metrics, base)
	if err != nil {
		return fmt.Errorf("failed to create webhook server: %w", err)
	}

	return nil
}

// release frees what New acquired: the watcher, plugin clients, the tracer
// provider and the audit file.
func (d *Daemon) release(ctx context.Context) {
	if d.watcher != nil {
		if err := d.watcher.Stop(); err != nil {
			d.log.Error().Err(err).Msg("Failed to stop actions watcher")
		}
	}

	if d.source != nil {
		if err := d.source.Close(); err != nil {
			d.log.Error().Err(err).Msg("Failed to close plugin actions")
		}
	}

	if d.shutdownTracing != nil {
		if err := d.shutdownTracing(ctx); err != nil {
			d.log.Error().Err(err).Msg("Failed to shutdown tracing")
		}
		d.shutdownTracing = nil
	}

	if d.audit != nil {
		if err := d.audit.Close(); err != nil {
			d.log.Error().Err(err).Msg("Failed to close audit logger")
		}
	}
}

// Start loads actions, binds the listener and serves in the background.
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.mu.Unlock()

	logger := d.log.With().Str("trace_id", tracing.NewRequestID()).Logger()
	logger.Info().Msg("Starting action server")

	if err := d.registry.Reload(context.Background()); err != nil {
		return fmt.Errorf("failed to load actions: %w", err)
	}
	logger.Info().Strs("actions", d.registry.Names()).Msg("Actions loaded")

	ln, err := net.Listen("tcp", d.server.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", d.server.Addr(), err)
	}

	if err := d.lifecycle.Start(); err != nil {
		ln.Close()
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	if d.watcher != nil {
		if err := d.watcher.Start(); err != nil {
			logger.Warn().Err(err).Msg("Failed to start actions watcher")
		} else {
			logger.Info().Str("dir", d.config.Actions.Dir).Msg("Watching actions directory")
		}
	}

	serveErr := make(chan error, 1)

	d.mu.Lock()
	d.listener = ln
	d.serveErr = serveErr
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	go func() {
		serveErr <- d.server.Serve(ln)
	}()

	logger.Info().Str("address", ln.Addr().String()).Msg("Action server started")
	return nil
}

// Stop shuts the server down gracefully and releases every resource.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	logger := d.log.With().Str("trace_id", tracing.NewRequestID()).Logger()
	logger.Info().Msg("Stopping action server")

	var errs []error

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := d.server.Stop(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to stop webhook server")
		errs = append(errs, err)
	}

	d.release(ctx)

	if err := d.lifecycle.Stop(); err != nil {
		logger.Error().Err(err).Msg("Failed to stop lifecycle manager")
	}

	logger.Info().Msg("Action server stopped")

	return errors.Join(errs...)
}

// Status returns the daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running: d.running,
		Actions: d.registry.Len(),
	}

	if d.running {
		status.Uptime = time.Since(d.startTime)
		status.StartTime = d.startTime
		status.Address = d.listener.Addr().String()
	}

	return status
}

// Wait blocks until SIGINT or SIGTERM arrives or the server fails, then
// stops the daemon.
func (d *Daemon) Wait() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return d.WaitContext(ctx)
}

// WaitContext blocks until ctx is done or the server fails, then stops the
// daemon.
func (d *Daemon) WaitContext(ctx context.Context) error {
	d.mu.RLock()
	serveErr := d.serveErr
	d.mu.RUnlock()

	select {
	case <-ctx.Done():
		d.log.Info().Msg("Shutdown requested")
		return d.Stop()
	case err := <-serveErr:
		if err != nil {
			d.log.Error().Err(err).Msg("Webhook server failed")
		}
		return errors.Join(err, d.Stop())
	}
}

// GetConfig returns the daemon configuration
func (d *Daemon) GetConfig() *config.Config {
	return d.config
}

// GetRegistry returns the action registry
func (d *Daemon) GetRegistry() *executor.Registry {
	return d.registry
}

// GetMetrics returns the metrics sink
func (d *Daemon) GetMetrics() *metrics.Metrics {
	return d.metrics
}

// GetServer returns the webhook server
func (d *Daemon) GetServer() *webhook.Server {
	return d.server
}
