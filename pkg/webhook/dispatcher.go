package webhook

import (
	"context"
	"errors"
	"fmt"

	"github.com/harun/actionserver/internal/observability"
	"github.com/harun/actionserver/internal/tracing"
	"github.com/harun/actionserver/pkg/executor"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Executor runs actions and exposes the registry behind them.
type Executor interface {
	Run(ctx context.Context, call *executor.ActionCall) (*executor.Result, error)
	Reload(ctx context.Context) error
	Actions() []string
}

// ActionCounter records dispatch attempts per action name.
type ActionCounter interface {
	IncAction(name string)
}

// Auditor records the outcome of every dispatch with a valid body.
type Auditor interface {
	RecordDispatch(ctx context.Context, actionName, senderID, status string, metadata map[string]any)
}

type nopCounter struct{}

func (nopCounter) IncAction(string) {}

// DispatcherConfig wires a Dispatcher.
type DispatcherConfig struct {
	Executor   Executor
	Counter    ActionCounter
	Versions   *VersionChecker
	Auditor    Auditor
	AutoReload bool
	Logger     zerolog.Logger
}

// Dispatcher turns webhook bodies into responses. It holds no per-request
// state and is safe for concurrent use.
type Dispatcher struct {
	executor   Executor
	counter    ActionCounter
	versions   *VersionChecker
	auditor    Auditor
	autoReload bool
	logger     zerolog.Logger
}

// NewDispatcher creates a dispatcher. Executor and Versions are required.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if cfg.Versions == nil {
		return nil, fmt.Errorf("version checker is required")
	}
	if cfg.Counter == nil {
		cfg.Counter = nopCounter{}
	}
	return &Dispatcher{
		executor:   cfg.Executor,
		counter:    cfg.Counter,
		versions:   cfg.Versions,
		auditor:    cfg.Auditor,
		autoReload: cfg.AutoReload,
		logger:     cfg.Logger.With().Str("component", "dispatcher").Logger(),
	}, nil
}

// Dispatch validates body, checks the caller version, optionally reloads
// the registry, counts the attempt and runs the action, in that order.
func (d *Dispatcher) Dispatch(ctx context.Context, body []byte) Response {
	logger := tracing.LoggerFromContext(ctx, d.logger)

	call, err := executor.ParseActionCall(body)
	if err != nil {
		logger.Debug().Err(err).Msg("Rejected malformed webhook body")
		return Response{
			Status: 400,
			Body:   ErrorResponse{Error: msgInvalidBody},
		}
	}

	ctx = tracing.WithActionName(ctx, call.NextAction)
	if call.NextAction != "" {
		trace.SpanFromContext(ctx).SetAttributes(attribute.String("action.name", call.NextAction))
	}
	if call.SenderID != "" {
		ctx = tracing.WithSenderID(ctx, call.SenderID)
	}
	logger = tracing.LoggerFromContext(ctx, d.logger)

	resp, status := d.dispatch(ctx, logger, call)
	if d.auditor != nil {
		d.auditor.RecordDispatch(ctx, call.NextAction, call.SenderID, status, map[string]any{
			"status_code": resp.Status,
		})
	}
	return resp
}

func (d *Dispatcher) dispatch(ctx context.Context, logger zerolog.Logger, call *executor.ActionCall) (Response, string) {
	if err := d.versions.Check(call.Version); err != nil {
		var verr *VersionError
		if errors.As(err, &verr) {
			return Response{
				Status: 400,
				Body: VersionErrorResponse{
					Error:         verr.Error(),
					Version:       verr.Version,
					ServerVersion: verr.ServerVersion,
				},
			}, observability.StatusVersionMismatch
		}
		return d.unclassified(logger, fmt.Errorf("version check failed: %w", err)), observability.StatusError
	}

	if d.autoReload {
		if err := d.executor.Reload(ctx); err != nil {
			return d.unclassified(logger, fmt.Errorf("failed to reload actions: %w", err)), observability.StatusError
		}
	}

	if call.NextAction != "" {
		d.counter.IncAction(call.NextAction)
	}

	result, err := d.executor.Run(ctx, call)
	if err != nil {
		if rej, ok := executor.IsRejection(err); ok {
			logger.Debug().Err(err).Msg("Action rejected execution")
			return Response{
				Status: 400,
				Body:   ActionErrorResponse{Error: rej.Message, ActionName: rej.ActionName},
			}, observability.StatusRejected
		}
		if nf, ok := executor.IsNotFound(err); ok {
			logger.Error().Err(err).Msg("Action not found")
			return Response{
				Status: 404,
				Body:   ActionErrorResponse{Error: nf.Message, ActionName: nf.ActionName},
			}, observability.StatusNotFound
		}
		return d.unclassified(logger, err), observability.StatusError
	}

	if result == nil {
		// no action was named; the caller gets a null result
		return Response{Status: 200}, observability.StatusSuccess
	}
	return Response{Status: 200, Body: result}, observability.StatusSuccess
}

func (d *Dispatcher) unclassified(logger zerolog.Logger, err error) Response {
	logger.Error().Err(err).Msg("Webhook dispatch failed")
	return Response{
		Status: 500,
		Body:   ErrorResponse{Error: msgInternalError},
		Err:    err,
	}
}

// ListActions returns the registered actions, reloading first when
// auto-reload is on.
func (d *Dispatcher) ListActions(ctx context.Context) ([]ActionInfo, error) {
	if d.autoReload {
		if err := d.executor.Reload(ctx); err != nil {
			return nil, fmt.Errorf("failed to reload actions: %w", err)
		}
	}

	names := d.executor.Actions()
	out := make([]ActionInfo, 0, len(names))
	for _, name := range names {
		out = append(out, ActionInfo{Name: name})
	}
	return out, nil
}
