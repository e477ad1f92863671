package executor

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTimeout bounds a single action run.
const DefaultTimeout = 30 * time.Second

// RunObserver is notified after every action run.
type RunObserver interface {
	ObserveAction(name, outcome string, d time.Duration)
}

// Run outcomes reported to the RunObserver.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
	OutcomeTimeout  = "timeout"
)

// Options configures an Executor.
type Options struct {
	Timeout  time.Duration
	Logger   zerolog.Logger
	Observer RunObserver
}

// Executor runs actions from a registry.
type Executor struct {
	registry *Registry
	timeout  time.Duration
	observer RunObserver
	logger   zerolog.Logger
}

// New creates an executor backed by registry.
func New(registry *Registry, opts Options) *Executor {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Executor{
		registry: registry,
		timeout:  opts.Timeout,
		observer: opts.Observer,
		logger:   opts.Logger.With().Str("component", "executor").Logger(),
	}
}

// Registry returns the registry the executor reads from.
func (e *Executor) Registry() *Registry {
	return e.registry
}

// Reload rebuilds the registry.
func (e *Executor) Reload(ctx context.Context) error {
	return e.registry.Reload(ctx)
}

// Actions returns the currently registered action names.
func (e *Executor) Actions() []string {
	return e.registry.Names()
}

type runOutput struct {
	events []Event
	err    error
}

// Run executes call.NextAction. A call without an action name runs nothing
// and returns a nil result. Run returns a *NotFoundError when the name is
// unknown, a *RejectionError when the action declines, and any other error
// for unexpected failures including panics and timeouts.
func (e *Executor) Run(ctx context.Context, call *ActionCall) (*Result, error) {
	name := call.NextAction
	if name == "" {
		e.logger.Warn().Msg("Received an action call without an action")
		return nil, nil
	}

	action, ok := e.registry.Lookup(name)
	if !ok {
		return nil, notFound(name)
	}

	tracker := NewTracker(call.Tracker)
	if call.SenderID != "" && tracker.SenderID() == "" {
		tracker.raw["sender_id"] = call.SenderID
	}
	dispatcher := NewCollectingDispatcher()

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	e.logger.Debug().Str("action", name).Msg("Received request to run action")

	done := make(chan runOutput, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				e.logger.Error().
					Str("action", name).
					Str("stack", string(debug.Stack())).
					Msgf("Action panicked: %v", rec)
				done <- runOutput{err: fmt.Errorf("action %s panicked: %v", name, rec)}
			}
		}()
		events, err := action.Run(runCtx, dispatcher, tracker, Domain(call.Domain))
		done <- runOutput{events: events, err: err}
	}()

	var out runOutput
	select {
	case out = <-done:
	case <-runCtx.Done():
		e.observe(name, OutcomeTimeout, start)
		if ctx.Err() != nil {
			return nil, fmt.Errorf("action %s cancelled: %w", name, ctx.Err())
		}
		return nil, fmt.Errorf("action %s timed out after %v", name, e.timeout)
	}

	if out.err != nil {
		if rej, ok := IsRejection(out.err); ok {
			actionName := rej.ActionName
			if actionName == "" {
				actionName = name
			}
			message := rej.Message
			if message == "" {
				message = fmt.Sprintf("Custom action '%s' rejected execution.", actionName)
			}
			e.observe(name, OutcomeRejected, start)
			return nil, &RejectionError{ActionName: actionName, Message: message}
		}
		if _, ok := IsNotFound(out.err); ok {
			e.observe(name, OutcomeError, start)
			return nil, out.err
		}
		e.observe(name, OutcomeError, start)
		return nil, fmt.Errorf("action %s failed: %w", name, out.err)
	}

	events := out.events
	if events == nil {
		events = []Event{}
	}

	e.observe(name, OutcomeSuccess, start)
	e.logger.Debug().
		Str("action", name).
		Int("events", len(events)).
		Dur("duration", time.Since(start)).
		Msg("Finished running action")

	return &Result{
		Events:    events,
		Responses: dispatcher.Messages(),
	}, nil
}

func (e *Executor) observe(name, outcome string, start time.Time) {
	if e.observer != nil {
		e.observer.ObserveAction(name, outcome, time.Since(start))
	}
}
