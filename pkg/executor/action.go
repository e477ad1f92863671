package executor

import "context"

// Action is a named unit of behavior the dialogue engine can call.
type Action interface {
	Name() string
	Run(ctx context.Context, dispatcher *CollectingDispatcher, tracker Tracker, domain Domain) ([]Event, error)
}

// ActionFunc is the signature of a plain function action.
type ActionFunc func(ctx context.Context, dispatcher *CollectingDispatcher, tracker Tracker, domain Domain) ([]Event, error)

type funcAction struct {
	name string
	fn   ActionFunc
}

// NewAction wraps fn as an Action called name.
func NewAction(name string, fn ActionFunc) Action {
	return &funcAction{name: name, fn: fn}
}

func (a *funcAction) Name() string {
	return a.name
}

func (a *funcAction) Run(ctx context.Context, dispatcher *CollectingDispatcher, tracker Tracker, domain Domain) ([]Event, error) {
	return a.fn(ctx, dispatcher, tracker, domain)
}
