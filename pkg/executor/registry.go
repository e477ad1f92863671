package executor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Source contributes actions each time the registry is (re)built.
type Source interface {
	Name() string
	Load(ctx context.Context) ([]Action, error)
}

// ReloadObserver is notified after every reload attempt.
type ReloadObserver interface {
	ObserveReload(actions int, err error)
}

type snapshot struct {
	actions map[string]Action
	names   []string
}

func newSnapshot(actions map[string]Action) *snapshot {
	names := make([]string, 0, len(actions))
	for name := range actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return &snapshot{actions: actions, names: names}
}

// Registry maps action names to actions. Reads are lock-free against an
// immutable snapshot; writers build a new snapshot under mu and swap it in.
type Registry struct {
	mu       sync.Mutex
	local    map[string]Action
	sources  []Source
	loaded   map[string]Action
	current  atomic.Pointer[snapshot]
	observer ReloadObserver
	logger   zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	r := &Registry{
		local:  make(map[string]Action),
		loaded: make(map[string]Action),
		logger: logger.With().Str("component", "registry").Logger(),
	}
	r.current.Store(newSnapshot(map[string]Action{}))
	return r
}

// SetObserver sets the reload observer.
func (r *Registry) SetObserver(observer ReloadObserver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observer = observer
}

// Register adds an in-process action. It is visible to readers as soon as
// Register returns and survives every later reload. Registering a name again
// replaces the earlier action.
func (r *Registry) Register(action Action) error {
	if action == nil {
		return fmt.Errorf("action cannot be nil")
	}
	name := action.Name()
	if name == "" {
		return fmt.Errorf("action name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.local[name]; exists {
		r.logger.Info().Str("action", name).Msg("Re-registering action")
	}
	r.local[name] = action
	r.publish()

	r.logger.Debug().Str("action", name).Msg("Action registered")

	return nil
}

// AddSource adds a source. Its actions appear on the next Reload.
func (r *Registry) AddSource(source Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources = append(r.sources, source)
}

// Reload rebuilds the mapping from every source plus the in-process
// registrations and swaps it in. If any source fails the current mapping is
// kept and the error returned.
func (r *Registry) Reload(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	loaded := make(map[string]Action)
	for _, source := range r.sources {
		actions, err := source.Load(ctx)
		if err != nil {
			err = fmt.Errorf("failed to load actions from %s: %w", source.Name(), err)
			r.logger.Error().Err(err).Msg("Registry reload failed")
			r.notify(0, err)
			return err
		}

		for _, action := range actions {
			name := action.Name()
			if _, exists := loaded[name]; exists {
				r.logger.Warn().
					Str("action", name).
					Str("source", source.Name()).
					Msg("Duplicate action name, keeping first definition")
				continue
			}
			loaded[name] = action
		}
	}

	r.loaded = loaded
	snap := r.publish()

	r.logger.Debug().Int("actions", len(snap.names)).Msg("Registry reloaded")
	r.notify(len(snap.names), nil)

	return nil
}

// publish merges loaded and local actions into a new snapshot. Caller holds mu.
func (r *Registry) publish() *snapshot {
	merged := make(map[string]Action, len(r.loaded)+len(r.local))
	for name, action := range r.loaded {
		merged[name] = action
	}
	for name, action := range r.local {
		merged[name] = action
	}
	snap := newSnapshot(merged)
	r.current.Store(snap)
	return snap
}

func (r *Registry) notify(actions int, err error) {
	if r.observer != nil {
		r.observer.ObserveReload(actions, err)
	}
}

// Lookup returns the action registered under name.
func (r *Registry) Lookup(name string) (Action, bool) {
	action, ok := r.current.Load().actions[name]
	return action, ok
}

// Names returns the registered action names in sorted order.
func (r *Registry) Names() []string {
	names := r.current.Load().names
	out := make([]string, len(names))
	copy(out, names)
	return out
}

// Len returns the number of registered actions.
func (r *Registry) Len() int {
	return len(r.current.Load().names)
}
