// Package executor resolves action names to runnable actions and runs them.
//
// Invariants:
//   - Action names are unique within one registry snapshot.
//   - Reload builds a complete new snapshot and swaps it in one step; readers
//     see either the old or the new mapping, never a mix.
//   - A failed reload leaves the previous snapshot active.
//
// Usage:
//
//	reg := executor.NewRegistry(logger)
//	_ = reg.Register(executor.NewAction("action_hello", func(ctx context.Context, d *executor.CollectingDispatcher, t executor.Tracker, dom executor.Domain) ([]executor.Event, error) {
//		d.Utter("Hello!")
//		return nil, nil
//	}))
//	exec := executor.New(reg, executor.Options{Timeout: 30 * time.Second})
//	result, err := exec.Run(ctx, call)
package executor
