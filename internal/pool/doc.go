// Package pool runs a flat list of independent tasks on a fixed-size set of
// worker goroutines.
//
// # Lifecycle
//
//	Uninitialized -> Ready -> Draining -> Done
//
// New starts the workers and returns only once all of them are ready, or a
// *ReadinessError if that does not happen within Options.ReadyTimeout.
// SubmitAll dispatches every task, waits for each to reach a terminal state
// and leaves the pool in Done. A pool is not reused.
//
// # Failures
//
// Every task runs regardless of how its siblings fare. SubmitAll returns the
// complete Report and a *JobsError wrapping each failure if any task failed.
// Tasks not yet started when the context is cancelled are marked Skipped.
//
// # Usage
//
//	p, err := pool.New(ctx, pool.Options{Workers: 10, ReadyTimeout: 10 * time.Second})
//	if err != nil {
//	    return err // nothing was submitted
//	}
//	report, err := p.SubmitAll(ctx, tasks)
package pool
