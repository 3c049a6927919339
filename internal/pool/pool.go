package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ligustah/cdsfetch/internal/logger"
)

// State is the lifecycle stage of a Pool.
type State int32

const (
	StateUninitialized State = iota
	StateReady
	StateDraining
	StateDone
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateDraining:
		return "draining"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ErrNotReady is returned by SubmitAll when the pool is not in StateReady.
var ErrNotReady = errors.New("pool: not ready")

// Task is one zero-argument unit of work.
type Task struct {
	// Name identifies the task in reports and logs.
	Name string

	// Run performs the work. ctx is cancelled when the run is cancelled
	// or the per-task timeout expires.
	Run func(ctx context.Context) error
}

// Options configures a Pool.
type Options struct {
	// Workers is the fixed number of workers.
	Workers int

	// ReadyTimeout bounds the wait for all workers to become ready.
	// Default: 10s
	ReadyTimeout time.Duration

	// JobTimeout bounds each task. Zero means unbounded.
	JobTimeout time.Duration

	// Init, when set, runs on each worker before it reports ready.
	Init func(ctx context.Context, worker int) error

	// Logger receives pool lifecycle messages. May be nil.
	Logger *logger.Logger
}

// ReadinessError is returned by New when the pool did not reach full size.
type ReadinessError struct {
	Requested int
	Ready     int
	Timeout   time.Duration
	Err       error
}

func (e *ReadinessError) Error() string {
	msg := fmt.Sprintf("pool: %d of %d workers ready within %s", e.Ready, e.Requested, e.Timeout)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ReadinessError) Unwrap() error {
	return e.Err
}

type envelope struct {
	ctx  context.Context
	idx  int
	task Task
}

// Pool runs a batch of independent tasks on a fixed number of workers.
//
// A Pool is used once: New brings it to StateReady, SubmitAll drains it to
// StateDone.
type Pool struct {
	opts  Options
	log   *logger.Logger
	state atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc
	queue  chan envelope

	results []Result
	batchWg sync.WaitGroup
	workers sync.WaitGroup

	closeOnce sync.Once
}

// New starts opts.Workers workers and waits until every one of them is
// ready. If that does not happen within opts.ReadyTimeout, or a worker's
// Init fails, the pool is torn down and a *ReadinessError is returned.
func New(ctx context.Context, opts Options) (*Pool, error) {
	if opts.Workers <= 0 {
		return nil, errors.New("pool: workers must be positive")
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 10 * time.Second
	}

	poolCtx, cancel := context.WithCancel(ctx)
	p := &Pool{
		opts:   opts,
		log:    opts.Logger,
		ctx:    poolCtx,
		cancel: cancel,
		queue:  make(chan envelope),
	}

	// Buffered so late workers never block after a readiness failure.
	readyCh := make(chan error, opts.Workers)
	for id := 0; id < opts.Workers; id++ {
		p.workers.Add(1)
		go p.runWorker(id, readyCh)
	}

	if err := p.awaitReady(readyCh); err != nil {
		// Workers still inside Init exit on their own once it returns.
		p.closeOnce.Do(p.stop)
		p.state.Store(int32(StateDone))
		return nil, err
	}

	p.state.Store(int32(StateReady))
	p.log.Info("worker pool ready: %d workers", opts.Workers)
	return p, nil
}

func (p *Pool) awaitReady(readyCh <-chan error) error {
	timer := time.NewTimer(p.opts.ReadyTimeout)
	defer timer.Stop()

	ready := 0
	for ready < p.opts.Workers {
		select {
		case err := <-readyCh:
			if err != nil {
				return &ReadinessError{Requested: p.opts.Workers, Ready: ready, Timeout: p.opts.ReadyTimeout, Err: err}
			}
			ready++
		case <-timer.C:
			return &ReadinessError{Requested: p.opts.Workers, Ready: ready, Timeout: p.opts.ReadyTimeout}
		case <-p.ctx.Done():
			return &ReadinessError{Requested: p.opts.Workers, Ready: ready, Timeout: p.opts.ReadyTimeout, Err: p.ctx.Err()}
		}
	}
	return nil
}

// State returns the current lifecycle stage.
func (p *Pool) State() State {
	return State(p.state.Load())
}

// Workers returns the number of workers.
func (p *Pool) Workers() int {
	return p.opts.Workers
}

// SubmitAll runs every task and returns once each has finished, failed, or
// been skipped because ctx was cancelled before it started. A failing task
// does not stop its siblings.
//
// The returned Report has one Result per task, in input order. The error is
// a *JobsError when at least one task did not succeed.
func (p *Pool) SubmitAll(ctx context.Context, tasks []Task) (*Report, error) {
	if !p.state.CompareAndSwap(int32(StateReady), int32(StateDraining)) {
		return nil, fmt.Errorf("%w: pool is %s", ErrNotReady, p.State())
	}

	start := time.Now()
	p.results = make([]Result, len(tasks))
	for i, task := range tasks {
		p.results[i] = Result{Name: task.Name}
	}

	// Stop dispatching on either the run context or the pool context.
	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		select {
		case <-p.ctx.Done():
			stop()
		case <-runCtx.Done():
		}
	}()

	p.log.Info("submitting %d tasks to %d workers", len(tasks), p.opts.Workers)

	p.batchWg.Add(len(tasks))
	for i, task := range tasks {
		if runCtx.Err() == nil {
			select {
			case p.queue <- envelope{ctx: runCtx, idx: i, task: task}:
				continue
			case <-runCtx.Done():
			}
		}
		p.results[i].Err = runCtx.Err()
		p.results[i].Skipped = true
		p.batchWg.Done()
	}

	p.batchWg.Wait()
	p.Close()
	p.state.Store(int32(StateDone))

	report := &Report{Results: p.results, Duration: time.Since(start)}
	return report, report.Err()
}

// Close stops the workers and waits for them to exit. It is idempotent and
// is called by SubmitAll; callers only need it when SubmitAll is never reached.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		p.stop()
		p.workers.Wait()
	})
	p.state.CompareAndSwap(int32(StateReady), int32(StateDone))
}

func (p *Pool) stop() {
	close(p.queue)
	p.cancel()
}

func (p *Pool) runWorker(id int, readyCh chan<- error) {
	defer p.workers.Done()

	if p.opts.Init != nil {
		if err := p.opts.Init(p.ctx, id); err != nil {
			readyCh <- fmt.Errorf("worker %d init: %w", id, err)
			return
		}
	}
	readyCh <- nil
	p.log.Debug("worker %d ready", id)

	for env := range p.queue {
		p.execute(id, env)
	}

	p.log.Debug("worker %d exiting", id)
}

// execute runs a single task and records its result.
func (p *Pool) execute(workerID int, env envelope) {
	defer p.batchWg.Done()

	// The dispatch select may hand over a task after the run was cancelled.
	if err := env.ctx.Err(); err != nil {
		p.results[env.idx].Err = err
		p.results[env.idx].Skipped = true
		return
	}

	ctx := env.ctx
	var cancel context.CancelFunc
	if p.opts.JobTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, p.opts.JobTimeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	p.log.Debug("worker %d running %s", workerID, env.task.Name)

	start := time.Now()
	err := runTask(ctx, env.task)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && env.ctx.Err() == nil {
		err = fmt.Errorf("timed out after %s: %w", p.opts.JobTimeout, err)
	}

	p.results[env.idx].Err = err
	p.results[env.idx].Duration = time.Since(start)
	p.results[env.idx].Worker = workerID

	if err != nil {
		p.log.Error("%s failed after %s: %v", env.task.Name, time.Since(start).Round(time.Millisecond), err)
	} else {
		p.log.Info("%s done in %s", env.task.Name, time.Since(start).Round(time.Millisecond))
	}
}

// runTask converts a panic into an error.
func runTask(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if task.Run == nil {
		return errors.New("task has no Run function")
	}
	return task.Run(ctx)
}
