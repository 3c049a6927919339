package pool

import (
	"fmt"
	"strings"
	"time"
)

// Result is the terminal outcome of one task.
type Result struct {
	Name     string
	Err      error
	Duration time.Duration

	// Worker is the worker that ran the task. It is meaningless when
	// Skipped is set.
	Worker int

	// Skipped is set when the task was never started because the run
	// was cancelled first.
	Skipped bool
}

// OK reports whether the task succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// Report holds the outcomes of one SubmitAll call, in submission order.
type Report struct {
	Results  []Result
	Duration time.Duration
}

// Succeeded returns the number of tasks that completed without error.
func (r *Report) Succeeded() int {
	n := 0
	for _, res := range r.Results {
		if res.OK() {
			n++
		}
	}
	return n
}

// Failed returns the results of tasks that did not succeed.
func (r *Report) Failed() []Result {
	var failed []Result
	for _, res := range r.Results {
		if !res.OK() {
			failed = append(failed, res)
		}
	}
	return failed
}

// Err returns a *JobsError if any task failed, otherwise nil.
func (r *Report) Err() error {
	failed := r.Failed()
	if len(failed) == 0 {
		return nil
	}
	return &JobsError{Total: len(r.Results), Failed: failed}
}

// JobsError aggregates the failures of a SubmitAll run.
// errors.Is and errors.As see every wrapped task error.
type JobsError struct {
	Total  int
	Failed []Result
}

func (e *JobsError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d of %d jobs failed", len(e.Failed), e.Total)
	for i, res := range e.Failed {
		if i == 3 {
			fmt.Fprintf(&b, "; and %d more", len(e.Failed)-i)
			break
		}
		fmt.Fprintf(&b, "; %s: %v", res.Name, res.Err)
	}
	return b.String()
}

func (e *JobsError) Unwrap() []error {
	errs := make([]error, len(e.Failed))
	for i, res := range e.Failed {
		errs[i] = res.Err
	}
	return errs
}
