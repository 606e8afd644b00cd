package density

import (
	"context"

	"qtermsim/internal/quantum"
)

// Status is the lifecycle of an asynchronous reduction.
type Status int

const (
	StatusComputing Status = iota
	StatusDone
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusComputing:
		return "computing"
	case StatusDone:
		return "done"
	default:
		return "failed"
	}
}

// Job is a partial trace running in the background.
type Job struct {
	done   chan struct{}
	cancel context.CancelFunc
	result Matrix
	err    error
}

// Async starts a reduction and returns immediately. The amplitude map is
// copied before Async returns, so the caller may keep mutating its register.
func (c *Calculator) Async(ctx context.Context, amps quantum.Amplitudes, width, target int) *Job {
	ctx, cancel := context.WithCancel(ctx)
	j := &Job{
		done:   make(chan struct{}),
		cancel: cancel,
	}
	frozen := amps.Clone()
	go func() {
		defer close(j.done)
		defer cancel()
		j.result, j.err = c.CalculateContext(ctx, frozen, width, target)
	}()
	return j
}

// Status reports without blocking.
func (j *Job) Status() Status {
	select {
	case <-j.done:
		if j.err != nil {
			return StatusFailed
		}
		return StatusDone
	default:
		return StatusComputing
	}
}

// Done is closed once the result is available.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the reduction finishes.
func (j *Job) Wait() (Matrix, error) {
	<-j.done
	return j.result, j.err
}

// Cancel aborts a running reduction; Wait then returns the context error.
func (j *Job) Cancel() {
	j.cancel()
}
