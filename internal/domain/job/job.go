package job

import (
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/seqsearch/internal/domain/alignment"
)

// Status is a job lifecycle state.
type Status string

// Job states. Completed and Failed are terminal.
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Statuses lists all states in lifecycle order.
var Statuses = []Status{StatusPending, StatusRunning, StatusCompleted, StatusFailed}

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Pipeline checkpoints.
const (
	ProgressQueued   = 0
	ProgressStarted  = 10
	ProgressStaged   = 20
	ProgressAligned  = 60
	ProgressParsed   = 75
	ProgressEnriched = 90
	ProgressDone     = 100
)

// ErrInvalidTransition signals a state change the lifecycle does not allow.
var ErrInvalidTransition = errors.New("invalid job transition")

// Job tracks one search request through its lifecycle.
type Job struct {
	ID            string
	Status        Status
	Progress      int
	Params        Params
	SubmitTime    time.Time
	StartTime     time.Time
	CompletedTime time.Time
	Result        *alignment.Result
	Error         string
	LastAccessed  time.Time
}

// StoreStats summarises job store occupancy.
type StoreStats struct {
	Total    int
	Capacity int
	ByStatus map[Status]int
}

// New creates a pending job.
func New(id string, params Params, now time.Time) Job {
	return Job{
		ID:           id,
		Status:       StatusPending,
		Progress:     ProgressQueued,
		Params:       params,
		SubmitTime:   now,
		StartTime:    now,
		LastAccessed: now,
	}
}

// Begin moves a pending job to running.
func (j *Job) Begin(now time.Time) error {
	if j.Status != StatusPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, StatusRunning)
	}
	j.Status = StatusRunning
	j.StartTime = now
	j.Progress = ProgressStarted
	return nil
}

// Advance raises progress of a running job. Lower values are ignored.
func (j *Job) Advance(progress int) {
	if j.Status != StatusRunning {
		return
	}
	if progress > ProgressDone {
		progress = ProgressDone
	}
	if progress > j.Progress {
		j.Progress = progress
	}
}

// Complete finishes a running job with its result.
func (j *Job) Complete(res alignment.Result, now time.Time) error {
	if j.Status != StatusRunning {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, StatusCompleted)
	}
	j.Status = StatusCompleted
	j.Progress = ProgressDone
	j.Result = &res
	j.CompletedTime = now
	return nil
}

// Fail finishes a running job with an error message.
func (j *Job) Fail(msg string, now time.Time) error {
	if j.Status != StatusRunning {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, StatusFailed)
	}
	if msg == "" {
		msg = "search failed"
	}
	j.Status = StatusFailed
	j.Error = msg
	j.CompletedTime = now
	return nil
}

// Duration returns the run time of a finished job, or the time since start otherwise.
func (j *Job) Duration(now time.Time) time.Duration {
	if j.Status == StatusPending {
		return 0
	}
	if j.Status.Terminal() {
		return j.CompletedTime.Sub(j.StartTime)
	}
	return now.Sub(j.StartTime)
}

// QueueWait returns how long the job waited for a worker slot.
func (j *Job) QueueWait(now time.Time) time.Duration {
	if j.Status == StatusPending {
		return now.Sub(j.SubmitTime)
	}
	return j.StartTime.Sub(j.SubmitTime)
}
