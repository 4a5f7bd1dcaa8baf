package jobs

import "sync"

// JobState is the caller-visible state of a pollable job.
type JobState string

const (
	JobProcessing JobState = "PROCESSING"
	JobComplete   JobState = "COMPLETE"
	JobFailed     JobState = "FAILED"
)

// PollableJob is the caller-facing wrapper around a deferred operation. It
// separates the single fatal error from the non-fatal warnings accumulated
// along the way: warnings never abort the operation and are surfaced
// alongside a success result.
type PollableJob struct {
	mu       sync.Mutex
	state    JobState
	warnings []string
	err      error
}

// NewPollableJob returns a job in the processing state.
func NewPollableJob() *PollableJob {
	return &PollableJob{state: JobProcessing}
}

// AddWarning appends a non-fatal warning message.
func (j *PollableJob) AddWarning(message string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.warnings = append(j.warnings, message)
}

// Complete marks the job successful.
func (j *PollableJob) Complete() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.state = JobComplete
}

// Fail marks the job failed with the given fatal error.
func (j *PollableJob) Fail(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.state = JobFailed
	j.err = err
}

// State returns the current job state.
func (j *PollableJob) State() JobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Warnings returns the accumulated warning messages.
func (j *PollableJob) Warnings() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	result := make([]string, len(j.warnings))
	copy(result, j.warnings)
	return result
}

// Err returns the fatal error, or nil.
func (j *PollableJob) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}
