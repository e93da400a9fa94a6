package models

import "time"

// JobStatus values. Transitions are monotonic: queued → processing →
// (completed | failed). No transition back.
const (
	JobQueued     = "queued"
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

// Job is one entry in the JobManager's store.
//
// Invariant: CompletedAt is set iff Status ∈ {completed, failed}. Result
// or Error is set iff Status ∈ {completed, failed}, and exactly one of
// the two: a completed job carries Result, a failed job carries Error.
type Job struct {
	ID      string
	Request *ScrapeRequest
	Status  string

	Result *SuccessResponse
	Error  *ErrorDetail

	CreatedAt   time.Time
	CompletedAt *time.Time
}
