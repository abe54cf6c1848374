package model

import "time"

// TaskStage identifies which pipeline stage a queued task drives.
type TaskStage string

const (
	StageDownload TaskStage = "download"
	StageAnalyze  TaskStage = "analyze"
)

// Task is one unit of queued pipeline work. Delivery is at-least-once:
// a claimed task whose worker dies becomes reclaimable after the
// visibility timeout, and stage handlers are idempotent against
// re-delivery (a filing already past the stage is a no-op).
type Task struct {
	ID              string     `json:"id"`
	AccessionNumber string     `json:"accession_number"`
	Stage           TaskStage  `json:"stage"`
	Attempts        int        `json:"attempts"`
	MaxAttempts     int        `json:"max_attempts"`
	NextAttemptAt   time.Time  `json:"next_attempt_at"`
	ClaimedAt       *time.Time `json:"claimed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Exhausted reports whether the task has used up its attempt budget.
func (t *Task) Exhausted() bool {
	return t.Attempts >= t.MaxAttempts
}
