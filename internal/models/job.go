package models

import (
	"time"

	"github.com/google/uuid"
)

// Job statuses. Forward-only: pending, running, then done or failed.
const (
	JobPending = "pending"
	JobRunning = "running"
	JobDone    = "done"
	JobFailed  = "failed"
)

// Job is one unit of downstream processing handed off at evidence
// finalization. The queue is a collaborator from the core's point of view;
// finalize only enqueues and never waits.
type Job struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	TaskName   string     `db:"task_name" json:"task_name"`
	Args       Payload    `db:"args" json:"args"`
	Status     string     `db:"status" json:"status"`
	Error      *string    `db:"error" json:"error,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	FinishedAt *time.Time `db:"finished_at" json:"finished_at,omitempty"`
}

// Artifact is derived content (extracted text, transcript) produced by a
// processing provider from a finalized evidence blob. Derivatives, never
// originals.
type Artifact struct {
	ID         uuid.UUID `db:"id" json:"id"`
	EvidenceID uuid.UUID `db:"evidence_id" json:"evidence_id"`
	Kind       string    `db:"kind" json:"kind"`
	Content    string    `db:"content" json:"content"`
	SHA256     string    `db:"sha256" json:"sha256"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
