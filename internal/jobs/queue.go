// Package jobs is the handoff point between evidence finalization and
// downstream processing. The core only enqueues, fire-and-forget; execution
// happens out of band.
package jobs

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/evidentium/custodia/internal/models"
	"github.com/evidentium/custodia/internal/repository"
)

// Task names the queue accepts.
const (
	TaskProcessEvidence = "evidence.process"
)

// Queue enqueues downstream work.
type Queue interface {
	Enqueue(ctx context.Context, taskName string, args models.Payload) (*models.Job, error)
}

// PostgresQueue stores jobs in the jobs table.
type PostgresQueue struct {
	db   *sqlx.DB
	repo repository.JobRepository
}

var _ Queue = (*PostgresQueue)(nil)

// NewPostgresQueue creates the Postgres-backed queue.
func NewPostgresQueue(db *sqlx.DB, repo repository.JobRepository) *PostgresQueue {
	return &PostgresQueue{db: db, repo: repo}
}

// Enqueue inserts a pending job.
func (q *PostgresQueue) Enqueue(ctx context.Context, taskName string, args models.Payload) (*models.Job, error) {
	job := &models.Job{
		ID:       uuid.New(),
		TaskName: taskName,
		Args:     args,
	}
	if err := q.repo.Enqueue(ctx, q.db, job); err != nil {
		return nil, err
	}
	return job, nil
}
