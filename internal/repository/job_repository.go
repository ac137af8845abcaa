package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/evidentium/custodia/internal/models"
)

// JobRepository backs the downstream-processing queue and its artifacts.
type JobRepository interface {
	Enqueue(ctx context.Context, q sqlx.ExtContext, job *models.Job) error
	ClaimNextPending(ctx context.Context) (*models.Job, error)
	MarkDone(ctx context.Context, job *models.Job, finishedAt time.Time) error
	MarkFailed(ctx context.Context, job *models.Job, reason string, finishedAt time.Time) error
	CreateArtifact(ctx context.Context, q sqlx.ExtContext, a *models.Artifact) error
	ListArtifactsByEvidence(ctx context.Context, evidenceID uuid.UUID) ([]models.Artifact, error)
}

type postgresJobRepository struct {
	db *sqlx.DB
}

// NewPostgresJobRepository creates the Postgres-backed job repository.
func NewPostgresJobRepository(db *sqlx.DB) JobRepository {
	return &postgresJobRepository{db: db}
}

// Enqueue inserts a pending job.
func (r *postgresJobRepository) Enqueue(ctx context.Context, q sqlx.ExtContext, job *models.Job) error {
	query := `INSERT INTO jobs (id, task_name, args, status)
	          VALUES ($1, $2, $3, $4) RETURNING created_at`

	err := sqlx.GetContext(ctx, q, &job.CreatedAt, query, job.ID, job.TaskName, job.Args, models.JobPending)
	if err != nil {
		log.Printf("[JobRepo] Enqueueing %q failed: %v", job.TaskName, err)
		return fmt.Errorf("inserting job: %w", err)
	}
	job.Status = models.JobPending

	log.Printf("[JobRepo] Job %s (%s) enqueued", job.ID, job.TaskName)
	return nil
}

// ClaimNextPending returns the oldest pending job, locked against concurrent
// claimers via SKIP LOCKED semantics expressed as an immediate status flip.
func (r *postgresJobRepository) ClaimNextPending(ctx context.Context) (*models.Job, error) {
	query := `UPDATE jobs SET status=$2
	          WHERE id = (SELECT id FROM jobs WHERE status=$1 ORDER BY created_at ASC
	                      FOR UPDATE SKIP LOCKED LIMIT 1)
	          RETURNING id, task_name, args, status, error, created_at, finished_at`
	var job models.Job

	err := r.db.GetContext(ctx, &job, query, models.JobPending, models.JobRunning)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoPendingJobs
		}
		log.Printf("[JobRepo] Claiming pending job failed: %v", err)
		return nil, fmt.Errorf("claiming pending job: %w", err)
	}
	return &job, nil
}

// MarkDone records successful completion.
func (r *postgresJobRepository) MarkDone(ctx context.Context, job *models.Job, finishedAt time.Time) error {
	query := `UPDATE jobs SET status=$2, finished_at=$3 WHERE id=$1`
	if _, err := r.db.ExecContext(ctx, query, job.ID, models.JobDone, finishedAt); err != nil {
		log.Printf("[JobRepo] Marking job %s done failed: %v", job.ID, err)
		return fmt.Errorf("marking job done: %w", err)
	}
	return nil
}

// MarkFailed records failure with the reason.
func (r *postgresJobRepository) MarkFailed(
	ctx context.Context,
	job *models.Job,
	reason string,
	finishedAt time.Time,
) error {
	query := `UPDATE jobs SET status=$2, error=$3, finished_at=$4 WHERE id=$1`
	if _, err := r.db.ExecContext(ctx, query, job.ID, models.JobFailed, reason, finishedAt); err != nil {
		log.Printf("[JobRepo] Marking job %s failed errored: %v", job.ID, err)
		return fmt.Errorf("marking job failed: %w", err)
	}
	return nil
}

// CreateArtifact inserts a derived artifact.
func (r *postgresJobRepository) CreateArtifact(ctx context.Context, q sqlx.ExtContext, a *models.Artifact) error {
	query := `INSERT INTO artifacts (id, evidence_id, kind, content, sha256)
	          VALUES ($1, $2, $3, $4, $5) RETURNING created_at`

	err := sqlx.GetContext(ctx, q, &a.CreatedAt, query, a.ID, a.EvidenceID, a.Kind, a.Content, a.SHA256)
	if err != nil {
		log.Printf("[JobRepo] Creating %s artifact for evidence %s failed: %v", a.Kind, a.EvidenceID, err)
		return fmt.Errorf("inserting artifact: %w", err)
	}

	log.Printf("[JobRepo] Artifact %s (%s) created for evidence %s", a.ID, a.Kind, a.EvidenceID)
	return nil
}

// ListArtifactsByEvidence returns all derived artifacts for one evidence
// record, oldest first.
func (r *postgresJobRepository) ListArtifactsByEvidence(
	ctx context.Context,
	evidenceID uuid.UUID,
) ([]models.Artifact, error) {
	query := `SELECT id, evidence_id, kind, content, sha256, created_at
	          FROM artifacts WHERE evidence_id=$1 ORDER BY created_at ASC`
	var artifacts []models.Artifact

	if err := r.db.SelectContext(ctx, &artifacts, query, evidenceID); err != nil {
		log.Printf("[JobRepo] Listing artifacts for evidence %s failed: %v", evidenceID, err)
		return nil, fmt.Errorf("listing artifacts: %w", err)
	}
	return artifacts, nil
}

var (
	ErrNoPendingJobs = errors.New("no pending jobs")
)
