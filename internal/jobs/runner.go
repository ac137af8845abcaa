package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/evidentium/custodia/internal/audit"
	"github.com/evidentium/custodia/internal/digest"
	"github.com/evidentium/custodia/internal/models"
	"github.com/evidentium/custodia/internal/processing"
	"github.com/evidentium/custodia/internal/repository"
	"github.com/evidentium/custodia/internal/storage"
)

// ErrNoPendingJobs re-exported for callers that only import this package.
var ErrNoPendingJobs = repository.ErrNoPendingJobs

// Runner executes one queued job per call. It runs no loop of its own; an
// operator or external scheduler drives it.
type Runner struct {
	db           *sqlx.DB
	repo         repository.JobRepository
	evidenceRepo repository.EvidenceRepository
	store        storage.BlobStore
	provider     processing.Provider
	trail        audit.Recorder
}

// NewRunner wires the job runner.
func NewRunner(
	db *sqlx.DB,
	repo repository.JobRepository,
	evidenceRepo repository.EvidenceRepository,
	store storage.BlobStore,
	provider processing.Provider,
	trail audit.Recorder,
) *Runner {
	return &Runner{
		db:           db,
		repo:         repo,
		evidenceRepo: evidenceRepo,
		store:        store,
		provider:     provider,
		trail:        trail,
	}
}

// RunOnce claims and executes the oldest pending job. Returns
// ErrNoPendingJobs when the queue is empty.
func (r *Runner) RunOnce(ctx context.Context) (*models.Job, error) {
	job, err := r.repo.ClaimNextPending(ctx)
	if err != nil {
		return nil, err
	}

	log.Printf("[JobRunner] Running job %s (%s)", job.ID, job.TaskName)
	if runErr := r.execute(ctx, job); runErr != nil {
		log.Printf("[JobRunner] Job %s failed: %v", job.ID, runErr)
		if err := r.repo.MarkFailed(ctx, job, runErr.Error(), time.Now()); err != nil {
			return job, err
		}
		if _, err := r.trail.Record(ctx, nil, models.EventJobFailed, models.Payload{
			"job_id":    job.ID.String(),
			"task_name": job.TaskName,
			"error":     runErr.Error(),
		}); err != nil {
			log.Printf("[JobRunner] Recording job.failed for %s: %v", job.ID, err)
		}
		return job, runErr
	}

	if err := r.repo.MarkDone(ctx, job, time.Now()); err != nil {
		return job, err
	}
	return job, nil
}

func (r *Runner) execute(ctx context.Context, job *models.Job) error {
	if job.TaskName != TaskProcessEvidence {
		return fmt.Errorf("unknown task %q", job.TaskName)
	}

	rawID, ok := job.Args["evidence_id"].(string)
	if !ok {
		return errors.New("job args missing evidence_id")
	}
	evidenceID, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("parsing evidence_id: %w", err)
	}

	rec, err := r.evidenceRepo.GetByID(ctx, evidenceID)
	if err != nil {
		return err
	}

	rc, err := r.store.Download(ctx, rec.ObjectKey)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rc.Close(); closeErr != nil {
			log.Printf("[JobRunner] Closing blob reader for %q: %v", rec.ObjectKey, closeErr)
		}
	}()

	text, err := r.provider.Extract(ctx, rec.ContentType, rc)
	if err != nil {
		return fmt.Errorf("provider %q extract: %w", r.provider.Name(), err)
	}

	artifact := &models.Artifact{
		ID:         uuid.New(),
		EvidenceID: rec.ID,
		Kind:       "extracted_text",
		Content:    text,
		SHA256:     digest.SHA256Text(text),
	}

	// Artifact row and its audit event commit together.
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning artifact transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := r.repo.CreateArtifact(ctx, tx, artifact); err != nil {
		return err
	}
	ev, err := r.trail.Append(ctx, tx, &rec.CaseID, models.EventArtifactCreated, models.Payload{
		"artifact_id": artifact.ID.String(),
		"evidence_id": rec.ID.String(),
		"kind":        artifact.Kind,
		"provider":    r.provider.Name(),
		"sha256":      artifact.SHA256,
	})
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing artifact transaction: %w", err)
	}
	r.trail.Mirror(ev)

	return nil
}
