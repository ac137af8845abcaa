package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/evidentium/custodia/internal/audit"
	"github.com/evidentium/custodia/internal/digest"
	"github.com/evidentium/custodia/internal/jobs"
	"github.com/evidentium/custodia/internal/models"
	"github.com/evidentium/custodia/internal/repository"
	"github.com/evidentium/custodia/internal/storage"
)

const (
	uploadURLTTL            = 15 * time.Minute
	finalizeDownloadTimeout = 2 * time.Minute
)

// Filenames must stay safe to embed in object keys and export archives: no
// path separators, no shell metacharacters, no leading dot.
var safeFilenamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 ._-]{0,254}$`)

// Broad media categories accepted as evidence.
var allowedContentTypePrefixes = []string{"video/", "audio/", "image/"}

const allowedPDFContentType = "application/pdf"

// InitResult is what upload initiation hands back to the client.
type InitResult struct {
	Record    *models.EvidenceRecord `json:"record"`
	UploadURL string                 `json:"upload_url"`
}

// EvidenceService is the evidence identity store: it assigns each uploaded
// blob a case-scoped content address and enforces the write-once lifecycle.
type EvidenceService interface {
	Init(ctx context.Context, caseID uuid.UUID, filename, contentType string, declaredSize int64, actorID int64) (*InitResult, error)
	Finalize(ctx context.Context, evidenceID uuid.UUID, actorID int64) (*models.EvidenceRecord, error)
	Get(ctx context.Context, evidenceID uuid.UUID) (*models.EvidenceRecord, error)
	ListByCase(ctx context.Context, caseID uuid.UUID) ([]models.EvidenceRecord, error)
	Download(ctx context.Context, evidenceID uuid.UUID) (*models.EvidenceRecord, io.ReadCloser, error)
}

var _ EvidenceService = (*evidenceService)(nil)

type evidenceService struct {
	db           *sqlx.DB
	caseRepo     repository.CaseRepository
	evidenceRepo repository.EvidenceRepository
	store        storage.BlobStore
	queue        jobs.Queue
	trail        audit.Recorder
}

// NewEvidenceService wires the evidence identity store.
func NewEvidenceService(
	db *sqlx.DB,
	caseRepo repository.CaseRepository,
	evidenceRepo repository.EvidenceRepository,
	store storage.BlobStore,
	queue jobs.Queue,
	trail audit.Recorder,
) EvidenceService {
	return &evidenceService{
		db:           db,
		caseRepo:     caseRepo,
		evidenceRepo: evidenceRepo,
		store:        store,
		queue:        queue,
		trail:        trail,
	}
}

// Init validates the declared upload, allocates the evidence identity and
// storage locator, and returns a presigned URL for the client to upload the
// original bytes directly to the blob store. The record and its
// evidence.init event commit atomically.
func (s *evidenceService) Init(
	ctx context.Context,
	caseID uuid.UUID,
	filename, contentType string,
	declaredSize int64,
	actorID int64,
) (*InitResult, error) {
	if err := validateContentType(contentType); err != nil {
		return nil, err
	}
	if err := validateFilename(filename); err != nil {
		return nil, err
	}
	if declaredSize <= 0 {
		return nil, fmt.Errorf("%w: declared size must be positive", ErrValidation)
	}

	if _, err := s.caseRepo.GetByID(ctx, caseID); err != nil {
		if errors.Is(err, repository.ErrCaseNotFound) {
			return nil, ErrCaseNotFound
		}
		return nil, fmt.Errorf("loading case: %w", err)
	}

	rec := &models.EvidenceRecord{
		ID:           uuid.New(),
		CaseID:       caseID,
		Filename:     filename,
		ContentType:  contentType,
		DeclaredSize: declaredSize,
	}
	rec.ObjectKey = fmt.Sprintf("%s/%s/%s", caseID, rec.ID, filename)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning init transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.evidenceRepo.Create(ctx, tx, rec); err != nil {
		return nil, err
	}
	ev, err := s.trail.Append(ctx, tx, &caseID, models.EventEvidenceInit, models.Payload{
		"actor_id":      actorID,
		"content_type":  contentType,
		"declared_size": declaredSize,
		"evidence_id":   rec.ID.String(),
		"filename":      filename,
	})
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing init transaction: %w", err)
	}
	s.trail.Mirror(ev)

	uploadURL, err := s.store.PresignedPutURL(ctx, rec.ObjectKey, contentType, uploadURLTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExternalIO, err)
	}

	log.Printf("[EvidenceService] Evidence %s initialized in case %s (%q, %s, %d bytes declared)",
		rec.ID, caseID, filename, contentType, declaredSize)
	return &InitResult{Record: rec, UploadURL: uploadURL}, nil
}

// Finalize downloads the uploaded blob, computes its content address, and
// seals the record. The digest assignment and the evidence.complete event
// commit in one transaction: a crash leaves neither or both, never one.
func (s *evidenceService) Finalize(
	ctx context.Context,
	evidenceID uuid.UUID,
	actorID int64,
) (*models.EvidenceRecord, error) {
	rec, err := s.evidenceRepo.GetByID(ctx, evidenceID)
	if err != nil {
		if errors.Is(err, repository.ErrEvidenceNotFound) {
			return nil, ErrEvidenceNotFound
		}
		return nil, fmt.Errorf("loading evidence record: %w", err)
	}
	if rec.Finalized() {
		return nil, ErrAlreadyFinalized
	}

	sum, size, err := s.downloadAndHash(ctx, rec.ObjectKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: uploaded bytes not found at %q", ErrExternalIO, rec.ObjectKey)
		}
		return nil, fmt.Errorf("%w: %v", ErrExternalIO, err)
	}

	// Case-scoped dedup: the same bytes re-uploaded into the same case
	// would make the chain of custody ambiguous. The same bytes in another
	// case are legitimate.
	dup, err := s.evidenceRepo.DigestExistsInCase(ctx, rec.CaseID, sum, rec.ID)
	if err != nil {
		return nil, err
	}
	if dup {
		return nil, ErrDuplicateEvidence
	}

	finalizedAt := time.Now().UTC()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning finalize transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.evidenceRepo.SetDigest(ctx, tx, rec.ID, sum, finalizedAt); err != nil {
		switch {
		case errors.Is(err, repository.ErrAlreadyFinalized):
			return nil, ErrAlreadyFinalized
		case errors.Is(err, repository.ErrDuplicateDigest):
			return nil, ErrDuplicateEvidence
		}
		return nil, err
	}
	ev, err := s.trail.Append(ctx, tx, &rec.CaseID, models.EventEvidenceComplete, models.Payload{
		"actor_id":    actorID,
		"evidence_id": rec.ID.String(),
		"sha256":      sum,
		"size_bytes":  size,
	})
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing finalize transaction: %w", err)
	}
	s.trail.Mirror(ev)

	rec.SHA256 = &sum
	rec.FinalizedAt = &finalizedAt

	s.flagCrossCaseReuse(ctx, rec, sum)
	s.enqueueProcessing(ctx, rec)

	log.Printf("[EvidenceService] Evidence %s finalized, sha256 %s (%d bytes)", rec.ID, sum, size)
	return rec, nil
}

// Get returns a record by id.
func (s *evidenceService) Get(ctx context.Context, evidenceID uuid.UUID) (*models.EvidenceRecord, error) {
	rec, err := s.evidenceRepo.GetByID(ctx, evidenceID)
	if err != nil {
		if errors.Is(err, repository.ErrEvidenceNotFound) {
			return nil, ErrEvidenceNotFound
		}
		return nil, err
	}
	return rec, nil
}

// ListByCase returns the case inventory in upload order.
func (s *evidenceService) ListByCase(ctx context.Context, caseID uuid.UUID) ([]models.EvidenceRecord, error) {
	return s.evidenceRepo.ListByCase(ctx, caseID)
}

// Download opens the original bytes of a finalized record for streaming to
// an authorized, purpose-logged caller.
func (s *evidenceService) Download(
	ctx context.Context,
	evidenceID uuid.UUID,
) (*models.EvidenceRecord, io.ReadCloser, error) {
	rec, err := s.Get(ctx, evidenceID)
	if err != nil {
		return nil, nil, err
	}
	if !rec.Finalized() {
		return nil, nil, fmt.Errorf("%w: evidence not finalized", ErrValidation)
	}
	rc, err := s.store.Download(ctx, rec.ObjectKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, nil, fmt.Errorf("%w: original blob missing at %q", ErrExternalIO, rec.ObjectKey)
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrExternalIO, err)
	}
	return rec, rc, nil
}

func (s *evidenceService) downloadAndHash(ctx context.Context, objectKey string) (string, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, finalizeDownloadTimeout)
	defer cancel()

	rc, err := s.store.Download(ctx, objectKey)
	if err != nil {
		return "", 0, err
	}
	defer func() {
		if closeErr := rc.Close(); closeErr != nil {
			log.Printf("[EvidenceService] Closing blob reader for %q: %v", objectKey, closeErr)
		}
	}()

	return digest.SHA256Reader(rc)
}

// flagCrossCaseReuse records an advisory event when identical bytes exist
// in other cases. Reuse is allowed; investigators just need to see it.
func (s *evidenceService) flagCrossCaseReuse(ctx context.Context, rec *models.EvidenceRecord, sum string) {
	count, err := s.evidenceRepo.DigestCaseCount(ctx, sum, rec.CaseID)
	if err != nil {
		log.Printf("[EvidenceService] Cross-case reuse check for %s failed: %v", rec.ID, err)
		return
	}
	if count == 0 {
		return
	}
	if _, err := s.trail.Record(ctx, &rec.CaseID, models.EventCrossCaseMatch, models.Payload{
		"evidence_id":      rec.ID.String(),
		"other_case_count": count,
		"sha256":           sum,
	}); err != nil {
		log.Printf("[EvidenceService] Recording cross-case match for %s failed: %v", rec.ID, err)
	}
}

// enqueueProcessing hands the finalized blob to the downstream queue,
// fire-and-forget. Queue failure never unwinds the committed finalization.
func (s *evidenceService) enqueueProcessing(ctx context.Context, rec *models.EvidenceRecord) {
	job, err := s.queue.Enqueue(ctx, jobs.TaskProcessEvidence, models.Payload{
		"case_id":     rec.CaseID.String(),
		"evidence_id": rec.ID.String(),
	})
	if err != nil {
		log.Printf("[EvidenceService] Enqueueing processing for %s failed: %v", rec.ID, err)
		if _, recErr := s.trail.Record(ctx, &rec.CaseID, models.EventJobFailed, models.Payload{
			"error":       err.Error(),
			"evidence_id": rec.ID.String(),
			"task_name":   jobs.TaskProcessEvidence,
		}); recErr != nil {
			log.Printf("[EvidenceService] Recording job.failed for %s also failed: %v", rec.ID, recErr)
		}
		return
	}
	if _, err := s.trail.Record(ctx, &rec.CaseID, models.EventJobEnqueued, models.Payload{
		"evidence_id": rec.ID.String(),
		"job_id":      job.ID.String(),
		"task_name":   job.TaskName,
	}); err != nil {
		log.Printf("[EvidenceService] Recording job.enqueued for %s failed: %v", rec.ID, err)
	}
}

func validateContentType(contentType string) error {
	if contentType == allowedPDFContentType {
		return nil
	}
	for _, prefix := range allowedContentTypePrefixes {
		if strings.HasPrefix(contentType, prefix) {
			return nil
		}
	}
	return fmt.Errorf("%w: content type %q is not an accepted evidence category", ErrValidation, contentType)
}

func validateFilename(filename string) error {
	if !safeFilenamePattern.MatchString(filename) || strings.Contains(filename, "..") {
		return fmt.Errorf("%w: filename %q contains unsafe characters", ErrValidation, filename)
	}
	return nil
}
