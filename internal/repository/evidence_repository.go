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
	"github.com/lib/pq"

	"github.com/evidentium/custodia/internal/models"
)

// EvidenceRepository persists write-once evidence records. There is no
// delete and no general update: the only mutation ever performed is the
// one-time digest assignment at finalization.
type EvidenceRepository interface {
	Create(ctx context.Context, q sqlx.ExtContext, rec *models.EvidenceRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.EvidenceRecord, error)
	SetDigest(ctx context.Context, q sqlx.ExtContext, id uuid.UUID, sha256 string, finalizedAt time.Time) error
	DigestExistsInCase(ctx context.Context, caseID uuid.UUID, sha256 string, excludeID uuid.UUID) (bool, error)
	DigestCaseCount(ctx context.Context, sha256 string, excludeCaseID uuid.UUID) (int, error)
	ListByCase(ctx context.Context, caseID uuid.UUID) ([]models.EvidenceRecord, error)
}

type postgresEvidenceRepository struct {
	db *sqlx.DB
}

// NewPostgresEvidenceRepository creates the Postgres-backed evidence repository.
func NewPostgresEvidenceRepository(db *sqlx.DB) EvidenceRepository {
	return &postgresEvidenceRepository{db: db}
}

// Create inserts a record with the digest unset.
func (r *postgresEvidenceRepository) Create(
	ctx context.Context,
	q sqlx.ExtContext,
	rec *models.EvidenceRecord,
) error {
	query := `INSERT INTO evidence_records (id, case_id, filename, content_type, declared_size, object_key)
	          VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at`

	err := sqlx.GetContext(ctx, q, &rec.CreatedAt, query,
		rec.ID, rec.CaseID, rec.Filename, rec.ContentType, rec.DeclaredSize, rec.ObjectKey)
	if err != nil {
		log.Printf("[EvidenceRepo] Creating record for %q in case %s failed: %v", rec.Filename, rec.CaseID, err)
		return fmt.Errorf("inserting evidence record: %w", err)
	}

	log.Printf("[EvidenceRepo] Evidence %s (%q) created in case %s", rec.ID, rec.Filename, rec.CaseID)
	return nil
}

// GetByID finds a record or returns ErrEvidenceNotFound.
func (r *postgresEvidenceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.EvidenceRecord, error) {
	query := `SELECT id, case_id, filename, content_type, declared_size, sha256, object_key, created_at, finalized_at
	          FROM evidence_records WHERE id=$1`
	var rec models.EvidenceRecord

	err := r.db.GetContext(ctx, &rec, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEvidenceNotFound
		}
		log.Printf("[EvidenceRepo] Looking up evidence %s failed: %v", id, err)
		return nil, fmt.Errorf("querying evidence record: %w", err)
	}
	return &rec, nil
}

// SetDigest assigns the content digest exactly once. The WHERE clause
// guards against re-finalization racing past the service-level check, and
// the partial unique index on (case_id, sha256) turns a concurrent
// duplicate upload into ErrDuplicateDigest.
func (r *postgresEvidenceRepository) SetDigest(
	ctx context.Context,
	q sqlx.ExtContext,
	id uuid.UUID,
	sha256 string,
	finalizedAt time.Time,
) error {
	query := `UPDATE evidence_records SET sha256=$2, finalized_at=$3
	          WHERE id=$1 AND sha256 IS NULL`

	res, err := q.ExecContext(ctx, query, id, sha256, finalizedAt)
	if err != nil {
		var pgErr *pq.Error
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolationCode {
			log.Printf("[EvidenceRepo] Digest %s already present in case for evidence %s", sha256, id)
			return ErrDuplicateDigest
		}
		log.Printf("[EvidenceRepo] Setting digest for evidence %s failed: %v", id, err)
		return fmt.Errorf("setting evidence digest: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}
	if affected == 0 {
		return ErrAlreadyFinalized
	}

	log.Printf("[EvidenceRepo] Evidence %s finalized with digest %s", id, sha256)
	return nil
}

// DigestExistsInCase reports whether another record in the same case already
// carries this digest. Dedup is case-scoped: the same bytes in two different
// cases are both legitimate.
func (r *postgresEvidenceRepository) DigestExistsInCase(
	ctx context.Context,
	caseID uuid.UUID,
	sha256 string,
	excludeID uuid.UUID,
) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM evidence_records WHERE case_id=$1 AND sha256=$2 AND id<>$3)`
	var exists bool

	if err := r.db.GetContext(ctx, &exists, query, caseID, sha256, excludeID); err != nil {
		log.Printf("[EvidenceRepo] Digest existence check in case %s failed: %v", caseID, err)
		return false, fmt.Errorf("checking digest uniqueness: %w", err)
	}
	return exists, nil
}

// DigestCaseCount counts other cases holding the same bytes, for the
// cross-contamination advisory emitted at finalization.
func (r *postgresEvidenceRepository) DigestCaseCount(
	ctx context.Context,
	sha256 string,
	excludeCaseID uuid.UUID,
) (int, error) {
	query := `SELECT COUNT(DISTINCT case_id) FROM evidence_records WHERE sha256=$1 AND case_id<>$2`
	var count int

	if err := r.db.GetContext(ctx, &count, query, sha256, excludeCaseID); err != nil {
		log.Printf("[EvidenceRepo] Cross-case digest count failed: %v", err)
		return 0, fmt.Errorf("counting cross-case digest matches: %w", err)
	}
	return count, nil
}

// ListByCase returns the case's full evidence inventory ordered by upload
// time ascending, the order the manifest inventory uses.
func (r *postgresEvidenceRepository) ListByCase(
	ctx context.Context,
	caseID uuid.UUID,
) ([]models.EvidenceRecord, error) {
	query := `SELECT id, case_id, filename, content_type, declared_size, sha256, object_key, created_at, finalized_at
	          FROM evidence_records WHERE case_id=$1 ORDER BY created_at ASC, id ASC`

	records := make([]models.EvidenceRecord, 0)
	if err := r.db.SelectContext(ctx, &records, query, caseID); err != nil {
		log.Printf("[EvidenceRepo] Listing evidence for case %s failed: %v", caseID, err)
		return nil, fmt.Errorf("listing evidence records: %w", err)
	}
	return records, nil
}

var (
	ErrEvidenceNotFound = errors.New("evidence record not found")
	ErrAlreadyFinalized = errors.New("evidence record already finalized")
	ErrDuplicateDigest  = errors.New("identical content already recorded in this case")
)
