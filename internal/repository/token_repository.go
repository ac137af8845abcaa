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

const tokenColumns = `id, case_id, secret_hash, evidence_ids, scope, recipient_name, recipient_role,
	created_by, created_at, expires_at, revoked_at, revoked_by, access_count, max_access_count, last_access_at`

// TokenRepository persists capability tokens. The only mutations are the
// atomic access-counter increment and the one-way revocation.
type TokenRepository interface {
	Create(ctx context.Context, q sqlx.ExtContext, t *models.CapabilityToken) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.CapabilityToken, error)
	GetBySecretHash(ctx context.Context, secretHash string) (*models.CapabilityToken, error)
	IncrementAccess(ctx context.Context, id uuid.UUID, now time.Time) (*models.CapabilityToken, error)
	Revoke(ctx context.Context, q sqlx.ExtContext, id uuid.UUID, revokerID int64, now time.Time) (*models.CapabilityToken, error)
	ListByCase(ctx context.Context, caseID uuid.UUID, includeRevoked bool) ([]models.CapabilityToken, error)
}

type postgresTokenRepository struct {
	db *sqlx.DB
}

// NewPostgresTokenRepository creates the Postgres-backed token repository.
func NewPostgresTokenRepository(db *sqlx.DB) TokenRepository {
	return &postgresTokenRepository{db: db}
}

// Create inserts a token record (hash only, never the raw secret).
func (r *postgresTokenRepository) Create(ctx context.Context, q sqlx.ExtContext, t *models.CapabilityToken) error {
	query := `INSERT INTO capability_tokens
	          (id, case_id, secret_hash, evidence_ids, scope, recipient_name, recipient_role,
	           created_by, expires_at, max_access_count)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING created_at`

	err := sqlx.GetContext(ctx, q, &t.CreatedAt, query,
		t.ID, t.CaseID, t.SecretHash, t.EvidenceIDs, t.Scope, t.RecipientName, t.RecipientRole,
		t.CreatedBy, t.ExpiresAt, t.MaxAccessCount)
	if err != nil {
		log.Printf("[TokenRepo] Creating token for case %s failed: %v", t.CaseID, err)
		return fmt.Errorf("inserting capability token: %w", err)
	}

	log.Printf("[TokenRepo] Token %s created for case %s (scope %s)", t.ID, t.CaseID, t.Scope)
	return nil
}

// GetByID finds a token or returns ErrTokenNotFound.
func (r *postgresTokenRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.CapabilityToken, error) {
	query := `SELECT ` + tokenColumns + ` FROM capability_tokens WHERE id=$1`
	var t models.CapabilityToken

	err := r.db.GetContext(ctx, &t, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		log.Printf("[TokenRepo] Looking up token %s failed: %v", id, err)
		return nil, fmt.Errorf("querying capability token: %w", err)
	}
	return &t, nil
}

// GetBySecretHash finds a token by the SHA-256 of its bearer secret.
func (r *postgresTokenRepository) GetBySecretHash(
	ctx context.Context,
	secretHash string,
) (*models.CapabilityToken, error) {
	query := `SELECT ` + tokenColumns + ` FROM capability_tokens WHERE secret_hash=$1`
	var t models.CapabilityToken

	err := r.db.GetContext(ctx, &t, query, secretHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		log.Printf("[TokenRepo] Looking up token by secret hash failed: %v", err)
		return nil, fmt.Errorf("querying capability token by hash: %w", err)
	}
	return &t, nil
}

// IncrementAccess bumps the access counter and last-access time in one
// guarded statement, so concurrent accesses cannot race past
// max_access_count. Zero rows means the token was no longer eligible.
func (r *postgresTokenRepository) IncrementAccess(
	ctx context.Context,
	id uuid.UUID,
	now time.Time,
) (*models.CapabilityToken, error) {
	query := `UPDATE capability_tokens
	          SET access_count = access_count + 1, last_access_at = $2
	          WHERE id=$1 AND revoked_at IS NULL AND expires_at > $2
	            AND (max_access_count IS NULL OR access_count < max_access_count)
	          RETURNING ` + tokenColumns
	var t models.CapabilityToken

	err := r.db.GetContext(ctx, &t, query, id, now)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenNotEligible
		}
		log.Printf("[TokenRepo] Access increment for token %s failed: %v", id, err)
		return nil, fmt.Errorf("incrementing token access counter: %w", err)
	}
	return &t, nil
}

// Revoke sets the revocation time and actor. One-way: a row with revoked_at
// already set is never matched, so revocation can neither repeat nor undo.
func (r *postgresTokenRepository) Revoke(
	ctx context.Context,
	q sqlx.ExtContext,
	id uuid.UUID,
	revokerID int64,
	now time.Time,
) (*models.CapabilityToken, error) {
	query := `UPDATE capability_tokens SET revoked_at=$2, revoked_by=$3
	          WHERE id=$1 AND revoked_at IS NULL
	          RETURNING ` + tokenColumns
	var t models.CapabilityToken

	err := sqlx.GetContext(ctx, q, &t, query, id, now, revokerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Either unknown or already revoked; the caller disambiguates
			// with GetByID.
			return nil, ErrTokenNotEligible
		}
		log.Printf("[TokenRepo] Revoking token %s failed: %v", id, err)
		return nil, fmt.Errorf("revoking capability token: %w", err)
	}

	log.Printf("[TokenRepo] Token %s revoked by user %d", id, revokerID)
	return &t, nil
}

// ListByCase returns the case's tokens, newest first.
func (r *postgresTokenRepository) ListByCase(
	ctx context.Context,
	caseID uuid.UUID,
	includeRevoked bool,
) ([]models.CapabilityToken, error) {
	query := `SELECT ` + tokenColumns + ` FROM capability_tokens WHERE case_id=$1`
	if !includeRevoked {
		query += ` AND revoked_at IS NULL`
	}
	query += ` ORDER BY created_at DESC`

	tokens := make([]models.CapabilityToken, 0)
	if err := r.db.SelectContext(ctx, &tokens, query, caseID); err != nil {
		log.Printf("[TokenRepo] Listing tokens for case %s failed: %v", caseID, err)
		return nil, fmt.Errorf("listing capability tokens: %w", err)
	}
	return tokens, nil
}

var (
	ErrTokenNotFound = errors.New("capability token not found")
	// ErrTokenNotEligible means a guarded update matched no row; the caller
	// re-reads the record to report the precise reason.
	ErrTokenNotEligible = errors.New("capability token not eligible for update")
)
