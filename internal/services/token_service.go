package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/evidentium/custodia/internal/audit"
	"github.com/evidentium/custodia/internal/digest"
	"github.com/evidentium/custodia/internal/models"
	"github.com/evidentium/custodia/internal/repository"
)

const (
	minExpiryDays = 1
	maxExpiryDays = 90

	// 32 random bytes rendered as 64 lowercase hex characters.
	tokenSecretBytes = 32
)

// CreateTokenInput collects the parameters for issuing a capability token.
type CreateTokenInput struct {
	CaseID         uuid.UUID
	CreatorID      int64
	RecipientName  string
	RecipientRole  string
	Scope          string
	ExpiresInDays  int
	MaxAccessCount *int64
	EvidenceIDs    []uuid.UUID
}

// TokenService issues, resolves, and revokes capability tokens. The raw
// bearer secret exists only in the creation response; everywhere else the
// system handles its SHA-256.
type TokenService interface {
	Create(ctx context.Context, in CreateTokenInput) (*models.CapabilityToken, string, error)
	Resolve(ctx context.Context, rawSecret string) (*models.CapabilityToken, error)
	RecordAccess(ctx context.Context, token *models.CapabilityToken, endpoint string) (*models.CapabilityToken, error)
	Revoke(ctx context.Context, tokenID uuid.UUID, revokerID int64) (*models.CapabilityToken, error)
	ListForCase(ctx context.Context, caseID uuid.UUID, includeRevoked bool) ([]models.CapabilityToken, error)
}

var _ TokenService = (*tokenService)(nil)

type tokenService struct {
	db    *sqlx.DB
	repo  repository.TokenRepository
	trail audit.Recorder
	now   func() time.Time
}

// NewTokenService creates the token service with the wall clock.
func NewTokenService(db *sqlx.DB, repo repository.TokenRepository, trail audit.Recorder) TokenService {
	return NewTokenServiceWithClock(db, repo, trail, time.Now)
}

// NewTokenServiceWithClock lets tests drive expiry with a simulated clock.
func NewTokenServiceWithClock(
	db *sqlx.DB,
	repo repository.TokenRepository,
	trail audit.Recorder,
	now func() time.Time,
) TokenService {
	return &tokenService{db: db, repo: repo, trail: trail, now: now}
}

// Create validates the grant, generates the bearer secret, and persists
// only its hash. The plaintext secret is returned exactly once and is never
// retrievable again, by anyone, including the server.
func (s *tokenService) Create(ctx context.Context, in CreateTokenInput) (*models.CapabilityToken, string, error) {
	if in.Scope != models.ScopeReadOnly && in.Scope != models.ScopeExport {
		return nil, "", fmt.Errorf("%w: %q", ErrInvalidScope, in.Scope)
	}
	if !validRecipientRole(in.RecipientRole) {
		return nil, "", fmt.Errorf("%w: %q", ErrInvalidRole, in.RecipientRole)
	}
	if in.ExpiresInDays < minExpiryDays || in.ExpiresInDays > maxExpiryDays {
		return nil, "", fmt.Errorf("%w: got %d days", ErrInvalidExpiry, in.ExpiresInDays)
	}
	if in.MaxAccessCount != nil && *in.MaxAccessCount < 1 {
		return nil, "", fmt.Errorf("%w: max access count must be positive", ErrValidation)
	}

	secret, err := generateSecret()
	if err != nil {
		return nil, "", fmt.Errorf("generating token secret: %w", err)
	}

	now := s.now().UTC()
	token := &models.CapabilityToken{
		ID:             uuid.New(),
		CaseID:         in.CaseID,
		SecretHash:     digest.SHA256Text(secret),
		Scope:          in.Scope,
		RecipientName:  in.RecipientName,
		RecipientRole:  in.RecipientRole,
		CreatedBy:      in.CreatorID,
		ExpiresAt:      now.AddDate(0, 0, in.ExpiresInDays),
		MaxAccessCount: in.MaxAccessCount,
	}
	if len(in.EvidenceIDs) > 0 {
		ids := make(pq.StringArray, 0, len(in.EvidenceIDs))
		for _, id := range in.EvidenceIDs {
			ids = append(ids, id.String())
		}
		token.EvidenceIDs = ids
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, "", fmt.Errorf("beginning token transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.repo.Create(ctx, tx, token); err != nil {
		return nil, "", err
	}
	// The audit payload carries the token id and never the secret or its
	// hash; the raw value must not appear in any log or sink.
	ev, err := s.trail.Append(ctx, tx, &in.CaseID, models.EventTokenCreated, models.Payload{
		"actor_id":       in.CreatorID,
		"expires_at":     token.ExpiresAt.UTC().Format(time.RFC3339Nano),
		"recipient_role": in.RecipientRole,
		"scope":          in.Scope,
		"token_id":       token.ID.String(),
	})
	if err != nil {
		return nil, "", err
	}
	if err := tx.Commit(); err != nil {
		return nil, "", fmt.Errorf("committing token transaction: %w", err)
	}
	s.trail.Mirror(ev)

	log.Printf("[TokenService] Token %s issued for case %s (scope %s, %d days)",
		token.ID, in.CaseID, in.Scope, in.ExpiresInDays)
	return token, secret, nil
}

// Resolve hashes the presented secret, looks the token up, and classifies
// ineligibility precisely.
func (s *tokenService) Resolve(ctx context.Context, rawSecret string) (*models.CapabilityToken, error) {
	token, err := s.repo.GetBySecretHash(ctx, digest.SHA256Text(rawSecret))
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if err := s.classify(token); err != nil {
		return nil, err
	}
	return token, nil
}

// RecordAccess bumps the access counter atomically and logs the access.
// The guarded update is what prevents concurrent use from exceeding
// max_access_count.
func (s *tokenService) RecordAccess(
	ctx context.Context,
	token *models.CapabilityToken,
	endpoint string,
) (*models.CapabilityToken, error) {
	updated, err := s.repo.IncrementAccess(ctx, token.ID, s.now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotEligible) {
			return nil, s.reclassify(ctx, token.ID)
		}
		return nil, err
	}

	if _, err := s.trail.Record(ctx, &updated.CaseID, models.EventTokenAccess, models.Payload{
		"access_count":   updated.AccessCount,
		"endpoint":       endpoint,
		"recipient_name": updated.RecipientName,
		"scope":          updated.Scope,
		"token_id":       updated.ID.String(),
	}); err != nil {
		return nil, fmt.Errorf("recording token access: %w", err)
	}
	return updated, nil
}

// Revoke is a one-way transition; there is deliberately no unrevoke, and
// the revocation record itself is never deleted.
func (s *tokenService) Revoke(
	ctx context.Context,
	tokenID uuid.UUID,
	revokerID int64,
) (*models.CapabilityToken, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning revoke transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	token, err := s.repo.Revoke(ctx, tx, tokenID, revokerID, s.now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotEligible) {
			// Disambiguate: unknown id vs already revoked.
			existing, getErr := s.repo.GetByID(ctx, tokenID)
			if getErr != nil {
				if errors.Is(getErr, repository.ErrTokenNotFound) {
					return nil, ErrTokenNotFound
				}
				return nil, getErr
			}
			if existing.RevokedAt != nil {
				return nil, ErrAlreadyRevoked
			}
			return nil, fmt.Errorf("revoking token %s: update matched no row", tokenID)
		}
		return nil, err
	}

	ev, err := s.trail.Append(ctx, tx, &token.CaseID, models.EventTokenRevoked, models.Payload{
		"revoked_by": revokerID,
		"token_id":   token.ID.String(),
	})
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing revoke transaction: %w", err)
	}
	s.trail.Mirror(ev)

	log.Printf("[TokenService] Token %s revoked by user %d", tokenID, revokerID)
	return token, nil
}

// ListForCase enumerates a case's tokens, newest first.
func (s *tokenService) ListForCase(
	ctx context.Context,
	caseID uuid.UUID,
	includeRevoked bool,
) ([]models.CapabilityToken, error) {
	return s.repo.ListByCase(ctx, caseID, includeRevoked)
}

func (s *tokenService) classify(token *models.CapabilityToken) error {
	now := s.now().UTC()
	switch {
	case token.RevokedAt != nil:
		return ErrTokenRevoked
	case !now.Before(token.ExpiresAt):
		return ErrTokenExpired
	case token.MaxAccessCount != nil && token.AccessCount >= *token.MaxAccessCount:
		return ErrAccessLimitReached
	}
	return nil
}

func (s *tokenService) reclassify(ctx context.Context, tokenID uuid.UUID) error {
	token, err := s.repo.GetByID(ctx, tokenID)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return ErrInvalidToken
		}
		return err
	}
	if err := s.classify(token); err != nil {
		return err
	}
	// The guarded update failed but the record looks eligible; a
	// concurrent access raced us to the last slot.
	return ErrAccessLimitReached
}

func validRecipientRole(role string) bool {
	for _, r := range models.RecipientRoles {
		if r == role {
			return true
		}
	}
	return false
}

func generateSecret() (string, error) {
	buf := make([]byte, tokenSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
