package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/evidentium/custodia/internal/audit"
	"github.com/evidentium/custodia/internal/digest"
	"github.com/evidentium/custodia/internal/models"
	"github.com/evidentium/custodia/internal/repository"
)

// ManifestService builds signed, point-in-time case snapshots. The manifest
// is returned to the caller and never persisted server-side; the client is
// the system of record for any copy it keeps.
type ManifestService interface {
	Export(ctx context.Context, caseID uuid.UUID) (*models.Manifest, error)
}

var _ ManifestService = (*manifestService)(nil)

type manifestService struct {
	caseRepo     repository.CaseRepository
	evidenceRepo repository.EvidenceRepository
	trail        audit.Recorder
	signingKey   []byte
	now          func() time.Time
}

// NewManifestService creates the manifest service. signingKey is the
// server-held HMAC key; it is never exposed to clients.
func NewManifestService(
	caseRepo repository.CaseRepository,
	evidenceRepo repository.EvidenceRepository,
	trail audit.Recorder,
	signingKey []byte,
) ManifestService {
	return &manifestService{
		caseRepo:     caseRepo,
		evidenceRepo: evidenceRepo,
		trail:        trail,
		signingKey:   signingKey,
		now:          time.Now,
	}
}

// Export snapshots the case, its evidence inventory (upload order) and its
// full audit trail (creation order), canonicalizes the three as one JSON
// object, and signs the exact bytes. Concurrent uploads may be absent from
// the snapshot; it reflects a consistent point in time, not future
// completeness.
func (s *manifestService) Export(ctx context.Context, caseID uuid.UUID) (*models.Manifest, error) {
	c, err := s.caseRepo.GetByID(ctx, caseID)
	if err != nil {
		if errors.Is(err, repository.ErrCaseNotFound) {
			return nil, ErrCaseNotFound
		}
		return nil, fmt.Errorf("loading case for manifest: %w", err)
	}

	records, err := s.evidenceRepo.ListByCase(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("loading evidence inventory: %w", err)
	}
	events, err := s.trail.Query(ctx, caseID, nil)
	if err != nil {
		return nil, fmt.Errorf("loading audit trail: %w", err)
	}

	caseSec := caseSection(c)
	evidenceSec := evidenceSection(records)
	auditSec := auditSection(events)

	b, err := canonicalBytes(caseSec, evidenceSec, auditSec)
	if err != nil {
		return nil, err
	}

	m := &models.Manifest{
		Case:        caseSec,
		Evidence:    evidenceSec,
		Audit:       auditSec,
		SHA256:      digest.SHA256(b),
		HMAC:        digest.HMACSHA256(s.signingKey, b),
		GeneratedAt: s.now().UTC(),
	}

	// The export itself is custody-relevant, but the event is recorded
	// after the snapshot so the manifest does not contain it.
	if _, err := s.trail.Record(ctx, &caseID, models.EventManifestExported, models.Payload{
		"case_id":         caseID.String(),
		"evidence_count":  len(records),
		"event_count":     len(events),
		"manifest_sha256": m.SHA256,
	}); err != nil {
		log.Printf("[ManifestService] Recording manifest.exported for case %s failed: %v", caseID, err)
		return nil, fmt.Errorf("recording manifest export: %w", err)
	}

	log.Printf("[ManifestService] Manifest exported for case %s (%d evidence, %d events, sha256 %s)",
		caseID, len(records), len(events), m.SHA256)
	return m, nil
}
