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
	"github.com/evidentium/custodia/internal/storage"
)

// Per-blob budget when re-downloading originals during replay.
const replayDownloadTimeout = 2 * time.Minute

// ReplayService re-derives integrity proofs after the fact. VerifyManifest
// is a pure function over client-supplied data; AuditReplay goes back to
// the blob store and the audit trail.
type ReplayService interface {
	VerifyManifest(caseSec, evidence, auditSec any, claimedSHA256, claimedHMAC string) models.ManifestVerification
	AuditReplay(ctx context.Context, caseID uuid.UUID) (*models.ReplayReport, error)
}

var _ ReplayService = (*replayService)(nil)

type replayService struct {
	evidenceRepo repository.EvidenceRepository
	trail        audit.Recorder
	store        storage.BlobStore
	signingKey   []byte
}

// NewReplayService creates the replay verifier.
func NewReplayService(
	evidenceRepo repository.EvidenceRepository,
	trail audit.Recorder,
	store storage.BlobStore,
	signingKey []byte,
) ReplayService {
	return &replayService{
		evidenceRepo: evidenceRepo,
		trail:        trail,
		store:        store,
		signingKey:   signingKey,
	}
}

// VerifyManifest recomputes the canonical bytes from the supplied sections
// and checks the claimed digest and HMAC independently, so partial
// integrity can be communicated precisely. The HMAC comparison is constant
// time. No storage is touched.
func (s *replayService) VerifyManifest(
	caseSec, evidence, auditSec any,
	claimedSHA256, claimedHMAC string,
) models.ManifestVerification {
	b, err := canonicalBytes(caseSec, evidence, auditSec)
	if err != nil {
		return models.ManifestVerification{
			Detail: fmt.Sprintf("manifest could not be canonicalized: %v", err),
		}
	}

	shaValid := digest.EqualHex(digest.SHA256(b), claimedSHA256)
	hmacValid := digest.VerifyHMAC(s.signingKey, b, claimedHMAC)

	var detail string
	switch {
	case shaValid && hmacValid:
		detail = "verified: digest and signature both match the manifest content"
	case shaValid && !hmacValid:
		detail = "signature mismatch: content digest matches but the HMAC does not; " +
			"the manifest was not signed by this server's current key (key rotation, key compromise, or a spoofed manifest)"
	case !shaValid && hmacValid:
		// Should be unreachable: a valid HMAC over different bytes would
		// contradict the digest check.
		detail = "anomaly: signature verifies but the digest does not; treat the verification tooling itself as suspect"
	default:
		detail = "tampered: neither the digest nor the signature matches the manifest content"
	}

	return models.ManifestVerification{SHA256Valid: shaValid, HMACValid: hmacValid, Detail: detail}
}

// AuditReplay re-derives every finalized evidence digest from the blob
// store and checks the audit trail's internal consistency. Integrity
// failures are reported in the result, never swallowed: the caller must be
// able to tell "checked and failed" from "could not check" (the latter is
// an error return).
func (s *replayService) AuditReplay(ctx context.Context, caseID uuid.UUID) (*models.ReplayReport, error) {
	records, err := s.evidenceRepo.ListByCase(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("loading evidence for replay: %w", err)
	}
	events, err := s.trail.Query(ctx, caseID, nil)
	if err != nil {
		return nil, fmt.Errorf("loading audit trail for replay: %w", err)
	}

	report := &models.ReplayReport{
		EventsChecked:      len(events),
		SHA256Mismatches:   []models.DigestMismatch{},
		OrderingViolations: []models.OrderingViolation{},
		MissingAuditEvents: []string{},
	}

	// Check 1: recompute every finalized blob's digest from the store.
	for i := range records {
		rec := &records[i]
		if !rec.Finalized() {
			continue
		}
		report.EvidenceChecked++

		recomputed, err := s.redownloadDigest(ctx, rec.ObjectKey)
		if err != nil {
			if errors.Is(err, storage.ErrObjectNotFound) {
				// A finalized record whose original is gone is an integrity
				// failure, not an IO hiccup: the store is meant to be WORM.
				report.SHA256Mismatches = append(report.SHA256Mismatches, models.DigestMismatch{
					EvidenceID:       rec.ID.String(),
					Filename:         rec.Filename,
					StoredSHA256:     *rec.SHA256,
					RecomputedSHA256: "",
					Verdict:          "original blob missing from store",
				})
				continue
			}
			return nil, fmt.Errorf("re-downloading evidence %s: %w", rec.ID, err)
		}

		if !digest.EqualHex(recomputed, *rec.SHA256) {
			report.SHA256Mismatches = append(report.SHA256Mismatches, models.DigestMismatch{
				EvidenceID:       rec.ID.String(),
				Filename:         rec.Filename,
				StoredSHA256:     *rec.SHA256,
				RecomputedSHA256: recomputed,
				Verdict:          "stored digest does not match blob content; evidence altered after finalization",
			})
		}
	}

	// Check 2: the trail must be monotonic, since it reconstructs
	// real-world event order.
	for i := 1; i < len(events); i++ {
		if events[i].CreatedAt.Before(events[i-1].CreatedAt) {
			report.OrderingViolations = append(report.OrderingViolations, models.OrderingViolation{
				EventID:     events[i].ID.String(),
				EventType:   events[i].EventType,
				CreatedAt:   events[i].CreatedAt,
				PrevEventID: events[i-1].ID.String(),
				PrevCreated: events[i-1].CreatedAt,
			})
		}
	}

	// Check 3: every finalized record must have its evidence.complete
	// event; a finalized record nothing logged cannot be explained.
	completed := make(map[string]bool)
	for i := range events {
		if events[i].EventType != models.EventEvidenceComplete {
			continue
		}
		if id, ok := events[i].Payload["evidence_id"].(string); ok {
			completed[id] = true
		}
	}
	for i := range records {
		if records[i].Finalized() && !completed[records[i].ID.String()] {
			report.MissingAuditEvents = append(report.MissingAuditEvents, records[i].ID.String())
		}
	}

	report.OK = len(report.SHA256Mismatches) == 0 &&
		len(report.OrderingViolations) == 0 &&
		len(report.MissingAuditEvents) == 0

	if report.OK {
		report.Detail = fmt.Sprintf("replay clean: %d evidence item(s) re-derived, %d audit event(s) checked",
			report.EvidenceChecked, report.EventsChecked)
	} else {
		report.Detail = fmt.Sprintf("replay found %d digest mismatch(es), %d ordering violation(s), %d missing audit event(s)",
			len(report.SHA256Mismatches), len(report.OrderingViolations), len(report.MissingAuditEvents))
		log.Printf("[ReplayService] Integrity violation in case %s: %s", caseID, report.Detail)
	}

	return report, nil
}

func (s *replayService) redownloadDigest(ctx context.Context, objectKey string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, replayDownloadTimeout)
	defer cancel()

	rc, err := s.store.Download(ctx, objectKey)
	if err != nil {
		return "", err
	}
	defer func() {
		if closeErr := rc.Close(); closeErr != nil {
			log.Printf("[ReplayService] Closing blob reader for %q: %v", objectKey, closeErr)
		}
	}()

	sum, _, err := digest.SHA256Reader(rc)
	if err != nil {
		return "", fmt.Errorf("hashing blob %q: %w", objectKey, err)
	}
	return sum, nil
}
