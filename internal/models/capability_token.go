package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Token scopes.
const (
	ScopeReadOnly = "read_only"
	ScopeExport   = "export"
)

// Recipient roles a capability token may be issued to. Informational for the
// record; authorization comes from the token scope alone.
var RecipientRoles = []string{
	"attorney",
	"co-counsel",
	"expert_witness",
	"auditor",
	"opposing_counsel",
	"insurance_adjuster",
}

// CapabilityToken is a scoped, expiring bearer grant for external access.
//
// Only the SHA-256 of the bearer secret is persisted; the raw secret is
// returned once at creation and never stored. Revocation is one-way: once
// RevokedAt is set the token can never become active again.
type CapabilityToken struct {
	ID             uuid.UUID      `db:"id" json:"id"`
	CaseID         uuid.UUID      `db:"case_id" json:"case_id"`
	SecretHash     string         `db:"secret_hash" json:"-"`
	EvidenceIDs    pq.StringArray `db:"evidence_ids" json:"evidence_ids,omitempty"`
	Scope          string         `db:"scope" json:"scope"`
	RecipientName  string         `db:"recipient_name" json:"recipient_name"`
	RecipientRole  string         `db:"recipient_role" json:"recipient_role"`
	CreatedBy      int64          `db:"created_by" json:"created_by"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	ExpiresAt      time.Time      `db:"expires_at" json:"expires_at"`
	RevokedAt      *time.Time     `db:"revoked_at" json:"revoked_at,omitempty"`
	RevokedBy      *int64         `db:"revoked_by" json:"revoked_by,omitempty"`
	AccessCount    int64          `db:"access_count" json:"access_count"`
	MaxAccessCount *int64         `db:"max_access_count" json:"max_access_count,omitempty"`
	LastAccessAt   *time.Time     `db:"last_access_at" json:"last_access_at,omitempty"`
}

// Active reports whether the token grants access at instant now:
// not revoked, not expired, and under its access ceiling.
func (t *CapabilityToken) Active(now time.Time) bool {
	if t.RevokedAt != nil {
		return false
	}
	if !now.Before(t.ExpiresAt) {
		return false
	}
	if t.MaxAccessCount != nil && t.AccessCount >= *t.MaxAccessCount {
		return false
	}
	return true
}

// AllowsEvidence reports whether the token covers the given evidence id.
// An empty allow-list means the whole case.
func (t *CapabilityToken) AllowsEvidence(evidenceID uuid.UUID) bool {
	if len(t.EvidenceIDs) == 0 {
		return true
	}
	want := evidenceID.String()
	for _, id := range t.EvidenceIDs {
		if id == want {
			return true
		}
	}
	return false
}
