package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Closed vocabulary of audit event types. Access events additionally use the
// gated action name as the event type (see internal/authz).
const (
	EventCaseCreated      = "case.created"
	EventEvidenceInit     = "evidence.init"
	EventEvidenceComplete = "evidence.complete"
	EventCrossCaseMatch   = "evidence.cross_case_match"
	EventJobEnqueued      = "job.enqueued"
	EventJobFailed        = "job.failed"
	EventArtifactCreated  = "artifact.created"
	EventManifestExported = "manifest.exported"
	EventTokenCreated     = "token.created"
	EventTokenAccess      = "token.access"
	EventTokenRevoked     = "token.revoked"
)

// Payload is the structured, JSON-compatible detail of an audit event.
// Stored as jsonb.
type Payload map[string]any

// Value implements driver.Valuer for jsonb columns.
func (p Payload) Value() (driver.Value, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(p)
}

// Scan implements sql.Scanner for jsonb columns.
func (p *Payload) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	case nil:
		*p = Payload{}
		return nil
	default:
		return errors.New("unsupported source type for audit payload")
	}
}

// AuditEvent is one append-only entry in the chain-of-custody trail.
// CaseID is nil for case-independent events. Events are never mutated or
// deleted after insertion.
type AuditEvent struct {
	ID        uuid.UUID  `db:"id" json:"event_id"`
	CaseID    *uuid.UUID `db:"case_id" json:"case_id"`
	EventType string     `db:"event_type" json:"event_type"`
	Payload   Payload    `db:"payload" json:"payload"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}
