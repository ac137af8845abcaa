package models

import (
	"time"

	"github.com/google/uuid"
)

// EvidenceRecord is the write-once identity of one uploaded blob.
//
// SHA256 is nil until the record is finalized; once set it never changes and
// is unique within (case_id, sha256). Records are never deleted.
type EvidenceRecord struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	CaseID       uuid.UUID  `db:"case_id" json:"case_id"`
	Filename     string     `db:"filename" json:"filename"`
	ContentType  string     `db:"content_type" json:"content_type"`
	DeclaredSize int64      `db:"declared_size" json:"declared_size"`
	SHA256       *string    `db:"sha256" json:"sha256,omitempty"`
	ObjectKey    string     `db:"object_key" json:"object_key"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	FinalizedAt  *time.Time `db:"finalized_at" json:"finalized_at,omitempty"`
}

// Finalized reports whether the record has a content digest assigned.
func (e *EvidenceRecord) Finalized() bool {
	return e.SHA256 != nil
}
