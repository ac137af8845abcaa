package models

import "github.com/google/uuid"

// ExhibitRequest names one evidence record to include in a court package,
// in caller-supplied order.
type ExhibitRequest struct {
	EvidenceID  uuid.UUID `json:"evidence_id"`
	Description string    `json:"description"`
}

// ExhibitEntry is one numbered exhibit in a court package index. Export-time
// only, never persisted.
type ExhibitEntry struct {
	Ordinal     string `json:"ordinal"` // 3-digit, 1-based, input order
	EvidenceID  string `json:"evidence_id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
	SHA256      string `json:"sha256"`
	Description string `json:"description"`
}

// PackageResult summarizes a built court package.
type PackageResult struct {
	ArchiveSHA256    string         `json:"archive_sha256"`
	IndexSHA256      string         `json:"index_sha256"`
	ExhibitsWritten  int            `json:"exhibits_written"`
	ExhibitsSkipped  int            `json:"exhibits_skipped"`
	Exhibits         []ExhibitEntry `json:"exhibits"`
	ArchiveSizeBytes int64          `json:"archive_size_bytes"`
}
