package models

import "time"

// Manifest is a point-in-time, signed snapshot of a case. It is derived on
// export and never persisted server-side; the client keeps its own copy.
//
// The Case/Evidence/Audit sections are generic maps rather than typed
// structs so that the canonical serialization (lexicographically sorted
// keys, no incidental whitespace) is identical whether the sections were
// built server-side or round-tripped through a client's JSON parser.
type Manifest struct {
	Case        map[string]any   `json:"case"`
	Evidence    []map[string]any `json:"evidence"`
	Audit       []map[string]any `json:"audit"`
	SHA256      string           `json:"manifest_sha256"`
	HMAC        string           `json:"manifest_hmac"`
	GeneratedAt time.Time        `json:"generated_at"`
}

// ManifestVerification is the result of re-deriving a manifest's digest and
// signature from its plaintext sections.
type ManifestVerification struct {
	SHA256Valid bool   `json:"sha256_valid"`
	HMACValid   bool   `json:"hmac_valid"`
	Detail      string `json:"detail"`
}

// DigestMismatch describes one evidence blob whose recomputed digest
// disagrees with the stored one.
type DigestMismatch struct {
	EvidenceID       string `json:"evidence_id"`
	Filename         string `json:"filename"`
	StoredSHA256     string `json:"stored_sha256"`
	RecomputedSHA256 string `json:"recomputed_sha256"`
	Verdict          string `json:"verdict"`
}

// OrderingViolation describes an audit event whose timestamp precedes its
// predecessor's.
type OrderingViolation struct {
	EventID     string    `json:"event_id"`
	EventType   string    `json:"event_type"`
	CreatedAt   time.Time `json:"created_at"`
	PrevEventID string    `json:"prev_event_id"`
	PrevCreated time.Time `json:"prev_created_at"`
}

// ReplayReport is the result of independently re-deriving a case's
// integrity proofs from the blob store and the audit trail.
type ReplayReport struct {
	OK                 bool                `json:"ok"`
	EventsChecked      int                 `json:"events_checked"`
	EvidenceChecked    int                 `json:"evidence_checked"`
	SHA256Mismatches   []DigestMismatch    `json:"sha256_mismatches"`
	OrderingViolations []OrderingViolation `json:"ordering_violations"`
	MissingAuditEvents []string            `json:"missing_audit_events"`
	Detail             string              `json:"detail"`
}
