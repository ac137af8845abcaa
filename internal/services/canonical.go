package services

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/evidentium/custodia/internal/models"
)

// Canonical manifest serialization. The digest and HMAC are computed over
// exact bytes, so identical logical content must always serialize to
// identical bytes: every section is built from generic maps (encoding/json
// sorts map keys lexicographically and emits no incidental whitespace), and
// timestamps are pre-rendered as RFC3339 UTC strings so they survive a
// round trip through a client's JSON parser unchanged.

func canonicalTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func caseSection(c *models.Case) map[string]any {
	return map[string]any{
		"case_number": c.CaseNumber,
		"created_at":  canonicalTime(c.CreatedAt),
		"id":          c.ID.String(),
		"title":       c.Title,
	}
}

func evidenceSection(records []models.EvidenceRecord) []map[string]any {
	out := make([]map[string]any, 0, len(records))
	for i := range records {
		rec := &records[i]
		entry := map[string]any{
			"content_type":  rec.ContentType,
			"declared_size": rec.DeclaredSize,
			"filename":      rec.Filename,
			"id":            rec.ID.String(),
			"object_key":    rec.ObjectKey,
			"sha256":        nil,
			"uploaded_at":   canonicalTime(rec.CreatedAt),
		}
		if rec.SHA256 != nil {
			entry["sha256"] = *rec.SHA256
		}
		out = append(out, entry)
	}
	return out
}

func auditSection(events []models.AuditEvent) []map[string]any {
	out := make([]map[string]any, 0, len(events))
	for i := range events {
		ev := &events[i]
		payload := ev.Payload
		if payload == nil {
			payload = models.Payload{}
		}
		entry := map[string]any{
			"case_id":    nil,
			"created_at": canonicalTime(ev.CreatedAt),
			"event_id":   ev.ID.String(),
			"event_type": ev.EventType,
			"payload":    payload,
		}
		if ev.CaseID != nil {
			entry["case_id"] = ev.CaseID.String()
		}
		out = append(out, entry)
	}
	return out
}

// canonicalBytes produces the hash pre-image: one JSON object holding the
// three sections under sorted keys. Accepts any section values so the same
// function serves both server-side export and verification of
// client-supplied sections.
func canonicalBytes(caseSec, evidence, audit any) ([]byte, error) {
	b, err := json.Marshal(map[string]any{
		"audit":    audit,
		"case":     caseSec,
		"evidence": evidence,
	})
	if err != nil {
		return nil, fmt.Errorf("canonicalizing manifest: %w", err)
	}
	return b, nil
}
