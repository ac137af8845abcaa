package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/evidentium/custodia/internal/audit"
	"github.com/evidentium/custodia/internal/models"
)

const purposeCtxKey contextKey = "accessPurpose"

// Closed vocabulary of access purposes. Anything else is rejected; free
// text would make the audit trail unanalyzable.
var validPurposes = map[string]bool{
	"case_review":                 true,
	"exhibit_preparation":         true,
	"court_filing":                true,
	"internal_audit":              true,
	"compliance_review":           true,
	"opposing_counsel_production": true,
	"supervisory_review":          true,
	"quality_assurance":           true,
	"training":                    true,
	"investigation":               true,
}

// AccessPurpose is what the gate attaches to the request context once the
// stated purpose has been validated and logged.
type AccessPurpose struct {
	Purpose string
	Action  string
}

// RequirePurpose gates a sensitive read/download/export path: the request
// must state an enumerated purpose, and the access is written to the audit
// trail before any evidence bytes or metadata go out. The audit write is
// part of the gate, not left to handlers, so an unlogged access cannot
// happen by omission.
func RequirePurpose(trail audit.Recorder, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			purpose, found := extractPurpose(r)
			if !found {
				http.Error(w, "access purpose is required", http.StatusBadRequest)
				return
			}
			if !validPurposes[purpose] {
				http.Error(w, "access purpose not recognized", http.StatusUnprocessableEntity)
				return
			}

			actor, ok := ActorFromContext(r.Context())
			if !ok {
				log.Printf("[PurposeGate] No actor in context for %s %s", r.Method, r.URL.Path)
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}

			if _, err := trail.Record(r.Context(), routeCaseID(r), action, models.Payload{
				"actor_id":   actor.UserID,
				"actor_name": actor.DisplayName,
				"endpoint":   r.URL.Path,
				"method":     r.Method,
				"purpose":    purpose,
			}); err != nil {
				// Access that cannot be logged must not be served.
				log.Printf("[PurposeGate] Audit write failed for %s %s: %v", r.Method, r.URL.Path, err)
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}

			ctx := context.WithValue(r.Context(), purposeCtxKey, AccessPurpose{Purpose: purpose, Action: action})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// routeCaseID attributes the access to the case when the gated route is
// case-scoped, so the event shows up in that case's trail and manifest.
func routeCaseID(r *http.Request) *uuid.UUID {
	raw := chi.URLParam(r, "caseID")
	if raw == "" {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &id
}

// PurposeFromContext returns the validated purpose attached by the gate.
func PurposeFromContext(ctx context.Context) (AccessPurpose, bool) {
	p, ok := ctx.Value(purposeCtxKey).(AccessPurpose)
	return p, ok
}

// extractPurpose looks for the purpose, in priority order: query parameter,
// JSON body field, form field, dedicated header. Normalized to trimmed
// lowercase.
func extractPurpose(r *http.Request) (string, bool) {
	if p := r.URL.Query().Get("purpose"); p != "" {
		return normalize(p), true
	}

	if p, ok := purposeFromJSONBody(r); ok {
		return p, true
	}

	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/x-www-form-urlencoded") || strings.HasPrefix(ct, "multipart/form-data") {
		if err := r.ParseMultipartForm(1 << 20); err == nil || err == http.ErrNotMultipart {
			if p := r.PostFormValue("purpose"); p != "" {
				return normalize(p), true
			}
		}
	}

	if p := r.Header.Get("X-Access-Purpose"); p != "" {
		return normalize(p), true
	}
	return "", false
}

// purposeFromJSONBody peeks at a JSON body for a "purpose" field, then
// restores the body so the handler can decode it again.
func purposeFromJSONBody(r *http.Request) (string, bool) {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") || r.Body == nil {
		return "", false
	}
	body, err := io.ReadAll(r.Body)
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil || len(body) == 0 {
		return "", false
	}

	var probe struct {
		Purpose string `json:"purpose"`
	}
	if err := json.Unmarshal(body, &probe); err != nil || probe.Purpose == "" {
		return "", false
	}
	return normalize(probe.Purpose), true
}

func normalize(p string) string {
	return strings.ToLower(strings.TrimSpace(p))
}
