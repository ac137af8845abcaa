// Package audit owns the append-only chain-of-custody trail. Every other
// component reports events through it; nothing else writes audit storage.
package audit

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/evidentium/custodia/internal/models"
	"github.com/evidentium/custodia/internal/repository"
)

// Recorder is the interface services log through. Trail is the production
// implementation; tests substitute mocks.
type Recorder interface {
	// Append writes to the authoritative sink on q, which is the caller's
	// transaction when the event must commit atomically with a business
	// mutation. The file-sink copy is the caller's job, via Mirror, after
	// the transaction commits.
	Append(ctx context.Context, q sqlx.ExtContext, caseID *uuid.UUID, eventType string, payload models.Payload) (*models.AuditEvent, error)

	// Record is the non-transactional form: authoritative write plus
	// file-sink mirror in one call.
	Record(ctx context.Context, caseID *uuid.UUID, eventType string, payload models.Payload) (*models.AuditEvent, error)

	// Mirror best-effort appends an already-committed event to the file
	// sink. Sink failure is logged and swallowed; the authoritative store
	// is the source of truth and a business operation must never fail
	// because the forensic copy did.
	Mirror(ev *models.AuditEvent)

	// Query returns a case's events ordered by creation time ascending.
	Query(ctx context.Context, caseID uuid.UUID, since *time.Time) ([]models.AuditEvent, error)
}

// Trail is the dual-sink audit trail: authoritative Postgres rows plus a
// JSON-line file copy.
type Trail struct {
	db   *sqlx.DB
	repo repository.AuditRepository
	sink *FileSink
}

var _ Recorder = (*Trail)(nil)

// NewTrail wires the trail. sink may be nil, in which case only the
// authoritative store is written.
func NewTrail(db *sqlx.DB, repo repository.AuditRepository, sink *FileSink) *Trail {
	return &Trail{db: db, repo: repo, sink: sink}
}

// Append writes one event to the authoritative sink on q.
func (t *Trail) Append(
	ctx context.Context,
	q sqlx.ExtContext,
	caseID *uuid.UUID,
	eventType string,
	payload models.Payload,
) (*models.AuditEvent, error) {
	ev := &models.AuditEvent{
		ID:        uuid.New(),
		CaseID:    caseID,
		EventType: eventType,
		Payload:   payload,
	}
	if err := t.repo.Insert(ctx, q, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// Record appends outside any caller transaction and mirrors immediately.
func (t *Trail) Record(
	ctx context.Context,
	caseID *uuid.UUID,
	eventType string,
	payload models.Payload,
) (*models.AuditEvent, error) {
	ev, err := t.Append(ctx, t.db, caseID, eventType, payload)
	if err != nil {
		return nil, err
	}
	t.Mirror(ev)
	return ev, nil
}

// Mirror appends the committed event to the file sink, best effort.
func (t *Trail) Mirror(ev *models.AuditEvent) {
	if t.sink == nil || ev == nil {
		return
	}
	if err := t.sink.Append(ev); err != nil {
		// Deliberately swallowed: the authoritative row is committed and
		// the file is only the secondary forensic copy.
		log.Printf("[AuditTrail] File sink append failed for event %s: %v", ev.ID, err)
	}
}

// Query returns the case's events in creation order.
func (t *Trail) Query(ctx context.Context, caseID uuid.UUID, since *time.Time) ([]models.AuditEvent, error) {
	return t.repo.ListByCase(ctx, caseID, since)
}
