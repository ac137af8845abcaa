package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/evidentium/custodia/internal/models"
)

// AuditRepository is the authoritative, append-only audit sink. Insert is
// the only write; nothing ever updates or deletes a row.
type AuditRepository interface {
	Insert(ctx context.Context, q sqlx.ExtContext, ev *models.AuditEvent) error
	ListByCase(ctx context.Context, caseID uuid.UUID, since *time.Time) ([]models.AuditEvent, error)
}

type postgresAuditRepository struct {
	db *sqlx.DB
}

// NewPostgresAuditRepository creates the Postgres-backed audit repository.
func NewPostgresAuditRepository(db *sqlx.DB) AuditRepository {
	return &postgresAuditRepository{db: db}
}

// Insert appends one event. Runs on q so the caller can commit the event
// atomically with the business mutation that triggered it. created_at is
// assigned by the database clock, which keeps insertion order and timestamp
// order aligned within the sink.
func (r *postgresAuditRepository) Insert(ctx context.Context, q sqlx.ExtContext, ev *models.AuditEvent) error {
	query := `INSERT INTO audit_events (id, case_id, event_type, payload)
	          VALUES ($1, $2, $3, $4) RETURNING created_at`

	err := sqlx.GetContext(ctx, q, &ev.CreatedAt, query, ev.ID, ev.CaseID, ev.EventType, ev.Payload)
	if err != nil {
		log.Printf("[AuditRepo] Appending %s event failed: %v", ev.EventType, err)
		return fmt.Errorf("inserting audit event: %w", err)
	}
	return nil
}

// ListByCase returns the case's events ordered by creation time ascending.
func (r *postgresAuditRepository) ListByCase(
	ctx context.Context,
	caseID uuid.UUID,
	since *time.Time,
) ([]models.AuditEvent, error) {
	query := `SELECT id, case_id, event_type, payload, created_at
	          FROM audit_events WHERE case_id=$1`
	args := []any{caseID}
	if since != nil {
		query += ` AND created_at >= $2`
		args = append(args, *since)
	}
	query += ` ORDER BY created_at ASC, id ASC`

	events := make([]models.AuditEvent, 0)
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		log.Printf("[AuditRepo] Listing events for case %s failed: %v", caseID, err)
		return nil, fmt.Errorf("listing audit events: %w", err)
	}
	return events, nil
}

var (
	ErrAuditEventNotFound = errors.New("audit event not found")
)
