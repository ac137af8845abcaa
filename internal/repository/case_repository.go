package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/evidentium/custodia/internal/models"
)

// CaseRepository persists legal cases.
type CaseRepository interface {
	Create(ctx context.Context, q sqlx.ExtContext, c *models.Case) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Case, error)
	List(ctx context.Context, limit, offset int) ([]models.Case, error)
}

type postgresCaseRepository struct {
	db *sqlx.DB
}

// NewPostgresCaseRepository creates the Postgres-backed case repository.
func NewPostgresCaseRepository(db *sqlx.DB) CaseRepository {
	return &postgresCaseRepository{db: db}
}

// Create inserts a case. Runs on q so the caller can bundle it with the
// case.created audit write in one transaction.
func (r *postgresCaseRepository) Create(ctx context.Context, q sqlx.ExtContext, c *models.Case) error {
	query := `INSERT INTO cases (id, case_number, title, created_by)
	          VALUES ($1, $2, $3, $4) RETURNING created_at`

	err := sqlx.GetContext(ctx, q, &c.CreatedAt, query, c.ID, c.CaseNumber, c.Title, c.CreatedBy)
	if err != nil {
		log.Printf("[CaseRepo] Creating case %q failed: %v", c.CaseNumber, err)
		return fmt.Errorf("inserting case: %w", err)
	}

	log.Printf("[CaseRepo] Case %s (%q) created", c.ID, c.CaseNumber)
	return nil
}

// GetByID finds a case or returns ErrCaseNotFound.
func (r *postgresCaseRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Case, error) {
	query := `SELECT id, case_number, title, created_by, created_at FROM cases WHERE id=$1`
	var c models.Case

	err := r.db.GetContext(ctx, &c, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCaseNotFound
		}
		log.Printf("[CaseRepo] Looking up case %s failed: %v", id, err)
		return nil, fmt.Errorf("querying case: %w", err)
	}
	return &c, nil
}

// List returns cases newest first.
func (r *postgresCaseRepository) List(ctx context.Context, limit, offset int) ([]models.Case, error) {
	query := `SELECT id, case_number, title, created_by, created_at
	          FROM cases ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	cases := make([]models.Case, 0, limit)
	if err := r.db.SelectContext(ctx, &cases, query, limit, offset); err != nil {
		log.Printf("[CaseRepo] Listing cases failed: %v", err)
		return nil, fmt.Errorf("listing cases: %w", err)
	}
	return cases, nil
}

var (
	ErrCaseNotFound = errors.New("case not found")
)
