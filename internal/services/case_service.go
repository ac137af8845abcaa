package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/evidentium/custodia/internal/audit"
	"github.com/evidentium/custodia/internal/models"
	"github.com/evidentium/custodia/internal/repository"
)

// CaseService manages the legal matters evidence is filed under.
type CaseService interface {
	Create(ctx context.Context, caseNumber, title string, creatorID int64) (*models.Case, error)
	Get(ctx context.Context, caseID uuid.UUID) (*models.Case, error)
	List(ctx context.Context, limit, offset int) ([]models.Case, error)
}

var _ CaseService = (*caseService)(nil)

type caseService struct {
	db    *sqlx.DB
	repo  repository.CaseRepository
	trail audit.Recorder
}

// NewCaseService wires the case service.
func NewCaseService(db *sqlx.DB, repo repository.CaseRepository, trail audit.Recorder) CaseService {
	return &caseService{db: db, repo: repo, trail: trail}
}

// Create opens a case; the row and its case.created event commit together.
func (s *caseService) Create(
	ctx context.Context,
	caseNumber, title string,
	creatorID int64,
) (*models.Case, error) {
	caseNumber = strings.TrimSpace(caseNumber)
	title = strings.TrimSpace(title)
	if caseNumber == "" || title == "" {
		return nil, fmt.Errorf("%w: case number and title are required", ErrValidation)
	}

	c := &models.Case{
		ID:         uuid.New(),
		CaseNumber: caseNumber,
		Title:      title,
		CreatedBy:  creatorID,
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning case transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.repo.Create(ctx, tx, c); err != nil {
		return nil, err
	}
	ev, err := s.trail.Append(ctx, tx, &c.ID, models.EventCaseCreated, models.Payload{
		"actor_id":    creatorID,
		"case_id":     c.ID.String(),
		"case_number": caseNumber,
		"title":       title,
	})
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing case transaction: %w", err)
	}
	s.trail.Mirror(ev)

	log.Printf("[CaseService] Case %s (%q) created by user %d", c.ID, caseNumber, creatorID)
	return c, nil
}

// Get returns a case by id.
func (s *caseService) Get(ctx context.Context, caseID uuid.UUID) (*models.Case, error) {
	c, err := s.repo.GetByID(ctx, caseID)
	if err != nil {
		if errors.Is(err, repository.ErrCaseNotFound) {
			return nil, ErrCaseNotFound
		}
		return nil, err
	}
	return c, nil
}

// List returns cases newest first.
func (s *caseService) List(ctx context.Context, limit, offset int) ([]models.Case, error) {
	const maxLimit = 100
	if limit <= 0 || limit > maxLimit {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, limit, offset)
}
