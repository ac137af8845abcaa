package models

import (
	"time"

	"github.com/google/uuid"
)

// Case groups evidence and audit history for one legal matter.
type Case struct {
	ID         uuid.UUID `db:"id" json:"id"`
	CaseNumber string    `db:"case_number" json:"case_number"`
	Title      string    `db:"title" json:"title"`
	CreatedBy  int64     `db:"created_by" json:"created_by"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
