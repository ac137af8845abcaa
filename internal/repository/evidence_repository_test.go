package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evidentium/custodia/internal/repository"
)

func setupEvidenceRepoMock(t *testing.T) (repository.EvidenceRepository, *sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() { _ = sqlxDB.Close() })
	return repository.NewPostgresEvidenceRepository(sqlxDB), sqlxDB, mock
}

func TestEvidenceRepository_SetDigest(t *testing.T) {
	id := uuid.New()
	sum := "a3f5"
	finalizedAt := time.Now().UTC()

	tests := []struct {
		name      string
		mockSetup func(mock sqlmock.Sqlmock)
		wantErr   error
	}{
		{
			name: "first finalization succeeds",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE evidence_records SET sha256=\$2, finalized_at=\$3`).
					WithArgs(id, sum, finalizedAt).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
			wantErr: nil,
		},
		{
			name: "already finalized row matches nothing",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE evidence_records SET sha256=\$2, finalized_at=\$3`).
					WithArgs(id, sum, finalizedAt).
					WillReturnResult(sqlmock.NewResult(0, 0))
			},
			wantErr: repository.ErrAlreadyFinalized,
		},
		{
			name: "concurrent duplicate trips the partial unique index",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE evidence_records SET sha256=\$2, finalized_at=\$3`).
					WithArgs(id, sum, finalizedAt).
					WillReturnError(&pq.Error{Code: "23505"})
			},
			wantErr: repository.ErrDuplicateDigest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, db, mock := setupEvidenceRepoMock(t)
			tt.mockSetup(mock)

			err := repo.SetDigest(context.Background(), db, id, sum, finalizedAt)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestEvidenceRepository_GetByID(t *testing.T) {
	id := uuid.New()
	caseID := uuid.New()

	t.Run("found", func(t *testing.T) {
		repo, _, mock := setupEvidenceRepoMock(t)
		rows := sqlmock.NewRows([]string{
			"id", "case_id", "filename", "content_type", "declared_size",
			"sha256", "object_key", "created_at", "finalized_at",
		}).AddRow(id, caseID, "clip.mp4", "video/mp4", int64(100),
			nil, "k/clip", time.Now(), nil)
		mock.ExpectQuery(`FROM evidence_records WHERE id=\$1`).WithArgs(id).WillReturnRows(rows)

		rec, err := repo.GetByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, id, rec.ID)
		assert.Nil(t, rec.SHA256)
		assert.False(t, rec.Finalized())
	})

	t.Run("not found", func(t *testing.T) {
		repo, _, mock := setupEvidenceRepoMock(t)
		mock.ExpectQuery(`FROM evidence_records WHERE id=\$1`).WithArgs(id).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := repo.GetByID(context.Background(), id)
		assert.ErrorIs(t, err, repository.ErrEvidenceNotFound)
	})
}

func TestEvidenceRepository_DigestChecks(t *testing.T) {
	caseID := uuid.New()
	excludeID := uuid.New()

	t.Run("digest exists in case", func(t *testing.T) {
		repo, _, mock := setupEvidenceRepoMock(t)
		mock.ExpectQuery(`SELECT EXISTS`).WithArgs(caseID, "a3f5", excludeID).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		exists, err := repo.DigestExistsInCase(context.Background(), caseID, "a3f5", excludeID)
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("cross-case count", func(t *testing.T) {
		repo, _, mock := setupEvidenceRepoMock(t)
		mock.ExpectQuery(`SELECT COUNT\(DISTINCT case_id\)`).WithArgs("a3f5", caseID).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

		count, err := repo.DigestCaseCount(context.Background(), "a3f5", caseID)
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})
}
