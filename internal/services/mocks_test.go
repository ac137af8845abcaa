package services_test

import (
	"context"
	"io"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/mock"

	"github.com/evidentium/custodia/internal/models"
)

// --- Mocks ---

// MockCaseRepository is a mock for repository.CaseRepository.
type MockCaseRepository struct {
	mock.Mock
}

func (m *MockCaseRepository) Create(ctx context.Context, q sqlx.ExtContext, c *models.Case) error {
	args := m.Called(ctx, q, c)
	return args.Error(0)
}

func (m *MockCaseRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Case, error) {
	args := m.Called(ctx, id)
	ret := args.Get(0)
	if ret == nil {
		return nil, args.Error(1)
	}
	return ret.(*models.Case), args.Error(1)
}

func (m *MockCaseRepository) List(ctx context.Context, limit, offset int) ([]models.Case, error) {
	args := m.Called(ctx, limit, offset)
	ret := args.Get(0)
	if ret == nil {
		return nil, args.Error(1)
	}
	return ret.([]models.Case), args.Error(1)
}

// MockEvidenceRepository is a mock for repository.EvidenceRepository.
type MockEvidenceRepository struct {
	mock.Mock
}

func (m *MockEvidenceRepository) Create(ctx context.Context, q sqlx.ExtContext, rec *models.EvidenceRecord) error {
	args := m.Called(ctx, q, rec)
	return args.Error(0)
}

func (m *MockEvidenceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.EvidenceRecord, error) {
	args := m.Called(ctx, id)
	ret := args.Get(0)
	if ret == nil {
		return nil, args.Error(1)
	}
	return ret.(*models.EvidenceRecord), args.Error(1)
}

func (m *MockEvidenceRepository) SetDigest(
	ctx context.Context,
	q sqlx.ExtContext,
	id uuid.UUID,
	sha256 string,
	finalizedAt time.Time,
) error {
	args := m.Called(ctx, q, id, sha256, finalizedAt)
	return args.Error(0)
}

func (m *MockEvidenceRepository) DigestExistsInCase(
	ctx context.Context,
	caseID uuid.UUID,
	sha256 string,
	excludeID uuid.UUID,
) (bool, error) {
	args := m.Called(ctx, caseID, sha256, excludeID)
	return args.Bool(0), args.Error(1)
}

func (m *MockEvidenceRepository) DigestCaseCount(
	ctx context.Context,
	sha256 string,
	excludeCaseID uuid.UUID,
) (int, error) {
	args := m.Called(ctx, sha256, excludeCaseID)
	return args.Int(0), args.Error(1)
}

func (m *MockEvidenceRepository) ListByCase(ctx context.Context, caseID uuid.UUID) ([]models.EvidenceRecord, error) {
	args := m.Called(ctx, caseID)
	ret := args.Get(0)
	if ret == nil {
		return nil, args.Error(1)
	}
	return ret.([]models.EvidenceRecord), args.Error(1)
}

// MockTokenRepository is a mock for repository.TokenRepository.
type MockTokenRepository struct {
	mock.Mock
}

func (m *MockTokenRepository) Create(ctx context.Context, q sqlx.ExtContext, t *models.CapabilityToken) error {
	args := m.Called(ctx, q, t)
	return args.Error(0)
}

func (m *MockTokenRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.CapabilityToken, error) {
	args := m.Called(ctx, id)
	ret := args.Get(0)
	if ret == nil {
		return nil, args.Error(1)
	}
	return ret.(*models.CapabilityToken), args.Error(1)
}

func (m *MockTokenRepository) GetBySecretHash(ctx context.Context, secretHash string) (*models.CapabilityToken, error) {
	args := m.Called(ctx, secretHash)
	ret := args.Get(0)
	if ret == nil {
		return nil, args.Error(1)
	}
	return ret.(*models.CapabilityToken), args.Error(1)
}

func (m *MockTokenRepository) IncrementAccess(
	ctx context.Context,
	id uuid.UUID,
	now time.Time,
) (*models.CapabilityToken, error) {
	args := m.Called(ctx, id, now)
	ret := args.Get(0)
	if ret == nil {
		return nil, args.Error(1)
	}
	return ret.(*models.CapabilityToken), args.Error(1)
}

func (m *MockTokenRepository) Revoke(
	ctx context.Context,
	q sqlx.ExtContext,
	id uuid.UUID,
	revokerID int64,
	now time.Time,
) (*models.CapabilityToken, error) {
	args := m.Called(ctx, q, id, revokerID, now)
	ret := args.Get(0)
	if ret == nil {
		return nil, args.Error(1)
	}
	return ret.(*models.CapabilityToken), args.Error(1)
}

func (m *MockTokenRepository) ListByCase(
	ctx context.Context,
	caseID uuid.UUID,
	includeRevoked bool,
) ([]models.CapabilityToken, error) {
	args := m.Called(ctx, caseID, includeRevoked)
	ret := args.Get(0)
	if ret == nil {
		return nil, args.Error(1)
	}
	return ret.([]models.CapabilityToken), args.Error(1)
}

// MockBlobStore is a mock for storage.BlobStore.
type MockBlobStore struct {
	mock.Mock
}

func (m *MockBlobStore) Upload(
	ctx context.Context,
	objectKey string,
	reader io.Reader,
	size int64,
	contentType string,
) error {
	_, _ = io.Copy(io.Discard, reader)
	args := m.Called(ctx, objectKey, reader, size, contentType)
	return args.Error(0)
}

func (m *MockBlobStore) Download(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	args := m.Called(ctx, objectKey)
	ret := args.Get(0)
	if ret == nil {
		return nil, args.Error(1)
	}
	return ret.(io.ReadCloser), args.Error(1)
}

func (m *MockBlobStore) PresignedPutURL(
	ctx context.Context,
	objectKey, contentType string,
	ttl time.Duration,
) (string, error) {
	args := m.Called(ctx, objectKey, contentType, ttl)
	return args.String(0), args.Error(1)
}

// MockQueue is a mock for jobs.Queue.
type MockQueue struct {
	mock.Mock
}

func (m *MockQueue) Enqueue(ctx context.Context, taskName string, jobArgs models.Payload) (*models.Job, error) {
	args := m.Called(ctx, taskName, jobArgs)
	ret := args.Get(0)
	if ret == nil {
		return nil, args.Error(1)
	}
	return ret.(*models.Job), args.Error(1)
}

// MockJobRepository is a mock for repository.JobRepository.
type MockJobRepository struct {
	mock.Mock
}

func (m *MockJobRepository) Enqueue(ctx context.Context, q sqlx.ExtContext, job *models.Job) error {
	args := m.Called(ctx, q, job)
	return args.Error(0)
}

func (m *MockJobRepository) ClaimNextPending(ctx context.Context) (*models.Job, error) {
	args := m.Called(ctx)
	ret := args.Get(0)
	if ret == nil {
		return nil, args.Error(1)
	}
	return ret.(*models.Job), args.Error(1)
}

func (m *MockJobRepository) MarkDone(ctx context.Context, job *models.Job, finishedAt time.Time) error {
	args := m.Called(ctx, job, finishedAt)
	return args.Error(0)
}

func (m *MockJobRepository) MarkFailed(
	ctx context.Context,
	job *models.Job,
	reason string,
	finishedAt time.Time,
) error {
	args := m.Called(ctx, job, reason, finishedAt)
	return args.Error(0)
}

func (m *MockJobRepository) CreateArtifact(ctx context.Context, q sqlx.ExtContext, a *models.Artifact) error {
	args := m.Called(ctx, q, a)
	return args.Error(0)
}

func (m *MockJobRepository) ListArtifactsByEvidence(
	ctx context.Context,
	evidenceID uuid.UUID,
) ([]models.Artifact, error) {
	args := m.Called(ctx, evidenceID)
	ret := args.Get(0)
	if ret == nil {
		return nil, args.Error(1)
	}
	return ret.([]models.Artifact), args.Error(1)
}

// MockRecorder is a mock for audit.Recorder.
type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) Append(
	ctx context.Context,
	q sqlx.ExtContext,
	caseID *uuid.UUID,
	eventType string,
	payload models.Payload,
) (*models.AuditEvent, error) {
	args := m.Called(ctx, q, caseID, eventType, payload)
	ret := args.Get(0)
	if ret == nil {
		return nil, args.Error(1)
	}
	return ret.(*models.AuditEvent), args.Error(1)
}

func (m *MockRecorder) Record(
	ctx context.Context,
	caseID *uuid.UUID,
	eventType string,
	payload models.Payload,
) (*models.AuditEvent, error) {
	args := m.Called(ctx, caseID, eventType, payload)
	ret := args.Get(0)
	if ret == nil {
		return nil, args.Error(1)
	}
	return ret.(*models.AuditEvent), args.Error(1)
}

func (m *MockRecorder) Mirror(ev *models.AuditEvent) {
	m.Called(ev)
}

func (m *MockRecorder) Query(ctx context.Context, caseID uuid.UUID, since *time.Time) ([]models.AuditEvent, error) {
	args := m.Called(ctx, caseID, since)
	ret := args.Get(0)
	if ret == nil {
		return nil, args.Error(1)
	}
	return ret.([]models.AuditEvent), args.Error(1)
}

// newMockDB wraps a sqlmock connection in the sqlx handle the services
// expect. Tests drive transaction expectations through the returned Sqlmock.
func newMockDB() (*sqlx.DB, sqlmock.Sqlmock) {
	mockDB, mockSQL, err := sqlmock.New()
	if err != nil {
		panic("creating sqlmock: " + err.Error())
	}
	return sqlx.NewDb(mockDB, "sqlmock"), mockSQL
}

// auditEvent builds a committed-looking event for mock returns.
func auditEvent(caseID uuid.UUID, eventType string, payload models.Payload) *models.AuditEvent {
	return &models.AuditEvent{
		ID:        uuid.New(),
		CaseID:    &caseID,
		EventType: eventType,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
}
