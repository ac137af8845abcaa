package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/evidentium/custodia/internal/models"
)

type mockRecorder struct {
	mock.Mock
}

func (m *mockRecorder) Append(
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

func (m *mockRecorder) Record(
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

func (m *mockRecorder) Mirror(ev *models.AuditEvent) {
	m.Called(ev)
}

func (m *mockRecorder) Query(ctx context.Context, caseID uuid.UUID, since *time.Time) ([]models.AuditEvent, error) {
	args := m.Called(ctx, caseID, since)
	ret := args.Get(0)
	if ret == nil {
		return nil, args.Error(1)
	}
	return ret.([]models.AuditEvent), args.Error(1)
}

func withTestActor(r *http.Request) *http.Request {
	actor := Actor{UserID: 42, DisplayName: "Rowan Teller", Role: "attorney"}
	return r.WithContext(context.WithValue(r.Context(), actorKey, actor))
}

func committedEvent() *models.AuditEvent {
	return &models.AuditEvent{ID: uuid.New(), EventType: "evidence.download", CreatedAt: time.Now().UTC()}
}

func TestRequirePurpose(t *testing.T) {
	const action = "evidence.download"

	newGate := func(trail *mockRecorder) (http.Handler, *bool) {
		reached := false
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reached = true
			p, ok := PurposeFromContext(r.Context())
			assert.True(t, ok)
			assert.Equal(t, action, p.Action)
			w.WriteHeader(http.StatusOK)
		})
		return RequirePurpose(trail, action)(next), &reached
	}

	t.Run("missing purpose is a 400 and nothing is logged", func(t *testing.T) {
		trail := new(mockRecorder)
		gate, reached := newGate(trail)

		req := withTestActor(httptest.NewRequest(http.MethodGet, "/api/evidence/x/download", nil))
		rec := httptest.NewRecorder()
		gate.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.False(t, *reached)
		trail.AssertNotCalled(t, "Record", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unknown purpose is a 422", func(t *testing.T) {
		trail := new(mockRecorder)
		gate, reached := newGate(trail)

		req := withTestActor(httptest.NewRequest(http.MethodGet, "/api/evidence/x/download?purpose=curiosity", nil))
		rec := httptest.NewRecorder()
		gate.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.False(t, *reached)
		trail.AssertNotCalled(t, "Record", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("valid purpose logs exactly once before the handler", func(t *testing.T) {
		trail := new(mockRecorder)
		gate, reached := newGate(trail)

		trail.On("Record", mock.Anything, (*uuid.UUID)(nil), action, mock.Anything).
			Return(committedEvent(), nil).Once()

		req := withTestActor(httptest.NewRequest(http.MethodGet, "/api/evidence/x/download?purpose=case_review", nil))
		rec := httptest.NewRecorder()
		gate.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, *reached)
		trail.AssertExpectations(t)

		payload := trail.Calls[0].Arguments.Get(3).(models.Payload)
		assert.Equal(t, "case_review", payload["purpose"])
		assert.Equal(t, int64(42), payload["actor_id"])
		assert.Equal(t, "/api/evidence/x/download", payload["endpoint"])
	})

	t.Run("case-scoped route attributes the event to the case", func(t *testing.T) {
		trail := new(mockRecorder)
		gate, reached := newGate(trail)
		caseID := uuid.New()

		trail.On("Record", mock.Anything, mock.MatchedBy(func(id *uuid.UUID) bool {
			return id != nil && *id == caseID
		}), action, mock.Anything).Return(committedEvent(), nil).Once()

		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("caseID", caseID.String())
		req := withTestActor(httptest.NewRequest(
			http.MethodGet, "/api/cases/"+caseID.String()+"/manifest?purpose=court_filing", nil))
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

		rec := httptest.NewRecorder()
		gate.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, *reached)
		trail.AssertExpectations(t)
	})

	t.Run("audit failure blocks the access", func(t *testing.T) {
		trail := new(mockRecorder)
		gate, reached := newGate(trail)

		trail.On("Record", mock.Anything, (*uuid.UUID)(nil), action, mock.Anything).
			Return(nil, assert.AnError).Once()

		req := withTestActor(httptest.NewRequest(http.MethodGet, "/api/evidence/x/download?purpose=case_review", nil))
		rec := httptest.NewRecorder()
		gate.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.False(t, *reached)
	})

	t.Run("no actor in context is a 500", func(t *testing.T) {
		trail := new(mockRecorder)
		gate, reached := newGate(trail)

		req := httptest.NewRequest(http.MethodGet, "/api/evidence/x/download?purpose=case_review", nil)
		rec := httptest.NewRecorder()
		gate.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.False(t, *reached)
	})

	t.Run("purpose from JSON body survives for the handler", func(t *testing.T) {
		trail := new(mockRecorder)
		trail.On("Record", mock.Anything, (*uuid.UUID)(nil), action, mock.Anything).
			Return(committedEvent(), nil).Once()

		var bodySeen string
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// The gate peeked at the body; the handler must still get it.
			b, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			bodySeen = string(b)
			w.WriteHeader(http.StatusOK)
		})
		gate := RequirePurpose(trail, action)(next)

		body := `{"purpose":"court_filing","exhibits":[]}`
		req := httptest.NewRequest(http.MethodPost, "/api/cases/x/package", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req = withTestActor(req)

		rec := httptest.NewRecorder()
		gate.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, body, bodySeen)
	})

	t.Run("header fallback and normalization", func(t *testing.T) {
		trail := new(mockRecorder)
		gate, reached := newGate(trail)

		trail.On("Record", mock.Anything, (*uuid.UUID)(nil), action, mock.Anything).
			Return(committedEvent(), nil).Once()

		req := withTestActor(httptest.NewRequest(http.MethodGet, "/api/evidence/x/download", nil))
		req.Header.Set("X-Access-Purpose", "  Internal_Audit ")
		rec := httptest.NewRecorder()
		gate.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, *reached)
		payload := trail.Calls[0].Arguments.Get(3).(models.Payload)
		assert.Equal(t, "internal_audit", payload["purpose"])
	})
}
