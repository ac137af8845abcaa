package handlers_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/evidentium/custodia/internal/handlers"
)

func TestEvidenceHandler_Download(t *testing.T) {
	caseID := uuid.New()

	newServer := func(es *MockEvidenceService) *httptest.Server {
		h := handlers.NewEvidenceHandler(es)
		r := chi.NewRouter()
		r.Get("/api/evidence/{evidenceID}/download", h.Download)
		srv := httptest.NewServer(r)
		t.Cleanup(srv.Close)
		return srv
	}

	t.Run("stale declared size does not truncate the stream", func(t *testing.T) {
		es := new(MockEvidenceService)
		rec := finalized(caseID, "clip.mp4")
		// Declared at init and never verified; the blob is larger.
		rec.DeclaredSize = 5
		const blob = "ten bytes!"
		es.On("Download", mock.Anything, rec.ID).
			Return(rec, io.NopCloser(strings.NewReader(blob)), nil)

		srv := newServer(es)
		resp, err := http.Get(srv.URL + "/api/evidence/" + rec.ID.String() + "/download")
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, blob, string(body))
		assert.Equal(t, *rec.SHA256, resp.Header.Get("X-Content-SHA256"))
	})

	t.Run("malformed evidence id", func(t *testing.T) {
		es := new(MockEvidenceService)
		srv := newServer(es)

		resp, err := http.Get(srv.URL + "/api/evidence/not-a-uuid/download")
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		es.AssertNotCalled(t, "Download", mock.Anything, mock.Anything)
	})
}
