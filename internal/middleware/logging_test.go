package middleware

import (
	"bytes"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactingLogFormatter(t *testing.T) {
	secret := strings.Repeat("deadbeef", 8)

	logLine := func(target string) (string, *http.Request) {
		var buf bytes.Buffer
		f := NewRedactingLogFormatter(log.New(&buf, "", 0))
		req := httptest.NewRequest(http.MethodGet, target, nil)
		entry := f.NewLogEntry(req)
		entry.Write(http.StatusOK, 0, http.Header{}, time.Millisecond, nil)
		return buf.String(), req
	}

	t.Run("token query value never reaches the log", func(t *testing.T) {
		line, req := logLine("/api/portal/evidence?token=" + secret)
		require.NotEmpty(t, line)
		assert.NotContains(t, line, secret)
		assert.Contains(t, line, "token=REDACTED")
		// Only the logged copy is rewritten; the handler still sees the secret.
		assert.Equal(t, secret, req.URL.Query().Get("token"))
	})

	t.Run("requests without a token log unchanged", func(t *testing.T) {
		line, _ := logLine("/api/cases/?purpose=case_review")
		assert.Contains(t, line, "purpose=case_review")
		assert.NotContains(t, line, "REDACTED")
	})
}

func TestNewRequestLoggerRedactsThroughTheStack(t *testing.T) {
	secret := strings.Repeat("deadbeef", 8)

	var buf bytes.Buffer
	logger := chimiddleware.RequestLogger(NewRedactingLogFormatter(log.New(&buf, "", 0)))
	handler := logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The handler must still receive the transport it was sent.
		assert.Equal(t, secret, r.URL.Query().Get("token"))
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/portal/evidence?token="+secret, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, buf.String(), secret)
	assert.Contains(t, buf.String(), "token=REDACTED")
}
