package main

import (
	"errors"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evidentium/custodia/internal/authz"
	"github.com/evidentium/custodia/internal/handlers"
)

func TestSetupRouter(t *testing.T) {
	// Routing only; handler dependencies are nil and never invoked.
	deps := &dependencies{
		authHandler:     handlers.NewAuthHandler(nil),
		caseHandler:     handlers.NewCaseHandler(nil),
		evidenceHandler: handlers.NewEvidenceHandler(nil),
		manifestHandler: handlers.NewManifestHandler(nil, nil, nil),
		tokenHandler:    handlers.NewTokenHandler(nil),
		portalHandler:   handlers.NewPortalHandler(nil, nil),
		exportHandler:   handlers.NewExportHandler(nil),
		jobHandler:      handlers.NewJobHandler(nil),
		matrix:          authz.Default(),
		jwtSecret:       []byte("test"),
	}

	r := setupRouter(deps)
	require.NotNil(t, r)

	assert.True(t, hasRoute(r, http.MethodGet, "/ping"))
	assert.True(t, hasRoute(r, http.MethodPost, "/api/register"))
	assert.True(t, hasRoute(r, http.MethodPost, "/api/login"))
	assert.True(t, hasRoute(r, http.MethodPost, "/api/manifest/verify"))
	assert.True(t, hasRoute(r, http.MethodGet, "/api/portal/evidence"))
	assert.True(t, hasRoute(r, http.MethodGet, "/api/portal/evidence/{evidenceID}"))
	assert.True(t, hasRoute(r, http.MethodPost, "/api/cases/"))
	assert.True(t, hasRoute(r, http.MethodGet, "/api/cases/{caseID}"))
	assert.True(t, hasRoute(r, http.MethodPost, "/api/cases/{caseID}/evidence"))
	assert.True(t, hasRoute(r, http.MethodGet, "/api/cases/{caseID}/manifest"))
	assert.True(t, hasRoute(r, http.MethodGet, "/api/cases/{caseID}/replay"))
	assert.True(t, hasRoute(r, http.MethodGet, "/api/cases/{caseID}/audit"))
	assert.True(t, hasRoute(r, http.MethodPost, "/api/cases/{caseID}/tokens"))
	assert.True(t, hasRoute(r, http.MethodPost, "/api/cases/{caseID}/package"))
	assert.True(t, hasRoute(r, http.MethodPost, "/api/evidence/{evidenceID}/finalize"))
	assert.True(t, hasRoute(r, http.MethodGet, "/api/evidence/{evidenceID}/download"))
	assert.True(t, hasRoute(r, http.MethodPost, "/api/tokens/{tokenID}/revoke"))
	assert.True(t, hasRoute(r, http.MethodPost, "/api/jobs/run"))
}

func hasRoute(r chi.Router, method, pattern string) bool {
	found := false
	_ = chi.Walk(r, func(m, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		if m == method && route == pattern {
			found = true
			return errors.New("found")
		}
		return nil
	})
	return found
}
