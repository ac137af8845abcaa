package handlers

import (
	"errors"
	"net/http"

	"github.com/evidentium/custodia/internal/jobs"
)

// JobHandler exposes one-shot job execution for operators and external
// schedulers. The server runs no processing loop of its own.
type JobHandler struct {
	runner *jobs.Runner
}

// NewJobHandler creates the handler.
func NewJobHandler(runner *jobs.Runner) *JobHandler {
	return &JobHandler{runner: runner}
}

// RunOnce handles POST /api/jobs/run.
func (h *JobHandler) RunOnce(w http.ResponseWriter, r *http.Request) {
	job, err := h.runner.RunOnce(r.Context())
	if err != nil {
		if errors.Is(err, jobs.ErrNoPendingJobs) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "queue empty"})
			return
		}
		// The job row records the failure; surface it to the caller too.
		if job != nil {
			writeJSON(w, http.StatusOK, job)
			return
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}
