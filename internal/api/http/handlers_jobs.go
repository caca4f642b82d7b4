package apihttp

import (
	"net/http"
	"strings"

	"jumpcut/internal/domain"
)

type logsResponse struct {
	JobID domain.JobID      `json:"jobId,omitempty"`
	Logs  []domain.LogEntry `json:"logs"`
	Count int               `json:"count"`
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.jobs == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "job store not configured")
		return
	}
	writeJSON(w, http.StatusOK, s.jobs.ListJobs())
}

// handleJobByID serves /jobs/{id} and /jobs/{id}/logs.
func (s *Server) handleJobByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.jobs == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "job store not configured")
		return
	}

	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/jobs/"), "/")
	parts := strings.Split(rest, "/")
	if rest == "" || len(parts) > 2 {
		writeError(w, http.StatusNotFound, "not_found", "route not found")
		return
	}
	id := domain.JobID(parts[0])

	if len(parts) == 2 {
		if parts[1] != "logs" {
			writeError(w, http.StatusNotFound, "not_found", "route not found")
			return
		}
		s.writeLogs(w, r, id)
		return
	}

	job, err := s.jobs.GetStatus(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.jobs == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "job store not configured")
		return
	}
	s.writeLogs(w, r, "")
}

// writeLogs answers a log query. An empty jobID selects the global log.
func (s *Server) writeLogs(w http.ResponseWriter, r *http.Request, jobID domain.JobID) {
	query := r.URL.Query()
	limit, err := parseLimit(query.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid limit")
		return
	}
	since, err := parseSince(query.Get("since"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid since")
		return
	}

	var logs []domain.LogEntry
	if since >= 0 {
		logs, err = s.jobs.GetLogsSince(jobID, since, limit)
	} else {
		logs, err = s.jobs.GetLogs(jobID, limit)
	}
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if logs == nil {
		logs = []domain.LogEntry{}
	}
	writeJSON(w, http.StatusOK, logsResponse{JobID: jobID, Logs: logs, Count: len(logs)})
}
