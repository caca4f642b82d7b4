package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"jumpcut/internal/domain"
	"jumpcut/internal/usecase"
)

const jobIDHeader = "X-Job-ID"

type errorEnvelope struct {
	Error errorPayload `json:"error"`
	JobID domain.JobID `json:"jobId,omitempty"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeBatchError maps a batch failure to its HTTP status. The job id is
// echoed so the caller can fetch the job's log.
func writeBatchError(w http.ResponseWriter, jobID domain.JobID, err error) {
	status, code := batchErrorStatus(err)
	if jobID != "" {
		w.Header().Set(jobIDHeader, string(jobID))
	}
	message := err.Error()
	if status == http.StatusInternalServerError && code == "internal_error" {
		message = "internal server error"
	}
	writeJSON(w, status, errorEnvelope{
		Error: errorPayload{Code: code, Message: message},
		JobID: jobID,
	})
}

func batchErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrEmptyInput):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, domain.ErrJobExists):
		return http.StatusConflict, "job_exists"
	case errors.Is(err, usecase.ErrBusy):
		return http.StatusServiceUnavailable, "busy"
	case errors.Is(err, domain.ErrUploadFailed),
		errors.Is(err, domain.ErrTranscriptionCreateFailed),
		errors.Is(err, domain.ErrQueryFailed),
		errors.Is(err, domain.ErrTranscriptionFailed),
		errors.Is(err, domain.ErrPollTimeout):
		return http.StatusBadGateway, "transcription_error"
	case errors.Is(err, domain.ErrEncodeFailed), errors.Is(err, domain.ErrConcatFailed):
		return http.StatusInternalServerError, "encode_error"
	case errors.Is(err, usecase.ErrStorage):
		return http.StatusInternalServerError, "storage_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "canceled"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorEnvelope{Error: errorPayload{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// parseLimit returns 0 for a missing or zero limit, which selects the store's
// default page size.
func parseLimit(value string) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	if parsed < 0 {
		return 0, errors.New("must be >= 0")
	}
	return parsed, nil
}

// parseSince returns -1 when the query has no since value.
func parseSince(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return -1, nil
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, err
	}
	if parsed < 0 {
		return 0, errors.New("must be >= 0")
	}
	return parsed, nil
}
