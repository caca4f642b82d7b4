package apihttp

import (
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"strings"

	"jumpcut/internal/domain"
	"jumpcut/internal/usecase"
)

const (
	multipartMemory = 32 << 20
	outputFilename  = "final_output.mp4"
)

// uploadFields lists the multipart fields that carry videos, in order.
var uploadFields = []string{"videos", "video"}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.runBatch == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "processing not configured")
		return
	}
	if !strings.HasPrefix(strings.ToLower(r.Header.Get("Content-Type")), "multipart/form-data") {
		writeError(w, http.StatusUnsupportedMediaType, "invalid_request", "expected multipart/form-data")
		return
	}

	if s.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", "upload exceeds "+strconv.FormatInt(tooLarge.Limit, 10)+" bytes")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid multipart form")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	uploads := collectUploads(r.MultipartForm)
	if len(uploads) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "no video files provided")
		return
	}

	jobID := domain.JobID(strings.TrimSpace(r.Header.Get(jobIDHeader)))
	if jobID == "" {
		jobID = domain.JobID(strings.TrimSpace(r.FormValue(jobIDHeader)))
	}

	result, err := s.runBatch.Execute(r.Context(), usecase.BatchInput{JobID: jobID, Uploads: uploads})
	if err != nil {
		if result.JobID != "" {
			jobID = result.JobID
		}
		s.logger.Warn("batch failed",
			slog.String("jobId", string(jobID)),
			slog.String("error", err.Error()),
		)
		writeBatchError(w, jobID, err)
		return
	}
	defer result.Cleanup()

	s.streamResult(w, result)
}

func (s *Server) streamResult(w http.ResponseWriter, result usecase.BatchResult) {
	f, err := os.Open(result.OutputPath)
	if err != nil {
		s.logger.Error("open final output failed",
			slog.String("jobId", string(result.JobID)),
			slog.String("error", err.Error()),
		)
		writeBatchError(w, result.JobID, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", `attachment; filename="`+outputFilename+`"`)
	w.Header().Set("Content-Length", strconv.FormatInt(result.OutputBytes, 10))
	w.Header().Set(jobIDHeader, string(result.JobID))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		s.logger.Warn("stream final output interrupted",
			slog.String("jobId", string(result.JobID)),
			slog.String("error", err.Error()),
		)
	}
}

func collectUploads(form *multipart.Form) []usecase.Upload {
	if form == nil {
		return nil
	}
	var uploads []usecase.Upload
	for _, field := range uploadFields {
		for _, fh := range form.File[field] {
			if fh == nil || strings.TrimSpace(fh.Filename) == "" {
				continue
			}
			header := fh
			uploads = append(uploads, usecase.Upload{
				Filename: header.Filename,
				Open: func() (io.ReadCloser, error) {
					return header.Open()
				},
			})
		}
	}
	return uploads
}
