package apihttp

import (
	"encoding/json"
	"errors"
	"net/http"

	"jumpcut/internal/domain"
)

// encodingSettingsRequest carries a partial update. Absent fields keep their
// current value.
type encodingSettingsRequest struct {
	VideoCodec         *string `json:"videoCodec"`
	AudioCodec         *string `json:"audioCodec"`
	Preset             *string `json:"preset"`
	CRF                *int    `json:"crf"`
	AudioBitrate       *string `json:"audioBitrate"`
	SilenceThresholdMs *int64  `json:"silenceThresholdMs"`
}

func (req encodingSettingsRequest) apply(current domain.EncodingSettings) domain.EncodingSettings {
	next := current
	if req.VideoCodec != nil {
		next.VideoCodec = *req.VideoCodec
	}
	if req.AudioCodec != nil {
		next.AudioCodec = *req.AudioCodec
	}
	if req.Preset != nil {
		next.Preset = *req.Preset
	}
	if req.CRF != nil {
		next.CRF = *req.CRF
	}
	if req.AudioBitrate != nil {
		next.AudioBitrate = *req.AudioBitrate
	}
	if req.SilenceThresholdMs != nil {
		next.SilenceThresholdMs = *req.SilenceThresholdMs
	}
	return next
}

func (s *Server) handleEncodingSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleGetEncodingSettings(w, r)
	case http.MethodPatch, http.MethodPut:
		s.handleUpdateEncodingSettings(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleGetEncodingSettings(w http.ResponseWriter, _ *http.Request) {
	if s.encoding == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "encoding settings not configured")
		return
	}
	writeJSON(w, http.StatusOK, s.encoding.Get())
}

func (s *Server) handleUpdateEncodingSettings(w http.ResponseWriter, r *http.Request) {
	if s.encoding == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "encoding settings not configured")
		return
	}

	var body encodingSettingsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid json")
		return
	}

	if err := s.encoding.Update(body.apply(s.encoding.Get())); err != nil {
		if errors.Is(err, domain.ErrInvalidSettings) {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to update encoding settings")
		return
	}

	writeJSON(w, http.StatusOK, s.encoding.Get())
}
