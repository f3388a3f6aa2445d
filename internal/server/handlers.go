package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"webmill/internal/jobs"
	"webmill/internal/logging"
	"webmill/internal/services"
	"webmill/internal/workflow"
)

type jobResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	Progress      int    `json:"progress"`
	DetectedColor string `json:"detected_color,omitempty"`
	Error         string `json:"error,omitempty"`
}

type notReadyResponse struct {
	Status   string `json:"status"`
	Progress int    `json:"progress"`
}

func toJobResponse(record *jobs.Record) jobResponse {
	return jobResponse{
		ID:            record.ID,
		Status:        string(record.Status),
		Progress:      record.Progress,
		DetectedColor: record.DetectedColor,
		Error:         record.ErrorMessage,
	}
}

// handleUpload accepts a multipart upload and starts a conversion job.
// Optional form fields tune the encode; an X-Job-Id header overrides the
// generated identifier.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(s.cfg.Server.MaxUploadMiB)<<20)

	file, _, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	opts := jobs.DefaultOptions()
	if value := strings.TrimSpace(r.FormValue("quality")); value != "" {
		quality, err := strconv.Atoi(value)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "quality must be an integer")
			return
		}
		opts.Quality = quality
	}
	if value := strings.TrimSpace(r.FormValue("audio_bitrate")); value != "" {
		opts.AudioBitrate = value
	}
	if value := strings.TrimSpace(r.FormValue("detect_background")); value != "" {
		detect, err := strconv.ParseBool(value)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "detect_background must be a boolean")
			return
		}
		opts.DetectBackground = detect
	}

	record, err := s.submitter.Submit(r.Context(), workflow.SubmitRequest{
		ID:      strings.TrimSpace(r.Header.Get("X-Job-Id")),
		Source:  file,
		Options: opts,
	})
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			s.writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.logger.Error("submit failed", logging.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to accept upload")
		return
	}

	s.writeJSON(w, http.StatusOK, toJobResponse(record))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	record, err := s.store.GetByID(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if record == nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	s.writeJSON(w, http.StatusOK, toJobResponse(record))
}

// handleDownload streams the finished artifact. Retrieval is single-shot:
// once the artifact has been sent, it and the job record are removed.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	record, err := s.store.GetByID(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if record == nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if record.Status != jobs.StatusComplete {
		s.writeJSON(w, http.StatusConflict, notReadyResponse{
			Status:   string(record.Status),
			Progress: record.Progress,
		})
		return
	}

	artifact, err := os.Open(record.ResultPath)
	if err != nil {
		s.logger.Error("artifact missing", logging.String(logging.FieldJobID, id), logging.Error(err))
		s.writeError(w, http.StatusNotFound, "artifact no longer available")
		return
	}
	defer artifact.Close()

	w.Header().Set("Content-Type", "video/webm")
	w.Header().Set("Content-Disposition", `attachment; filename="output_`+id+`.webm"`)
	if record.DetectedColor != "" {
		w.Header().Set("X-Detected-Color", record.DetectedColor)
	}
	if info, err := artifact.Stat(); err == nil {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	}

	// The artifact is streamed whole, never ranged or revalidated: retrieval
	// is terminal, so only a complete delivery may consume it.
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, artifact); err != nil {
		s.logger.Warn("artifact delivery interrupted",
			logging.String(logging.FieldJobID, id), logging.Error(err))
		return
	}

	s.cleanupRetrieved(record)
}

// cleanupRetrieved removes the artifact and job record after a download.
// Failures only log; the client already has the bytes.
func (s *Server) cleanupRetrieved(record *jobs.Record) {
	// Detached from the request context; the response has already been sent.
	ctx := context.Background()
	if err := os.Remove(record.ResultPath); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("artifact cleanup failed",
			logging.String(logging.FieldJobID, record.ID), logging.Error(err))
	}
	if err := s.store.Remove(ctx, record.ID); err != nil {
		s.logger.Warn("record cleanup failed",
			logging.String(logging.FieldJobID, record.ID), logging.Error(err))
	}
}

// Version identifies the service build in health responses.
const Version = "0.1.0"

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": Version,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
