// Package server provides the HTTP handlers for the form API.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/formflow/formflow/internal/common"
	"github.com/formflow/formflow/internal/export"
	"github.com/formflow/formflow/internal/repository"
	"github.com/formflow/formflow/internal/session"
)

// Handler provides common handler utilities and dependencies.
type Handler struct {
	ctrl        *session.Controller
	repo        repository.SessionRepository
	exporter    *export.Service
	maxUploadMB int64
	maxMemoryMB int64
	log         *slog.Logger
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(ctrl *session.Controller, repo repository.SessionRepository, exporter *export.Service, maxUploadMB, maxMemoryMB int64, logger *slog.Logger) *Handler {
	if maxUploadMB <= 0 {
		maxUploadMB = 32
	}
	if maxMemoryMB <= 0 {
		maxMemoryMB = 16
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		ctrl:        ctrl,
		repo:        repo,
		exporter:    exporter,
		maxUploadMB: maxUploadMB,
		maxMemoryMB: maxMemoryMB,
		log:         logger,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// writeAppError maps the error taxonomy to HTTP statuses. Session-not-found
// is an expected condition with its own status; model parse failures are
// upstream (502-class) problems, not generic 500s.
func (h *Handler) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, common.ErrUnsupportedFileType):
		Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, common.ErrSessionNotFound):
		Error(w, http.StatusNotFound, "Session not found")
	case errors.Is(err, common.ErrFieldIndexExhausted), errors.Is(err, common.ErrCursorConflict):
		Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, common.ErrExtractionParse), errors.Is(err, common.ErrJudgmentParse), errors.Is(err, common.ErrExtractionFailed):
		Error(w, http.StatusBadGateway, err.Error())
	default:
		h.log.Error("http.internal_error", "path", r.URL.Path, "error", err)
		Error(w, http.StatusInternalServerError, "internal error")
	}
}
