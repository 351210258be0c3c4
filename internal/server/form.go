package server

import (
	"encoding/json"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/formflow/formflow/internal/entity"
)

// Routes mounts the form API surface.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", h.handleHealth)
	r.Route("/form", func(r chi.Router) {
		r.Post("/start", h.handleStart)
		r.Get("/render", h.handleRender)
		r.Get("/restore", h.handleRestore)
		r.Get("/next", h.handleNext)
		r.Post("/respond", h.handleRespond)
		r.Get("/export", h.handleExport)
	})
	return r
}

type sessionSummary struct {
	SessionID  string                   `json:"session_id"`
	FieldCount int                      `json:"field_count"`
	Fields     []entity.FieldDescriptor `json:"fields"`
}

func summarize(sess *entity.FormSession) sessionSummary {
	return sessionSummary{
		SessionID:  sess.SessionID,
		FieldCount: len(sess.Fields),
		Fields:     sess.Fields,
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Ping(r.Context()); err != nil {
		Error(w, http.StatusServiceUnavailable, "store unreachable")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadMB<<20)
	if err := r.ParseMultipartForm(h.maxMemoryMB << 20); err != nil {
		Error(w, http.StatusBadRequest, "invalid multipart upload")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		Error(w, http.StatusBadRequest, "missing file")
		return
	}
	defer file.Close()

	sess, err := h.ctrl.Start(r.Context(), header.Filename, file)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, summarize(sess))
}

func (h *Handler) handleRender(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		Error(w, http.StatusBadRequest, "session_id is required")
		return
	}

	// Resolve the session before touching the filesystem; the id is a query
	// value and must never be joined into a path unchecked.
	if _, err := h.ctrl.Restore(r.Context(), sessionID); err != nil {
		h.writeAppError(w, r, err)
		return
	}

	path := h.ctrl.NormalizedImagePath(sessionID)
	if _, err := os.Stat(path); err != nil {
		Error(w, http.StatusNotFound, "Session not found")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	http.ServeFile(w, r, path)
}

func (h *Handler) handleRestore(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	sess, err := h.ctrl.Restore(r.Context(), sessionID)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, summarize(sess))
}

func (h *Handler) handleNext(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := h.ctrl.NextPrompt(r.Context(), q.Get("session_id"), q.Get("last_response"))
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	if result.Done {
		JSON(w, http.StatusOK, map[string]bool{"done": true})
		return
	}
	JSON(w, http.StatusOK, map[string]any{
		"field":  result.Field,
		"fields": result.Fields,
		"prompt": result.Prompt,
	})
}

type respondRequest struct {
	SessionID    string `json:"session_id"`
	UserInput    string `json:"user_input"`
	LastResponse string `json:"last_response"`
}

// respondResponse keeps the original wire shape: every key is always present
// so the frontend can branch on done/next/followup/error without key checks.
type respondResponse struct {
	Done      bool                     `json:"done"`
	Next      bool                     `json:"next"`
	UserInput string                   `json:"user_input"`
	Field     entity.FieldDescriptor   `json:"field"`
	Fields    []entity.FieldDescriptor `json:"fields"`
	Followup  string                   `json:"followup"`
	Error     string                   `json:"error"`
}

func (h *Handler) handleRespond(w http.ResponseWriter, r *http.Request) {
	var req respondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	outcome, err := h.ctrl.Respond(r.Context(), req.SessionID, req.UserInput, req.LastResponse)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}

	JSON(w, http.StatusOK, respondResponse{
		Done:      outcome.Done,
		Next:      outcome.Next,
		UserInput: req.UserInput,
		Field:     outcome.Field,
		Fields:    outcome.Fields,
		Followup:  outcome.Followup,
		Error:     outcome.Invalid,
	})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	data, err := h.exporter.ExportAnswersXLSX(r.Context(), sessionID)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+sessionID+`.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
