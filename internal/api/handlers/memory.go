package handlers

import (
	"errors"
	"net/http"

	"github.com/Harshitk-cp/mnemo/internal/api/middleware"
	"github.com/Harshitk-cp/mnemo/internal/domain"
	"github.com/Harshitk-cp/mnemo/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type MemoryHandler struct {
	svc    *service.MemoryService
	topK   int
	logger *zap.Logger
}

func NewMemoryHandler(svc *service.MemoryService, topK int, logger *zap.Logger) *MemoryHandler {
	return &MemoryHandler{svc: svc, topK: topK, logger: logger}
}

type captureRequest struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	Text           string `json:"text"`
	Class          string `json:"class,omitempty"`
}

type captureSkippedResponse struct {
	Captured bool   `json:"captured"`
	Reason   string `json:"reason"`
}

type recallResponse struct {
	Memories []domain.Memory `json:"memories"`
	Context  string          `json:"context"`
}

type listResponse struct {
	Memories []domain.Memory `json:"memories"`
}

type updateMemoryRequest struct {
	Summary string `json:"summary"`
}

// Capture stores a message as a memory synchronously. Messages without a
// trigger are acknowledged with captured=false rather than an error.
func (h *MemoryHandler) Capture(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())

	var req captureRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	m, err := h.svc.Capture(r.Context(), domain.Message{
		UserID:         userID,
		ConversationID: req.ConversationID,
		MessageID:      req.MessageID,
		Text:           req.Text,
	}, domain.MemoryClass(req.Class))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNoTrigger),
			errors.Is(err, domain.ErrInputTooShort):
			writeJSON(w, http.StatusOK, captureSkippedResponse{Captured: false, Reason: err.Error()})
		case errors.Is(err, service.ErrInvalidClass),
			errors.Is(err, service.ErrUserIDMissing):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrStoreUnavailable):
			h.logger.Error("capture failed", zap.String("user_id", userID), zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "memory store unavailable")
		default:
			h.logger.Error("capture failed", zap.String("user_id", userID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to capture memory")
		}
		return
	}

	writeJSON(w, http.StatusCreated, m)
}

func (h *MemoryHandler) Recall(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())

	query := r.URL.Query().Get("query")
	if query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	k, ok := intParam(r, "k", h.topK)
	if !ok {
		writeError(w, http.StatusBadRequest, "k must be a positive integer")
		return
	}

	memories, err := h.svc.Recall(r.Context(), userID, query, k)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, recallResponse{Memories: memories, Context: service.BuildContext(memories)})
}

func (h *MemoryHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())

	limit, ok := intParam(r, "limit", 50)
	if !ok {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}

	memories, err := h.svc.List(r.Context(), userID, limit)
	if err != nil {
		h.logger.Error("list memories failed", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list memories")
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Memories: memories})
}

func (h *MemoryHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid memory id")
		return
	}

	m, err := h.svc.Get(r.Context(), userID, id)
	if err != nil {
		if errors.Is(err, service.ErrMemoryNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get memory")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *MemoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid memory id")
		return
	}

	var req updateMemoryRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	m, err := h.svc.UpdateSummary(r.Context(), userID, id, req.Summary)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSummaryEmpty):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrMemoryNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "failed to update memory")
		}
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *MemoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid memory id")
		return
	}

	if err := h.svc.Delete(r.Context(), userID, id); err != nil {
		if errors.Is(err, service.ErrMemoryNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete memory")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
