package handlers

import (
	"errors"
	"net/http"

	"github.com/Harshitk-cp/mnemo/internal/api/middleware"
	"github.com/Harshitk-cp/mnemo/internal/domain"
	"github.com/Harshitk-cp/mnemo/internal/service"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TurnHandler serves the two hooks a chat pipeline calls around each
// assistant completion.
type TurnHandler struct {
	svc    *service.MemoryService
	topK   int
	logger *zap.Logger
}

func NewTurnHandler(svc *service.MemoryService, topK int, logger *zap.Logger) *TurnHandler {
	return &TurnHandler{svc: svc, topK: topK, logger: logger}
}

type turnRequest struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	Text           string `json:"text"`
	K              int    `json:"k,omitempty"`
}

type turnResponse struct {
	Context  string          `json:"context"`
	Memories []domain.Memory `json:"memories"`
}

type replyRequest struct {
	MemoryIDs []uuid.UUID `json:"memory_ids"`
	Reply     string      `json:"reply"`
}

type replyResponse struct {
	Reinforced []uuid.UUID `json:"reinforced"`
}

// Prepare recalls context for an incoming message and queues it for capture.
func (h *TurnHandler) Prepare(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())

	var req turnRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	k := req.K
	if k <= 0 {
		k = h.topK
	}

	memories, prompt, err := h.svc.PrepareTurn(r.Context(), domain.Message{
		UserID:         userID,
		ConversationID: req.ConversationID,
		MessageID:      req.MessageID,
		Text:           req.Text,
	}, k)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTextEmpty), errors.Is(err, service.ErrUserIDMissing):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Warn("prepare turn failed", zap.String("user_id", userID), zap.Error(err))
			writeJSON(w, http.StatusOK, turnResponse{Memories: []domain.Memory{}})
		}
		return
	}

	writeJSON(w, http.StatusOK, turnResponse{Context: prompt, Memories: memories})
}

// Reply reinforces the recalled memories the assistant's reply referenced.
func (h *TurnHandler) Reply(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())

	var req replyRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	refreshed, err := h.svc.Reinforce(r.Context(), userID, req.MemoryIDs, req.Reply)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, replyResponse{Reinforced: refreshed})
}
