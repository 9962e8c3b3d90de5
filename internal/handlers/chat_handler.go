package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/jeiths2202/ims-crawler/internal/interfaces"
	"github.com/jeiths2202/ims-crawler/internal/models"
)

// ChatHandler exposes issue-grounded chat, streaming and not.
type ChatHandler struct {
	chat   interfaces.ChatService
	logger arbor.ILogger
}

// NewChatHandler creates a new chat handler
func NewChatHandler(chat interfaces.ChatService, logger arbor.ILogger) *ChatHandler {
	return &ChatHandler{
		chat:   chat,
		logger: logger,
	}
}

// ChatHandler handles POST /api/chat. When the request asks for streaming
// the response switches to SSE with start/token/sources/done events.
func (h *ChatHandler) ChatHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.Stream {
		h.streamChat(w, r, &req)
		return
	}

	resp, err := h.chat.Ask(r.Context(), &req)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, resp)
}

func (h *ChatHandler) streamChat(w http.ResponseWriter, r *http.Request, req *models.ChatRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	emit := func(event models.ChatStreamEvent) error {
		data, err := json.Marshal(event)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Event, data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	if err := h.chat.AskStream(r.Context(), req, emit); err != nil {
		h.logger.Warn().
			Str("user_id", req.UserID).
			Err(err).
			Msg("Chat stream ended with error")
	}
}

// HistoryHandler handles GET /api/chat/history/{conversation_id}.
func (h *ChatHandler) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	conversationID := strings.TrimPrefix(r.URL.Path, "/api/chat/history/")
	if conversationID == "" {
		WriteError(w, http.StatusBadRequest, "conversation id is required")
		return
	}

	messages, err := h.chat.History(r.Context(), conversationID)
	if err != nil {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"conversation_id": conversationID,
		"messages":        messages,
	})
}
