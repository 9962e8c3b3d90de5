package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/jeiths2202/ims-crawler/internal/interfaces"
)

// CredentialHandler manages stored IMS credentials for users.
type CredentialHandler struct {
	credentials interfaces.CredentialService
	logger      arbor.ILogger
}

// NewCredentialHandler creates a new credential handler
func NewCredentialHandler(credentials interfaces.CredentialService, logger arbor.ILogger) *CredentialHandler {
	return &CredentialHandler{
		credentials: credentials,
		logger:      logger,
	}
}

type upsertCredentialsRequest struct {
	UserID   string `json:"user_id"`
	BaseURL  string `json:"base_url"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// CredentialsHandler dispatches /api/credentials by method: POST stores,
// GET returns the record without plaintext.
func (h *CredentialHandler) CredentialsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.upsert(w, r)
	case http.MethodGet:
		h.get(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *CredentialHandler) upsert(w http.ResponseWriter, r *http.Request) {
	var req upsertCredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" || req.BaseURL == "" || req.Username == "" || req.Password == "" {
		WriteError(w, http.StatusBadRequest, "user_id, base_url, username and password are required")
		return
	}

	record, err := h.credentials.Upsert(r.Context(), req.UserID, req.BaseURL, req.Username, req.Password)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, record)
}

func (h *CredentialHandler) get(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		WriteError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	record, err := h.credentials.Get(r.Context(), userID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if record == nil {
		WriteError(w, http.StatusNotFound, "no credentials stored")
		return
	}
	WriteJSON(w, http.StatusOK, record)
}

// ValidateHandler handles POST /api/credentials/validate, performing a live
// login probe against IMS and recording the outcome.
func (h *CredentialHandler) ValidateHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" {
		WriteError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	if err := h.credentials.Validate(r.Context(), req.UserID); err != nil {
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"valid": false,
			"error": err.Error(),
		})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"valid": true})
}
