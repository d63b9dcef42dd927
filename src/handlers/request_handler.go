package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/username/splitfolio/backend/src/logger"
	"github.com/username/splitfolio/backend/src/models"
	"github.com/username/splitfolio/backend/src/security/validation"
	"github.com/username/splitfolio/backend/src/services"
	"github.com/username/splitfolio/backend/src/utils"
)

// RequestHandler exposes the confirmation request inbox: listing pending
// requests addressed to the user and answering them.
type RequestHandler struct {
	confirmationService services.ConfirmationService
}

func NewRequestHandler(confirmationService services.ConfirmationService) *RequestHandler {
	return &RequestHandler{confirmationService: confirmationService}
}

func (h *RequestHandler) HandleListPending(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	requests, err := h.confirmationService.ListPending(userID)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	utils.SendJSON(w, http.StatusOK, requests)
}

func (h *RequestHandler) HandleCreateRequest(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	var req struct {
		RecipientID int64              `json:"recipient_id"`
		Kind        models.RequestKind `json:"kind"`
		EntryID     int64              `json:"entry_id,omitempty"`
		Amount      models.Cents       `json:"amount,omitempty"`
		Description string             `json:"description,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.Description = validation.SanitizeText(req.Description)

	created, err := h.confirmationService.CreateRequest(userID, req.RecipientID, req.Kind, req.EntryID, req.Amount, req.Description)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	logger.L.Info("Confirmation request created", "initiatorID", userID, "recipientID", req.RecipientID, "kind", req.Kind)
	utils.SendJSON(w, http.StatusCreated, created)
}

func (h *RequestHandler) requestIDFromURL(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func (h *RequestHandler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}
	requestID, err := h.requestIDFromURL(r)
	if err != nil {
		utils.SendJSONError(w, "Invalid request id", http.StatusBadRequest)
		return
	}

	if err := h.confirmationService.Confirm(requestID, userID); err != nil {
		sendServiceError(w, err)
		return
	}
	logger.L.Info("Confirmation request accepted", "requestID", requestID, "userID", userID)
	utils.SendJSON(w, http.StatusOK, map[string]string{"message": "Request confirmed"})
}

func (h *RequestHandler) HandleReject(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}
	requestID, err := h.requestIDFromURL(r)
	if err != nil {
		utils.SendJSONError(w, "Invalid request id", http.StatusBadRequest)
		return
	}

	if err := h.confirmationService.Reject(requestID, userID); err != nil {
		sendServiceError(w, err)
		return
	}
	logger.L.Info("Confirmation request rejected", "requestID", requestID, "userID", userID)
	utils.SendJSON(w, http.StatusOK, map[string]string{"message": "Request rejected"})
}
