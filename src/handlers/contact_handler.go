package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/username/splitfolio/backend/src/database"
	"github.com/username/splitfolio/backend/src/logger"
	"github.com/username/splitfolio/backend/src/model"
	"github.com/username/splitfolio/backend/src/security/validation"
	"github.com/username/splitfolio/backend/src/utils"
)

// ContactHandler manages dummy contacts and the name-to-account links that
// let balances merge a free-text debtor into their registered account.
type ContactHandler struct{}

func NewContactHandler() *ContactHandler {
	return &ContactHandler{}
}

func (h *ContactHandler) HandleListContacts(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	contacts, err := model.ListContactsByOwner(database.DB, userID)
	if err != nil {
		logger.L.Error("Failed to list contacts", "userID", userID, "error", err)
		utils.SendJSONError(w, "Failed to list contacts", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, http.StatusOK, contacts)
}

func (h *ContactHandler) HandleCreateContact(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.Name = validation.SanitizeText(strings.TrimSpace(req.Name))
	if req.Name == "" {
		utils.SendJSONError(w, "Contact name is required", http.StatusBadRequest)
		return
	}

	contact, err := model.CreateContact(database.DB, userID, req.Name)
	if err != nil {
		logger.L.Error("Failed to create contact", "userID", userID, "error", err)
		utils.SendJSONError(w, "Failed to create contact", http.StatusInternalServerError)
		return
	}
	logger.L.Info("Contact created", "userID", userID, "contactID", contact.ID)
	utils.SendJSON(w, http.StatusCreated, contact)
}

func (h *ContactHandler) HandleDeleteContact(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}
	contactID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		utils.SendJSONError(w, "Invalid contact id", http.StatusBadRequest)
		return
	}

	contact, err := model.GetContactByID(database.DB, contactID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			utils.SendJSONError(w, "Contact not found", http.StatusNotFound)
			return
		}
		logger.L.Error("Failed to load contact", "contactID", contactID, "error", err)
		utils.SendJSONError(w, "Failed to delete contact", http.StatusInternalServerError)
		return
	}
	if contact.OwnerID != userID {
		utils.SendJSONError(w, "Not the contact owner", http.StatusForbidden)
		return
	}

	if err := model.DeleteContact(database.DB, contactID); err != nil {
		logger.L.Error("Failed to delete contact", "contactID", contactID, "error", err)
		utils.SendJSONError(w, "Failed to delete contact", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, http.StatusOK, map[string]string{"message": "Contact deleted"})
}

func (h *ContactHandler) HandleListContactLinks(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	links, err := model.ListContactLinks(database.DB, userID)
	if err != nil {
		logger.L.Error("Failed to list contact links", "userID", userID, "error", err)
		utils.SendJSONError(w, "Failed to list contact links", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, http.StatusOK, links)
}

func (h *ContactHandler) HandleUpsertContactLink(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	var req struct {
		DisplayName  string `json:"display_name"`
		LinkedUserID int64  `json:"linked_user_id"`
		Confirmed    bool   `json:"confirmed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.DisplayName = validation.SanitizeText(strings.TrimSpace(req.DisplayName))
	if req.DisplayName == "" {
		utils.SendJSONError(w, "Display name is required", http.StatusBadRequest)
		return
	}
	if _, err := model.GetUserByID(database.DB, req.LinkedUserID); err != nil {
		utils.SendJSONError(w, "Linked user not found", http.StatusNotFound)
		return
	}

	link, err := model.UpsertContactLink(database.DB, userID, req.DisplayName, req.LinkedUserID, req.Confirmed)
	if err != nil {
		logger.L.Error("Failed to upsert contact link", "userID", userID, "error", err)
		utils.SendJSONError(w, "Failed to save contact link", http.StatusInternalServerError)
		return
	}
	logger.L.Info("Contact link saved", "userID", userID, "linkID", link.ID, "confirmed", link.Confirmed)
	utils.SendJSON(w, http.StatusOK, link)
}

func (h *ContactHandler) HandleDeleteContactLink(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}
	linkID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		utils.SendJSONError(w, "Invalid link id", http.StatusBadRequest)
		return
	}

	if err := model.DeleteContactLink(database.DB, userID, linkID); err != nil {
		logger.L.Error("Failed to delete contact link", "userID", userID, "linkID", linkID, "error", err)
		utils.SendJSONError(w, "Failed to delete contact link", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, http.StatusOK, map[string]string{"message": "Contact link deleted"})
}
