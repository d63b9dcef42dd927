package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/username/splitfolio/backend/src/logger"
	"github.com/username/splitfolio/backend/src/models"
	"github.com/username/splitfolio/backend/src/security/validation"
	"github.com/username/splitfolio/backend/src/services"
	"github.com/username/splitfolio/backend/src/utils"
)

type EntryHandler struct {
	entryService        services.EntryService
	confirmationService services.ConfirmationService
}

func NewEntryHandler(entryService services.EntryService, confirmationService services.ConfirmationService) *EntryHandler {
	return &EntryHandler{
		entryService:        entryService,
		confirmationService: confirmationService,
	}
}

// entryRequest is the write payload for both plain entries and debts. The
// counterparty is required for lend/borrow and rejected otherwise.
type entryRequest struct {
	Kind           models.EntryKind      `json:"kind"`
	InvestmentKind models.InvestmentKind `json:"investment_kind,omitempty"`
	Amount         models.Cents          `json:"amount"`
	Category       string                `json:"category"`
	Description    string                `json:"description"`
	Date           string                `json:"date"`
	Counterparty   *models.Counterparty  `json:"counterparty,omitempty"`
}

func parseEntryDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Now(), nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func (h *EntryHandler) HandleAddEntry(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	var req entryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	req.Category = validation.SanitizeText(req.Category)
	req.Description = validation.SanitizeText(req.Description)
	if err := validation.ValidateStringMaxLength(req.Description, validation.MaxDescriptionLength, "description"); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	date, err := parseEntryDate(req.Date)
	if err != nil {
		utils.SendJSONError(w, "Invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	if req.Kind.IsDebt() {
		if req.Counterparty == nil {
			utils.SendJSONError(w, "Counterparty is required for lend/borrow entries", http.StatusBadRequest)
			return
		}
		entry, err := h.confirmationService.CreateDebtEntry(userID, services.DebtInput{
			Kind:         req.Kind,
			Amount:       req.Amount,
			Counterparty: *req.Counterparty,
			Description:  req.Description,
			Date:         date,
		})
		if err != nil {
			sendServiceError(w, err)
			return
		}
		utils.SendJSON(w, http.StatusCreated, entry)
		return
	}

	if req.Counterparty != nil {
		utils.SendJSONError(w, "Counterparty is only valid for lend/borrow entries", http.StatusBadRequest)
		return
	}
	entry, err := h.entryService.AddEntry(userID, services.EntryInput{
		Kind:           req.Kind,
		InvestmentKind: req.InvestmentKind,
		Amount:         req.Amount,
		Category:       req.Category,
		Description:    req.Description,
		Date:           date,
	})
	if err != nil {
		sendServiceError(w, err)
		return
	}
	utils.SendJSON(w, http.StatusCreated, entry)
}

func (h *EntryHandler) HandleListEntries(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	from, err := utils.ParseDateQuery(r, "from")
	if err != nil {
		utils.SendJSONError(w, "Invalid 'from' date, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	to, err := utils.ParseDateQuery(r, "to")
	if err != nil {
		utils.SendJSONError(w, "Invalid 'to' date, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	entries, err := h.entryService.ListEntries(userID, from, to)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	utils.SendJSON(w, http.StatusOK, entries)
}

func (h *EntryHandler) HandleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	entryID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		utils.SendJSONError(w, "Invalid entry id", http.StatusBadRequest)
		return
	}

	if err := h.entryService.DeleteEntry(userID, entryID); err != nil {
		sendServiceError(w, err)
		return
	}
	logger.L.Info("Entry deleted", "userID", userID, "entryID", entryID)
	utils.SendJSON(w, http.StatusOK, map[string]string{"message": "Entry deleted"})
}

func (h *EntryHandler) HandleAnalysis(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	summary, err := h.entryService.Analysis(userID)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	utils.SendJSON(w, http.StatusOK, summary)
}
