package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"strconv"

	"github.com/username/splitfolio/backend/src/logger"
	"github.com/username/splitfolio/backend/src/models"
	"github.com/username/splitfolio/backend/src/security/validation"
	"github.com/username/splitfolio/backend/src/services"
	"github.com/username/splitfolio/backend/src/utils"
)

// SettlementHandler serves the derived balances and records settlement
// payments against them.
type SettlementHandler struct {
	balanceService services.BalanceService
}

func NewSettlementHandler(balanceService services.BalanceService) *SettlementHandler {
	return &SettlementHandler{balanceService: balanceService}
}

func (h *SettlementHandler) HandleGetBalances(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	balances, err := h.balanceService.ComputeBalances(userID)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	utils.SendJSON(w, http.StatusOK, balances)
}

func (h *SettlementHandler) HandleCreateSettlement(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}
	groupID, err := strconv.ParseInt(chi.URLParam(r, "groupID"), 10, 64)
	if err != nil {
		utils.SendJSONError(w, "Invalid group id", http.StatusBadRequest)
		return
	}

	var req struct {
		To     models.Counterparty `json:"to"`
		Amount models.Cents        `json:"amount"`
		Date   string              `json:"date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.To.Name = validation.SanitizeText(req.To.Name)

	date, err := parseEntryDate(req.Date)
	if err != nil {
		utils.SendJSONError(w, "Invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	settlement, err := h.balanceService.CreateSettlement(userID, groupID, req.To, req.Amount, date)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	logger.L.Info("Settlement created", "groupID", groupID, "userID", userID, "amount", req.Amount)
	utils.SendJSON(w, http.StatusCreated, settlement)
}

func (h *SettlementHandler) HandleSettlementHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	history, err := h.balanceService.SettlementHistory(userID)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	utils.SendJSON(w, http.StatusOK, history)
}
