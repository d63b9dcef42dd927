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

type GroupHandler struct {
	groupService services.GroupService
}

func NewGroupHandler(groupService services.GroupService) *GroupHandler {
	return &GroupHandler{groupService: groupService}
}

func groupIDFromURL(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "groupID"), 10, 64)
}

func (h *GroupHandler) HandleCreateGroup(w http.ResponseWriter, r *http.Request) {
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
	req.Name = validation.SanitizeText(req.Name)

	group, err := h.groupService.CreateGroup(userID, req.Name)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	logger.L.Info("Group created", "groupID", group.ID, "userID", userID)
	utils.SendJSON(w, http.StatusCreated, group)
}

func (h *GroupHandler) HandleListGroups(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	groups, err := h.groupService.ListGroups(userID)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	utils.SendJSON(w, http.StatusOK, groups)
}

func (h *GroupHandler) HandleGetGroup(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}
	groupID, err := groupIDFromURL(r)
	if err != nil {
		utils.SendJSONError(w, "Invalid group id", http.StatusBadRequest)
		return
	}

	group, err := h.groupService.GetGroup(userID, groupID)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	utils.SendJSON(w, http.StatusOK, group)
}

func (h *GroupHandler) HandleAddMember(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}
	groupID, err := groupIDFromURL(r)
	if err != nil {
		utils.SendJSONError(w, "Invalid group id", http.StatusBadRequest)
		return
	}

	var req struct {
		Member models.Counterparty `json:"member"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.Member.Name = validation.SanitizeText(req.Member.Name)

	group, err := h.groupService.AddMember(userID, groupID, req.Member)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	logger.L.Info("Group member added", "groupID", groupID, "userID", userID)
	utils.SendJSON(w, http.StatusOK, group)
}

func (h *GroupHandler) HandleAddExpense(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}
	groupID, err := groupIDFromURL(r)
	if err != nil {
		utils.SendJSONError(w, "Invalid group id", http.StatusBadRequest)
		return
	}

	var req struct {
		Payer       models.Counterparty `json:"payer"`
		Amount      models.Cents        `json:"amount"`
		Description string              `json:"description"`
		Date        string              `json:"date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.Description = validation.SanitizeText(req.Description)
	req.Payer.Name = validation.SanitizeText(req.Payer.Name)

	date, err := parseEntryDate(req.Date)
	if err != nil {
		utils.SendJSONError(w, "Invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	expense, err := h.groupService.AddExpense(userID, groupID, req.Payer, req.Amount, req.Description, date)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	logger.L.Info("Group expense added", "groupID", groupID, "userID", userID, "amount", req.Amount)
	utils.SendJSON(w, http.StatusCreated, expense)
}

func (h *GroupHandler) HandleListExpenses(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}
	groupID, err := groupIDFromURL(r)
	if err != nil {
		utils.SendJSONError(w, "Invalid group id", http.StatusBadRequest)
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

	expenses, err := h.groupService.ListExpenses(userID, groupID, from, to)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	utils.SendJSON(w, http.StatusOK, expenses)
}

func (h *GroupHandler) HandleTally(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}
	groupID, err := groupIDFromURL(r)
	if err != nil {
		utils.SendJSONError(w, "Invalid group id", http.StatusBadRequest)
		return
	}

	tally, err := h.groupService.Tally(userID, groupID)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	utils.SendJSON(w, http.StatusOK, tally)
}
