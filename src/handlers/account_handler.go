package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/username/splitfolio/backend/src/database"
	"github.com/username/splitfolio/backend/src/logger"
	"github.com/username/splitfolio/backend/src/model"
)

type DeleteAccountRequest struct {
	Password string `json:"password"`
}

// DeleteAccountHandler removes the account and its personal ledger, but keeps
// shared group history intact by converting the user's traces to guest rows
// under their old username. Groups the user created are handed to another
// registered member, or deleted when none exists.
func (h *UserHandler) DeleteAccountHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	var req DeleteAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user, err := model.GetUserByID(database.DB, userID)
	if err != nil {
		logger.L.Error("Failed to get user for account deletion", "userID", userID, "error", err)
		sendJSONError(w, "Failed to retrieve user information", http.StatusInternalServerError)
		return
	}

	if err := user.CheckPassword(req.Password); err != nil {
		logger.L.Warn("Password mismatch for account deletion", "userID", userID)
		sendJSONError(w, "Incorrect password. Account deletion failed.", http.StatusForbidden)
		return
	}

	txDB, err := database.DB.Begin()
	if err != nil {
		logger.L.Error("Failed to begin transaction for account deletion", "userID", userID, "error", err)
		sendJSONError(w, "Failed to delete account", http.StatusInternalServerError)
		return
	}
	committed := false
	defer func() {
		if !committed && txDB != nil {
			rbErr := txDB.Rollback()
			if rbErr != nil {
				logger.L.Error("Error rolling back DB transaction for account deletion", "userID", userID, "rollbackError", rbErr)
			}
		}
	}()

	// Counterparties of other users keep the record as a guest debt.
	if _, err = txDB.Exec(`
	UPDATE ledger_entries SET linked_entry_id = NULL
	WHERE linked_entry_id IN (SELECT id FROM ledger_entries WHERE user_id = ?)`, userID); err != nil {
		logger.L.Error("Failed to clear linked entry references", "userID", userID, "error", err)
		sendJSONError(w, "Failed to delete account data (ledger)", http.StatusInternalServerError)
		return
	}
	if _, err = txDB.Exec(`
	DELETE FROM confirmation_requests WHERE recipient_id = ? OR initiator_id = ?`, userID, userID); err != nil {
		logger.L.Error("Failed to delete confirmation requests for user", "userID", userID, "error", err)
		sendJSONError(w, "Failed to delete account data (requests)", http.StatusInternalServerError)
		return
	}
	if _, err = txDB.Exec(`DELETE FROM ledger_entries WHERE user_id = ?`, userID); err != nil {
		logger.L.Error("Failed to delete ledger entries for user", "userID", userID, "error", err)
		sendJSONError(w, "Failed to delete account data (ledger)", http.StatusInternalServerError)
		return
	}
	if _, err = txDB.Exec(`
	UPDATE ledger_entries SET cp_kind = 'guest', cp_user_id = NULL, cp_name = ?
	WHERE cp_user_id = ?`, user.Username, userID); err != nil {
		logger.L.Error("Failed to convert counterparty references to guest", "userID", userID, "error", err)
		sendJSONError(w, "Failed to delete account data (ledger)", http.StatusInternalServerError)
		return
	}

	// Groups with no other registered member go away along with their history.
	if _, err = txDB.Exec(`
	DELETE FROM groups WHERE created_by = ? AND NOT EXISTS (
		SELECT 1 FROM group_members gm
		WHERE gm.group_id = groups.id AND gm.user_id IS NOT NULL AND gm.user_id != ?
	)`, userID, userID); err != nil {
		logger.L.Error("Failed to delete orphaned groups", "userID", userID, "error", err)
		sendJSONError(w, "Failed to delete account data (groups)", http.StatusInternalServerError)
		return
	}
	if _, err = txDB.Exec(`
	UPDATE groups SET created_by = (
		SELECT gm.user_id FROM group_members gm
		WHERE gm.group_id = groups.id AND gm.user_id IS NOT NULL AND gm.user_id != ?
		ORDER BY gm.position LIMIT 1
	) WHERE created_by = ?`, userID, userID); err != nil {
		logger.L.Error("Failed to reassign group ownership", "userID", userID, "error", err)
		sendJSONError(w, "Failed to delete account data (groups)", http.StatusInternalServerError)
		return
	}
	if _, err = txDB.Exec(`
	UPDATE group_members SET user_id = NULL, guest_name = ? WHERE user_id = ?`, user.Username, userID); err != nil {
		logger.L.Error("Failed to convert group memberships to guest", "userID", userID, "error", err)
		sendJSONError(w, "Failed to delete account data (groups)", http.StatusInternalServerError)
		return
	}
	if _, err = txDB.Exec(`
	UPDATE group_expenses SET payer_user_id = NULL, payer_guest_name = ? WHERE payer_user_id = ?`, user.Username, userID); err != nil {
		logger.L.Error("Failed to convert paid expenses to guest", "userID", userID, "error", err)
		sendJSONError(w, "Failed to delete account data (expenses)", http.StatusInternalServerError)
		return
	}
	if _, err = txDB.Exec(`
	UPDATE expense_splits SET user_id = NULL, guest_name = ? WHERE user_id = ?`, user.Username, userID); err != nil {
		logger.L.Error("Failed to convert expense splits to guest", "userID", userID, "error", err)
		sendJSONError(w, "Failed to delete account data (expenses)", http.StatusInternalServerError)
		return
	}
	if _, err = txDB.Exec(`
	UPDATE settlements SET from_user_id = NULL, from_guest_name = ? WHERE from_user_id = ?`, user.Username, userID); err != nil {
		logger.L.Error("Failed to convert outgoing settlements to guest", "userID", userID, "error", err)
		sendJSONError(w, "Failed to delete account data (settlements)", http.StatusInternalServerError)
		return
	}
	if _, err = txDB.Exec(`
	UPDATE settlements SET to_user_id = NULL, to_guest_name = ? WHERE to_user_id = ?`, user.Username, userID); err != nil {
		logger.L.Error("Failed to convert incoming settlements to guest", "userID", userID, "error", err)
		sendJSONError(w, "Failed to delete account data (settlements)", http.StatusInternalServerError)
		return
	}

	// Sessions, contacts and contact links cascade.
	if _, err = txDB.Exec(`DELETE FROM users WHERE id = ?`, userID); err != nil {
		logger.L.Error("Failed to delete user from users table", "userID", userID, "error", err)
		sendJSONError(w, "Failed to delete user account", http.StatusInternalServerError)
		return
	}

	if err = txDB.Commit(); err != nil {
		logger.L.Error("Failed to commit transaction for account deletion", "userID", userID, "error", err)
		sendJSONError(w, "Failed to finalize account deletion", http.StatusInternalServerError)
		return
	}
	committed = true

	logger.L.Info("Account deleted successfully", "userID", userID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *UserHandler) HandleCheckUserData(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	var count int
	err := database.DB.QueryRow(`
	SELECT (SELECT COUNT(*) FROM ledger_entries WHERE user_id = ?) +
	       (SELECT COUNT(*) FROM group_members WHERE user_id = ?)`, userID, userID).Scan(&count)
	if err != nil {
		logger.L.Error("Error checking user data", "userID", userID, "error", err)
		sendJSONError(w, "failed to check user data", http.StatusInternalServerError)
		return
	}
	hasData := count > 0
	logger.L.Debug("User data check", "userID", userID, "hasData", hasData, "count", count)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"hasData": hasData})
}
