// backend/src/handlers/user_handler.go

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/username/splitfolio/backend/src/database"
	"github.com/username/splitfolio/backend/src/logger"
	"github.com/username/splitfolio/backend/src/model"
	"github.com/username/splitfolio/backend/src/security"
	"github.com/username/splitfolio/backend/src/security/validation"
	"github.com/username/splitfolio/backend/src/services"
	"github.com/username/splitfolio/backend/src/utils"
)

type contextKey string

const userIDContextKey contextKey = "userID"

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
var passwordRegex = regexp.MustCompile(`^.{6,}$`)

type UserHandler struct {
	authService *security.AuthService
}

func NewUserHandler(authService *security.AuthService) *UserHandler {
	return &UserHandler{authService: authService}
}

func sendJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	logger.L.Warn("Sending JSON error to client", "message", message, "statusCode", statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// sendServiceError maps the service error taxonomy onto HTTP status codes.
// Anything outside the taxonomy is a server error and the detail stays in
// the log, not the response.
func sendServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrValidation):
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, services.ErrNotFound):
		utils.SendJSONError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, services.ErrUnauthorized):
		utils.SendJSONError(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, services.ErrConsistency):
		logger.L.Error("Ledger consistency violation", "error", err)
		utils.SendJSONError(w, "Internal ledger inconsistency", http.StatusInternalServerError)
	default:
		logger.L.Error("Unhandled service error", "error", err)
		utils.SendJSONError(w, "Internal server error", http.StatusInternalServerError)
	}
}

func GetUserIDFromContext(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value(userIDContextKey).(int64)
	return userID, ok
}

func (h *UserHandler) RegisterUserHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	req.Username = validation.SanitizeText(strings.TrimSpace(req.Username))
	req.Email = strings.ToLower(validation.SanitizeText(strings.TrimSpace(req.Email)))

	if err := validation.ValidateStringNotEmpty(req.Username, "username"); err != nil {
		sendJSONError(w, "Username is required", http.StatusBadRequest)
		return
	}
	if !emailRegex.MatchString(req.Email) {
		sendJSONError(w, "Invalid email address", http.StatusBadRequest)
		return
	}
	if !passwordRegex.MatchString(req.Password) {
		sendJSONError(w, "Password must be at least 6 characters", http.StatusBadRequest)
		return
	}

	if _, err := model.GetUserByUsername(database.DB, req.Username); err == nil {
		sendJSONError(w, "Username already taken", http.StatusConflict)
		return
	}
	if _, err := model.GetUserByEmail(database.DB, req.Email); err == nil {
		sendJSONError(w, "Email already registered", http.StatusConflict)
		return
	}

	user := &model.User{
		Username: req.Username,
		Email:    req.Email,
	}
	if err := user.HashPassword(req.Password); err != nil {
		logger.L.Error("Failed to hash password during registration", "error", err)
		sendJSONError(w, "Failed to create user", http.StatusInternalServerError)
		return
	}
	if err := user.CreateUser(database.DB); err != nil {
		logger.L.Error("Failed to create user in DB", "error", err)
		sendJSONError(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	logger.L.Info("User registered", "userID", user.ID)
	utils.SendJSON(w, http.StatusCreated, map[string]any{
		"id":       user.ID,
		"username": user.Username,
		"email":    user.Email,
	})
}

func (h *UserHandler) MeHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}
	user, err := model.GetUserByID(database.DB, userID)
	if err != nil {
		sendJSONError(w, "User not found", http.StatusNotFound)
		return
	}
	utils.SendJSON(w, http.StatusOK, map[string]any{
		"id":       user.ID,
		"username": user.Username,
		"email":    user.Email,
	})
}
