package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/consulthub/internal/apperror"
	"github.com/sakif/consulthub/internal/auth"
	"github.com/sakif/consulthub/internal/model"
	"github.com/sakif/consulthub/internal/service"
)

// AuthHandler manages accounts and sessions.
//
// HANDLER RESPONSIBILITIES:
//   - HandleRegister → POST /register
//   - HandleLogin    → POST /api/auth/login/
//   - HandleLogout   → POST /api/auth/logout/ (behind RequireAuth)
//
// Handlers check request shape only. Credential rules, uniqueness and
// sessions live in service.UserService.
type AuthHandler struct {
	users  *service.UserService
	logger *slog.Logger
}

func NewAuthHandler(users *service.UserService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{users: users, logger: logger}
}

type registerRequest struct {
	Username      string                    `json:"username"`
	Email         string                    `json:"email"`
	Password      string                    `json:"password"`
	Field         string                    `json:"field"`
	Notifications *model.NotificationsPatch `json:"notifications"`
}

// HandleRegister creates an account.
//
// HTTP: POST /register
//
//	missing keys            → 400 {"message": {"<key>": "Info required but missing"}}
//	bad credential format   → 400
//	empty field             → 400
//	bad notifications       → 400
//	username / email taken  → 409
//	ok                      → 201 with the user
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	b, err := readBody(r.Context(), r, registerSchema)
	if err != nil {
		writeError(w, err)
		return
	}

	if missing := b.missing("username", "email", "password", "field"); len(missing) > 0 {
		writeError(w, apperror.MissingFields(missing))
		return
	}

	switch {
	case b.invalid[""], b.invalid["username"], b.invalid["email"], b.invalid["password"]:
		writeError(w, apperror.ValidationFailed("username", "Invalid username, password or email(only Gmail)"))
		return
	case b.invalid["field"]:
		writeError(w, apperror.ValidationFailed("field", "Field cannot be empty"))
		return
	case b.invalid["notifications"]:
		writeError(w, apperror.ValidationFailed("notifications", "Invalid notifications"))
		return
	}

	var req registerRequest
	if err := b.decode(&req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.users.Register(r.Context(), service.RegisterInput{
		Username:      req.Username,
		Email:         req.Email,
		Password:      req.Password,
		Field:         req.Field,
		Notifications: req.Notifications,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, success("Account created successfully", user))
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenData struct {
	Token string `json:"token"`
}

// HandleLogin exchanges credentials for a session token.
//
// HTTP: POST /api/auth/login/
//
// The token goes back in data.token; clients send it as X-Api-Token.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	b, err := readBody(r.Context(), r, loginSchema)
	if err != nil {
		writeError(w, err)
		return
	}

	if len(b.missing("username", "password")) > 0 || b.invalid["username"] || b.invalid["password"] {
		writeError(w, apperror.ValidationFailed("username", "username or password missing for login"))
		return
	}

	var req loginRequest
	if err := b.decode(&req); err != nil {
		writeError(w, err)
		return
	}

	token, err := h.users.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, success("Token created", tokenData{Token: token}))
}

// HandleLogout deletes the caller's session. The same token is rejected
// from then on.
//
// HTTP: POST /api/auth/logout/
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	token, ok := auth.TokenFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("No API Authentication Token"))
		return
	}

	if err := h.users.Logout(r.Context(), token); err != nil {
		h.logger.Error("logout failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, success("Logged out successfully", nil))
}
