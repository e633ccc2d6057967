package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/records-collector/internal/apperror"
	"github.com/sakif/records-collector/internal/service"
)

// AuthHandler serves registration, login and the current-user profile.
//
// HANDLER RESPONSIBILITIES:
//   - HandleRegister → create an account (JSON body)
//   - HandleLogin    → exchange form credentials for a bearer token
//   - HandleMe       → return the authenticated user's profile
type AuthHandler struct {
	auth   *service.AuthService
	logger *slog.Logger
}

func NewAuthHandler(auth *service.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, logger: logger}
}

type registerRequest struct {
	Email    string `json:"email"    validate:"required,email,max=255"`
	Username string `json:"username" validate:"required,min=3,max=100"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// TokenResponse is the OAuth2-style password grant response.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// HandleRegister creates a user.
//
// HTTP: POST /api/v1/auth/register
// REQUEST BODY: {"email": "...", "username": "...", "password": "..."}
// RESPONSE: 201 with the public user shape (no password hash, no tokens)
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.auth.Register(r.Context(), req.Email, req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// HandleLogin issues an access token.
//
// HTTP: POST /api/v1/auth/login
// REQUEST BODY: application/x-www-form-urlencoded username=...&password=...
//
// The form encoding follows the OAuth2 password grant, so standard OAuth2
// clients can log in without custom code.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		writeError(w, apperror.ValidationFailed("body", "Invalid form body"))
		return
	}

	username := r.PostForm.Get("username")
	password := r.PostForm.Get("password")
	if username == "" {
		writeError(w, apperror.ValidationFailed("username", "username is required"))
		return
	}
	if password == "" {
		writeError(w, apperror.ValidationFailed("password", "password is required"))
		return
	}

	res, err := h.auth.Login(r.Context(), username, password)
	if err != nil {
		writeError(w, err)
		return
	}

	h.logger.Info("user logged in", slog.String("userID", res.User.ID))
	writeJSON(w, http.StatusOK, TokenResponse{AccessToken: res.Token, TokenType: "bearer"})
}

// HandleMe returns the currently authenticated user's profile.
//
// HTTP: GET /api/v1/auth/me
// Auth: Required (RequireAuth middleware sets userID in context)
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	user, err := h.auth.GetUserByID(r.Context(), userID)
	if err != nil {
		h.logger.Error("HandleMe: loading user failed", slog.String("userID", userID))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}
