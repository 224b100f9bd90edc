package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/citypolls/internal/auth"
	"github.com/sakif/citypolls/internal/service"
)

// AuthHandler exposes registration, login, and logout.
//
// HANDLER RESPONSIBILITIES:
//   - HandleRegister → create an account (201, user without password hash)
//   - HandleLogin    → exchange email+password for a JWT
//   - HandleLogout   → clear the token cookie
//
// Login returns the token in the body for API clients and also sets it as an
// HttpOnly cookie so a browser session works without client-side storage.
type AuthHandler struct {
	auth     *service.AuthService
	tokenTTL time.Duration
	logger   *slog.Logger
}

func NewAuthHandler(authService *service.AuthService, tokenTTL time.Duration, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:     authService,
		tokenTTL: tokenTTL,
		logger:   logger,
	}
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	City     string `json:"city"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is what a successful login returns.
type LoginResponse struct {
	Token  string `json:"token"`
	Email  string `json:"email"`
	UserID string `json:"userId"`
}

// HandleRegister creates an account.
//
// HTTP: POST /api/auth/register
// REQUEST BODY: {"username":"rafi","email":"rafi@example.com","password":"...","city":"Dhaka"}
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.auth.Register(r.Context(), service.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		City:     req.City,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// HandleLogin verifies credentials and issues a token.
//
// HTTP: POST /api/auth/login
// REQUEST BODY: {"email":"rafi@example.com","password":"..."}
// RESPONSE: {"token":"<jwt>","email":"rafi@example.com","userId":"..."}
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	// HttpOnly keeps the token away from scripts; SameSite=Lax keeps it off
	// cross-site POSTs. Secure belongs behind TLS termination.
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    res.Token,
		Path:     "/",
		MaxAge:   int(h.tokenTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, LoginResponse{
		Token:  res.Token,
		Email:  res.User.Email,
		UserID: res.User.ID,
	})
}

// HandleLogout clears the token cookie.
//
// HTTP: POST /api/auth/logout
//
// Tokens are stateless, so a bearer token stays valid until it expires;
// logout only removes the browser's copy.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, MessageResponse{Message: "logged out"})
}
