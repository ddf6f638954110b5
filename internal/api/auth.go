package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cyberlover-ai/cyberlover/internal/auth"
)

// AuthHandler handles sign-up / sign-in / sign-out.
type AuthHandler struct {
	*Handler
	limiter *RateLimiter
}

// NewAuthHandler creates an auth handler with its own rate limiter for
// credential endpoints.
func NewAuthHandler(base *Handler) *AuthHandler {
	return &AuthHandler{
		Handler: base,
		limiter: NewRateLimiter(base.cfg.RateLimit.RequestsPerWindow, base.cfg.RateLimit.WindowDuration),
	}
}

// RegisterRoutes registers auth routes.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/signup", h.SignUp)
		r.Post("/signin", h.SignIn)
		r.Post("/signout", h.SignOut)
	})
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	UserID  string `json:"user_id"`
	Email   string `json:"email"`
	Credits int    `json:"credits"`
}

// SignUp handles POST /api/auth/signup.
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	if !h.limiter.Allow(clientKey(r)) {
		Error(w, http.StatusTooManyRequests, "too many attempts, try again later")
		return
	}

	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	rec, token, err := h.auth.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		status, msg := authErrorStatus(err)
		Error(w, status, msg)
		return
	}

	auth.SetSessionCookie(w, token, h.auth.TokenTTL(), !h.isDevelopment())
	slog.Info("Account created", "user_id", rec.UserID)
	JSON(w, http.StatusCreated, sessionResponse{UserID: rec.UserID, Email: rec.Email, Credits: rec.Credits})
}

// SignIn handles POST /api/auth/signin.
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	if !h.limiter.Allow(clientKey(r)) {
		Error(w, http.StatusTooManyRequests, "too many attempts, try again later")
		return
	}

	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	rec, token, err := h.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		status, msg := authErrorStatus(err)
		Error(w, status, msg)
		return
	}

	auth.SetSessionCookie(w, token, h.auth.TokenTTL(), !h.isDevelopment())
	slog.Info("User signed in", "user_id", rec.UserID)
	JSON(w, http.StatusOK, sessionResponse{UserID: rec.UserID, Email: rec.Email, Credits: rec.Credits})
}

// SignOut handles POST /api/auth/signout. Tears down the user's ledger
// session and clears the cookie.
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	if userID := auth.UserIDFromContext(r.Context()); userID != "" {
		h.ledgers.Release(userID)
		slog.Info("User signed out", "user_id", userID)
	}
	auth.ClearSessionCookie(w, !h.isDevelopment())
	JSON(w, http.StatusOK, map[string]string{"status": "signed_out"})
}

// authErrorStatus maps auth errors to HTTP statuses and readable messages.
func authErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, auth.ErrEmailInUse):
		return http.StatusConflict, err.Error()
	case errors.Is(err, auth.ErrWeakPassword), errors.Is(err, auth.ErrInvalidEmail):
		return http.StatusBadRequest, err.Error()
	}
	slog.Error("Auth operation failed", "error", err)
	return http.StatusInternalServerError, "something went wrong, please try again"
}

// clientKey keys credential rate limiting by remote address.
func clientKey(r *http.Request) string {
	return r.RemoteAddr
}
