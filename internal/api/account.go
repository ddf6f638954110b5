package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cyberlover-ai/cyberlover/internal/auth"
	"github.com/cyberlover-ai/cyberlover/internal/domain"
	"github.com/cyberlover-ai/cyberlover/internal/ledger"
)

// AccountHandler serves the signed-in user's profile and the public
// application config.
type AccountHandler struct {
	*Handler
}

// NewAccountHandler creates an account handler.
func NewAccountHandler(base *Handler) *AccountHandler {
	return &AccountHandler{Handler: base}
}

// RegisterRoutes registers account routes.
func (h *AccountHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/me", h.Me)
	r.Get("/api/config", h.AppConfig)
}

type profileResponse struct {
	UserID    string                    `json:"user_id"`
	Email     string                    `json:"email"`
	Credits   int                       `json:"credits"`
	Companion domain.CompanionSelection `json:"companion"`
	Metrics   *domain.UsageMetrics      `json:"metrics"`
}

// Me handles GET /api/me. Returns the profile for the authenticated user.
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	led, err := h.ledgers.Acquire(r.Context(), userID)
	if err != nil {
		slog.Warn("Profile served from degraded ledger", "user_id", userID, "error", err)
	} else {
		// Serve the profile from a fresh read of the remote document. Drain
		// in-flight reconciliations first so the reload cannot clobber them.
		led.Flush()
		if err := led.LoadUserRecord(r.Context(), userID); err != nil {
			slog.Warn("Profile refresh failed, serving local state", "user_id", userID, "error", err)
		}
	}

	JSON(w, http.StatusOK, profileResponse{
		UserID:    userID,
		Email:     led.Email(),
		Credits:   led.Credits(),
		Companion: led.Selection(),
		Metrics:   led.Metrics(),
	})
}

type appConfigResponse struct {
	Companions     []domain.CompanionInfo `json:"companions"`
	CreditPackages []domain.CreditPackage `json:"credit_packages"`
	MessageCost    int                    `json:"message_cost"`
	StarterCredits int                    `json:"starter_credits"`
	AIEnabled      bool                   `json:"ai_enabled"`
}

// AppConfig handles GET /api/config. Public, no auth required.
func (h *AccountHandler) AppConfig(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, appConfigResponse{
		Companions:     domain.CompanionCatalog,
		CreditPackages: domain.CreditPackages,
		MessageCost:    ledger.MessageCost,
		StarterCredits: ledger.StarterCredits,
		AIEnabled:      h.gen != nil,
	})
}
