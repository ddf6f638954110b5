package api

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/cyberlover-ai/cyberlover/internal/auth"
	"github.com/cyberlover-ai/cyberlover/internal/domain"
)

// pendingPurchase tracks a checkout session awaiting completion.
type pendingPurchase struct {
	UserID  string
	Credits int
}

// PaymentsHandler implements the credit purchase endpoints.
type PaymentsHandler struct {
	*Handler

	mu      sync.Mutex
	pending map[string]pendingPurchase
}

// NewPaymentsHandler creates a payments handler.
func NewPaymentsHandler(base *Handler) *PaymentsHandler {
	return &PaymentsHandler{
		Handler: base,
		pending: make(map[string]pendingPurchase),
	}
}

// RegisterRoutes registers payment routes.
func (h *PaymentsHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/payments", func(r chi.Router) {
		r.Post("/checkout", h.CreateCheckout)
		r.Post("/complete", h.CompleteCheckout)
	})
}

type checkoutRequest struct {
	PackageID string `json:"package_id"`
}

type checkoutResponse struct {
	SessionID string `json:"session_id"`
	Mock      bool   `json:"mock"`
}

// CreateCheckout handles POST /api/payments/checkout. Creates a checkout
// session for one of the fixed credit packages. Without a configured payment
// provider a mock session is issued so the purchase flow stays testable.
func (h *PaymentsHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req checkoutRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	pkg, ok := domain.PackageByID(req.PackageID)
	if !ok {
		Error(w, http.StatusBadRequest, "unknown credit package")
		return
	}

	successURL := h.cfg.BaseURL + "/payment/success?session_id={CHECKOUT_SESSION_ID}"
	cancelURL := h.cfg.BaseURL + "/payment/cancel"

	var sessionID string
	mock := h.checkout == nil
	if mock {
		id, err := mockSessionID()
		if err != nil {
			Error(w, http.StatusInternalServerError, "failed to create checkout session")
			return
		}
		sessionID = id
	} else {
		id, err := h.checkout.CreateSession(r.Context(), pkg, successURL, cancelURL)
		if err != nil {
			slog.Error("Failed to create checkout session", "error", err, "user_id", userID, "package_id", pkg.ID)
			Error(w, http.StatusBadGateway, "failed to create checkout session")
			return
		}
		sessionID = id
	}

	h.mu.Lock()
	h.pending[sessionID] = pendingPurchase{UserID: userID, Credits: pkg.Credits}
	h.mu.Unlock()

	slog.Info("Checkout session created", "user_id", userID, "package_id", pkg.ID, "mock", mock)
	JSON(w, http.StatusOK, checkoutResponse{SessionID: sessionID, Mock: mock})
}

type completeRequest struct {
	SessionID string `json:"session_id"`
}

// CompleteCheckout handles POST /api/payments/complete. Grants the pending
// package's credits to the purchasing user. Completion trusts the success
// redirect; payment state is not verified against the gateway.
func (h *PaymentsHandler) CompleteCheckout(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req completeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		Error(w, http.StatusBadRequest, "session_id is required")
		return
	}

	h.mu.Lock()
	purchase, ok := h.pending[req.SessionID]
	h.mu.Unlock()

	if !ok || purchase.UserID != userID {
		Error(w, http.StatusNotFound, "unknown checkout session")
		return
	}

	led, err := h.ledgers.Acquire(r.Context(), userID)
	if err != nil {
		slog.Warn("Ledger load failed during checkout completion", "user_id", userID, "error", err)
	}
	// Granting on an unloaded ledger would write the grant amount as the
	// absolute remote balance and wipe the user's prior credits. Keep the
	// session pending so completion can be retried once the store recovers.
	if !led.Loaded() {
		Error(w, http.StatusServiceUnavailable, "account temporarily unavailable, try again shortly")
		return
	}

	// Consume the session exactly once; a concurrent completion of the same
	// session must not double-grant.
	h.mu.Lock()
	_, still := h.pending[req.SessionID]
	delete(h.pending, req.SessionID)
	h.mu.Unlock()
	if !still {
		Error(w, http.StatusNotFound, "unknown checkout session")
		return
	}

	led.GrantCredits(purchase.Credits)

	slog.Info("Credits granted", "user_id", userID, "credits", purchase.Credits)
	JSON(w, http.StatusOK, map[string]interface{}{
		"credits_added": purchase.Credits,
		"credits":       led.Credits(),
	})
}

func mockSessionID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	return "mock_" + hex.EncodeToString(b), nil
}
