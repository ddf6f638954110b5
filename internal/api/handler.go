// Package api provides HTTP handlers for the CyberLover API.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/cyberlover-ai/cyberlover/internal/auth"
	"github.com/cyberlover-ai/cyberlover/internal/config"
	"github.com/cyberlover-ai/cyberlover/internal/generation"
	"github.com/cyberlover-ai/cyberlover/internal/ledger"
	"github.com/cyberlover-ai/cyberlover/internal/payments"
	"github.com/cyberlover-ai/cyberlover/internal/store"
)

// maxRequestBodySize caps request bodies (64KB is plenty for chat turns).
const maxRequestBodySize = 64 << 10

// Handler provides common handler dependencies.
type Handler struct {
	repo     store.DocumentStore
	ledgers  *ledger.Manager
	auth     *auth.Service
	gen      *generation.Service
	checkout payments.Provider
	cfg      *config.Config
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.DocumentStore, ledgers *ledger.Manager, authSvc *auth.Service, gen *generation.Service, checkout payments.Provider, cfg *config.Config) *Handler {
	return &Handler{
		repo:     repo,
		ledgers:  ledgers,
		auth:     authSvc,
		gen:      gen,
		checkout: checkout,
		cfg:      cfg,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// decodeJSON decodes a bounded JSON request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (h *Handler) isDevelopment() bool {
	return h.cfg == nil || h.cfg.IsDevelopment()
}
