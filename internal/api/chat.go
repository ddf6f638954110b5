package api

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cyberlover-ai/cyberlover/internal/auth"
	"github.com/cyberlover-ai/cyberlover/internal/domain"
	"github.com/cyberlover-ai/cyberlover/internal/generation"
	"github.com/cyberlover-ai/cyberlover/internal/ledger"
)

// maxMessageLength caps a single chat message.
const maxMessageLength = 4000

// sendLocks serializes chat sends per user.
var sendLocks sync.Map

// ChatHandler implements the chat endpoints.
type ChatHandler struct {
	*Handler
	limiter *RateLimiter
}

// NewChatHandler creates a chat handler with per-user send throttling.
func NewChatHandler(base *Handler) *ChatHandler {
	return &ChatHandler{
		Handler: base,
		limiter: NewRateLimiter(base.cfg.RateLimit.RequestsPerWindow, base.cfg.RateLimit.WindowDuration),
	}
}

// RegisterRoutes registers chat routes. All of them require authentication.
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/chat", func(r chi.Router) {
		r.Post("/message", h.SendMessage)
		r.Post("/companion", h.SelectCompanion)
		r.Post("/conversation", h.StartConversation)
		r.Post("/ping", h.Ping)
	})
}

func (h *ChatHandler) acquireLedger(w http.ResponseWriter, r *http.Request) (string, *ledger.Ledger, bool) {
	userID := auth.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "authentication required")
		return "", nil, false
	}
	led, err := h.ledgers.Acquire(r.Context(), userID)
	if err != nil {
		slog.Warn("Ledger loaded in degraded mode", "user_id", userID, "error", err)
	}
	return userID, led, true
}

type sendMessageRequest struct {
	Message string `json:"message"`
}

type sendMessageResponse struct {
	Reply     domain.Message            `json:"reply"`
	Credits   int                       `json:"credits"`
	Companion domain.CompanionSelection `json:"companion"`
	Metrics   *domain.UsageMetrics      `json:"metrics"`
}

// newMessageID returns a transient message identifier. Messages are never
// persisted so collisions only matter within one client session.
func newMessageID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 10)
	}
	return hex.EncodeToString(b)
}

func assistantMessage(content string) domain.Message {
	return domain.Message{
		ID:        newMessageID(),
		Content:   content,
		Sender:    domain.SenderAssistant,
		Timestamp: time.Now().UTC(),
	}
}

// SendMessage handles POST /api/chat/message. Charges one credit, forwards
// the message to the model, and records the exchange.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, led, ok := h.acquireLedger(w, r)
	if !ok {
		return
	}

	// Prevent concurrent sends from the same user.
	lock, _ := sendLocks.LoadOrStore(userID, &sync.Mutex{})
	mutex := lock.(*sync.Mutex)
	if !mutex.TryLock() {
		slog.Warn("Send already in progress", "user_id", userID)
		Error(w, http.StatusConflict, "send_in_progress")
		return
	}
	defer func() {
		mutex.Unlock()
		sendLocks.Delete(userID)
	}()

	if !h.limiter.Allow(userID) {
		Error(w, http.StatusTooManyRequests, "slow down a little")
		return
	}

	var req sendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		Error(w, http.StatusBadRequest, "message is required")
		return
	}
	if len(req.Message) > maxMessageLength {
		Error(w, http.StatusBadRequest, "message is too long")
		return
	}

	sel := led.Selection()
	if sel.Type == "" {
		Error(w, http.StatusBadRequest, "select a companion first")
		return
	}

	if !led.CanSend() {
		Error(w, http.StatusPaymentRequired, "not enough credits")
		return
	}

	// Charge before calling the model. The user is billed for the attempt;
	// model failures still return the fallback reply.
	led.SpendCredits(ledger.MessageCost)

	reply := generation.FallbackReply
	if h.gen != nil {
		reply = h.gen.Reply(r.Context(), req.Message, sel)
	}

	led.RecordMessageExchanged()

	JSON(w, http.StatusOK, sendMessageResponse{
		Reply:     assistantMessage(reply),
		Credits:   led.Credits(),
		Companion: sel,
		Metrics:   led.Metrics(),
	})
}

type selectCompanionRequest struct {
	Type   domain.CompanionType `json:"type"`
	Gender domain.Gender        `json:"gender"`
}

// SelectCompanion handles POST /api/chat/companion.
func (h *ChatHandler) SelectCompanion(w http.ResponseWriter, r *http.Request) {
	_, led, ok := h.acquireLedger(w, r)
	if !ok {
		return
	}

	var req selectCompanionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := led.SelectCompanion(req.Type, req.Gender); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"companion": led.Selection(),
		"metrics":   led.Metrics(),
	})
}

// StartConversation handles POST /api/chat/conversation. Counts at most one
// conversation per session.
func (h *ChatHandler) StartConversation(w http.ResponseWriter, r *http.Request) {
	_, led, ok := h.acquireLedger(w, r)
	if !ok {
		return
	}

	led.RecordConversationStarted()
	JSON(w, http.StatusOK, map[string]interface{}{
		"metrics": led.Metrics(),
	})
}

// Ping handles POST /api/chat/ping. Refreshes the user's last-online marker.
func (h *ChatHandler) Ping(w http.ResponseWriter, r *http.Request) {
	_, led, ok := h.acquireLedger(w, r)
	if !ok {
		return
	}

	led.TouchLastOnline()
	JSON(w, http.StatusOK, map[string]interface{}{
		"time": time.Now().UTC().Format(time.RFC3339),
	})
}
