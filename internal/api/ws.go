package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coder/websocket"

	"github.com/cyberlover-ai/cyberlover/internal/auth"
	"github.com/cyberlover-ai/cyberlover/internal/domain"
	"github.com/cyberlover-ai/cyberlover/internal/generation"
	"github.com/cyberlover-ai/cyberlover/internal/ledger"
)

// WebSocketHandler handles WebSocket-based live chat sessions.
type WebSocketHandler struct {
	*Handler
	limiter       *RateLimiter
	allowedOrigin string
}

// NewWebSocketHandler creates a new WebSocket chat handler.
func NewWebSocketHandler(base *Handler, allowedOrigin string) *WebSocketHandler {
	return &WebSocketHandler{
		Handler:       base,
		limiter:       NewRateLimiter(base.cfg.RateLimit.RequestsPerWindow, base.cfg.RateLimit.WindowDuration),
		allowedOrigin: allowedOrigin,
	}
}

// wsMessage represents an incoming WebSocket frame.
type wsMessage struct {
	Type      string               `json:"type"`
	Message   string               `json:"message,omitempty"`
	Companion domain.CompanionType `json:"companion,omitempty"`
	Gender    domain.Gender        `json:"gender,omitempty"`
}

// wsReply represents an outgoing WebSocket frame.
type wsReply struct {
	Type      string                     `json:"type"`
	Reply     *domain.Message            `json:"reply,omitempty"`
	Error     string                     `json:"error,omitempty"`
	Credits   *int                       `json:"credits,omitempty"`
	Companion *domain.CompanionSelection `json:"companion,omitempty"`
	Metrics   *domain.UsageMetrics       `json:"metrics,omitempty"`
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	if userID == "" {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}
	slog.Info("WebSocket connection request", "user_id", userID, "ip", r.RemoteAddr)

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	led, err := h.ledgers.Acquire(r.Context(), userID)
	if err != nil {
		slog.Warn("Ledger loaded in degraded mode", "user_id", userID, "error", err)
	}

	h.readLoop(r, ws, userID, led)
	slog.Info("Chat session ended", "user_id", userID)
}

func (h *WebSocketHandler) readLoop(r *http.Request, ws *websocket.Conn, userID string, led *ledger.Ledger) {
	ctx := r.Context()
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "user_id", userID)
			} else {
				slog.Warn("WebSocket read error", "error", err, "user_id", userID)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.send(ws, userID, wsReply{Type: "error", Error: "invalid message"})
			continue
		}

		switch msg.Type {
		case "message":
			h.handleChatMessage(ws, userID, led, msg)
		case "companion":
			if err := led.SelectCompanion(msg.Companion, msg.Gender); err != nil {
				h.send(ws, userID, wsReply{Type: "error", Error: err.Error()})
				continue
			}
			sel := led.Selection()
			h.send(ws, userID, wsReply{Type: "companion", Companion: &sel, Metrics: led.Metrics()})
		case "conversation":
			led.RecordConversationStarted()
			h.send(ws, userID, wsReply{Type: "conversation", Metrics: led.Metrics()})
		case "ping":
			led.TouchLastOnline()
			h.send(ws, userID, wsReply{Type: "pong"})
		default:
			h.send(ws, userID, wsReply{Type: "error", Error: "unknown message type"})
		}
	}
}

func (h *WebSocketHandler) handleChatMessage(ws *websocket.Conn, userID string, led *ledger.Ledger, msg wsMessage) {
	text := strings.TrimSpace(msg.Message)
	if text == "" || len(text) > maxMessageLength {
		h.send(ws, userID, wsReply{Type: "error", Error: "invalid message"})
		return
	}

	sel := led.Selection()
	if sel.Type == "" {
		h.send(ws, userID, wsReply{Type: "error", Error: "select a companion first"})
		return
	}

	if !h.limiter.Allow(userID) {
		h.send(ws, userID, wsReply{Type: "error", Error: "slow down a little"})
		return
	}

	if !led.CanSend() {
		h.send(ws, userID, wsReply{Type: "error", Error: "not enough credits"})
		return
	}

	led.SpendCredits(ledger.MessageCost)

	reply := generation.FallbackReply
	if h.gen != nil {
		reply = h.gen.Reply(context.Background(), text, sel)
	}

	led.RecordMessageExchanged()

	credits := led.Credits()
	replyMsg := assistantMessage(reply)
	h.send(ws, userID, wsReply{
		Type:    "reply",
		Reply:   &replyMsg,
		Credits: &credits,
		Metrics: led.Metrics(),
	})
}

func (h *WebSocketHandler) send(ws *websocket.Conn, userID string, v wsReply) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("Failed to marshal frame", "error", err, "user_id", userID)
		return
	}
	if err := ws.Write(context.Background(), websocket.MessageText, data); err != nil {
		slog.Debug("WebSocket write error", "error", err, "user_id", userID)
	}
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDevelopment() {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" || h.allowedOrigin == "" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}
