package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/ashureev/studyplan/internal/agent"
	"github.com/ashureev/studyplan/internal/domain"
	"github.com/ashureev/studyplan/internal/identity"
	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// Frame types.
const (
	TypeChat     = "chat"
	TypePing     = "ping"
	TypeResponse = "response"
	TypeError    = "error"
	TypePong     = "pong"
)

// Chatter runs the chat operation.
type Chatter interface {
	Chat(ctx context.Context, userID, message string) (agent.ChatResult, error)
}

// SocketObserver is told when chat sockets open and close.
type SocketObserver interface {
	SocketOpened()
	SocketClosed()
}

// chatQueueSize bounds chat frames waiting behind a pending model call.
const chatQueueSize = 8

type chatJob struct {
	userID  string
	message string
}

// Inbound is a client frame.
type Inbound struct {
	UserID  string `json:"userId,omitempty"`
	Type    string `json:"type"`
	Payload struct {
		Message string `json:"message"`
	} `json:"payload"`
}

// Outbound is a server frame.
type Outbound struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

// ChatHandler serves the duplex chat channel.
type ChatHandler struct {
	chat          Chatter
	cm            *ConnManager
	limiter       *agent.RateLimiter
	observer      SocketObserver
	allowedOrigin string
	isDev         bool
	logger        *slog.Logger
}

// Option configures a ChatHandler.
type Option func(*ChatHandler)

// WithRateLimiter throttles chat frames per user.
func WithRateLimiter(rl *agent.RateLimiter) Option {
	return func(h *ChatHandler) { h.limiter = rl }
}

// WithObserver reports socket opens and closes.
func WithObserver(obs SocketObserver) Option {
	return func(h *ChatHandler) { h.observer = obs }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *ChatHandler) { h.logger = logger }
}

// NewChatHandler creates a new WebSocket chat handler.
func NewChatHandler(chat Chatter, cm *ConnManager, allowedOrigin string, isDev bool, opts ...Option) *ChatHandler {
	h := &ChatHandler{
		chat:          chat,
		cm:            cm,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := identity.Resolve(r.Context(), r.URL.Query().Get("userId"))
	if !ok {
		http.Error(w, `{"error":"a valid userId is required"}`, http.StatusBadRequest)
		return
	}
	connID := uuid.NewString()
	h.logger.Info("Chat socket request", "user_id", userID, "conn_id", connID, "ip", r.RemoteAddr)

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			h.logger.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	h.cm.Register(userID, connID, ws)
	defer h.cm.Unregister(userID, connID, ws)
	if h.observer != nil {
		h.observer.SocketOpened()
		defer h.observer.SocketClosed()
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	jobs := make(chan chatJob, chatQueueSize)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for job := range jobs {
			h.handleChat(ctx, ws, job.userID, job.message)
		}
	}()

	h.readLoop(ctx, ws, userID, jobs)
	cancel()
	close(jobs)
	wg.Wait()
	h.logger.Info("Chat socket ended", "user_id", userID, "conn_id", connID)
}

func (h *ChatHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	h.logger.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

// readLoop dispatches frames until the socket closes. Chat frames are queued
// to a single worker so they are answered in order while pings are answered
// immediately.
func (h *ChatHandler) readLoop(ctx context.Context, ws *websocket.Conn, connUser string, jobs chan<- chatJob) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				h.logger.Debug("WebSocket closed by client", "user_id", connUser)
			} else if ctx.Err() == nil {
				h.logger.Warn("WebSocket read error", "error", err, "user_id", connUser)
			}
			return
		}

		var msg Inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			h.writeError(ctx, ws, fmt.Errorf("%w: frame is not valid JSON", domain.ErrInvalidInput))
			continue
		}

		switch msg.Type {
		case TypePing:
			h.write(ctx, ws, Outbound{Type: TypePong})
		case TypeChat:
			// A socket speaks for the user it was opened for; a frame may
			// repeat that id but never switch to another user.
			userID := connUser
			if id := strings.TrimSpace(msg.UserID); id != "" && id != connUser {
				h.writeError(ctx, ws, fmt.Errorf("%w: userId does not match this connection", domain.ErrInvalidInput))
				continue
			}
			if h.limiter != nil && !h.limiter.Allow(userID) {
				h.write(ctx, ws, Outbound{Type: TypeError, Payload: map[string]any{"error": "rate limit exceeded"}})
				continue
			}

			select {
			case jobs <- chatJob{userID: userID, message: msg.Payload.Message}:
			default:
				h.write(ctx, ws, Outbound{Type: TypeError, Payload: map[string]any{"error": "too many pending messages"}})
			}
		default:
			h.writeError(ctx, ws, fmt.Errorf("%w: unknown frame type %q", domain.ErrInvalidInput, msg.Type))
		}
	}
}

func (h *ChatHandler) handleChat(ctx context.Context, ws *websocket.Conn, userID, message string) {
	res, err := h.chat.Chat(ctx, userID, message)
	if err != nil {
		h.writeError(ctx, ws, err)
		return
	}
	h.write(ctx, ws, Outbound{Type: TypeResponse, Payload: map[string]any{"response": res.Response}})
}

func (h *ChatHandler) writeError(ctx context.Context, ws *websocket.Conn, err error) {
	h.write(ctx, ws, Outbound{Type: TypeError, Payload: map[string]any{
		"error": err.Error(),
		"kind":  domain.KindOf(err),
	}})
}

func (h *ChatHandler) write(ctx context.Context, ws *websocket.Conn, v Outbound) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Warn("Failed to marshal frame", "error", err)
		return
	}
	if err := ws.Write(ctx, websocket.MessageText, data); err != nil && ctx.Err() == nil {
		h.logger.Debug("WebSocket write error", "error", err)
	}
}
