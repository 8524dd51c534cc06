// Package live pushes session events to browsers over a websocket.
package live

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/car-advisor/backend/internal/middleware"
	"github.com/zhouzirui/car-advisor/backend/internal/model/chat"
	"github.com/zhouzirui/car-advisor/backend/internal/service/advisor"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// Handler WebSocket 实时推送处理器。
type Handler struct {
	advisor  *advisor.Service
	logger   *zap.Logger
	limiter  *middleware.Limiter
	upgrader websocket.Upgrader
}

// New 创建实时推送处理器。checkOrigin 为 nil 时接受所有来源。
// limiter 与 HTTP 路由共享，每个入站指令消耗一个令牌。
func New(svc *advisor.Service, logger *zap.Logger, limiter *middleware.Limiter, checkOrigin func(r *http.Request) bool) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Handler{
		advisor: svc,
		logger:  logger,
		limiter: limiter,
		upgrader: websocket.Upgrader{
			CheckOrigin:     checkOrigin,
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册 WebSocket 路由。
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
}

type inboundMessage struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// outgoingMessage wraps everything written to the socket.
type outgoingMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sid := middleware.SessionIDFromContext(r.Context())

	view, err := h.advisor.Snapshot(r.Context(), sid)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	events, unsubscribe, err := h.advisor.Subscribe(r.Context(), sid)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	defer unsubscribe()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("session", sid), zap.Error(err))
		return
	}
	defer conn.Close()

	h.logger.Info("live connection opened", zap.String("session", sid))
	defer h.logger.Info("live connection closed", zap.String("session", sid))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	replies := make(chan outgoingMessage, 8)
	go h.readLoop(ctx, cancel, conn, sid, middleware.RateKey(r), replies)

	if err := h.write(conn, outgoingMessage{Type: "snapshot", SessionID: sid, Data: view}); err != nil {
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case e, ok := <-events:
			if !ok {
				// session expired
				_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "session expired"), time.Now().Add(writeWait))
				return
			}
			if err := h.write(conn, eventMessage(e)); err != nil {
				return
			}
		case msg := <-replies:
			if err := h.write(conn, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// readLoop handles inbound commands. Results reach the client through the
// session's own event feed; only failures are replied to directly.
func (h *Handler) readLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, sid, rateKey string, replies chan<- outgoingMessage) {
	defer cancel()

	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", zap.String("session", sid), zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg inboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			h.reply(ctx, replies, errorMessage(sid, "invalid message"))
			continue
		}

		if msg.Type == "message" || msg.Type == "refresh" {
			if !h.limiter.Allow(rateKey) {
				h.reply(ctx, replies, errorMessage(sid, "too many requests, slow down"))
				continue
			}
		}

		var passErr error
		switch msg.Type {
		case "message":
			_, passErr = h.advisor.Message(ctx, sid, msg.Content)
		case "refresh":
			_, passErr = h.advisor.Refresh(ctx, sid)
		default:
			h.reply(ctx, replies, errorMessage(sid, "unknown message type "+msg.Type))
			continue
		}
		if passErr != nil {
			h.reply(ctx, replies, errorMessage(sid, passErr.Error()))
		}
	}
}

func (h *Handler) reply(ctx context.Context, replies chan<- outgoingMessage, msg outgoingMessage) {
	select {
	case replies <- msg:
	case <-ctx.Done():
	}
}

func (h *Handler) write(conn *websocket.Conn, msg outgoingMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		h.logger.Debug("websocket write failed", zap.String("session", msg.SessionID), zap.Error(err))
		return err
	}
	return nil
}

func eventMessage(e chat.Event) outgoingMessage {
	return outgoingMessage{
		Type:      string(e.Type),
		SessionID: e.SessionID,
		Data:      e,
		Timestamp: e.Timestamp.Unix(),
	}
}

func errorMessage(sid, message string) outgoingMessage {
	return outgoingMessage{
		Type:      string(chat.EventError),
		SessionID: sid,
		Data:      map[string]string{"message": message},
		Timestamp: time.Now().Unix(),
	}
}
