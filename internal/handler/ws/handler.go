// Package ws exposes the reply and feedback flows over a WebSocket. Each
// inbound frame is answered with exactly one outbound frame.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/wingchat/backend/internal/model/chat"
	"github.com/zhouzirui/wingchat/backend/pkg/utils"
)

const (
	defaultPongWait     = 60 * time.Second
	defaultPingInterval = 25 * time.Second
	writeWait           = 10 * time.Second
	maxFrame            = 1 << 20
)

// Frame types.
const (
	TypeReply     = "reply"
	TypeFeedback  = "feedback"
	TypeConnected = "connected"
	TypeError     = "error"
)

// Dispatcher runs a flow and returns the HTTP status and envelope it would
// have produced on the REST surface.
type Dispatcher interface {
	Reply(ctx context.Context, req chat.ReplyRequest) (int, any)
	Feedback(ctx context.Context, req chat.EvaluationRequest) (int, any)
}

type inboundMessage struct {
	Type string          `json:"type"`
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	Status    int    `json:"status,omitempty"`
	Data      any    `json:"data"`
	Timestamp int64  `json:"timestamp"`
}

// Handler WebSocket处理器
type Handler struct {
	dispatch     Dispatcher
	logger       *zap.Logger
	upgrader     websocket.Upgrader
	pongWait     time.Duration
	pingInterval time.Duration
}

// Option configures a Handler.
type Option func(*Handler)

// WithKeepalive overrides how long an idle connection may go without a pong
// and how often the server pings. pingInterval must be shorter than pongWait.
func WithKeepalive(pongWait, pingInterval time.Duration) Option {
	return func(h *Handler) {
		if pongWait > 0 && pingInterval > 0 && pingInterval < pongWait {
			h.pongWait = pongWait
			h.pingInterval = pingInterval
		}
	}
}

// New 创建WebSocket处理器。allowedOrigins 与 CORS 配置一致，"*" 或空列表表示接受任意来源。
func New(dispatch Dispatcher, allowedOrigins []string, logger *zap.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		dispatch: dispatch,
		logger:   logger.Named("ws"),
		upgrader: websocket.Upgrader{
			CheckOrigin:     originChecker(allowedOrigins),
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		pongWait:     defaultPongWait,
		pingInterval: defaultPingInterval,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	connID := uuid.NewString()
	logger := h.logger.With(zap.String("conn_id", connID))
	logger.Info("connection opened")
	defer logger.Info("connection closed")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadLimit(maxFrame)
	_ = conn.SetReadDeadline(time.Now().Add(h.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.pongWait))
	})

	go pingLoop(ctx, conn, h.pingInterval)

	if err := h.send(conn, outgoingMessage{
		Type: TypeConnected,
		ID:   connID,
		Data: map[string]string{"connectionId": connID},
	}); err != nil {
		return
	}

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("read error", zap.Error(err))
			}
			return
		}
		// Pongs are only processed while reading, so a slow flow must not
		// run against the idle deadline.
		_ = conn.SetReadDeadline(time.Time{})

		out := h.handleMessage(ctx, &msg)
		if err := h.send(conn, out); err != nil {
			logger.Warn("write error", zap.Error(err))
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(h.pongWait))
	}
}

func (h *Handler) handleMessage(ctx context.Context, msg *inboundMessage) outgoingMessage {
	id := strings.TrimSpace(msg.ID)
	if id == "" {
		id = uuid.NewString()
	}

	switch msg.Type {
	case TypeReply:
		var req chat.ReplyRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			return errorFrame(id, "invalid reply payload")
		}
		status, body := h.dispatch.Reply(ctx, req)
		return outgoingMessage{Type: TypeReply, ID: id, Status: status, Data: body}
	case TypeFeedback:
		var req chat.EvaluationRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			return errorFrame(id, "invalid feedback payload")
		}
		status, body := h.dispatch.Feedback(ctx, req)
		return outgoingMessage{Type: TypeFeedback, ID: id, Status: status, Data: body}
	default:
		return errorFrame(id, "unsupported message type: "+msg.Type)
	}
}

func errorFrame(id, message string) outgoingMessage {
	return outgoingMessage{
		Type:   TypeError,
		ID:     id,
		Status: http.StatusBadRequest,
		Data:   utils.ErrorBody{Error: message, Done: true},
	}
}

func (h *Handler) send(conn *websocket.Conn, msg outgoingMessage) error {
	msg.Timestamp = time.Now().UnixMilli()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}

// pingLoop keeps idle connections alive. WriteControl is safe to call
// concurrently with WriteJSON.
func pingLoop(ctx context.Context, conn *websocket.Conn, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		if origin != "" {
			set[origin] = struct{}{}
		}
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
