package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"ai-chatroom/internal/domain"
	"ai-chatroom/internal/service"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 * 1024
)

// SocketHandler atiende GET /socket: una goroutine lectora por conexión que
// procesa los eventos en orden y una escritora que vacía la cola del hub.
type SocketHandler struct {
	logger    *zap.Logger
	chat      *service.ChatService
	hub       *Hub
	upgrader  websocket.Upgrader
	rateLimit rate.Limit
	rateBurst int
}

func NewSocketHandler(logger *zap.Logger, chat *service.ChatService, hub *Hub, ratePerSecond float64, burst int) *SocketHandler {
	limit := rate.Inf
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
	}
	if burst <= 0 {
		burst = 1
	}
	return &SocketHandler{
		logger: logger,
		chat:   chat,
		hub:    hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		rateLimit: limit,
		rateBurst: burst,
	}
}

// Serve maneja GET /socket.
func (h *SocketHandler) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	connID := uuid.NewString()
	cl := h.hub.register(connID)
	h.logger.Info("socket connected", zap.String("conn_id", connID), zap.String("client_ip", c.ClientIP()))

	go h.writePump(conn, cl)
	h.readPump(c.Request.Context(), conn, connID)
}

func (h *SocketHandler) readPump(ctx context.Context, conn *websocket.Conn, connID string) {
	defer func() {
		h.chat.Disconnect(ctx, connID)
		h.hub.unregister(connID)
		_ = conn.Close()
		h.logger.Info("socket disconnected", zap.String("conn_id", connID))
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	limiter := rate.NewLimiter(h.rateLimit, h.rateBurst)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("socket read error", zap.String("conn_id", connID), zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		h.dispatch(ctx, connID, raw, limiter)
	}
}

// dispatch valida el sobre y el payload antes de llegar al pipeline.
// Cualquier entrada mal formada se descarta sin respuesta.
func (h *SocketHandler) dispatch(ctx context.Context, connID string, raw []byte, limiter *rate.Limiter) {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		h.logger.Debug("malformed frame", zap.String("conn_id", connID), zap.Error(err))
		return
	}

	switch domain.NormalizeEvent(frame.Event) {
	case domain.EventJoin:
		var p domain.JoinPayload
		if err := json.Unmarshal(frame.Data, &p); err != nil {
			h.logger.Debug("malformed join payload", zap.String("conn_id", connID), zap.Error(err))
			return
		}
		h.chat.Join(ctx, connID, p)
	case domain.EventChatMessage:
		var p domain.ChatPayload
		if err := json.Unmarshal(frame.Data, &p); err != nil {
			h.logger.Debug("malformed chat payload", zap.String("conn_id", connID), zap.Error(err))
			return
		}
		if !limiter.Allow() {
			h.logger.Warn("chat rate limited", zap.String("conn_id", connID), zap.String("room", p.Room))
			return
		}
		h.chat.HandleChat(ctx, connID, p)
	default:
		h.logger.Debug("unknown event", zap.String("conn_id", connID), zap.String("event", frame.Event))
	}
}

func (h *SocketHandler) writePump(conn *websocket.Conn, cl *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case data, ok := <-cl.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Debug("socket write failed", zap.String("conn_id", cl.id), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
