package http

import (
	_ "embed"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ai-chatroom/internal/service"
)

//go:embed static/index.html
var indexHTML []byte

// NewRouter configura el router de Gin con middlewares y rutas base.
func NewRouter(
	logger *zap.Logger,
	socketH *SocketHandler,
	healthH *HealthHandler,
) *gin.Engine {
	r := gin.New()

	// Middlewares basicos: logging y recovery.
	r.Use(zapLoggerMiddleware(logger), gin.Recovery())

	r.GET("/", serveIndex)
	r.GET("/socket", socketH.Serve)
	r.GET("/healthz", jsonContentTypeMiddleware(), healthH.Health)

	return r
}

// serveIndex devuelve la página fija del cliente.
func serveIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML)
}

// HealthHandler expone el estado en memoria y la configuración efectiva.
type HealthHandler struct {
	chat       *service.ChatService
	hub        *Hub
	llmEnabled bool
}

func NewHealthHandler(chat *service.ChatService, hub *Hub, llmEnabled bool) *HealthHandler {
	return &HealthHandler{chat: chat, hub: hub, llmEnabled: llmEnabled}
}

// Health maneja GET /healthz.
func (h *HealthHandler) Health(c *gin.Context) {
	stats := h.chat.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"rooms":         stats.Rooms,
		"sessions":      stats.Sessions,
		"connections":   h.hub.ClientCount(),
		"store_enabled": stats.StoreEnabled,
		"llm_enabled":   h.llmEnabled,
	})
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}
