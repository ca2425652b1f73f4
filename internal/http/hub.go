package http

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

const sendBufferSize = 64

// outboundFrame es el sobre JSON de cada evento enviado al navegador.
type outboundFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// inboundFrame es el sobre de los eventos recibidos; Data se decodifica
// según Event.
type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type client struct {
	id   string
	room string
	send chan []byte
}

// Hub mantiene las conexiones vivas y la pertenencia de cada una a su sala
// de transporte. Implementa service.Broadcaster sin bloquear: si la cola de
// un cliente lento está llena, el frame se descarta.
type Hub struct {
	logger  *zap.Logger
	mu      sync.RWMutex
	clients map[string]*client
	rooms   map[string]map[string]struct{}
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger:  logger,
		clients: make(map[string]*client),
		rooms:   make(map[string]map[string]struct{}),
	}
}

func (h *Hub) register(id string) *client {
	c := &client{id: id, send: make(chan []byte, sendBufferSize)}
	h.mu.Lock()
	h.clients[id] = c
	h.mu.Unlock()
	h.logger.Debug("client registered", zap.String("conn_id", id))
	return c
}

// unregister retira al cliente y cierra su cola; el writer termina al drenarla.
func (h *Hub) unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[id]
	if !ok {
		return
	}
	h.detachLocked(c)
	delete(h.clients, id)
	close(c.send)
	h.logger.Debug("client unregistered", zap.String("conn_id", id))
}

// detachLocked quita al cliente de su sala actual; requiere mu en escritura.
func (h *Hub) detachLocked(c *client) {
	if c.room == "" {
		return
	}
	if members, ok := h.rooms[c.room]; ok {
		delete(members, c.id)
		if len(members) == 0 {
			delete(h.rooms, c.room)
		}
	}
	c.room = ""
}

func (h *Hub) JoinRoom(connID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[connID]
	if !ok {
		return
	}
	h.detachLocked(c)
	c.room = room
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]struct{})
	}
	h.rooms[room][connID] = struct{}{}
}

func (h *Hub) LeaveRoom(connID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[connID]
	if !ok || c.room != room {
		return
	}
	h.detachLocked(c)
}

func (h *Hub) Broadcast(room, event string, payload any) {
	data, err := encodeFrame(event, payload)
	if err != nil {
		h.logger.Error("encode broadcast failed", zap.String("event", event), zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id := range h.rooms[room] {
		if c, ok := h.clients[id]; ok {
			h.deliver(c, event, data)
		}
	}
}

func (h *Hub) Send(connID, event string, payload any) {
	data, err := encodeFrame(event, payload)
	if err != nil {
		h.logger.Error("encode frame failed", zap.String("event", event), zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if c, ok := h.clients[connID]; ok {
		h.deliver(c, event, data)
	}
}

// deliver requiere mu tomado (lectura basta): unregister cierra la cola bajo escritura.
func (h *Hub) deliver(c *client, event string, data []byte) {
	select {
	case c.send <- data:
	default:
		h.logger.Warn("client send queue full, dropping frame",
			zap.String("conn_id", c.id),
			zap.String("event", event),
		)
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func encodeFrame(event string, payload any) ([]byte, error) {
	return json.Marshal(outboundFrame{Event: event, Data: payload})
}
