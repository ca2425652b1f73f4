package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ai-chatroom/internal/domain"
	"ai-chatroom/internal/llm"
)

// Broadcaster entrega eventos a conexiones individuales o a toda una sala.
// Las implementaciones no deben bloquear.
type Broadcaster interface {
	JoinRoom(connID, room string)
	LeaveRoom(connID, room string)
	Broadcast(room, event string, payload any)
	Send(connID, event string, payload any)
}

type ChatOptions struct {
	HistoryLimit      int
	MaxTokens         int
	PersonaLanguage   string
	CompletionTimeout time.Duration
	StoreTimeout      time.Duration
}

func (o ChatOptions) withDefaults() ChatOptions {
	if o.HistoryLimit <= 0 || o.HistoryLimit > DefaultHistoryLimit {
		o.HistoryLimit = DefaultHistoryLimit
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = 800
	}
	if o.PersonaLanguage == "" {
		o.PersonaLanguage = defaultPersonaLocale
	}
	if o.CompletionTimeout <= 0 {
		o.CompletionTimeout = 60 * time.Second
	}
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = 5 * time.Second
	}
	return o
}

// ChatService es el pipeline de la sala: join con historial, comandos de
// persona, relay de mensajes y respuesta del LLM.
type ChatService struct {
	logger    *zap.Logger
	rooms     *RoomRegistry
	sessions  *SessionRegistry
	messages  *MessageService
	completer llm.Completer
	out       Broadcaster
	clock     *Clock
	opts      ChatOptions
}

func NewChatService(
	logger *zap.Logger,
	rooms *RoomRegistry,
	sessions *SessionRegistry,
	messages *MessageService,
	completer llm.Completer,
	out Broadcaster,
	opts ChatOptions,
) *ChatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if completer == nil {
		completer = llm.NewDisabledClient("llm client not configured")
	}
	return &ChatService{
		logger:    logger,
		rooms:     rooms,
		sessions:  sessions,
		messages:  messages,
		completer: completer,
		out:       out,
		clock:     NewClock(),
		opts:      opts.withDefaults(),
	}
}

// Join vincula la conexión a la sala, le envía el historial y anuncia la llegada.
func (s *ChatService) Join(ctx context.Context, connID string, p domain.JoinPayload) {
	if !p.Normalize() {
		s.logger.Debug("join dropped: missing room or user", zap.String("conn_id", connID))
		return
	}
	b := domain.Binding{Room: p.Room, User: p.User}

	if prev, ok := s.sessions.Bind(connID, b); ok && prev != b {
		s.out.LeaveRoom(connID, prev.Room)
		s.release(prev)
	}

	s.rooms.Join(b.Room, b.User)
	s.out.JoinRoom(connID, b.Room)
	s.logger.Info("user joined", zap.String("room", b.Room), zap.String("user", b.User), zap.String("conn_id", connID))

	s.replayHistory(ctx, connID, b.Room)

	s.out.Broadcast(b.Room, domain.EventSystem, domain.SystemNotice{Text: fmt.Sprintf(joinNoticeFormat, b.User)})
	s.broadcastMembers(b.Room)
}

// Disconnect libera el vínculo de la conexión, si existía.
func (s *ChatService) Disconnect(_ context.Context, connID string) {
	b, ok := s.sessions.Unbind(connID)
	if !ok {
		return
	}
	s.out.LeaveRoom(connID, b.Room)
	s.release(b)
	s.logger.Info("user disconnected", zap.String("room", b.Room), zap.String("user", b.User), zap.String("conn_id", connID))
}

// release quita al usuario de la sala salvo que otra conexión lo mantenga.
func (s *ChatService) release(b domain.Binding) {
	s.sessions.ReleaseIfUnbound(b, s.rooms.Leave)
	s.broadcastMembers(b.Room)
}

func (s *ChatService) broadcastMembers(room string) {
	s.out.Broadcast(room, domain.EventMembers, domain.MembersPayload{Room: room, Users: s.rooms.Members(room)})
}

func (s *ChatService) replayHistory(ctx context.Context, connID, room string) {
	if !s.messages.Enabled() {
		return
	}
	hctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	history, err := s.messages.ListRecent(hctx, room, s.opts.HistoryLimit)
	if err != nil {
		s.logger.Warn("history query failed", zap.String("room", room), zap.Error(err))
		return
	}
	s.out.Send(connID, domain.EventHistory, history)
}

// HandleChat procesa un envío de chat. Las entradas incompletas se descartan
// en silencio.
func (s *ChatService) HandleChat(ctx context.Context, connID string, p domain.ChatPayload) {
	if !p.Valid() {
		s.logger.Debug("chat dropped: invalid payload", zap.String("conn_id", connID))
		return
	}
	// La respuesta llega a la sala aunque el autor se desconecte a mitad.
	ctx = context.WithoutCancel(ctx)

	if roleText, ok := ParsePersonaCommand(p.Text); ok {
		s.applyPersona(ctx, p.Room, p.User, roleText)
		return
	}
	s.relay(ctx, p)
}

func (s *ChatService) applyPersona(ctx context.Context, room, user, roleText string) {
	s.rooms.SetPersona(room, BuildPersonaDirective(roleText, s.opts.PersonaLanguage))
	s.logger.Info("persona set", zap.String("room", room), zap.String("user", user), zap.String("persona", roleText))

	record := domain.Message{
		Room: room,
		User: domain.AuthorSystem,
		Text: fmt.Sprintf(personaRecordFormat, roleText),
		Role: domain.RoleSystem,
	}
	s.rooms.Serialize(room, func() {
		record = s.stamp(record)
		s.out.Broadcast(room, domain.EventSystem, domain.SystemNotice{Text: fmt.Sprintf(personaNoticeFormat, roleText)})
	})
	s.persist(ctx, record)
}

func (s *ChatService) relay(ctx context.Context, p domain.ChatPayload) {
	s.emit(ctx, domain.Message{Room: p.Room, User: p.User, Text: p.Text, Role: domain.RoleUser}, true)

	persona, _ := s.rooms.Persona(p.Room)
	cctx, cancel := context.WithTimeout(ctx, s.opts.CompletionTimeout)
	reply, err := s.completer.Complete(cctx, BuildCompletionRequest(persona, p.Text), s.opts.MaxTokens)
	cancel()

	if err != nil {
		s.logger.Error("completion failed", zap.String("room", p.Room), zap.String("user", p.User), zap.Error(err))
		s.emit(ctx, domain.Message{Room: p.Room, User: domain.AuthorSystem, Text: CompletionFallback, Role: domain.RoleSystem}, false)
		return
	}
	if strings.TrimSpace(reply) == "" {
		reply = CompletionNoReply
	}
	s.emit(ctx, domain.Message{Room: p.Room, User: domain.AuthorAI, Text: reply, Role: domain.RoleAI}, true)
}

// emit sella y difunde msg como chat_message bajo el lock de la sala, de modo
// que el orden de difusión sigue al de los timestamps. La escritura en el
// almacén ocurre fuera del lock: un almacén lento sólo retrasa al autor.
func (s *ChatService) emit(ctx context.Context, msg domain.Message, persist bool) domain.Message {
	s.rooms.Serialize(msg.Room, func() {
		msg = s.stamp(msg)
		s.out.Broadcast(msg.Room, domain.EventChatMessage, msg)
	})
	if persist {
		s.persist(ctx, msg)
	}
	return msg
}

func (s *ChatService) stamp(msg domain.Message) domain.Message {
	msg.ID = uuid.NewString()
	msg.Timestamp = s.clock.Now()
	return msg
}

// persist es best-effort: un fallo se registra y el flujo continúa.
func (s *ChatService) persist(ctx context.Context, msg domain.Message) {
	if !s.messages.Enabled() {
		return
	}
	sctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	if err := s.messages.Save(sctx, msg); err != nil {
		s.logger.Warn("persist message failed",
			zap.String("room", msg.Room),
			zap.String("role", string(msg.Role)),
			zap.Error(err),
		)
	}
}

// Stats resume el estado en memoria para el endpoint de salud.
type Stats struct {
	Rooms        int  `json:"rooms"`
	Sessions     int  `json:"sessions"`
	StoreEnabled bool `json:"store_enabled"`
}

func (s *ChatService) Stats() Stats {
	return Stats{
		Rooms:        s.rooms.RoomCount(),
		Sessions:     s.sessions.Count(),
		StoreEnabled: s.messages.Enabled(),
	}
}
