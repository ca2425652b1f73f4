package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"ai-chatroom/internal/domain"
	"ai-chatroom/internal/repository"
)

// DefaultHistoryLimit es el máximo de mensajes que se reenvían en un join.
const DefaultHistoryLimit = 200

// MessageService encapsula el acceso al historial de mensajes. Un servicio
// sin repositorio es válido: representa persistencia deshabilitada.
type MessageService struct {
	repo repository.MessageRepository
}

var (
	ErrMessageServiceNotConfigured = errors.New("message service not configured")
	ErrMessageInvalidInput         = errors.New("message invalid input")
)

func NewMessageService(repo repository.MessageRepository) *MessageService {
	return &MessageService{repo: repo}
}

// Enabled indica si hay un almacén conectado.
func (s *MessageService) Enabled() bool {
	return s != nil && s.repo != nil
}

func (s *MessageService) Save(ctx context.Context, msg domain.Message) error {
	if !s.Enabled() {
		return ErrMessageServiceNotConfigured
	}

	msg.Room = strings.TrimSpace(msg.Room)
	msg.User = strings.TrimSpace(msg.User)
	msg.Role = domain.Role(strings.TrimSpace(string(msg.Role)))

	if msg.Room == "" || msg.User == "" || msg.Role == "" || strings.TrimSpace(msg.Text) == "" {
		return ErrMessageInvalidInput
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	return s.repo.Create(ctx, msg)
}

// ListRecent devuelve hasta limit mensajes de la sala, del más antiguo al más nuevo.
func (s *MessageService) ListRecent(ctx context.Context, room string, limit int) ([]domain.Message, error) {
	if !s.Enabled() {
		return nil, ErrMessageServiceNotConfigured
	}
	room = strings.TrimSpace(room)
	if room == "" {
		return []domain.Message{}, nil
	}
	if limit <= 0 || limit > DefaultHistoryLimit {
		limit = DefaultHistoryLimit
	}
	out, err := s.repo.ListRecentByRoom(ctx, room, limit)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.Message{}
	}
	return out, nil
}

func (s *MessageService) EnsureIndexes(ctx context.Context) error {
	if !s.Enabled() {
		return ErrMessageServiceNotConfigured
	}
	return s.repo.EnsureIndexes(ctx)
}
