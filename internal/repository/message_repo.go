package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"ai-chatroom/internal/domain"
)

// MessageRepository es el almacén de historial: append por mensaje y
// consulta de los más recientes de una sala en orden cronológico.
type MessageRepository interface {
	Create(ctx context.Context, message domain.Message) error
	ListRecentByRoom(ctx context.Context, room string, limit int) ([]domain.Message, error)
	EnsureIndexes(ctx context.Context) error
}

// ErrStoreUnavailable envuelve los fallos del driver (conexión, consulta,
// escritura). Los llamadores lo tratan como best-effort.
var ErrStoreUnavailable = errors.New("message store unavailable")

func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

type PgMessageRepository struct {
	pool *pgxpool.Pool
}

func NewPgMessageRepository(pool *pgxpool.Pool) *PgMessageRepository {
	return &PgMessageRepository{pool: pool}
}

func (r *PgMessageRepository) EnsureIndexes(ctx context.Context) error {
	const table = `
		CREATE TABLE IF NOT EXISTS chat_messages (
			id         TEXT PRIMARY KEY,
			room       TEXT NOT NULL,
			author     TEXT NOT NULL,
			text       TEXT NOT NULL,
			role       TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)
	`
	const index = `
		CREATE INDEX IF NOT EXISTS chat_messages_room_created_at_idx
			ON chat_messages (room, created_at)
	`
	if _, err := r.pool.Exec(ctx, table); err != nil {
		return storeError("create chat_messages table", err)
	}
	_, err := r.pool.Exec(ctx, index)
	return storeError("create chat_messages index", err)
}

func (r *PgMessageRepository) Create(ctx context.Context, message domain.Message) error {
	const query = `
		INSERT INTO chat_messages (id, room, author, text, role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.pool.Exec(ctx, query,
		message.ID,
		message.Room,
		message.User,
		message.Text,
		string(message.Role),
		message.Timestamp,
	)
	return storeError("insert message", err)
}

func (r *PgMessageRepository) ListRecentByRoom(ctx context.Context, room string, limit int) ([]domain.Message, error) {
	const query = `
		SELECT id, room, author, text, role, created_at
		FROM chat_messages
		WHERE room = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, room, limit)
	if err != nil {
		return nil, storeError("query messages", err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		var role string

		err = rows.Scan(
			&msg.ID,
			&msg.Room,
			&msg.User,
			&msg.Text,
			&role,
			&msg.Timestamp,
		)
		if err != nil {
			return nil, storeError("scan message", err)
		}
		msg.Role = domain.Role(role)
		messages = append(messages, msg)
	}

	if err = rows.Err(); err != nil {
		return nil, storeError("iterate messages", err)
	}

	reverse(messages)
	return messages, nil
}

// reverse invierte in situ un resultado leído en orden descendente.
func reverse(messages []domain.Message) {
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
}
