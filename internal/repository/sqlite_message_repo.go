package repository

import (
	"context"
	"database/sql"
	"time"

	"ai-chatroom/internal/domain"
)

// SQLiteMessageRepository persiste mensajes en SQLite; los timestamps se
// guardan como nanosegundos unix para conservar el orden exacto.
type SQLiteMessageRepository struct {
	db *sql.DB
}

func NewSQLiteMessageRepository(db *sql.DB) *SQLiteMessageRepository {
	return &SQLiteMessageRepository{db: db}
}

func (r *SQLiteMessageRepository) EnsureIndexes(ctx context.Context) error {
	const table = `
		CREATE TABLE IF NOT EXISTS chat_messages (
			id         TEXT PRIMARY KEY,
			room       TEXT NOT NULL,
			author     TEXT NOT NULL,
			text       TEXT NOT NULL,
			role       TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)
	`
	const index = `
		CREATE INDEX IF NOT EXISTS chat_messages_room_created_at_idx
			ON chat_messages (room, created_at)
	`
	if _, err := r.db.ExecContext(ctx, table); err != nil {
		return storeError("create chat_messages table", err)
	}
	_, err := r.db.ExecContext(ctx, index)
	return storeError("create chat_messages index", err)
}

func (r *SQLiteMessageRepository) Create(ctx context.Context, message domain.Message) error {
	const query = `
		INSERT INTO chat_messages (id, room, author, text, role, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		message.ID,
		message.Room,
		message.User,
		message.Text,
		string(message.Role),
		message.Timestamp.UnixNano(),
	)
	return storeError("insert message", err)
}

func (r *SQLiteMessageRepository) ListRecentByRoom(ctx context.Context, room string, limit int) ([]domain.Message, error) {
	const query = `
		SELECT id, room, author, text, role, created_at
		FROM chat_messages
		WHERE room = ?
		ORDER BY created_at DESC
		LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, room, limit)
	if err != nil {
		return nil, storeError("query messages", err)
	}
	defer rows.Close()

	messages := []domain.Message{}
	for rows.Next() {
		var msg domain.Message
		var role string
		var nanos int64
		if err := rows.Scan(&msg.ID, &msg.Room, &msg.User, &msg.Text, &role, &nanos); err != nil {
			return nil, storeError("scan message", err)
		}
		msg.Role = domain.Role(role)
		msg.Timestamp = time.Unix(0, nanos).UTC()
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("iterate messages", err)
	}

	reverse(messages)
	return messages, nil
}
