package domain

import "time"

// Role clasifica el origen de un mensaje persistido.
type Role string

const (
	RoleUser   Role = "user"
	RoleAI     Role = "ai"
	RoleSystem Role = "system"
)

// Autores reservados para mensajes sintéticos.
const (
	AuthorSystem = "system"
	AuthorAI     = "AI"
)

type Message struct {
	ID        string    `json:"id"`
	Room      string    `json:"room"`
	User      string    `json:"user"`
	Text      string    `json:"text"`
	Role      Role      `json:"role"`
	Timestamp time.Time `json:"timestamp"`
}
