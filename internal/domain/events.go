package domain

import "strings"

// Nombres de eventos del protocolo de sala.
const (
	EventJoin        = "join"
	EventChatMessage = "chat_message"
	EventHistory     = "history"
	EventSystem      = "system"
	EventMembers     = "members"

	// eventChatMessageLegacy es el nombre que usan los clientes web antiguos.
	eventChatMessageLegacy = "chat message"
)

// NormalizeEvent traduce alias entrantes al nombre canónico.
func NormalizeEvent(name string) string {
	name = strings.TrimSpace(name)
	if name == eventChatMessageLegacy {
		return EventChatMessage
	}
	return name
}

type JoinPayload struct {
	Room string `json:"room"`
	User string `json:"user"`
}

// Normalize recorta espacios y reporta si el payload es utilizable.
func (p *JoinPayload) Normalize() bool {
	p.Room = strings.TrimSpace(p.Room)
	p.User = strings.TrimSpace(p.User)
	return p.Room != "" && p.User != ""
}

type ChatPayload struct {
	Room string `json:"room"`
	User string `json:"user"`
	Text string `json:"text"`
}

// Valid exige sala, usuario y texto no vacío; el texto no se modifica.
// Un texto en blanco se descarta igual que una sala o usuario ausente: no
// hay nada que difundir ni que pedir al LLM.
func (p *ChatPayload) Valid() bool {
	p.Room = strings.TrimSpace(p.Room)
	p.User = strings.TrimSpace(p.User)
	return p.Room != "" && p.User != "" && strings.TrimSpace(p.Text) != ""
}

type SystemNotice struct {
	Text string `json:"text"`
}

type MembersPayload struct {
	Room  string   `json:"room"`
	Users []string `json:"users"`
}
