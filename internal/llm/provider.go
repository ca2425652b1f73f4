package llm

import (
	"context"
	"errors"
)

// Roles aceptados por la API de chat completions.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var ErrCompletionDisabled = errors.New("llm completion disabled")

// ChatMessage es un turno de la conversación enviada al proveedor.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completer define la interfaz para pedir una respuesta al LLM.
type Completer interface {
	Complete(ctx context.Context, messages []ChatMessage, maxTokens int) (string, error)
}

type disabledClient struct {
	reason string
}

// NewDisabledClient devuelve un Completer que siempre falla; se usa cuando
// no hay API key configurada.
func NewDisabledClient(reason string) Completer {
	return &disabledClient{reason: reason}
}

func (c *disabledClient) Complete(context.Context, []ChatMessage, int) (string, error) {
	if c.reason == "" {
		return "", ErrCompletionDisabled
	}
	return "", errors.Join(ErrCompletionDisabled, errors.New(c.reason))
}
