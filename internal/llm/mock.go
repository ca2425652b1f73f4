package llm

import (
	"context"
	"sync"
)

// MockClient permite tests sin llamar a un LLM real.
type MockClient struct {
	Response string
	Err      error

	mu    sync.Mutex
	Calls [][]ChatMessage
}

func (m *MockClient) Complete(_ context.Context, messages []ChatMessage, _ int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]ChatMessage, len(messages))
	copy(cp, messages)
	m.Calls = append(m.Calls, cp)
	return m.Response, m.Err
}

// CallCount devuelve cuántas veces se invocó Complete.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// LastCall devuelve los mensajes de la última invocación, o nil.
func (m *MockClient) LastCall() []ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return nil
	}
	return m.Calls[len(m.Calls)-1]
}
