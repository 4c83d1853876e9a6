package tokenstore

import (
	"context"
	"sync"
)

// Memory keeps tokens in process memory only.
type Memory struct {
	mu     sync.RWMutex
	tokens Tokens
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Load(ctx context.Context) (Tokens, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tokens, nil
}

func (m *Memory) Save(ctx context.Context, tokens Tokens) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = tokens
	return nil
}

func (m *Memory) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = Tokens{}
	return nil
}

func (m *Memory) Close() error {
	return nil
}
