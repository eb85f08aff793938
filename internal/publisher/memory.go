package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Event is one captured publish.
type Event struct {
	Topic   string
	Payload []byte
}

// Memory records publishes in-process.
type Memory struct {
	mu     sync.Mutex
	events []Event
	nextID int
}

// NewMemory creates an empty in-memory publisher.
func NewMemory() *Memory {
	return &Memory{}
}

// Publish captures the event and returns a synthetic message ID.
func (m *Memory) Publish(_ context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal event payload: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.events = append(m.events, Event{Topic: topic, Payload: data})
	return fmt.Sprintf("mem-%d", m.nextID), nil
}

// Events returns all captured publishes; test helper.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}
