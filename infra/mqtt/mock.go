package mqtt

import (
	"context"
	"fmt"
	"sync"

	"github.com/mobiis/cargodispatch/core/model"
)

// MockBus is a simple notification bus used in tests.
type MockBus struct {
	Published  map[string][]model.DispatchDecision
	FailTopics map[string]bool
	mu         sync.Mutex
}

// NewMockBus creates a new MockBus.
func NewMockBus() *MockBus {
	return &MockBus{
		Published:  make(map[string][]model.DispatchDecision),
		FailTopics: make(map[string]bool),
	}
}

// Publish records the decision or returns an error if configured to fail.
func (m *MockBus) Publish(_ context.Context, topic string, decision model.DispatchDecision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailTopics[topic] {
		return fmt.Errorf("publish failed")
	}
	m.Published[topic] = append(m.Published[topic], decision)
	return nil
}

// Count returns the number of decisions published on topic.
func (m *MockBus) Count(topic string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Published[topic])
}
