// Package memory keeps published harvest events in process, for local runs
// without Pub/Sub and for tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/contact-harvester/internal/harvest"
)

// DefaultCapacity bounds how many messages are retained.
const DefaultCapacity = 1000

// PublishedMessage captures one publish call.
type PublishedMessage struct {
	ID      string
	Topic   string
	Payload any
}

// Publisher retains the most recent messages up to its capacity.
type Publisher struct {
	mu       sync.RWMutex
	messages []PublishedMessage
	capacity int
	seq      int
	logger   *zap.Logger
}

// New returns a Publisher retaining up to capacity messages (DefaultCapacity when <= 0).
func New(capacity int, logger *zap.Logger) *Publisher {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{capacity: capacity, logger: logger}
}

// Publish records the message and returns a sequential pseudo id.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	p.seq++
	id := fmt.Sprintf("memory-%d", p.seq)
	p.messages = append(p.messages, PublishedMessage{ID: id, Topic: topic, Payload: payload})
	if over := len(p.messages) - p.capacity; over > 0 {
		p.messages = append(p.messages[:0:0], p.messages[over:]...)
	}
	p.mu.Unlock()

	p.logger.Debug("event published", zap.String("topic", topic), zap.String("message_id", id))
	return id, nil
}

// Messages returns the retained publishes, oldest first.
func (p *Publisher) Messages() []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PublishedMessage, len(p.messages))
	copy(out, p.messages)
	return out
}

// Events returns the retained payloads that are harvest events.
func (p *Publisher) Events() []harvest.Event {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []harvest.Event
	for _, m := range p.messages {
		if ev, ok := m.Payload.(harvest.Event); ok {
			out = append(out, ev)
		}
	}
	return out
}
