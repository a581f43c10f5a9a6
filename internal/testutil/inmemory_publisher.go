package testutil

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/clinicflow/clinicflow/internal/pubsub"
)

var _ pubsub.Publisher = (*InMemoryPublisher)(nil)

// InMemoryPublisher records every published message per topic
type InMemoryPublisher struct {
	mu       sync.Mutex
	messages map[string][]*message.Message
	err      error
}

func NewInMemoryPublisher() *InMemoryPublisher {
	return &InMemoryPublisher{messages: make(map[string][]*message.Message)}
}

func (p *InMemoryPublisher) Publish(ctx context.Context, topic string, msg *message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages[topic] = append(p.messages[topic], msg)
	return nil
}

// FailWith makes every following Publish return err
func (p *InMemoryPublisher) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *InMemoryPublisher) Messages(topic string) []*message.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*message.Message(nil), p.messages[topic]...)
}

func (p *InMemoryPublisher) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = make(map[string][]*message.Message)
	p.err = nil
}

func (p *InMemoryPublisher) Close() error {
	return nil
}
