package mocks

import (
	"context"
	"sync"

	"github.com/Ramsey-B/clover/pkg/kafka"
)

// Publisher records published events
type Publisher struct {
	mu     sync.Mutex
	Events []kafka.Event
	Err    error
}

var _ kafka.Publisher = (*Publisher)(nil)

func (p *Publisher) Publish(_ context.Context, evt *kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.Events = append(p.Events, *evt)
	return nil
}

// Types returns the types of the recorded events in order
func (p *Publisher) Types() []kafka.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]kafka.EventType, 0, len(p.Events))
	for _, e := range p.Events {
		types = append(types, e.Type)
	}
	return types
}
