package events

import (
	"sync"

	"go.uber.org/zap"
)

// Subscriber receives events published on a MemoryPublisher.
type Subscriber func(Event)

// MemoryPublisher fans events out to in-process subscribers through a
// buffered channel. Publishing never blocks; when the buffer is full
// the event is dropped and counted in the log.
type MemoryPublisher struct {
	logger *zap.Logger
	filter *filter

	mu          sync.RWMutex
	subscribers []Subscriber

	ch     chan Event
	done   chan struct{}
	closed sync.Once
}

// NewMemoryPublisher starts the dispatch goroutine immediately.
func NewMemoryPublisher(logger *zap.Logger, eventTypes []string) *MemoryPublisher {
	p := &MemoryPublisher{
		logger: logger.Named("events.memory"),
		filter: newFilter(eventTypes),
		ch:     make(chan Event, 256),
		done:   make(chan struct{}),
	}
	go p.dispatch()
	return p
}

// Subscribe registers a consumer for subsequent events.
func (p *MemoryPublisher) Subscribe(fn Subscriber) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribers = append(p.subscribers, fn)
}

func (p *MemoryPublisher) Publish(event Event) {
	if !p.filter.allows(event.Type) {
		return
	}
	select {
	case p.ch <- event:
	default:
		p.logger.Warn("event buffer full, dropping event",
			zap.String("type", string(event.Type)))
	}
}

func (p *MemoryPublisher) dispatch() {
	for {
		select {
		case event := <-p.ch:
			p.mu.RLock()
			subs := p.subscribers
			p.mu.RUnlock()
			for _, fn := range subs {
				fn(event)
			}
		case <-p.done:
			return
		}
	}
}

func (p *MemoryPublisher) Close() error {
	p.closed.Do(func() { close(p.done) })
	return nil
}
