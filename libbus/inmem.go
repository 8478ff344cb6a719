package libbus

import (
	"context"
	"sync"
)

// InMem is an in-memory Messenger for single-process use. Publish delivers to
// local Stream subscribers; Request/Serve work as same-process request-reply.
type InMem struct {
	mu       sync.RWMutex
	closed   bool
	nextID   uint64
	streams  map[string]map[uint64]chan<- []byte
	handlers map[string]Handler
}

// NewInMem returns a new in-memory Messenger. Use for local mode (no NATS).
func NewInMem() *InMem {
	return &InMem{
		streams:  make(map[string]map[uint64]chan<- []byte),
		handlers: make(map[string]Handler),
	}
}

// Publish sends a fire-and-forget message to all Stream subscribers for the subject.
func (p *InMem) Publish(ctx context.Context, subject string, data []byte) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrConnectionClosed
	}
	// Snapshot subscribers so the lock is not held while sending.
	subs := make([]chan<- []byte, 0, len(p.streams[subject]))
	for _, ch := range p.streams[subject] {
		subs = append(subs, ch)
	}
	p.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- data:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Stream subscribes ch to the subject until ctx is done or Unsubscribe is called.
func (p *InMem) Stream(ctx context.Context, subject string, ch chan<- []byte) (Subscription, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrConnectionClosed
	}
	if p.streams[subject] == nil {
		p.streams[subject] = make(map[uint64]chan<- []byte, 1)
	}
	p.nextID++
	id := p.nextID
	p.streams[subject][id] = ch
	p.mu.Unlock()

	sub := &inmemSubscription{cancel: func() {
		p.mu.Lock()
		delete(p.streams[subject], id)
		p.mu.Unlock()
	}}

	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()

	return sub, nil
}

// Request invokes the Serve handler registered for the subject.
func (p *InMem) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, ErrConnectionClosed
	}
	handler := p.handlers[subject]
	p.mu.RUnlock()

	if handler == nil {
		return nil, ErrRequestTimeout
	}
	return handler(ctx, data)
}

// Serve registers a handler for the subject. Request calls will invoke it.
func (p *InMem) Serve(ctx context.Context, subject string, handler Handler) (Subscription, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrConnectionClosed
	}
	p.handlers[subject] = handler
	p.mu.Unlock()

	sub := &inmemSubscription{cancel: func() {
		p.mu.Lock()
		delete(p.handlers, subject)
		p.mu.Unlock()
	}}

	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()

	return sub, nil
}

// Close marks the messenger closed and drops all registrations.
func (p *InMem) Close() error {
	p.mu.Lock()
	p.closed = true
	p.streams = make(map[string]map[uint64]chan<- []byte)
	p.handlers = make(map[string]Handler)
	p.mu.Unlock()
	return nil
}

type inmemSubscription struct {
	once   sync.Once
	cancel func()
}

func (s *inmemSubscription) Unsubscribe() error {
	s.once.Do(s.cancel)
	return nil
}

var _ Messenger = (*InMem)(nil)
