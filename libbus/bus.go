// Package libbus provides the messaging boundary between the orchestrator and
// external workers. The Messenger interface abstracts over NATS for deployed
// setups and an in-memory implementation for local single-process mode.
package libbus

import (
	"context"
	"errors"
)

// Handler serves one request in a request-reply exchange.
type Handler func(ctx context.Context, data []byte) ([]byte, error)

// Subscription is a handle on an active stream or serve registration.
type Subscription interface {
	Unsubscribe() error
}

// Messenger is the transport contract. Publish/Stream is fire-and-forget
// fan-out; Request/Serve is same-subject request-reply.
type Messenger interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Stream(ctx context.Context, subject string, ch chan<- []byte) (Subscription, error)
	Request(ctx context.Context, subject string, data []byte) ([]byte, error)
	Serve(ctx context.Context, subject string, handler Handler) (Subscription, error)
	Close() error
}

var (
	ErrConnectionClosed = errors.New("libbus: connection closed")
	ErrRequestTimeout   = errors.New("libbus: request timed out")
)

// Config holds the NATS connection settings.
type Config struct {
	NATSURL      string
	NATSUser     string
	NATSPassword string
}

// NewTestPubSub returns a Messenger suitable for unit tests, backed by the
// in-memory implementation so tests need no running broker. The returned
// cleanup closes it.
func NewTestPubSub() (Messenger, func(), error) {
	ps := NewInMem()
	return ps, func() { _ = ps.Close() }, nil
}
