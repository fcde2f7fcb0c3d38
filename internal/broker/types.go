package broker

import (
	"context"
	"errors"
)

// ErrHandlerRequired is returned by Subscribe when no handler is given.
var ErrHandlerRequired = errors.New("handler is required")

// Handler receives one message. Handlers run sequentially per subscription and
// should not block for long.
type Handler func(ctx context.Context, data []byte)

type Broker interface {
	Topic(ctx context.Context, name string) Topic
}

type Topic interface {
	Name() string
	Publish(ctx context.Context, data []byte) error
	Subscribe(ctx context.Context, handler Handler) (Subscription, error)
}

type Subscription interface {
	ID() string
	Unsubscribe()
}
