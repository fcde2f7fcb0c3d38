package broker

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alphadose/haxmap"
	"github.com/casualjim/errand/pkg/slogx"
	"github.com/google/uuid"
)

const defaultSubscriptionBuffer = 256

type localBroker struct {
	topics *haxmap.Map[string, *topic]
	logger *slog.Logger
}

// Local returns an in-process broker.
func Local() Broker {
	return &localBroker{
		topics: haxmap.New[string, *topic](),
		logger: slog.Default().With(slogx.LoggerName("errand.broker.local")),
	}
}

func (b *localBroker) Topic(ctx context.Context, name string) Topic {
	t, _ := b.topics.GetOrCompute(name, func() *topic {
		return &topic{
			name:          name,
			subscriptions: haxmap.New[string, *subscription](),
			logger:        b.logger,
		}
	})
	return t
}

type topic struct {
	name          string
	subscriptions *haxmap.Map[string, *subscription]
	logger        *slog.Logger
}

func (t *topic) Name() string {
	return t.name
}

// Publish delivers data to every current subscriber, blocking while a
// subscriber's buffer is full.
func (t *topic) Publish(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var err error
	t.subscriptions.ForEach(func(_ string, sub *subscription) bool {
		if sub == nil {
			return true
		}
		select {
		case <-ctx.Done():
			err = ctx.Err()
			return false
		case <-sub.closed:
		case <-sub.ctx.Done():
			sub.Unsubscribe()
		case sub.channel <- bytes.Clone(data):
		}
		return true
	})
	return err
}

func (t *topic) Subscribe(ctx context.Context, handler Handler) (Subscription, error) {
	if handler == nil {
		return nil, ErrHandlerRequired
	}
	id := uuid.Must(uuid.NewV7()).String()
	sub := &subscription{
		id:      id,
		ctx:     ctx,
		channel: make(chan []byte, defaultSubscriptionBuffer),
		closed:  make(chan struct{}),
		onClose: func() { t.subscriptions.Del(id) },
		handler: handler,
		logger:  t.logger.With(slog.String("topic", t.name)),
	}
	t.subscriptions.Set(id, sub)
	go sub.forwardToHandler()
	return sub, nil
}

type subscription struct {
	id        string
	ctx       context.Context
	channel   chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	onClose   func()
	handler   Handler
	logger    *slog.Logger
}

func (s *subscription) ID() string {
	return s.id
}

func (s *subscription) Unsubscribe() {
	s.closeOnce.Do(func() {
		if s.onClose != nil {
			s.onClose()
		}
		close(s.closed)
	})
}

func (s *subscription) forwardToHandler() {
	for {
		select {
		case data := <-s.channel:
			s.deliver(data)
		case <-s.closed:
			return
		case <-s.ctx.Done():
			s.Unsubscribe()
			return
		}
	}
}

func (s *subscription) deliver(data []byte) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("recovered panic in subscription handler", slogx.Error(fmt.Errorf("%v", r)))
		}
	}()
	s.handler(s.ctx, data)
}
