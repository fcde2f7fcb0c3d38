package broker

import (
	"context"
	"log/slog"

	"github.com/alphadose/haxmap"
	"github.com/casualjim/errand/pkg/slogx"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

type natsBroker struct {
	client *nats.Conn
	topics *haxmap.Map[string, *natsTopic]
	logger *slog.Logger
}

// NATS returns a broker that maps topics onto NATS subjects.
func NATS(client *nats.Conn) Broker {
	return &natsBroker{
		client: client,
		topics: haxmap.New[string, *natsTopic](),
		logger: slog.Default().With(slogx.LoggerName("errand.broker.nats")),
	}
}

func (b *natsBroker) Topic(ctx context.Context, name string) Topic {
	top, _ := b.topics.GetOrCompute(name, func() *natsTopic {
		return &natsTopic{
			subject: name,
			client:  b.client,
			logger:  b.logger,
		}
	})
	return top
}

type natsTopic struct {
	client  *nats.Conn
	subject string
	logger  *slog.Logger
}

func (t *natsTopic) Name() string {
	return t.subject
}

func (t *natsTopic) Publish(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.client.Publish(t.subject, data)
}

// Subscribe registers handler on the subject. NATS delivers a subscription's
// messages sequentially, so the handler never runs concurrently with itself.
func (t *natsTopic) Subscribe(ctx context.Context, handler Handler) (Subscription, error) {
	if handler == nil {
		return nil, ErrHandlerRequired
	}
	nsub, err := t.client.Subscribe(t.subject, func(msg *nats.Msg) {
		handler(ctx, msg.Data)
	})
	if err != nil {
		return nil, err
	}
	// make sure the server knows about the interest before anyone publishes
	if err := t.client.Flush(); err != nil {
		_ = nsub.Unsubscribe()
		return nil, err
	}

	sub := &natsSubscription{
		id:     uuid.Must(uuid.NewV7()).String(),
		sub:    nsub,
		logger: t.logger,
	}
	sub.stop = context.AfterFunc(ctx, sub.Unsubscribe)
	return sub, nil
}

type natsSubscription struct {
	id     string
	sub    *nats.Subscription
	stop   func() bool
	logger *slog.Logger
}

func (n *natsSubscription) ID() string {
	return n.id
}

func (n *natsSubscription) Unsubscribe() {
	if n.stop != nil {
		n.stop()
	}
	if !n.sub.IsValid() {
		return
	}
	if err := n.sub.Unsubscribe(); err != nil {
		n.logger.Error("failed to unsubscribe", slogx.Error(err), slog.String("subscription", n.id))
	}
}
