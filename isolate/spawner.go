package isolate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/casualjim/errand/internal/broker"
	"github.com/casualjim/errand/internal/metrics"
	"github.com/casualjim/errand/pkg/slogx"
	"github.com/casualjim/errand/target"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Receiver is called with every valid message the isolated context sends back.
// Calls are sequential.
type Receiver func(Message)

// Handle is the owner's end of one isolated context.
type Handle interface {
	// ID is the agent id the isolated context knows the owner by.
	ID() string
	// Post sends m to the isolated context, addressed to this agent.
	Post(ctx context.Context, m Message) error
	// Terminate stops the isolated context and stops delivering replies.
	// It is safe to call more than once.
	Terminate(ctx context.Context) error
}

// Spawner starts isolated contexts.
type Spawner interface {
	// Start creates an isolated context and sends it init as its
	// initialization payload. The context may not be ready when Start returns;
	// messages posted in the meantime are buffered on the other side.
	Start(ctx context.Context, init target.Manifest, receive Receiver) (Handle, error)
}

type brokerSpawner struct {
	broker broker.Broker
	host   string
	logger *slog.Logger
	err    error
}

// NewSpawner creates a spawner whose isolated contexts are served by the
// host with the configured name on b.
func NewSpawner(b broker.Broker, options ...Option) Spawner {
	c, err := newConfig("spawner", options)
	return &brokerSpawner{
		broker: b,
		host:   c.host,
		logger: c.logger,
		err:    err,
	}
}

// NATSSpawner creates a spawner for a host reachable over a NATS connection.
func NATSSpawner(nc *nats.Conn, options ...Option) Spawner {
	return NewSpawner(broker.NATS(nc), options...)
}

// InProcess starts a host on an in-process broker and returns it together with
// a spawner bound to it. The host stops when ctx is done.
func InProcess(ctx context.Context, options ...Option) (*Host, Spawner, error) {
	h, err := NewHost(broker.Local(), options...)
	if err != nil {
		return nil, nil, err
	}
	if err := h.Start(ctx); err != nil {
		return nil, nil, err
	}
	return h, h.Spawner(), nil
}

func (s *brokerSpawner) Start(ctx context.Context, init target.Manifest, receive Receiver) (Handle, error) {
	if s.err != nil {
		return nil, s.err
	}
	if receive == nil {
		return nil, broker.ErrHandlerRequired
	}

	id := uuid.Must(uuid.NewV7()).String()
	h := &brokerHandle{
		id:      id,
		inbox:   s.broker.Topic(ctx, InboxTopic(s.host)),
		receive: receive,
		logger:  s.logger.With(slogx.Agent(id)),
	}

	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub, err := s.broker.Topic(subCtx, ReplyTopic(s.host, id)).Subscribe(subCtx, h.deliver)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe to replies: %w", err)
	}
	h.stop = func() {
		sub.Unsubscribe()
		cancel()
	}

	if err := h.Post(ctx, InitMessage(id, init)); err != nil {
		h.stop()
		return nil, fmt.Errorf("send init: %w", err)
	}
	return h, nil
}

type brokerHandle struct {
	id      string
	inbox   broker.Topic
	receive Receiver
	logger  *slog.Logger

	stop     func()
	stopOnce sync.Once
}

func (h *brokerHandle) ID() string {
	return h.id
}

func (h *brokerHandle) Post(ctx context.Context, m Message) error {
	m.Agent = h.id
	data, err := Encode(m)
	if err != nil {
		return err
	}
	return h.inbox.Publish(ctx, data)
}

func (h *brokerHandle) Terminate(ctx context.Context) error {
	var err error
	h.stopOnce.Do(func() {
		h.stop()
		err = h.Post(ctx, TerminateMessage(h.id))
	})
	return err
}

func (h *brokerHandle) deliver(_ context.Context, data []byte) {
	m, err := Decode(data)
	if err != nil {
		metrics.RecordProtocolError("spawner")
		h.logger.Warn("ignoring reply", slogx.Error(err), slogx.ByteString("data", data))
		return
	}
	switch {
	case m.Agent != h.id:
		err = &ProtocolError{Reason: fmt.Sprintf("reply addressed to agent %q", m.Agent), Data: data}
	case m.Kind != KindResult && m.Kind != KindError && m.Kind != KindFailure:
		err = &ProtocolError{Reason: fmt.Sprintf("unexpected %s message", m.Kind), Data: data}
	}
	if err != nil {
		metrics.RecordProtocolError("spawner")
		h.logger.Warn("ignoring reply", slogx.Error(err))
		return
	}
	h.receive(m)
}
