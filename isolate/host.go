package isolate

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/alphadose/haxmap"
	"github.com/casualjim/errand/internal/broker"
	"github.com/casualjim/errand/internal/metrics"
	"github.com/casualjim/errand/pkg/slogx"
	"github.com/nats-io/nats.go"
)

// ErrHostStarted is returned when Start is called on a running host.
var ErrHostStarted = errors.New("isolate: host already started")

// Host serves the isolated side of many agents. It listens on its inbox topic
// and hands every message to the dispatcher of the agent it is addressed to.
// A dispatcher is created by the agent's init message and removed by its
// terminate message.
type Host struct {
	broker  broker.Broker
	options []Option
	name    string
	logger  *slog.Logger

	dispatchers *haxmap.Map[string, *Dispatcher]

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	sub    broker.Subscription
}

// NewHost creates a host on b.
func NewHost(b broker.Broker, options ...Option) (*Host, error) {
	c, err := newConfig("host", options)
	if err != nil {
		return nil, err
	}
	return &Host{
		broker:      b,
		options:     options,
		name:        c.host,
		logger:      c.logger.With(slog.String("host", c.host)),
		dispatchers: haxmap.New[string, *Dispatcher](),
	}, nil
}

// NATSHost creates a host that serves agents over a NATS connection.
func NATSHost(nc *nats.Conn, options ...Option) (*Host, error) {
	return NewHost(broker.NATS(nc), options...)
}

func (h *Host) Name() string {
	return h.name
}

// Start subscribes to the inbox. The host runs until ctx is done or Stop is called.
func (h *Host) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sub != nil {
		return ErrHostStarted
	}
	h.ctx, h.cancel = context.WithCancel(ctx)
	sub, err := h.broker.Topic(h.ctx, InboxTopic(h.name)).Subscribe(h.ctx, h.route)
	if err != nil {
		h.cancel()
		return err
	}
	h.sub = sub
	context.AfterFunc(h.ctx, h.Stop)
	h.logger.Info("isolate host started", slog.String("inbox", InboxTopic(h.name)))
	return nil
}

// Stop unsubscribes from the inbox and stops every dispatcher.
func (h *Host) Stop() {
	h.mu.Lock()
	sub := h.sub
	h.sub = nil
	if h.cancel != nil {
		h.cancel()
	}
	h.mu.Unlock()
	if sub == nil {
		return
	}
	sub.Unsubscribe()

	h.dispatchers.ForEach(func(agent string, _ *Dispatcher) bool {
		h.remove(agent)
		return true
	})
	h.logger.Info("isolate host stopped")
}

// Len returns the number of agents currently served.
func (h *Host) Len() int {
	return int(h.dispatchers.Len())
}

// Dispatcher returns the dispatcher serving agent.
func (h *Host) Dispatcher(agent string) (*Dispatcher, bool) {
	return h.dispatchers.Get(agent)
}

// Spawner returns a spawner whose agents are served by this host.
func (h *Host) Spawner() Spawner {
	return NewSpawner(h.broker, h.options...)
}

func (h *Host) route(ctx context.Context, data []byte) {
	if ctx.Err() != nil {
		return
	}
	m, err := Decode(data)
	if err != nil {
		metrics.RecordProtocolError("host")
		h.logger.Warn("ignoring message", slogx.Error(err), slogx.Agent(PeekAgent(data)), slogx.ByteString("data", data))
		return
	}

	if m.Kind == KindTerminate {
		if h.remove(m.Agent) {
			h.logger.Debug("terminated agent", slogx.Agent(m.Agent))
		}
		return
	}

	d, ok := h.dispatchers.Get(m.Agent)
	if !ok {
		if m.Kind != KindInit {
			metrics.RecordProtocolError("host")
			h.logger.Warn("ignoring message for unknown agent", slogx.Agent(m.Agent), slog.String("kind", string(m.Kind)))
			return
		}
		reply := h.broker.Topic(ctx, ReplyTopic(h.name, m.Agent))
		d, err = NewDispatcher(ctx, m.Agent, reply.Publish, h.options...)
		if err != nil {
			h.logger.Error("failed to create dispatcher", slogx.Error(err), slogx.Agent(m.Agent))
			return
		}
		h.dispatchers.Set(m.Agent, d)
		metrics.AddActiveDispatchers(1)
	}
	d.Handle(m)
}

func (h *Host) remove(agent string) bool {
	d, ok := h.dispatchers.GetAndDel(agent)
	if !ok {
		return false
	}
	d.Stop()
	metrics.AddActiveDispatchers(-1)
	return true
}
