package isolate

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/casualjim/errand/internal/metrics"
	"github.com/casualjim/errand/pkg/loop"
	"github.com/casualjim/errand/pkg/slogx"
	"github.com/casualjim/errand/target"
)

// State is the lifecycle state of a Dispatcher.
type State uint32

const (
	// StateUninitialized waits for the init message.
	StateUninitialized State = iota
	// StateBuffering builds the target and queues calls.
	StateBuffering
	// StateReady invokes calls as they arrive.
	StateReady
	// StateFailed could not build its target; calls are dropped.
	StateFailed
	// StateStopped no longer processes messages.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateBuffering:
		return "buffering"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", uint32(s))
	}
}

// ReplyFunc publishes an encoded reply to the agent's owner.
type ReplyFunc func(ctx context.Context, data []byte) error

// Dispatcher owns the target of one agent inside an isolated context.
// The target is only ever touched from the dispatcher's loop.
type Dispatcher struct {
	ctx    context.Context
	agent  string
	reply  ReplyFunc
	codec  target.Codec
	loop   *loop.Loop
	ownsLp bool
	logger *slog.Logger

	state atomic.Uint32

	// loop-owned
	pending []Message
	target  *target.Target
}

// NewDispatcher creates a dispatcher for agent in the Uninitialized state.
func NewDispatcher(ctx context.Context, agent string, reply ReplyFunc, options ...Option) (*Dispatcher, error) {
	c, err := newConfig("dispatcher", options)
	if err != nil {
		return nil, err
	}
	d := &Dispatcher{
		ctx:    ctx,
		agent:  agent,
		reply:  reply,
		codec:  c.codec,
		loop:   c.loop,
		logger: c.logger.With(slogx.Agent(agent)),
	}
	if d.loop == nil {
		d.loop = loop.New(loop.WithLogger(d.logger))
		d.ownsLp = true
	}
	return d, nil
}

func (d *Dispatcher) Agent() string {
	return d.agent
}

func (d *Dispatcher) State() State {
	return State(d.state.Load())
}

// Handle queues m for processing on the dispatcher's loop.
func (d *Dispatcher) Handle(m Message) {
	d.loop.Submit(func() { d.process(m) })
}

// Stop halts the dispatcher. Messages still queued are discarded.
func (d *Dispatcher) Stop() {
	d.state.Store(uint32(StateStopped))
	if d.ownsLp {
		d.loop.Close()
	}
}

func (d *Dispatcher) process(m Message) {
	state := d.State()
	if state == StateStopped {
		return
	}
	switch m.Kind {
	case KindInit:
		if state != StateUninitialized {
			d.protocolError(m, "duplicate init")
			return
		}
		if m.Init == nil {
			d.protocolError(m, "init without manifest")
			return
		}
		d.state.Store(uint32(StateBuffering))
		go d.build(*m.Init)
	case KindCall:
		switch state {
		case StateReady:
			d.invoke(m)
		case StateFailed:
			d.logger.Warn("dropping call for failed target", slogx.Op(m.Op), slogx.CallID(m.ID))
		default:
			d.pending = append(d.pending, m)
		}
	default:
		d.protocolError(m, fmt.Sprintf("unexpected %s message", m.Kind))
	}
}

// build runs off the loop so that calls keep queuing while a slow blueprint
// constructs the target.
func (d *Dispatcher) build(m target.Manifest) {
	t, err := target.Build(d.ctx, m)
	d.loop.Submit(func() { d.ready(t, err) })
}

func (d *Dispatcher) ready(t *target.Target, err error) {
	if d.State() == StateStopped {
		return
	}
	if err != nil {
		d.state.Store(uint32(StateFailed))
		d.pending = nil
		d.logger.Error("failed to build target", slogx.Error(err))
		data, encErr := Encode(FailureMessage(d.agent, err))
		if encErr != nil {
			d.logger.Error("failed to encode failure", slogx.Error(encErr))
			return
		}
		d.send(data)
		return
	}

	d.target = t
	pending := d.pending
	d.pending = nil
	for _, m := range pending {
		d.invoke(m)
	}
	d.state.Store(uint32(StateReady))
}

func (d *Dispatcher) invoke(m Message) {
	logger := d.logger.With(slogx.Op(m.Op), slogx.CallID(m.ID))
	start := time.Now()

	var (
		data []byte
		err  error
	)
	op, ok := d.target.Operation(m.Op)
	if !ok {
		err = fmt.Errorf("%w: %q", target.ErrUnknownOperation, m.Op)
	} else {
		data, err = op.Call(d.ctx, d.codec, m.Args)
	}

	kind := KindResult
	if err != nil {
		kind = KindError
		logger.Debug("operation failed", slogx.Error(err))
		data, err = ErrorMessage(d.agent, m.ID, target.Detach(m.Op, err))
	} else {
		data, err = ResultMessage(d.agent, m.ID, data)
	}
	metrics.RecordDispatch(m.Op, string(kind), time.Since(start))
	if err != nil {
		logger.Error("failed to encode reply", slogx.Error(err))
		return
	}
	d.send(data)
}

func (d *Dispatcher) send(data []byte) {
	if err := d.reply(d.ctx, data); err != nil {
		d.logger.Error("failed to publish reply", slogx.Error(err))
	}
}

func (d *Dispatcher) protocolError(m Message, reason string) {
	metrics.RecordProtocolError("dispatcher")
	d.logger.Warn("ignoring message", slogx.Error(&ProtocolError{Reason: reason}), slog.String("kind", string(m.Kind)))
}
