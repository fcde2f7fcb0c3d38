package executor

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/casualjim/errand/future"
	"github.com/casualjim/errand/internal/metrics"
	"github.com/casualjim/errand/isolate"
	"github.com/casualjim/errand/pkg/slogx"
	"github.com/casualjim/errand/target"
)

var _ Executor = (*Remote)(nil)

// Remote runs operations in an isolated context started through a spawner.
type Remote struct {
	cfg    Config
	table  *callTable
	logger *slog.Logger
	// onFailure is told when the isolated context reports that it cannot serve the agent.
	onFailure func(error)

	mu     sync.Mutex
	handle isolate.Handle
	failed bool
}

// NewRemote starts an isolated context for t. The context may still be
// building its target when NewRemote returns; calls made in the meantime are
// buffered on the other side.
func NewRemote(t *target.Target, spawner isolate.Spawner, cfg Config, onFailure func(error)) (*Remote, error) {
	r := &Remote{
		cfg:       cfg.withDefaults(BackendRemote),
		table:     newCallTable(),
		onFailure: onFailure,
	}
	r.logger = r.cfg.Logger

	h, err := spawner.Start(r.cfg.Context, t.Manifest(), r.receive)
	if err != nil {
		return nil, fmt.Errorf("start isolated context: %w", err)
	}

	r.mu.Lock()
	r.handle = h
	r.logger = r.logger.With(slogx.Agent(h.ID()))
	failed := r.failed
	r.mu.Unlock()
	if failed {
		r.terminate(h)
	}
	return r, nil
}

func (r *Remote) Backend() string {
	return BackendRemote
}

// ID returns the agent id the isolated context knows this executor by.
func (r *Remote) ID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handle == nil {
		return ""
	}
	return r.handle.ID()
}

// Pending returns the number of calls waiting for a reply.
func (r *Remote) Pending() int {
	return r.table.len()
}

func (r *Remote) Call(op target.Operation, arg any) *future.Future {
	f := future.New(r.cfg.Scheduler, r.cfg.Owner)
	metrics.RecordCall(BackendRemote, op.Name())

	args, err := op.EncodeArg(r.cfg.Codec, arg)
	if err != nil {
		r.cfg.Scheduler.Submit(func() { r.resolve(f, future.ErrorReply(err)) })
		return f
	}

	// Fail cannot reset the table or terminate between the check and the post.
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failed {
		r.cfg.Scheduler.Submit(func() { r.resolve(f, future.ErrorReply(ErrAgentFailed)) })
		return f
	}

	h := r.handle
	id := r.table.register(&pendingCall{future: f, op: op})
	if err := h.Post(r.cfg.Context, isolate.CallMessage(h.ID(), id, op.Name(), args)); err != nil {
		if call, ok := r.table.take(id); ok {
			err = fmt.Errorf("post %s: %w", op.Name(), err)
			r.cfg.Scheduler.Submit(func() { r.resolve(call.future, future.ErrorReply(err)) })
		}
	}
	return f
}

// receive hands a reply over to the scheduler, where all resolution happens.
func (r *Remote) receive(m isolate.Message) {
	r.cfg.Scheduler.Submit(func() { r.handleReply(m) })
}

func (r *Remote) handleReply(m isolate.Message) {
	r.mu.Lock()
	failed := r.failed
	logger := r.logger
	r.mu.Unlock()
	if failed {
		logger.Debug("dropping reply for failed agent", slogx.CallID(m.ID), slog.String("kind", string(m.Kind)))
		return
	}

	if m.Kind == isolate.KindFailure {
		reason := fmt.Errorf("%w: %s", ErrIsolateFailed, m.Reason)
		logger.Error("isolated context failed", slogx.Error(reason))
		if r.onFailure != nil {
			r.onFailure(reason)
		} else {
			r.Fail(reason)
		}
		return
	}

	call, ok := r.table.take(m.ID)
	if !ok {
		metrics.RecordProtocolError("executor")
		logger.Warn("ignoring reply", slogx.Error(&isolate.ProtocolError{Reason: fmt.Sprintf("reply for unknown call %d", m.ID)}))
		return
	}

	switch m.Kind {
	case isolate.KindError:
		opErr := m.Error
		if opErr == nil {
			opErr = &target.OperationError{Op: call.op.Name(), Message: "unknown error"}
		}
		r.resolve(call.future, future.ErrorReply(opErr))
	default:
		v, err := call.op.DecodeResult(r.cfg.Codec, m.Result)
		if err != nil {
			r.resolve(call.future, future.ErrorReply(err))
			return
		}
		r.resolve(call.future, future.ResultReply(v))
	}
}

func (r *Remote) resolve(f *future.Future, rep future.Reply) {
	resolve(r.log(), BackendRemote, f, rep)
}

// log returns the logger, which gains the agent id once the context started.
func (r *Remote) log() *slog.Logger {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.logger
}

// Fail clears the call table, resets ids and terminates the isolated context.
// Pending calls are abandoned, or resolved with ErrAgentFailed when
// FailPending is set.
func (r *Remote) Fail(reason error) {
	r.mu.Lock()
	if r.failed {
		r.mu.Unlock()
		return
	}
	r.failed = true
	h, logger := r.handle, r.logger
	r.mu.Unlock()

	metrics.RecordAgentFailure(BackendRemote)
	pending := r.table.reset()
	logger.Info("remote agent failed", slogx.Error(reason), slog.Int("pending", len(pending)))

	if r.cfg.FailPending && len(pending) > 0 {
		err := fmt.Errorf("%w: %w", ErrAgentFailed, reason)
		r.cfg.Scheduler.Submit(func() {
			for _, call := range pending {
				r.resolve(call.future, future.ErrorReply(err))
			}
		})
	}
	if h != nil {
		r.terminate(h)
	}
}

func (r *Remote) terminate(h isolate.Handle) {
	if err := h.Terminate(r.cfg.Context); err != nil {
		r.log().Error("failed to terminate isolated context", slogx.Error(err))
	}
}
