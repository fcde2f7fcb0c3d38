package errand

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/casualjim/errand/future"
	"github.com/casualjim/errand/internal/executor"
	"github.com/casualjim/errand/isolate"
	"github.com/casualjim/errand/pkg/loop"
	"github.com/casualjim/errand/pkg/slogx"
	"github.com/casualjim/errand/target"
	"github.com/fogfish/opts"
	"github.com/google/uuid"
)

// BackendKind names where an agent runs its operations.
type BackendKind string

const (
	// Local runs operations on the caller's scheduler.
	Local BackendKind = executor.BackendLocal
	// Remote runs operations in an isolated context.
	Remote BackendKind = executor.BackendRemote
)

type (
	Future = future.Future
	Reply  = future.Reply
)

// Stub invokes one operation and returns its future immediately.
// Operations without input ignore arg.
type Stub func(arg any) *Future

// Agent exposes a target's operations as send stubs bound to one backend.
// The embedded Observers are notified for every call made through the agent.
type Agent struct {
	*future.Observers

	id      string
	backend BackendKind
	target  *target.Target
	sched   future.Scheduler
	logger  *slog.Logger

	// blueprint is the private blueprint a remote agent on the default host
	// registered for its target.
	blueprint string

	mu     sync.RWMutex
	exec   executor.Executor
	send   map[string]Stub
	failed bool
	reason error
	onFail func(error)
}

var defaultSpawner = sync.OnceValues(func() (isolate.Spawner, error) {
	_, spawner, err := isolate.InProcess(context.Background())
	return spawner, err
})

// New creates an agent for t.
func New(t *target.Target, options ...Option) (*Agent, error) {
	var c config
	if err := opts.Apply(&c, options); err != nil {
		return nil, err
	}
	if c.backend == "" {
		c.backend = Local
	}
	if c.ctx == nil {
		c.ctx = context.Background()
	}
	if c.scheduler == nil {
		c.scheduler = loop.Default()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}

	a := &Agent{
		Observers: &future.Observers{},
		backend:   c.backend,
		target:    t,
		sched:     c.scheduler,
	}
	cfg := executor.Config{
		Context:     c.ctx,
		Scheduler:   c.scheduler,
		Owner:       a.Observers,
		Codec:       c.codec,
		Logger:      c.logger,
		FailPending: c.failPending,
	}

	// Fail waits for the executor to be in place.
	a.mu.Lock()
	defer a.mu.Unlock()

	switch c.backend {
	case Local:
		cfg.Isolate = DefaultValueIsolation
		if c.isolation != nil {
			cfg.Isolate = *c.isolation
		}
		a.id = uuid.Must(uuid.NewV7()).String()
		a.exec = executor.NewLocal(cfg)
	case Remote:
		spawner, rt := c.spawner, t
		if spawner == nil {
			var err error
			if spawner, err = defaultSpawner(); err != nil {
				return nil, err
			}
			a.blueprint = t.Kind() + "#" + uuid.Must(uuid.NewV7()).String()
			target.Register(a.blueprint, target.Static(t))
			rt = t.Alias(a.blueprint)
		}
		rex, err := executor.NewRemote(rt, spawner, cfg, func(reason error) { a.Fail(reason) })
		if err != nil {
			a.releaseBlueprint()
			return nil, err
		}
		a.id = rex.ID()
		a.exec = rex
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, c.backend)
	}

	a.logger = c.logger.With(slogx.LoggerName("errand.agent"), slogx.Agent(a.id), slog.String("backend", string(a.backend)))
	a.send = make(map[string]Stub, t.Len())
	for _, name := range t.Names() {
		op, _ := t.Operation(name)
		a.send[name] = func(arg any) *Future { return a.dispatch(op, arg) }
	}
	return a, nil
}

// releaseBlueprint drops the private blueprint of an agent on the default host.
func (a *Agent) releaseBlueprint() {
	if a.blueprint != "" {
		target.Blueprints.Del(a.blueprint)
	}
}

// Light creates an agent that runs operations on the caller's scheduler.
func Light(t *target.Target, options ...Option) (*Agent, error) {
	return New(t, append(options, Backend(Local))...)
}

// Heavy creates an agent that runs operations in an isolated context started
// by spawner. A nil spawner selects the process-wide in-process host, which is
// handed t itself under a blueprint private to the agent.
func Heavy(ctx context.Context, t *target.Target, spawner isolate.Spawner, options ...Option) (*Agent, error) {
	options = append(options, Backend(Remote), WithContext(ctx))
	if spawner != nil {
		options = append(options, WithSpawner(spawner))
	}
	return New(t, options...)
}

func (a *Agent) ID() string {
	return a.id
}

func (a *Agent) Backend() BackendKind {
	return a.backend
}

// Operations returns the operation names in declaration order.
func (a *Agent) Operations() []string {
	return a.target.Names()
}

// Send returns the send table: one stub per operation. It returns nil once the
// agent has failed. The table must not be modified.
func (a *Agent) Send() map[string]Stub {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.send
}

// Call invokes op by name.
func (a *Agent) Call(op string, arg any) (*Future, error) {
	a.mu.RLock()
	failed := a.failed
	a.mu.RUnlock()
	if failed {
		return nil, ErrAgentFailed
	}
	o, ok := a.target.Operation(op)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, op)
	}
	return a.dispatch(o, arg), nil
}

// dispatch runs op unless the agent failed, in which case the returned future
// resolves with ErrAgentFailed. Stubs taken from Send before Fail end up here.
func (a *Agent) dispatch(op target.Operation, arg any) *Future {
	a.mu.RLock()
	failed, exec := a.failed, a.exec
	a.mu.RUnlock()
	if failed {
		f := future.New(a.sched, a.Observers)
		a.sched.Submit(func() { _ = f.SetError(ErrAgentFailed) })
		return f
	}
	return exec.Call(op, arg)
}

// Fail moves the agent to its terminal state: the backend is released, the
// send table cleared and OnFail notified with reason. Only the first call has
// an effect.
func (a *Agent) Fail(reason error) {
	if reason == nil {
		reason = ErrAgentFailed
	}
	a.mu.Lock()
	if a.failed {
		a.mu.Unlock()
		return
	}
	a.failed = true
	a.reason = reason
	a.send = nil
	exec, onFail := a.exec, a.onFail
	a.mu.Unlock()

	a.logger.Info("agent failed", slogx.Error(reason))
	exec.Fail(reason)
	a.releaseBlueprint()
	if onFail != nil {
		onFail(reason)
	}
}

// OnFail sets the failure observer, replacing any previous one. When the agent
// already failed fn fires once on the next scheduler turn.
func (a *Agent) OnFail(fn func(error)) {
	a.mu.Lock()
	a.onFail = fn
	failed, reason := a.failed, a.reason
	a.mu.Unlock()

	if failed && fn != nil {
		a.sched.Submit(func() { fn(reason) })
	}
}

// Failed reports whether Fail was called.
func (a *Agent) Failed() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.failed
}

// Reason returns the error the agent failed with, nil while it is alive.
func (a *Agent) Reason() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.reason
}
