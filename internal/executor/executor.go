package executor

import (
	"context"
	"errors"
	"log/slog"

	"github.com/casualjim/errand/future"
	"github.com/casualjim/errand/internal/metrics"
	"github.com/casualjim/errand/pkg/loop"
	"github.com/casualjim/errand/pkg/slogx"
	"github.com/casualjim/errand/target"
)

var (
	// ErrAgentFailed marks calls made to, or abandoned by, a failed agent.
	ErrAgentFailed = errors.New("agent failed")
	// ErrIsolateFailed wraps the reason an isolated context reported for not serving an agent.
	ErrIsolateFailed = errors.New("isolated context failed")
)

// Backend names.
const (
	BackendLocal  = "local"
	BackendRemote = "remote"
)

// Executor dispatches calls for one agent.
type Executor interface {
	// Call starts op with arg and returns its future before the operation runs.
	Call(op target.Operation, arg any) *future.Future
	// Fail releases the backend. Calls still running on a local backend complete;
	// pending remote calls are abandoned unless FailPending is set.
	Fail(reason error)
	Backend() string
}

// Config is shared by both backends.
type Config struct {
	Context   context.Context
	Scheduler future.Scheduler
	// Owner receives every outcome after the call's own observers.
	Owner  *future.Observers
	Codec  target.Codec
	Logger *slog.Logger
	// Isolate copies values across the call boundary of a local backend.
	Isolate bool
	// FailPending resolves pending remote calls with ErrAgentFailed on Fail.
	FailPending bool
}

func (c Config) withDefaults(backend string) Config {
	if c.Context == nil {
		c.Context = context.Background()
	}
	if c.Scheduler == nil {
		c.Scheduler = loop.Default()
	}
	if c.Codec == nil {
		c.Codec = target.JSON
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	c.Logger = c.Logger.With(slogx.LoggerName("errand.executor." + backend))
	return c
}

func resolve(logger *slog.Logger, backend string, f *future.Future, r future.Reply) {
	metrics.RecordReply(backend, r.Kind.String())
	if err := f.Resolve(r); err != nil {
		logger.Warn("discarding outcome", slogx.Error(err), slog.String("reply", r.String()))
	}
}
