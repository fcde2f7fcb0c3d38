package executor

import (
	"github.com/casualjim/errand/future"
	"github.com/casualjim/errand/internal/metrics"
	"github.com/casualjim/errand/pkg/slogx"
	"github.com/casualjim/errand/target"
)

var _ Executor = (*Local)(nil)

// Local runs operations on the caller's scheduler.
type Local struct {
	cfg Config
}

func NewLocal(cfg Config) *Local {
	return &Local{cfg: cfg.withDefaults(BackendLocal)}
}

func (l *Local) Backend() string {
	return BackendLocal
}

func (l *Local) Call(op target.Operation, arg any) *future.Future {
	f := future.New(l.cfg.Scheduler, l.cfg.Owner)
	metrics.RecordCall(BackendLocal, op.Name())

	var copyErr error
	if l.cfg.Isolate {
		arg, copyErr = op.CopyArg(l.cfg.Codec, arg)
	}

	l.cfg.Scheduler.Submit(func() {
		if copyErr != nil {
			l.resolve(f, future.ErrorReply(copyErr))
			return
		}
		l.resolve(f, l.run(op, arg))
	})
	return f
}

func (l *Local) run(op target.Operation, arg any) future.Reply {
	res, err := op.Invoke(l.cfg.Context, arg)
	if err != nil {
		if l.cfg.Isolate {
			err = target.Detach(op.Name(), err)
		}
		return future.ErrorReply(err)
	}
	if l.cfg.Isolate {
		if res, err = op.CopyResult(l.cfg.Codec, res); err != nil {
			return future.ErrorReply(err)
		}
	}
	return future.ResultReply(res)
}

func (l *Local) resolve(f *future.Future, r future.Reply) {
	resolve(l.cfg.Logger, BackendLocal, f, r)
}

// Fail has nothing to release: calls already scheduled still resolve.
func (l *Local) Fail(reason error) {
	metrics.RecordAgentFailure(BackendLocal)
	l.cfg.Logger.Info("local agent failed", slogx.Error(reason))
}
