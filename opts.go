package errand

import (
	"context"
	"log/slog"

	"github.com/casualjim/errand/future"
	"github.com/casualjim/errand/isolate"
	"github.com/casualjim/errand/target"
	"github.com/fogfish/opts"
)

// DefaultValueIsolation is the value isolation policy of light agents that do
// not set ValueIsolation.
var DefaultValueIsolation = true

type config struct {
	backend     BackendKind
	isolation   *bool
	scheduler   future.Scheduler
	codec       target.Codec
	logger      *slog.Logger
	spawner     isolate.Spawner
	ctx         context.Context
	failPending bool
}

// Option configures an Agent.
type Option = opts.Option[config]

var (
	// Backend selects where operations run. The default is Local.
	Backend = opts.ForName[config, BackendKind]("backend")
	// WithScheduler sets the scheduler futures resolve on. The default is the
	// process-wide loop.
	WithScheduler = opts.ForName[config, future.Scheduler]("scheduler")
	// WithCodec sets the codec used to copy and encode values.
	WithCodec = opts.ForName[config, target.Codec]("codec")
	// WithLogger sets the logger.
	WithLogger = opts.ForName[config, *slog.Logger]("logger")
	// WithSpawner sets how a remote agent starts its isolated context.
	WithSpawner = opts.ForName[config, isolate.Spawner]("spawner")
	// WithContext sets the context operations and isolated contexts run under.
	WithContext = opts.ForName[config, context.Context]("ctx")
	// FailPending makes Fail resolve calls still waiting on a remote reply with
	// ErrAgentFailed instead of abandoning them.
	FailPending = opts.ForName[config, bool]("failPending")
)

// ValueIsolation sets whether a light agent copies arguments, results and
// errors across the call boundary.
func ValueIsolation(enabled bool) Option {
	return opts.Type[config](func(c *config) error {
		c.isolation = &enabled
		return nil
	})
}
