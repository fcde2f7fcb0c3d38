package isolate

import (
	"log/slog"
	"strings"

	"github.com/casualjim/errand/pkg/loop"
	"github.com/casualjim/errand/pkg/slogx"
	"github.com/casualjim/errand/target"
	"github.com/fogfish/opts"
)

// DefaultHost is the host name used when none is configured.
const DefaultHost = "default"

type config struct {
	host   string
	logger *slog.Logger
	codec  target.Codec
	loop   *loop.Loop
}

// Option configures hosts, spawners and dispatchers.
type Option = opts.Option[config]

var (
	// WithHost sets the host name that prefixes every topic.
	WithHost = opts.ForName[config, string]("host")
	// WithLogger sets the logger.
	WithLogger = opts.ForName[config, *slog.Logger]("logger")
	// WithCodec sets the codec operations use to decode arguments and encode results.
	WithCodec = opts.ForName[config, target.Codec]("codec")
	// WithLoop makes a dispatcher run on the given loop instead of starting its own.
	WithLoop = opts.ForName[config, *loop.Loop]("loop")
)

func newConfig(component string, options []Option) (config, error) {
	var c config
	if err := opts.Apply(&c, options); err != nil {
		return c, err
	}
	if c.host == "" {
		c.host = DefaultHost
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With(slogx.LoggerName("errand.isolate." + component))
	if c.codec == nil {
		c.codec = target.JSON
	}
	return c, nil
}

// InboxTopic is the topic a host listens on.
func InboxTopic(host string) string {
	return strings.Join([]string{"errand", host, "inbox"}, ".")
}

// ReplyTopic is the topic replies for agent are published on.
func ReplyTopic(host, agent string) string {
	return strings.Join([]string{"errand", host, agent, "out"}, ".")
}
