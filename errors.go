package errand

import (
	"errors"

	"github.com/casualjim/errand/internal/executor"
	"github.com/casualjim/errand/isolate"
	"github.com/casualjim/errand/target"
)

var (
	// ErrAgentFailed is returned for calls made after Fail, and delivered to
	// pending calls when FailPending is set.
	ErrAgentFailed = executor.ErrAgentFailed
	// ErrIsolateFailed wraps the reason an isolated context gave for not serving an agent.
	ErrIsolateFailed = executor.ErrIsolateFailed
	// ErrUnknownOperation is returned by Call for names the target does not expose.
	ErrUnknownOperation = target.ErrUnknownOperation
	// ErrUnknownBackend is returned for a backend other than Local or Remote.
	ErrUnknownBackend = errors.New("unknown backend")
)

type (
	OperationError       = target.OperationError
	UncopyableValueError = target.UncopyableValueError
	PanicError           = target.PanicError
	ProtocolError        = isolate.ProtocolError
)
