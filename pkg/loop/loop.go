// Package loop implements a cooperative run loop: tasks submitted to a Loop run
// one at a time, in submission order, after the submitting turn completes.
//
// A Loop created with New drives itself from a dedicated goroutine. A Loop created
// with NewManual only runs tasks when Step or RunPending is called, which makes
// scheduling fully deterministic in tests.
package loop

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/casualjim/errand/pkg/slogx"
	"github.com/fogfish/opts"
)

// Loop is a FIFO task queue drained by a single runner.
type Loop struct {
	logger *slog.Logger

	mu     sync.Mutex
	tasks  []func()
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

// Option configures a Loop.
type Option = opts.Option[Loop]

// WithLogger sets the logger used to report dropped tasks and recovered panics.
var WithLogger = opts.ForName[Loop, *slog.Logger]("logger")

func newLoop(options []Option) *Loop {
	l := &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	if err := opts.Apply(l, options); err != nil {
		panic(err)
	}
	if l.logger == nil {
		l.logger = slog.Default().With(slogx.LoggerName("errand.loop"))
	}
	return l
}

// New creates a Loop and starts its runner goroutine.
func New(options ...Option) *Loop {
	l := newLoop(options)
	go l.run()
	return l
}

// NewManual creates a Loop without a runner. Tasks only execute from Step or RunPending.
func NewManual(options ...Option) *Loop {
	return newLoop(options)
}

var defaultLoop = sync.OnceValue(func() *Loop { return New() })

// Default returns the process-wide loop, starting it on first use.
func Default() *Loop {
	return defaultLoop()
}

// Submit queues fn to run after the current turn. Tasks submitted after Close
// are dropped.
func (l *Loop) Submit(fn func()) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		l.logger.Debug("dropping task submitted to closed loop")
		return
	}
	l.tasks = append(l.tasks, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Len returns the number of queued tasks.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tasks)
}

// Close stops the loop. Queued tasks that have not started are discarded.
// Close does not wait for a running task; use Done for that.
func (l *Loop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.tasks = nil
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Done is closed once the runner goroutine has exited. For a manual loop it
// never closes.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Step runs the oldest queued task and reports whether one ran.
func (l *Loop) Step() bool {
	fn, ok := l.pop()
	if !ok {
		return false
	}
	l.exec(fn)
	return true
}

// RunPending runs tasks until the queue is empty, including tasks submitted
// by the tasks it runs, and returns how many ran.
func (l *Loop) RunPending() int {
	n := 0
	for l.Step() {
		n++
	}
	return n
}

func (l *Loop) pop() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || len(l.tasks) == 0 {
		return nil, false
	}
	fn := l.tasks[0]
	l.tasks[0] = nil
	l.tasks = l.tasks[1:]
	return fn, true
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		for len(l.tasks) == 0 && !l.closed {
			l.mu.Unlock()
			<-l.wake
			l.mu.Lock()
		}
		if l.closed {
			l.mu.Unlock()
			return
		}
		fn := l.tasks[0]
		l.tasks[0] = nil
		l.tasks = l.tasks[1:]
		l.mu.Unlock()

		l.exec(fn)
	}
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("recovered panic in loop task", slogx.Error(fmt.Errorf("%v", r)))
		}
	}()
	fn()
}
