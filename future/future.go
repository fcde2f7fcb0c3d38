package future

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"weak"
)

// ErrAlreadyResolved is returned when a future that already holds an outcome
// is resolved again. The stored outcome is left untouched.
var ErrAlreadyResolved = errors.New("future: already resolved")

// ErrNilError is returned when a future is resolved with a nil error.
var ErrNilError = errors.New("future: resolved with a nil error")

type notReady struct{}

func (notReady) Error() string  { return "future: not ready" }
func (notReady) String() string { return "<not ready>" }

// NotReady is returned by Result and Err until the matching outcome is stored.
// It is distinct from every value an operation can produce, including nil.
var NotReady = notReady{}

// Scheduler runs a callback after the current synchronous turn, exactly once.
type Scheduler interface {
	Submit(func())
}

type slot[T any] struct {
	value T
	ready bool
}

// Future is a single-assignment result/error cell with lazily firing observers.
// It is safe for concurrent use.
type Future struct {
	sched Scheduler
	owner weak.Pointer[Observers]

	mu       sync.Mutex
	result   slot[any]
	err      slot[error]
	onResult func(any)
	onError  func(error)
	onReply  func(Reply)
	done     chan struct{}
}

// New creates a pending future. Late observers are fired through sched.
// When owner is non-nil its callbacks are notified after the future's own.
func New(sched Scheduler, owner *Observers) *Future {
	if sched == nil {
		panic("future: scheduler is required")
	}
	f := &Future{
		sched: sched,
		done:  make(chan struct{}),
	}
	if owner != nil {
		f.owner = weak.Make(owner)
	}
	return f
}

// SetResult stores v and notifies observers. It returns ErrAlreadyResolved
// when the future already holds a result or an error.
func (f *Future) SetResult(v any) error {
	return f.Resolve(ResultReply(v))
}

// SetError stores err and notifies observers. It returns ErrAlreadyResolved
// when the future already holds a result or an error, and ErrNilError when err
// is nil, leaving the future pending.
func (f *Future) SetError(err error) error {
	return f.Resolve(ErrorReply(err))
}

// Resolve stores the outcome carried by r.
func (f *Future) Resolve(r Reply) error {
	f.mu.Lock()
	if f.result.ready || f.err.ready {
		f.mu.Unlock()
		return ErrAlreadyResolved
	}
	switch r.Kind {
	case KindResult:
		f.result = slot[any]{value: r.Value, ready: true}
	case KindError:
		if r.Err == nil {
			f.mu.Unlock()
			return ErrNilError
		}
		f.err = slot[error]{value: r.Err, ready: true}
	default:
		f.mu.Unlock()
		return fmt.Errorf("future: invalid reply kind %s", r.Kind)
	}
	onResult, onError, onReply := f.onResult, f.onError, f.onReply
	close(f.done)
	f.mu.Unlock()

	dispatch(r, onResult, onError, onReply)
	if owner := f.owner.Value(); owner != nil {
		owner.notify(r)
	}
	return nil
}

// OnResult sets the result observer, replacing any previous one. When the
// result is already available fn fires once on the next scheduler turn.
func (f *Future) OnResult(fn func(any)) {
	f.mu.Lock()
	f.onResult = fn
	res := f.result
	f.mu.Unlock()

	if res.ready && fn != nil {
		f.sched.Submit(func() { fn(res.value) })
	}
}

// OnError sets the error observer, replacing any previous one. When the
// error is already available fn fires once on the next scheduler turn.
func (f *Future) OnError(fn func(error)) {
	f.mu.Lock()
	f.onError = fn
	e := f.err
	f.mu.Unlock()

	if e.ready && fn != nil {
		f.sched.Submit(func() { fn(e.value) })
	}
}

// OnReply sets the reply observer, replacing any previous one. When the
// future is already resolved fn fires once on the next scheduler turn.
func (f *Future) OnReply(fn func(Reply)) {
	f.mu.Lock()
	f.onReply = fn
	r, ok := f.replyLocked()
	f.mu.Unlock()

	if ok && fn != nil {
		f.sched.Submit(func() { fn(r) })
	}
}

// Result returns the stored result, or NotReady.
func (f *Future) Result() any {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.result.ready {
		return NotReady
	}
	return f.result.value
}

// Err returns the stored error, or NotReady.
func (f *Future) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.err.ready {
		return NotReady
	}
	return f.err.value
}

// Reply returns the tagged outcome and whether the future is resolved.
func (f *Future) Reply() (Reply, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.replyLocked()
}

func (f *Future) replyLocked() (Reply, bool) {
	switch {
	case f.result.ready:
		return ResultReply(f.result.value), true
	case f.err.ready:
		return ErrorReply(f.err.value), true
	default:
		return Reply{}, false
	}
}

// Ready reports whether the future holds an outcome.
func (f *Future) Ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Done is closed when the future resolves.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Get blocks until the future resolves or ctx is done.
// It must not be called from a task running on the future's scheduler,
// since the resolution would be queued behind the blocked task.
func (f *Future) Get(ctx context.Context) (any, error) {
	select {
	case <-f.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	r, _ := f.Reply()
	if r.IsError() {
		return nil, r.Err
	}
	return r.Value, nil
}

// Await blocks like Get and converts the result to T.
func Await[T any](ctx context.Context, f *Future) (T, error) {
	var zero T
	v, err := f.Get(ctx)
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("future: result is %T, not %T", v, zero)
	}
	return t, nil
}
