package future

import "sync"

// Observers is an aggregate set of callbacks notified for every future that
// names it as owner. Assigning a callback replaces the previous one; a nil
// callback disables the notification.
//
// Unlike the observers on a Future, aggregate observers are not replayed:
// a callback assigned after a future resolved will not see that outcome.
type Observers struct {
	mu       sync.RWMutex
	onResult func(any)
	onError  func(error)
	onReply  func(Reply)
}

func (o *Observers) OnResult(fn func(any)) {
	o.mu.Lock()
	o.onResult = fn
	o.mu.Unlock()
}

func (o *Observers) OnError(fn func(error)) {
	o.mu.Lock()
	o.onError = fn
	o.mu.Unlock()
}

func (o *Observers) OnReply(fn func(Reply)) {
	o.mu.Lock()
	o.onReply = fn
	o.mu.Unlock()
}

func (o *Observers) notify(r Reply) {
	o.mu.RLock()
	onResult, onError, onReply := o.onResult, o.onError, o.onReply
	o.mu.RUnlock()

	dispatch(r, onResult, onError, onReply)
}

func dispatch(r Reply, onResult func(any), onError func(error), onReply func(Reply)) {
	switch r.Kind {
	case KindResult:
		if onResult != nil {
			onResult(r.Value)
		}
	case KindError:
		if onError != nil {
			onError(r.Err)
		}
	}
	if onReply != nil {
		onReply(r)
	}
}
