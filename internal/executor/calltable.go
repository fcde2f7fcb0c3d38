package executor

import (
	"sync/atomic"

	"github.com/alphadose/haxmap"
	"github.com/casualjim/errand/future"
	"github.com/casualjim/errand/internal/metrics"
	"github.com/casualjim/errand/target"
)

type pendingCall struct {
	future *future.Future
	op     target.Operation
}

// callTable maps correlation ids to the calls waiting for their reply.
// Ids increase from 0 and are never reused until reset.
type callTable struct {
	next  atomic.Uint64
	calls *haxmap.Map[uint64, *pendingCall]
}

func newCallTable() *callTable {
	return &callTable{calls: haxmap.New[uint64, *pendingCall]()}
}

// register allocates the next id for call.
func (t *callTable) register(call *pendingCall) uint64 {
	id := t.next.Add(1) - 1
	t.calls.Set(id, call)
	metrics.AddPendingRemoteCalls(1)
	return id
}

// take removes and returns the call registered under id.
func (t *callTable) take(id uint64) (*pendingCall, bool) {
	call, ok := t.calls.GetAndDel(id)
	if ok {
		metrics.AddPendingRemoteCalls(-1)
	}
	return call, ok
}

func (t *callTable) len() int {
	return int(t.calls.Len())
}

// reset empties the table and restarts ids at 0, returning the calls it held.
func (t *callTable) reset() []*pendingCall {
	var ids []uint64
	t.calls.ForEach(func(id uint64, _ *pendingCall) bool {
		ids = append(ids, id)
		return true
	})
	calls := make([]*pendingCall, 0, len(ids))
	for _, id := range ids {
		if call, ok := t.take(id); ok {
			calls = append(calls, call)
		}
	}
	t.next.Store(0)
	return calls
}
