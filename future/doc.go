// Package future provides a single-assignment result cell for asynchronous calls.
//
// A Future is created when a call is dispatched and resolved exactly once, either
// with a result or with an error, by the executor that owns the call. Observers can
// be attached at any time:
//
//   - attached before resolution, they fire inline when the future resolves
//   - attached after resolution, they fire once on the next turn of the
//     Scheduler with the stored outcome, never synchronously from the setter
//
// Every future may carry a weak reference to the aggregate Observers of the agent
// that created it. Those observers are notified after the future's own observers
// and never keep the agent alive.
//
// Reading Result or Err before the matching outcome is available returns NotReady,
// a marker that cannot collide with any value an operation produces.
//
// Example usage:
//
//	fut := future.New(loop.Default(), nil)
//	fut.OnReply(func(r future.Reply) {
//	    if r.IsError() {
//	        slog.Error("call failed", slogx.Error(r.Err))
//	        return
//	    }
//	    fmt.Println(r.Value)
//	})
//	_ = fut.SetResult(42)
package future
