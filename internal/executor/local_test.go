package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/casualjim/errand/future"
	"github.com/casualjim/errand/pkg/loop"
	"github.com/casualjim/errand/target"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalCall(t *testing.T) {
	calc := calculator()

	t.Run("resolves on a later turn", func(t *testing.T) {
		lp := loop.NewManual()
		ex := NewLocal(Config{Scheduler: lp})
		assert.Equal(t, BackendLocal, ex.Backend())

		f := ex.Call(mustOp(calc, "add"), pair{A: 2, B: 3})
		assert.False(t, f.Ready())
		assert.Equal(t, future.NotReady, f.Result())

		lp.RunPending()
		assert.Equal(t, 5, f.Result())
		assert.Equal(t, future.NotReady, f.Err())
	})

	t.Run("delivers operation errors as they are", func(t *testing.T) {
		lp := loop.NewManual()
		ex := NewLocal(Config{Scheduler: lp})

		f := ex.Call(mustOp(calc, "boom"), nil)
		resultCalled := false
		f.OnResult(func(any) { resultCalled = true })
		lp.RunPending()

		require.ErrorIs(t, f.Err(), errBoom)
		assert.Equal(t, "x", f.Err().Error())
		assert.False(t, resultCalled)
	})

	t.Run("notifies the owner", func(t *testing.T) {
		lp := loop.NewManual()
		owner := &future.Observers{}
		var replies []string
		owner.OnReply(func(r future.Reply) { replies = append(replies, r.String()) })
		ex := NewLocal(Config{Scheduler: lp, Owner: owner})

		ex.Call(mustOp(calc, "add"), pair{A: 1, B: 1})
		ex.Call(mustOp(calc, "div"), pair{A: 1})
		lp.RunPending()

		assert.Equal(t, []string{"{result: 2}", "{error: division by zero}"}, replies)
	})

	t.Run("rejects arguments of the wrong type", func(t *testing.T) {
		lp := loop.NewManual()
		ex := NewLocal(Config{Scheduler: lp})

		f := ex.Call(mustOp(calc, "add"), "2+3")
		lp.RunPending()
		require.ErrorIs(t, f.Err(), target.ErrInvalidArgument)
	})

	t.Run("scheduled calls complete after fail", func(t *testing.T) {
		lp := loop.NewManual()
		ex := NewLocal(Config{Scheduler: lp})

		f := ex.Call(mustOp(calc, "add"), pair{A: 2, B: 2})
		ex.Fail(errors.New("shutting down"))
		lp.RunPending()
		assert.Equal(t, 4, f.Result())
	})
}

func TestLocalValueIsolation(t *testing.T) {
	calc := calculator()

	t.Run("copies arguments before scheduling", func(t *testing.T) {
		lp := loop.NewManual()
		ex := NewLocal(Config{Scheduler: lp, Isolate: true})

		xs := []int{1, 2, 3}
		f := ex.Call(mustOp(calc, "sum"), xs)
		xs[0] = 100
		lp.RunPending()
		assert.Equal(t, 6, f.Result())
	})

	t.Run("shares arguments without isolation", func(t *testing.T) {
		lp := loop.NewManual()
		ex := NewLocal(Config{Scheduler: lp})

		xs := []int{1, 2, 3}
		f := ex.Call(mustOp(calc, "sum"), xs)
		xs[0] = 100
		lp.RunPending()
		assert.Equal(t, 105, f.Result())
	})

	t.Run("copies results", func(t *testing.T) {
		shared := map[string]int{"hits": 1}
		tgt := target.New("executor-test-shared", target.Func0("state", func(context.Context) (map[string]int, error) {
			return shared, nil
		}))
		lp := loop.NewManual()
		ex := NewLocal(Config{Scheduler: lp, Isolate: true})

		f := ex.Call(mustOp(tgt, "state"), nil)
		lp.RunPending()
		got, ok := f.Result().(map[string]int)
		require.True(t, ok)
		got["hits"] = 42
		assert.Equal(t, 1, shared["hits"])
	})

	t.Run("detaches errors", func(t *testing.T) {
		lp := loop.NewManual()
		ex := NewLocal(Config{Scheduler: lp, Isolate: true})

		f := ex.Call(mustOp(calc, "boom"), nil)
		lp.RunPending()

		var opErr *target.OperationError
		require.ErrorAs(t, f.Err(), &opErr)
		assert.Equal(t, "boom", opErr.Op)
		assert.Equal(t, "x", opErr.Error())
		assert.NotErrorIs(t, f.Err(), errBoom)
	})

	t.Run("uncopyable argument fails only its call", func(t *testing.T) {
		lp := loop.NewManual()
		ex := NewLocal(Config{Scheduler: lp, Isolate: true})

		bad := ex.Call(mustOp(calc, "drain"), make(chan int))
		good := ex.Call(mustOp(calc, "add"), pair{A: 1, B: 2})
		assert.False(t, bad.Ready())
		lp.RunPending()

		var uerr *target.UncopyableValueError
		require.ErrorAs(t, bad.Err(), &uerr)
		assert.Equal(t, target.StageArgument, uerr.Stage)
		assert.Equal(t, 3, good.Result())
	})

	t.Run("uncopyable result", func(t *testing.T) {
		lp := loop.NewManual()
		ex := NewLocal(Config{Scheduler: lp, Isolate: true})

		f := ex.Call(mustOp(calc, "callback"), nil)
		lp.RunPending()

		var uerr *target.UncopyableValueError
		require.ErrorAs(t, f.Err(), &uerr)
		assert.Equal(t, "callback", uerr.Op)
		assert.Equal(t, target.StageResult, uerr.Stage)
	})
}
