package isolate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/casualjim/errand/pkg/loop"
	"github.com/casualjim/errand/target"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const agentID = "agent-1"

func newTestDispatcher(t *testing.T) (*Dispatcher, *loop.Loop, *outbox) {
	t.Helper()
	lp := loop.NewManual()
	out := &outbox{}
	d, err := NewDispatcher(context.Background(), agentID, out.reply, WithLoop(lp))
	require.NoError(t, err)
	assert.Equal(t, agentID, d.Agent())
	return d, lp, out
}

// settle drives lp until the dispatcher leaves the Buffering state.
func settle(t *testing.T, d *Dispatcher, lp *loop.Loop) {
	t.Helper()
	require.Eventually(t, func() bool {
		lp.RunPending()
		s := d.State()
		return s != StateBuffering && s != StateUninitialized
	}, 2*time.Second, 5*time.Millisecond)
}

func call(id uint64, op, arg string) Message {
	return CallMessage(agentID, id, op, []byte(`"`+arg+`"`))
}

func TestDispatcherBuffersUntilReady(t *testing.T) {
	j := &journal{}
	gate := make(chan struct{})
	kind := registerBlueprint(t, func(ctx context.Context, _ []byte) (*target.Target, error) {
		<-gate
		return recorderTarget(j), nil
	})
	d, lp, out := newTestDispatcher(t)
	assert.Equal(t, StateUninitialized, d.State())

	d.Handle(call(0, "record", "a"))
	d.Handle(InitMessage(agentID, manifest(kind, "record")))
	d.Handle(call(1, "record", "b"))
	lp.RunPending()
	assert.Equal(t, StateBuffering, d.State())

	d.Handle(call(2, "record", "c"))
	lp.RunPending()
	assert.Empty(t, j.snapshot())
	assert.Zero(t, out.len())

	close(gate)
	settle(t, d, lp)
	require.Equal(t, StateReady, d.State())

	d.Handle(call(3, "record", "d"))
	lp.RunPending()

	assert.Equal(t, []string{"a", "b", "c", "d"}, j.snapshot())
	replies := out.snapshot()
	require.Len(t, replies, 4)
	for i, r := range replies {
		assert.Equal(t, KindResult, r.Kind)
		assert.Equal(t, uint64(i), r.ID)
		assert.Equal(t, agentID, r.Agent)
	}
	assert.JSONEq(t, `"A"`, string(replies[0].Result))
	assert.JSONEq(t, `"D"`, string(replies[3].Result))
}

func TestDispatcherReplies(t *testing.T) {
	j := &journal{}
	kind := registerBlueprint(t, target.Static(recorderTarget(j)))
	d, lp, out := newTestDispatcher(t)

	d.Handle(InitMessage(agentID, manifest(kind)))
	settle(t, d, lp)

	d.Handle(call(0, "fail", "x"))
	d.Handle(call(1, "missing", "x"))
	d.Handle(CallMessage(agentID, 2, "record", []byte(`42`)))
	d.Handle(call(3, "record", "ok"))
	lp.RunPending()

	replies := out.snapshot()
	require.Len(t, replies, 4)

	assert.Equal(t, KindError, replies[0].Kind)
	assert.Equal(t, &target.OperationError{Op: "fail", Message: "x"}, replies[0].Error)

	assert.Equal(t, KindError, replies[1].Kind)
	assert.Equal(t, "missing", replies[1].Error.Op)
	assert.Equal(t, `unknown operation: "missing"`, replies[1].Error.Message)

	assert.Equal(t, KindError, replies[2].Kind)
	assert.Contains(t, replies[2].Error.Message, "record: invalid argument")

	assert.Equal(t, KindResult, replies[3].Kind)
	assert.JSONEq(t, `"OK"`, string(replies[3].Result))
}

func TestDispatcherBuildFailure(t *testing.T) {
	t.Run("constructor error", func(t *testing.T) {
		kind := registerBlueprint(t, func(context.Context, []byte) (*target.Target, error) {
			return nil, errors.New("no database")
		})
		d, lp, out := newTestDispatcher(t)

		d.Handle(call(0, "record", "a"))
		d.Handle(InitMessage(agentID, manifest(kind)))
		settle(t, d, lp)
		assert.Equal(t, StateFailed, d.State())

		d.Handle(call(1, "record", "b"))
		lp.RunPending()

		replies := out.snapshot()
		require.Len(t, replies, 1)
		assert.Equal(t, KindFailure, replies[0].Kind)
		assert.Contains(t, replies[0].Reason, "no database")
	})

	t.Run("unknown blueprint", func(t *testing.T) {
		d, lp, out := newTestDispatcher(t)
		d.Handle(InitMessage(agentID, manifest("isolate-test-never-registered")))
		settle(t, d, lp)

		replies := out.snapshot()
		require.Len(t, replies, 1)
		assert.Equal(t, KindFailure, replies[0].Kind)
		assert.Contains(t, replies[0].Reason, target.ErrUnknownBlueprint.Error())
	})

	t.Run("missing operation", func(t *testing.T) {
		kind := registerBlueprint(t, target.Static(recorderTarget(&journal{})))
		d, lp, out := newTestDispatcher(t)
		d.Handle(InitMessage(agentID, manifest(kind, "record", "teleport")))
		settle(t, d, lp)

		replies := out.snapshot()
		require.Len(t, replies, 1)
		assert.Contains(t, replies[0].Reason, `unknown operation: "teleport"`)
	})
}

func TestDispatcherIgnoresProtocolViolations(t *testing.T) {
	j := &journal{}
	kind := registerBlueprint(t, target.Static(recorderTarget(j)))
	d, lp, out := newTestDispatcher(t)

	d.Handle(InitMessage(agentID, manifest(kind)))
	settle(t, d, lp)

	d.Handle(InitMessage(agentID, manifest(kind)))
	d.Handle(Message{Kind: KindResult, Agent: agentID, ID: 9})
	d.Handle(call(0, "record", "still works"))
	lp.RunPending()

	assert.Equal(t, StateReady, d.State())
	require.Equal(t, 1, out.len())
	assert.Equal(t, []string{"still works"}, j.snapshot())
}

func TestDispatcherStop(t *testing.T) {
	j := &journal{}
	kind := registerBlueprint(t, target.Static(recorderTarget(j)))
	d, lp, out := newTestDispatcher(t)

	d.Handle(InitMessage(agentID, manifest(kind)))
	settle(t, d, lp)

	d.Handle(call(0, "record", "queued"))
	d.Stop()
	lp.RunPending()

	assert.Equal(t, StateStopped, d.State())
	assert.Empty(t, j.snapshot())
	assert.Zero(t, out.len())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "uninitialized", StateUninitialized.String())
	assert.Equal(t, "buffering", StateBuffering.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "state(42)", State(42).String())
}
