package broker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu       sync.Mutex
	messages []string
	wg       sync.WaitGroup
}

func newRecorder(expect int) *recorder {
	r := &recorder{}
	r.wg.Add(expect)
	return r
}

func (r *recorder) handle(_ context.Context, data []byte) {
	r.mu.Lock()
	r.messages = append(r.messages, string(data))
	r.mu.Unlock()
	r.wg.Done()
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}

func (r *recorder) wait(t *testing.T) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for messages, got %v", r.snapshot())
	}
}

// runAcceptanceTests exercises the behavior every Broker implementation shares.
func runAcceptanceTests(t *testing.T, newBroker func(t *testing.T) Broker) {
	t.Run("reuses existing topics", func(t *testing.T) {
		b := newBroker(t)
		name := t.Name()
		assert.Same(t, b.Topic(context.Background(), name), b.Topic(context.Background(), name))
		assert.Equal(t, name, b.Topic(context.Background(), name).Name())
	})

	t.Run("delivers to every subscriber", func(t *testing.T) {
		b := newBroker(t)
		ctx := context.Background()
		topic := b.Topic(ctx, "acceptance.fanout")

		r1, r2 := newRecorder(1), newRecorder(1)
		sub1, err := topic.Subscribe(ctx, r1.handle)
		require.NoError(t, err)
		defer sub1.Unsubscribe()
		sub2, err := topic.Subscribe(ctx, r2.handle)
		require.NoError(t, err)
		defer sub2.Unsubscribe()
		assert.NotEqual(t, sub1.ID(), sub2.ID())

		require.NoError(t, topic.Publish(ctx, []byte("hello")))
		r1.wait(t)
		r2.wait(t)
		assert.Equal(t, []string{"hello"}, r1.snapshot())
		assert.Equal(t, []string{"hello"}, r2.snapshot())
	})

	t.Run("preserves publish order", func(t *testing.T) {
		b := newBroker(t)
		ctx := context.Background()
		topic := b.Topic(ctx, "acceptance.order")

		const count = 100
		rec := newRecorder(count)
		sub, err := topic.Subscribe(ctx, rec.handle)
		require.NoError(t, err)
		defer sub.Unsubscribe()

		want := make([]string, 0, count)
		for i := range count {
			msg := fmt.Sprintf("msg-%03d", i)
			want = append(want, msg)
			require.NoError(t, topic.Publish(ctx, []byte(msg)))
		}
		rec.wait(t)
		assert.Equal(t, want, rec.snapshot())
	})

	t.Run("stops delivering after unsubscribe", func(t *testing.T) {
		b := newBroker(t)
		ctx := context.Background()
		topic := b.Topic(ctx, "acceptance.unsubscribe")

		rec := newRecorder(1)
		sub, err := topic.Subscribe(ctx, rec.handle)
		require.NoError(t, err)
		require.NoError(t, topic.Publish(ctx, []byte("first")))
		rec.wait(t)

		sub.Unsubscribe()
		sub.Unsubscribe()
		require.NoError(t, topic.Publish(ctx, []byte("second")))
		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, []string{"first"}, rec.snapshot())
	})

	t.Run("unsubscribes when the context is canceled", func(t *testing.T) {
		b := newBroker(t)
		topic := b.Topic(context.Background(), "acceptance.cancel")

		ctx, cancel := context.WithCancel(context.Background())
		rec := newRecorder(1)
		_, err := topic.Subscribe(ctx, rec.handle)
		require.NoError(t, err)
		require.NoError(t, topic.Publish(context.Background(), []byte("first")))
		rec.wait(t)

		cancel()
		time.Sleep(50 * time.Millisecond)
		require.NoError(t, topic.Publish(context.Background(), []byte("second")))
		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, []string{"first"}, rec.snapshot())
	})

	t.Run("rejects a nil handler", func(t *testing.T) {
		b := newBroker(t)
		_, err := b.Topic(context.Background(), "acceptance.nil").Subscribe(context.Background(), nil)
		require.ErrorIs(t, err, ErrHandlerRequired)
	})
}
