package isolate

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/casualjim/errand/target"
)

type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(s string) {
	j.mu.Lock()
	j.entries = append(j.entries, s)
	j.mu.Unlock()
}

func (j *journal) snapshot() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

func recorderTarget(j *journal) *target.Target {
	return target.New("isolate-test-recorder",
		target.Func("record", func(_ context.Context, s string) (string, error) {
			j.add(s)
			return strings.ToUpper(s), nil
		}),
		target.Func("fail", func(_ context.Context, s string) (string, error) {
			return "", errors.New(s)
		}),
	)
}

// registerBlueprint registers bp under a kind unique to the running test.
func registerBlueprint(t *testing.T, bp target.Blueprint) string {
	t.Helper()
	kind := "isolate-test-" + strings.ReplaceAll(t.Name(), "/", "-")
	target.Register(kind, bp)
	t.Cleanup(func() { target.Blueprints.Del(kind) })
	return kind
}

func manifest(kind string, ops ...string) target.Manifest {
	m := target.Manifest{Kind: kind}
	for _, op := range ops {
		m.Operations = append(m.Operations, target.OperationInfo{Name: op})
	}
	return m
}

type outbox struct {
	mu       sync.Mutex
	messages []Message
}

func (o *outbox) reply(_ context.Context, data []byte) error {
	m, err := Decode(data)
	if err != nil {
		return err
	}
	o.mu.Lock()
	o.messages = append(o.messages, m)
	o.mu.Unlock()
	return nil
}

func (o *outbox) snapshot() []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Message(nil), o.messages...)
}

func (o *outbox) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.messages)
}
