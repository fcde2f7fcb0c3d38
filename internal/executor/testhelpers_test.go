package executor

import (
	"context"
	"errors"
	"sync"

	"github.com/casualjim/errand/isolate"
	"github.com/casualjim/errand/target"
)

type pair struct {
	A int `json:"a"`
	B int `json:"b"`
}

var errBoom = errors.New("x")

func calculator() *target.Target {
	return target.New("executor-test-calculator",
		target.Func("add", func(_ context.Context, p pair) (int, error) {
			return p.A + p.B, nil
		}),
		target.Func("div", func(_ context.Context, p pair) (int, error) {
			if p.B == 0 {
				return 0, errors.New("division by zero")
			}
			return p.A / p.B, nil
		}),
		target.Func0("boom", func(context.Context) (int, error) {
			return 0, errBoom
		}),
		target.Func("sum", func(_ context.Context, xs []int) (int, error) {
			total := 0
			for _, x := range xs {
				total += x
			}
			return total, nil
		}),
		target.Func("drain", func(_ context.Context, ch chan int) (int, error) {
			return len(ch), nil
		}),
		target.Func0("callback", func(context.Context) (func(), error) {
			return func() {}, nil
		}),
	)
}

func mustOp(t *target.Target, name string) target.Operation {
	op, ok := t.Operation(name)
	if !ok {
		panic("no operation " + name)
	}
	return op
}

type fakeSpawner struct {
	mu         sync.Mutex
	manifest   target.Manifest
	receive    isolate.Receiver
	posted     []isolate.Message
	terminated int
	latePosts  int
	startErr   error
	postErr    error
	// startFailure is reported from another goroutine as soon as Start runs.
	startFailure string
}

func (s *fakeSpawner) Start(_ context.Context, init target.Manifest, receive isolate.Receiver) (isolate.Handle, error) {
	if s.startErr != nil {
		return nil, s.startErr
	}
	s.mu.Lock()
	s.manifest = init
	s.receive = receive
	reason := s.startFailure
	s.mu.Unlock()
	if reason != "" {
		go receive(isolate.Message{Kind: isolate.KindFailure, Agent: "fake-agent", Reason: reason})
	}
	return &fakeHandle{spawner: s}, nil
}

func (s *fakeSpawner) reply(m isolate.Message) {
	s.mu.Lock()
	receive := s.receive
	s.mu.Unlock()
	m.Agent = "fake-agent"
	receive(m)
}

func (s *fakeSpawner) calls() []isolate.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]isolate.Message(nil), s.posted...)
}

func (s *fakeSpawner) postsAfterTerminate() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latePosts
}

func (s *fakeSpawner) terminations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminated
}

type fakeHandle struct {
	spawner *fakeSpawner
}

func (h *fakeHandle) ID() string {
	return "fake-agent"
}

func (h *fakeHandle) Post(_ context.Context, m isolate.Message) error {
	h.spawner.mu.Lock()
	defer h.spawner.mu.Unlock()
	if h.spawner.postErr != nil {
		return h.spawner.postErr
	}
	if h.spawner.terminated > 0 {
		h.spawner.latePosts++
	}
	h.spawner.posted = append(h.spawner.posted, m)
	return nil
}

func (h *fakeHandle) Terminate(context.Context) error {
	h.spawner.mu.Lock()
	defer h.spawner.mu.Unlock()
	h.spawner.terminated++
	return nil
}
