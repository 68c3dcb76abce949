package agent

import (
	"context"
	"sync"
)

type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// TaskRegistry holds at most one in-flight run per conversation. Starting a
// run for a busy conversation cancels the prior run and waits for it to
// fully unwind before the replacement is registered.
type TaskRegistry struct {
	mu   sync.Mutex
	runs map[string]*task
}

func NewTaskRegistry() *TaskRegistry {
	return &TaskRegistry{runs: map[string]*task{}}
}

// Start launches fn on its own goroutine under the given key. fn's context
// is canceled by Stop or by a later Start for the same key. The entry is
// removed when fn returns, whatever the outcome.
func (r *TaskRegistry) Start(key string, fn func(ctx context.Context)) {
	r.mu.Lock()
	for {
		prior := r.runs[key]
		if prior == nil {
			break
		}
		// The run's cleanup needs the lock, so release it while waiting.
		// Another Start may slip in meanwhile, hence the re-check.
		r.mu.Unlock()
		prior.cancel()
		<-prior.done
		r.mu.Lock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &task{cancel: cancel, done: make(chan struct{})}
	r.runs[key] = t
	r.mu.Unlock()

	go func() {
		defer func() {
			r.mu.Lock()
			if r.runs[key] == t {
				delete(r.runs, key)
			}
			r.mu.Unlock()
			cancel()
			close(t.done)
		}()
		fn(ctx)
	}()
}

// Stop cancels the key's in-flight run, if any.
func (r *TaskRegistry) Stop(key string) {
	r.mu.Lock()
	t := r.runs[key]
	r.mu.Unlock()
	if t != nil {
		t.cancel()
	}
}

// Active reports whether a run is currently registered for the key.
func (r *TaskRegistry) Active(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.runs[key]
	return ok
}

// Wait blocks until the key's current run finishes. No-op when idle.
func (r *TaskRegistry) Wait(key string) {
	r.mu.Lock()
	t := r.runs[key]
	r.mu.Unlock()
	if t != nil {
		<-t.done
	}
}
