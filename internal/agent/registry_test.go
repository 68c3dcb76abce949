package agent

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
)

func TestRegistryAllowsOneActiveRunPerKey(t *testing.T) {
	r := NewTaskRegistry()

	started := make(chan struct{})
	release := make(chan struct{})
	r.Start("conv-1", func(ctx context.Context) {
		close(started)
		select {
		case <-release:
		case <-ctx.Done():
		}
	})
	<-started

	if !r.Active("conv-1") {
		t.Fatal("run not registered")
	}

	// A second Start cancels the first and waits for it to unwind before
	// registering the replacement.
	var firstDoneBeforeSecond bool
	var mu sync.Mutex
	secondStarted := make(chan struct{})
	go func() {
		r.Start("conv-1", func(ctx context.Context) {
			mu.Lock()
			firstDoneBeforeSecond = true
			mu.Unlock()
			close(secondStarted)
		})
	}()

	<-secondStarted
	r.Wait("conv-1")

	mu.Lock()
	defer mu.Unlock()
	if !firstDoneBeforeSecond {
		t.Error("second run started before first unwound")
	}
	if r.Active("conv-1") {
		t.Error("registry entry not cleared after completion")
	}
}

func TestRegistryConcurrentStartsNeverOverlap(t *testing.T) {
	r := NewTaskRegistry()

	var active, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Start("conv-1", func(ctx context.Context) {
				n := active.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				<-ctx.Done()
				active.Add(-1)
			})
		}()
	}
	wg.Wait()
	r.Stop("conv-1")
	r.Wait("conv-1")

	if p := peak.Load(); p > 1 {
		t.Errorf("observed %d concurrent runs for one conversation, want at most 1", p)
	}
	if r.Active("conv-1") {
		t.Error("entry still registered after final run finished")
	}
}

func TestRegistryStopCancelsRun(t *testing.T) {
	r := NewTaskRegistry()

	cancelled := make(chan struct{})
	r.Start("conv-1", func(ctx context.Context) {
		<-ctx.Done()
		close(cancelled)
	})

	r.Stop("conv-1")
	<-cancelled
	r.Wait("conv-1")

	if r.Active("conv-1") {
		t.Error("entry still registered after stop")
	}
}

func TestRegistryStopUnknownKeyIsNoop(t *testing.T) {
	r := NewTaskRegistry()
	r.Stop("never-seen")
	r.Wait("never-seen")
}

func TestRegistryIndependentKeysOverlap(t *testing.T) {
	r := NewTaskRegistry()

	aRunning := make(chan struct{})
	bRunning := make(chan struct{})
	release := make(chan struct{})

	r.Start("conv-a", func(ctx context.Context) {
		close(aRunning)
		<-release
	})
	r.Start("conv-b", func(ctx context.Context) {
		close(bRunning)
		<-release
	})

	<-aRunning
	<-bRunning
	if !r.Active("conv-a") || !r.Active("conv-b") {
		t.Error("runs for different conversations should overlap")
	}
	close(release)
	r.Wait("conv-a")
	r.Wait("conv-b")
}
