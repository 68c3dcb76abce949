package hub

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/plainer/hub/internal/model"
)

type fakeConn struct {
	mu       sync.Mutex
	messages [][]byte
	fail     bool
	closed   bool
}

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("write failed")
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	c.messages = append(c.messages, cp)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) received() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.messages
}

func TestBroadcastReachesAllButExcluded(t *testing.T) {
	h := NewBroadcastHub(zerolog.Nop())
	sender := &fakeConn{}
	other := &fakeConn{}
	h.Connect("ws-1", sender)
	h.Connect("ws-1", other)

	h.Broadcast("ws-1", model.Envelope{
		Type:    model.EventChatTyping,
		Payload: map[string]any{"is_typing": true},
	}, sender)

	if got := len(sender.received()); got != 0 {
		t.Errorf("excluded sender received %d messages", got)
	}
	msgs := other.received()
	if len(msgs) != 1 {
		t.Fatalf("other received %d messages, want 1", len(msgs))
	}
	var env model.Envelope
	if err := json.Unmarshal(msgs[0], &env); err != nil {
		t.Fatalf("decode broadcast: %v", err)
	}
	if env.Type != model.EventChatTyping {
		t.Errorf("type = %q, want chat.typing", env.Type)
	}
}

func TestBroadcastIsWorkspaceScoped(t *testing.T) {
	h := NewBroadcastHub(zerolog.Nop())
	a := &fakeConn{}
	b := &fakeConn{}
	h.Connect("ws-1", a)
	h.Connect("ws-2", b)

	h.Broadcast("ws-1", model.Envelope{Type: model.EventFileCreated}, nil)

	if len(a.received()) != 1 {
		t.Errorf("ws-1 connection received %d messages, want 1", len(a.received()))
	}
	if len(b.received()) != 0 {
		t.Errorf("ws-2 connection received %d messages, want 0", len(b.received()))
	}
}

func TestBroadcastDropsFailedConnections(t *testing.T) {
	h := NewBroadcastHub(zerolog.Nop())
	good := &fakeConn{}
	bad := &fakeConn{fail: true}
	h.Connect("ws-1", good)
	h.Connect("ws-1", bad)

	h.Broadcast("ws-1", model.Envelope{Type: model.EventFileUpdated}, nil)

	if h.Count("ws-1") != 1 {
		t.Errorf("connection count = %d, want failed writer removed", h.Count("ws-1"))
	}
	if !bad.closed {
		t.Error("failed connection was not closed")
	}
	if len(good.received()) != 1 {
		t.Errorf("healthy connection received %d messages, want 1", len(good.received()))
	}
}

func TestDisconnectRemovesMembership(t *testing.T) {
	h := NewBroadcastHub(zerolog.Nop())
	c := &fakeConn{}
	h.Connect("ws-1", c)
	h.Disconnect("ws-1", c)

	h.Broadcast("ws-1", model.Envelope{Type: model.EventFileDeleted}, nil)
	if len(c.received()) != 0 {
		t.Error("disconnected connection still receives broadcasts")
	}
	if h.Count("ws-1") != 0 {
		t.Errorf("count = %d after disconnect, want 0", h.Count("ws-1"))
	}
}

func TestConcurrentConnectBroadcastDisconnect(t *testing.T) {
	h := NewBroadcastHub(zerolog.Nop())
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := &fakeConn{}
			h.Connect("ws-1", c)
			h.Broadcast("ws-1", model.Envelope{Type: model.EventChatMessage}, nil)
			h.Disconnect("ws-1", c)
		}()
	}
	wg.Wait()
	if h.Count("ws-1") != 0 {
		t.Errorf("count = %d after all disconnects, want 0", h.Count("ws-1"))
	}
}
