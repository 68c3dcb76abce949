package hub

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/plainer/hub/internal/model"
)

// Conn is one live client connection. Implemented by the websocket wrapper
// and by test fakes.
type Conn interface {
	Send(data []byte) error
	Close() error
}

// BroadcastHub tracks live connections per workspace and fans events out to
// them. It is safe for concurrent use from any number of runs and
// connection lifecycles.
type BroadcastHub struct {
	mu    sync.RWMutex
	conns map[string]map[Conn]struct{}
	log   zerolog.Logger
}

func NewBroadcastHub(log zerolog.Logger) *BroadcastHub {
	return &BroadcastHub{
		conns: map[string]map[Conn]struct{}{},
		log:   log,
	}
}

func (h *BroadcastHub) Connect(workspaceID string, c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[workspaceID]
	if !ok {
		set = map[Conn]struct{}{}
		h.conns[workspaceID] = set
	}
	set[c] = struct{}{}
	h.log.Debug().Str("workspace_id", workspaceID).Int("connections", len(set)).Msg("connection joined")
}

func (h *BroadcastHub) Disconnect(workspaceID string, c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[workspaceID]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.conns, workspaceID)
	}
}

// Broadcast serializes the envelope once and writes it to every connection
// in the workspace except exclude. Connections whose write fails are
// dropped from membership.
func (h *BroadcastHub) Broadcast(workspaceID string, env model.Envelope, exclude Conn) {
	data, err := json.Marshal(env)
	if err != nil {
		h.log.Error().Err(err).Str("type", env.Type).Msg("encode broadcast")
		return
	}

	h.mu.RLock()
	targets := make([]Conn, 0, len(h.conns[workspaceID]))
	for c := range h.conns[workspaceID] {
		if c == exclude {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	var dead []Conn
	for _, c := range targets {
		if err := c.Send(data); err != nil {
			dead = append(dead, c)
		}
	}
	for _, c := range dead {
		h.Disconnect(workspaceID, c)
		c.Close()
		h.log.Debug().Str("workspace_id", workspaceID).Msg("dropped dead connection")
	}
}

// Count returns the number of live connections for a workspace.
func (h *BroadcastHub) Count(workspaceID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[workspaceID])
}
