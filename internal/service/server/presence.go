package server

import (
	"chat_relay/internal/model"
	"chat_relay/internal/utils/log"
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

type (
	// Presence pushes the current online set to every live connection.
	Presence struct {
		registry *Registry
		mu       sync.Mutex
	}
)

func NewPresence(registry *Registry) *Presence {
	return &Presence{
		registry: registry,
	}
}

// Refresh sends a fresh snapshot to every live connection. A connection
// with no room left in its outbox is evicted rather than waited on, and the
// loop goes again so survivors see the reduced set. The mutex holds across
// snapshot and fan-out, so concurrent refreshes cannot enqueue an older
// snapshot after a newer one; each connection's FIFO outbox then preserves
// that order, keeping per-connection presence monotonic. Nothing under the
// lock blocks: enqueue is non-blocking and eviction is a map delete.
func (p *Presence) Refresh() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		frame, err := json.Marshal(model.PresenceFrame{Online: p.registry.Snapshot()})
		if err != nil {
			log.Error("marshal presence frame failed", zap.Error(err))
			return
		}

		var stalled []*Conn
		for _, c := range p.registry.Conns() {
			if !c.enqueue(frame) {
				stalled = append(stalled, c)
			}
		}
		if len(stalled) == 0 {
			return
		}
		for _, c := range stalled {
			log.Warn("send buffer full, dropping connection",
				zap.String("userId", c.identity.ID))
			p.registry.Evict(c)
			c.close()
		}
	}
}
