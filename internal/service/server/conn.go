package server

import (
	"chat_relay/internal/model"
	"chat_relay/internal/utils/log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type (
	// transport is the slice of *websocket.Conn the write side needs.
	// Narrowed to an interface so pumps run against fakes in tests.
	transport interface {
		WriteMessage(messageType int, data []byte) error
		Close() error
	}

	// Conn is one live bidirectional channel bound to an identity.
	// All socket writes go through the outbox and the write pump, so
	// fan-out to this connection never blocks the caller.
	Conn struct {
		identity model.Identity
		sock     transport
		outbox   chan []byte
		pong     chan struct{}
		done     chan struct{}
		once     sync.Once
	}
)

func newConn(sock transport, identity model.Identity, buffer int) *Conn {
	return &Conn{
		identity: identity,
		sock:     sock,
		outbox:   make(chan []byte, buffer),
		pong:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

func (c *Conn) Identity() model.Identity {
	return c.identity
}

// enqueue hands a frame to the write pump without blocking. A false return
// means the connection is gone or its buffer is full; callers treat both
// as a dead peer.
func (c *Conn) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.outbox <- frame:
		return true
	default:
		return false
	}
}

func (c *Conn) signalPong() {
	select {
	case c.pong <- struct{}{}:
	default:
	}
}

func (c *Conn) close() {
	c.once.Do(func() {
		close(c.done)
		c.sock.Close()
	})
}

// writePump owns every write on the socket: queued frames plus the
// heartbeat. The heartbeat is a small state machine per connection:
// healthy until a ping goes out, awaiting-pong until the peer answers or
// the deadline fires, dead after that. onDead runs once, on the pump's
// goroutine, whenever the peer is declared gone.
func (c *Conn) writePump(pingInterval, pongDeadline time.Duration, onDead func()) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	var deadline *time.Timer
	var deadlineC <-chan time.Time
	disarm := func() {
		if deadline != nil {
			deadline.Stop()
			deadline, deadlineC = nil, nil
		}
	}
	defer disarm()

	for {
		select {
		case frame := <-c.outbox:
			if err := c.sock.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Debug("write failed", zap.String("userId", c.identity.ID), zap.Error(err))
				onDead()
				return
			}

		case <-ticker.C:
			if deadlineC != nil {
				// previous ping still unanswered, the deadline decides
				continue
			}
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug("ping failed", zap.String("userId", c.identity.ID), zap.Error(err))
				onDead()
				return
			}
			deadline = time.NewTimer(pongDeadline)
			deadlineC = deadline.C

		case <-c.pong:
			disarm()

		case <-deadlineC:
			log.Info("heartbeat timeout", zap.String("userId", c.identity.ID))
			onDead()
			return

		case <-c.done:
			return
		}
	}
}
