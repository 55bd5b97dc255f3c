package handlers

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jason-s-yu/examarena/internal/game"
	"github.com/sirupsen/logrus"
)

// Connection is one live websocket client. Events are queued on OutChan and
// written by the connection's write pump.
type Connection struct {
	id      string
	UserID  uuid.UUID // uuid.Nil for anonymous clients
	OutChan chan game.Event
	Cancel  context.CancelFunc

	mu     sync.Mutex
	closed bool
	log    *logrus.Entry
}

const outBuffer = 32

// NewConnection creates a connection with a small outbound buffer.
func NewConnection(userID uuid.UUID, cancel context.CancelFunc, logger *logrus.Logger) *Connection {
	id := uuid.NewString()
	return &Connection{
		id:      id,
		UserID:  userID,
		OutChan: make(chan game.Event, outBuffer),
		Cancel:  cancel,
		log:     logger.WithFields(logrus.Fields{"conn_id": id, "user_id": userID}),
	}
}

func (c *Connection) ID() string { return c.id }

// Send pushes an event onto OutChan without blocking. Events for a closed
// connection are dropped. When OutChan is full, ordinary events are dropped and
// a result event closes the connection instead.
func (c *Connection) Send(ev game.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.OutChan <- ev:
	default:
		if isResultEvent(ev.Type) {
			c.log.Warnf("OutChan full on %s, closing slow connection", ev.Type)
			c.closeUnsafe()
			return
		}
		c.log.Warnf("OutChan full, dropped event %s", ev.Type)
	}
}

func isResultEvent(t game.EventType) bool {
	return t == game.EventMatchEnded || t == game.EventTrainingResult
}

// WriteError sends a danger toast with msg.
func (c *Connection) WriteError(msg string) {
	c.Send(game.Toast(game.ToastDanger, msg))
}

// Close stops accepting events and closes OutChan. Safe to call more than once.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeUnsafe()
}

func (c *Connection) closeUnsafe() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.OutChan)
	if c.Cancel != nil {
		c.Cancel()
	}
}
