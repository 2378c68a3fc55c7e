// Package transport implements the lifecycle-event broadcaster that
// carries plugin lifecycle and mediated-operation request/response
// events between the sandbox core and the editor's UI process over a
// WebSocket connection. It implements both ops.Transport (Emit+Await)
// and manager.Transport (Emit).
package transport

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Message is the wire envelope for every event crossing the
// broadcaster, in either direction.
type Message struct {
	Event   string                 `json:"event"`
	Payload map[string]interface{} `json:"payload"`
}

// writeQueueCapacity bounds how far a slow UI connection can lag
// before its messages are dropped rather than blocking the emitter.
const writeQueueCapacity = 256

// Broadcaster fans events out to every connected UI client and lets
// callers Await a named response event, using a single writer per
// connection (one goroutine owns the Conn.Write calls).
type Broadcaster struct {
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu      sync.RWMutex
	conns   map[*connection]struct{}
	waiters map[string][]chan Message
}

type connection struct {
	conn      *websocket.Conn
	writeChan chan Message
	done      chan struct{}
}

// New builds a Broadcaster. Register its ServeHTTP with an HTTP mux at
// the path the UI process connects to.
func New(logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger:  logger,
		conns:   make(map[*connection]struct{}),
		waiters: make(map[string][]chan Message),
	}
}

// ServeHTTP upgrades an incoming request to a WebSocket connection and
// serves it until the client disconnects.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &connection{conn: ws, writeChan: make(chan Message, writeQueueCapacity), done: make(chan struct{})}
	b.mu.Lock()
	b.conns[c] = struct{}{}
	b.mu.Unlock()

	go b.writeLoop(c)
	b.readLoop(c)

	b.mu.Lock()
	delete(b.conns, c)
	b.mu.Unlock()
	close(c.done)
	_ = ws.Close()
}

func (b *Broadcaster) writeLoop(c *connection) {
	for {
		select {
		case msg := <-c.writeChan:
			if err := c.conn.WriteJSON(msg); err != nil {
				b.logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		case <-c.done:
			return
		}
	}
}

func (b *Broadcaster) readLoop(c *connection) {
	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		b.deliverToWaiters(msg)
	}
}

// Emit broadcasts event to every connected UI client and to any
// in-process Await callers waiting on it.
func (b *Broadcaster) Emit(event string, payload map[string]interface{}) {
	msg := Message{Event: event, Payload: payload}

	b.mu.RLock()
	conns := make([]*connection, 0, len(b.conns))
	for c := range b.conns {
		conns = append(conns, c)
	}
	b.mu.RUnlock()

	for _, c := range conns {
		select {
		case c.writeChan <- msg:
		default:
			b.logger.Warn("dropping event for slow websocket client", zap.String("event", event))
		}
	}

	b.deliverToWaiters(msg)
}

// Await blocks until responseEvent is emitted (by Emit, or received
// from a UI client over the socket) or ctx expires.
func (b *Broadcaster) Await(ctx context.Context, responseEvent string) (map[string]interface{}, error) {
	ch := make(chan Message, 1)
	b.mu.Lock()
	b.waiters[responseEvent] = append(b.waiters[responseEvent], ch)
	b.mu.Unlock()

	defer b.removeWaiter(responseEvent, ch)

	select {
	case msg := <-ch:
		return msg.Payload, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *Broadcaster) deliverToWaiters(msg Message) {
	b.mu.Lock()
	waiters := b.waiters[msg.Event]
	b.mu.Unlock()
	for _, ch := range waiters {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (b *Broadcaster) removeWaiter(event string, target chan Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.waiters[event]
	for i, ch := range list {
		if ch == target {
			b.waiters[event] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(b.waiters[event]) == 0 {
		delete(b.waiters, event)
	}
}

// Close disconnects every connected client.
func (b *Broadcaster) Close() error {
	b.mu.Lock()
	conns := make([]*connection, 0, len(b.conns))
	for c := range b.conns {
		conns = append(conns, c)
	}
	b.conns = make(map[*connection]struct{})
	b.mu.Unlock()

	for _, c := range conns {
		_ = c.conn.Close()
	}
	return nil
}
