package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/JakeFAU/readingprogress/internal/progress"
)

const (
	clientBuffer = 16
	writeWait    = 5 * time.Second
)

// Broadcaster pushes every progress update to connected websocket clients as
// a JSON text message. It is a progress.Sink, so the hub drives it. A newly
// connected client first receives the latest update, if any.
type Broadcaster struct {
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu      sync.Mutex
	clients map[*streamClient]struct{}
	last    []byte
	closed  bool
}

type streamClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

var _ progress.Sink = (*Broadcaster)(nil)

// NewBroadcaster creates a Broadcaster. When allowedOrigins is empty every
// origin may connect.
func NewBroadcaster(logger *zap.Logger, allowedOrigins ...string) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = struct{}{}
	}
	return &Broadcaster{
		logger:  logger,
		clients: make(map[*streamClient]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(origins) == 0 {
					return true
				}
				_, ok := origins[r.Header.Get("Origin")]
				return ok
			},
		},
	}
}

// ServeHTTP upgrades the request and streams updates until the client goes
// away or the broadcaster closes.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &streamClient{conn: conn, send: make(chan []byte, clientBuffer)}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		_ = conn.Close()
		return
	}
	b.clients[c] = struct{}{}
	if b.last != nil {
		c.send <- b.last
	}
	count := len(b.clients)
	b.mu.Unlock()

	b.logger.Debug("stream client connected",
		zap.String("request_id", RequestID(r.Context())),
		zap.Int("clients", count),
	)
	go b.writeLoop(c)
	b.readLoop(c)
}

// readLoop discards client messages and detects disconnects.
func (b *Broadcaster) readLoop(c *streamClient) {
	defer b.drop(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (b *Broadcaster) writeLoop(c *streamClient) {
	defer func() { _ = c.conn.Close() }()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			b.logger.Debug("stream write failed", zap.Error(err))
			b.drop(c)
			return
		}
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// drop unregisters c and stops its writer.
func (b *Broadcaster) drop(c *streamClient) {
	b.mu.Lock()
	delete(b.clients, c)
	b.mu.Unlock()
	c.once.Do(func() { close(c.send) })
}

// Consume implements progress.Sink. Clients too slow to keep up are
// disconnected rather than allowed to stall the hub.
func (b *Broadcaster) Consume(_ context.Context, batch []progress.Update) error {
	for _, u := range batch {
		msg, err := json.Marshal(u)
		if err != nil {
			return fmt.Errorf("encode stream update: %w", err)
		}
		b.broadcast(msg)
	}
	return nil
}

func (b *Broadcaster) broadcast(msg []byte) {
	b.mu.Lock()
	b.last = msg
	var slow []*streamClient
	for c := range b.clients {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	b.mu.Unlock()

	for _, c := range slow {
		b.logger.Warn("dropping slow stream client")
		b.drop(c)
	}
}

// Clients returns the number of connected clients.
func (b *Broadcaster) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Close implements progress.Sink by disconnecting every client.
func (b *Broadcaster) Close(context.Context) error {
	b.mu.Lock()
	b.closed = true
	clients := make([]*streamClient, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.Unlock()

	for _, c := range clients {
		b.drop(c)
	}
	return nil
}
