package status

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeTimeout = 5 * time.Second

// Feed pushes status snapshots to WebSocket subscribers. Subscribers that
// cannot keep up (or have gone away) are dropped on the first failed write.
type Feed struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewFeed creates a Feed.
func NewFeed(logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
		},
		logger: logger,
		conns:  make(map[*websocket.Conn]struct{}),
	}
}

// ServeHTTP upgrades the connection and subscribes it to broadcasts.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Debug("websocket upgrade failed", "err", err)
		return
	}

	f.mu.Lock()
	f.conns[conn] = struct{}{}
	subscribers := len(f.conns)
	f.mu.Unlock()

	f.logger.Debug("status subscriber connected",
		"remote", conn.RemoteAddr().String(),
		"subscribers", subscribers,
	)

	// Reader goroutine: we never expect inbound messages, but reading is
	// what surfaces close frames and dead peers.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				f.drop(conn)
				return
			}
		}
	}()
}

// Broadcast sends v as one JSON message to every subscriber.
func (f *Feed) Broadcast(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		f.logger.Error("marshal status snapshot", "err", err)
		return
	}

	f.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(f.conns))
	for c := range f.conns {
		conns = append(conns, c)
	}
	f.mu.Unlock()

	for _, c := range conns {
		c.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
			f.logger.Debug("dropping status subscriber", "err", err)
			f.drop(c)
		}
	}
}

// Close disconnects all subscribers.
func (f *Feed) Close() {
	f.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(f.conns))
	for c := range f.conns {
		conns = append(conns, c)
	}
	f.conns = make(map[*websocket.Conn]struct{})
	f.mu.Unlock()

	for _, c := range conns {
		c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
			time.Now().Add(writeTimeout))
		c.Close()
	}
}

// drop unsubscribes and closes one connection.
func (f *Feed) drop(conn *websocket.Conn) {
	f.mu.Lock()
	_, ok := f.conns[conn]
	delete(f.conns, conn)
	f.mu.Unlock()

	if ok {
		conn.Close()
	}
}
