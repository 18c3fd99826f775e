// Package stream pushes emitted snapshot updates to WebSocket clients.
package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"gridwatch/internal/logger"
	"gridwatch/internal/metrics"
	"gridwatch/internal/poller"
)

// Source is the update feed the hub fans out.
type Source interface {
	Subscribe() (<-chan poller.Update, func())
	Current() []poller.Update
}

// Hub manages WebSocket clients and fans out session updates.
type Hub struct {
	source   Source
	metrics  *metrics.Metrics
	log      *logger.Entry
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*Client]struct{}
	closed  bool
}

// NewHub creates a hub. Browser connections are accepted from
// allowedOrigins; "*" or an empty list accepts any origin.
func NewHub(source Source, allowedOrigins []string, log *logger.Log, m *metrics.Metrics) *Hub {
	h := &Hub{
		source:  source,
		metrics: m,
		log:     logger.Component(log, "stream"),
		clients: make(map[*Client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

// Run forwards updates until ctx is done or the source closes its feed.
func (h *Hub) Run(ctx context.Context) {
	updates, cancel := h.source.Subscribe()
	defer cancel()
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			h.broadcast(u)
		}
	}
}

func (h *Hub) broadcast(u poller.Update) {
	raw, err := json.Marshal(u)
	if err != nil {
		h.log.WithError(err).WithField("kind", u.Kind).Error("failed to encode update")
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- raw:
		default:
			h.log.WithField("remote", c.remote).Warn("client send buffer full, dropping update")
		}
	}
}

// ServeWS upgrades the request and registers the client. The retained
// state is sent first, then every subsequent update. Reading the state and
// registering happen under one lock, so an update broadcast in between is
// delivered rather than lost; a resulting duplicate carries the same seq.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	c := &Client{hub: h, conn: conn, send: make(chan []byte, 64), remote: r.RemoteAddr}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	c.sendInitial(h.source.Current())
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.metrics.StreamConnected(1)
	h.log.WithField("remote", c.remote).Info("websocket client connected")

	go c.writePump()
	go c.readPump()
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.metrics.StreamConnected(-1)
	h.log.WithField("remote", c.remote).Info("websocket client disconnected")
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
		h.metrics.StreamConnected(-1)
	}
}
