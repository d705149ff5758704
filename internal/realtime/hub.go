// Package realtime fans mutation envelopes out to connected clients.
//
// The Hub accepts WebSocket connections and writes every published envelope
// to each of them from a single loop, so one connection always sees
// envelopes in publish order. Delivery is best effort: a full buffer drops
// the envelope and a failed write drops the connection. Clients recover by
// refetching collections when they (re)connect.
package realtime

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/mschirtzinger/teamboard/internal/events"
)

var (
	// ErrBufferFull is returned when an envelope was dropped.
	ErrBufferFull = errors.New("realtime buffer full")

	// ErrHubClosed is returned after Stop.
	ErrHubClosed = errors.New("realtime hub closed")
)

// Config holds hub configuration.
type Config struct {
	// BufferSize is the number of envelopes queued before publishes are
	// dropped (default: 100).
	BufferSize int

	// WriteTimeout bounds each write to one client (default: 5s).
	WriteTimeout time.Duration

	// OriginPatterns are the allowed browser origins (default: all).
	OriginPatterns []string

	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BufferSize:     100,
		WriteTimeout:   5 * time.Second,
		OriginPatterns: []string{"*"},
		Logger:         slog.Default(),
	}
}

// client serializes writes to one connection. ServeHTTP holds mu while
// the hello is written, so the broadcast loop waits behind it.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// Hub manages WebSocket clients and broadcasts envelopes to them.
type Hub struct {
	config *Config
	logger *slog.Logger

	clients   map[*websocket.Conn]*client
	clientsMu sync.RWMutex

	// onJoin runs after a connection is registered and before its hello.
	onJoin func()

	broadcast chan []byte

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	startMu sync.Mutex
	started bool
}

// NewHub creates a hub. Call Start before publishing.
func NewHub(config *Config) *Hub {
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}
	if config.BufferSize <= 0 {
		config.BufferSize = defaults.BufferSize
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if len(config.OriginPatterns) == 0 {
		config.OriginPatterns = defaults.OriginPatterns
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Hub{
		config:    config,
		logger:    config.Logger.With("component", "realtime"),
		clients:   make(map[*websocket.Conn]*client),
		broadcast: make(chan []byte, config.BufferSize),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start runs the broadcast loop. It is a no-op when already started.
func (h *Hub) Start() {
	h.startMu.Lock()
	defer h.startMu.Unlock()
	if h.started {
		return
	}
	h.started = true
	h.wg.Add(1)
	go h.broadcastLoop()
}

// Stop disconnects every client and ends the broadcast loop.
func (h *Hub) Stop() error {
	h.logger.Info("stopping realtime hub")
	h.cancel()

	h.clientsMu.Lock()
	for conn := range h.clients {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(h.clients, conn)
	}
	h.clientsMu.Unlock()

	h.wg.Wait()
	return nil
}

// Publish encodes payload as a topic envelope and queues it for every
// connected client.
func (h *Hub) Publish(_ context.Context, topic string, payload any) error {
	data, err := events.Encode(topic, payload)
	if err != nil {
		return err
	}
	return h.PublishRaw(data)
}

// PublishRaw queues an already encoded envelope.
func (h *Hub) PublishRaw(data []byte) error {
	if h.ctx.Err() != nil {
		return ErrHubClosed
	}
	select {
	case h.broadcast <- data:
		return nil
	case <-h.ctx.Done():
		return ErrHubClosed
	default:
		h.logger.Warn("broadcast channel full, dropping envelope")
		return ErrBufferFull
	}
}

func (h *Hub) broadcastLoop() {
	defer h.wg.Done()

	for {
		select {
		case <-h.ctx.Done():
			return

		case data := <-h.broadcast:
			h.clientsMu.RLock()
			clients := make([]*client, 0, len(h.clients))
			for _, c := range h.clients {
				clients = append(clients, c)
			}
			h.clientsMu.RUnlock()

			for _, c := range clients {
				c.mu.Lock()
				err := h.write(c.conn, data)
				c.mu.Unlock()
				if err != nil {
					h.logger.Debug("failed to send to client", "error", err)
					h.removeClient(c.conn)
				}
			}
		}
	}
}

func (h *Hub) write(conn *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(h.ctx, h.config.WriteTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

// ServeHTTP upgrades the request and keeps the connection until the client
// leaves or the hub stops.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.ctx.Err() != nil {
		http.Error(w, ErrHubClosed.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.config.OriginPatterns,
	})
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	// Join first so no envelope published from here on is missed, and hold
	// the client lock until the hello is out so it is still read first.
	c := &client{conn: conn}
	c.mu.Lock()
	h.clientsMu.Lock()
	h.clients[conn] = c
	clientCount := len(h.clients)
	h.clientsMu.Unlock()

	if h.onJoin != nil {
		h.onJoin()
	}

	hello, err := events.Encode(events.TopicHello, events.Hello{
		Clients:   clientCount,
		Timestamp: time.Now().UTC(),
	})
	if err == nil {
		err = h.write(conn, hello)
	}
	c.mu.Unlock()
	if err != nil {
		h.removeClient(conn)
		return
	}
	h.logger.Info("client connected", "clients", clientCount, "remote", r.RemoteAddr)

	h.readLoop(conn)
}

// readLoop discards client frames; it exists to notice disconnects.
func (h *Hub) readLoop(conn *websocket.Conn) {
	defer h.removeClient(conn)

	for {
		if _, _, err := conn.Read(h.ctx); err != nil {
			return
		}
	}
}

func (h *Hub) removeClient(conn *websocket.Conn) {
	h.clientsMu.Lock()
	if _, exists := h.clients[conn]; exists {
		delete(h.clients, conn)
		clientCount := len(h.clients)
		h.clientsMu.Unlock()

		_ = conn.Close(websocket.StatusNormalClosure, "")
		h.logger.Info("client disconnected", "clients", clientCount)
	} else {
		h.clientsMu.Unlock()
	}
}

// ClientCount returns the current number of connected clients.
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}
