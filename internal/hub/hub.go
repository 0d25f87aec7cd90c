// Package hub fans events out to websocket subscribers of each organisation.
package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Connection represents a single WebSocket subscriber.
type Connection struct {
	ID    string
	OrgID int64
	Conn  *websocket.Conn
	Send  chan []byte
	mu    sync.Mutex
}

// Hub manages all subscriber connections.
type Hub struct {
	// Connections indexed by connection ID
	connections map[string]*Connection

	// orgs maps org_id to its set of connection IDs
	orgs map[int64]map[string]bool

	register   chan *Connection
	unregister chan *Connection
	broadcast  chan *orgMessage
	done       chan struct{}

	mu sync.RWMutex
}

type orgMessage struct {
	orgID int64
	data  []byte
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		connections: make(map[string]*Connection),
		orgs:        make(map[int64]map[string]bool),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		broadcast:   make(chan *orgMessage, 256),
		done:        make(chan struct{}),
	}
}

// Run starts the hub's main loop and returns when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			close(h.done)
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn.ID] = conn
			if h.orgs[conn.OrgID] == nil {
				h.orgs[conn.OrgID] = make(map[string]bool)
			}
			h.orgs[conn.OrgID][conn.ID] = true
			h.mu.Unlock()
			log.Debug().Str("conn_id", conn.ID).Int64("org_id", conn.OrgID).Msg("subscriber registered")

		case conn := <-h.unregister:
			h.mu.Lock()
			h.remove(conn)
			h.mu.Unlock()
			log.Debug().Str("conn_id", conn.ID).Msg("subscriber unregistered")

		case msg := <-h.broadcast:
			h.mu.Lock()
			for connID := range h.orgs[msg.orgID] {
				conn, exists := h.connections[connID]
				if !exists {
					continue
				}
				select {
				case conn.Send <- msg.data:
				default:
					log.Warn().Str("conn_id", connID).Msg("subscriber buffer full, dropping")
					h.remove(conn)
				}
			}
			h.mu.Unlock()
		}
	}
}

// remove must be called with h.mu held.
func (h *Hub) remove(conn *Connection) {
	if _, ok := h.connections[conn.ID]; !ok {
		return
	}
	delete(h.connections, conn.ID)
	if ids := h.orgs[conn.OrgID]; ids != nil {
		delete(ids, conn.ID)
		if len(ids) == 0 {
			delete(h.orgs, conn.OrgID)
		}
	}
	close(conn.Send)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, conn := range h.connections {
		h.remove(conn)
	}
}

// NewConnection creates a connection for an organisation. It is not
// registered until Register is called.
func (h *Hub) NewConnection(ws *websocket.Conn, orgID int64) *Connection {
	return &Connection{
		ID:    uuid.New().String(),
		OrgID: orgID,
		Conn:  ws,
		Send:  make(chan []byte, 256),
	}
}

// Register registers a connection with the hub. After the hub has stopped the
// connection's Send channel is closed instead.
func (h *Hub) Register(conn *Connection) {
	select {
	case h.register <- conn:
	case <-h.done:
		close(conn.Send)
	}
}

// Unregister unregisters a connection from the hub.
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// Publish sends v as JSON to every subscriber of the organisation. It never
// blocks; messages are dropped when the hub is saturated.
func (h *Hub) Publish(orgID int64, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- &orgMessage{orgID: orgID, data: data}:
	default:
		log.Warn().Int64("org_id", orgID).Msg("hub saturated, event not published")
	}
	return nil
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// HasSubscribers reports whether an organisation has any active connections.
func (h *Hub) HasSubscribers(orgID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.orgs[orgID]) > 0
}

// WriteMessage writes a message to the connection with proper locking.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

// SetWriteDeadline sets the write deadline for the connection.
func (c *Connection) SetWriteDeadline(t time.Time) error {
	return c.Conn.SetWriteDeadline(t)
}

// Close closes the connection.
func (c *Connection) Close() error {
	return c.Conn.Close()
}
