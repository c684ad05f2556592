package ws

import (
	"encoding/json"
	"sync"
)

// Event is a WebSocket message broadcast to floor clients.
type Event struct {
	Type    string          `json:"type"`
	Table   string          `json:"table"`
	Payload json.RawMessage `json:"payload"`
}

// Hub maintains the set of active clients and broadcasts messages to them.
// Clients subscribe either to a single table or to the whole floor.
type Hub struct {
	// Clients watching a single table, keyed by table number
	rooms map[string]map[*Client]bool

	// Clients watching the whole floor
	floor map[*Client]bool

	// Inbound messages from clients (register/unregister)
	register   chan *Client
	unregister chan *Client

	// Outbound messages to broadcast
	broadcast chan *Event

	// Mutex for thread-safe room access
	mu sync.RWMutex
}

// NewHub creates a new Hub instance.
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		floor:      make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Event, 256),
	}
}

// Run starts the hub's main loop.
// This should be called as a goroutine: go hub.Run()
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if client.table == "" {
				h.floor[client] = true
			} else {
				if h.rooms[client.table] == nil {
					h.rooms[client.table] = make(map[*Client]bool)
				}
				h.rooms[client.table][client] = true
			}
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			h.removeClient(client)
			h.mu.Unlock()

		case event := <-h.broadcast:
			h.mu.Lock()

			// Marshal event to JSON once
			message, err := json.Marshal(event)
			if err != nil {
				h.mu.Unlock()
				continue
			}

			// Table watchers plus everyone on the floor view
			for client := range h.rooms[event.Table] {
				h.send(client, message)
			}
			for client := range h.floor {
				h.send(client, message)
			}
			h.mu.Unlock()
		}
	}
}

// send delivers a message to one client, dropping the client if its buffer is
// full. Caller must hold h.mu.
func (h *Hub) send(client *Client, message []byte) {
	select {
	case client.send <- message:
	default:
		h.removeClient(client)
	}
}

// removeClient unregisters a client and cleans up empty rooms.
// Caller must hold h.mu.
func (h *Hub) removeClient(client *Client) {
	if client.table == "" {
		if _, exists := h.floor[client]; exists {
			delete(h.floor, client)
			close(client.send)
		}
		return
	}
	if clients, ok := h.rooms[client.table]; ok {
		if _, exists := clients[client]; exists {
			delete(clients, client)
			close(client.send)
			if len(clients) == 0 {
				delete(h.rooms, client.table)
			}
		}
	}
}

// BroadcastToTable sends an event to everyone watching the given table and to
// all floor-view clients. This is the public API for handlers.
func (h *Hub) BroadcastToTable(table string, eventType string, payload json.RawMessage) {
	h.broadcast <- &Event{
		Type:    eventType,
		Table:   table,
		Payload: payload,
	}
}
