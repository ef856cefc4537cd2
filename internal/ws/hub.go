package ws

import (
	"encoding/json"
	"log"

	"github.com/google/uuid"
)

// Event is one board-invalidation message pushed to shop dashboards.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// shopEvent routes an event to one shop's room.
type shopEvent struct {
	ShopID uuid.UUID
	Event  Event
}

// Hub maintains the active board clients per shop and fans events out to
// them. All room state is owned by the Run goroutine.
type Hub struct {
	rooms map[uuid.UUID]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *shopEvent
}

// NewHub creates a new Hub instance.
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[uuid.UUID]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *shopEvent, 256),
	}
}

// Run is the hub's main loop; call as a goroutine: go hub.Run()
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			if h.rooms[client.shopID] == nil {
				h.rooms[client.shopID] = make(map[*Client]bool)
			}
			h.rooms[client.shopID][client] = true

		case client := <-h.unregister:
			if clients, ok := h.rooms[client.shopID]; ok {
				if _, exists := clients[client]; exists {
					delete(clients, client)
					close(client.send)
					if len(clients) == 0 {
						delete(h.rooms, client.shopID)
					}
				}
			}

		case event := <-h.broadcast:
			clients := h.rooms[event.ShopID]
			if len(clients) == 0 {
				continue
			}

			message, err := json.Marshal(event.Event)
			if err != nil {
				log.Printf("ERROR: marshal ws event: %v", err)
				continue
			}

			for client := range clients {
				select {
				case client.send <- message:
				default:
					// Client's send buffer is full; drop it
					close(client.send)
					delete(clients, client)
					if len(clients) == 0 {
						delete(h.rooms, event.ShopID)
					}
				}
			}
		}
	}
}

// BroadcastToShop sends an event to every client watching a shop's board.
func (h *Hub) BroadcastToShop(shopID uuid.UUID, event Event) {
	h.broadcast <- &shopEvent{ShopID: shopID, Event: event}
}
