package hub

import (
	"encoding/json"
	"sync"

	"github.com/cb3tech/moshcast-live/internal/config"
	"github.com/cb3tech/moshcast-live/pkg/log"
)

// Hub fans messages out to session groups. A session group holds the
// host connection and every listener tuned in to that host.
type Hub struct {
	clients    map[string]*Client            // clientID -> client
	sessions   map[string]map[string]*Client // hostID -> clientID -> client
	register   chan *Client
	unregister chan *Client
	broadcast  chan *sessionMessage
	mu         sync.RWMutex
	config     config.WebSocketConfig
}

type sessionMessage struct {
	HostID  string
	Message []byte
	Exclude string // client ID to skip, empty for everyone
}

func NewHub(cfg config.WebSocketConfig) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		sessions:   make(map[string]map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *sessionMessage, 256),
		config:     cfg,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			log.L().Debug().Str(log.FieldConnID, client.ID).Msg("client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				for hostID, members := range h.sessions {
					delete(members, client.ID)
					if len(members) == 0 {
						delete(h.sessions, hostID)
					}
				}
				delete(h.clients, client.ID)
				client.closeSend()
			}
			h.mu.Unlock()
			log.L().Debug().Str(log.FieldConnID, client.ID).Msg("client unregistered")

		case msg := <-h.broadcast:
			h.mu.RLock()
			if members, ok := h.sessions[msg.HostID]; ok {
				for clientID, client := range members {
					if clientID == msg.Exclude {
						continue
					}
					select {
					case client.Send <- msg.Message:
					default:
						go h.removeClient(client)
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// JoinSession adds a client to a host's session group.
func (h *Hub) JoinSession(client *Client, hostID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.sessions[hostID]; !ok {
		h.sessions[hostID] = make(map[string]*Client)
	}
	h.sessions[hostID][client.ID] = client
	log.L().Info().Str(log.FieldConnID, client.ID).Str(log.FieldHostID, hostID).Msg("client joined session")
}

// LeaveSession drops a client from a host's session group.
func (h *Hub) LeaveSession(client *Client, hostID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if members, ok := h.sessions[hostID]; ok {
		delete(members, client.ID)
		if len(members) == 0 {
			delete(h.sessions, hostID)
		}
	}
	log.L().Info().Str(log.FieldConnID, client.ID).Str(log.FieldHostID, hostID).Msg("client left session")
}

// EndSession removes the whole session group and returns its members
// so the caller can detach their per-connection state.
func (h *Hub) EndSession(hostID string) []*Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	members := h.sessions[hostID]
	delete(h.sessions, hostID)

	out := make([]*Client, 0, len(members))
	for _, client := range members {
		out = append(out, client)
	}
	return out
}

// BroadcastToSession sends a message to every member of the session
// group, optionally excluding one client.
func (h *Hub) BroadcastToSession(hostID string, message interface{}, exclude string) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	h.broadcast <- &sessionMessage{
		HostID:  hostID,
		Message: data,
		Exclude: exclude,
	}
	return nil
}

// SessionClientCount returns the session group size, host included.
func (h *Hub) SessionClientCount(hostID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if members, ok := h.sessions[hostID]; ok {
		return len(members)
	}
	return 0
}

func (h *Hub) removeClient(client *Client) {
	h.unregister <- client
}
