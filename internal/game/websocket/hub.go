package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/boardwalk/backend/internal/game/manager"
	"github.com/boardwalk/backend/internal/game/presence"
)

// Envelope is the wire format for every message in both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// BroadcastMessage routes one serialized envelope to a room, the lobby, or a
// single session.
type BroadcastMessage struct {
	room    string
	lobby   bool
	session string
	data    []byte
}

// Hub maintains the set of active connections and routes outbound messages.
// Room connections are grouped by game ID; lobby connections form their own
// set and only receive room availability events. Delivery is fire-and-forget;
// a client whose send buffer is full simply misses the message.
type Hub struct {
	gameManager *manager.GameManager

	// clients by sessionID, plus room and lobby membership indexes.
	clientsMutex sync.RWMutex
	clients      map[string]*Client
	rooms        map[string]map[string]*Client
	lobby        map[string]*Client

	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage

	presence *presence.Registry
	ctx      context.Context
	logger   *zap.SugaredLogger
}

// NewHub creates a new hub. The game manager is attached afterwards with
// SetGameManager since the manager itself broadcasts through the hub.
func NewHub(ctx context.Context, registry *presence.Registry, logger *zap.SugaredLogger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]*Client),
		lobby:      make(map[string]*Client),
		register:   make(chan *Client, 128),
		unregister: make(chan *Client, 128),
		broadcast:  make(chan *BroadcastMessage, 1024),
		presence:   registry,
		ctx:        ctx,
		logger:     logger,
	}
}

// SetGameManager attaches the game manager used to dispatch inbound events.
func (h *Hub) SetGameManager(gm *manager.GameManager) {
	h.gameManager = gm
}

// Run processes register, unregister and broadcast requests until the hub's
// context is cancelled. Must run in its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case msg := <-h.broadcast:
			h.deliver(msg)
		case <-h.ctx.Done():
			h.logger.Info("WebSocket hub shutting down")
			return
		}
	}
}

// ToRoom sends an event to every connection in a game room.
func (h *Hub) ToRoom(gameID, event string, payload interface{}) {
	data, err := marshalEnvelope(event, payload)
	if err != nil {
		h.logger.Errorf("Failed to marshal %s event: %v", event, err)
		return
	}
	h.broadcast <- &BroadcastMessage{room: gameID, data: data}
}

// ToLobby sends an event to every lobby connection.
func (h *Hub) ToLobby(event string, payload interface{}) {
	data, err := marshalEnvelope(event, payload)
	if err != nil {
		h.logger.Errorf("Failed to marshal %s event: %v", event, err)
		return
	}
	h.broadcast <- &BroadcastMessage{lobby: true, data: data}
}

// ToUser sends an event to the session currently registered for a user. The
// message is dropped when the user has no active session.
func (h *Hub) ToUser(userID, event string, payload interface{}) {
	sessionID, ok := h.presence.Get(userID)
	if !ok {
		h.logger.Debugf("No active session for user %s, dropping %s event", userID, event)
		return
	}
	data, err := marshalEnvelope(event, payload)
	if err != nil {
		h.logger.Errorf("Failed to marshal %s event: %v", event, err)
		return
	}
	h.broadcast <- &BroadcastMessage{session: sessionID, data: data}
}

func (h *Hub) addClient(c *Client) {
	h.clientsMutex.Lock()
	defer h.clientsMutex.Unlock()

	h.clients[c.sessionID] = c
	if c.isLobby {
		h.lobby[c.sessionID] = c
	}
	h.logger.Infof("Client registered: user %s, session %s, lobby=%v", c.userID, c.sessionID, c.isLobby)
}

func (h *Hub) removeClient(c *Client) {
	h.clientsMutex.Lock()
	if _, ok := h.clients[c.sessionID]; !ok {
		h.clientsMutex.Unlock()
		return
	}
	delete(h.clients, c.sessionID)
	delete(h.lobby, c.sessionID)
	if c.gameID != "" {
		if room, ok := h.rooms[c.gameID]; ok {
			delete(room, c.sessionID)
			if len(room) == 0 {
				delete(h.rooms, c.gameID)
			}
		}
	}
	close(c.send)
	h.clientsMutex.Unlock()

	if userID, ok := h.presence.RemoveBySession(h.ctx, c.sessionID); ok {
		h.logger.Infof("Client disconnected: user %s, session %s", userID, c.sessionID)
	}
}

// joinRoom adds a connection to a game room. A connection belongs to at most
// one room; joining another room implicitly leaves the previous one.
func (h *Hub) joinRoom(c *Client, gameID string) {
	h.clientsMutex.Lock()
	defer h.clientsMutex.Unlock()

	if c.gameID != "" && c.gameID != gameID {
		if room, ok := h.rooms[c.gameID]; ok {
			delete(room, c.sessionID)
			if len(room) == 0 {
				delete(h.rooms, c.gameID)
			}
		}
	}

	c.gameID = gameID
	if _, ok := h.rooms[gameID]; !ok {
		h.rooms[gameID] = make(map[string]*Client)
	}
	h.rooms[gameID][c.sessionID] = c
}

// leaveRoom removes a connection from its current game room.
func (h *Hub) leaveRoom(c *Client) {
	h.clientsMutex.Lock()
	defer h.clientsMutex.Unlock()

	if c.gameID == "" {
		return
	}
	if room, ok := h.rooms[c.gameID]; ok {
		delete(room, c.sessionID)
		if len(room) == 0 {
			delete(h.rooms, c.gameID)
		}
	}
	c.gameID = ""
}

func (h *Hub) deliver(msg *BroadcastMessage) {
	h.clientsMutex.RLock()
	defer h.clientsMutex.RUnlock()

	switch {
	case msg.session != "":
		if c, ok := h.clients[msg.session]; ok {
			c.enqueue(msg.data)
		}
	case msg.lobby:
		for _, c := range h.lobby {
			c.enqueue(msg.data)
		}
	default:
		for _, c := range h.rooms[msg.room] {
			c.enqueue(msg.data)
		}
	}
}

func marshalEnvelope(event string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: event, Data: data})
}
