package websocket

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/boardwalk/backend/internal/game/presence"
)

func newTestHub() *Hub {
	logger := zap.NewNop().Sugar()
	return NewHub(context.Background(), presence.NewRegistry(nil, logger), logger)
}

func newTestClient(h *Hub, userID, sessionID string, isLobby bool) *Client {
	return &Client{
		hub:       h,
		send:      make(chan []byte, sendBufferSize),
		userID:    userID,
		sessionID: sessionID,
		isLobby:   isLobby,
	}
}

func TestMarshalEnvelope(t *testing.T) {
	data, err := marshalEnvelope("chatMsg", map[string]string{"msg": "hi"})
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, "chatMsg", env.Type)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.Equal(t, "hi", payload["msg"])
}

func TestDeliverToRoom(t *testing.T) {
	h := newTestHub()
	inRoom := newTestClient(h, "u1", "s1", false)
	outside := newTestClient(h, "u2", "s2", false)
	h.addClient(inRoom)
	h.addClient(outside)
	h.joinRoom(inRoom, "g1")

	h.deliver(&BroadcastMessage{room: "g1", data: []byte("hello")})

	select {
	case msg := <-inRoom.send:
		assert.Equal(t, "hello", string(msg))
	default:
		t.Fatal("expected message for room member")
	}
	assert.Empty(t, outside.send)
}

func TestDeliverToLobby(t *testing.T) {
	h := newTestHub()
	lobbyClient := newTestClient(h, "u1", "s1", true)
	roomClient := newTestClient(h, "u2", "s2", false)
	h.addClient(lobbyClient)
	h.addClient(roomClient)

	h.deliver(&BroadcastMessage{lobby: true, data: []byte("rooms changed")})

	assert.Len(t, lobbyClient.send, 1)
	assert.Empty(t, roomClient.send)
}

func TestDeliverToSession(t *testing.T) {
	h := newTestHub()
	target := newTestClient(h, "u1", "s1", false)
	other := newTestClient(h, "u2", "s2", false)
	h.addClient(target)
	h.addClient(other)

	h.deliver(&BroadcastMessage{session: "s1", data: []byte("psst")})

	assert.Len(t, target.send, 1)
	assert.Empty(t, other.send)
}

func TestJoinRoomSwitchesRooms(t *testing.T) {
	h := newTestHub()
	c := newTestClient(h, "u1", "s1", false)
	h.addClient(c)

	h.joinRoom(c, "g1")
	h.joinRoom(c, "g2")

	h.deliver(&BroadcastMessage{room: "g1", data: []byte("old room")})
	assert.Empty(t, c.send)

	h.deliver(&BroadcastMessage{room: "g2", data: []byte("new room")})
	assert.Len(t, c.send, 1)
}

func TestRemoveClientCleansUpRoomAndPresence(t *testing.T) {
	h := newTestHub()
	c := newTestClient(h, "u1", "s1", false)
	h.addClient(c)
	h.presence.Set(context.Background(), "u1", "s1")
	h.joinRoom(c, "g1")

	h.removeClient(c)

	_, ok := h.presence.Get("u1")
	assert.False(t, ok)

	// The send channel is closed and the room entry is gone.
	_, open := <-c.send
	assert.False(t, open)
	h.deliver(&BroadcastMessage{room: "g1", data: []byte("after")})
}

func TestEnqueueDropsWhenFull(t *testing.T) {
	h := newTestHub()
	c := newTestClient(h, "u1", "s1", false)
	c.send = make(chan []byte, 1)

	c.enqueue([]byte("first"))
	c.enqueue([]byte("second"))

	assert.Len(t, c.send, 1)
	assert.Equal(t, "first", string(<-c.send))
}
