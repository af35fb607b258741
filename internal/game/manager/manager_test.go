package manager

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/boardwalk/backend/internal/config"
	"github.com/boardwalk/backend/internal/game/models"
	"github.com/boardwalk/backend/internal/game/presence"
)

// fakeStore is an in-memory GameStore. Games are cloned on the way in and
// out so that tests observe only what was actually saved.
type fakeStore struct {
	mu    sync.Mutex
	games map[string]*models.Game
}

func newFakeStore() *fakeStore {
	return &fakeStore{games: make(map[string]*models.Game)}
}

func cloneGame(g *models.Game) *models.Game {
	c := *g
	c.Players = append([]models.Player(nil), g.Players...)
	c.Properties = append([]models.PropertyState(nil), g.Properties...)
	c.DiceRolls = append([]models.DiceRoll(nil), g.DiceRolls...)
	c.Transactions = append([]models.Transaction(nil), g.Transactions...)
	return &c
}

func (s *fakeStore) InsertGame(_ context.Context, game *models.Game) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if game.ID.IsZero() {
		game.ID = primitive.NewObjectID()
	}
	s.games[game.ID.Hex()] = cloneGame(game)
	return game.ID.Hex(), nil
}

func (s *fakeStore) GetGame(_ context.Context, gameID string) (*models.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[gameID]
	if !ok {
		return nil, ErrGameNotFound
	}
	return cloneGame(game), nil
}

func (s *fakeStore) ListWaitingGames(_ context.Context) ([]models.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Game
	for _, game := range s.games {
		if game.Status == models.GameStatusWaiting {
			out = append(out, *cloneGame(game))
		}
	}
	return out, nil
}

func (s *fakeStore) SaveGame(_ context.Context, game *models.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.games[game.ID.Hex()] = cloneGame(game)
	return nil
}

func (s *fakeStore) DeleteGame(_ context.Context, gameID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.games, gameID)
	return nil
}

// broadcastEntry records one delivered event.
type broadcastEntry struct {
	scope   string // "room", "lobby" or "user"
	target  string
	event   string
	payload interface{}
}

type fakeBroadcaster struct {
	mu      sync.Mutex
	entries []broadcastEntry
}

func (b *fakeBroadcaster) ToRoom(gameID, event string, payload interface{}) {
	b.record(broadcastEntry{scope: "room", target: gameID, event: event, payload: payload})
}

func (b *fakeBroadcaster) ToLobby(event string, payload interface{}) {
	b.record(broadcastEntry{scope: "lobby", event: event, payload: payload})
}

func (b *fakeBroadcaster) ToUser(userID, event string, payload interface{}) {
	b.record(broadcastEntry{scope: "user", target: userID, event: event, payload: payload})
}

func (b *fakeBroadcaster) record(e broadcastEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, e)
}

// last returns the most recent entry for an event, or nil.
func (b *fakeBroadcaster) last(event string) *broadcastEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.entries) - 1; i >= 0; i-- {
		if b.entries[i].event == event {
			return &b.entries[i]
		}
	}
	return nil
}

func (b *fakeBroadcaster) count(event string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.entries {
		if e.event == event {
			n++
		}
	}
	return n
}

type fakeUsers struct {
	names map[string]string
}

func (u *fakeUsers) GetUsername(_ context.Context, userID string) (string, error) {
	name, ok := u.names[userID]
	if !ok {
		return "", ErrUserNotFound
	}
	return name, nil
}

type fakeCatalog struct {
	properties map[int]*models.Property
}

func (c *fakeCatalog) GetProperty(_ context.Context, propertyID int) (*models.Property, error) {
	prop, ok := c.properties[propertyID]
	if !ok {
		return nil, ErrPropertyNotFound
	}
	return prop, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Game: config.GameConfig{
			MaxPlayers:            6,
			MinimumPlayersToStart: 2,
			InitialBalance:        372000,
			BoardSize:             32,
			JailBribeFee:          50000,
			JailBribePosition:     8,
		},
	}
}

type testEnv struct {
	gm        *GameManager
	store     *fakeStore
	broadcast *fakeBroadcaster
	users     *fakeUsers
	catalog   *fakeCatalog
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop().Sugar()
	env := &testEnv{
		store:     newFakeStore(),
		broadcast: &fakeBroadcaster{},
		users: &fakeUsers{names: map[string]string{
			"u1": "alice",
			"u2": "bob",
			"u3": "carol",
		}},
		catalog: &fakeCatalog{properties: map[int]*models.Property{
			1: {ID: 1, Name: "Boardwalk", Position: 31, PriceTag: 300000, MortgageValue: 150000},
			2: {ID: 2, Name: "Baltic Avenue", Position: 3, PriceTag: 60000, MortgageValue: 30000},
		}},
	}
	env.gm = NewGameManager(env.store, env.users, env.catalog, env.broadcast, presence.NewRegistry(nil, logger), testConfig(), logger)
	return env
}

// createGame is a helper that creates a room hosted by u1 and returns its ID.
func (env *testEnv) createGame(t *testing.T) string {
	t.Helper()
	game, err := env.gm.CreateRoom(context.Background(), "u1", "test room", "")
	require.NoError(t, err)
	return game.ID.Hex()
}

func TestCreateRoom(t *testing.T) {
	env := newTestEnv(t)

	game, err := env.gm.CreateRoom(context.Background(), "u1", "", "")
	require.NoError(t, err)

	assert.Equal(t, "alice's Game", game.Name)
	assert.Equal(t, models.GameStatusWaiting, game.Status)
	assert.Equal(t, "u1", game.HostPlayerID)
	require.Len(t, game.Players, 1)
	assert.Equal(t, "alice", game.Players[0].Username)
	assert.Equal(t, 372000, game.Players[0].Balance)
	assert.Equal(t, models.MinMoverLevel, game.Players[0].MoverLevel)

	created := env.broadcast.last(EventGameCreated)
	require.NotNil(t, created)
	assert.Equal(t, "user", created.scope)
	assert.Equal(t, "u1", created.target)

	available := env.broadcast.last(EventNewGameAvailable)
	require.NotNil(t, available)
	assert.Equal(t, "lobby", available.scope)
	assert.Equal(t, 1, available.payload.(NewGameAvailablePayload).PlayerCount)
}

func TestCreateRoomUnknownUser(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.gm.CreateRoom(context.Background(), "missing", "", "")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestJoinRoom(t *testing.T) {
	env := newTestEnv(t)
	gameID := env.createGame(t)

	game, err := env.gm.JoinRoom(context.Background(), gameID, "u2", "bob", "s2")
	require.NoError(t, err)
	require.Len(t, game.Players, 2)

	// Presence now routes direct messages to bob's session.
	sessionID, ok := env.gm.Presence().Get("u2")
	require.True(t, ok)
	assert.Equal(t, "s2", sessionID)

	joined := env.broadcast.last(EventGameJoined)
	require.NotNil(t, joined)
	assert.Equal(t, "u2", joined.target)

	updated := env.broadcast.last(EventGameUpdated)
	require.NotNil(t, updated)
	assert.Equal(t, 2, updated.payload.(GameUpdatedPayload).PlayerCount)
}

func TestJoinRoomIdempotent(t *testing.T) {
	env := newTestEnv(t)
	gameID := env.createGame(t)

	_, err := env.gm.JoinRoom(context.Background(), gameID, "u2", "bob", "s2")
	require.NoError(t, err)

	// A second join with the same identity re-acknowledges but never
	// duplicates the roster entry.
	game, err := env.gm.JoinRoom(context.Background(), gameID, "u2", "bob", "s2-reconnect")
	require.NoError(t, err)
	assert.Len(t, game.Players, 2)
	assert.Equal(t, 2, env.broadcast.count(EventGameJoined))
}

func TestJoinRoomNotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.gm.JoinRoom(context.Background(), primitive.NewObjectID().Hex(), "u2", "bob", "s2")
	assert.ErrorIs(t, err, ErrGameNotFound)
}

func TestJoinRoomFull(t *testing.T) {
	env := newTestEnv(t)
	gameID := env.createGame(t)

	stored, err := env.store.GetGame(context.Background(), gameID)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		stored.Players = append(stored.Players, models.Player{UserID: primitive.NewObjectID().Hex()})
	}
	require.NoError(t, env.store.SaveGame(context.Background(), stored))

	_, err = env.gm.JoinRoom(context.Background(), gameID, "u2", "bob", "s2")
	assert.ErrorIs(t, err, ErrGameFull)
}

func TestLeaveRoomReassignsHost(t *testing.T) {
	env := newTestEnv(t)
	gameID := env.createGame(t)
	_, err := env.gm.JoinRoom(context.Background(), gameID, "u2", "bob", "s2")
	require.NoError(t, err)

	require.NoError(t, env.gm.LeaveRoom(context.Background(), gameID, "u1"))

	game, err := env.store.GetGame(context.Background(), gameID)
	require.NoError(t, err)
	assert.Equal(t, "u2", game.HostPlayerID)
	require.Len(t, game.Players, 1)

	reassigned := env.broadcast.last(EventNewHostAssigned)
	require.NotNil(t, reassigned)
	assert.Equal(t, "u2", reassigned.payload.(NewHostAssignedPayload).NewHostID)
	assert.Equal(t, "bob", reassigned.payload.(NewHostAssignedPayload).NewHostUsername)
}

func TestLeaveRoomDeletesEmptyGame(t *testing.T) {
	env := newTestEnv(t)
	gameID := env.createGame(t)

	require.NoError(t, env.gm.LeaveRoom(context.Background(), gameID, "u1"))

	_, err := env.store.GetGame(context.Background(), gameID)
	assert.ErrorIs(t, err, ErrGameNotFound)

	removed := env.broadcast.last(EventGameRemoved)
	require.NotNil(t, removed)
	assert.Equal(t, "lobby", removed.scope)
}

func TestLeaveRoomMissingGameIsNoop(t *testing.T) {
	env := newTestEnv(t)

	err := env.gm.LeaveRoom(context.Background(), primitive.NewObjectID().Hex(), "u1")
	assert.NoError(t, err)
}

func TestListWaitingRooms(t *testing.T) {
	env := newTestEnv(t)
	gameID := env.createGame(t)

	// Active games drop out of the listing.
	other, err := env.gm.CreateRoom(context.Background(), "u2", "bob's room", "secret")
	require.NoError(t, err)
	_, err = env.gm.JoinRoom(context.Background(), other.ID.Hex(), "u3", "carol", "s3")
	require.NoError(t, err)
	require.NoError(t, env.gm.StartGame(context.Background(), other.ID.Hex(), "u2"))

	rooms, err := env.gm.ListWaitingRooms(context.Background())
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, gameID, rooms[0].GameID)
	assert.Equal(t, "alice", rooms[0].HostUsername)
	assert.Equal(t, 1, rooms[0].PlayerCount)
	assert.False(t, rooms[0].HasPassword)
}

func TestListWaitingRoomsPasswordFlag(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.gm.CreateRoom(context.Background(), "u1", "locked", "hunter2")
	require.NoError(t, err)

	rooms, err := env.gm.ListWaitingRooms(context.Background())
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.True(t, rooms[0].HasPassword)
}

func TestStartGame(t *testing.T) {
	env := newTestEnv(t)
	gameID := env.createGame(t)
	_, err := env.gm.JoinRoom(context.Background(), gameID, "u2", "bob", "s2")
	require.NoError(t, err)

	require.NoError(t, env.gm.StartGame(context.Background(), gameID, "u1"))

	game, err := env.store.GetGame(context.Background(), gameID)
	require.NoError(t, err)
	assert.Equal(t, models.GameStatusActive, game.Status)

	started := env.broadcast.last(EventGameStarted)
	require.NotNil(t, started)
	assert.Equal(t, "room", started.scope)

	removed := env.broadcast.last(EventGameRemoved)
	require.NotNil(t, removed)
	assert.Equal(t, "lobby", removed.scope)
}

func TestStartGameOnlyHost(t *testing.T) {
	env := newTestEnv(t)
	gameID := env.createGame(t)
	_, err := env.gm.JoinRoom(context.Background(), gameID, "u2", "bob", "s2")
	require.NoError(t, err)

	assert.ErrorIs(t, env.gm.StartGame(context.Background(), gameID, "u2"), ErrNotHost)
}

func TestStartGameNeedsTwoPlayers(t *testing.T) {
	env := newTestEnv(t)
	gameID := env.createGame(t)

	assert.ErrorIs(t, env.gm.StartGame(context.Background(), gameID, "u1"), ErrNotEnoughPlayers)
}
