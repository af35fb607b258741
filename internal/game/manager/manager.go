package manager

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/boardwalk/backend/internal/config"
	"github.com/boardwalk/backend/internal/game/models"
	"github.com/boardwalk/backend/internal/game/presence"
)

// Failure taxonomy. Websocket clients map these to named error events sent
// back to the originating connection only.
var (
	ErrGameNotFound      = errors.New("game not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrPlayerNotFound    = errors.New("player not found in game")
	ErrGameFull          = errors.New("game is full")
	ErrNotHost           = errors.New("only the host can start the game")
	ErrNotEnoughPlayers  = errors.New("need at least 2 players")
	ErrGameNotWaiting    = errors.New("game is not in waiting status")
	ErrMoverTaken        = errors.New("mover already taken")
	ErrAlreadyOwned      = errors.New("property already owned")
	ErrInsufficientFunds = errors.New("insufficient balance")
	ErrInvalidChat       = errors.New("invalid chat data")
	ErrInvalidPosition   = errors.New("invalid board position")
	ErrInvalidJailState  = errors.New("invalid jail state")
	ErrPropertyNotFound  = errors.New("property not found")
	ErrAlreadyMortgaged  = errors.New("property already mortgaged")
)

// GameStore is the persistence boundary for game sessions.
type GameStore interface {
	InsertGame(ctx context.Context, game *models.Game) (string, error)
	GetGame(ctx context.Context, gameID string) (*models.Game, error)
	ListWaitingGames(ctx context.Context) ([]models.Game, error)
	SaveGame(ctx context.Context, game *models.Game) error
	DeleteGame(ctx context.Context, gameID string) error
}

// UserDirectory resolves user identities to display names.
type UserDirectory interface {
	GetUsername(ctx context.Context, userID string) (string, error)
}

// Catalog provides read-only access to the static property reference data.
type Catalog interface {
	GetProperty(ctx context.Context, propertyID int) (*models.Property, error)
}

// Broadcaster delivers events to connected clients. Broadcasts are
// fire-and-forget; delivery is not acknowledged or retried.
type Broadcaster interface {
	ToRoom(gameID, event string, payload interface{})
	ToLobby(event string, payload interface{})
	ToUser(userID, event string, payload interface{})
}

// GameManager owns the room lifecycle, readiness negotiation and turn action
// processing for all game sessions. Every operation is a read-modify-write of
// the whole session document under a per-session lock, followed by broadcasts
// to the session channel and, for lobby-visible changes, the lobby channel.
type GameManager struct {
	store       GameStore
	users       UserDirectory
	catalog     Catalog
	broadcaster Broadcaster
	presence    *presence.Registry
	cfg         *config.Config
	logger      *zap.SugaredLogger

	// locks serializes concurrent actions against the same session so that
	// interleaved read-modify-write cycles cannot drop updates.
	locks *sessionLocks

	// rollDie is swappable in tests for deterministic dice.
	rollDie func() int
}

// NewGameManager creates a new game manager instance
func NewGameManager(store GameStore, users UserDirectory, catalog Catalog, broadcaster Broadcaster, registry *presence.Registry, cfg *config.Config, logger *zap.SugaredLogger) *GameManager {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &GameManager{
		store:       store,
		users:       users,
		catalog:     catalog,
		broadcaster: broadcaster,
		presence:    registry,
		cfg:         cfg,
		logger:      logger,
		locks:       newSessionLocks(),
		rollDie:     func() int { return 1 + rng.Intn(6) },
	}
}

// Presence returns the presence registry used by this manager.
func (gm *GameManager) Presence() *presence.Registry {
	return gm.presence
}

// CreateRoom creates a new waiting game with the host as its only player,
// acknowledges the creator and announces the room on the lobby channel.
func (gm *GameManager) CreateRoom(ctx context.Context, hostID, roomName, roomPassword string) (*models.Game, error) {
	username, err := gm.users.GetUsername(ctx, hostID)
	if err != nil {
		return nil, ErrUserNotFound
	}

	if roomName == "" {
		roomName = fmt.Sprintf("%s's Game", username)
	}

	game := &models.Game{
		Name:         roomName,
		Password:     roomPassword,
		Status:       models.GameStatusWaiting,
		HostPlayerID: hostID,
		StartTime:    time.Now(),
		Players:      []models.Player{gm.newPlayer(hostID, username)},
		Properties:   []models.PropertyState{},
		DiceRolls:    []models.DiceRoll{},
		Transactions: []models.Transaction{},
	}

	gameID, err := gm.store.InsertGame(ctx, game)
	if err != nil {
		return nil, fmt.Errorf("failed to create game: %w", err)
	}

	gm.logger.Infof("Created game %s (%q) with host %s", gameID, game.Name, hostID)

	gm.broadcaster.ToUser(hostID, EventGameCreated, GameCreatedPayload{
		GameID:   gameID,
		GameName: game.Name,
		Players:  game.Players,
	})
	gm.broadcaster.ToLobby(EventNewGameAvailable, NewGameAvailablePayload{
		GameID:       gameID,
		GameName:     game.Name,
		HostUsername: username,
		PlayerCount:  1,
	})

	return game, nil
}

// JoinRoom adds a player to a waiting game. Joining twice with the same
// identity never duplicates the player entry, but still re-acknowledges and
// rebroadcasts so a reconnecting client resynchronizes.
func (gm *GameManager) JoinRoom(ctx context.Context, gameID, userID, username, sessionID string) (*models.Game, error) {
	unlock := gm.locks.lock(gameID)
	defer unlock()

	gm.presence.Set(ctx, userID, sessionID)

	game, err := gm.store.GetGame(ctx, gameID)
	if err != nil {
		return nil, ErrGameNotFound
	}

	if !game.HasPlayer(userID) {
		if len(game.Players) >= gm.cfg.Game.MaxPlayers {
			return nil, ErrGameFull
		}
		game.Players = append(game.Players, gm.newPlayer(userID, username))
		if err := gm.store.SaveGame(ctx, game); err != nil {
			return nil, fmt.Errorf("failed to save game: %w", err)
		}
	}

	gm.logger.Infof("Player %s joined game %s", userID, gameID)

	gm.broadcaster.ToRoom(gameID, EventPlayersUpdated, PlayersUpdatedPayload{
		GameID:  gameID,
		Players: game.Players,
	})
	gm.broadcaster.ToUser(userID, EventGameJoined, GameJoinedPayload{
		GameID:       gameID,
		GameName:     game.Name,
		HostPlayerID: game.HostPlayerID,
		Players:      game.Players,
	})
	gm.broadcaster.ToLobby(EventGameUpdated, GameUpdatedPayload{
		GameID:      gameID,
		PlayerCount: len(game.Players),
	})

	return game, nil
}

// LeaveRoom removes a player from a game. If the host leaves, the first
// remaining player becomes host; if nobody remains, the game is deleted and
// its removal announced on the lobby channel. A missing game is a no-op.
func (gm *GameManager) LeaveRoom(ctx context.Context, gameID, userID string) error {
	unlock := gm.locks.lock(gameID)
	defer unlock()

	gm.presence.Remove(ctx, userID)

	game, err := gm.store.GetGame(ctx, gameID)
	if err != nil {
		return nil
	}

	remaining := game.Players[:0:0]
	for _, p := range game.Players {
		if p.UserID != userID {
			remaining = append(remaining, p)
		}
	}
	game.Players = remaining

	if game.HostPlayerID == userID {
		if len(game.Players) == 0 {
			if err := gm.store.DeleteGame(ctx, gameID); err != nil {
				return fmt.Errorf("failed to delete empty game: %w", err)
			}
			gm.logger.Infof("Deleted empty game %s after host %s left", gameID, userID)
			gm.broadcaster.ToLobby(EventGameRemoved, GameRemovedPayload{GameID: gameID})
			return nil
		}
		game.HostPlayerID = game.Players[0].UserID
		gm.logger.Infof("Host %s left game %s, reassigning host to %s", userID, gameID, game.HostPlayerID)
		gm.broadcaster.ToRoom(gameID, EventNewHostAssigned, NewHostAssignedPayload{
			GameID:          gameID,
			NewHostID:       game.HostPlayerID,
			NewHostUsername: game.Players[0].Username,
		})
	}

	if err := gm.store.SaveGame(ctx, game); err != nil {
		return fmt.Errorf("failed to save game: %w", err)
	}

	gm.broadcaster.ToRoom(gameID, EventPlayerLeft, PlayerLeftPayload{
		UserID:  userID,
		GameID:  gameID,
		Players: game.Players,
	})
	gm.broadcaster.ToLobby(EventGameUpdated, GameUpdatedPayload{
		GameID:      gameID,
		PlayerCount: len(game.Players),
	})

	return nil
}

// ListWaitingRooms summarizes all games in waiting status. The host name is
// resolved as the player whose identity matches the session's host identity.
func (gm *GameManager) ListWaitingRooms(ctx context.Context) ([]RoomSummary, error) {
	games, err := gm.store.ListWaitingGames(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list waiting games: %w", err)
	}

	rooms := make([]RoomSummary, 0, len(games))
	for i := range games {
		game := &games[i]
		hostUsername := "Unknown host"
		if host := game.FindPlayer(game.HostPlayerID); host != nil {
			hostUsername = host.Username
		}
		rooms = append(rooms, RoomSummary{
			GameID:       game.ID.Hex(),
			GameName:     game.Name,
			HostUsername: hostUsername,
			PlayerCount:  len(game.Players),
			HasPassword:  game.Password != "",
		})
	}

	return rooms, nil
}

// StartGame flips a waiting game to active. Only the host may start, and at
// least two players must be present. The room disappears from the lobby's
// waiting list.
func (gm *GameManager) StartGame(ctx context.Context, gameID, callerID string) error {
	unlock := gm.locks.lock(gameID)
	defer unlock()

	game, err := gm.store.GetGame(ctx, gameID)
	if err != nil {
		return ErrGameNotFound
	}
	if game.HostPlayerID != callerID {
		gm.logger.Warnf("Player %s attempted to start game %s but host is %s", callerID, gameID, game.HostPlayerID)
		return ErrNotHost
	}
	if len(game.Players) < gm.cfg.Game.MinimumPlayersToStart {
		return ErrNotEnoughPlayers
	}

	game.Status = models.GameStatusActive
	if err := gm.store.SaveGame(ctx, game); err != nil {
		return fmt.Errorf("failed to save game: %w", err)
	}

	gm.logger.Infof("Game %s started with %d players", gameID, len(game.Players))

	gm.broadcaster.ToRoom(gameID, EventGameStarted, GameStartedPayload{
		GameID:  gameID,
		UserID:  callerID,
		Players: game.Players,
	})
	gm.broadcaster.ToLobby(EventGameRemoved, GameRemovedPayload{GameID: gameID})

	return nil
}

// newPlayer builds a player record with default stats.
func (gm *GameManager) newPlayer(userID, username string) models.Player {
	return models.Player{
		UserID:     userID,
		Username:   username,
		MoverLevel: models.MinMoverLevel,
		Balance:    gm.cfg.Game.InitialBalance,
	}
}

// sessionLocks hands out one mutex per session ID so that concurrent actions
// on the same session apply in a well-defined order.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sync.Mutex)}
}

// lock acquires the mutex for a session and returns its unlock function.
func (s *sessionLocks) lock(gameID string) func() {
	s.mu.Lock()
	l, ok := s.locks[gameID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[gameID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}
