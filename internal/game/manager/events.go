package manager

import (
	"encoding/json"
	"time"

	"github.com/boardwalk/backend/internal/game/models"
)

// Event names sent by the server. Client-originated event names live in the
// websocket package; these are the broadcast vocabulary of the manager.
const (
	EventGameCreated            = "gameCreated"
	EventNewGameAvailable       = "newGameAvailable"
	EventPlayersUpdated         = "playersUpdated"
	EventGameJoined             = "gameJoined"
	EventGameUpdated            = "gameUpdated"
	EventPlayerStatusUpdated    = "playerStatusUpdated"
	EventAllPlayersReady        = "allPlayersReady"
	EventPlayerLeft             = "playerLeft"
	EventNewHostAssigned        = "newHostAssigned"
	EventGameRemoved            = "gameRemoved"
	EventAvailableGames         = "availableGames"
	EventGameStarted            = "gameStarted"
	EventDiceRolled             = "diceRolled"
	EventTurnOrderFinalized     = "turnOrderFinalized"
	EventPropertyPurchaseUpdate = "propertyPurchaseUpdate"
	EventSetCard                = "setCard"
	EventDeleteFortune          = "deleteFortune"
	EventChatMsg                = "chatMsg"
	EventTurnChanged            = "turnChanged"
	EventUpdatedLoc             = "updatedLoc"
	EventMortgaged              = "mortgaged"
	EventGameEnd                = "gameEnd"
)

// GameCreatedPayload acknowledges room creation to the creator.
type GameCreatedPayload struct {
	GameID   string          `json:"gameID"`
	GameName string          `json:"gameName"`
	Players  []models.Player `json:"players"`
}

// NewGameAvailablePayload announces a new waiting room on the lobby channel.
type NewGameAvailablePayload struct {
	GameID       string `json:"gameID"`
	GameName     string `json:"gameName"`
	HostUsername string `json:"hostUsername"`
	PlayerCount  int    `json:"playerCount"`
}

// PlayersUpdatedPayload carries the full roster after a membership change.
type PlayersUpdatedPayload struct {
	GameID  string          `json:"gameID"`
	Players []models.Player `json:"players"`
}

// GameJoinedPayload acknowledges a join to the joining player.
type GameJoinedPayload struct {
	GameID       string          `json:"gameID"`
	GameName     string          `json:"gameName"`
	HostPlayerID string          `json:"hostPlayerID"`
	Players      []models.Player `json:"players"`
}

// GameUpdatedPayload refreshes a room's player count on the lobby channel.
type GameUpdatedPayload struct {
	GameID      string `json:"gameID"`
	PlayerCount int    `json:"playerCount"`
}

// PlayerStatusUpdatedPayload carries one player's readiness change plus the
// full roster.
type PlayerStatusUpdatedPayload struct {
	UserID  string          `json:"userID"`
	IsReady bool            `json:"isReady"`
	Mover   string          `json:"mover"`
	Players []models.Player `json:"players"`
}

// AllPlayersReadyPayload signals that every player in the room is ready.
type AllPlayersReadyPayload struct {
	GameID string `json:"gameID"`
}

// PlayerLeftPayload carries the roster after a player leaves.
type PlayerLeftPayload struct {
	UserID  string          `json:"userID"`
	GameID  string          `json:"gameID"`
	Players []models.Player `json:"players"`
}

// NewHostAssignedPayload announces host reassignment after the host left.
type NewHostAssignedPayload struct {
	GameID          string `json:"gameID"`
	NewHostID       string `json:"newHostID"`
	NewHostUsername string `json:"newHostUsername"`
}

// GameRemovedPayload announces room removal on the lobby channel.
type GameRemovedPayload struct {
	GameID string `json:"gameID"`
}

// RoomSummary is one entry in the waiting-room listing.
type RoomSummary struct {
	GameID       string `json:"gameID"`
	GameName     string `json:"gameName"`
	HostUsername string `json:"hostUsername"`
	PlayerCount  int    `json:"playerCount"`
	HasPassword  bool   `json:"hasPassword"`
}

// AvailableGamesPayload lists all waiting rooms.
type AvailableGamesPayload struct {
	Games []RoomSummary `json:"games"`
}

// GameStartedPayload announces the transition to active play.
type GameStartedPayload struct {
	GameID  string          `json:"gameID"`
	UserID  string          `json:"userID"`
	Players []models.Player `json:"players"`
}

// DiceRolledPayload echoes a roll to the room. The roller travels under the
// "me" key, which is what clients expect on this event.
type DiceRolledPayload struct {
	Player    models.Player `json:"me"`
	Dice      [2]int        `json:"dice"`
	IsDoubles bool          `json:"isDoubles"`
	Phase     string        `json:"phase"`
}

// TurnOrderEntry pairs a player with its assigned turn order rank.
type TurnOrderEntry struct {
	PlayerID  string `json:"playerID"`
	TurnOrder int    `json:"turnOrder"`
}

// TurnOrderFinalizedPayload announces the finalized play sequence.
type TurnOrderFinalizedPayload struct {
	Order []TurnOrderEntry `json:"order"`
}

// PropertyPurchaseUpdatePayload announces a successful purchase.
type PropertyPurchaseUpdatePayload struct {
	UserID     string          `json:"userID"`
	PropertyID int             `json:"propertyID"`
	NewBalance int             `json:"newBalance"`
	Players    []models.Player `json:"players"`
}

// SetCardPayload rebroadcasts a shared deck after its top card is drawn.
// Deck composition lives on the clients; the server never inspects the cards.
type SetCardPayload struct {
	Cards []json.RawMessage `json:"cards"`
	Type  string            `json:"type"`
}

// DeleteFortunePayload rebroadcasts the fortune pool after a removal.
type DeleteFortunePayload struct {
	Property json.RawMessage `json:"property"`
	Fortunes json.RawMessage `json:"fortunes"`
}

// ChatMsgPayload carries a chat message, room-wide or whispered.
type ChatMsgPayload struct {
	GameID    string    `json:"gameID"`
	Sender    string    `json:"sender"`
	Receiver  string    `json:"receiver"`
	Msg       string    `json:"msg"`
	Timestamp time.Time `json:"timestamp"`
}

// UpdatedLocPayload carries the roster after any balance or position change,
// plus a human-readable description of what happened.
type UpdatedLocPayload struct {
	UpdatedPlayers []models.Player `json:"updatedPlayers"`
	Type           string          `json:"type,omitempty"`
	Player         models.Player   `json:"player"`
}

// MortgagedPayload announces a mortgage payout.
type MortgagedPayload struct {
	PropertyID int             `json:"propertyID"`
	Players    []models.Player `json:"players"`
}

// GameEndPayload announces end of game to the room.
type GameEndPayload struct {
	GameID         string `json:"gameID"`
	WinnerPlayerID string `json:"winnerPlayerID,omitempty"`
}
