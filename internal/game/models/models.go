package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Game represents one game session and all of its embedded state.
type Game struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"gameID"`
	Name           string             `bson:"name" json:"name"`
	Password       string             `bson:"password,omitempty" json:"-"`
	Status         GameStatus         `bson:"status" json:"status"`
	HostPlayerID   string             `bson:"hostPlayerId" json:"hostPlayerID"`
	WinnerPlayerID string             `bson:"winnerPlayerId,omitempty" json:"winnerPlayerID,omitempty"`
	TurnCounter    int                `bson:"turnCounter" json:"turnCounter"`
	StartTime      time.Time          `bson:"startTime" json:"startTime"`
	EndTime        *time.Time         `bson:"endTime,omitempty" json:"endTime,omitempty"`
	Players        []Player           `bson:"players" json:"players"`
	Properties     []PropertyState    `bson:"properties" json:"properties"`
	DiceRolls      []DiceRoll         `bson:"diceRolls" json:"diceRolls"`
	Transactions   []Transaction      `bson:"transactions" json:"transactions"`
}

// Player is a participant embedded in a Game document.
type Player struct {
	UserID      string     `bson:"userId" json:"userID"`
	Username    string     `bson:"username" json:"username"`
	Mover       string     `bson:"mover,omitempty" json:"mover,omitempty"`
	MoverLevel  int        `bson:"moverLevel" json:"moverLevel"` // 1-5
	Balance     int        `bson:"balance" json:"balance"`
	Location    int        `bson:"location" json:"location"`
	InJail      bool       `bson:"inJail" json:"inJail"`
	JailTurns   int        `bson:"jailTurns" json:"jailTurns"`
	HasJailCard bool       `bson:"hasJailCard" json:"hasJailCard"`
	TurnOrder   int        `bson:"turnOrder" json:"turnOrder"`
	IsBankrupt  bool       `bson:"isBankrupt" json:"isBankrupt"`
	IsReady     bool       `bson:"isReady" json:"isReady"`
	QuitGameAt  *time.Time `bson:"quitGameAt,omitempty" json:"quitGameAt,omitempty"`
}

// PropertyState is the per-game state of a board property. Price, rent and
// build costs live in the static Property catalog and are joined at read time.
type PropertyState struct {
	PropertyID    int    `bson:"propertyId" json:"propertyID"`
	OwnerID       string `bson:"ownerId,omitempty" json:"ownerID,omitempty"`
	IsMortgaged   bool   `bson:"isMortgaged" json:"isMortgaged"`
	Houses        int    `bson:"houses" json:"houses"` // 0-4
	HasHotel      bool   `bson:"hasHotel" json:"hasHotel"`
	TurnPurchased int    `bson:"turnPurchased,omitempty" json:"turnPurchased,omitempty"`
}

// DiceRoll is an append-only record of one roll.
type DiceRoll struct {
	PlayerID   string    `bson:"playerId" json:"playerID"`
	Dice1      int       `bson:"dice1" json:"dice1"`
	Dice2      int       `bson:"dice2" json:"dice2"`
	IsDoubles  bool      `bson:"isDoubles" json:"isDoubles"`
	TurnNumber int       `bson:"turnNumber" json:"turnNumber"`
	Timestamp  time.Time `bson:"timestamp" json:"timestamp"`
}

// Total returns the combined face value of the roll.
func (r DiceRoll) Total() int {
	return r.Dice1 + r.Dice2
}

// Transaction is an append-only ledger entry for a balance-mutating action.
type Transaction struct {
	ID          string          `bson:"transactionId" json:"transactionID"`
	Type        TransactionType `bson:"type" json:"type"`
	PlayerID    string          `bson:"playerId,omitempty" json:"playerID,omitempty"`
	RecipientID string          `bson:"recipientId,omitempty" json:"recipientID,omitempty"`
	PropertyID  int             `bson:"propertyId,omitempty" json:"propertyID,omitempty"`
	Amount      int             `bson:"amount" json:"amount"`
	Timestamp   time.Time       `bson:"timestamp" json:"timestamp"`
}

// Property is static catalog data for one board space.
type Property struct {
	ID             int    `bson:"id" json:"id"`
	Name           string `bson:"name" json:"name"`
	Color          string `bson:"color" json:"color"`
	Position       int    `bson:"position" json:"position"`
	PriceTag       int    `bson:"priceTag" json:"priceTag"`
	MortgageValue  int    `bson:"mortgageValue" json:"mortgageValue"`
	BaseRent       int    `bson:"baseRent" json:"baseRent"`
	RentWithHouses []int  `bson:"rentWithHouses" json:"rentWithHouses"`
	RentWithHotel  int    `bson:"rentWithHotel" json:"rentWithHotel"`
	HouseCost      int    `bson:"houseCost" json:"houseCost"`
	HotelCost      int    `bson:"hotelCost" json:"hotelCost"`
	ImageKey       string `bson:"imageKey,omitempty" json:"imageKey,omitempty"`
}

// Card is static catalog data for one chance/fortune card.
type Card struct {
	ID            int      `bson:"id" json:"id"`
	Type          CardType `bson:"type" json:"type"`
	FortuneTitle  string   `bson:"fortuneTitle,omitempty" json:"fortuneTitle,omitempty"`
	Description   string   `bson:"description" json:"description"`
	ActionType    string   `bson:"actionType" json:"actionType"`
	ActionValue   string   `bson:"actionValue,omitempty" json:"actionValue,omitempty"`
	ValueByLevels []int    `bson:"valueByLevels,omitempty" json:"valueByLevels,omitempty"`
}

// GameStatus represents the lifecycle status of a game.
type GameStatus string

const (
	GameStatusWaiting   GameStatus = "waiting"
	GameStatusActive    GameStatus = "active"
	GameStatusCompleted GameStatus = "completed"
	GameStatusAbandoned GameStatus = "abandoned"
)

// TransactionType represents the type of a ledger entry.
type TransactionType string

const (
	TransactionTypeRent         TransactionType = "rent"
	TransactionTypePurchase     TransactionType = "purchase"
	TransactionTypeSalary       TransactionType = "salary"
	TransactionTypeHouse        TransactionType = "house"
	TransactionTypeHotel        TransactionType = "hotel"
	TransactionTypeMortgage     TransactionType = "mortgage"
	TransactionTypeUnmortgage   TransactionType = "unmortgage"
	TransactionTypeCard         TransactionType = "card"
	TransactionTypeMoverUpgrade TransactionType = "moverUpgrade"
)

// CardType represents the deck a card belongs to.
type CardType string

const (
	CardTypeBlack   CardType = "black"
	CardTypeGolden  CardType = "golden"
	CardTypeOrange  CardType = "orange"
	CardTypeFortune CardType = "fortune"
)

// MinMoverLevel and MaxMoverLevel bound a player's mover level.
const (
	MinMoverLevel = 1
	MaxMoverLevel = 5
)

// FindPlayer returns a pointer to the player with the given user ID, or nil.
func (g *Game) FindPlayer(userID string) *Player {
	for i := range g.Players {
		if g.Players[i].UserID == userID {
			return &g.Players[i]
		}
	}
	return nil
}

// FindPlayerByUsername returns a pointer to the player with the given
// username, or nil.
func (g *Game) FindPlayerByUsername(username string) *Player {
	for i := range g.Players {
		if g.Players[i].Username == username {
			return &g.Players[i]
		}
	}
	return nil
}

// FindPropertyState returns a pointer to the state entry for propertyID, or nil.
func (g *Game) FindPropertyState(propertyID int) *PropertyState {
	for i := range g.Properties {
		if g.Properties[i].PropertyID == propertyID {
			return &g.Properties[i]
		}
	}
	return nil
}

// HasPlayer reports whether a player with the given user ID is in the game.
func (g *Game) HasPlayer(userID string) bool {
	return g.FindPlayer(userID) != nil
}

// ClampMoverLevel bounds a mover level to the valid range.
func ClampMoverLevel(level int) int {
	if level < MinMoverLevel {
		return MinMoverLevel
	}
	if level > MaxMoverLevel {
		return MaxMoverLevel
	}
	return level
}
