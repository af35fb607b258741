package manager

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/boardwalk/backend/internal/game/models"
)

// Jail update states accepted by UpdateJail.
const (
	JailStateFree   = "free"   // escaped by rolling doubles
	JailStateFree1  = "free1"  // ran out of turns, paid the bail
	JailStateUpdate = "update" // failed the escape roll, stays another turn
	JailStateBribe  = "bribe"  // paid the bribe fee and moved out
)

// Card action types and values accepted by ApplyCard.
const (
	CardActionCollect      = "collect"
	CardActionMoveTo       = "moveTo"
	CardActionGetOutOfJail = "getoutofjail"
	CardActionPay          = "pay"
	CardActionRoll         = "roll"
	CardActionDowngrade    = "downgrade"

	CardValueUpgrade = "upgrade"
	CardValueTakeAll = "takeAll"
	CardValueTakeOne = "takeOne"
	CardValueGiveAll = "giveAll"
	CardValueGiveOne = "giveOne"
	CardValueNon     = "non"
	CardValueFive    = "five"
)

// CardPlay describes a drawn card being applied to the session. The drawing
// client resolves which card was drawn and any dice involved; the server
// applies the balance and level arithmetic to the authoritative state.
type CardPlay struct {
	ActionType    string          `json:"actionType"`
	ActionValue   string          `json:"actionValue"`
	Type          models.CardType `json:"type"`
	ValueByLevels []int           `json:"valueByLevels,omitempty"`
}

// PurchaseProperty debits the buyer and records ownership. Fails when the
// property already has an owner or the buyer cannot afford the price. The
// buyer's pawn is placed on the property's board position.
func (gm *GameManager) PurchaseProperty(ctx context.Context, gameID, userID string, propertyID int) error {
	unlock := gm.locks.lock(gameID)
	defer unlock()

	game, err := gm.store.GetGame(ctx, gameID)
	if err != nil {
		return ErrGameNotFound
	}
	player := game.FindPlayer(userID)
	if player == nil {
		return ErrPlayerNotFound
	}

	property, err := gm.catalog.GetProperty(ctx, propertyID)
	if err != nil {
		return ErrPropertyNotFound
	}

	state := game.FindPropertyState(propertyID)
	if state == nil {
		game.Properties = append(game.Properties, models.PropertyState{PropertyID: propertyID})
		state = &game.Properties[len(game.Properties)-1]
	}

	if state.OwnerID != "" {
		return ErrAlreadyOwned
	}
	if player.Balance < property.PriceTag {
		return ErrInsufficientFunds
	}

	player.Balance -= property.PriceTag
	player.Location = property.Position
	state.OwnerID = userID
	state.TurnPurchased = game.TurnCounter
	appendTransaction(game, models.Transaction{
		Type:       models.TransactionTypePurchase,
		PlayerID:   userID,
		PropertyID: propertyID,
		Amount:     property.PriceTag,
	})

	if err := gm.store.SaveGame(ctx, game); err != nil {
		return fmt.Errorf("failed to save game: %w", err)
	}

	gm.logger.Infof("Player %s bought property %d in game %s for %d", userID, propertyID, gameID, property.PriceTag)

	gm.broadcaster.ToRoom(gameID, EventPropertyPurchaseUpdate, PropertyPurchaseUpdatePayload{
		UserID:     userID,
		PropertyID: propertyID,
		NewBalance: player.Balance,
		Players:    game.Players,
	})

	return nil
}

// TransferMoney moves rent from the payer to the property owner and records
// the payment in the ledger.
func (gm *GameManager) TransferMoney(ctx context.Context, gameID, payerID, ownerID string, amount int) error {
	unlock := gm.locks.lock(gameID)
	defer unlock()

	game, err := gm.store.GetGame(ctx, gameID)
	if err != nil {
		return ErrGameNotFound
	}
	payer := game.FindPlayer(payerID)
	owner := game.FindPlayer(ownerID)
	if payer == nil || owner == nil {
		return ErrPlayerNotFound
	}

	payer.Balance -= amount
	owner.Balance += amount
	appendTransaction(game, models.Transaction{
		Type:        models.TransactionTypeRent,
		PlayerID:    payerID,
		RecipientID: ownerID,
		Amount:      amount,
	})

	if err := gm.store.SaveGame(ctx, game); err != nil {
		return fmt.Errorf("failed to save game: %w", err)
	}

	gm.broadcaster.ToRoom(gameID, EventUpdatedLoc, UpdatedLocPayload{
		UpdatedPlayers: game.Players,
		Type:           fmt.Sprintf("has paid $%d in rent to %s", amount, owner.Username),
		Player:         *payer,
	})

	return nil
}

// MovePlayer places a player's pawn on a new board position. Only the
// position moves; balances and other stats change through the dedicated
// actions. A move whose distance matches a dice roll is described as such.
func (gm *GameManager) MovePlayer(ctx context.Context, gameID, userID string, newPos int) error {
	if newPos < 0 || newPos >= gm.cfg.Game.BoardSize {
		return ErrInvalidPosition
	}

	unlock := gm.locks.lock(gameID)
	defer unlock()

	game, err := gm.store.GetGame(ctx, gameID)
	if err != nil {
		return ErrGameNotFound
	}
	player := game.FindPlayer(userID)
	if player == nil {
		return ErrPlayerNotFound
	}

	moveType := ""
	if delta := newPos - player.Location; delta >= 2 && delta <= 12 {
		moveType = fmt.Sprintf("rolled %d", delta)
	}
	player.Location = newPos

	if err := gm.store.SaveGame(ctx, game); err != nil {
		return fmt.Errorf("failed to save game: %w", err)
	}

	gm.broadcaster.ToRoom(gameID, EventUpdatedLoc, UpdatedLocPayload{
		UpdatedPlayers: game.Players,
		Type:           moveType,
		Player:         *player,
	})

	return nil
}

// UpdateJail transitions a player's jail state. Freeing clears the jail
// counters, an unsuccessful escape increments the turns served, and a bribe
// additionally charges the bribe fee and moves the pawn to the post-jail
// position.
func (gm *GameManager) UpdateJail(ctx context.Context, gameID, userID, state string) error {
	unlock := gm.locks.lock(gameID)
	defer unlock()

	game, err := gm.store.GetGame(ctx, gameID)
	if err != nil {
		return ErrGameNotFound
	}
	player := game.FindPlayer(userID)
	if player == nil {
		return ErrPlayerNotFound
	}

	var moveType string
	switch state {
	default:
		return ErrInvalidJailState
	case JailStateFree, JailStateFree1:
		moveType = "escaped jail"
		if state == JailStateFree1 {
			moveType = "couldn't escape in time and paid the bail"
		}
		player.InJail = false
		player.JailTurns = 0
	case JailStateUpdate:
		moveType = "couldn't escape jail"
		player.JailTurns++
	case JailStateBribe:
		moveType = "bribed the guard and escaped"
		player.InJail = false
		player.JailTurns = 0
		player.Balance -= gm.cfg.Game.JailBribeFee
		player.Location = gm.cfg.Game.JailBribePosition
	}

	if err := gm.store.SaveGame(ctx, game); err != nil {
		return fmt.Errorf("failed to save game: %w", err)
	}

	gm.broadcaster.ToRoom(gameID, EventUpdatedLoc, UpdatedLocPayload{
		UpdatedPlayers: game.Players,
		Type:           moveType,
		Player:         *player,
	})

	return nil
}

// ApplyCard applies a drawn card's effect to the acting player and, for the
// collective actions, to every other player. val carries the card's resolved
// amount; otherPlayerID names the counterparty for the one-on-one actions.
func (gm *GameManager) ApplyCard(ctx context.Context, gameID, userID string, val int, card CardPlay, otherPlayerID string) error {
	unlock := gm.locks.lock(gameID)
	defer unlock()

	game, err := gm.store.GetGame(ctx, gameID)
	if err != nil {
		return ErrGameNotFound
	}
	player := game.FindPlayer(userID)
	if player == nil {
		return ErrPlayerNotFound
	}

	moveType := ""
	switch card.ActionType {
	case CardActionCollect:
		gm.applyCollect(game, player, val, card, otherPlayerID)
	case CardActionMoveTo:
		if card.ActionValue == CardValueFive {
			player.Balance -= val
			appendTransaction(game, models.Transaction{
				Type:     models.TransactionTypeCard,
				PlayerID: userID,
				Amount:   -val,
			})
		}
	case CardActionGetOutOfJail:
		player.HasJailCard = true
	case CardActionPay:
		gm.applyPay(game, player, val, card, otherPlayerID)
	case CardActionRoll:
		player.Balance += val
		moveType = "rolled and won"
		appendTransaction(game, models.Transaction{
			Type:     models.TransactionTypeCard,
			PlayerID: userID,
			Amount:   val,
		})
	case CardActionDowngrade:
		player.MoverLevel = models.ClampMoverLevel(player.MoverLevel - 2)
		appendTransaction(game, models.Transaction{
			Type:     models.TransactionTypeMoverUpgrade,
			PlayerID: userID,
			Amount:   -2,
		})
	}

	if err := gm.store.SaveGame(ctx, game); err != nil {
		return fmt.Errorf("failed to save game: %w", err)
	}

	gm.broadcaster.ToRoom(gameID, EventUpdatedLoc, UpdatedLocPayload{
		UpdatedPlayers: game.Players,
		Type:           moveType,
		Player:         *player,
	})

	return nil
}

// applyCollect handles the collect family of card actions.
func (gm *GameManager) applyCollect(game *models.Game, player *models.Player, val int, card CardPlay, otherPlayerID string) {
	switch card.ActionValue {
	case CardValueUpgrade:
		// A maxed-out mover converts the upgrade into cash instead.
		if player.MoverLevel == models.MaxMoverLevel {
			val += 50000
		} else {
			player.MoverLevel = models.ClampMoverLevel(player.MoverLevel + 2)
			appendTransaction(game, models.Transaction{
				Type:     models.TransactionTypeMoverUpgrade,
				PlayerID: player.UserID,
				Amount:   2,
			})
		}
		player.Balance += val
		appendTransaction(game, models.Transaction{
			Type:     models.TransactionTypeCard,
			PlayerID: player.UserID,
			Amount:   val,
		})
	case CardValueTakeAll:
		if card.Type != models.CardTypeFortune {
			// Each opponent pays a tiered amount by its mover level.
			collected := 0
			for i := range game.Players {
				p := &game.Players[i]
				if p.UserID == player.UserID {
					continue
				}
				amt := tieredAmount(card.ValueByLevels, p.MoverLevel)
				p.Balance -= amt
				collected += amt
			}
			player.Balance += collected
			appendTransaction(game, models.Transaction{
				Type:     models.TransactionTypeCard,
				PlayerID: player.UserID,
				Amount:   collected,
			})
		} else {
			for i := range game.Players {
				p := &game.Players[i]
				if p.UserID == player.UserID {
					p.Balance += val * (len(game.Players) - 1)
				} else {
					p.Balance -= val
				}
			}
			appendTransaction(game, models.Transaction{
				Type:     models.TransactionTypeCard,
				PlayerID: player.UserID,
				Amount:   val * (len(game.Players) - 1),
			})
		}
	case CardValueNon:
		player.Balance += val
		appendTransaction(game, models.Transaction{
			Type:     models.TransactionTypeCard,
			PlayerID: player.UserID,
			Amount:   val,
		})
	case CardValueTakeOne:
		if other := game.FindPlayer(otherPlayerID); other != nil {
			player.Balance += val
			other.Balance -= val
			appendTransaction(game, models.Transaction{
				Type:        models.TransactionTypeCard,
				PlayerID:    otherPlayerID,
				RecipientID: player.UserID,
				Amount:      val,
			})
		}
	}
}

// applyPay handles the pay family of card actions.
func (gm *GameManager) applyPay(game *models.Game, player *models.Player, val int, card CardPlay, otherPlayerID string) {
	switch card.ActionValue {
	case CardValueGiveAll:
		for i := range game.Players {
			p := &game.Players[i]
			if p.UserID == player.UserID {
				p.Balance -= val * (len(game.Players) - 1)
			} else {
				p.Balance += val
			}
		}
		appendTransaction(game, models.Transaction{
			Type:     models.TransactionTypeCard,
			PlayerID: player.UserID,
			Amount:   -val * (len(game.Players) - 1),
		})
	case CardValueGiveOne:
		if other := game.FindPlayer(otherPlayerID); other != nil {
			player.Balance -= val
			other.Balance += val
			appendTransaction(game, models.Transaction{
				Type:        models.TransactionTypeCard,
				PlayerID:    player.UserID,
				RecipientID: otherPlayerID,
				Amount:      val,
			})
		}
	case CardValueNon:
		player.Balance -= val
		appendTransaction(game, models.Transaction{
			Type:     models.TransactionTypeCard,
			PlayerID: player.UserID,
			Amount:   -val,
		})
	}
}

// tieredAmount picks the levy for a mover level from a card's level table.
// Level 1 pays the first tier, level 3 the second, everything else the third.
func tieredAmount(valueByLevels []int, moverLevel int) int {
	if len(valueByLevels) < 3 {
		return 0
	}
	switch moverLevel {
	case 1:
		return valueByLevels[0]
	case 3:
		return valueByLevels[1]
	default:
		return valueByLevels[2]
	}
}

// MortgageProperty pays the property's owner its mortgage value plus the
// accompanying price and marks the property mortgaged.
func (gm *GameManager) MortgageProperty(ctx context.Context, gameID string, propertyID, price int) error {
	unlock := gm.locks.lock(gameID)
	defer unlock()

	game, err := gm.store.GetGame(ctx, gameID)
	if err != nil {
		return ErrGameNotFound
	}

	state := game.FindPropertyState(propertyID)
	if state == nil || state.OwnerID == "" {
		return ErrPropertyNotFound
	}
	if state.IsMortgaged {
		return ErrAlreadyMortgaged
	}
	owner := game.FindPlayer(state.OwnerID)
	if owner == nil {
		return ErrPlayerNotFound
	}

	property, err := gm.catalog.GetProperty(ctx, propertyID)
	if err != nil {
		return ErrPropertyNotFound
	}

	owner.Balance += property.MortgageValue + price
	state.IsMortgaged = true
	appendTransaction(game, models.Transaction{
		Type:       models.TransactionTypeMortgage,
		PlayerID:   owner.UserID,
		PropertyID: propertyID,
		Amount:     property.MortgageValue + price,
	})

	if err := gm.store.SaveGame(ctx, game); err != nil {
		return fmt.Errorf("failed to save game: %w", err)
	}

	gm.broadcaster.ToRoom(gameID, EventMortgaged, MortgagedPayload{
		PropertyID: propertyID,
		Players:    game.Players,
	})

	return nil
}

// SendChat delivers a chat message, either room-wide when the receiver is
// "all" or as a whisper to a single player looked up by username. A whisper
// to an unknown username is dropped silently.
func (gm *GameManager) SendChat(ctx context.Context, gameID, sender, receiver, msg string) error {
	if gameID == "" || sender == "" || msg == "" {
		return ErrInvalidChat
	}

	payload := ChatMsgPayload{
		GameID:    gameID,
		Sender:    sender,
		Receiver:  receiver,
		Msg:       msg,
		Timestamp: time.Now(),
	}

	if receiver == "all" {
		gm.broadcaster.ToRoom(gameID, EventChatMsg, payload)
		return nil
	}

	game, err := gm.store.GetGame(ctx, gameID)
	if err != nil {
		return ErrGameNotFound
	}
	if target := game.FindPlayerByUsername(receiver); target != nil {
		gm.broadcaster.ToUser(target.UserID, EventChatMsg, payload)
	}

	return nil
}

// HandOffTurn announces the next player without touching stored state. The
// clients drive whose turn it is; the server relays the change to the room.
func (gm *GameManager) HandOffTurn(gameID, nextPlayerID string) {
	gm.broadcaster.ToRoom(gameID, EventTurnChanged, nextPlayerID)
}

// DrawCard pops the top card off a client-held deck and rebroadcasts the
// remainder so every client shares the same deck state. Like turn hand-off,
// this is a pure relay; nothing is persisted.
func (gm *GameManager) DrawCard(gameID string, cards []json.RawMessage, deckType string) {
	if len(cards) > 0 {
		cards = cards[1:]
	}
	gm.broadcaster.ToRoom(gameID, EventSetCard, SetCardPayload{Cards: cards, Type: deckType})
}

// RemoveFortune relays a fortune removal to the room.
func (gm *GameManager) RemoveFortune(gameID string, property, fortunes json.RawMessage) {
	gm.broadcaster.ToRoom(gameID, EventDeleteFortune, DeleteFortunePayload{
		Property: property,
		Fortunes: fortunes,
	})
}

// EndGame marks the session completed, records the winner and end time, and
// announces the end to the room.
func (gm *GameManager) EndGame(ctx context.Context, gameID, winnerPlayerID string) error {
	unlock := gm.locks.lock(gameID)
	defer unlock()

	game, err := gm.store.GetGame(ctx, gameID)
	if err != nil {
		return ErrGameNotFound
	}

	now := time.Now()
	game.Status = models.GameStatusCompleted
	game.WinnerPlayerID = winnerPlayerID
	game.EndTime = &now

	if err := gm.store.SaveGame(ctx, game); err != nil {
		return fmt.Errorf("failed to save game: %w", err)
	}

	gm.logger.Infof("Game %s ended, winner %q", gameID, winnerPlayerID)

	gm.broadcaster.ToRoom(gameID, EventGameEnd, GameEndPayload{
		GameID:         gameID,
		WinnerPlayerID: winnerPlayerID,
	})

	return nil
}

// appendTransaction stamps and appends a ledger entry.
func appendTransaction(game *models.Game, tx models.Transaction) {
	tx.ID = uuid.New().String()
	tx.Timestamp = time.Now()
	game.Transactions = append(game.Transactions, tx)
}
