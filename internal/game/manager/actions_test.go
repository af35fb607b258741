package manager

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boardwalk/backend/internal/game/models"
)

// activeGame creates a two-player game (u1 alice hosting, u2 bob) and
// returns its ID.
func activeGame(t *testing.T, env *testEnv) string {
	t.Helper()
	gameID := env.createGame(t)
	_, err := env.gm.JoinRoom(context.Background(), gameID, "u2", "bob", "s2")
	require.NoError(t, err)
	require.NoError(t, env.gm.StartGame(context.Background(), gameID, "u1"))
	return gameID
}

func setBalance(t *testing.T, env *testEnv, gameID, userID string, balance int) {
	t.Helper()
	game, err := env.store.GetGame(context.Background(), gameID)
	require.NoError(t, err)
	game.FindPlayer(userID).Balance = balance
	require.NoError(t, env.store.SaveGame(context.Background(), game))
}

func TestPurchaseProperty(t *testing.T) {
	env := newTestEnv(t)
	gameID := activeGame(t, env)

	require.NoError(t, env.gm.PurchaseProperty(context.Background(), gameID, "u1", 1))

	game, err := env.store.GetGame(context.Background(), gameID)
	require.NoError(t, err)
	buyer := game.FindPlayer("u1")
	assert.Equal(t, 72000, buyer.Balance)
	assert.Equal(t, 31, buyer.Location)

	state := game.FindPropertyState(1)
	require.NotNil(t, state)
	assert.Equal(t, "u1", state.OwnerID)

	require.Len(t, game.Transactions, 1)
	tx := game.Transactions[0]
	assert.Equal(t, models.TransactionTypePurchase, tx.Type)
	assert.Equal(t, 300000, tx.Amount)
	assert.Equal(t, "u1", tx.PlayerID)

	update := env.broadcast.last(EventPropertyPurchaseUpdate)
	require.NotNil(t, update)
	payload := update.payload.(PropertyPurchaseUpdatePayload)
	assert.Equal(t, 72000, payload.NewBalance)
	assert.Equal(t, 1, payload.PropertyID)
}

func TestPurchasePropertyAlreadyOwned(t *testing.T) {
	env := newTestEnv(t)
	gameID := activeGame(t, env)

	require.NoError(t, env.gm.PurchaseProperty(context.Background(), gameID, "u1", 1))
	err := env.gm.PurchaseProperty(context.Background(), gameID, "u2", 1)
	assert.ErrorIs(t, err, ErrAlreadyOwned)
}

func TestPurchasePropertyInsufficientFunds(t *testing.T) {
	env := newTestEnv(t)
	gameID := activeGame(t, env)
	setBalance(t, env, gameID, "u1", 200000)

	err := env.gm.PurchaseProperty(context.Background(), gameID, "u1", 1)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	// Nothing changed on failure.
	game, err := env.store.GetGame(context.Background(), gameID)
	require.NoError(t, err)
	assert.Equal(t, 200000, game.FindPlayer("u1").Balance)
	assert.Empty(t, game.Transactions)
}

func TestTransferMoney(t *testing.T) {
	env := newTestEnv(t)
	gameID := activeGame(t, env)

	require.NoError(t, env.gm.TransferMoney(context.Background(), gameID, "u1", "u2", 25000))

	game, err := env.store.GetGame(context.Background(), gameID)
	require.NoError(t, err)
	payer := game.FindPlayer("u1")
	owner := game.FindPlayer("u2")
	assert.Equal(t, 372000-25000, payer.Balance)
	assert.Equal(t, 372000+25000, owner.Balance)

	// The transfer is net zero across the table.
	assert.Equal(t, 2*372000, payer.Balance+owner.Balance)

	require.Len(t, game.Transactions, 1)
	assert.Equal(t, models.TransactionTypeRent, game.Transactions[0].Type)

	updated := env.broadcast.last(EventUpdatedLoc)
	require.NotNil(t, updated)
	assert.Equal(t, "has paid $25000 in rent to bob", updated.payload.(UpdatedLocPayload).Type)
}

func TestTransferMoneyUnknownPlayer(t *testing.T) {
	env := newTestEnv(t)
	gameID := activeGame(t, env)

	err := env.gm.TransferMoney(context.Background(), gameID, "u1", "u3", 100)
	assert.ErrorIs(t, err, ErrPlayerNotFound)
}

func TestMovePlayer(t *testing.T) {
	env := newTestEnv(t)
	gameID := activeGame(t, env)

	require.NoError(t, env.gm.MovePlayer(context.Background(), gameID, "u1", 7))

	game, err := env.store.GetGame(context.Background(), gameID)
	require.NoError(t, err)
	assert.Equal(t, 7, game.FindPlayer("u1").Location)

	updated := env.broadcast.last(EventUpdatedLoc)
	require.NotNil(t, updated)
	assert.Equal(t, "rolled 7", updated.payload.(UpdatedLocPayload).Type)
}

func TestMovePlayerWrapAroundHasNoRollLabel(t *testing.T) {
	env := newTestEnv(t)
	gameID := activeGame(t, env)

	// A jump of more than 12 spaces cannot come from a dice roll.
	require.NoError(t, env.gm.MovePlayer(context.Background(), gameID, "u1", 20))

	updated := env.broadcast.last(EventUpdatedLoc)
	require.NotNil(t, updated)
	assert.Empty(t, updated.payload.(UpdatedLocPayload).Type)
}

func TestMovePlayerInvalidPosition(t *testing.T) {
	env := newTestEnv(t)
	gameID := activeGame(t, env)

	assert.ErrorIs(t, env.gm.MovePlayer(context.Background(), gameID, "u1", -1), ErrInvalidPosition)
	assert.ErrorIs(t, env.gm.MovePlayer(context.Background(), gameID, "u1", 32), ErrInvalidPosition)
}

func TestUpdateJail(t *testing.T) {
	env := newTestEnv(t)
	gameID := activeGame(t, env)

	jailPlayer := func() {
		game, err := env.store.GetGame(context.Background(), gameID)
		require.NoError(t, err)
		p := game.FindPlayer("u1")
		p.InJail = true
		p.JailTurns = 1
		require.NoError(t, env.store.SaveGame(context.Background(), game))
	}

	t.Run("free", func(t *testing.T) {
		jailPlayer()
		require.NoError(t, env.gm.UpdateJail(context.Background(), gameID, "u1", JailStateFree))

		game, err := env.store.GetGame(context.Background(), gameID)
		require.NoError(t, err)
		p := game.FindPlayer("u1")
		assert.False(t, p.InJail)
		assert.Zero(t, p.JailTurns)
		assert.Equal(t, "escaped jail", env.broadcast.last(EventUpdatedLoc).payload.(UpdatedLocPayload).Type)
	})

	t.Run("free1", func(t *testing.T) {
		jailPlayer()
		require.NoError(t, env.gm.UpdateJail(context.Background(), gameID, "u1", JailStateFree1))
		assert.Equal(t, "couldn't escape in time and paid the bail",
			env.broadcast.last(EventUpdatedLoc).payload.(UpdatedLocPayload).Type)
	})

	t.Run("update", func(t *testing.T) {
		jailPlayer()
		require.NoError(t, env.gm.UpdateJail(context.Background(), gameID, "u1", JailStateUpdate))

		game, err := env.store.GetGame(context.Background(), gameID)
		require.NoError(t, err)
		p := game.FindPlayer("u1")
		assert.True(t, p.InJail)
		assert.Equal(t, 2, p.JailTurns)
	})

	t.Run("unknown state rejected", func(t *testing.T) {
		jailPlayer()
		before := env.broadcast.count(EventUpdatedLoc)

		err := env.gm.UpdateJail(context.Background(), gameID, "u1", "teleport")
		assert.ErrorIs(t, err, ErrInvalidJailState)

		// Nothing was saved or broadcast.
		game, err := env.store.GetGame(context.Background(), gameID)
		require.NoError(t, err)
		assert.Equal(t, 1, game.FindPlayer("u1").JailTurns)
		assert.Equal(t, before, env.broadcast.count(EventUpdatedLoc))
	})

	t.Run("bribe", func(t *testing.T) {
		jailPlayer()
		setBalance(t, env, gameID, "u1", 100000)
		require.NoError(t, env.gm.UpdateJail(context.Background(), gameID, "u1", JailStateBribe))

		game, err := env.store.GetGame(context.Background(), gameID)
		require.NoError(t, err)
		p := game.FindPlayer("u1")
		assert.False(t, p.InJail)
		assert.Equal(t, 50000, p.Balance)
		assert.Equal(t, 8, p.Location)
		assert.Equal(t, "bribed the guard and escaped",
			env.broadcast.last(EventUpdatedLoc).payload.(UpdatedLocPayload).Type)
	})
}

func TestApplyCardCollectUpgrade(t *testing.T) {
	env := newTestEnv(t)
	gameID := activeGame(t, env)

	card := CardPlay{ActionType: CardActionCollect, ActionValue: CardValueUpgrade}
	require.NoError(t, env.gm.ApplyCard(context.Background(), gameID, "u1", 10000, card, ""))

	game, err := env.store.GetGame(context.Background(), gameID)
	require.NoError(t, err)
	p := game.FindPlayer("u1")
	assert.Equal(t, 3, p.MoverLevel)
	assert.Equal(t, 372000+10000, p.Balance)
}

func TestApplyCardCollectUpgradeAtMaxLevel(t *testing.T) {
	env := newTestEnv(t)
	gameID := activeGame(t, env)

	game, err := env.store.GetGame(context.Background(), gameID)
	require.NoError(t, err)
	game.FindPlayer("u1").MoverLevel = models.MaxMoverLevel
	require.NoError(t, env.store.SaveGame(context.Background(), game))

	card := CardPlay{ActionType: CardActionCollect, ActionValue: CardValueUpgrade}
	require.NoError(t, env.gm.ApplyCard(context.Background(), gameID, "u1", 10000, card, ""))

	game, err = env.store.GetGame(context.Background(), gameID)
	require.NoError(t, err)
	p := game.FindPlayer("u1")
	// Maxed movers take the cash bonus instead of levels.
	assert.Equal(t, models.MaxMoverLevel, p.MoverLevel)
	assert.Equal(t, 372000+60000, p.Balance)
}

func TestApplyCardCollectTakeAllTiered(t *testing.T) {
	env := newTestEnv(t)
	gameID := activeGame(t, env)

	game, err := env.store.GetGame(context.Background(), gameID)
	require.NoError(t, err)
	game.FindPlayer("u2").MoverLevel = 3
	require.NoError(t, env.store.SaveGame(context.Background(), game))

	card := CardPlay{
		ActionType:    CardActionCollect,
		ActionValue:   CardValueTakeAll,
		Type:          models.CardTypeBlack,
		ValueByLevels: []int{1000, 2000, 3000},
	}
	require.NoError(t, env.gm.ApplyCard(context.Background(), gameID, "u1", 0, card, ""))

	game, err = env.store.GetGame(context.Background(), gameID)
	require.NoError(t, err)
	assert.Equal(t, 372000+2000, game.FindPlayer("u1").Balance)
	assert.Equal(t, 372000-2000, game.FindPlayer("u2").Balance)
}

func TestApplyCardCollectTakeAllFortune(t *testing.T) {
	env := newTestEnv(t)
	gameID := activeGame(t, env)

	card := CardPlay{
		ActionType:  CardActionCollect,
		ActionValue: CardValueTakeAll,
		Type:        models.CardTypeFortune,
	}
	require.NoError(t, env.gm.ApplyCard(context.Background(), gameID, "u1", 5000, card, ""))

	game, err := env.store.GetGame(context.Background(), gameID)
	require.NoError(t, err)
	assert.Equal(t, 372000+5000, game.FindPlayer("u1").Balance)
	assert.Equal(t, 372000-5000, game.FindPlayer("u2").Balance)
}

func TestApplyCardPayGiveAll(t *testing.T) {
	env := newTestEnv(t)
	gameID := activeGame(t, env)

	card := CardPlay{ActionType: CardActionPay, ActionValue: CardValueGiveAll}
	require.NoError(t, env.gm.ApplyCard(context.Background(), gameID, "u1", 3000, card, ""))

	game, err := env.store.GetGame(context.Background(), gameID)
	require.NoError(t, err)
	assert.Equal(t, 372000-3000, game.FindPlayer("u1").Balance)
	assert.Equal(t, 372000+3000, game.FindPlayer("u2").Balance)
}

func TestApplyCardTakeOneAndGiveOne(t *testing.T) {
	env := newTestEnv(t)
	gameID := activeGame(t, env)

	take := CardPlay{ActionType: CardActionCollect, ActionValue: CardValueTakeOne}
	require.NoError(t, env.gm.ApplyCard(context.Background(), gameID, "u1", 1500, take, "u2"))

	give := CardPlay{ActionType: CardActionPay, ActionValue: CardValueGiveOne}
	require.NoError(t, env.gm.ApplyCard(context.Background(), gameID, "u1", 500, give, "u2"))

	game, err := env.store.GetGame(context.Background(), gameID)
	require.NoError(t, err)
	assert.Equal(t, 372000+1500-500, game.FindPlayer("u1").Balance)
	assert.Equal(t, 372000-1500+500, game.FindPlayer("u2").Balance)
}

func TestApplyCardRoll(t *testing.T) {
	env := newTestEnv(t)
	gameID := activeGame(t, env)

	card := CardPlay{ActionType: CardActionRoll}
	require.NoError(t, env.gm.ApplyCard(context.Background(), gameID, "u1", 8000, card, ""))

	game, err := env.store.GetGame(context.Background(), gameID)
	require.NoError(t, err)
	assert.Equal(t, 372000+8000, game.FindPlayer("u1").Balance)

	updated := env.broadcast.last(EventUpdatedLoc)
	require.NotNil(t, updated)
	assert.Equal(t, "rolled and won", updated.payload.(UpdatedLocPayload).Type)
}

func TestApplyCardDowngradeClamps(t *testing.T) {
	env := newTestEnv(t)
	gameID := activeGame(t, env)

	card := CardPlay{ActionType: CardActionDowngrade}
	require.NoError(t, env.gm.ApplyCard(context.Background(), gameID, "u1", 0, card, ""))

	game, err := env.store.GetGame(context.Background(), gameID)
	require.NoError(t, err)
	assert.Equal(t, models.MinMoverLevel, game.FindPlayer("u1").MoverLevel)
}

func TestApplyCardGetOutOfJail(t *testing.T) {
	env := newTestEnv(t)
	gameID := activeGame(t, env)

	card := CardPlay{ActionType: CardActionGetOutOfJail}
	require.NoError(t, env.gm.ApplyCard(context.Background(), gameID, "u1", 0, card, ""))

	game, err := env.store.GetGame(context.Background(), gameID)
	require.NoError(t, err)
	assert.True(t, game.FindPlayer("u1").HasJailCard)
}

func TestMortgageProperty(t *testing.T) {
	env := newTestEnv(t)
	gameID := activeGame(t, env)
	require.NoError(t, env.gm.PurchaseProperty(context.Background(), gameID, "u1", 2))

	require.NoError(t, env.gm.MortgageProperty(context.Background(), gameID, 2, 10000))

	game, err := env.store.GetGame(context.Background(), gameID)
	require.NoError(t, err)
	state := game.FindPropertyState(2)
	require.NotNil(t, state)
	assert.True(t, state.IsMortgaged)

	// 372000 - 60000 purchase + 30000 mortgage value + 10000 price.
	assert.Equal(t, 352000, game.FindPlayer("u1").Balance)

	mortgaged := env.broadcast.last(EventMortgaged)
	require.NotNil(t, mortgaged)
	assert.Equal(t, 2, mortgaged.payload.(MortgagedPayload).PropertyID)
}

func TestMortgagePropertyUnowned(t *testing.T) {
	env := newTestEnv(t)
	gameID := activeGame(t, env)

	err := env.gm.MortgageProperty(context.Background(), gameID, 1, 0)
	assert.ErrorIs(t, err, ErrPropertyNotFound)
}

func TestMortgagePropertyTwice(t *testing.T) {
	env := newTestEnv(t)
	gameID := activeGame(t, env)
	require.NoError(t, env.gm.PurchaseProperty(context.Background(), gameID, "u1", 2))
	require.NoError(t, env.gm.MortgageProperty(context.Background(), gameID, 2, 10000))

	err := env.gm.MortgageProperty(context.Background(), gameID, 2, 10000)
	assert.ErrorIs(t, err, ErrAlreadyMortgaged)

	// The owner was credited exactly once.
	game, err := env.store.GetGame(context.Background(), gameID)
	require.NoError(t, err)
	assert.Equal(t, 352000, game.FindPlayer("u1").Balance)

	mortgages := 0
	for _, tx := range game.Transactions {
		if tx.Type == models.TransactionTypeMortgage {
			mortgages++
		}
	}
	assert.Equal(t, 1, mortgages)
}

func TestDrawCardPopsTopAndRelays(t *testing.T) {
	env := newTestEnv(t)
	gameID := activeGame(t, env)

	deck := []json.RawMessage{
		json.RawMessage(`{"id":1}`),
		json.RawMessage(`{"id":2}`),
		json.RawMessage(`{"id":3}`),
	}
	env.gm.DrawCard(gameID, deck, "fo")

	relayed := env.broadcast.last(EventSetCard)
	require.NotNil(t, relayed)
	assert.Equal(t, "room", relayed.scope)

	payload := relayed.payload.(SetCardPayload)
	assert.Equal(t, "fo", payload.Type)
	require.Len(t, payload.Cards, 2)
	assert.JSONEq(t, `{"id":2}`, string(payload.Cards[0]))

	// Nothing is persisted for deck relays.
	game, err := env.store.GetGame(context.Background(), gameID)
	require.NoError(t, err)
	assert.Empty(t, game.Transactions)
}

func TestDrawCardEmptyDeck(t *testing.T) {
	env := newTestEnv(t)
	gameID := activeGame(t, env)

	env.gm.DrawCard(gameID, nil, "ch")

	relayed := env.broadcast.last(EventSetCard)
	require.NotNil(t, relayed)
	assert.Empty(t, relayed.payload.(SetCardPayload).Cards)
}

func TestRemoveFortuneRelays(t *testing.T) {
	env := newTestEnv(t)
	gameID := activeGame(t, env)

	property := json.RawMessage(`{"id":5}`)
	fortunes := json.RawMessage(`[{"id":9}]`)
	env.gm.RemoveFortune(gameID, property, fortunes)

	relayed := env.broadcast.last(EventDeleteFortune)
	require.NotNil(t, relayed)
	assert.Equal(t, "room", relayed.scope)

	payload := relayed.payload.(DeleteFortunePayload)
	assert.JSONEq(t, `{"id":5}`, string(payload.Property))
	assert.JSONEq(t, `[{"id":9}]`, string(payload.Fortunes))
}

func TestSendChatRoomWide(t *testing.T) {
	env := newTestEnv(t)
	gameID := activeGame(t, env)

	require.NoError(t, env.gm.SendChat(context.Background(), gameID, "alice", "all", "hello"))

	msg := env.broadcast.last(EventChatMsg)
	require.NotNil(t, msg)
	assert.Equal(t, "room", msg.scope)
	assert.Equal(t, "hello", msg.payload.(ChatMsgPayload).Msg)
}

func TestSendChatWhisper(t *testing.T) {
	env := newTestEnv(t)
	gameID := activeGame(t, env)

	require.NoError(t, env.gm.SendChat(context.Background(), gameID, "alice", "bob", "psst"))

	msg := env.broadcast.last(EventChatMsg)
	require.NotNil(t, msg)
	assert.Equal(t, "user", msg.scope)
	assert.Equal(t, "u2", msg.target)
}

func TestSendChatUnknownReceiverDropped(t *testing.T) {
	env := newTestEnv(t)
	gameID := activeGame(t, env)

	require.NoError(t, env.gm.SendChat(context.Background(), gameID, "alice", "nobody", "psst"))
	assert.Nil(t, env.broadcast.last(EventChatMsg))
}

func TestSendChatInvalid(t *testing.T) {
	env := newTestEnv(t)

	assert.ErrorIs(t, env.gm.SendChat(context.Background(), "", "alice", "all", "hi"), ErrInvalidChat)
	assert.ErrorIs(t, env.gm.SendChat(context.Background(), "g", "", "all", "hi"), ErrInvalidChat)
	assert.ErrorIs(t, env.gm.SendChat(context.Background(), "g", "alice", "all", ""), ErrInvalidChat)
}

func TestHandOffTurn(t *testing.T) {
	env := newTestEnv(t)
	gameID := activeGame(t, env)

	env.gm.HandOffTurn(gameID, "u2")

	changed := env.broadcast.last(EventTurnChanged)
	require.NotNil(t, changed)
	assert.Equal(t, "room", changed.scope)
	assert.Equal(t, "u2", changed.payload)
}

func TestEndGame(t *testing.T) {
	env := newTestEnv(t)
	gameID := activeGame(t, env)

	require.NoError(t, env.gm.EndGame(context.Background(), gameID, "u2"))

	game, err := env.store.GetGame(context.Background(), gameID)
	require.NoError(t, err)
	assert.Equal(t, models.GameStatusCompleted, game.Status)
	assert.Equal(t, "u2", game.WinnerPlayerID)
	require.NotNil(t, game.EndTime)

	end := env.broadcast.last(EventGameEnd)
	require.NotNil(t, end)
	assert.Equal(t, "u2", end.payload.(GameEndPayload).WinnerPlayerID)
}
