package manager

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/boardwalk/backend/internal/game/models"
)

// PhaseTurnOrder marks a dice roll as part of the pre-game turn-order phase.
const PhaseTurnOrder = "turnOrder"

// SetReady records a player's readiness and mover choice. The mover must be
// unique among the other current players. When every player is ready and at
// least two are present, the room is signalled that all players are ready;
// the session status itself only changes on an explicit StartGame.
func (gm *GameManager) SetReady(ctx context.Context, gameID, userID string, isReady bool, mover string) error {
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

	for i := range game.Players {
		if game.Players[i].UserID != userID && game.Players[i].Mover == mover && mover != "" {
			return ErrMoverTaken
		}
	}

	player.IsReady = isReady
	player.Mover = mover
	if err := gm.store.SaveGame(ctx, game); err != nil {
		return fmt.Errorf("failed to save game: %w", err)
	}

	gm.broadcaster.ToRoom(gameID, EventPlayerStatusUpdated, PlayerStatusUpdatedPayload{
		UserID:  userID,
		IsReady: isReady,
		Mover:   mover,
		Players: game.Players,
	})

	allReady := len(game.Players) >= gm.cfg.Game.MinimumPlayersToStart
	for _, p := range game.Players {
		if !p.IsReady {
			allReady = false
			break
		}
	}
	if allReady {
		gm.logger.Infof("All %d players ready in game %s", len(game.Players), gameID)
		gm.broadcaster.ToRoom(gameID, EventAllPlayersReady, AllPlayersReadyPayload{GameID: gameID})
	}

	return nil
}

// RollDice rolls two dice for a player and appends the roll to the session's
// history. In the turn-order phase, once every current player has rolled at
// least once, each player's first roll decides the play sequence: descending
// total, ties broken by join order (stable). The order is computed exactly
// once; later rolls in the phase are recorded but never reconsidered.
func (gm *GameManager) RollDice(ctx context.Context, gameID, userID, phase string) error {
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

	dice1, dice2 := gm.rollDie(), gm.rollDie()
	alreadyOrdered := turnOrderAssigned(game)

	game.DiceRolls = append(game.DiceRolls, models.DiceRoll{
		PlayerID:   userID,
		Dice1:      dice1,
		Dice2:      dice2,
		IsDoubles:  dice1 == dice2,
		TurnNumber: game.TurnCounter,
		Timestamp:  time.Now(),
	})

	if phase == PhaseTurnOrder && !alreadyOrdered {
		if order, done := gm.resolveTurnOrder(game); done {
			if err := gm.store.SaveGame(ctx, game); err != nil {
				return fmt.Errorf("failed to save game: %w", err)
			}
			gm.logger.Infof("Turn order finalized for game %s", gameID)
			gm.broadcaster.ToRoom(gameID, EventTurnOrderFinalized, TurnOrderFinalizedPayload{Order: order})
			gm.broadcastRoll(gameID, *player, dice1, dice2, phase)
			return nil
		}
	}

	if err := gm.store.SaveGame(ctx, game); err != nil {
		return fmt.Errorf("failed to save game: %w", err)
	}

	gm.broadcastRoll(gameID, *player, dice1, dice2, phase)
	return nil
}

func (gm *GameManager) broadcastRoll(gameID string, player models.Player, dice1, dice2 int, phase string) {
	gm.broadcaster.ToRoom(gameID, EventDiceRolled, DiceRolledPayload{
		Player:    player,
		Dice:      [2]int{dice1, dice2},
		IsDoubles: dice1 == dice2,
		Phase:     phase,
	})
}

// resolveTurnOrder assigns each player a 0-based turn order rank from their
// first recorded roll, once every current player has one. Returns the order
// and whether it was assigned.
func (gm *GameManager) resolveTurnOrder(game *models.Game) ([]TurnOrderEntry, bool) {
	type firstRoll struct {
		playerIdx int
		total     int
	}

	firstRolls := make([]firstRoll, 0, len(game.Players))
	for i := range game.Players {
		roll := firstRollFor(game, game.Players[i].UserID)
		if roll == nil {
			return nil, false
		}
		firstRolls = append(firstRolls, firstRoll{playerIdx: i, total: roll.Total()})
	}

	// Stable sort keeps join order for equal totals, which is the tie-break.
	sort.SliceStable(firstRolls, func(a, b int) bool {
		return firstRolls[a].total > firstRolls[b].total
	})

	order := make([]TurnOrderEntry, 0, len(firstRolls))
	for rank, fr := range firstRolls {
		game.Players[fr.playerIdx].TurnOrder = rank
		order = append(order, TurnOrderEntry{
			PlayerID:  game.Players[fr.playerIdx].UserID,
			TurnOrder: rank,
		})
	}

	return order, true
}

// firstRollFor returns the earliest recorded roll for a player, or nil.
func firstRollFor(game *models.Game, userID string) *models.DiceRoll {
	for i := range game.DiceRolls {
		if game.DiceRolls[i].PlayerID == userID {
			return &game.DiceRolls[i]
		}
	}
	return nil
}

// turnOrderAssigned reports whether the turn-order phase already concluded.
// Every player has at least one roll and a distinct rank only after
// resolveTurnOrder ran; before that all ranks default to zero.
func turnOrderAssigned(game *models.Game) bool {
	if len(game.Players) < 2 {
		return false
	}
	seen := make(map[int]bool, len(game.Players))
	for _, p := range game.Players {
		if firstRollFor(game, p.UserID) == nil {
			return false
		}
		if seen[p.TurnOrder] {
			return false
		}
		seen[p.TurnOrder] = true
	}
	return true
}
