package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/boardwalk/backend/internal/game/models"
)

// ErrGameNotFound is returned when no game document matches the given ID.
var ErrGameNotFound = errors.New("game not found")

// GameStore handles database operations for game sessions
type GameStore struct {
	games *mongo.Collection
}

// NewGameStore creates a new GameStore
func NewGameStore(db *mongo.Database, collection string) *GameStore {
	return &GameStore{
		games: db.Collection(collection),
	}
}

// InsertGame stores a new game and returns its assigned ID as a hex string
func (s *GameStore) InsertGame(ctx context.Context, game *models.Game) (string, error) {
	if game.ID.IsZero() {
		game.ID = primitive.NewObjectID()
	}
	if _, err := s.games.InsertOne(ctx, game); err != nil {
		return "", fmt.Errorf("failed to insert game: %w", err)
	}
	return game.ID.Hex(), nil
}

// GetGame retrieves a game by its hex ID
func (s *GameStore) GetGame(ctx context.Context, gameID string) (*models.Game, error) {
	objID, err := primitive.ObjectIDFromHex(gameID)
	if err != nil {
		return nil, fmt.Errorf("invalid game ID: %w", err)
	}

	var game models.Game
	err = s.games.FindOne(ctx, bson.M{"_id": objID}).Decode(&game)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrGameNotFound
		}
		return nil, fmt.Errorf("failed to get game: %w", err)
	}

	return &game, nil
}

// ListWaitingGames returns all games with waiting status
func (s *GameStore) ListWaitingGames(ctx context.Context) ([]models.Game, error) {
	cursor, err := s.games.Find(ctx, bson.M{"status": models.GameStatusWaiting})
	if err != nil {
		return nil, fmt.Errorf("failed to query waiting games: %w", err)
	}
	defer cursor.Close(ctx)

	var games []models.Game
	if err := cursor.All(ctx, &games); err != nil {
		return nil, fmt.Errorf("failed to decode games: %w", err)
	}

	return games, nil
}

// SaveGame replaces the whole game document. Each action handler performs a
// single read-modify-write of the full session; the last full save wins.
func (s *GameStore) SaveGame(ctx context.Context, game *models.Game) error {
	result, err := s.games.ReplaceOne(ctx, bson.M{"_id": game.ID}, game)
	if err != nil {
		return fmt.Errorf("failed to save game: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrGameNotFound
	}
	return nil
}

// DeleteGame removes a game document by its hex ID
func (s *GameStore) DeleteGame(ctx context.Context, gameID string) error {
	objID, err := primitive.ObjectIDFromHex(gameID)
	if err != nil {
		return fmt.Errorf("invalid game ID: %w", err)
	}

	result, err := s.games.DeleteOne(ctx, bson.M{"_id": objID})
	if err != nil {
		return fmt.Errorf("failed to delete game: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrGameNotFound
	}
	return nil
}
