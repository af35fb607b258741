package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/boardwalk/backend/internal/game/models"
)

// ErrPropertyNotFound is returned when no catalog entry matches the given ID.
var ErrPropertyNotFound = errors.New("property not found")

// CatalogStore handles read-only access to the static property and card
// reference data. Catalog documents are seeded out of band and never mutated
// by the game server.
type CatalogStore struct {
	properties *mongo.Collection
	cards      *mongo.Collection
}

// NewCatalogStore creates a new CatalogStore
func NewCatalogStore(db *mongo.Database, propertyColl, cardColl string) *CatalogStore {
	return &CatalogStore{
		properties: db.Collection(propertyColl),
		cards:      db.Collection(cardColl),
	}
}

// GetProperty retrieves a static property by its numeric ID
func (s *CatalogStore) GetProperty(ctx context.Context, propertyID int) (*models.Property, error) {
	var property models.Property
	err := s.properties.FindOne(ctx, bson.M{"id": propertyID}).Decode(&property)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrPropertyNotFound
		}
		return nil, fmt.Errorf("failed to get property %d: %w", propertyID, err)
	}
	return &property, nil
}

// ListProperties returns the whole static property table
func (s *CatalogStore) ListProperties(ctx context.Context) ([]models.Property, error) {
	cursor, err := s.properties.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to query properties: %w", err)
	}
	defer cursor.Close(ctx)

	var properties []models.Property
	if err := cursor.All(ctx, &properties); err != nil {
		return nil, fmt.Errorf("failed to decode properties: %w", err)
	}
	return properties, nil
}

// ListCards returns the whole static card table
func (s *CatalogStore) ListCards(ctx context.Context) ([]models.Card, error) {
	cursor, err := s.cards.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to query cards: %w", err)
	}
	defer cursor.Close(ctx)

	var cards []models.Card
	if err := cursor.All(ctx, &cards); err != nil {
		return nil, fmt.Errorf("failed to decode cards: %w", err)
	}
	return cards, nil
}
