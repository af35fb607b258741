package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/boardwalk/backend/internal/db/mongodb"
	"github.com/boardwalk/backend/internal/game/manager"
	"github.com/boardwalk/backend/internal/game/models"
)

// GameHandler serves the REST read surface for games. Mutations go through
// the websocket layer; these endpoints exist for initial page loads and
// reconnect resynchronization.
type GameHandler struct {
	gameManager *manager.GameManager
	gameStore   *mongodb.GameStore
	catalog     *mongodb.CatalogStore
	logger      *zap.SugaredLogger
}

// NewGameHandler creates a new GameHandler
func NewGameHandler(gameManager *manager.GameManager, gameStore *mongodb.GameStore, catalog *mongodb.CatalogStore, logger *zap.SugaredLogger) *GameHandler {
	return &GameHandler{
		gameManager: gameManager,
		gameStore:   gameStore,
		catalog:     catalog,
		logger:      logger,
	}
}

// PropertyDetail joins a property's per-game state with its static catalog
// entry.
type PropertyDetail struct {
	models.Property
	OwnerID       string `json:"ownerID,omitempty"`
	IsMortgaged   bool   `json:"isMortgaged"`
	Houses        int    `json:"houses"`
	HasHotel      bool   `json:"hasHotel"`
	TurnPurchased int    `json:"turnPurchased,omitempty"`
}

// GameDetailsResponse is the merged read of one game session.
type GameDetailsResponse struct {
	Game       *models.Game     `json:"game"`
	Properties []PropertyDetail `json:"properties"`
	Cards      []models.Card    `json:"cards"`
}

// ListGames returns all games waiting for players
func (h *GameHandler) ListGames(c echo.Context) error {
	rooms, err := h.gameManager.ListWaitingRooms(c.Request().Context())
	if err != nil {
		h.logger.Errorf("Failed to list waiting games: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to list games")
	}
	return c.JSON(http.StatusOK, manager.AvailableGamesPayload{Games: rooms})
}

// GetGameDetails returns one game with its property states joined against
// the static catalog, plus the card decks.
func (h *GameHandler) GetGameDetails(c echo.Context) error {
	ctx := c.Request().Context()
	gameID := c.Param("gameId")

	game, err := h.gameStore.GetGame(ctx, gameID)
	if err != nil {
		if errors.Is(err, mongodb.ErrGameNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Game not found")
		}
		h.logger.Errorf("Failed to get game %s: %v", gameID, err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to get game")
	}

	catalogProps, err := h.catalog.ListProperties(ctx)
	if err != nil {
		h.logger.Errorf("Failed to list properties: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to get game")
	}

	cards, err := h.catalog.ListCards(ctx)
	if err != nil {
		h.logger.Errorf("Failed to list cards: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to get game")
	}

	details := make([]PropertyDetail, 0, len(catalogProps))
	for _, prop := range catalogProps {
		detail := PropertyDetail{Property: prop}
		if state := game.FindPropertyState(prop.ID); state != nil {
			detail.OwnerID = state.OwnerID
			detail.IsMortgaged = state.IsMortgaged
			detail.Houses = state.Houses
			detail.HasHotel = state.HasHotel
			detail.TurnPurchased = state.TurnPurchased
		}
		details = append(details, detail)
	}

	return c.JSON(http.StatusOK, GameDetailsResponse{
		Game:       game,
		Properties: details,
		Cards:      cards,
	})
}
