package handlers

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/boardwalk/backend/internal/api/middleware/auth"
	"github.com/boardwalk/backend/internal/config"
	"github.com/boardwalk/backend/internal/db/mongodb"
	gameWs "github.com/boardwalk/backend/internal/game/websocket"
)

// WebSocketHandler upgrades authenticated HTTP requests to game or lobby
// websocket connections.
type WebSocketHandler struct {
	hub       *gameWs.Hub
	userStore *mongodb.UserStore
	cfg       *config.Config
	logger    *zap.SugaredLogger
}

// NewWebSocketHandler creates a new WebSocketHandler
func NewWebSocketHandler(hub *gameWs.Hub, userStore *mongodb.UserStore, cfg *config.Config, logger *zap.SugaredLogger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:       hub,
		userStore: userStore,
		cfg:       cfg,
		logger:    logger,
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleGameConnection handles websocket connections for game rooms.
func (h *WebSocketHandler) HandleGameConnection(c echo.Context) error {
	return h.handleConnection(c, false)
}

// HandleLobbyConnection handles websocket connections for the lobby.
func (h *WebSocketHandler) HandleLobbyConnection(c echo.Context) error {
	return h.handleConnection(c, true)
}

func (h *WebSocketHandler) handleConnection(c echo.Context, isLobby bool) error {
	userID, err := h.authenticate(c)
	if err != nil {
		return err
	}

	sessionID := c.QueryParam("sessionId")
	if sessionID == "" {
		h.logger.Warn("WebSocket connection rejected: missing sessionId")
		return echo.NewHTTPError(http.StatusBadRequest, "Missing session ID")
	}

	username, err := h.userStore.GetUsername(c.Request().Context(), userID)
	if err != nil {
		h.logger.Warnf("WebSocket connection rejected: unknown user %s: %v", userID, err)
		return echo.NewHTTPError(http.StatusUnauthorized, "Unknown user")
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Errorf("Failed to upgrade connection: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to establish WebSocket connection")
	}

	h.logger.Infof("WebSocket connection established: user %s, session %s, lobby=%v", userID, sessionID, isLobby)
	h.hub.HandleConnection(conn, userID, username, sessionID, isLobby)

	return nil
}

// authenticate resolves the user ID from the JWT middleware's context entry
// or, when the middleware did not run, from the token query parameter.
func (h *WebSocketHandler) authenticate(c echo.Context) (string, error) {
	if id, ok := c.Get("userID").(string); ok && id != "" {
		return id, nil
	}

	tokenString := c.QueryParam("token")
	if tokenString == "" {
		h.logger.Warn("WebSocket connection rejected: missing token")
		return "", echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized: Missing token")
	}

	claims, err := auth.ParseToken(tokenString, h.cfg.JWT.Secret)
	if err != nil {
		h.logger.Warnf("WebSocket connection rejected: token validation failed: %v", err)
		return "", echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized: Invalid token")
	}

	return claims.UserID, nil
}
