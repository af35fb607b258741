package websocket

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"

	"github.com/boardwalk/backend/internal/game/manager"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096
	sendBufferSize = 256
)

// Client represents one WebSocket connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	userID    string
	username  string
	sessionID string

	// gameID is the room this connection currently belongs to, if any.
	// Guarded by the hub's clients mutex.
	gameID string

	isLobby bool
}

// HandleConnection wires up a freshly upgraded connection and starts its read
// and write pumps. The user's presence entry is registered immediately so
// that direct messages reach this session.
func (h *Hub) HandleConnection(conn *websocket.Conn, userID, username, sessionID string, isLobby bool) {
	client := &Client{
		hub:       h,
		conn:      conn,
		send:      make(chan []byte, sendBufferSize),
		userID:    userID,
		username:  username,
		sessionID: sessionID,
		isLobby:   isLobby,
	}

	h.presence.Set(h.ctx, userID, sessionID)
	h.register <- client

	go client.writePump()
	go client.readPump()
}

// enqueue offers a message to the client's send buffer without blocking.
func (c *Client) enqueue(data []byte) {
	select {
	case c.send <- data:
	default:
		c.hub.logger.Warnf("Send buffer full for session %s, dropping message", c.sessionID)
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warnf("WebSocket read error for user %s, session %s: %v", c.userID, c.sessionID, err)
			}
			break
		}
		c.handleMessage(message)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.logger.Warnf("WebSocket write error for session %s: %v", c.sessionID, err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Inbound event names accepted from clients.
const (
	eventCreateGameRoom    = "createGameRoom"
	eventJoinGameRoom      = "joinGameRoom"
	eventPlayerReady       = "playerReady"
	eventLeaveGameRoom     = "leaveGameRoom"
	eventGetAvailableGames = "getAvailableGames"
	eventStartGame         = "startGame"
	eventRollDice          = "rollDice"
	eventPropertyPurchased = "propertyPurchased"
	eventTransferMoney     = "transferMoney"
	eventUpdateLoc         = "updateLoc"
	eventUpdateJail        = "updateJail"
	eventCard              = "card"
	eventRemoval           = "removal"
	eventRemoveFortune     = "removeF"
	eventMortgage          = "mortage"
	eventSendChatMsg       = "sendChatMsg"
	eventTurnChange        = "turnChange"
	eventGameOver          = "gameOver"
)

// Error event names sent back to the originating connection only.
const (
	errEventCreateGame = "createGameError"
	errEventJoinGame   = "joinGameError"
	errEventReady      = "readyErr"
	errEventStartGame  = "startGameErr"
	errEventRollDice   = "rollDiceErr"
	errEventGamesList  = "gamesListError"
	errEventPurchase   = "propertyPurchaseFailed"
	errEventTransfer   = "transferErr"
	errEventUpdateLoc  = "updateLocErr"
	errEventUpdateJail = "updateJailErr"
	errEventCard       = "cardErr"
	errEventMortgage   = "mortageErr"
	errEventChatMsg    = "chatMsgErr"
	errEventGameOver   = "gameOverErr"
)

type errPayload struct {
	Msg string `json:"msg"`
}

type purchaseFailedPayload struct {
	Reason string `json:"reason"`
}

// handleMessage decodes one inbound envelope and dispatches it. Malformed
// messages are dropped; failed operations answer with the event's error
// counterpart on this connection only.
func (c *Client) handleMessage(message []byte) {
	var env Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		c.hub.logger.Debugf("Dropping malformed message from session %s: %v", c.sessionID, err)
		return
	}

	switch env.Type {
	case eventCreateGameRoom:
		c.handleCreateGameRoom(env.Data)
	case eventJoinGameRoom:
		c.handleJoinGameRoom(env.Data)
	case eventPlayerReady:
		c.handlePlayerReady(env.Data)
	case eventLeaveGameRoom:
		c.handleLeaveGameRoom(env.Data)
	case eventGetAvailableGames:
		c.handleGetAvailableGames()
	case eventStartGame:
		c.handleStartGame(env.Data)
	case eventRollDice:
		c.handleRollDice(env.Data)
	case eventPropertyPurchased:
		c.handlePropertyPurchased(env.Data)
	case eventTransferMoney:
		c.handleTransferMoney(env.Data)
	case eventUpdateLoc:
		c.handleUpdateLoc(env.Data)
	case eventUpdateJail:
		c.handleUpdateJail(env.Data)
	case eventCard:
		c.handleCard(env.Data)
	case eventRemoval:
		c.handleRemoval(env.Data)
	case eventRemoveFortune:
		c.handleRemoveFortune(env.Data)
	case eventMortgage:
		c.handleMortgage(env.Data)
	case eventSendChatMsg:
		c.handleSendChatMsg(env.Data)
	case eventTurnChange:
		c.handleTurnChange(env.Data)
	case eventGameOver:
		c.handleGameOver(env.Data)
	default:
		c.hub.logger.Debugf("Unknown event %q from session %s", env.Type, c.sessionID)
	}
}

// sendError answers the originating connection with a named error event.
func (c *Client) sendError(event, msg string) {
	data, err := marshalEnvelope(event, errPayload{Msg: msg})
	if err != nil {
		c.hub.logger.Errorf("Failed to marshal %s event: %v", event, err)
		return
	}
	c.enqueue(data)
}

func (c *Client) handleCreateGameRoom(data json.RawMessage) {
	var req struct {
		RoomName     string `json:"roomName"`
		RoomPassword string `json:"roomPassword"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError(errEventCreateGame, "invalid request")
		return
	}

	game, err := c.hub.gameManager.CreateRoom(c.hub.ctx, c.userID, req.RoomName, req.RoomPassword)
	if err != nil {
		if errors.Is(err, manager.ErrUserNotFound) {
			c.sendError(errEventCreateGame, "User not found")
		} else {
			c.sendError(errEventCreateGame, "err creating game")
		}
		return
	}
	c.hub.joinRoom(c, game.ID.Hex())
}

func (c *Client) handleJoinGameRoom(data json.RawMessage) {
	var req struct {
		GameID string `json:"gameID"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError(errEventJoinGame, "invalid request")
		return
	}

	// Join the room before the manager broadcasts so the roster update
	// reaches this connection too.
	c.hub.joinRoom(c, req.GameID)
	if _, err := c.hub.gameManager.JoinRoom(c.hub.ctx, req.GameID, c.userID, c.username, c.sessionID); err != nil {
		c.hub.leaveRoom(c)
		switch {
		case errors.Is(err, manager.ErrGameNotFound):
			c.sendError(errEventJoinGame, "Game not found")
		case errors.Is(err, manager.ErrGameFull):
			c.sendError(errEventJoinGame, "game is full")
		default:
			c.sendError(errEventJoinGame, "Err joining game")
		}
	}
}

func (c *Client) handlePlayerReady(data json.RawMessage) {
	var req struct {
		GameID  string `json:"gameID"`
		IsReady bool   `json:"isReady"`
		Mover   string `json:"mover"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError(errEventReady, "invalid request")
		return
	}

	if err := c.hub.gameManager.SetReady(c.hub.ctx, req.GameID, c.userID, req.IsReady, req.Mover); err != nil {
		switch {
		case errors.Is(err, manager.ErrGameNotFound):
			c.sendError(errEventReady, "game not found")
		case errors.Is(err, manager.ErrMoverTaken):
			c.sendError(errEventReady, "Mover already taken")
		default:
			c.sendError(errEventReady, "err updating ready status")
		}
	}
}

func (c *Client) handleLeaveGameRoom(data json.RawMessage) {
	var req struct {
		GameID string `json:"gameID"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return
	}

	c.hub.leaveRoom(c)
	if err := c.hub.gameManager.LeaveRoom(c.hub.ctx, req.GameID, c.userID); err != nil {
		c.hub.logger.Warnf("Failed to leave game %s for user %s: %v", req.GameID, c.userID, err)
	}
}

func (c *Client) handleGetAvailableGames() {
	rooms, err := c.hub.gameManager.ListWaitingRooms(c.hub.ctx)
	if err != nil {
		c.sendError(errEventGamesList, "err fetching games")
		return
	}
	data, err := marshalEnvelope(manager.EventAvailableGames, manager.AvailableGamesPayload{Games: rooms})
	if err != nil {
		c.hub.logger.Errorf("Failed to marshal availableGames event: %v", err)
		return
	}
	c.enqueue(data)
}

func (c *Client) handleStartGame(data json.RawMessage) {
	var req struct {
		GameID string `json:"gameID"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError(errEventStartGame, "invalid request")
		return
	}

	if err := c.hub.gameManager.StartGame(c.hub.ctx, req.GameID, c.userID); err != nil {
		switch {
		case errors.Is(err, manager.ErrGameNotFound):
			c.sendError(errEventStartGame, "game not found")
		case errors.Is(err, manager.ErrNotHost):
			c.sendError(errEventStartGame, "only the host can start the game")
		case errors.Is(err, manager.ErrNotEnoughPlayers):
			c.sendError(errEventStartGame, "need at least 2 players")
		default:
			c.sendError(errEventStartGame, "err starting game")
		}
	}
}

func (c *Client) handleRollDice(data json.RawMessage) {
	var req struct {
		GameID string `json:"gameID"`
		Phase  string `json:"phase"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError(errEventRollDice, "invalid request")
		return
	}

	if err := c.hub.gameManager.RollDice(c.hub.ctx, req.GameID, c.userID, req.Phase); err != nil {
		if errors.Is(err, manager.ErrGameNotFound) {
			c.sendError(errEventRollDice, "game not found")
		} else {
			c.sendError(errEventRollDice, "server err")
		}
	}
}

func (c *Client) handlePropertyPurchased(data json.RawMessage) {
	var req struct {
		GameID     string `json:"gameID"`
		PropertyID int    `json:"propertyID"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendPurchaseFailed("invalid request")
		return
	}

	if err := c.hub.gameManager.PurchaseProperty(c.hub.ctx, req.GameID, c.userID, req.PropertyID); err != nil {
		switch {
		case errors.Is(err, manager.ErrAlreadyOwned):
			c.sendPurchaseFailed("Property already owned")
		case errors.Is(err, manager.ErrInsufficientFunds):
			c.sendPurchaseFailed("insufficient balance")
		default:
			c.sendPurchaseFailed("internal server err")
		}
	}
}

func (c *Client) sendPurchaseFailed(reason string) {
	data, err := marshalEnvelope(errEventPurchase, purchaseFailedPayload{Reason: reason})
	if err != nil {
		c.hub.logger.Errorf("Failed to marshal %s event: %v", errEventPurchase, err)
		return
	}
	c.enqueue(data)
}

func (c *Client) handleTransferMoney(data json.RawMessage) {
	var req struct {
		GameID  string `json:"gameID"`
		OwnerID string `json:"ownerID"`
		Amt     int    `json:"amt"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError(errEventTransfer, "invalid request")
		return
	}

	if err := c.hub.gameManager.TransferMoney(c.hub.ctx, req.GameID, c.userID, req.OwnerID, req.Amt); err != nil {
		c.sendError(errEventTransfer, err.Error())
	}
}

func (c *Client) handleUpdateLoc(data json.RawMessage) {
	var req struct {
		GameID string `json:"gameID"`
		NewPos int    `json:"newPos"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError(errEventUpdateLoc, "invalid request")
		return
	}

	if err := c.hub.gameManager.MovePlayer(c.hub.ctx, req.GameID, c.userID, req.NewPos); err != nil {
		c.sendError(errEventUpdateLoc, err.Error())
	}
}

func (c *Client) handleUpdateJail(data json.RawMessage) {
	var req struct {
		GameID string `json:"gameID"`
		State  string `json:"state"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError(errEventUpdateJail, "invalid request")
		return
	}

	if err := c.hub.gameManager.UpdateJail(c.hub.ctx, req.GameID, c.userID, req.State); err != nil {
		c.sendError(errEventUpdateJail, err.Error())
	}
}

func (c *Client) handleCard(data json.RawMessage) {
	var req struct {
		GameID      string           `json:"gameID"`
		Val         int              `json:"val"`
		Card        manager.CardPlay `json:"card"`
		OtherPlayer string           `json:"otherPlayer"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError(errEventCard, "invalid request")
		return
	}

	if err := c.hub.gameManager.ApplyCard(c.hub.ctx, req.GameID, c.userID, req.Val, req.Card, req.OtherPlayer); err != nil {
		c.sendError(errEventCard, err.Error())
	}
}

func (c *Client) handleRemoval(data json.RawMessage) {
	var req struct {
		GameID string            `json:"gameID"`
		Cards  []json.RawMessage `json:"cards"`
		Type   string            `json:"type"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return
	}
	c.hub.gameManager.DrawCard(req.GameID, req.Cards, req.Type)
}

func (c *Client) handleRemoveFortune(data json.RawMessage) {
	var req struct {
		GameID   string          `json:"gameID"`
		Property json.RawMessage `json:"property"`
		Fortunes json.RawMessage `json:"fortunes"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return
	}
	c.hub.gameManager.RemoveFortune(req.GameID, req.Property, req.Fortunes)
}

func (c *Client) handleMortgage(data json.RawMessage) {
	var req struct {
		GameID     string `json:"gameID"`
		PropertyID int    `json:"propertyID"`
		Price      int    `json:"price"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError(errEventMortgage, "invalid request")
		return
	}

	if err := c.hub.gameManager.MortgageProperty(c.hub.ctx, req.GameID, req.PropertyID, req.Price); err != nil {
		c.sendError(errEventMortgage, err.Error())
	}
}

func (c *Client) handleSendChatMsg(data json.RawMessage) {
	var req struct {
		GameID   string `json:"gameID"`
		Receiver string `json:"receiver"`
		Msg      string `json:"msg"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError(errEventChatMsg, "Invalid chat data")
		return
	}

	if err := c.hub.gameManager.SendChat(c.hub.ctx, req.GameID, c.username, req.Receiver, req.Msg); err != nil {
		if errors.Is(err, manager.ErrInvalidChat) {
			c.sendError(errEventChatMsg, "Invalid chat data")
		} else {
			c.sendError(errEventChatMsg, err.Error())
		}
	}
}

func (c *Client) handleTurnChange(data json.RawMessage) {
	var req struct {
		GameID       string `json:"gameID"`
		NextPlayerID string `json:"nextPlayerID"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return
	}
	c.hub.gameManager.HandOffTurn(req.GameID, req.NextPlayerID)
}

func (c *Client) handleGameOver(data json.RawMessage) {
	var req struct {
		GameID         string `json:"gameID"`
		WinnerPlayerID string `json:"winnerPlayerID"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError(errEventGameOver, "invalid request")
		return
	}

	if err := c.hub.gameManager.EndGame(c.hub.ctx, req.GameID, req.WinnerPlayerID); err != nil {
		c.sendError(errEventGameOver, err.Error())
	}
}
