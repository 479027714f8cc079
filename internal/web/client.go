package web

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talesmith-ai/talesmith/internal/logger"
	"github.com/talesmith-ai/talesmith/internal/orchestrator"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 16384
)

// Client represents a WebSocket client and its game session.
type Client struct {
	ID   string
	hub  *Hub
	conn *websocket.Conn
	send chan *WebMessage
	game *GameSession
}

// NewClient creates a new WebSocket client with a fresh game session.
func NewClient(hub *Hub, conn *websocket.Conn, broker *Broker) *Client {
	id, _ := generateClientID()

	client := &Client{
		ID:   id,
		hub:  hub,
		conn: conn,
		send: make(chan *WebMessage, 256),
	}
	client.game = broker.NewGame(&clientEvents{client: client})

	return client
}

// ReadPump pumps messages from the WebSocket connection to the game session.
func (c *Client) ReadPump() {
	defer func() {
		c.game.Close()
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Error("WebSocket read error: %v", err)
			}
			break
		}

		var msg WebMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			logger.Error("Failed to unmarshal message: %v", err)
			continue
		}

		c.handleMessage(&msg)
	}
}

// WritePump pumps messages from the game session to the WebSocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(message)
			if err != nil {
				logger.Error("Failed to marshal message: %v", err)
				continue
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Error("Failed to write message: %v", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches one inbound message. Chat turns run in their own
// goroutine so the read pump never blocks behind a provider call; the
// orchestrator's in-flight guard rejects overlapping submits.
func (c *Client) handleMessage(msg *WebMessage) {
	switch msg.Type {
	case MessageTypeChat:
		toolsEnabled := msg.ToolsEnabled == nil || *msg.ToolsEnabled
		go c.runTurn(msg.Content, msg.Model, toolsEnabled)

	case MessageTypeClear:
		c.game.Reset()
		c.deliver(&WebMessage{Type: MessageTypeSession, SessionID: c.game.Session().ID})

	case MessageTypeLoadSession:
		if err := c.game.Load(msg.SessionID); err != nil {
			logger.Warn("Failed to load session %s: %v", msg.SessionID, err)
			c.deliver(&WebMessage{Type: MessageTypeError, Error: err.Error()})
			return
		}
		sess := c.game.Session()
		reply := &WebMessage{Type: MessageTypeSession, SessionID: sess.ID}
		for _, t := range sess.History.Turns() {
			reply.Turns = append(reply.Turns, TurnInfo{Role: t.Role, Content: t.Content, CreatedAt: t.CreatedAt})
		}
		c.deliver(reply)

	case MessageTypeDeleteSession:
		if err := c.game.broker.deleteSession(msg.SessionID); err != nil {
			c.deliver(&WebMessage{Type: MessageTypeError, Error: err.Error()})
			return
		}
		ids, err := c.game.broker.sessionIDs()
		if err != nil {
			c.deliver(&WebMessage{Type: MessageTypeError, Error: err.Error()})
			return
		}
		c.deliver(&WebMessage{Type: MessageTypeSessions, Sessions: ids})

	case MessageTypeGetSessions:
		ids, err := c.game.broker.sessionIDs()
		if err != nil {
			c.deliver(&WebMessage{Type: MessageTypeError, Error: err.Error()})
			return
		}
		c.deliver(&WebMessage{Type: MessageTypeSessions, Sessions: ids})

	case MessageTypeGetModels:
		c.deliver(&WebMessage{Type: MessageTypeModels, Models: c.game.broker.registry.FallbackList()})

	case MessageTypeRefreshModels:
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		c.game.broker.registry.Refresh(ctx)
		cancel()
		c.deliver(&WebMessage{Type: MessageTypeModels, Models: c.game.broker.registry.FallbackList()})

	default:
		logger.Debug("Ignoring unknown message type %q from client %s", msg.Type, c.ID)
	}
}

func (c *Client) runTurn(content, requestedModel string, toolsEnabled bool) {
	if err := c.game.Submit(content, requestedModel, toolsEnabled); err != nil {
		turnErr := asTurnError(err)
		c.deliver(&WebMessage{
			Type:      MessageTypeTurnFailed,
			Category:  turnErr.Category,
			Error:     turnErr.Message,
			Retryable: turnErr.Retryable,
		})
	}
}

func (c *Client) deliver(msg *WebMessage) {
	msg.Timestamp = time.Now()
	select {
	case c.send <- msg:
	default:
		logger.Warn("Client %s send buffer full, dropping %s message", c.ID, msg.Type)
	}
}

func asTurnError(err error) *orchestrator.TurnError {
	if turnErr, ok := err.(*orchestrator.TurnError); ok {
		return turnErr
	}
	return &orchestrator.TurnError{
		Category:  orchestrator.CategoryTransport,
		Message:   err.Error(),
		Retryable: true,
	}
}

// generateClientID generates a random client id.
func generateClientID() (string, error) {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
