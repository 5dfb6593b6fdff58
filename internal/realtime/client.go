package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins in dev; restrict in production
	},
}

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// FragmentAppender receives transcript fragments streamed by clients.
type FragmentAppender interface {
	Append(ctx context.Context, sessionID uuid.UUID, speaker, text string, producedAt time.Time) error
}

// Client represents a single WebSocket connection of one peer in one session.
// The peer identity is the verified user ID from the JWT, reused as the
// peer-connection identity by the media layer.
type Client struct {
	PeerID    string
	Name      string
	SessionID uuid.UUID
	hub       *Hub
	relay     *Relay
	appender  FragmentAppender
	conn      *websocket.Conn
	send      chan WSMessage
	logger    *zap.Logger
}

// TokenValidator resolves a transport token to a verified identity.
type TokenValidator func(token string) (userID, name string, err error)

// ServeWs handles the WebSocket upgrade and runs the client loop.
func ServeWs(hub *Hub, relay *Relay, appender FragmentAppender, logger *zap.Logger, validate TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionIDStr := c.Query("session_id")
		token := c.Query("token")
		if sessionIDStr == "" || token == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "session_id and token required"})
			return
		}
		sessionID, err := uuid.Parse(sessionIDStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session_id"})
			return
		}
		userID, name, err := validate(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			PeerID:    userID,
			Name:      name,
			SessionID: sessionID,
			hub:       hub,
			relay:     relay,
			appender:  appender,
			conn:      conn,
			send:      make(chan WSMessage, 256),
			logger:    logger,
		}
		hub.Register(client)
		go client.writePump()
		client.readPump()
	}
}

func (c *Client) close() {
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// fragmentData is the inbound transcript-fragment payload. ProducedAt is the
// client capture time in Unix milliseconds; zero means "use server time".
type fragmentData struct {
	Speaker    string `json:"speaker,omitempty"`
	Text       string `json:"text"`
	ProducedAt int64  `json:"produced_at,omitempty"`
}

func (c *Client) readPump() {
	defer func() {
		// A connection replaced by a reconnect must not tear down the live
		// membership of its successor.
		if c.hub.Unregister(c) {
			c.relay.HandleLeave(c.SessionID, c.PeerID)
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))

		switch msg.Event {
		case "join-room":
			if err := c.relay.HandleJoin(c.SessionID, c.PeerID, c.Name); err != nil {
				c.sendError(err.Error())
			}

		case "signal":
			var payload SignalPayload
			if err := json.Unmarshal(msg.Data, &payload); err != nil || payload.Target == "" {
				c.sendError("signal requires a target peer")
				continue
			}
			// Delivery failure is not an error: the target left and the
			// originator's own timeout handling recovers.
			delivered := c.relay.RelaySignal(c.SessionID, c.PeerID, payload.Target, payload.Payload)
			if !delivered {
				c.logger.Debug("signal dropped",
					zap.String("session_id", c.SessionID.String()),
					zap.String("origin", c.PeerID),
					zap.String("target", payload.Target),
				)
			}

		case "transcript-fragment":
			var frag fragmentData
			if err := json.Unmarshal(msg.Data, &frag); err != nil {
				continue
			}
			speaker := frag.Speaker
			if speaker == "" {
				speaker = c.Name
			}
			producedAt := time.Now()
			if frag.ProducedAt > 0 {
				producedAt = time.UnixMilli(frag.ProducedAt)
			}
			// Persist off the read loop: a slow store must not delay the
			// signal events queued behind this message. The aggregator is
			// additive and orders by produced-at, so arrival order is free
			// to change.
			go func(speaker, text string, producedAt time.Time) {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := c.appender.Append(ctx, c.SessionID, speaker, text, producedAt); err != nil {
					c.logger.Warn("transcript append failed",
						zap.String("session_id", c.SessionID.String()),
						zap.Error(err),
					)
				}
			}(speaker, frag.Text, producedAt)

		default:
			// ignore
		}
	}
}

func (c *Client) sendError(message string) {
	data, _ := json.Marshal(gin.H{"message": message})
	select {
	case c.send <- WSMessage{Event: EventError, Data: data}:
	default:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
