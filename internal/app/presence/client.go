/*
Package presence contains the core logic for tracking connected principals, room
membership, and relaying named events between live WebSocket connections.

This file defines the Client struct, representing an active WebSocket connection.
It manages the connection's lifecycle and message communication loops (ReadPump and
WritePump) and forwards inbound events to the Hub.
*/
package presence

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"gympulse/internal/pkg/logx"
	"gympulse/internal/pkg/randx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a message sent by the client.
	maxMessageSize = 8192

	// capacity of the per-client outbound queue. Events are dropped, not queued
	// indefinitely, when a slow client falls this far behind.
	sendChannelBuffer = 256
)

// Client struct represents an active WebSocket connection and its associated principal.
type Client struct {
	// the hub this connection is attached to.
	hub *Hub

	// underlying WebSocket connection object.
	conn *websocket.Conn

	// identity bound to this connection at handshake time.
	principal Principal

	// opaque connection handle, unique per connection instance.
	connID string

	// time the connection completed its handshake.
	connectedAt time.Time

	// a buffered channel used to queue messages waiting to be sent to the client.
	send chan []byte

	// closeOnce guards send against double close (disconnect racing shutdown).
	closeOnce sync.Once

	// structured logger with client context.
	logger zerolog.Logger
}

// NewClient constructs and returns a new Client instance bound to the given hub.
func NewClient(hub *Hub, wsConn *websocket.Conn, principal Principal) *Client {
	connID := randx.ConnectionID()

	clientLogger := logx.Logger().With().
		Str("user_id", principal.UserID).
		Str("conn_id", connID).
		Str("role", principal.Role).
		Logger()

	return &Client{
		hub:         hub,
		conn:        wsConn,
		principal:   principal,
		connID:      connID,
		connectedAt: time.Now(),
		send:        make(chan []byte, sendChannelBuffer),
		logger:      clientLogger,
	}
}

// Principal returns the identity bound to this connection.
func (c *Client) Principal() Principal {
	return c.principal
}

// ConnID returns the opaque connection handle.
func (c *Client) ConnID() string {
	return c.connID
}

// ConnectedAt returns the time the connection was established.
func (c *Client) ConnectedAt() time.Time {
	return c.connectedAt
}

// ReadPump handles reading messages from the WebSocket connection.
// It handles heartbeats (Pong), envelope parsing, and performs cleanup upon
// connection closure.
func (c *Client) ReadPump() {
	defer c.cleanupOnDisconnect()

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Error reading message (Client close/going away)")
			}
			break
		}

		c.processInboundMessage(messageBytes)
	}
}

// cleanupOnDisconnect handles the necessary cleanup steps when the client's ReadPump terminates.
func (c *Client) cleanupOnDisconnect() {
	c.logger.Info().Msg("Client connection cleanup starting.")

	c.hub.Unregister(c)

	if err := c.conn.Close(); err != nil {
		c.logger.Debug().Err(err).Msg("Client connection close error")
	}
}

// processInboundMessage parses a raw inbound frame into an Envelope and hands it
// to the hub loop. Malformed JSON is logged and dropped without affecting the
// connection.
func (c *Client) processInboundMessage(messageBytes []byte) {
	var envelope Envelope

	if err := json.Unmarshal(messageBytes, &envelope); err != nil {
		c.logger.Warn().Err(err).
			Bytes("message_bytes", messageBytes).
			Msg("Client sent invalid JSON")
		return
	}

	if envelope.Event == "" {
		c.logger.Warn().Msg("Client sent envelope without event name")
		return
	}

	c.hub.Dispatch(c, envelope.Event, envelope.Payload)
}

// WritePump handles writing messages from the Client.send channel to the WebSocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		// ensure the connection is closed on exit
		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Client connection close error in WritePump")
		}
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !c.writeQueuedMessage(message, ok) {
				return
			}

		case <-ticker.C:
			if !c.writePingMessage() {
				return
			}
		}
	}
}

// writeQueuedMessage handles messages pulled from the send channel, writing them to the WebSocket.
// Returns true if the WritePump loop should continue, false if it should terminate.
func (c *Client) writeQueuedMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if !ok {
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
			c.logger.Debug().Err(err).Msg("Error writing close message")
		}
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		c.logger.Error().Err(err).Msg("Error writing message")
		return false
	}

	return true
}

// writePingMessage sends a periodic WebSocket Ping message to maintain the connection heartbeat.
// Returns false if the WritePump loop should terminate due to write failure.
func (c *Client) writePingMessage() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Error().Err(err).Msg("Error writing ping")
		return false
	}

	return true
}

// SendEvent marshals the named event with its payload and queues it for delivery.
// Delivery is fire-and-forget: a full queue drops the event with a warning.
func (c *Client) SendEvent(event string, payload any) error {
	messageBytes, err := EncodeEvent(event, payload)
	if err != nil {
		c.logger.Error().Err(err).Str("event", event).Msg("Error marshaling event for client")
		return err
	}

	select {
	case c.send <- messageBytes:
		return nil
	default:
		c.logger.Warn().
			Str("event", event).
			Int("queue_len", len(c.send)).
			Msg("Client send channel full, dropping event")
		return fmt.Errorf("client send queue full")
	}
}

// enqueue queues pre-encoded bytes for delivery, dropping them if the client is
// too far behind. Used by the hub's broadcast paths so the envelope is encoded
// once per event, not once per recipient.
func (c *Client) enqueue(messageBytes []byte) {
	select {
	case c.send <- messageBytes:
	default:
		c.logger.Warn().
			Int("queue_len", len(c.send)).
			Msg("Client send channel full, dropping broadcast")
	}
}

// closeSend closes the outbound queue exactly once, signalling WritePump to
// finish with a close frame.
func (c *Client) closeSend() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}
