package messaging

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jwhector/yggdrasil/internal/domain/conductor"
	"github.com/jwhector/yggdrasil/internal/domain/entities/show"
	"github.com/jwhector/yggdrasil/internal/infrastructure/observability/logging"
	"github.com/jwhector/yggdrasil/pkg/config"
)

// wireMessage is the envelope every outbound websocket frame carries.
type wireMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// clientCommand is the envelope an inbound websocket frame is decoded from.
// A "join" frame (spec §6's `join {..., lastVersion}` message kind) is a
// resync request handled by the gateway directly; every other type is
// forwarded to the Conductor as a command.
type clientCommand struct {
	Type          string        `json:"type"`
	SeatID        string        `json:"seatId,omitempty"`
	Text          string        `json:"text,omitempty"`
	RowIndex      int           `json:"rowIndex,omitempty"`
	FactionVote   show.OptionID `json:"factionVote,omitempty"`
	PersonalVote  show.OptionID `json:"personalVote,omitempty"`
	PreserveUsers bool          `json:"preserveUsers,omitempty"`
	LastVersion   uint64        `json:"lastVersion,omitempty"`
}

// joinFrameType is the client->server message kind used both at initial
// connect (as a query parameter, see Connect) and for a mid-session resync
// request sent over an already-open socket.
const joinFrameType = "join"

// Client is one websocket connection, tagged with the role it authenticated
// as at handshake time (spec §6).
//
// ackedVersion and lastPayload are bookkeeping the Gateway uses to decide
// between a full snapshot and a delta (spec §4.4, §4.6, S6); both are only
// ever touched from the Hub's single Run goroutine, never from readPump.
type Client struct {
	conn   *websocket.Conn
	hub    *Hub
	logger *logging.ChanneledLogger

	userID show.UserID
	mode   conductor.ConnectionMode
	send   chan wireMessage

	ackedVersion uint64
	lastPayload  any
}

// NewClient wraps an upgraded websocket connection for the given role and
// user. lastVersion is whatever version the client claims to have last seen
// (0 if none), taken from the `lastVersion` query parameter at connect time.
func NewClient(conn *websocket.Conn, hub *Hub, logger *logging.ChanneledLogger, userID show.UserID, mode conductor.ConnectionMode, lastVersion uint64) *Client {
	return &Client{
		conn:         conn,
		hub:          hub,
		logger:       logger,
		userID:       userID,
		mode:         mode,
		send:         make(chan wireMessage, 16),
		ackedVersion: lastVersion,
	}
}

// Run starts the read and write pumps and blocks until the connection closes.
func (c *Client) Run() {
	c.hub.Register(c)
	go c.writePump()
	c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.hub.Submit(conductor.Command{
			Type:      conductor.CmdDisconnect,
			UserID:    c.userID,
			Timestamp: time.Now(),
			Origin:    c.mode,
		})
		c.conn.Close()
	}()

	c.conn.SetReadLimit(config.MaxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(config.PongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(config.PongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Gateway().Debug("websocket read error", "error", err.Error(), "userId", c.userID)
			}
			return
		}

		var msg clientCommand
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.send <- wireMessage{Type: "error", Payload: map[string]string{"code": string(conductor.CodeMalformedCommand), "message": "could not parse command"}}
			continue
		}

		if msg.Type == joinFrameType {
			c.hub.Resync(c, msg.LastVersion)
			continue
		}

		cmd := c.toCommand(msg)
		c.hub.Submit(cmd)
	}
}

func (c *Client) toCommand(msg clientCommand) conductor.Command {
	return conductor.Command{
		Type:          conductor.CommandType(msg.Type),
		Timestamp:     time.Now(),
		Origin:        c.mode,
		UserID:        c.userID,
		SeatID:        msg.SeatID,
		Text:          msg.Text,
		RowIndex:      msg.RowIndex,
		FactionVote:   msg.FactionVote,
		PersonalVote:  msg.PersonalVote,
		PreserveUsers: msg.PreserveUsers,
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(config.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// forceClose sends a force_reconnect message and closes the connection after
// config.ReconnectGraceMs, used by FORCE_RECONNECT_ALL (spec §4.3).
func (c *Client) forceClose() {
	select {
	case c.send <- wireMessage{Type: "force_reconnect", Payload: map[string]int{"graceMs": config.ReconnectGraceMs}}:
	default:
	}
	time.AfterFunc(time.Duration(config.ReconnectGraceMs)*time.Millisecond, func() {
		c.conn.Close()
	})
}
