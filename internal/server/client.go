package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
	"github.com/npezzotti/go-chatsync/internal/stats"
	"github.com/npezzotti/go-chatsync/internal/types"
	"github.com/teris-io/shortid"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 1024
	readTimeout    = 5 * time.Second
)

type Client struct {
	id            string
	conn          *websocket.Conn
	chatServer    *ChatServer
	log           hclog.Logger
	user          types.User
	send          chan []byte
	typingLimiter *rate.Limiter
	stop          chan struct{}
	stopOnce      sync.Once
}

func NewClient(user types.User, conn *websocket.Conn, cs *ChatServer, l hclog.Logger) *Client {
	id := shortid.MustGenerate()
	return &Client{
		id:            id,
		conn:          conn,
		chatServer:    cs,
		log:           l.Named("client").With("conn_id", id, "user_id", user.Id),
		user:          user,
		send:          make(chan []byte, cs.opts.SendQueueSize),
		typingLimiter: rate.NewLimiter(cs.opts.TypingRate, cs.opts.TypingBurst),
		stop:          make(chan struct{}),
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Debug("write exiting")
	}()

	for {
		select {
		case frame := <-c.send:
			if !c.sendMessage(websocket.TextMessage, frame) {
				return
			}
		case <-c.stop:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
		c.log.Debug("read exiting")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Error("read failed", "error", err)
			}
			break
		}

		var msg types.ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Debug("error parsing message", "error", err)
			c.queueMessage(ErrInvalidMessage(-1))
			continue
		}

		switch {
		case msg.Typing != nil:
			c.handleTyping(&msg)
		case msg.Read != nil:
			c.handleRead(&msg)
		default:
			c.queueMessage(ErrInvalidMessage(msg.Id))
		}
	}
}

func (c *Client) handleTyping(msg *types.ClientMessage) {
	roomId := msg.Typing.RoomId

	ok, err := c.chatServer.router.IsMember(roomId, c.user.Id)
	if err != nil {
		c.log.Error("failed to check membership", "room_id", roomId, "error", err)
		c.ack(msg.Id, ErrInternalError(msg.Id))
		return
	}
	if !ok {
		c.ack(msg.Id, ErrForbidden(msg.Id))
		return
	}

	if msg.Typing.IsTyping {
		if !c.typingLimiter.Allow() {
			c.ack(msg.Id, ErrTooManyRequests(msg.Id))
			return
		}
		c.chatServer.startTyping(roomId, c.user)
	} else {
		c.chatServer.stopTyping(roomId, c.user)
	}

	c.ack(msg.Id, NoErrAccepted(msg.Id))
}

func (c *Client) handleRead(msg *types.ClientMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), readTimeout)
	defer cancel()

	err := c.chatServer.engine.MarkRead(ctx, c.user.Id, msg.Read.RoomId, msg.Read.MessageId)
	if err != nil {
		c.log.Debug("mark read failed", "room_id", msg.Read.RoomId, "error", err)
		c.ack(msg.Id, ErrFromEngine(msg.Id, err))
		return
	}

	c.ack(msg.Id, NoErrOK(msg.Id))
}

// ack answers a client frame. Frames without an id expect no reply.
func (c *Client) ack(id int, resp *types.ServerMessage) {
	if id <= 0 {
		return
	}
	c.queueMessage(resp)
}

// deliver queues a pre-encoded event frame. A full queue drops unreliable
// frames and disconnects the client otherwise.
func (c *Client) deliver(frame []byte, reliable bool) bool {
	select {
	case <-c.stop:
		return false
	default:
	}

	select {
	case c.send <- frame:
		return true
	default:
	}

	if !reliable {
		c.chatServer.stats.Incr(stats.EventsDropped)
		return false
	}

	c.log.Warn("send queue full, disconnecting slow consumer")
	c.chatServer.stats.Incr(stats.SlowConsumerDisconnects)
	c.stopClient()
	return false
}

func (c *Client) queueMessage(msg *types.ServerMessage) bool {
	bytes, err := serializeMessage(msg)
	if err != nil {
		c.log.Error("failed to serialize message", "error", err)
		return false
	}

	select {
	case c.send <- bytes:
	default:
		c.log.Warn("failed to send message to client, channel is full")
		return false
	}

	return true
}

func serializeMessage(msg *types.ServerMessage) ([]byte, error) {
	return json.Marshal(msg)
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Error("write message failed", "error", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Client) cleanup() {
	c.chatServer.DeRegister(c)
	c.stopClient()
}
