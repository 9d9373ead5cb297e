package server

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/npezzotti/go-chatsync/internal/chat"
	"github.com/npezzotti/go-chatsync/internal/presence"
	"github.com/npezzotti/go-chatsync/internal/stats"
	"github.com/npezzotti/go-chatsync/internal/types"
	"golang.org/x/time/rate"
)

const (
	DefaultSendQueueSize = 256
	DefaultTypingBurst   = 3
	defaultTypingEvery   = 300 * time.Millisecond
)

type Options struct {
	// SendQueueSize bounds the outbound frames buffered per connection.
	SendQueueSize int
	TypingRate    rate.Limit
	TypingBurst   int
}

type stopReq struct {
	done chan struct{}
}

// ChatServer owns the live connections of this instance and the presence
// and typing state derived from them.
type ChatServer struct {
	log      hclog.Logger
	engine   *chat.Engine
	router   *Router
	presence *presence.Tracker
	typing   *presence.Typing
	stats    stats.StatsProvider
	opts     Options

	clientsLock sync.RWMutex
	clients     map[*Client]struct{}
	userMap     map[int]map[*Client]struct{}

	registerChan   chan *Client
	deRegisterChan chan *Client
	stop           chan stopReq
	done           chan struct{}
}

func NewChatServer(logger hclog.Logger, engine *chat.Engine, router *Router, tracker *presence.Tracker,
	typing *presence.Typing, su stats.StatsProvider, opts Options) (*ChatServer, error) {
	if opts.SendQueueSize <= 0 {
		opts.SendQueueSize = DefaultSendQueueSize
	}
	if opts.TypingRate <= 0 {
		opts.TypingRate = rate.Every(defaultTypingEvery)
	}
	if opts.TypingBurst <= 0 {
		opts.TypingBurst = DefaultTypingBurst
	}

	cs := &ChatServer{
		log:            logger.Named("chatserver"),
		engine:         engine,
		router:         router,
		presence:       tracker,
		typing:         typing,
		stats:          su,
		opts:           opts,
		clients:        make(map[*Client]struct{}),
		userMap:        make(map[int]map[*Client]struct{}),
		registerChan:   make(chan *Client),
		deRegisterChan: make(chan *Client),
		stop:           make(chan stopReq),
		done:           make(chan struct{}),
	}
	router.conns = cs

	su.RegisterMetric(stats.ActiveConnections)
	su.RegisterMetric(stats.OnlineUsers)

	return cs, nil
}

func (cs *ChatServer) Run() {
	for {
		select {
		case client := <-cs.registerChan:
			cs.log.Debug("adding connection", "user", client.user.Username, "conn_id", client.id)
			cs.addClient(client)
		case client := <-cs.deRegisterChan:
			cs.log.Debug("removing connection", "user", client.user.Username, "conn_id", client.id)
			cs.removeClient(client)
		case req := <-cs.stop:
			cs.log.Info("stopping clients")
			cs.clientsLock.RLock()
			for c := range cs.clients {
				c.stopClient()
			}
			cs.clientsLock.RUnlock()

			cs.presence.Reset()
			cs.typing.Reset()

			close(cs.done)
			close(req.done)
			return
		}
	}
}

// Register hands c to the run loop. It returns false once the server has
// stopped.
func (cs *ChatServer) Register(c *Client) bool {
	select {
	case cs.registerChan <- c:
		return true
	case <-cs.done:
		return false
	}
}

func (cs *ChatServer) DeRegister(c *Client) {
	select {
	case cs.deRegisterChan <- c:
	case <-cs.done:
	}
}

func (cs *ChatServer) addClient(c *Client) {
	cs.clientsLock.Lock()
	cs.clients[c] = struct{}{}
	conns, ok := cs.userMap[c.user.Id]
	if !ok {
		conns = make(map[*Client]struct{})
		cs.userMap[c.user.Id] = conns
	}
	conns[c] = struct{}{}
	cs.clientsLock.Unlock()

	cs.stats.Incr(stats.ActiveConnections)

	if cs.presence.Connect(c.user, c.id, time.Now().UTC()) {
		cs.stats.Incr(stats.OnlineUsers)
		cs.router.Publish(types.GlobalEvent(types.EventPresenceChanged, c.user.Id, types.PresenceChanged{
			UserId:   c.user.Id,
			UserName: c.user.Username,
			Avatar:   c.user.Avatar,
			IsOnline: true,
		}))
	}
}

func (cs *ChatServer) removeClient(c *Client) {
	cs.clientsLock.Lock()
	if _, ok := cs.clients[c]; !ok {
		cs.clientsLock.Unlock()
		return
	}
	delete(cs.clients, c)
	if conns, ok := cs.userMap[c.user.Id]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(cs.userMap, c.user.Id)
		}
	}
	cs.clientsLock.Unlock()

	c.stopClient()
	cs.stats.Decr(stats.ActiveConnections)

	if cs.presence.Disconnect(c.user.Id, c.id) {
		cs.stats.Decr(stats.OnlineUsers)
		cs.router.Publish(types.GlobalEvent(types.EventPresenceChanged, c.user.Id, types.PresenceChanged{
			UserId:   c.user.Id,
			UserName: c.user.Username,
			Avatar:   c.user.Avatar,
			IsOnline: false,
		}))
		cs.EmitTyping(cs.typing.ClearUser(c.user.Id))
	}
}

func (cs *ChatServer) clientsOf(userId int) []*Client {
	cs.clientsLock.RLock()
	defer cs.clientsLock.RUnlock()

	conns := cs.userMap[userId]
	res := make([]*Client, 0, len(conns))
	for c := range conns {
		res = append(res, c)
	}
	return res
}

func (cs *ChatServer) userIds() []int {
	cs.clientsLock.RLock()
	defer cs.clientsLock.RUnlock()

	ids := make([]int, 0, len(cs.userMap))
	for id := range cs.userMap {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (cs *ChatServer) startTyping(roomId int, user types.User) {
	if cs.typing.Start(roomId, user.Id, user.Username) {
		cs.EmitTyping([]types.TypingChanged{{RoomId: roomId, UserId: user.Id, UserName: user.Username, IsTyping: true}})
	}
}

func (cs *ChatServer) stopTyping(roomId int, user types.User) {
	if cs.typing.Stop(roomId, user.Id) {
		cs.EmitTyping([]types.TypingChanged{{RoomId: roomId, UserId: user.Id, UserName: user.Username, IsTyping: false}})
	}
}

// EmitTyping publishes typing transitions to the other members of each room.
func (cs *ChatServer) EmitTyping(changes []types.TypingChanged) {
	for _, tc := range changes {
		ev := types.RoomEvent(types.EventTypingChanged, tc.RoomId, tc)
		ev.ExcludeUserId = tc.UserId
		cs.router.Publish(ev)
	}
}

// OnlineUsers lists the users connected to this instance.
func (cs *ChatServer) OnlineUsers() []types.OnlineUser {
	return cs.presence.Online()
}

// Typing lists the users currently typing in roomId.
func (cs *ChatServer) Typing(roomId int) []types.TypingChanged {
	return cs.typing.InRoom(roomId)
}

func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Info("received shutdown signal")

	req := stopReq{done: make(chan struct{})}
	select {
	case cs.stop <- req:
	case <-cs.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
