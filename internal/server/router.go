package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	lru "github.com/hashicorp/golang-lru"
	"github.com/npezzotti/go-chatsync/internal/broker"
	"github.com/npezzotti/go-chatsync/internal/stats"
	"github.com/npezzotti/go-chatsync/internal/types"
)

const (
	defaultShards      = 16
	defaultShardQueue  = 1024
	defaultMemberCache = 4096
	publishTimeout     = 5 * time.Second
)

// MemberSource resolves the current members of a room.
type MemberSource interface {
	ListMemberIds(ctx context.Context, roomId int) ([]int, error)
}

// connections is the set of live websocket clients on this instance.
type connections interface {
	clientsOf(userId int) []*Client
	userIds() []int
}

// Router resolves recipients for committed events and writes them to
// every matching connection. Events are sharded by room id and each shard
// is drained by one worker, so one recipient sees a room's events in the
// order they were published.
type Router struct {
	log     hclog.Logger
	broker  broker.Broker
	members MemberSource
	cache   *memberCache
	stats   stats.StatsProvider
	conns   connections

	mu     sync.RWMutex
	closed bool
	shards []chan types.Event
	wg     sync.WaitGroup
}

type RouterOptions struct {
	Shards          int
	ShardQueueSize  int
	MemberCacheSize int
}

func NewRouter(logger hclog.Logger, b broker.Broker, members MemberSource, su stats.StatsProvider, opts RouterOptions) (*Router, error) {
	if opts.Shards <= 0 {
		opts.Shards = defaultShards
	}
	if opts.ShardQueueSize <= 0 {
		opts.ShardQueueSize = defaultShardQueue
	}
	if opts.MemberCacheSize <= 0 {
		opts.MemberCacheSize = defaultMemberCache
	}

	cache, err := newMemberCache(opts.MemberCacheSize)
	if err != nil {
		return nil, err
	}

	r := &Router{
		log:     logger.Named("router"),
		broker:  b,
		members: members,
		cache:   cache,
		stats:   su,
		shards:  make([]chan types.Event, opts.Shards),
	}
	for i := range r.shards {
		r.shards[i] = make(chan types.Event, opts.ShardQueueSize)
	}

	su.RegisterMetric(stats.EventsDelivered)
	su.RegisterMetric(stats.EventsDropped)
	su.RegisterMetric(stats.SlowConsumerDisconnects)

	return r, nil
}

// Start launches the shard workers and subscribes to the broker.
func (r *Router) Start(ctx context.Context) error {
	for _, ch := range r.shards {
		r.wg.Add(1)
		go r.runShard(ch)
	}
	return r.broker.Start(ctx, r.handle)
}

// Publish hands events to the broker. Failures are logged and never
// reported to the caller.
func (r *Router) Publish(events ...types.Event) {
	for _, ev := range events {
		if ev.Timestamp.IsZero() {
			ev.Timestamp = types.Now()
		}

		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		err := r.broker.Publish(ctx, ev)
		cancel()
		if err != nil {
			r.log.Error("failed to publish event", "event", ev.Name, "room_id", ev.RoomId, "error", err)
		}
	}
}

// handle receives events from the broker and queues them on their shard.
func (r *Router) handle(ev types.Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return
	}

	idx := ev.RoomId % len(r.shards)
	if idx < 0 {
		idx = -idx
	}
	r.shards[idx] <- ev
}

func (r *Router) runShard(ch chan types.Event) {
	defer r.wg.Done()
	for ev := range ch {
		r.deliver(ev)
	}
}

func (r *Router) deliver(ev types.Event) {
	switch ev.Name {
	case types.EventRoomUpdated, types.EventRoomLeft:
		r.cache.invalidate(ev.RoomId)
	}

	if r.conns == nil {
		return
	}

	recipients, err := r.recipients(ev)
	if err != nil {
		r.log.Error("failed to resolve recipients", "event", ev.Name, "room_id", ev.RoomId, "error", err)
		return
	}

	frame, err := encodeEvent(ev)
	if err != nil {
		r.log.Error("failed to encode event", "event", ev.Name, "error", err)
		return
	}

	reliable := ev.Name.Reliable()
	for _, userId := range recipients {
		if userId == ev.ExcludeUserId {
			continue
		}
		for _, c := range r.conns.clientsOf(userId) {
			if c.deliver(frame, reliable) {
				r.stats.Incr(stats.EventsDelivered)
			}
		}
	}
}

func (r *Router) recipients(ev types.Event) ([]int, error) {
	switch ev.Scope {
	case types.ScopeRoom:
		return r.roomMembers(ev.RoomId)
	case types.ScopeUsers:
		return ev.UserIds, nil
	case types.ScopeGlobal:
		return r.conns.userIds(), nil
	default:
		return nil, nil
	}
}

func (r *Router) roomMembers(roomId int) ([]int, error) {
	ids, epoch, ok := r.cache.get(roomId)
	if ok {
		return ids, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	ids, err := r.members.ListMemberIds(ctx, roomId)
	if err != nil {
		return nil, err
	}
	r.cache.add(roomId, ids, epoch)
	return ids, nil
}

// IsMember reports whether userId currently belongs to roomId.
func (r *Router) IsMember(roomId, userId int) (bool, error) {
	ids, err := r.roomMembers(roomId)
	if err != nil {
		return false, err
	}
	for _, id := range ids {
		if id == userId {
			return true, nil
		}
	}
	return false, nil
}

// Close stops accepting events, drains queued ones and closes the broker.
func (r *Router) Close() error {
	err := r.broker.Close()

	r.mu.Lock()
	if !r.closed {
		r.closed = true
		for _, ch := range r.shards {
			close(ch)
		}
	}
	r.mu.Unlock()

	r.wg.Wait()
	return err
}

// memberCache holds room member ids. Every invalidation bumps epoch, and a
// lookup that started before an invalidation is not stored, since its
// read may predate the membership change.
type memberCache struct {
	mu    sync.Mutex
	lru   *lru.Cache
	epoch uint64
}

func newMemberCache(size int) (*memberCache, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &memberCache{lru: c}, nil
}

func (c *memberCache) get(roomId int) ([]int, uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.lru.Get(roomId); ok {
		return v.([]int), c.epoch, true
	}
	return nil, c.epoch, false
}

func (c *memberCache) add(roomId int, ids []int, epoch uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if epoch == c.epoch {
		c.lru.Add(roomId, ids)
	}
}

func (c *memberCache) invalidate(roomId int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.epoch++
	c.lru.Remove(roomId)
}

func encodeEvent(ev types.Event) ([]byte, error) {
	data, err := json.Marshal(ev.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(&types.ServerMessage{
		BaseMessage: types.BaseMessage{Timestamp: ev.Timestamp},
		Event:       ev.Name,
		RoomId:      ev.RoomId,
		Data:        data,
	})
}
