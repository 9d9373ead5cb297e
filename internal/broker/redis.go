package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/npezzotti/go-chatsync/internal/types"
	"github.com/redis/go-redis/v9"
)

const DefaultChannel = "gochat:events"

// wireEvent is an Event with its payload already encoded, so relayed
// payloads are forwarded to connections without a decode.
type wireEvent struct {
	Name          types.EventName `json:"name"`
	Scope         types.Scope     `json:"scope"`
	RoomId        int             `json:"room_id,omitempty"`
	UserIds       []int           `json:"user_ids,omitempty"`
	ExcludeUserId int             `json:"exclude_user_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
	Timestamp     time.Time       `json:"timestamp"`
}

func encodeEvent(ev types.Event) ([]byte, error) {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return json.Marshal(wireEvent{
		Name:          ev.Name,
		Scope:         ev.Scope,
		RoomId:        ev.RoomId,
		UserIds:       ev.UserIds,
		ExcludeUserId: ev.ExcludeUserId,
		Payload:       payload,
		Timestamp:     ev.Timestamp,
	})
}

func decodeEvent(data []byte) (types.Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return types.Event{}, err
	}
	return types.Event{
		Name:          w.Name,
		Scope:         w.Scope,
		RoomId:        w.RoomId,
		UserIds:       w.UserIds,
		ExcludeUserId: w.ExcludeUserId,
		Payload:       w.Payload,
		Timestamp:     w.Timestamp,
	}, nil
}

// Redis fans events out to every instance subscribed to the same channel.
// A single subscription connection keeps publish order per publisher.
type Redis struct {
	client  *redis.Client
	channel string
	sub     *redis.PubSub
	done    chan struct{}
	log     hclog.Logger
}

func NewRedis(addr, channel string, logger hclog.Logger) *Redis {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Redis{
		client:  redis.NewClient(&redis.Options{Addr: addr}),
		channel: channel,
		done:    make(chan struct{}),
		log:     logger.Named("redis-broker"),
	}
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Publish(ctx context.Context, ev types.Event) error {
	data, err := encodeEvent(ev)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, data).Err()
}

// Start subscribes and relays received events to handler until Close.
func (r *Redis) Start(ctx context.Context, handler Handler) error {
	r.sub = r.client.Subscribe(ctx, r.channel)
	if _, err := r.sub.Receive(ctx); err != nil {
		r.sub.Close()
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}

	go func() {
		defer close(r.done)
		for msg := range r.sub.Channel() {
			ev, err := decodeEvent([]byte(msg.Payload))
			if err != nil {
				r.log.Error("dropping malformed event", "error", err)
				continue
			}
			handler(ev)
		}
	}()

	r.log.Info("subscribed", "channel", r.channel)
	return nil
}

func (r *Redis) Close() error {
	var err error
	if r.sub != nil {
		err = r.sub.Close()
		<-r.done
	}
	if cerr := r.client.Close(); err == nil {
		err = cerr
	}
	return err
}
