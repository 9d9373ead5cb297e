package types

import (
	"encoding/json"
	"time"
)

type EventName string

const (
	EventMessageReceived    EventName = "message_received"
	EventMessageEdited      EventName = "message_edited"
	EventMessageDeleted     EventName = "message_deleted"
	EventMessageReacted     EventName = "message_reacted"
	EventRoomUpdated        EventName = "room_updated"
	EventPresenceChanged    EventName = "presence_changed"
	EventTypingChanged      EventName = "typing_changed"
	EventMessageRead        EventName = "message_read"
	EventMessageReadReceipt EventName = "message_read_receipt"

	// EventRoomLeft tells the leaving user's own connections to drop a room.
	EventRoomLeft EventName = "room_left"
)

// Reliable reports whether the event must reach every active connection.
// Unreliable events may be dropped when a connection is backed up.
func (n EventName) Reliable() bool {
	return n != EventTypingChanged
}

type Scope string

const (
	// ScopeRoom delivers to every member of RoomId.
	ScopeRoom Scope = "room"
	// ScopeUsers delivers to the listed UserIds only.
	ScopeUsers Scope = "users"
	// ScopeGlobal delivers to every online user.
	ScopeGlobal Scope = "global"
)

// Event is a domain event emitted by a committed command and routed to
// its recipients. ExcludeUserId, when non-zero, is never delivered to.
type Event struct {
	Name          EventName `json:"name"`
	Scope         Scope     `json:"scope"`
	RoomId        int       `json:"room_id,omitempty"`
	UserIds       []int     `json:"user_ids,omitempty"`
	ExcludeUserId int       `json:"exclude_user_id,omitempty"`
	Payload       any       `json:"payload"`
	Timestamp     time.Time `json:"timestamp"`
}

func RoomEvent(name EventName, roomId int, payload any) Event {
	return Event{Name: name, Scope: ScopeRoom, RoomId: roomId, Payload: payload}
}

func UserEvent(name EventName, roomId int, userIds []int, payload any) Event {
	return Event{Name: name, Scope: ScopeUsers, RoomId: roomId, UserIds: userIds, Payload: payload}
}

func GlobalEvent(name EventName, excludeUserId int, payload any) Event {
	return Event{Name: name, Scope: ScopeGlobal, ExcludeUserId: excludeUserId, Payload: payload}
}

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ServerMessage is a frame written to a websocket connection. A frame
// carries either a pushed event or a response to a client frame.
type ServerMessage struct {
	BaseMessage
	Event    EventName       `json:"event,omitempty"`
	RoomId   int             `json:"room_id,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	Response *Response       `json:"response,omitempty"`
}

type Response struct {
	ResponseCode int    `json:"response_code"`
	Error        string `json:"error,omitempty"`
}

// ClientMessage is a frame read from a websocket connection.
type ClientMessage struct {
	BaseMessage
	Typing *Typing `json:"typing,omitempty"`
	Read   *Read   `json:"read,omitempty"`
}

type Typing struct {
	RoomId   int  `json:"room_id"`
	IsTyping bool `json:"is_typing"`
}

type Read struct {
	RoomId    int `json:"room_id"`
	MessageId int `json:"message_id"`
}

// Now returns the current time as used on the wire.
func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
