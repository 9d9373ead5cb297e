package clientstate

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/npezzotti/go-chatsync/internal/types"
)

// Op is one input to Reduce. Local ops are applied optimistically; the
// rest mirror server push events.
type Op interface {
	isOp()
}

// Local ops.
type (
	RoomsLoaded struct {
		Rooms []types.RoomSummary
	}
	// MessagesLoaded is the newest page of a room. Truncated means older
	// messages may exist beyond it.
	MessagesLoaded struct {
		RoomId    int
		Messages  []types.Message
		Truncated bool
	}
	RoomOpened struct {
		RoomId int
	}
	RoomClosed struct{}
	MessagePending struct {
		RoomId  int
		Nonce   string
		Content string
		Type    types.MessageType
		At      time.Time
	}
	MessageFailed struct {
		RoomId int
		Nonce  string
	}
	TypingTick struct {
		Now time.Time
	}
)

// Authoritative ops.
type (
	MessageReceived struct {
		Message types.Message
	}
	MessageEdited struct {
		Message types.Message
	}
	MessageDeleted struct {
		Deleted types.MessageDeleted
	}
	MessageReacted struct {
		State types.ReactionState
	}
	RoomUpdated struct {
		Room types.RoomSummary
	}
	RoomLeft struct {
		RoomId int
	}
	PresenceChanged struct {
		Presence types.PresenceChanged
	}
	TypingChanged struct {
		Typing types.TypingChanged
		At     time.Time
	}
	MessageRead struct {
		Read types.MessageRead
	}
	ReadReceipt struct {
		Receipt types.MessageReadReceipt
	}
)

func (RoomsLoaded) isOp()     {}
func (MessagesLoaded) isOp()  {}
func (RoomOpened) isOp()      {}
func (RoomClosed) isOp()      {}
func (MessagePending) isOp()  {}
func (MessageFailed) isOp()   {}
func (TypingTick) isOp()      {}
func (MessageReceived) isOp() {}
func (MessageEdited) isOp()   {}
func (MessageDeleted) isOp()  {}
func (MessageReacted) isOp()  {}
func (RoomUpdated) isOp()     {}
func (RoomLeft) isOp()        {}
func (PresenceChanged) isOp() {}
func (TypingChanged) isOp()   {}
func (MessageRead) isOp()     {}
func (ReadReceipt) isOp()     {}

// DecodeEvent turns a pushed frame into its op. Frames that carry a
// response instead of an event return a nil Op.
func DecodeEvent(msg types.ServerMessage, at time.Time) (Op, error) {
	if msg.Event == "" {
		return nil, nil
	}

	var (
		op  Op
		err error
	)
	switch msg.Event {
	case types.EventMessageReceived:
		var m types.Message
		err = json.Unmarshal(msg.Data, &m)
		op = MessageReceived{Message: m}
	case types.EventMessageEdited:
		var m types.Message
		err = json.Unmarshal(msg.Data, &m)
		op = MessageEdited{Message: m}
	case types.EventMessageDeleted:
		var d types.MessageDeleted
		err = json.Unmarshal(msg.Data, &d)
		op = MessageDeleted{Deleted: d}
	case types.EventMessageReacted:
		var rs types.ReactionState
		err = json.Unmarshal(msg.Data, &rs)
		op = MessageReacted{State: rs}
	case types.EventRoomUpdated:
		var r types.RoomSummary
		err = json.Unmarshal(msg.Data, &r)
		op = RoomUpdated{Room: r}
	case types.EventRoomLeft:
		var rl types.RoomLeft
		err = json.Unmarshal(msg.Data, &rl)
		op = RoomLeft{RoomId: rl.RoomId}
	case types.EventPresenceChanged:
		var p types.PresenceChanged
		err = json.Unmarshal(msg.Data, &p)
		op = PresenceChanged{Presence: p}
	case types.EventTypingChanged:
		var tc types.TypingChanged
		err = json.Unmarshal(msg.Data, &tc)
		op = TypingChanged{Typing: tc, At: at}
	case types.EventMessageRead:
		var mr types.MessageRead
		err = json.Unmarshal(msg.Data, &mr)
		op = MessageRead{Read: mr}
	case types.EventMessageReadReceipt:
		var rr types.MessageReadReceipt
		err = json.Unmarshal(msg.Data, &rr)
		op = ReadReceipt{Receipt: rr}
	default:
		return nil, fmt.Errorf("unknown event %q", msg.Event)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", msg.Event, err)
	}
	return op, nil
}
