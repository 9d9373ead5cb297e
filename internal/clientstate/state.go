// Package clientstate keeps a client's view of its rooms consistent with
// the server. Local optimistic ops and pushed events are both folded into
// a State by Reduce, one op at a time, on a single goroutine.
package clientstate

import (
	"sort"
	"time"

	"github.com/npezzotti/go-chatsync/internal/types"
)

type DeliveryStatus string

const (
	StatusSending DeliveryStatus = "sending"
	StatusSent    DeliveryStatus = "sent"
	StatusRead    DeliveryStatus = "read"
	StatusFailed  DeliveryStatus = "failed"
)

// MessageView is a message plus the state only this client tracks.
// Pending messages have no server id yet and are matched by nonce.
type MessageView struct {
	types.Message
	DeliveryStatus DeliveryStatus
	IsReadByMe     bool
	Pending        bool
}

type TypingEntry struct {
	UserName string
	Since    time.Time
}

type RoomState struct {
	Summary  types.RoomSummary
	Messages []MessageView
	Typing   map[int]TypingEntry

	// countedThrough is the newest message id the server had already
	// included in Summary.UnreadCount.
	countedThrough int
}

// TypingUsers returns the ids of users typing in the room, ascending.
func (r RoomState) TypingUsers() []int {
	ids := make([]int, 0, len(r.Typing))
	for id := range r.Typing {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (r RoomState) message(id int) (int, bool) {
	for i := range r.Messages {
		if !r.Messages[i].Pending && r.Messages[i].Id == id {
			return i, true
		}
	}
	return -1, false
}

func (r RoomState) pending(nonce string) (int, bool) {
	if nonce == "" {
		return -1, false
	}
	for i := range r.Messages {
		if r.Messages[i].Pending && r.Messages[i].ClientNonce == nonce {
			return i, true
		}
	}
	return -1, false
}

func (r RoomState) clone() RoomState {
	c := r
	c.Messages = append([]MessageView(nil), r.Messages...)
	c.Typing = make(map[int]TypingEntry, len(r.Typing))
	for k, v := range r.Typing {
		c.Typing[k] = v
	}
	return c
}

// State is an immutable snapshot. Reduce never modifies the State it is
// given.
type State struct {
	Me            int
	OpenRoomId    int
	TypingTimeout time.Duration
	Rooms         map[int]RoomState
	// Order lists room ids by most recent activity, newest first.
	Order  []int
	Online map[int]bool
}

func NewState(me int, typingTimeout time.Duration) State {
	return State{
		Me:            me,
		TypingTimeout: typingTimeout,
		Rooms:         make(map[int]RoomState),
		Online:        make(map[int]bool),
	}
}

// RoomList returns the room summaries in display order.
func (s State) RoomList() []types.RoomSummary {
	out := make([]types.RoomSummary, 0, len(s.Order))
	for _, id := range s.Order {
		out = append(out, s.Rooms[id].Summary)
	}
	return out
}

func (s State) Room(id int) (RoomState, bool) {
	r, ok := s.Rooms[id]
	return r, ok
}

func (s State) clone() State {
	c := s
	c.Rooms = make(map[int]RoomState, len(s.Rooms))
	for k, v := range s.Rooms {
		c.Rooms[k] = v
	}
	c.Order = append([]int(nil), s.Order...)
	c.Online = make(map[int]bool, len(s.Online))
	for k, v := range s.Online {
		c.Online[k] = v
	}
	return c
}

func (s *State) sortRooms() {
	summaries := make([]types.RoomSummary, 0, len(s.Rooms))
	for _, r := range s.Rooms {
		summaries = append(summaries, r.Summary)
	}
	types.SortRooms(summaries)

	s.Order = s.Order[:0]
	for _, r := range summaries {
		s.Order = append(s.Order, r.Id)
	}
}

func sortMessages(msgs []MessageView) {
	sort.SliceStable(msgs, func(i, j int) bool {
		a, b := msgs[i], msgs[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		// pending sends have no id and stay after confirmed messages
		if a.Pending != b.Pending {
			return b.Pending
		}
		return a.Id < b.Id
	})
}
