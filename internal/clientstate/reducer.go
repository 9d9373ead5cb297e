package clientstate

import (
	"time"

	"github.com/npezzotti/go-chatsync/internal/types"
)

// Reduce applies op to s and returns the resulting state. It is pure:
// the same state and op always produce the same result. Events that
// carry a server id are idempotent; repeated overwrites of one id keep
// the last one applied.
func Reduce(s State, op Op) State {
	next := s.clone()

	switch op := op.(type) {
	case RoomsLoaded:
		next.loadRooms(op.Rooms)
	case MessagesLoaded:
		next.updateRoom(op.RoomId, func(r *RoomState) bool {
			r.dropMissing(op.Messages, op.Truncated)
			for _, m := range op.Messages {
				r.upsertMessage(next.Me, m)
			}
			sortMessages(r.Messages)
			return false
		})
	case RoomOpened:
		next.OpenRoomId = op.RoomId
		next.updateRoom(op.RoomId, func(r *RoomState) bool {
			r.Summary.UnreadCount = 0
			return false
		})
	case RoomClosed:
		next.OpenRoomId = 0
	case MessagePending:
		next.updateRoom(op.RoomId, func(r *RoomState) bool {
			if _, ok := r.pending(op.Nonce); ok {
				return false
			}
			me := next.Me
			msgType := op.Type
			if msgType == "" {
				msgType = types.MessageTypeText
			}
			r.Messages = append(r.Messages, MessageView{
				Message: types.Message{
					RoomId:      op.RoomId,
					SenderId:    &me,
					Content:     op.Content,
					Type:        msgType,
					CreatedAt:   op.At,
					ClientNonce: op.Nonce,
				},
				DeliveryStatus: StatusSending,
				Pending:        true,
			})
			sortMessages(r.Messages)
			return false
		})
	case MessageFailed:
		next.updateRoom(op.RoomId, func(r *RoomState) bool {
			if i, ok := r.pending(op.Nonce); ok {
				r.Messages[i].DeliveryStatus = StatusFailed
			}
			return false
		})
	case TypingTick:
		for id, r := range next.Rooms {
			if len(r.Typing) == 0 {
				continue
			}
			r = r.clone()
			for userId, e := range r.Typing {
				if op.Now.Sub(e.Since) >= next.TypingTimeout {
					delete(r.Typing, userId)
				}
			}
			next.Rooms[id] = r
		}
	case MessageReceived:
		next.receive(op.Message)
	case MessageEdited:
		next.updateRoom(op.Message.RoomId, func(r *RoomState) bool {
			if i, ok := r.message(op.Message.Id); ok {
				r.Messages[i].Message = op.Message
			}
			return false
		})
	case MessageDeleted:
		next.updateRoom(op.Deleted.RoomId, func(r *RoomState) bool {
			if i, ok := r.message(op.Deleted.MessageId); ok {
				r.Messages[i].IsDeleted = op.Deleted.IsDeleted
				r.Messages[i].Content = types.DeletedPlaceholder
				r.Messages[i].AttachmentUrl = nil
				r.Messages[i].Reactions = nil
			}
			return false
		})
	case MessageReacted:
		next.updateRoom(op.State.RoomId, func(r *RoomState) bool {
			if i, ok := r.message(op.State.MessageId); ok {
				r.Messages[i].Reactions = append([]types.Reaction(nil), op.State.Reactions...)
			}
			return false
		})
	case RoomUpdated:
		room := op.Room
		if room.Id == next.OpenRoomId {
			room.UnreadCount = 0
		}
		r, ok := next.Rooms[room.Id]
		if ok {
			r = r.clone()
		} else {
			r = RoomState{Typing: make(map[int]TypingEntry)}
		}
		r.Summary = room
		r.countedThrough = room.LastMessageId
		next.Rooms[room.Id] = r
		next.sortRooms()
	case RoomLeft:
		if _, ok := next.Rooms[op.RoomId]; ok {
			delete(next.Rooms, op.RoomId)
			next.sortRooms()
		}
		if next.OpenRoomId == op.RoomId {
			next.OpenRoomId = 0
		}
	case PresenceChanged:
		if op.Presence.IsOnline {
			next.Online[op.Presence.UserId] = true
		} else {
			delete(next.Online, op.Presence.UserId)
		}
	case TypingChanged:
		tc := op.Typing
		if tc.UserId == next.Me {
			break
		}
		next.updateRoom(tc.RoomId, func(r *RoomState) bool {
			if tc.IsTyping {
				r.Typing[tc.UserId] = TypingEntry{UserName: tc.UserName, Since: op.At}
			} else {
				delete(r.Typing, tc.UserId)
			}
			return false
		})
	case MessageRead:
		next.updateRoom(op.Read.RoomId, func(r *RoomState) bool {
			if i, ok := r.message(op.Read.MessageId); ok && r.Messages[i].SentBy(next.Me) {
				r.Messages[i].DeliveryStatus = StatusRead
			}
			return false
		})
	case ReadReceipt:
		next.updateRoom(op.Receipt.RoomId, func(r *RoomState) bool {
			if i, ok := r.message(op.Receipt.MessageId); ok {
				r.Messages[i].IsReadByMe = true
			}
			return false
		})
	default:
		return s
	}

	return next
}

// Replay folds ops over a fresh state.
func Replay(me int, typingTimeout time.Duration, ops []Op) State {
	s := NewState(me, typingTimeout)
	for _, op := range ops {
		s = Reduce(s, op)
	}
	return s
}

// updateRoom applies fn to a copy of room id, if known. fn reports
// whether the room list must be re-sorted.
func (s *State) updateRoom(id int, fn func(r *RoomState) bool) {
	r, ok := s.Rooms[id]
	if !ok {
		return
	}
	r = r.clone()
	resort := fn(&r)
	s.Rooms[id] = r
	if resort {
		s.sortRooms()
	}
}

func (s *State) loadRooms(rooms []types.RoomSummary) {
	loaded := make(map[int]RoomState, len(rooms))
	for _, summary := range rooms {
		r, ok := s.Rooms[summary.Id]
		if ok {
			r = r.clone()
		} else {
			r = RoomState{Typing: make(map[int]TypingEntry)}
		}
		if summary.Id == s.OpenRoomId {
			summary.UnreadCount = 0
		}
		r.Summary = summary
		r.countedThrough = summary.LastMessageId
		loaded[summary.Id] = r
	}
	s.Rooms = loaded
	if _, ok := s.Rooms[s.OpenRoomId]; !ok {
		s.OpenRoomId = 0
	}
	s.sortRooms()
}

func (s *State) receive(m types.Message) {
	me := s.Me
	open := s.OpenRoomId
	s.updateRoom(m.RoomId, func(r *RoomState) bool {
		// a duplicate delivery must not undo a later edit
		if _, ok := r.message(m.Id); ok {
			return false
		}
		if !r.upsertMessage(me, m) {
			return false
		}
		sortMessages(r.Messages)

		if !m.SentBy(me) && m.RoomId != open && m.Id > r.countedThrough {
			r.Summary.UnreadCount++
		}
		if r.Summary.LastMessageTime == nil || !m.CreatedAt.Before(*r.Summary.LastMessageTime) {
			at := m.CreatedAt
			if m.Id > r.Summary.LastMessageId {
				r.Summary.LastMessageId = m.Id
			}
			r.Summary.LastMessage = m.Content
			r.Summary.LastMessageTime = &at
			r.Summary.LastSenderName = m.SenderName
		}
		return true
	})
}

// dropMissing removes confirmed messages that page should contain but
// does not, which are the ones deleted on the server. The page spans from
// its newest id down to its oldest, or to the start of the room when it is
// not truncated. Pending sends and newer messages are kept.
func (r *RoomState) dropMissing(page []types.Message, truncated bool) {
	if len(page) == 0 {
		return
	}

	present := make(map[int]bool, len(page))
	lo, hi := page[0].Id, page[0].Id
	for _, m := range page {
		present[m.Id] = true
		lo, hi = min(lo, m.Id), max(hi, m.Id)
	}

	kept := make([]MessageView, 0, len(r.Messages))
	for _, m := range r.Messages {
		covered := m.Id <= hi && (m.Id >= lo || !truncated)
		if m.Pending || present[m.Id] || !covered {
			kept = append(kept, m)
		}
	}
	r.Messages = kept
}

// upsertMessage stores m, replacing a confirmed copy with the same id or
// the pending send with the same nonce. It reports whether the id was not
// confirmed before.
func (r *RoomState) upsertMessage(me int, m types.Message) bool {
	if i, ok := r.message(m.Id); ok {
		view := r.Messages[i]
		view.Message = m
		r.Messages[i] = view
		return false
	}

	view := MessageView{Message: m}
	if m.SentBy(me) {
		view.DeliveryStatus = StatusSent
	}

	if i, ok := r.pending(m.ClientNonce); ok {
		r.Messages[i] = view
		return true
	}

	r.Messages = append(r.Messages, view)
	return true
}
