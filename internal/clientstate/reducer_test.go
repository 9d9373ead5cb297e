package clientstate

import (
	"testing"
	"time"

	"github.com/npezzotti/go-chatsync/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	me    = 1
	other = 2
)

var t0 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func room(id int, at time.Time) types.RoomSummary {
	return types.RoomSummary{Id: id, Name: "room", CreatedAt: at}
}

func msg(id, roomId, sender int, content string, at time.Time) types.Message {
	return types.Message{
		Id:         id,
		RoomId:     roomId,
		SenderId:   ptr(sender),
		SenderName: "user",
		Content:    content,
		Type:       types.MessageTypeText,
		CreatedAt:  at,
	}
}

func loaded(rooms ...types.RoomSummary) State {
	return Reduce(NewState(me, 5*time.Second), RoomsLoaded{Rooms: rooms})
}

func contents(r RoomState) []string {
	out := make([]string, 0, len(r.Messages))
	for _, m := range r.Messages {
		out = append(out, m.Content)
	}
	return out
}

func TestReduce_MessageReceivedDedupes(t *testing.T) {
	s := loaded(room(10, t0))
	m := msg(100, 10, other, "hi", t0.Add(time.Second))

	s = Reduce(s, MessageReceived{Message: m})
	s = Reduce(s, MessageReceived{Message: m})

	r, ok := s.Room(10)
	require.True(t, ok)
	assert.Len(t, r.Messages, 1, "expected duplicate delivery to be ignored")
	assert.Equal(t, 1, r.Summary.UnreadCount, "expected unread to count the message once")
	assert.Equal(t, "hi", r.Summary.LastMessage)
	require.NotNil(t, r.Summary.LastMessageTime)
	assert.True(t, m.CreatedAt.Equal(*r.Summary.LastMessageTime))
}

func TestReduce_UnreadRules(t *testing.T) {
	tcs := []struct {
		name   string
		sender int
		open   bool
		unread int
	}{
		{"other user closed room", other, false, 1},
		{"other user open room", other, true, 0},
		{"own message closed room", me, false, 0},
		{"own message open room", me, true, 0},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			s := loaded(room(10, t0))
			if tc.open {
				s = Reduce(s, RoomOpened{RoomId: 10})
			}
			s = Reduce(s, MessageReceived{Message: msg(1, 10, tc.sender, "x", t0.Add(time.Second))})
			assert.Equal(t, tc.unread, s.Rooms[10].Summary.UnreadCount)
		})
	}
}

func TestReduce_OpenRoomZeroesUnreadOptimistically(t *testing.T) {
	r := room(10, t0)
	r.UnreadCount = 4
	s := loaded(r)

	s = Reduce(s, RoomOpened{RoomId: 10})
	assert.Equal(t, 0, s.Rooms[10].Summary.UnreadCount)
	assert.Equal(t, 10, s.OpenRoomId)

	// a stale summary from the server does not bring the count back
	s = Reduce(s, RoomUpdated{Room: r})
	assert.Equal(t, 0, s.Rooms[10].Summary.UnreadCount)

	s = Reduce(s, RoomClosed{})
	s = Reduce(s, RoomUpdated{Room: r})
	assert.Equal(t, 4, s.Rooms[10].Summary.UnreadCount)
}

func TestReduce_MessagesOrdered(t *testing.T) {
	s := loaded(room(10, t0))
	s = Reduce(s, MessagesLoaded{RoomId: 10, Messages: []types.Message{
		msg(3, 10, other, "c", t0.Add(2*time.Second)),
		msg(2, 10, other, "b", t0.Add(time.Second)),
		msg(1, 10, other, "a", t0.Add(time.Second)),
	}})
	s = Reduce(s, MessageReceived{Message: msg(4, 10, other, "d", t0.Add(3*time.Second))})
	s = Reduce(s, MessagesLoaded{RoomId: 10, Truncated: true, Messages: []types.Message{
		msg(2, 10, other, "b", t0.Add(time.Second)),
	}})

	assert.Equal(t, []string{"a", "b", "c", "d"}, contents(s.Rooms[10]), "expected ascending time with id tie-break")
}

func TestReduce_OverwritesById(t *testing.T) {
	s := loaded(room(10, t0))
	s = Reduce(s, MessageReceived{Message: msg(1, 10, me, "hello", t0)})

	edited := msg(1, 10, me, "hello!", t0)
	edited.IsEdited = true
	s = Reduce(s, MessageEdited{Message: edited})
	assert.Equal(t, "hello!", s.Rooms[10].Messages[0].Content)
	assert.True(t, s.Rooms[10].Messages[0].IsEdited)

	// a late duplicate of the original does not revert the edit
	s = Reduce(s, MessageReceived{Message: msg(1, 10, me, "hello", t0)})
	assert.Equal(t, "hello!", s.Rooms[10].Messages[0].Content)

	s = Reduce(s, MessageReacted{State: types.ReactionState{
		MessageId: 1,
		RoomId:    10,
		Reactions: []types.Reaction{{Id: 1, UserId: other, Emoji: "👍"}},
	}})
	assert.Len(t, s.Rooms[10].Messages[0].Reactions, 1)

	s = Reduce(s, MessageReacted{State: types.ReactionState{MessageId: 1, RoomId: 10}})
	assert.Empty(t, s.Rooms[10].Messages[0].Reactions, "expected last reaction state to win")

	s = Reduce(s, MessageDeleted{Deleted: types.MessageDeleted{MessageId: 1, RoomId: 10, IsDeleted: true}})
	assert.True(t, s.Rooms[10].Messages[0].IsDeleted)
	assert.Equal(t, types.DeletedPlaceholder, s.Rooms[10].Messages[0].Content)
}

func TestReduce_RoomUpdatedSortsByActivity(t *testing.T) {
	s := loaded(room(1, t0), room(2, t0.Add(time.Minute)))
	assert.Equal(t, []int{2, 1}, s.Order)

	r1 := room(1, t0)
	r1.LastMessageTime = ptr(t0.Add(time.Hour))
	s = Reduce(s, RoomUpdated{Room: r1})
	assert.Equal(t, []int{1, 2}, s.Order)

	s = Reduce(s, RoomUpdated{Room: room(3, t0.Add(2*time.Hour))})
	assert.Equal(t, []int{3, 1, 2}, s.Order)

	s = Reduce(s, MessageReceived{Message: msg(9, 2, other, "bump", t0.Add(3*time.Hour))})
	assert.Equal(t, []int{2, 3, 1}, s.Order, "expected a new message to move its room to the top")

	assert.Equal(t, []types.RoomSummary{s.Rooms[2].Summary, s.Rooms[3].Summary, s.Rooms[1].Summary}, s.RoomList())
}

func TestReduce_RoomLeft(t *testing.T) {
	s := loaded(room(1, t0), room(2, t0))
	s = Reduce(s, RoomOpened{RoomId: 1})
	s = Reduce(s, RoomLeft{RoomId: 1})

	_, ok := s.Room(1)
	assert.False(t, ok)
	assert.Equal(t, []int{2}, s.Order)
	assert.Zero(t, s.OpenRoomId)
}

func TestReduce_Typing(t *testing.T) {
	s := loaded(room(10, t0))

	s = Reduce(s, TypingChanged{Typing: types.TypingChanged{RoomId: 10, UserId: other, UserName: "bob", IsTyping: true}, At: t0})
	s = Reduce(s, TypingChanged{Typing: types.TypingChanged{RoomId: 10, UserId: 3, UserName: "carol", IsTyping: true}, At: t0.Add(3 * time.Second)})
	s = Reduce(s, TypingChanged{Typing: types.TypingChanged{RoomId: 10, UserId: me, IsTyping: true}, At: t0})
	assert.Equal(t, []int{other, 3}, s.Rooms[10].TypingUsers(), "expected own typing to be ignored")

	s = Reduce(s, TypingTick{Now: t0.Add(5 * time.Second)})
	assert.Equal(t, []int{3}, s.Rooms[10].TypingUsers(), "expected silent typer to expire")

	s = Reduce(s, TypingChanged{Typing: types.TypingChanged{RoomId: 10, UserId: 3, IsTyping: false}, At: t0.Add(6 * time.Second)})
	assert.Empty(t, s.Rooms[10].TypingUsers())
}

func TestReduce_ReadReceiptsAreDirectional(t *testing.T) {
	s := loaded(room(10, t0))
	s = Reduce(s, MessageReceived{Message: msg(1, 10, me, "mine", t0)})
	s = Reduce(s, MessageReceived{Message: msg(2, 10, other, "theirs", t0.Add(time.Second))})
	assert.Equal(t, StatusSent, s.Rooms[10].Messages[0].DeliveryStatus)

	s = Reduce(s, MessageRead{Read: types.MessageRead{MessageId: 1, RoomId: 10, ReadBy: other}})
	s = Reduce(s, MessageRead{Read: types.MessageRead{MessageId: 2, RoomId: 10, ReadBy: other}})
	assert.Equal(t, StatusRead, s.Rooms[10].Messages[0].DeliveryStatus)
	assert.Empty(t, s.Rooms[10].Messages[1].DeliveryStatus, "expected read status only on own messages")
	assert.False(t, s.Rooms[10].Messages[0].IsReadByMe)

	s = Reduce(s, ReadReceipt{Receipt: types.MessageReadReceipt{MessageId: 2, RoomId: 10}})
	assert.True(t, s.Rooms[10].Messages[1].IsReadByMe)
	assert.Empty(t, s.Rooms[10].Messages[1].DeliveryStatus)
}

func TestReduce_PendingSendReconciles(t *testing.T) {
	s := loaded(room(10, t0))
	s = Reduce(s, MessagePending{RoomId: 10, Nonce: "n1", Content: "hey", At: t0})
	s = Reduce(s, MessagePending{RoomId: 10, Nonce: "n1", Content: "hey", At: t0})

	r := s.Rooms[10]
	require.Len(t, r.Messages, 1)
	assert.True(t, r.Messages[0].Pending)
	assert.Equal(t, StatusSending, r.Messages[0].DeliveryStatus)

	confirmed := msg(55, 10, me, "hey", t0.Add(time.Millisecond))
	confirmed.ClientNonce = "n1"
	s = Reduce(s, MessageReceived{Message: confirmed})
	s = Reduce(s, MessageReceived{Message: confirmed})

	r = s.Rooms[10]
	require.Len(t, r.Messages, 1, "expected the pending send to be replaced, not duplicated")
	assert.False(t, r.Messages[0].Pending)
	assert.Equal(t, 55, r.Messages[0].Id)
	assert.Equal(t, StatusSent, r.Messages[0].DeliveryStatus)
	assert.Equal(t, 0, r.Summary.UnreadCount)
	assert.Equal(t, "hey", r.Summary.LastMessage)

	s = Reduce(s, MessagePending{RoomId: 10, Nonce: "n2", Content: "lost", At: t0.Add(time.Second)})
	s = Reduce(s, MessageFailed{RoomId: 10, Nonce: "n2"})
	assert.Equal(t, StatusFailed, s.Rooms[10].Messages[1].DeliveryStatus)
}

func TestReduce_Presence(t *testing.T) {
	s := NewState(me, time.Second)
	s = Reduce(s, PresenceChanged{Presence: types.PresenceChanged{UserId: other, IsOnline: true}})
	assert.True(t, s.Online[other])

	s = Reduce(s, PresenceChanged{Presence: types.PresenceChanged{UserId: other, IsOnline: false}})
	assert.False(t, s.Online[other])
}

func TestReduce_DoesNotMutateInput(t *testing.T) {
	before := loaded(room(10, t0))
	before = Reduce(before, MessageReceived{Message: msg(1, 10, other, "a", t0)})

	after := Reduce(before, MessageReceived{Message: msg(2, 10, other, "b", t0.Add(time.Second))})
	after = Reduce(after, RoomLeft{RoomId: 10})

	assert.Len(t, before.Rooms[10].Messages, 1)
	assert.Equal(t, 1, before.Rooms[10].Summary.UnreadCount)
	assert.Equal(t, []int{10}, before.Order)
	assert.Empty(t, after.Rooms)
}

func TestReplay_IdempotentEventsCommute(t *testing.T) {
	base := []Op{RoomsLoaded{Rooms: []types.RoomSummary{room(10, t0)}}}
	a := MessageReceived{Message: msg(1, 10, other, "a", t0.Add(time.Second))}
	b := MessageReceived{Message: msg(2, 10, other, "b", t0.Add(2*time.Second))}

	s1 := Replay(me, time.Second, append(base, a, b, a))
	s2 := Replay(me, time.Second, append(base, b, a, b))

	assert.Equal(t, contents(s1.Rooms[10]), contents(s2.Rooms[10]))
	assert.Equal(t, s1.Rooms[10].Summary, s2.Rooms[10].Summary)
}

func TestReduce_UnknownRoomIgnored(t *testing.T) {
	s := loaded(room(10, t0))
	s = Reduce(s, MessageReceived{Message: msg(1, 99, other, "x", t0)})
	s = Reduce(s, TypingChanged{Typing: types.TypingChanged{RoomId: 99, UserId: other, IsTyping: true}})

	_, ok := s.Room(99)
	assert.False(t, ok)
}

func TestReduce_RefetchDropsDeletedMessages(t *testing.T) {
	s := loaded(room(10, t0))
	s = Reduce(s, MessagesLoaded{RoomId: 10, Messages: []types.Message{
		msg(5, 10, other, "secret", t0),
		msg(6, 10, other, "ok", t0.Add(time.Second)),
	}})
	s = Reduce(s, MessagePending{RoomId: 10, Nonce: "n-1", Content: "draft", At: t0.Add(2 * time.Second)})
	s = Reduce(s, MessageReceived{Message: msg(8, 10, other, "late", t0.Add(3*time.Second))})

	// 5 was deleted while offline, 8 arrived after the page was served
	s = Reduce(s, MessagesLoaded{RoomId: 10, Messages: []types.Message{
		msg(6, 10, other, "ok", t0.Add(time.Second)),
	}})

	assert.Equal(t, []string{"ok", "draft", "late"}, contents(s.Rooms[10]))
}

func TestReduce_TruncatedRefetchKeepsOlderMessages(t *testing.T) {
	s := loaded(room(10, t0))
	s = Reduce(s, MessagesLoaded{RoomId: 10, Messages: []types.Message{
		msg(1, 10, other, "old", t0),
		msg(5, 10, other, "gone", t0.Add(time.Second)),
		msg(6, 10, other, "ok", t0.Add(2*time.Second)),
		msg(7, 10, other, "new", t0.Add(3*time.Second)),
	}})

	s = Reduce(s, MessagesLoaded{RoomId: 10, Truncated: true, Messages: []types.Message{
		msg(6, 10, other, "ok", t0.Add(2*time.Second)),
		msg(7, 10, other, "new", t0.Add(3*time.Second)),
	}})

	assert.Equal(t, []string{"old", "ok", "new"}, contents(s.Rooms[10]))
}

func TestReduce_ReceivedBelowServerWatermarkIsNotCountedTwice(t *testing.T) {
	summary := room(10, t0)
	summary.UnreadCount = 1
	summary.LastMessageId = 100
	s := loaded(summary)

	// the server counted 100 before the buffered push was applied
	s = Reduce(s, MessageReceived{Message: msg(100, 10, other, "hi", t0.Add(time.Second))})
	assert.Equal(t, 1, s.Rooms[10].Summary.UnreadCount)

	s = Reduce(s, MessageReceived{Message: msg(101, 10, other, "again", t0.Add(2*time.Second))})
	assert.Equal(t, 2, s.Rooms[10].Summary.UnreadCount)
	assert.Equal(t, 101, s.Rooms[10].Summary.LastMessageId)
}
