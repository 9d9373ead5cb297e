package presence

import (
	"sort"
	"sync"
	"time"

	"github.com/npezzotti/go-chatsync/internal/types"
)

type typingKey struct {
	roomId int
	userId int
}

type typingEntry struct {
	userName string
	expires  time.Time
}

// Typing holds the server side typing entries. An entry lives until it is
// stopped, its user disconnects, or timeout passes without a refresh.
type Typing struct {
	mu      sync.Mutex
	entries map[typingKey]typingEntry
	timeout time.Duration
	now     func() time.Time
}

func NewTyping(timeout time.Duration) *Typing {
	return &Typing{
		entries: make(map[typingKey]typingEntry),
		timeout: timeout,
		now:     time.Now,
	}
}

// Start records or refreshes an entry and reports whether it is new.
func (t *Typing) Start(roomId, userId int, userName string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := typingKey{roomId, userId}
	_, existed := t.entries[key]
	t.entries[key] = typingEntry{userName: userName, expires: t.now().Add(t.timeout)}
	return !existed
}

// Stop removes an entry and reports whether there was one.
func (t *Typing) Stop(roomId, userId int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := typingKey{roomId, userId}
	if _, ok := t.entries[key]; !ok {
		return false
	}
	delete(t.entries, key)
	return true
}

// Expire drops stale entries and returns the matching stop notifications.
func (t *Typing) Expire() []types.TypingChanged {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	return t.removeLocked(func(k typingKey, e typingEntry) bool {
		return !now.Before(e.expires)
	})
}

// ClearUser drops every entry of userId.
func (t *Typing) ClearUser(userId int) []types.TypingChanged {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.removeLocked(func(k typingKey, _ typingEntry) bool {
		return k.userId == userId
	})
}

func (t *Typing) removeLocked(match func(typingKey, typingEntry) bool) []types.TypingChanged {
	stopped := make([]types.TypingChanged, 0)
	for k, e := range t.entries {
		if !match(k, e) {
			continue
		}
		delete(t.entries, k)
		stopped = append(stopped, types.TypingChanged{
			RoomId:   k.roomId,
			UserId:   k.userId,
			UserName: e.userName,
			IsTyping: false,
		})
	}
	sortTyping(stopped)
	return stopped
}

// InRoom lists who is currently typing in roomId.
func (t *Typing) InRoom(roomId int) []types.TypingChanged {
	t.mu.Lock()
	defer t.mu.Unlock()

	active := make([]types.TypingChanged, 0)
	for k, e := range t.entries {
		if k.roomId == roomId {
			active = append(active, types.TypingChanged{
				RoomId:   k.roomId,
				UserId:   k.userId,
				UserName: e.userName,
				IsTyping: true,
			})
		}
	}
	sortTyping(active)
	return active
}

func (t *Typing) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[typingKey]typingEntry)
}

func sortTyping(entries []types.TypingChanged) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].RoomId != entries[j].RoomId {
			return entries[i].RoomId < entries[j].RoomId
		}
		return entries[i].UserId < entries[j].UserId
	})
}
