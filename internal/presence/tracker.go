package presence

import (
	"sort"
	"sync"
	"time"

	"github.com/npezzotti/go-chatsync/internal/types"
)

const stripeCount = 32

type entry struct {
	username        string
	avatar          string
	conns           map[string]struct{}
	lastConnectedAt time.Time
}

type stripe struct {
	mu    sync.Mutex
	users map[int]*entry
}

// Tracker maps users to their active connections. A user is online while
// at least one connection is registered. State is process local and lost
// on restart.
type Tracker struct {
	stripes [stripeCount]stripe
}

func NewTracker() *Tracker {
	t := &Tracker{}
	for i := range t.stripes {
		t.stripes[i].users = make(map[int]*entry)
	}
	return t
}

func (t *Tracker) stripe(userId int) *stripe {
	idx := userId % stripeCount
	if idx < 0 {
		idx = -idx
	}
	return &t.stripes[idx]
}

// Connect registers connId for user and reports whether the user just
// came online.
func (t *Tracker) Connect(user types.User, connId string, at time.Time) bool {
	s := t.stripe(user.Id)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.users[user.Id]
	if !ok {
		e = &entry{conns: make(map[string]struct{})}
		s.users[user.Id] = e
	}
	e.username = user.Username
	e.avatar = user.Avatar
	e.lastConnectedAt = at

	wasOnline := len(e.conns) > 0
	e.conns[connId] = struct{}{}
	return !wasOnline
}

// Disconnect removes connId and reports whether the user just went
// offline. Unknown connections are ignored.
func (t *Tracker) Disconnect(userId int, connId string) bool {
	s := t.stripe(userId)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.users[userId]
	if !ok {
		return false
	}
	if _, ok := e.conns[connId]; !ok {
		return false
	}

	delete(e.conns, connId)
	if len(e.conns) > 0 {
		return false
	}

	delete(s.users, userId)
	return true
}

func (t *Tracker) IsOnline(userId int) bool {
	return t.Connections(userId) > 0
}

func (t *Tracker) Connections(userId int) int {
	s := t.stripe(userId)
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.users[userId]; ok {
		return len(e.conns)
	}
	return 0
}

// Online lists online users ordered by id.
func (t *Tracker) Online() []types.OnlineUser {
	users := make([]types.OnlineUser, 0)
	for i := range t.stripes {
		s := &t.stripes[i]
		s.mu.Lock()
		for id, e := range s.users {
			users = append(users, types.OnlineUser{
				Id:          id,
				Username:    e.username,
				Avatar:      e.avatar,
				ConnectedAt: e.lastConnectedAt,
			})
		}
		s.mu.Unlock()
	}

	sort.Slice(users, func(i, j int) bool { return users[i].Id < users[j].Id })
	return users
}

// Reset forgets every connection.
func (t *Tracker) Reset() {
	for i := range t.stripes {
		s := &t.stripes[i]
		s.mu.Lock()
		s.users = make(map[int]*entry)
		s.mu.Unlock()
	}
}
