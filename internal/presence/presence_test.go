package presence

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/npezzotti/go-chatsync/internal/testutil"
	"github.com/npezzotti/go-chatsync/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_Edges(t *testing.T) {
	tr := NewTracker()
	alice := types.User{Id: 1, Username: "alice"}
	now := time.Now()

	assert.True(t, tr.Connect(alice, "tab-1", now), "first connection brings user online")
	assert.False(t, tr.Connect(alice, "tab-2", now), "second connection is not an edge")
	assert.True(t, tr.IsOnline(1))
	assert.Equal(t, 2, tr.Connections(1))

	assert.False(t, tr.Disconnect(1, "tab-1"))
	assert.True(t, tr.IsOnline(1))
	assert.False(t, tr.Disconnect(1, "unknown"))
	assert.True(t, tr.Disconnect(1, "tab-2"), "last connection takes user offline")
	assert.False(t, tr.IsOnline(1))
	assert.False(t, tr.Disconnect(1, "tab-2"))
}

func TestTracker_ConcurrentEdgesFireOnce(t *testing.T) {
	tr := NewTracker()
	user := types.User{Id: 7, Username: "bob"}

	var online, offline int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if tr.Connect(user, string(rune('a'+i)), time.Now()) {
				atomic.AddInt32(&online, 1)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), online)

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if tr.Disconnect(user.Id, string(rune('a'+i))) {
				atomic.AddInt32(&offline, 1)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), offline)
}

func TestTracker_OnlineAndReset(t *testing.T) {
	tr := NewTracker()
	tr.Connect(types.User{Id: 40, Username: "zed"}, "c1", time.Now())
	tr.Connect(types.User{Id: 3, Username: "amy", Avatar: "amy.png"}, "c2", time.Now())

	users := tr.Online()
	require.Len(t, users, 2)
	assert.Equal(t, 3, users[0].Id)
	assert.Equal(t, "amy.png", users[0].Avatar)
	assert.Equal(t, 40, users[1].Id)

	tr.Reset()
	assert.Empty(t, tr.Online())
	assert.False(t, tr.IsOnline(3))
}

func TestTyping(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	typing := NewTyping(5 * time.Second)
	typing.now = func() time.Time { return now }

	assert.True(t, typing.Start(1, 10, "alice"))
	assert.False(t, typing.Start(1, 10, "alice"))
	assert.True(t, typing.Start(1, 11, "bob"))
	assert.True(t, typing.Start(2, 10, "alice"))
	assert.Len(t, typing.InRoom(1), 2)

	assert.True(t, typing.Stop(1, 11))
	assert.False(t, typing.Stop(1, 11))

	now = now.Add(3 * time.Second)
	typing.Start(2, 10, "alice")
	now = now.Add(3 * time.Second)

	expired := typing.Expire()
	require.Len(t, expired, 1)
	assert.Equal(t, types.TypingChanged{RoomId: 1, UserId: 10, UserName: "alice", IsTyping: false}, expired[0])

	cleared := typing.ClearUser(10)
	require.Len(t, cleared, 1)
	assert.Equal(t, 2, cleared[0].RoomId)
	assert.Empty(t, typing.InRoom(2))
}

func TestSweeper(t *testing.T) {
	typing := NewTyping(time.Millisecond)
	typing.Start(1, 10, "alice")
	time.Sleep(5 * time.Millisecond)

	var got []types.TypingChanged
	s, err := NewSweeper(typing, time.Second, func(stopped []types.TypingChanged) {
		got = append(got, stopped...)
	}, testutil.TestLogger(t))
	require.NoError(t, err)

	s.Sweep()
	require.Len(t, got, 1)
	assert.False(t, got[0].IsTyping)

	s.Sweep()
	assert.Len(t, got, 1)
}
