package clientstate

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"
	"time"

	"github.com/npezzotti/go-chatsync/internal/api"
	"github.com/npezzotti/go-chatsync/internal/broker"
	"github.com/npezzotti/go-chatsync/internal/chat"
	"github.com/npezzotti/go-chatsync/internal/config"
	"github.com/npezzotti/go-chatsync/internal/database"
	"github.com/npezzotti/go-chatsync/internal/presence"
	"github.com/npezzotti/go-chatsync/internal/server"
	"github.com/npezzotti/go-chatsync/internal/stats"
	"github.com/npezzotti/go-chatsync/internal/testutil"
	"github.com/npezzotti/go-chatsync/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httptest.Server, *server.ChatServer) {
	t.Helper()

	logger := testutil.TestLogger(t)
	mux := http.NewServeMux()
	su := stats.NewStatsUpdater(mux)
	repo := database.NewMemoryRepository()

	router, err := server.NewRouter(logger, broker.NewLocal(), repo, su, server.RouterOptions{Shards: 2})
	require.NoError(t, err)

	tracker := presence.NewTracker()
	engine := chat.NewEngine(repo, router, tracker, logger)
	cs, err := server.NewChatServer(logger, engine, router, tracker, presence.NewTyping(time.Minute), su, server.Options{})
	require.NoError(t, err)

	require.NoError(t, router.Start(context.Background()))
	go cs.Run()

	app := api.NewGoChatApp(mux, logger, cs, engine, repo, &config.Config{
		SigningKey: []byte("test-signing-key"),
	})
	srv := httptest.NewServer(app.Handler())

	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		cs.Shutdown(ctx)
		router.Close()
	})
	return srv, cs
}

func newSession(t *testing.T, baseURL, name string) *Session {
	t.Helper()

	s, err := NewSession(baseURL, testutil.TestLogger(t), SessionOptions{})
	require.NoError(t, err)

	_, err = s.Register(context.Background(), name, name+"@example.com", "password")
	require.NoError(t, err)
	_, err = s.Login(context.Background(), name+"@example.com", "password")
	require.NoError(t, err)
	return s
}

func TestSession_RunBeforeLogin(t *testing.T) {
	s, err := NewSession("http://localhost:0", testutil.TestLogger(t), SessionOptions{})
	require.NoError(t, err)
	assert.ErrorIs(t, s.Run(context.Background()), ErrNotLoggedIn)
	assert.ErrorIs(t, s.SetTyping(1, true), ErrNotConnected)
}

func TestSession_LoginFailure(t *testing.T) {
	srv, _ := newTestServer(t)

	s, err := NewSession(srv.URL, testutil.TestLogger(t), SessionOptions{})
	require.NoError(t, err)

	_, err = s.Login(context.Background(), "nobody@example.com", "password")
	var reqErr *RequestError
	require.True(t, errors.As(err, &reqErr), "expected a RequestError, got %v", err)
	assert.Equal(t, http.StatusUnauthorized, reqErr.StatusCode)
	assert.Nil(t, s.Store())
}

func TestSession_SyncsTwoClients(t *testing.T) {
	srv, cs := newTestServer(t)
	alice := newSession(t, srv.URL, "alice")
	bob := newSession(t, srv.URL, "bob")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	room, err := alice.CreateRoom(ctx, "team", []int{bob.User().Id})
	require.NoError(t, err)

	go alice.Run(ctx)
	go bob.Run(ctx)

	require.Eventually(t, func() bool {
		online := cs.OnlineUsers()
		return len(online) == 2
	}, 2*time.Second, 10*time.Millisecond, "expected both sessions to connect")
	require.Eventually(t, func() bool {
		_, ok := bob.Store().State().Room(room.Id)
		return ok
	}, 2*time.Second, 10*time.Millisecond, "expected bob to load the room")

	require.NoError(t, alice.OpenRoom(ctx, room.Id))
	sent, err := alice.SendMessage(ctx, room.Id, "hi bob")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		r, _ := bob.Store().State().Room(room.Id)
		return len(r.Messages) == 1 && r.Summary.UnreadCount == 1
	}, 2*time.Second, 10*time.Millisecond, "expected bob to receive the message as unread")

	// the pushed copy must not duplicate the confirmed send
	assert.Eventually(t, func() bool {
		r, _ := alice.Store().State().Room(room.Id)
		return len(r.Messages) == 1 && r.Messages[0].Id == sent.Id &&
			!r.Messages[0].Pending && r.Messages[0].DeliveryStatus == StatusSent
	}, 2*time.Second, 10*time.Millisecond, "expected one confirmed message for alice")

	require.NoError(t, bob.OpenRoom(ctx, room.Id))

	assert.Eventually(t, func() bool {
		r, _ := alice.Store().State().Room(room.Id)
		return len(r.Messages) == 1 && r.Messages[0].DeliveryStatus == StatusRead
	}, 2*time.Second, 10*time.Millisecond, "expected alice to see the message read")
	assert.Eventually(t, func() bool {
		r, _ := bob.Store().State().Room(room.Id)
		return r.Summary.UnreadCount == 0 && len(r.Messages) == 1 && r.Messages[0].IsReadByMe
	}, 2*time.Second, 10*time.Millisecond, "expected bob's read to be confirmed")

	require.NoError(t, bob.SetTyping(room.Id, true))
	assert.Eventually(t, func() bool {
		r, _ := alice.Store().State().Room(room.Id)
		return slices.Contains(r.TypingUsers(), bob.User().Id)
	}, 2*time.Second, 10*time.Millisecond, "expected alice to see bob typing")

	_, err = alice.EditMessage(ctx, sent.Id, "hi bob!")
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		r, _ := bob.Store().State().Room(room.Id)
		return len(r.Messages) == 1 && r.Messages[0].Content == "hi bob!"
	}, 2*time.Second, 10*time.Millisecond, "expected bob to see the edit")

	_, err = bob.React(ctx, sent.Id, "👍")
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		r, _ := alice.Store().State().Room(room.Id)
		return len(r.Messages) == 1 && len(r.Messages[0].Reactions) == 1
	}, 2*time.Second, 10*time.Millisecond, "expected alice to see the reaction")

	require.NoError(t, alice.DeleteMessage(ctx, sent.Id))
	assert.Eventually(t, func() bool {
		r, _ := bob.Store().State().Room(room.Id)
		return len(r.Messages) == 1 && r.Messages[0].IsDeleted && r.Messages[0].Content == types.DeletedPlaceholder
	}, 2*time.Second, 10*time.Millisecond, "expected bob to see the deletion")
}

func TestSession_SendFailureMarksMessage(t *testing.T) {
	srv, _ := newTestServer(t)
	alice := newSession(t, srv.URL, "alice")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go alice.Store().Run(ctx)

	room, err := alice.CreateRoom(ctx, "notes", nil)
	require.NoError(t, err)
	require.NoError(t, alice.Refresh(ctx))

	_, err = alice.SendMessage(ctx, room.Id, "   ")
	var reqErr *RequestError
	require.True(t, errors.As(err, &reqErr), "expected a RequestError, got %v", err)
	assert.Equal(t, http.StatusBadRequest, reqErr.StatusCode)

	assert.Eventually(t, func() bool {
		r, _ := alice.Store().State().Room(room.Id)
		return len(r.Messages) == 1 && r.Messages[0].Pending && r.Messages[0].DeliveryStatus == StatusFailed
	}, time.Second, 10*time.Millisecond, "expected the pending send to be marked failed")
}
