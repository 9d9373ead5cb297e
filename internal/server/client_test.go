package server

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/npezzotti/go-chatsync/internal/chat"
	"github.com/npezzotti/go-chatsync/internal/stats"
	"github.com/npezzotti/go-chatsync/internal/testutil"
	"github.com/npezzotti/go-chatsync/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_queueMessage(t *testing.T) {
	t.Run("successful queue", func(t *testing.T) {
		c := &Client{
			send: make(chan []byte, 1),
			log:  testutil.TestLogger(t),
		}

		res := c.queueMessage(NoErrOK(1))
		assert.True(t, res, "expected queueMessage to return true when channel is not full")

		select {
		case msg := <-c.send:
			assert.NotEmpty(t, msg, "expected a message to be sent to the client")
		default:
			t.Error("expected a message to be sent to the client, but none was sent")
		}
	})
	t.Run("channel full", func(t *testing.T) {
		c := &Client{
			send: make(chan []byte, 1),
			log:  testutil.TestLogger(t),
		}

		c.send <- []byte("{}")
		res := c.queueMessage(NoErrOK(1))
		assert.False(t, res, "expected queueMessage to return false when channel is full")
	})
}

func Test_serializeMessage(t *testing.T) {
	message := &types.ServerMessage{
		BaseMessage: types.BaseMessage{
			Id:        1,
			Timestamp: types.Now(),
		},
		Response: &types.Response{
			ResponseCode: 200,
		},
	}

	expected := `{"id":1,"timestamp":"` + message.Timestamp.Format(time.RFC3339Nano) +
		`","response":{"response_code":200}}`

	bytes, err := serializeMessage(message)
	assert.NoError(t, err, "expected no error during serialization")
	assert.Equal(t, expected, string(bytes), "expected serialized message to match the expected format")
}

func Test_stopClient(t *testing.T) {
	c := &Client{
		stop: make(chan struct{}),
	}

	c.stopClient()
	c.stopClient()

	select {
	case <-c.stop:
	default:
		t.Error("expected stop channel to be closed")
	}
}

func Test_deliver(t *testing.T) {
	newClient := func(t *testing.T, su *stats.MockStatsUpdater) *Client {
		return &Client{
			chatServer: &ChatServer{stats: su},
			log:        testutil.TestLogger(t),
			send:       make(chan []byte, 1),
			stop:       make(chan struct{}),
		}
	}

	t.Run("queues frame", func(t *testing.T) {
		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)
		c := newClient(t, su)

		assert.True(t, c.deliver([]byte("frame"), true))
		assert.Equal(t, []byte("frame"), <-c.send)
	})

	t.Run("drops unreliable frame when full", func(t *testing.T) {
		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)
		su.On("Incr", stats.EventsDropped).Return().Once()
		c := newClient(t, su)
		c.send <- []byte("pending")

		assert.False(t, c.deliver([]byte("typing"), false))
		select {
		case <-c.stop:
			t.Error("expected client to stay connected")
		default:
		}
	})

	t.Run("disconnects slow consumer", func(t *testing.T) {
		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)
		su.On("Incr", stats.SlowConsumerDisconnects).Return().Once()
		c := newClient(t, su)
		c.send <- []byte("pending")

		assert.False(t, c.deliver([]byte("message"), true))
		select {
		case <-c.stop:
		default:
			t.Error("expected client to be stopped")
		}

		assert.False(t, c.deliver([]byte("message"), true), "expected stopped client to refuse frames")
	})
}

func Test_handleTyping(t *testing.T) {
	ts := newTestChatServer(t)
	alice, bob, carol := ts.user(t, "alice"), ts.user(t, "bob"), ts.user(t, "carol")
	room := ts.group(t, alice, bob)

	a := ts.connect(t, alice)
	b := ts.connect(t, bob)
	c := ts.connect(t, carol)

	t.Run("member starts typing", func(t *testing.T) {
		a.handleTyping(&types.ClientMessage{
			BaseMessage: types.BaseMessage{Id: 1},
			Typing:      &types.Typing{RoomId: room.Id, IsTyping: true},
		})

		msg := waitFor(t, b, types.EventTypingChanged)
		var tc types.TypingChanged
		require.NoError(t, json.Unmarshal(msg.Data, &tc))
		assert.Equal(t, alice.Id, tc.UserId)
		assert.Equal(t, "alice", tc.UserName)
		assert.True(t, tc.IsTyping)

		frames := pending(t, a)
		assert.Empty(t, named(frames, types.EventTypingChanged), "expected typer to be excluded")
		ack := responseTo(frames, 1)
		require.NotNil(t, ack, "expected typing frame to be acknowledged")
		assert.Equal(t, http.StatusAccepted, ack.Response.ResponseCode)
	})

	t.Run("repeat start is silent", func(t *testing.T) {
		a.handleTyping(&types.ClientMessage{Typing: &types.Typing{RoomId: room.Id, IsTyping: true}})
		a.handleTyping(&types.ClientMessage{Typing: &types.Typing{RoomId: room.Id, IsTyping: false}})

		msg := waitFor(t, b, types.EventTypingChanged)
		var tc types.TypingChanged
		require.NoError(t, json.Unmarshal(msg.Data, &tc))
		assert.False(t, tc.IsTyping, "expected the next transition to be the stop")
	})

	t.Run("non member is rejected", func(t *testing.T) {
		c.handleTyping(&types.ClientMessage{
			BaseMessage: types.BaseMessage{Id: 2},
			Typing:      &types.Typing{RoomId: room.Id, IsTyping: true},
		})

		ack := responseTo(pending(t, c), 2)
		require.NotNil(t, ack, "expected typing frame to be acknowledged")
		assert.Equal(t, http.StatusForbidden, ack.Response.ResponseCode)
		assert.Empty(t, ts.cs.Typing(room.Id))
	})
}

func Test_handleRead(t *testing.T) {
	ts := newTestChatServer(t)
	alice, bob := ts.user(t, "alice"), ts.user(t, "bob")
	room := ts.group(t, alice, bob)

	a := ts.connect(t, alice)
	b := ts.connect(t, bob)

	msg, err := ts.engine.SendMessage(context.Background(), chat.Identity{UserId: alice.Id}, room.Id, chat.SendMessageInput{Content: "hi"})
	require.NoError(t, err)

	b.handleRead(&types.ClientMessage{
		BaseMessage: types.BaseMessage{Id: 5},
		Read:        &types.Read{RoomId: room.Id, MessageId: msg.Id},
	})

	read := waitFor(t, a, types.EventMessageRead)
	var mr types.MessageRead
	require.NoError(t, json.Unmarshal(read.Data, &mr))
	assert.Equal(t, msg.Id, mr.MessageId)
	assert.Equal(t, bob.Id, mr.ReadBy)

	waitFor(t, b, types.EventMessageReadReceipt)

	b.handleRead(&types.ClientMessage{
		BaseMessage: types.BaseMessage{Id: 6},
		Read:        &types.Read{RoomId: room.Id + 100},
	})
	ack := responseTo(pending(t, b), 6)
	require.NotNil(t, ack, "expected a response to the read frame")
	assert.Equal(t, http.StatusNotFound, ack.Response.ResponseCode)
}

func responseTo(frames []types.ServerMessage, id int) *types.ServerMessage {
	for i := range frames {
		if frames[i].Response != nil && frames[i].Id == id {
			return &frames[i]
		}
	}
	return nil
}
