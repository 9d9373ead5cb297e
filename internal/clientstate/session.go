package clientstate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
	"github.com/npezzotti/go-chatsync/internal/types"
)

const (
	defaultPageSize      = 50
	defaultTypingTimeout = 8 * time.Second
	minBackoff           = 500 * time.Millisecond
	maxBackoff           = 30 * time.Second
	writeWait            = 10 * time.Second
)

var (
	ErrNotLoggedIn  = errors.New("not logged in")
	ErrNotConnected = errors.New("not connected")
)

// RequestError is a non-2xx answer from the HTTP API.
type RequestError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%d: %s", e.StatusCode, e.Message)
}

type SessionOptions struct {
	TypingTimeout time.Duration
	PageSize      int
}

// Session is one signed-in client. It keeps a Store in sync with the
// server over HTTP and the websocket, reconnecting and refetching after
// every drop since missed events are not replayed.
type Session struct {
	log     hclog.Logger
	baseURL *url.URL
	http    *http.Client
	dialer  *websocket.Dialer
	opts    SessionOptions

	user  types.User
	store *Store

	connMu  sync.Mutex
	conn    *websocket.Conn
	frameId int
}

func NewSession(baseURL string, logger hclog.Logger, opts SessionOptions) (*Session, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	if opts.TypingTimeout <= 0 {
		opts.TypingTimeout = defaultTypingTimeout
	}
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}

	return &Session{
		log:     logger.Named("session"),
		baseURL: u,
		http:    &http.Client{Jar: jar, Timeout: 30 * time.Second},
		dialer: &websocket.Dialer{
			Jar:              jar,
			HandshakeTimeout: 10 * time.Second,
		},
		opts: opts,
	}, nil
}

func (s *Session) User() types.User {
	return s.user
}

// Store is nil until Login succeeds.
func (s *Session) Store() *Store {
	return s.store
}

func (s *Session) Register(ctx context.Context, username, email, password string) (types.User, error) {
	var u types.User
	err := s.do(ctx, http.MethodPost, "/api/auth/register", map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	}, &u)
	return u, err
}

func (s *Session) Login(ctx context.Context, email, password string) (types.User, error) {
	var u types.User
	err := s.do(ctx, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &u)
	if err != nil {
		return types.User{}, err
	}

	s.user = u
	s.store = NewStore(u.Id, s.opts.TypingTimeout, s.log)
	return u, nil
}

// Run drives the store and the websocket until ctx is cancelled.
func (s *Session) Run(ctx context.Context) error {
	if s.store == nil {
		return ErrNotLoggedIn
	}

	go s.store.Run(ctx)
	go s.store.RunTypingExpiry(ctx, s.opts.TypingTimeout/2)

	backoff := minBackoff
	for {
		err := s.connect(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			backoff = minBackoff
		}
		s.log.Warn("websocket disconnected, reconnecting", "error", err, "backoff", backoff)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// connect dials the websocket, refetches state and pumps events into the
// store until the connection fails. It returns nil if the connection was
// established at least once.
func (s *Session) connect(ctx context.Context) error {
	wsURL := *s.baseURL
	switch wsURL.Scheme {
	case "https":
		wsURL.Scheme = "wss"
	default:
		wsURL.Scheme = "ws"
	}
	wsURL.Path = "/ws"

	conn, _, err := s.dialer.DialContext(ctx, wsURL.String(), nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer func() {
		stop()
		s.connMu.Lock()
		s.conn = nil
		s.connMu.Unlock()
		conn.Close()
	}()

	if err := s.Refresh(ctx); err != nil {
		s.log.Error("failed to refresh after connect", "error", err)
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			s.log.Debug("read failed", "error", err)
			return nil
		}

		var msg types.ServerMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.log.Error("invalid frame", "error", err)
			continue
		}

		op, err := DecodeEvent(msg, time.Now())
		if err != nil {
			s.log.Error("failed to decode event", "error", err)
			continue
		}
		if op == nil {
			if msg.Response != nil && msg.Response.Error != "" {
				s.log.Debug("frame rejected", "id", msg.Id, "code", msg.Response.ResponseCode, "error", msg.Response.Error)
			}
			continue
		}
		if err := s.store.Dispatch(ctx, op); err != nil {
			return nil
		}
	}
}

// Refresh replaces the room list and reloads the open room.
func (s *Session) Refresh(ctx context.Context) error {
	var rooms []types.RoomSummary
	if err := s.do(ctx, http.MethodGet, "/api/chat/rooms", nil, &rooms); err != nil {
		return err
	}
	if err := s.store.Dispatch(ctx, RoomsLoaded{Rooms: rooms}); err != nil {
		return err
	}

	if open := s.store.State().OpenRoomId; open != 0 {
		return s.loadMessages(ctx, open)
	}
	return nil
}

func (s *Session) loadMessages(ctx context.Context, roomId int) error {
	path := fmt.Sprintf("/api/chat/rooms/%d/messages?page=1&page_size=%d", roomId, s.opts.PageSize)
	var msgs []types.Message
	if err := s.do(ctx, http.MethodGet, path, nil, &msgs); err != nil {
		return err
	}
	return s.store.Dispatch(ctx, MessagesLoaded{
		RoomId:    roomId,
		Messages:  msgs,
		Truncated: len(msgs) >= s.opts.PageSize,
	})
}

// OpenRoom zeroes the room's unread count locally, then loads its latest
// page and marks it read on the server.
func (s *Session) OpenRoom(ctx context.Context, roomId int) error {
	if err := s.store.Dispatch(ctx, RoomOpened{RoomId: roomId}); err != nil {
		return err
	}
	if err := s.loadMessages(ctx, roomId); err != nil {
		return err
	}
	return s.do(ctx, http.MethodPost, fmt.Sprintf("/api/chat/rooms/%d/read", roomId), map[string]int{"message_id": 0}, nil)
}

func (s *Session) CloseRoom(ctx context.Context) error {
	return s.store.Dispatch(ctx, RoomClosed{})
}

// SendMessage shows the message as pending right away and confirms it
// with the server's copy. The push event for the same nonce is absorbed.
func (s *Session) SendMessage(ctx context.Context, roomId int, content string) (types.Message, error) {
	nonce := uuid.NewString()
	if err := s.store.Dispatch(ctx, MessagePending{
		RoomId:  roomId,
		Nonce:   nonce,
		Content: content,
		Type:    types.MessageTypeText,
		At:      time.Now().UTC(),
	}); err != nil {
		return types.Message{}, err
	}

	var msg types.Message
	err := s.do(ctx, http.MethodPost, fmt.Sprintf("/api/chat/rooms/%d/messages", roomId), map[string]any{
		"content":      content,
		"type":         types.MessageTypeText,
		"client_nonce": nonce,
	}, &msg)
	if err != nil {
		s.store.Dispatch(context.WithoutCancel(ctx), MessageFailed{RoomId: roomId, Nonce: nonce})
		return types.Message{}, err
	}

	if msg.ClientNonce == "" {
		msg.ClientNonce = nonce
	}
	return msg, s.store.Dispatch(ctx, MessageReceived{Message: msg})
}

// CreateRoom creates a group room with the given members.
func (s *Session) CreateRoom(ctx context.Context, name string, memberIds []int) (types.RoomSummary, error) {
	var room types.RoomSummary
	err := s.do(ctx, http.MethodPost, "/api/chat/rooms", map[string]any{
		"name":       name,
		"is_group":   true,
		"member_ids": memberIds,
	}, &room)
	return room, err
}

func (s *Session) EditMessage(ctx context.Context, messageId int, content string) (types.Message, error) {
	var msg types.Message
	err := s.do(ctx, http.MethodPut, fmt.Sprintf("/api/chat/messages/%d", messageId), map[string]string{"content": content}, &msg)
	return msg, err
}

func (s *Session) DeleteMessage(ctx context.Context, messageId int) error {
	return s.do(ctx, http.MethodDelete, fmt.Sprintf("/api/chat/messages/%d", messageId), nil, nil)
}

func (s *Session) React(ctx context.Context, messageId int, emoji string) (types.ReactionState, error) {
	var rs types.ReactionState
	err := s.do(ctx, http.MethodPost, fmt.Sprintf("/api/chat/messages/%d/reactions", messageId), map[string]string{"emoji": emoji}, &rs)
	return rs, err
}

// SetTyping sends a typing frame. It is dropped when there is no live
// connection.
func (s *Session) SetTyping(roomId int, isTyping bool) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn == nil {
		return ErrNotConnected
	}

	s.frameId++
	frame := types.ClientMessage{
		BaseMessage: types.BaseMessage{Id: s.frameId, Timestamp: types.Now()},
		Typing:      &types.Typing{RoomId: roomId, IsTyping: isTyping},
	}

	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(frame)
}

func (s *Session) do(ctx context.Context, method, path string, body, out any) error {
	ref, err := url.Parse(path)
	if err != nil {
		return err
	}

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL.ResolveReference(ref).String(), reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		reqErr := &RequestError{StatusCode: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(reqErr); err != nil || reqErr.Message == "" {
			reqErr.Message = http.StatusText(resp.StatusCode)
		}
		reqErr.StatusCode = resp.StatusCode
		return reqErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
