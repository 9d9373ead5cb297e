package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/npezzotti/go-chatsync/internal/chat"
	"github.com/npezzotti/go-chatsync/internal/types"
)

type EditMessageRequest struct {
	Content string `json:"content"`
}

type ReactRequest struct {
	Emoji string `json:"emoji"`
}

type ForwardRequest struct {
	RoomId int `json:"room_id"`
}

type MarkReadRequest struct {
	MessageId int `json:"message_id"`
}

type SupportRoomRequest struct {
	Name          string `json:"name"`
	GuestFullName string `json:"guest_full_name"`
	GuestEmail    string `json:"guest_email"`
	RegionId      *int   `json:"region_id,omitempty"`
}

type SupportRoomResponse struct {
	Room  types.RoomSummary `json:"room"`
	Token string            `json:"token"`
}

func identity(r *http.Request) chat.Identity {
	id, _ := IdentityFrom(r.Context())
	return id
}

func queryInt(r *http.Request, name string) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func (s *GoChatApp) roomId(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, ok := pathId(r, "roomId")
	if !ok {
		s.writeError(w, NewBadRequestError())
	}
	return id, ok
}

func (s *GoChatApp) messageId(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, ok := pathId(r, "messageId")
	if !ok {
		s.writeError(w, NewBadRequestError())
	}
	return id, ok
}

func (s *GoChatApp) listRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.engine.ListRooms(r.Context(), identity(r).UserId)
	if err != nil {
		s.writeError(w, NewEngineError(err))
		return
	}

	s.writeJson(w, http.StatusOK, rooms)
}

func (s *GoChatApp) createRoom(w http.ResponseWriter, r *http.Request) {
	var in chat.CreateRoomInput
	if !s.decode(w, r, &in) {
		return
	}

	room, err := s.engine.CreateRoom(r.Context(), identity(r), in)
	if err != nil {
		s.writeError(w, NewEngineError(err))
		return
	}

	s.writeJson(w, http.StatusCreated, room)
}

// createSupportRoom opens a support room for an unauthenticated visitor
// and returns a token scoped to that room.
func (s *GoChatApp) createSupportRoom(w http.ResponseWriter, r *http.Request) {
	var req SupportRoomRequest
	if !s.decode(w, r, &req) {
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = strings.TrimSpace(req.GuestFullName)
	}

	room, err := s.engine.CreateRoom(r.Context(), chat.Identity{}, chat.CreateRoomInput{
		Name:          name,
		IsSupportRoom: true,
		RegionId:      req.RegionId,
		GuestFullName: req.GuestFullName,
		GuestEmail:    req.GuestEmail,
	})
	if err != nil {
		s.writeError(w, NewEngineError(err))
		return
	}

	token, err := s.createToken(chat.Identity{GuestRoomId: room.Id, RegionId: room.RegionId}, guestExp)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.writeJson(w, http.StatusCreated, SupportRoomResponse{Room: room, Token: token})
}

func (s *GoChatApp) listOpenSupportRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.engine.ListOpenSupportRooms(r.Context(), identity(r).UserId)
	if err != nil {
		s.writeError(w, NewEngineError(err))
		return
	}

	s.writeJson(w, http.StatusOK, rooms)
}

func (s *GoChatApp) listMessages(w http.ResponseWriter, r *http.Request) {
	roomId, ok := s.roomId(w, r)
	if !ok {
		return
	}

	page, ok := queryInt(r, "page")
	if !ok {
		s.writeError(w, NewBadRequestError())
		return
	}
	pageSize, ok := queryInt(r, "page_size")
	if !ok {
		s.writeError(w, NewBadRequestError())
		return
	}

	msgs, err := s.engine.ListMessages(r.Context(), identity(r), roomId, page, pageSize)
	if err != nil {
		s.writeError(w, NewEngineError(err))
		return
	}

	s.writeJson(w, http.StatusOK, msgs)
}

func (s *GoChatApp) sendMessage(w http.ResponseWriter, r *http.Request) {
	roomId, ok := s.roomId(w, r)
	if !ok {
		return
	}

	var in chat.SendMessageInput
	if !s.decode(w, r, &in) {
		return
	}

	msg, err := s.engine.SendMessage(r.Context(), identity(r), roomId, in)
	if err != nil {
		s.writeError(w, NewEngineError(err))
		return
	}

	s.writeJson(w, http.StatusCreated, msg)
}

func (s *GoChatApp) joinRoom(w http.ResponseWriter, r *http.Request) {
	roomId, ok := s.roomId(w, r)
	if !ok {
		return
	}

	room, err := s.engine.JoinRoom(r.Context(), identity(r).UserId, roomId)
	if err != nil {
		s.writeError(w, NewEngineError(err))
		return
	}

	s.writeJson(w, http.StatusOK, room)
}

func (s *GoChatApp) leaveRoom(w http.ResponseWriter, r *http.Request) {
	roomId, ok := s.roomId(w, r)
	if !ok {
		return
	}

	if err := s.engine.LeaveRoom(r.Context(), identity(r).UserId, roomId); err != nil {
		s.writeError(w, NewEngineError(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *GoChatApp) markRead(w http.ResponseWriter, r *http.Request) {
	roomId, ok := s.roomId(w, r)
	if !ok {
		return
	}

	var req MarkReadRequest
	if r.ContentLength != 0 && !s.decode(w, r, &req) {
		return
	}

	if err := s.engine.MarkRead(r.Context(), identity(r).UserId, roomId, req.MessageId); err != nil {
		s.writeError(w, NewEngineError(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *GoChatApp) listMembers(w http.ResponseWriter, r *http.Request) {
	roomId, ok := s.roomId(w, r)
	if !ok {
		return
	}

	members, err := s.engine.ListMembers(r.Context(), identity(r).UserId, roomId)
	if err != nil {
		s.writeError(w, NewEngineError(err))
		return
	}

	s.writeJson(w, http.StatusOK, members)
}

func (s *GoChatApp) editMessage(w http.ResponseWriter, r *http.Request) {
	messageId, ok := s.messageId(w, r)
	if !ok {
		return
	}

	var req EditMessageRequest
	if !s.decode(w, r, &req) {
		return
	}

	msg, err := s.engine.EditMessage(r.Context(), identity(r).UserId, messageId, req.Content)
	if err != nil {
		s.writeError(w, NewEngineError(err))
		return
	}

	s.writeJson(w, http.StatusOK, msg)
}

func (s *GoChatApp) deleteMessage(w http.ResponseWriter, r *http.Request) {
	messageId, ok := s.messageId(w, r)
	if !ok {
		return
	}

	deleted, err := s.engine.DeleteMessage(r.Context(), identity(r).UserId, messageId)
	if err != nil {
		s.writeError(w, NewEngineError(err))
		return
	}

	s.writeJson(w, http.StatusOK, deleted)
}

func (s *GoChatApp) reactToMessage(w http.ResponseWriter, r *http.Request) {
	messageId, ok := s.messageId(w, r)
	if !ok {
		return
	}

	var req ReactRequest
	if !s.decode(w, r, &req) {
		return
	}

	state, err := s.engine.ReactToMessage(r.Context(), identity(r).UserId, messageId, req.Emoji)
	if err != nil {
		s.writeError(w, NewEngineError(err))
		return
	}

	s.writeJson(w, http.StatusOK, state)
}

func (s *GoChatApp) forwardMessage(w http.ResponseWriter, r *http.Request) {
	messageId, ok := s.messageId(w, r)
	if !ok {
		return
	}

	var req ForwardRequest
	if !s.decode(w, r, &req) {
		return
	}

	msg, err := s.engine.ForwardMessage(r.Context(), identity(r).UserId, messageId, req.RoomId)
	if err != nil {
		s.writeError(w, NewEngineError(err))
		return
	}

	s.writeJson(w, http.StatusCreated, msg)
}

func (s *GoChatApp) onlineUsers(w http.ResponseWriter, r *http.Request) {
	s.writeJson(w, http.StatusOK, s.cs.OnlineUsers())
}

func (s *GoChatApp) searchUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.engine.SearchUsers(r.Context(), identity(r).UserId, r.URL.Query().Get("query"))
	if err != nil {
		s.writeError(w, NewEngineError(err))
		return
	}

	s.writeJson(w, http.StatusOK, users)
}
