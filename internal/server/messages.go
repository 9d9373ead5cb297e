package server

import (
	"errors"
	"net/http"

	"github.com/npezzotti/go-chatsync/internal/chat"
	"github.com/npezzotti/go-chatsync/internal/types"
)

func response(id, code int, errMsg string) *types.ServerMessage {
	msg := &types.ServerMessage{
		BaseMessage: types.BaseMessage{
			Timestamp: types.Now(),
		},
		Response: &types.Response{
			ResponseCode: code,
			Error:        errMsg,
		},
	}

	if id > 0 {
		msg.Id = id
	}
	return msg
}

func NoErrOK(id int) *types.ServerMessage {
	return response(id, http.StatusOK, "")
}

func NoErrAccepted(id int) *types.ServerMessage {
	return response(id, http.StatusAccepted, "")
}

func ErrRoomNotFound(id int) *types.ServerMessage {
	return response(id, http.StatusNotFound, "room not found")
}

func ErrForbidden(id int) *types.ServerMessage {
	return response(id, http.StatusForbidden, "not a member of this room")
}

func ErrInternalError(id int) *types.ServerMessage {
	return response(id, http.StatusInternalServerError, "internal server error")
}

func ErrServiceUnavailable(id int) *types.ServerMessage {
	return response(id, http.StatusServiceUnavailable, "service unavailable")
}

func ErrTooManyRequests(id int) *types.ServerMessage {
	return response(id, http.StatusTooManyRequests, "too many requests")
}

func ErrInvalidMessage(id int) *types.ServerMessage {
	return response(id, http.StatusBadRequest, "invalid message format")
}

// ErrFromEngine maps an engine error onto a response frame.
func ErrFromEngine(id int, err error) *types.ServerMessage {
	var chatErr *chat.Error
	if !errors.As(err, &chatErr) {
		return ErrInternalError(id)
	}

	switch chatErr.Kind {
	case chat.KindValidation:
		return response(id, http.StatusBadRequest, chatErr.Message)
	case chat.KindUnauthenticated:
		return response(id, http.StatusUnauthorized, chatErr.Message)
	case chat.KindForbidden:
		return response(id, http.StatusForbidden, chatErr.Message)
	case chat.KindNotFound:
		return response(id, http.StatusNotFound, chatErr.Message)
	case chat.KindConflict:
		return response(id, http.StatusConflict, chatErr.Message)
	default:
		return ErrInternalError(id)
	}
}
