package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/npezzotti/go-chatsync/internal/chat"
	"github.com/npezzotti/go-chatsync/internal/config"
	"github.com/npezzotti/go-chatsync/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorHandler_PanicRecovery(t *testing.T) {
	buf := &bytes.Buffer{}
	app := &GoChatApp{
		log: hclog.New(&hclog.LoggerOptions{Output: buf}),
	}

	// handler that panics
	panicHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(errors.New("test panic"))
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	handler := app.errorHandler(panicHandler)
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "close", rr.Header().Get("Connection"))
	assert.Contains(t, buf.String(), "panic: test panic")
}

func Test_errorHandler_NoPanic(t *testing.T) {
	app := &GoChatApp{log: hclog.NewNullLogger()}

	// simple handler that does not panic
	called := false
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	handler := app.errorHandler(okHandler)
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
	assert.True(t, called, "expected handler to be called")
}

func newMiddlewareApp(t *testing.T) *GoChatApp {
	t.Helper()
	return NewGoChatApp(
		http.NewServeMux(),
		testutil.TestLogger(t),
		nil,
		nil,
		nil,
		&config.Config{
			SigningKey: []byte("test-signing-key"),
		},
	)
}

func TestAuthMiddleware(t *testing.T) {
	app := newMiddlewareApp(t)

	userToken, err := app.createToken(chat.Identity{UserId: 1}, time.Minute)
	require.NoError(t, err)
	guestToken, err := app.createToken(chat.Identity{GuestRoomId: 5}, time.Minute)
	require.NoError(t, err)

	tcases := []struct {
		name       string
		cookie     string
		bearer     string
		expectCode int
		expectId   int
	}{
		{name: "valid cookie", cookie: userToken, expectCode: http.StatusOK, expectId: 1},
		{name: "valid bearer", bearer: userToken, expectCode: http.StatusOK, expectId: 1},
		{name: "missing token", expectCode: http.StatusUnauthorized},
		{name: "invalid token", cookie: "invalid", expectCode: http.StatusUnauthorized},
		{name: "guest token", bearer: guestToken, expectCode: http.StatusUnauthorized},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			var gotId int
			handler := app.authMiddleware(func(w http.ResponseWriter, r *http.Request) {
				gotId, _ = UserId(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.cookie != "" {
				req.AddCookie(&http.Cookie{Name: tokenCookieKey, Value: tc.cookie})
			}
			if tc.bearer != "" {
				req.Header.Set("Authorization", "Bearer "+tc.bearer)
			}

			rr := httptest.NewRecorder()
			handler(rr, req)

			assert.Equal(t, tc.expectCode, rr.Code)
			assert.Equal(t, tc.expectId, gotId)
			if tc.expectCode == http.StatusOK {
				assert.Equal(t, "no-store, no-cache, must-revalidate, private", rr.Header().Get("Cache-Control"))
			} else {
				var apiErr ApiError
				require.NoError(t, json.NewDecoder(rr.Body).Decode(&apiErr))
				assert.Equal(t, *NewUnauthorizedError(), apiErr)
			}
		})
	}
}

func TestIdentityMiddleware_AllowsGuests(t *testing.T) {
	app := newMiddlewareApp(t)

	guestToken, err := app.createToken(chat.Identity{GuestRoomId: 5}, time.Minute)
	require.NoError(t, err)

	var got chat.Identity
	handler := app.identityMiddleware(func(w http.ResponseWriter, r *http.Request) {
		got, _ = IdentityFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+guestToken)
	rr := httptest.NewRecorder()
	handler(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, chat.Identity{GuestRoomId: 5}, got)
}
