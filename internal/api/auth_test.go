package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/npezzotti/go-chatsync/internal/chat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserId(t *testing.T) {
	tcases := []struct {
		name     string
		ctx      context.Context
		userId   int
		expected bool
	}{
		{
			name:     "no user ID",
			ctx:      context.Background(),
			expected: false,
		},
		{
			name:     "user ID set",
			ctx:      WithUserId(context.Background(), 42),
			userId:   42,
			expected: true,
		},
		{
			name:     "guest identity",
			ctx:      WithIdentity(context.Background(), chat.Identity{GuestRoomId: 7}),
			expected: false,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			userId, ok := UserId(tc.ctx)
			assert.Equal(t, tc.expected, ok, "expected UserId to return %v", tc.expected)
			assert.Equal(t, tc.userId, userId, "expected UserId to return %d", tc.userId)
		})
	}
}

func TestTokenIdentity(t *testing.T) {
	app := &GoChatApp{signingKey: []byte("test-signing-key")}
	region := 3

	tcases := []struct {
		name string
		id   chat.Identity
	}{
		{name: "account", id: chat.Identity{UserId: 1}},
		{name: "account with region", id: chat.Identity{UserId: 2, RegionId: &region}},
		{name: "guest", id: chat.Identity{GuestRoomId: 9}},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			token, err := app.createToken(tc.id, time.Minute)
			require.NoError(t, err)

			id, err := app.extractIdentityFromToken(token)
			require.NoError(t, err)
			assert.Equal(t, tc.id, id)
		})
	}
}

func TestTokenIdentity_Rejected(t *testing.T) {
	app := &GoChatApp{signingKey: []byte("test-signing-key")}
	other := &GoChatApp{signingKey: []byte("another-key")}

	expired, err := app.createToken(chat.Identity{UserId: 1}, -time.Minute)
	require.NoError(t, err)

	foreign, err := other.createToken(chat.Identity{UserId: 1}, time.Minute)
	require.NoError(t, err)

	empty, err := app.createToken(chat.Identity{}, time.Minute)
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{userIdClaim: 1}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"expired":      expired,
		"wrong key":    foreign,
		"no identity":  empty,
		"unsigned":     none,
		"not a jwt":    "garbage",
		"empty string": "",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := app.extractIdentityFromToken(token)
			assert.Error(t, err)
		})
	}
}

func Test_tokenFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: tokenCookieKey, Value: "from-cookie"})
	req.Header.Set("Authorization", "Bearer from-header")
	token, err := tokenFromRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "from-cookie", token, "expected the cookie to win")

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer from-header")
	token, err = tokenFromRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "from-header", token)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic abc")
	_, err = tokenFromRequest(req)
	assert.Error(t, err)
}

func TestPasswordHash(t *testing.T) {
	hash, err := hashPassword("s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", hash)
	assert.True(t, verifyPassword(hash, "s3cret"))
	assert.False(t, verifyPassword(hash, "wrong"))
}
