package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/npezzotti/go-chatsync/internal/chat"
	"golang.org/x/crypto/bcrypt"
)

var (
	defaultExp     = time.Hour * 24
	guestExp       = time.Hour * 12
	tokenCookieKey = "token"
)

const (
	userIdClaim      = "user-id"
	regionIdClaim    = "region-id"
	guestRoomIdClaim = "guest-room-id"
	expClaim         = "exp"
)

type contextKey string

const identityKey contextKey = "identity"

// WithIdentity returns a copy of ctx carrying the caller.
func WithIdentity(ctx context.Context, id chat.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func IdentityFrom(ctx context.Context) (chat.Identity, bool) {
	id, ok := ctx.Value(identityKey).(chat.Identity)
	return id, ok
}

func WithUserId(ctx context.Context, userId int) context.Context {
	return WithIdentity(ctx, chat.Identity{UserId: userId})
}

// UserId reports the signed-in account. Guests have none.
func UserId(ctx context.Context) (int, bool) {
	id, ok := IdentityFrom(ctx)
	if !ok || id.UserId == 0 {
		return 0, false
	}
	return id.UserId, true
}

func createJwtCookie(tokenString string, exp time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     tokenCookieKey,
		Value:    tokenString,
		Path:     "/",
		Expires:  time.Now().Add(exp),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}

// tokenFromRequest reads the token cookie, falling back to a bearer
// Authorization header.
func tokenFromRequest(r *http.Request) (string, error) {
	if c, err := r.Cookie(tokenCookieKey); err == nil && c.Value != "" {
		return c.Value, nil
	}

	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok && token != "" {
		return token, nil
	}

	return "", errors.New("no token")
}

func hashPassword(passwd string) (string, error) {
	passwdHash, err := bcrypt.GenerateFromPassword([]byte(passwd), bcrypt.DefaultCost)
	return string(passwdHash), err
}

func verifyPassword(passwdHash, passwd string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(passwdHash), []byte(passwd))
	return err == nil
}

func (s *GoChatApp) createToken(id chat.Identity, exp time.Duration) (string, error) {
	claims := jwt.MapClaims{
		expClaim: time.Now().Add(exp).Unix(),
	}
	if id.UserId != 0 {
		claims[userIdClaim] = id.UserId
	}
	if id.RegionId != nil {
		claims[regionIdClaim] = *id.RegionId
	}
	if id.GuestRoomId != 0 {
		claims[guestRoomIdClaim] = id.GuestRoomId
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.signingKey)
}

func (s *GoChatApp) verifyToken(tokenString string) (*jwt.Token, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	return token, nil
}

func intClaim(claims jwt.MapClaims, name string) (int, bool) {
	v, ok := claims[name].(float64)
	if !ok {
		return 0, false
	}
	return int(v), true
}

func (s *GoChatApp) extractIdentityFromToken(tokenString string) (chat.Identity, error) {
	token, err := s.verifyToken(tokenString)
	if err != nil {
		return chat.Identity{}, fmt.Errorf("verify token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return chat.Identity{}, fmt.Errorf("invalid token claims")
	}

	var id chat.Identity
	id.UserId, _ = intClaim(claims, userIdClaim)
	id.GuestRoomId, _ = intClaim(claims, guestRoomIdClaim)
	if regionId, ok := intClaim(claims, regionIdClaim); ok {
		id.RegionId = &regionId
	}

	if id.Anonymous() {
		return chat.Identity{}, fmt.Errorf("token carries no identity")
	}
	return id, nil
}
