package api

import (
	"fmt"
	"net/http"
	"runtime/debug"
)

func (s *GoChatApp) errorHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				var panicError error
				switch e := err.(type) {
				case error:
					panicError = e
				default:
					panicError = fmt.Errorf("%v", e)
				}
				s.log.Error(fmt.Sprintf("panic: %v", panicError), "path", r.URL.Path, "stack", string(debug.Stack()))
				errResp := NewInternalServerError(panicError)
				w.Header().Set("Connection", "close")
				s.writeJson(w, errResp.StatusCode, errResp)
				return
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// identityMiddleware accepts account and guest tokens alike.
func (s *GoChatApp) identityMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenString, err := tokenFromRequest(r)
		if err != nil {
			s.writeError(w, NewUnauthorizedError())
			return
		}

		id, err := s.extractIdentityFromToken(tokenString)
		if err != nil {
			s.log.Debug("rejected token", "error", err)
			s.writeError(w, NewUnauthorizedError())
			return
		}

		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
		next(w, r.WithContext(WithIdentity(r.Context(), id)))
	}
}

// authMiddleware additionally requires a signed-in account.
func (s *GoChatApp) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return s.identityMiddleware(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserId(r.Context()); !ok {
			s.writeError(w, NewUnauthorizedError())
			return
		}
		next(w, r)
	})
}
