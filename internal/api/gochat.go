package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/hashicorp/go-hclog"
	"github.com/npezzotti/go-chatsync/internal/chat"
	"github.com/npezzotti/go-chatsync/internal/config"
	"github.com/npezzotti/go-chatsync/internal/database"
	"github.com/npezzotti/go-chatsync/internal/server"
)

type GoChatApp struct {
	log            hclog.Logger
	db             database.GoChatRepository
	engine         *chat.Engine
	mux            *http.Server
	cs             *server.ChatServer
	signingKey     []byte
	allowedOrigins []string
}

func NewGoChatApp(mux *http.ServeMux, logger hclog.Logger, cs *server.ChatServer, engine *chat.Engine, db database.GoChatRepository, cfg *config.Config) *GoChatApp {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	s := &GoChatApp{
		log:            logger,
		db:             db,
		engine:         engine,
		cs:             cs,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("GET /api/auth/session", s.authMiddleware(s.session))
	mux.HandleFunc("GET /api/auth/logout", s.logout)

	mux.HandleFunc("GET /api/chat/rooms", s.authMiddleware(s.listRooms))
	mux.HandleFunc("POST /api/chat/rooms", s.authMiddleware(s.createRoom))
	mux.HandleFunc("GET /api/chat/rooms/{roomId}/messages", s.identityMiddleware(s.listMessages))
	mux.HandleFunc("POST /api/chat/rooms/{roomId}/messages", s.identityMiddleware(s.sendMessage))
	mux.HandleFunc("POST /api/chat/rooms/{roomId}/join", s.authMiddleware(s.joinRoom))
	mux.HandleFunc("DELETE /api/chat/rooms/{roomId}/leave", s.authMiddleware(s.leaveRoom))
	mux.HandleFunc("POST /api/chat/rooms/{roomId}/read", s.authMiddleware(s.markRead))
	mux.HandleFunc("GET /api/chat/rooms/{roomId}/members", s.authMiddleware(s.listMembers))

	mux.HandleFunc("PUT /api/chat/messages/{messageId}", s.authMiddleware(s.editMessage))
	mux.HandleFunc("DELETE /api/chat/messages/{messageId}", s.authMiddleware(s.deleteMessage))
	mux.HandleFunc("POST /api/chat/messages/{messageId}/reactions", s.authMiddleware(s.reactToMessage))
	mux.HandleFunc("POST /api/chat/messages/{messageId}/forward", s.authMiddleware(s.forwardMessage))

	mux.HandleFunc("GET /api/chat/users/online", s.authMiddleware(s.onlineUsers))
	mux.HandleFunc("GET /api/chat/users/search", s.authMiddleware(s.searchUsers))

	mux.HandleFunc("POST /api/support/rooms", s.createSupportRoom)
	mux.HandleFunc("GET /api/support/rooms", s.authMiddleware(s.listOpenSupportRooms))

	mux.HandleFunc("GET /ws", s.authMiddleware(s.serveWs))
	mux.HandleFunc("GET /healthz", s.healthCheck)

	var h http.Handler = handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	h = handlers.LoggingHandler(logger.StandardWriter(&hclog.StandardLoggerOptions{ForceLevel: hclog.Debug}), h)
	h = s.errorHandler(h)

	s.mux = &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          logger.StandardLogger(&hclog.StandardLoggerOptions{InferLevels: true}),
	}

	return s
}

// Handler is the fully wrapped handler the server serves.
func (s *GoChatApp) Handler() http.Handler {
	return s.mux.Handler
}

func (s *GoChatApp) Start() error {
	s.log.Info("starting server", "addr", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *GoChatApp) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
