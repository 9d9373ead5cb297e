package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"github.com/npezzotti/go-chatsync/internal/api"
	"github.com/npezzotti/go-chatsync/internal/broker"
	"github.com/npezzotti/go-chatsync/internal/chat"
	"github.com/npezzotti/go-chatsync/internal/config"
	"github.com/npezzotti/go-chatsync/internal/database"
	"github.com/npezzotti/go-chatsync/internal/presence"
	"github.com/npezzotti/go-chatsync/internal/server"
	"github.com/npezzotti/go-chatsync/internal/stats"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	shutdownTimeout  = 10 * time.Second
	minSweepInterval = time.Second
)

func main() {
	// a missing .env is fine
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "gochat",
		Short:        "Realtime chat server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(viper.New(), cmd.Flags())
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}
	cmd.CompletionOptions.DisableDefaultCmd = true

	fs := config.Flags()
	cmd.Flags().AddFlagSet(fs)
	cmd.Flags().SetNormalizeFunc(fs.GetNormalizeFunc())

	return cmd
}

func openStore(cfg *config.Config, logger hclog.Logger) (database.GoChatRepository, error) {
	if cfg.Store == config.StoreMemory {
		logger.Warn("using in-memory store, data is lost on exit")
		return database.NewMemoryRepository(), nil
	}

	repo, err := database.NewPgGoChatRepository(cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}

	if cfg.Migrate {
		if err := database.Migrate(repo.DB(), logger.Named("migrate")); err != nil {
			repo.Close()
			return nil, err
		}
	}
	return repo, nil
}

func openBroker(ctx context.Context, cfg *config.Config, logger hclog.Logger) (broker.Broker, error) {
	if cfg.RedisAddr == "" {
		return broker.NewLocal(), nil
	}

	b := broker.NewRedis(cfg.RedisAddr, cfg.RedisChannel, logger)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := b.Ping(pingCtx); err != nil {
		b.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return b, nil
}

// sweepInterval checks for stale typing entries a few times per timeout.
func sweepInterval(timeout time.Duration) time.Duration {
	interval := timeout / 4
	if interval < minSweepInterval {
		interval = minSweepInterval
	}
	return interval
}

func run(cfg *config.Config) error {
	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "go-chat",
		Level: hclog.LevelFromString(cfg.LogLevel),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := openStore(cfg, logger)
	if err != nil {
		return err
	}

	b, err := openBroker(ctx, cfg, logger)
	if err != nil {
		repo.Close()
		return err
	}

	mux := http.NewServeMux()
	statsUpdater := stats.NewStatsUpdater(mux)

	router, err := server.NewRouter(logger, b, repo, statsUpdater, server.RouterOptions{})
	if err != nil {
		b.Close()
		repo.Close()
		return fmt.Errorf("new router: %w", err)
	}

	tracker := presence.NewTracker()
	typing := presence.NewTyping(cfg.TypingTimeout)
	engine := chat.NewEngine(repo, router, tracker, logger)

	chatServer, err := server.NewChatServer(logger, engine, router, tracker, typing, statsUpdater, server.Options{
		SendQueueSize: cfg.SendQueueSize,
	})
	if err != nil {
		router.Close()
		repo.Close()
		return fmt.Errorf("new chat server: %w", err)
	}

	sweeper, err := presence.NewSweeper(typing, sweepInterval(cfg.TypingTimeout), chatServer.EmitTyping, logger)
	if err != nil {
		router.Close()
		repo.Close()
		return err
	}

	if err := router.Start(ctx); err != nil {
		router.Close()
		repo.Close()
		return fmt.Errorf("start router: %w", err)
	}
	go chatServer.Run()
	sweeper.Start()

	srv := api.NewGoChatApp(mux, logger, chatServer, engine, repo, cfg)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	var result *multierror.Error
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			result = multierror.Append(result, fmt.Errorf("server: %w", err))
		}
	}

	shutDownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		result = multierror.Append(result, err)
	}
	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		result = multierror.Append(result, fmt.Errorf("chat server shutdown: %w", err))
	}
	if err := sweeper.Stop(shutDownCtx); err != nil {
		result = multierror.Append(result, fmt.Errorf("typing sweeper: %w", err))
	}
	if err := router.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("router close: %w", err))
	}
	if err := repo.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("db close: %w", err))
	}

	if err := result.ErrorOrNil(); err != nil {
		logger.Error("shutdown finished with errors", "error", err)
		return err
	}

	logger.Info("shutdown complete")
	return nil
}
