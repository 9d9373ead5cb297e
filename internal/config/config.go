package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"

	envPrefix         = "GOCHAT"
	defaultSigningKey = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="
	defaultDSN        = "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable"
)

type Config struct {
	ServerAddr     string
	Store          string
	DatabaseDSN    string
	SigningKey     []byte
	AllowedOrigins []string
	RedisAddr      string
	RedisChannel   string
	LogLevel       string
	TypingTimeout  time.Duration
	SendQueueSize  int
	Migrate        bool
}

// Flags returns the server flag set. Flag names use dashes; the matching
// config keys and GOCHAT_ environment variables use underscores.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("gochat", pflag.ContinueOnError)
	fs.String("config", "", "path to a config file")
	fs.String("addr", "localhost:8000", "server address")
	fs.String("store", StorePostgres, "room and message store: postgres or memory")
	fs.String("dsn", defaultDSN, "database connection string")
	fs.String("signing-key", defaultSigningKey, "base64 encoded signing key")
	fs.StringSlice("allowed-origins", nil, "comma-separated list of allowed origins for CORS")
	fs.String("redis-addr", "", "redis address for cross-instance fan-out, empty for in-process")
	fs.String("redis-channel", "gochat:events", "redis pub/sub channel")
	fs.String("log-level", "info", "log level")
	fs.Duration("typing-timeout", 8*time.Second, "silence after which a typing indicator expires")
	fs.Int("send-queue-size", 256, "frames buffered per websocket connection")
	fs.Bool("migrate", true, "apply database migrations on start")
	fs.SetNormalizeFunc(wordSepNormalizeFunc)
	return fs
}

func wordSepNormalizeFunc(f *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "-", "_"))
}

// Load resolves the configuration from flags, GOCHAT_* environment
// variables and an optional config file, in that order of precedence.
func Load(v *viper.Viper, fs *pflag.FlagSet) (*Config, error) {
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg, err := NewConfig(v.GetString("addr"), v.GetString("dsn"), v.GetString("signing_key"), v.GetStringSlice("allowed_origins"))
	if err != nil {
		return nil, err
	}

	cfg.Store = v.GetString("store")
	cfg.RedisAddr = v.GetString("redis_addr")
	cfg.RedisChannel = v.GetString("redis_channel")
	cfg.LogLevel = v.GetString("log_level")
	cfg.TypingTimeout = v.GetDuration("typing_timeout")
	cfg.SendQueueSize = v.GetInt("send_queue_size")
	cfg.Migrate = v.GetBool("migrate")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store {
	case StorePostgres, StoreMemory:
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	if c.TypingTimeout <= 0 {
		return errors.New("typing timeout must be positive")
	}
	if c.SendQueueSize <= 0 {
		return errors.New("send queue size must be positive")
	}
	return nil
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(base64Secret)
	if err != nil {
		return nil, err
	}
	if len(key) == 0 {
		return nil, errors.New("empty signing secret")
	}
	return key, nil
}

func NewConfig(serverAddr, databaseDSN, base64Secret string, allowedOrigins []string) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}

	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	return &Config{
		ServerAddr:     serverAddr,
		Store:          StorePostgres,
		DatabaseDSN:    databaseDSN,
		SigningKey:     signingKey,
		AllowedOrigins: allowedOrigins,
		LogLevel:       "info",
		TypingTimeout:  8 * time.Second,
		SendQueueSize:  256,
		Migrate:        true,
	}, nil
}
