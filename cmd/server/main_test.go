package main

import (
	"testing"
	"time"

	"github.com/npezzotti/go-chatsync/internal/config"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepInterval(t *testing.T) {
	assert.Equal(t, 2*time.Second, sweepInterval(8*time.Second))
	assert.Equal(t, time.Second, sweepInterval(2*time.Second))
}

func TestRootCmdFlags(t *testing.T) {
	cmd := newRootCmd()
	require.NoError(t, cmd.Flags().Parse([]string{
		"--store", "memory",
		"--send-queue-size", "16",
		"--allowed-origins", "http://a.test,http://b.test",
	}))

	cfg, err := config.Load(viper.New(), cmd.Flags())
	require.NoError(t, err)
	assert.Equal(t, config.StoreMemory, cfg.Store)
	assert.Equal(t, 16, cfg.SendQueueSize)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins)
	assert.Equal(t, "localhost:8000", cfg.ServerAddr)
}
