package testutil

import (
	"os"
	"testing"

	"github.com/hashicorp/go-hclog"
)

func TestLogger(t *testing.T) hclog.Logger {
	t.Helper()
	return hclog.New(&hclog.LoggerOptions{
		Name:   "test",
		Level:  hclog.Debug,
		Output: os.Stdout,
	})
}
