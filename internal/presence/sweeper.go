package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/npezzotti/go-chatsync/internal/types"
	"github.com/robfig/cron/v3"
)

// Sweeper periodically expires typing entries and hands the resulting
// stop notifications to emit.
type Sweeper struct {
	cron   *cron.Cron
	typing *Typing
	emit   func([]types.TypingChanged)
	log    hclog.Logger
}

func NewSweeper(typing *Typing, interval time.Duration, emit func([]types.TypingChanged), logger hclog.Logger) (*Sweeper, error) {
	s := &Sweeper{
		typing: typing,
		emit:   emit,
		log:    logger.Named("typing-sweeper"),
	}

	s.cron = cron.New(cron.WithLogger(cronLogger{s.log}))
	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", interval), s.Sweep); err != nil {
		return nil, fmt.Errorf("schedule typing sweep: %w", err)
	}

	return s, nil
}

func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to finish or ctx
// to end.
func (s *Sweeper) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sweeper) Sweep() {
	stopped := s.typing.Expire()
	if len(stopped) == 0 {
		return
	}

	s.log.Trace("expired typing entries", "count", len(stopped))
	s.emit(stopped)
}

// cronLogger adapts hclog to the cron logger interface.
type cronLogger struct {
	log hclog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Trace(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
