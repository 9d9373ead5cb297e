package clientstate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

var ErrStoreStopped = errors.New("store stopped")

const defaultQueueSize = 256

// Store serializes every op through one goroutine. Readers get the latest
// snapshot without blocking the dispatch loop.
type Store struct {
	log  hclog.Logger
	ops  chan Op
	done chan struct{}

	mu        sync.RWMutex
	state     State
	listeners []func(State)
	applied   int
}

func NewStore(me int, typingTimeout time.Duration, logger hclog.Logger) *Store {
	return &Store{
		log:   logger.Named("clientstate"),
		ops:   make(chan Op, defaultQueueSize),
		done:  make(chan struct{}),
		state: NewState(me, typingTimeout),
	}
}

// OnChange registers fn to be called on the dispatch goroutine after
// every applied op.
func (s *Store) OnChange(fn func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Run applies queued ops until ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	defer close(s.done)

	for {
		select {
		case op := <-s.ops:
			s.apply(op)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Store) apply(op Op) {
	s.log.Trace("applying op", "op", fmt.Sprintf("%T", op))

	s.mu.Lock()
	s.state = Reduce(s.state, op)
	s.applied++
	state := s.state
	listeners := s.listeners
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(state)
	}
}

// Dispatch queues op for the dispatch loop.
func (s *Store) Dispatch(ctx context.Context, op Op) error {
	select {
	case s.ops <- op:
		return nil
	case <-s.done:
		return ErrStoreStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the latest snapshot.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Applied returns how many ops have been reduced so far.
func (s *Store) Applied() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.applied
}

// RunTypingExpiry dispatches a TypingTick every interval until ctx is
// cancelled.
func (s *Store) RunTypingExpiry(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			if err := s.Dispatch(ctx, TypingTick{Now: now}); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
