// Package broker moves committed events between the engine and every
// router instance that may hold recipient connections.
package broker

import (
	"context"
	"sync"

	"github.com/npezzotti/go-chatsync/internal/types"
)

type Handler func(types.Event)

// Broker delivers every published event to the handler passed to Start,
// in publish order.
type Broker interface {
	Publish(ctx context.Context, ev types.Event) error
	Start(ctx context.Context, handler Handler) error
	Close() error
}

// Local is an in-process Broker for single instance deployments.
type Local struct {
	mu      sync.RWMutex
	handler Handler
}

func NewLocal() *Local {
	return &Local{}
}

func (l *Local) Start(ctx context.Context, handler Handler) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handler = handler
	return nil
}

func (l *Local) Publish(ctx context.Context, ev types.Event) error {
	l.mu.RLock()
	h := l.handler
	l.mu.RUnlock()

	if h != nil {
		h(ev)
	}
	return nil
}

func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handler = nil
	return nil
}
