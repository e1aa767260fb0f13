// Package event fans domain events out to asynchronous handlers.
package event

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

const (
	defaultWorkers = 64
	defaultTimeout = 10 * time.Second
)

type Event interface {
	Name() string
}

type Handler func(ctx context.Context, e Event) error

type Option func(b *Bus)

// WithWorkers bounds the number of handlers running at once.
func WithWorkers(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.slots = make(chan struct{}, n)
		}
	}
}

// WithTimeout limits how long a single handler may run.
func WithTimeout(d time.Duration) Option {
	return func(b *Bus) { b.timeout = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) { b.log = l }
}

// Bus is an in-process publish/subscribe hub. Publish never waits for handlers to finish.
type Bus struct {
	slots   chan struct{}
	timeout time.Duration
	log     *slog.Logger
	wg      sync.WaitGroup

	mu       sync.RWMutex
	stopped  bool
	handlers map[string][]Handler
}

// NewBus creates a bus. Call Stop to wait for in-flight handlers on shutdown.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		slots:    make(chan struct{}, defaultWorkers),
		timeout:  defaultTimeout,
		log:      slog.Default(),
		handlers: make(map[string][]Handler),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = append(b.handlers[name], h)
}

// Publish dispatches e to every handler subscribed to its name.
// Events published after Stop are dropped.
func (b *Bus) Publish(ctx context.Context, e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.stopped {
		b.log.WarnContext(ctx, "event: bus stopped, dropping event", "event", e.Name())
		return
	}
	for _, h := range b.handlers[e.Name()] {
		b.dispatch(ctx, h, e)
	}
}

func (b *Bus) dispatch(ctx context.Context, h Handler, e Event) {
	b.wg.Add(1)
	b.slots <- struct{}{}

	go func() {
		// handlers outlive the request that published the event
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
		defer func() {
			if r := recover(); r != nil {
				b.log.ErrorContext(ctx, "event: handler panic",
					"event", e.Name(),
					"error", fmt.Errorf("%v, stack: %s", r, debug.Stack()),
				)
			}
			cancel()
			<-b.slots
			b.wg.Done()
		}()

		if err := h(ctx, e); err != nil {
			b.log.ErrorContext(ctx, "event: handler failed", "event", e.Name(), "error", err)
		}
	}()
}

// Stop rejects new events and waits for running handlers.
func (b *Bus) Stop() {
	b.mu.Lock()
	b.stopped = true
	b.mu.Unlock()
	b.wg.Wait()
}
