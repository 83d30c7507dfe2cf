// Package broadcast tracks connected observers and pushes a payload-free
// "state changed" signal to all of them.
//
// Delivery is best effort: each observer owns a small buffered channel and a
// signal that does not fit is dropped. Dropping is safe because every signal
// means the same thing ("re-fetch") and a queued one already covers it. An
// observer that is not registered when NotifyAll runs misses the signal and
// has to re-fetch on its own after it reconnects.
package broadcast

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"checklist/api/internal/metrics"
	"checklist/api/internal/util"
)

var ErrClosed = errors.New("broadcaster closed")

const defaultBuffer = 8

type Observer struct {
	id      string
	signals chan struct{}
}

func (o *Observer) ID() string { return o.id }

// Signals is closed when the observer is unregistered or the hub closes.
func (o *Observer) Signals() <-chan struct{} { return o.signals }

type Hub struct {
	logger *zap.Logger
	buffer int

	mu        sync.Mutex
	observers map[string]*Observer
	closed    bool
}

type Option func(*Hub)

// WithBuffer sets how many undelivered signals an observer may hold.
func WithBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

func NewHub(logger *zap.Logger, opts ...Option) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		logger:    logger.Named("broadcast"),
		buffer:    defaultBuffer,
		observers: map[string]*Observer{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) Register() (*Observer, error) {
	o := &Observer{id: util.NewID("obs"), signals: make(chan struct{}, h.buffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}
	h.observers[o.id] = o
	metrics.Observers.Set(float64(len(h.observers)))
	h.logger.Debug("observer registered", zap.String("observer", o.id), zap.Int("observers", len(h.observers)))
	return o, nil
}

// Unregister is idempotent.
func (h *Hub) Unregister(o *Observer) {
	if o == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.observers[o.id]; !ok {
		return
	}
	delete(h.observers, o.id)
	close(o.signals)
	metrics.Observers.Set(float64(len(h.observers)))
	h.logger.Debug("observer unregistered", zap.String("observer", o.id), zap.Int("observers", len(h.observers)))
}

// NotifyAll signals every registered observer and reports how many had room
// for the signal.
func (h *Hub) NotifyAll() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	delivered := 0
	for _, o := range h.observers {
		select {
		case o.signals <- struct{}{}:
			delivered++
		default:
			metrics.SignalsDropped.Inc()
		}
	}
	metrics.Broadcasts.Inc()
	return delivered
}

// Notify lets the hub stand in wherever a context-aware notifier is expected.
func (h *Hub) Notify(context.Context) {
	h.NotifyAll()
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.observers)
}

// Close unregisters every observer and refuses new registrations.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, o := range h.observers {
		delete(h.observers, id)
		close(o.signals)
	}
	metrics.Observers.Set(0)
}
