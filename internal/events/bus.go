// Package events provides the in-process lifecycle event bus. The event
// set is closed (see domain.Event); dispatch is synchronous and
// fire-and-forget: a failing handler is logged, never surfaced to the
// publisher.
package events

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/prn-tf/mediaboard/internal/domain"
)

// Handler receives every published event. Handlers switch on the
// concrete event type for the variants they care about.
type Handler func(ctx context.Context, ev domain.Event) error

// Bus fans published events out to subscribers in registration order.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
	logger   zerolog.Logger
}

// NewBus creates an empty bus.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		logger: logger.With().Str("component", "events").Logger(),
	}
}

// Subscribe registers a handler for all events. Not safe to call
// concurrently with itself during Publish-heavy startup races, but safe
// once serving begins; registration normally happens during wiring.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish delivers ev to every subscriber synchronously. Handler errors
// are logged and swallowed; the triggering operation never aborts on a
// subscriber failure.
func (b *Bus) Publish(ctx context.Context, ev domain.Event) {
	b.mu.RLock()
	handlers := b.handlers
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, ev); err != nil {
			b.logger.Error().
				Err(err).
				Str("event", ev.EventName()).
				Msg("event handler failed")
		}
	}
}
