package app

import (
	"context"
	"sync"

	"github.com/fd1az/flashloan-arbitrage/business/arbitrage/domain"
)

// EventHub fans execution events out to in-process subscribers. A full
// subscriber buffer drops the event for that subscriber only.
type EventHub struct {
	buffer    int
	telemetry *telemetry

	mu     sync.RWMutex
	nextID int
	subs   map[int]chan domain.ExecutionEvent
	closed bool
}

var _ EventPublisher = (*EventHub)(nil)

// NewEventHub creates a hub with per-subscriber buffers of size buffer.
func NewEventHub(buffer int) (*EventHub, error) {
	tel, err := newTelemetry()
	if err != nil {
		return nil, err
	}
	if buffer < 1 {
		buffer = 1
	}
	return &EventHub{
		buffer:    buffer,
		telemetry: tel,
		subs:      make(map[int]chan domain.ExecutionEvent),
	}, nil
}

// Subscribe returns an event channel and a function that cancels the
// subscription and closes the channel.
func (h *EventHub) Subscribe() (<-chan domain.ExecutionEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan domain.ExecutionEvent, h.buffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}

	id := h.nextID
	h.nextID++
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(c)
			}
		})
	}
}

// Publish never blocks.
func (h *EventHub) Publish(ctx context.Context, ev domain.ExecutionEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.telemetry.eventsDropped.Add(ctx, 1)
		}
	}
	return nil
}

// Subscribers returns the number of live subscriptions.
func (h *EventHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close ends every subscription.
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
