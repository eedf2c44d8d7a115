// Package channel provides the in-process event bus between the scheduler
// and the dispatcher workers.
package channel

import (
	"context"
	"errors"
	"time"

	"github.com/djlord-it/easy-trigger/internal/domain"
)

// ErrBufferFull is returned when an emit cannot be accepted within the
// configured timeout.
var ErrBufferFull = errors.New("event bus buffer full")

// DefaultEmitTimeout bounds how long Emit blocks on a saturated buffer.
const DefaultEmitTimeout = time.Second

// MetricsSink records bus buffer metrics.
type MetricsSink interface {
	BufferSizeUpdate(size int)
	BufferCapacitySet(capacity int)
	BufferSaturationUpdate(saturation float64)
	EmitError()
}

type Option func(*EventBus)

func WithEmitTimeout(d time.Duration) Option {
	return func(b *EventBus) {
		b.emitTimeout = d
	}
}

func WithMetrics(sink MetricsSink) Option {
	return func(b *EventBus) {
		b.metrics = sink
	}
}

type EventBus struct {
	ch          chan domain.FireEvent
	emitTimeout time.Duration
	metrics     MetricsSink // optional, nil = disabled
}

func NewEventBus(buffer int, opts ...Option) *EventBus {
	b := &EventBus{
		ch:          make(chan domain.FireEvent, buffer),
		emitTimeout: DefaultEmitTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.metrics != nil {
		b.metrics.BufferCapacitySet(buffer)
	}
	return b
}

// Emit enqueues the event, blocking for at most the emit timeout when the
// buffer is saturated.
func (b *EventBus) Emit(ctx context.Context, event domain.FireEvent) error {
	timer := time.NewTimer(b.emitTimeout)
	defer timer.Stop()

	select {
	case b.ch <- event:
		b.updateBufferMetrics()
		return nil
	case <-timer.C:
		if b.metrics != nil {
			b.metrics.EmitError()
		}
		return ErrBufferFull
	case <-ctx.Done():
		if b.metrics != nil {
			b.metrics.EmitError()
		}
		return ctx.Err()
	}
}

func (b *EventBus) Channel() <-chan domain.FireEvent {
	return b.ch
}

func (b *EventBus) updateBufferMetrics() {
	if b.metrics == nil {
		return
	}
	size := len(b.ch)
	capacity := cap(b.ch)
	b.metrics.BufferSizeUpdate(size)
	if capacity > 0 {
		b.metrics.BufferSaturationUpdate(float64(size) / float64(capacity))
	}
}
