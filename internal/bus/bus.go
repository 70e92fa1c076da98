package bus

import (
	"sync"

	"github.com/anvh2/sentiment-trading/internal/models"
)

// SignalBus is the bounded buffer between the execution engine and
// signal fusion. When full, the oldest HOLD signals are dropped first;
// non-HOLD signals are retained. Dropped counts are observable so
// overflow is never silent.
type SignalBus struct {
	mutex    sync.Mutex
	buffer   []*models.TechnicalSignal
	capacity int
	dropped  int64
	notify   chan struct{}
	closed   bool
}

func New(capacity int) *SignalBus {
	if capacity <= 0 {
		capacity = 1024
	}

	return &SignalBus{
		buffer:   make([]*models.TechnicalSignal, 0, capacity),
		capacity: capacity,
		notify:   make(chan struct{}, 1),
	}
}

// Publish appends a signal, evicting by the overflow policy when full.
// Returns false when the bus is closed.
func (b *SignalBus) Publish(signal *models.TechnicalSignal) bool {
	if signal == nil {
		return false
	}

	b.mutex.Lock()

	if b.closed {
		b.mutex.Unlock()
		return false
	}

	if len(b.buffer) >= b.capacity {
		b.evict()
	}

	b.buffer = append(b.buffer, signal)
	b.mutex.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}

	return true
}

// evict drops the oldest HOLD signal, falling back to the oldest signal
// when the buffer holds no HOLD at all. Caller holds the lock.
func (b *SignalBus) evict() {
	for i, signal := range b.buffer {
		if signal.Action == models.ActionHold {
			b.buffer = append(b.buffer[:i], b.buffer[i+1:]...)
			b.dropped++
			return
		}
	}

	b.buffer = b.buffer[1:]
	b.dropped++
}

// Poll removes and returns the oldest buffered signal.
func (b *SignalBus) Poll() (*models.TechnicalSignal, bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if len(b.buffer) == 0 {
		return nil, false
	}

	signal := b.buffer[0]
	b.buffer = b.buffer[1:]
	return signal, true
}

// Wait returns a channel that fires when new signals may be available.
func (b *SignalBus) Wait() <-chan struct{} {
	return b.notify
}

// Len returns the number of buffered signals.
func (b *SignalBus) Len() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return len(b.buffer)
}

// Dropped returns the total evicted signal count.
func (b *SignalBus) Dropped() int64 {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.dropped
}

// Close stops accepting publishes. Buffered signals remain pollable so
// shutdown can drain the queue.
func (b *SignalBus) Close() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if !b.closed {
		b.closed = true
		close(b.notify)
	}
}
