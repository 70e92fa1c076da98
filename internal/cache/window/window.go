package window

import (
	"sync"

	"github.com/anvh2/sentiment-trading/internal/models"
)

// Window is the rolling bounded price history for one symbol. The
// execution engine is the only writer; every other reader works on a
// snapshot copy.
type Window struct {
	mutex *sync.RWMutex
	data  []*models.Tick
	size  int
}

func New(size int) *Window {
	if size <= 0 {
		size = 1
	}

	return &Window{
		mutex: &sync.RWMutex{},
		data:  make([]*models.Tick, 0, size),
		size:  size,
	}
}

// Push appends a tick and evicts the oldest entries while over
// capacity. Ticks older than the current tail are dropped; a tick that
// shares the tail's timestamp replaces it in place, so replaying the
// last tick leaves the window unchanged.
func (w *Window) Push(tick *models.Tick) bool {
	if tick == nil {
		return false
	}

	w.mutex.Lock()
	defer w.mutex.Unlock()

	if n := len(w.data); n > 0 {
		last := w.data[n-1]

		if tick.Time < last.Time {
			return false
		}

		if tick.Time == last.Time {
			w.data[n-1] = tick
			return true
		}
	}

	w.data = append(w.data, tick)
	for len(w.data) > w.size {
		w.data = w.data[1:]
	}

	return true
}

// Len returns the number of buffered ticks.
func (w *Window) Len() int {
	w.mutex.RLock()
	defer w.mutex.RUnlock()
	return len(w.data)
}

// Capacity returns the configured bound.
func (w *Window) Capacity() int {
	return w.size
}

// Snapshot returns an ordered copy of the buffered ticks.
func (w *Window) Snapshot() []*models.Tick {
	w.mutex.RLock()
	defer w.mutex.RUnlock()

	out := make([]*models.Tick, len(w.data))
	copy(out, w.data)
	return out
}

// Last returns the most recent tick, nil when empty.
func (w *Window) Last() *models.Tick {
	w.mutex.RLock()
	defer w.mutex.RUnlock()

	if len(w.data) == 0 {
		return nil
	}
	return w.data[len(w.data)-1]
}

// Closes extracts the close prices from a tick snapshot.
func Closes(ticks []*models.Tick) []float64 {
	out := make([]float64, len(ticks))
	for i, tick := range ticks {
		out[i] = tick.Price
	}
	return out
}

// Volumes extracts the volumes from a tick snapshot.
func Volumes(ticks []*models.Tick) []float64 {
	out := make([]float64, len(ticks))
	for i, tick := range ticks {
		out[i] = tick.Volume
	}
	return out
}
