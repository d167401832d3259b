// Package indicators provides the bounded-window statistics the
// indicator-driven strategy patterns are built on: a fixed-size FIFO of
// recent samples plus its simple moving average and population standard
// deviation.
package indicators

import "math"

// RollingWindow accumulates up to size float64 samples in FIFO order. It
// is not safe for concurrent use; callers that share one across
// goroutines must provide their own synchronization.
type RollingWindow struct {
	size   int
	values []float64
	next   int
	filled bool
}

// NewRollingWindow constructs a window of the given capacity. size <= 0
// is coerced to 1.
func NewRollingWindow(size int) *RollingWindow {
	if size <= 0 {
		size = 1
	}
	return &RollingWindow{
		size:   size,
		values: make([]float64, 0, size),
	}
}

// Add pushes a new sample, evicting the oldest once the window is full.
func (w *RollingWindow) Add(v float64) {
	if len(w.values) < w.size {
		w.values = append(w.values, v)
		if len(w.values) == w.size {
			w.filled = true
		}
		return
	}
	w.values[w.next] = v
	w.next = (w.next + 1) % w.size
}

// IsFull reports whether the window has accumulated size samples.
func (w *RollingWindow) IsFull() bool { return w.filled }

// Count returns the number of samples currently held (<= size).
func (w *RollingWindow) Count() int { return len(w.values) }

// Average returns the arithmetic mean of the current samples, or 0 if
// empty.
func (w *RollingWindow) Average() float64 {
	if len(w.values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range w.values {
		sum += v
	}
	return sum / float64(len(w.values))
}

// StdDev returns the population standard deviation of the current
// samples, or 0 if empty.
func (w *RollingWindow) StdDev() float64 {
	n := len(w.values)
	if n == 0 {
		return 0
	}
	avg := w.Average()
	var sumSq float64
	for _, v := range w.values {
		d := v - avg
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(n))
}

// Values returns a copy of the samples in insertion order (oldest
// first), for diagnostics and tests.
func (w *RollingWindow) Values() []float64 {
	if !w.filled {
		out := make([]float64, len(w.values))
		copy(out, w.values)
		return out
	}
	out := make([]float64, w.size)
	for i := 0; i < w.size; i++ {
		out[i] = w.values[(w.next+i)%w.size]
	}
	return out
}
