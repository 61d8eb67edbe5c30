// Package level computes a loudness scalar from a live audio stream.
//
// The monitor keeps a fixed window of the most recent samples and reports
// their root-mean-square as a value in [0,1]. RMS is a loudness proxy, not
// perceptual loudness; it only drives visual indicators, never audio
// decisions.
package level

import (
	"math"
	"sync"
)

// WindowSize is the number of samples the RMS is computed over.
// Matches a 2048-bin time-domain analyser window.
const WindowSize = 2048

// Monitor tracks the loudness of a PCM16 sample stream.
// Writers feed it from the capture or decode loop; the animation tick reads
// Level concurrently. The zero value is not usable, call New.
type Monitor struct {
	mu     sync.Mutex
	window []int16
	pos    int
	filled int
	level  float64
}

// New creates a monitor with the standard window size.
func New() *Monitor {
	return &Monitor{window: make([]int16, WindowSize)}
}

// Write appends samples to the analysis window and refreshes the cached
// level. Safe to call from any goroutine.
func (m *Monitor) Write(samples []int16) {
	if len(samples) == 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range samples {
		m.window[m.pos] = s
		m.pos = (m.pos + 1) % len(m.window)
		if m.filled < len(m.window) {
			m.filled++
		}
	}
	m.level = rms(m.window[:m.filled])
}

// Level returns the most recent loudness value in [0,1].
// A stream with no signal reports 0.
func (m *Monitor) Level() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

// Reset clears the window, returning the level to 0.
// Used when the monitored stream detaches.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.window {
		m.window[i] = 0
	}
	m.pos = 0
	m.filled = 0
	m.level = 0
}

// rms computes the root-mean-square of zero-centered, normalized samples.
func rms(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / 32768
		sum += v * v
	}
	r := math.Sqrt(sum / float64(len(samples)))
	if r > 1 {
		r = 1
	}
	return r
}
