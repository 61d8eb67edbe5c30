package level

import (
	"math"
	"testing"
)

func TestSilentStreamIsZero(t *testing.T) {
	m := New()

	if got := m.Level(); got != 0 {
		t.Errorf("level before any write = %v, want 0", got)
	}

	m.Write(make([]int16, WindowSize))
	if got := m.Level(); got != 0 {
		t.Errorf("level for silent window = %v, want 0", got)
	}
}

func TestLevelInRange(t *testing.T) {
	tests := []struct {
		name    string
		samples []int16
	}{
		{"full scale positive", fill(32767)},
		{"full scale negative", fill(-32768)},
		{"half scale", fill(16384)},
		{"single sample", []int16{12000}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			m.Write(tt.samples)
			got := m.Level()
			if got < 0 || got > 1 {
				t.Errorf("level = %v, want value in [0,1]", got)
			}
		})
	}
}

func TestSineLevel(t *testing.T) {
	// A full-scale sine has RMS 1/sqrt(2).
	samples := make([]int16, WindowSize)
	for i := range samples {
		samples[i] = int16(32767 * math.Sin(2*math.Pi*float64(i)/128))
	}

	m := New()
	m.Write(samples)

	want := 1 / math.Sqrt2
	if got := m.Level(); math.Abs(got-want) > 0.01 {
		t.Errorf("sine level = %v, want ~%v", got, want)
	}
}

func TestPartialWindow(t *testing.T) {
	// Only the samples written so far count, not the empty remainder.
	m := New()
	m.Write(fill(16384)[:64])

	if got := m.Level(); math.Abs(got-0.5) > 0.01 {
		t.Errorf("partial window level = %v, want ~0.5", got)
	}
}

func TestReset(t *testing.T) {
	m := New()
	m.Write(fill(20000))
	if m.Level() == 0 {
		t.Fatal("expected non-zero level after write")
	}

	m.Reset()
	if got := m.Level(); got != 0 {
		t.Errorf("level after reset = %v, want 0", got)
	}
}

func fill(v int16) []int16 {
	s := make([]int16, WindowSize)
	for i := range s {
		s[i] = v
	}
	return s
}
