// Package feedback renders a loudness scalar as a visual indicator.
//
// Sinks are pure with respect to the level: the same input always produces
// the same output, and Render never blocks. The animation tick calls Render
// once per frame with the freshest level; skipped frames are simply not
// rendered, nothing is buffered.
package feedback

// Sink consumes a loudness level in [0,1] and paints one frame.
type Sink interface {
	Render(level float64)
}

// Bar renders a proportional meter width as a percentage.
// Gain compensates for the typical amplitude range of the monitored stream;
// microphone input and remote playback need different gains.
type Bar struct {
	// Gain scales the raw level before conversion to a percentage.
	Gain float64

	// Draw paints the bar at the given width in [0,100].
	Draw func(pct float64)
}

// Render computes the bar width and paints it.
func (b *Bar) Render(level float64) {
	if b.Draw == nil {
		return
	}
	pct := level * b.Gain * 100
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	b.Draw(pct)
}

// Mouth renders a synthetic mouth-openness value for the avatar.
type Mouth struct {
	// Gain maps the raw level into the openness range.
	Gain float64

	// MaxOpenness caps the openness so loud input does not unhinge the jaw.
	MaxOpenness float64

	// Draw paints one avatar frame at the given openness.
	Draw func(openness float64)
}

// Render computes the openness and paints one frame.
func (m *Mouth) Render(level float64) {
	if m.Draw == nil {
		return
	}
	openness := level * m.Gain
	if openness < 0 {
		openness = 0
	}
	if openness > m.MaxOpenness {
		openness = m.MaxOpenness
	}
	m.Draw(openness)
}

// Empirically tuned defaults. Mic input is quiet relative to full scale,
// remote playback quieter still, hence the aggressive remote gain.
const (
	DefaultMicGain     = 1.2
	DefaultRemoteGain  = 12.0
	DefaultMouthGain   = 170.0
	DefaultMaxOpenness = 42.0
)

// Multi fans one level out to several sinks.
type Multi []Sink

// Render renders the level on every sink in order.
func (m Multi) Render(level float64) {
	for _, s := range m {
		s.Render(level)
	}
}
