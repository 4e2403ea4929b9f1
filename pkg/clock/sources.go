package clock

import (
	"sync/atomic"
	"time"
)

// Positioner is implemented by audio players that report their playback
// position, such as *audio.Player from ebiten.
type Positioner interface {
	Position() time.Duration
}

// PlayerSource reads the playback position of an audio player.
type PlayerSource struct {
	Player Positioner
}

// Now implements Source.
func (s PlayerSource) Now() float64 {
	if s.Player == nil {
		return 0
	}
	return s.Player.Position().Seconds()
}

// SampleSource derives time from a count of rendered samples. Add is called
// from the audio goroutine; Now from the tick loop.
type SampleSource struct {
	rate    int
	samples atomic.Int64
}

// NewSampleSource creates a SampleSource for the given sample rate.
func NewSampleSource(sampleRate int) *SampleSource {
	return &SampleSource{rate: sampleRate}
}

// Add records n more rendered samples.
func (s *SampleSource) Add(n int64) {
	s.samples.Add(n)
}

// Samples returns the rendered sample count.
func (s *SampleSource) Samples() int64 {
	return s.samples.Load()
}

// SampleRate returns the configured rate.
func (s *SampleSource) SampleRate() int {
	return s.rate
}

// Now implements Source.
func (s *SampleSource) Now() float64 {
	if s.rate <= 0 {
		return 0
	}
	return float64(s.samples.Load()) / float64(s.rate)
}

// ManualSource is advanced explicitly. It drives simulated playback when no
// audio device or SoundFont is available, and tests.
type ManualSource struct {
	t float64
}

// NewManualSource creates a ManualSource starting at t.
func NewManualSource(t float64) *ManualSource {
	return &ManualSource{t: t}
}

// Set moves the source to t. Moving backwards is allowed; AudioClock clamps it.
func (s *ManualSource) Set(t float64) {
	s.t = t
}

// Advance moves the source forward by dt seconds.
func (s *ManualSource) Advance(dt float64) {
	s.t += dt
}

// Now implements Source.
func (s *ManualSource) Now() float64 {
	return s.t
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func() float64

// Now implements Source.
func (f SourceFunc) Now() float64 {
	return f()
}
