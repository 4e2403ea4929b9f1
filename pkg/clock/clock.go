// Package clock provides the monotonic audio clock that all scheduling
// decisions are based on.
//
// A Source reports raw seconds from the audio subsystem (player position,
// rendered sample count, or a manually advanced value). AudioClock wraps a
// Source so readings never go backwards and the playback epoch is captured
// exactly once.
package clock

import (
	"errors"
	"log/slog"
	"math"

	"github.com/zurustar/notefall/pkg/logger"
)

// ErrClockAnomaly describes a negative, non-finite or backwards reading from
// a Source. It is logged, never returned from Now.
var ErrClockAnomaly = errors.New("audio clock anomaly")

// Source is a raw audio time source in seconds.
type Source interface {
	Now() float64
}

// AudioClock is a monotonic view of a Source. It is read from the tick loop
// only and is not safe for concurrent use.
type AudioClock struct {
	src Source
	log *slog.Logger

	last      float64
	epoch     float64
	started   bool
	anomalous bool
	anomalies int
}

// New creates an AudioClock reading from src. A nil logger uses the package
// default.
func New(src Source, log *slog.Logger) *AudioClock {
	if log == nil {
		log = logger.GetLogger()
	}
	return &AudioClock{src: src, log: log}
}

// Now returns the current audio time in seconds. A reading that is negative,
// non-finite or earlier than the previous one is clamped to the previous
// value; the first reading of each anomaly run is logged.
func (c *AudioClock) Now() float64 {
	raw := c.src.Now()
	if math.IsNaN(raw) || math.IsInf(raw, 0) || raw < c.last {
		if !c.anomalous {
			c.anomalous = true
			c.anomalies++
			c.log.Warn("Clamping audio clock reading",
				"error", ErrClockAnomaly, "raw", raw, "last", c.last)
		}
		return c.last
	}
	if c.anomalous {
		c.log.Debug("Audio clock recovered", "now", raw)
		c.anomalous = false
	}
	c.last = raw
	return raw
}

// Start captures the playback epoch. Only the first call has an effect; the
// captured epoch is returned either way.
func (c *AudioClock) Start() float64 {
	if !c.started {
		c.epoch = c.Now()
		c.started = true
		c.log.Debug("Audio clock epoch captured", "epoch", c.epoch)
	}
	return c.epoch
}

// Started reports whether Start has been called.
func (c *AudioClock) Started() bool {
	return c.started
}

// Epoch returns the playback-start time, or 0 before Start.
func (c *AudioClock) Epoch() float64 {
	return c.epoch
}

// Elapsed returns Now() - Epoch().
func (c *AudioClock) Elapsed() float64 {
	return c.Now() - c.epoch
}

// Anomalies returns how many anomaly runs have been clamped.
func (c *AudioClock) Anomalies() int {
	return c.anomalies
}
