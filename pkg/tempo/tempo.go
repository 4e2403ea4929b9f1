// Package tempo converts MIDI tick positions to real time using the tempo
// changes found in a Standard MIDI File.
package tempo

import (
	"errors"
	"fmt"
	"sort"
)

// DefaultMicrosPerQuarter is the SMF default tempo (120 BPM) used until the
// first tempo meta-event.
const DefaultMicrosPerQuarter = 500000

// ErrInvalidTempoMap is returned when a tempo map cannot be built.
var ErrInvalidTempoMap = errors.New("invalid tempo map")

// Event represents a tempo change in a MIDI file.
type Event struct {
	Tick             int64 // MIDI tick position
	MicrosPerQuarter int   // Microseconds per quarter note
}

// BPM returns the tempo of the event in beats per minute.
func (e Event) BPM() float64 {
	return 60000000.0 / float64(e.MicrosPerQuarter)
}

// Map resolves tick positions to seconds. It is immutable after New.
type Map struct {
	ppq    int
	events []Event
	// secondsAt[i] is the real time at events[i].Tick.
	secondsAt []float64
}

// New creates a tempo map for the given ticks-per-quarter-note resolution.
// Tick positions must be strictly increasing. If the first event is not at
// tick 0, the SMF default tempo is assumed from tick 0 to it. An empty event
// list yields a constant 120 BPM map.
func New(ppq int, events []Event) (*Map, error) {
	if ppq <= 0 {
		return nil, fmt.Errorf("%w: ticks per quarter note must be positive, got %d", ErrInvalidTempoMap, ppq)
	}

	evs := make([]Event, 0, len(events)+1)
	if len(events) == 0 || events[0].Tick > 0 {
		evs = append(evs, Event{Tick: 0, MicrosPerQuarter: DefaultMicrosPerQuarter})
	}
	for i, ev := range events {
		if ev.Tick < 0 {
			return nil, fmt.Errorf("%w: negative tick %d at index %d", ErrInvalidTempoMap, ev.Tick, i)
		}
		if ev.MicrosPerQuarter <= 0 {
			return nil, fmt.Errorf("%w: non-positive tempo %d at tick %d", ErrInvalidTempoMap, ev.MicrosPerQuarter, ev.Tick)
		}
		if i > 0 && ev.Tick <= events[i-1].Tick {
			return nil, fmt.Errorf("%w: tick positions must be strictly increasing (%d after %d)", ErrInvalidTempoMap, ev.Tick, events[i-1].Tick)
		}
		evs = append(evs, ev)
	}

	m := &Map{ppq: ppq, events: evs}
	m.precalculate()
	return m, nil
}

// Default returns a constant 120 BPM map.
func Default(ppq int) (*Map, error) {
	return New(ppq, nil)
}

// precalculate computes the elapsed seconds at each tempo change point.
func (m *Map) precalculate() {
	m.secondsAt = make([]float64, len(m.events))
	for i := 1; i < len(m.events); i++ {
		prev := m.events[i-1]
		m.secondsAt[i] = m.secondsAt[i-1] + m.segmentSeconds(m.events[i].Tick-prev.Tick, prev.MicrosPerQuarter)
	}
}

// segmentSeconds converts a tick span at a single tempo to seconds.
// 1 quarter note = ppq ticks = microsPerQuarter microseconds.
func (m *Map) segmentSeconds(ticks int64, microsPerQuarter int) float64 {
	return float64(ticks) * float64(microsPerQuarter) / (float64(m.ppq) * 1000000.0)
}

// segmentFor returns the index of the tempo segment containing tick.
func (m *Map) segmentFor(tick int64) int {
	// first event whose tick is greater than the target, minus one
	i := sort.Search(len(m.events), func(i int) bool { return m.events[i].Tick > tick })
	if i == 0 {
		return 0
	}
	return i - 1
}

// TicksToSeconds converts an absolute tick position to elapsed seconds.
// Negative ticks resolve to 0.
func (m *Map) TicksToSeconds(tick int64) float64 {
	if tick <= 0 {
		return 0
	}
	idx := m.segmentFor(tick)
	ev := m.events[idx]
	return m.secondsAt[idx] + m.segmentSeconds(tick-ev.Tick, ev.MicrosPerQuarter)
}

// SecondsToTicks converts elapsed seconds to the tick position reached at that
// time, rounded down.
func (m *Map) SecondsToTicks(sec float64) int64 {
	if sec <= 0 {
		return 0
	}
	i := sort.Search(len(m.secondsAt), func(i int) bool { return m.secondsAt[i] > sec })
	idx := 0
	if i > 0 {
		idx = i - 1
	}
	ev := m.events[idx]
	ticksPerSecond := float64(m.ppq) * 1000000.0 / float64(ev.MicrosPerQuarter)
	// small bias so exact tick boundaries survive float rounding
	return ev.Tick + int64((sec-m.secondsAt[idx])*ticksPerSecond+1e-9)
}

// TickFromSamples converts a rendered sample count to a MIDI tick.
func (m *Map) TickFromSamples(samples int64, sampleRate int) int64 {
	if sampleRate <= 0 {
		return 0
	}
	return m.SecondsToTicks(float64(samples) / float64(sampleRate))
}

// BPMAt returns the tempo in effect at tick.
func (m *Map) BPMAt(tick int64) float64 {
	return m.events[m.segmentFor(tick)].BPM()
}

// PPQ returns the ticks per quarter note.
func (m *Map) PPQ() int {
	return m.ppq
}

// Events returns a copy of the tempo events, including an implicit default at
// tick 0 if one was added.
func (m *Map) Events() []Event {
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}
