// Package timeline extracts an ordered, tempo-resolved note timeline from a
// Standard MIDI File.
//
// Each matched note-on/note-off pair (a note-on with velocity 0 counts as a
// note-off) becomes one NoteInfo whose start time and duration come from the
// file's tempo map. The result is sorted by start time; notes starting at the
// same time keep their original tick/track/event order.
package timeline

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"slices"

	"github.com/zurustar/notefall/pkg/fileutil"
	"github.com/zurustar/notefall/pkg/logger"
	"github.com/zurustar/notefall/pkg/tempo"
	"gitlab.com/gomidi/midi/v2/smf"
)

// ErrFileNotFound is returned when the MIDI file path does not resolve.
var ErrFileNotFound = errors.New("MIDI file not found")

// ErrMalformedInput is returned when the MIDI data cannot be parsed into a
// timeline.
var ErrMalformedInput = errors.New("malformed MIDI input")

// NoteInfo is one note of the timeline. It is never mutated after extraction;
// spawn bookkeeping belongs to the scheduler.
type NoteInfo struct {
	Pitch     uint8   // MIDI key, 0-127
	Velocity  uint8   // note-on velocity
	Channel   uint8   // MIDI channel, 0-15
	Track     int     // SMF track index
	StartTime float64 // seconds from the start of the song
	Duration  float64 // seconds
	StartTick int64
	EndTick   int64
}

// EndTime returns StartTime + Duration.
func (n NoteInfo) EndTime() float64 {
	return n.StartTime + n.Duration
}

// TrackInfo describes one SMF track.
type TrackInfo struct {
	Index int
	Name  string // decoded to UTF-8
	Notes int    // notes extracted from the track
}

// Timeline is the result of an extraction.
type Timeline struct {
	Name    string
	Notes   []NoteInfo
	Tempo   *tempo.Map
	Tracks  []TrackInfo
	Length  float64 // end time of the last sounding note
	Dropped int     // unmatched note-ons skipped with a warning
}

type options struct {
	lenient bool
	log     *slog.Logger
}

// Option configures an extraction.
type Option func(*options)

// WithLenient makes stray note-offs (no sounding note on that channel/key)
// a debug-level notice instead of ErrMalformedInput.
func WithLenient() Option {
	return func(o *options) { o.lenient = true }
}

// WithLogger sets the logger used for recoverable warnings.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

func buildOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		o.log = logger.GetLogger()
	}
	return o
}

// Extract reads the MIDI file at path and returns its note timeline.
// A case-insensitive match is tried if the exact path does not exist.
func Extract(path string, opts ...Option) (*Timeline, error) {
	actualPath, err := fileutil.Resolve(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
	}

	data, err := os.ReadFile(actualPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("failed to read MIDI file: %w", err)
	}

	return ExtractBytes(data, actualPath, opts...)
}

// ExtractReader reads MIDI data from r. name is used for logging only.
func ExtractReader(r io.Reader, name string, opts ...Option) (*Timeline, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read MIDI data: %w", err)
	}
	return ExtractBytes(data, name, opts...)
}

// ExtractBytes parses in-memory MIDI data.
func ExtractBytes(data []byte, name string, opts ...Option) (tl *Timeline, err error) {
	o := buildOptions(opts)

	if err := validateChunks(data); err != nil {
		return nil, err
	}

	// the SMF reader can panic on corrupt event data
	defer func() {
		if r := recover(); r != nil {
			tl = nil
			err = fmt.Errorf("%w: %v", ErrMalformedInput, r)
		}
	}()

	s, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}

	return fromSMF(s, name, o)
}

// rawNote is a matched pair before tempo resolution.
type rawNote struct {
	pitch, velocity, channel uint8
	track, order             int
	startTick, endTick       int64
}

type openNote struct {
	tick     int64
	velocity uint8
	order    int
}

type tempoChange struct {
	tick     int64
	micros   int
	track    int
	position int
}

func fromSMF(s *smf.SMF, name string, o *options) (*Timeline, error) {
	mt, ok := s.TimeFormat.(smf.MetricTicks)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported time format %v (only metric ticks are supported)", ErrMalformedInput, s.TimeFormat)
	}
	ppq := int(mt)

	var (
		raws    []rawNote
		changes []tempoChange
		tracks  = make([]TrackInfo, len(s.Tracks))
		dropped int
	)

	for ti, track := range s.Tracks {
		tracks[ti].Index = ti
		open := make(map[uint16][]openNote)
		var abs int64

		for ei, ev := range track {
			abs += int64(ev.Delta)
			msg := ev.Message

			var ch, key, vel uint8
			var bpm float64
			var text string

			switch {
			case msg.GetNoteStart(&ch, &key, &vel):
				k := uint16(ch)<<8 | uint16(key)
				open[k] = append(open[k], openNote{tick: abs, velocity: vel, order: ei})
			case msg.GetNoteEnd(&ch, &key):
				k := uint16(ch)<<8 | uint16(key)
				queue := open[k]
				if len(queue) == 0 {
					if !o.lenient {
						return nil, fmt.Errorf("%w: note-off without note-on (track %d, channel %d, key %d, tick %d)", ErrMalformedInput, ti, ch, key, abs)
					}
					o.log.Debug("Ignoring note-off without note-on", "file", name, "track", ti, "channel", ch, "key", key, "tick", abs)
					continue
				}
				on := queue[0]
				open[k] = queue[1:]
				raws = append(raws, rawNote{
					pitch:     key,
					velocity:  on.velocity,
					channel:   ch,
					track:     ti,
					order:     on.order,
					startTick: on.tick,
					endTick:   abs,
				})
				tracks[ti].Notes++
			case msg.GetMetaTempo(&bpm):
				if bpm <= 0 || math.IsInf(bpm, 0) || math.IsNaN(bpm) {
					return nil, fmt.Errorf("%w: invalid tempo meta-event at tick %d", ErrMalformedInput, abs)
				}
				changes = append(changes, tempoChange{
					tick:     abs,
					micros:   int(math.Round(60000000.0 / bpm)),
					track:    ti,
					position: ei,
				})
			case msg.GetMetaTrackName(&text):
				if tracks[ti].Name == "" {
					tracks[ti].Name = DecodeText(text)
				}
			}
		}

		for k, queue := range open {
			for _, on := range queue {
				dropped++
				o.log.Warn("Dropping note-on without note-off",
					"file", name, "track", ti, "channel", k>>8, "key", k&0xFF, "tick", on.tick)
			}
		}
	}

	tm, err := tempo.New(ppq, mergeTempoChanges(changes))
	if err != nil {
		return nil, err
	}

	// original tick order, then track, then position within the track
	slices.SortStableFunc(raws, func(a, b rawNote) int {
		if a.startTick != b.startTick {
			return cmpInt64(a.startTick, b.startTick)
		}
		if a.track != b.track {
			return a.track - b.track
		}
		return a.order - b.order
	})

	tl := &Timeline{
		Name:    name,
		Notes:   make([]NoteInfo, 0, len(raws)),
		Tempo:   tm,
		Tracks:  tracks,
		Dropped: dropped,
	}
	for _, r := range raws {
		start := tm.TicksToSeconds(r.startTick)
		n := NoteInfo{
			Pitch:     r.pitch,
			Velocity:  r.velocity,
			Channel:   r.channel,
			Track:     r.track,
			StartTime: start,
			Duration:  tm.TicksToSeconds(r.endTick) - start,
			StartTick: r.startTick,
			EndTick:   r.endTick,
		}
		if n.EndTime() > tl.Length {
			tl.Length = n.EndTime()
		}
		tl.Notes = append(tl.Notes, n)
	}
	// no-op for a monotonic tempo map; keeps the ordering contract explicit
	slices.SortStableFunc(tl.Notes, func(a, b NoteInfo) int {
		switch {
		case a.StartTime < b.StartTime:
			return -1
		case a.StartTime > b.StartTime:
			return 1
		}
		return 0
	})

	o.log.Debug("Timeline extracted",
		"file", name, "ppq", ppq, "tracks", len(tracks), "notes", len(tl.Notes),
		"tempo_changes", len(tm.Events()), "dropped", dropped, "length", tl.Length)

	return tl, nil
}

// mergeTempoChanges orders tempo events from all tracks by tick. When several
// land on the same tick the last one (by track, then position) wins.
func mergeTempoChanges(changes []tempoChange) []tempo.Event {
	slices.SortStableFunc(changes, func(a, b tempoChange) int {
		if a.tick != b.tick {
			return cmpInt64(a.tick, b.tick)
		}
		if a.track != b.track {
			return a.track - b.track
		}
		return a.position - b.position
	})

	events := make([]tempo.Event, 0, len(changes))
	for _, c := range changes {
		if n := len(events); n > 0 && events[n-1].Tick == c.tick {
			events[n-1].MicrosPerQuarter = c.micros
			continue
		}
		events = append(events, tempo.Event{Tick: c.tick, MicrosPerQuarter: c.micros})
	}
	return events
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// PitchRange returns the lowest and highest pitch in the timeline. ok is false
// for an empty timeline.
func (tl *Timeline) PitchRange() (low, high uint8, ok bool) {
	if len(tl.Notes) == 0 {
		return 0, 0, false
	}
	low, high = 127, 0
	for _, n := range tl.Notes {
		low = min(low, n.Pitch)
		high = max(high, n.Pitch)
	}
	return low, high, true
}

// Summary is a compact description of a timeline for display and for deriving
// lane layout.
type Summary struct {
	Notes        int
	Tracks       []TrackInfo
	LowestPitch  uint8
	HighestPitch uint8
	Lanes        int
	Length       float64
	TempoEvents  int
	Dropped      int
}

// Summary returns the per-track note counts, pitch range and lane count.
func (tl *Timeline) Summary() Summary {
	s := Summary{
		Notes:   len(tl.Notes),
		Tracks:  tl.Tracks,
		Length:  tl.Length,
		Dropped: tl.Dropped,
	}
	if tl.Tempo != nil {
		s.TempoEvents = len(tl.Tempo.Events())
	}
	if low, high, ok := tl.PitchRange(); ok {
		s.LowestPitch = low
		s.HighestPitch = high
		s.Lanes = int(high-low) + 1
	}
	return s
}
