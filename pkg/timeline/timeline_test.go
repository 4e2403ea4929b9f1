package timeline

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zurustar/notefall/pkg/tempo"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestExtractBytes_ConstantTempo(t *testing.T) {
	// 120 BPM, 480 PPQ: a note at tick 480 starts at 0.5s
	tr := (&trackBuilder{}).
		tempo(0, 500000).
		noteOn(480, 0, 60, 100).
		noteOff(960, 0, 60)
	data := buildSMF(0, 480, tr)

	tl, err := ExtractBytes(data, "scenario-a.mid", WithLogger(quietLogger()))
	require.NoError(t, err)
	require.Len(t, tl.Notes, 1)

	n := tl.Notes[0]
	assert.Equal(t, uint8(60), n.Pitch)
	assert.Equal(t, uint8(100), n.Velocity)
	assert.True(t, near(n.StartTime, 0.5), "start = %v", n.StartTime)
	assert.True(t, near(n.Duration, 0.5), "duration = %v", n.Duration)
	assert.True(t, near(tl.Length, 1.0), "length = %v", tl.Length)
	assert.Equal(t, 480, tl.Tempo.PPQ())
}

func TestExtractBytes_NoTempoDefaultsTo120BPM(t *testing.T) {
	tr := (&trackBuilder{}).noteOn(96, 0, 64, 90).noteOff(192, 0, 64)
	tl, err := ExtractBytes(buildSMF(0, 96, tr), "no-tempo.mid", WithLogger(quietLogger()))
	require.NoError(t, err)
	require.Len(t, tl.Notes, 1)
	assert.True(t, near(tl.Notes[0].StartTime, 0.5))
}

func TestExtractBytes_TempoChange(t *testing.T) {
	// 120 BPM for one beat, then 240 BPM
	tr := (&trackBuilder{}).
		tempo(0, 500000).
		noteOn(0, 0, 60, 100).
		tempo(480, 250000).
		noteOff(480, 0, 60).
		noteOn(480, 0, 62, 100).
		noteOff(960, 0, 62)

	tl, err := ExtractBytes(buildSMF(0, 480, tr), "tempo.mid", WithLogger(quietLogger()))
	require.NoError(t, err)
	require.Len(t, tl.Notes, 2)

	assert.True(t, near(tl.Notes[0].StartTime, 0))
	assert.True(t, near(tl.Notes[0].Duration, 0.5))
	assert.True(t, near(tl.Notes[1].StartTime, 0.5))
	assert.True(t, near(tl.Notes[1].Duration, 0.25))
}

func TestExtractBytes_ZeroVelocityNoteOnEndsNote(t *testing.T) {
	tr := (&trackBuilder{}).
		noteOn(0, 3, 70, 80).
		noteOn(240, 3, 70, 0)

	tl, err := ExtractBytes(buildSMF(0, 480, tr), "vel0.mid", WithLogger(quietLogger()))
	require.NoError(t, err)
	require.Len(t, tl.Notes, 1)
	assert.Equal(t, uint8(3), tl.Notes[0].Channel)
	assert.True(t, near(tl.Notes[0].Duration, 0.25))
}

func TestExtractBytes_UnmatchedNoteOnIsDropped(t *testing.T) {
	var logBuf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&logBuf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	tr := (&trackBuilder{}).
		noteOn(0, 0, 60, 100).
		noteOff(480, 0, 60).
		noteOn(480, 0, 72, 100) // never released

	tl, err := ExtractBytes(buildSMF(0, 480, tr), "dangling.mid", WithLogger(log))
	require.NoError(t, err)
	assert.Len(t, tl.Notes, 1)
	assert.Equal(t, 1, tl.Dropped)
	assert.Contains(t, logBuf.String(), "Dropping note-on without note-off")
}

func TestExtractBytes_StrayNoteOff(t *testing.T) {
	tr := (&trackBuilder{}).
		noteOff(0, 0, 40).
		noteOn(0, 0, 60, 100).
		noteOff(480, 0, 60)
	data := buildSMF(0, 480, tr)

	t.Run("strict mode fails", func(t *testing.T) {
		_, err := ExtractBytes(data, "stray.mid", WithLogger(quietLogger()))
		assert.True(t, errors.Is(err, ErrMalformedInput), "got %v", err)
	})

	t.Run("lenient mode skips", func(t *testing.T) {
		tl, err := ExtractBytes(data, "stray.mid", WithLenient(), WithLogger(quietLogger()))
		require.NoError(t, err)
		assert.Len(t, tl.Notes, 1)
	})
}

func TestExtractBytes_OverlappingSameKeyIsFIFO(t *testing.T) {
	tr := (&trackBuilder{}).
		noteOn(0, 0, 60, 10).
		noteOn(240, 0, 60, 20).
		noteOff(480, 0, 60).
		noteOff(960, 0, 60)

	tl, err := ExtractBytes(buildSMF(0, 480, tr), "overlap.mid", WithLogger(quietLogger()))
	require.NoError(t, err)
	require.Len(t, tl.Notes, 2)
	assert.Equal(t, uint8(10), tl.Notes[0].Velocity)
	assert.Equal(t, int64(480), tl.Notes[0].EndTick)
	assert.Equal(t, uint8(20), tl.Notes[1].Velocity)
	assert.Equal(t, int64(960), tl.Notes[1].EndTick)
}

func TestExtractBytes_SortedAndStableAcrossTracks(t *testing.T) {
	conductor := (&trackBuilder{}).tempo(0, 500000)
	first := (&trackBuilder{}).
		noteOn(480, 0, 50, 100).
		noteOn(480, 0, 52, 100).
		noteOff(960, 0, 50).
		noteOff(960, 0, 52)
	second := (&trackBuilder{}).
		noteOn(0, 1, 40, 100).
		noteOn(480, 1, 45, 100).
		noteOff(600, 1, 40).
		noteOff(700, 1, 45)

	tl, err := ExtractBytes(buildSMF(1, 480, conductor, first, second), "multi.mid", WithLogger(quietLogger()))
	require.NoError(t, err)
	require.Len(t, tl.Notes, 4)

	pitches := []uint8{}
	for i, n := range tl.Notes {
		pitches = append(pitches, n.Pitch)
		if i > 0 {
			assert.LessOrEqual(t, tl.Notes[i-1].StartTime, n.StartTime)
		}
	}
	// ties at tick 480: track 1 before track 2, event order within track 1
	assert.Equal(t, []uint8{40, 50, 52, 45}, pitches)
	assert.Equal(t, 2, tl.Tracks[1].Notes)
	assert.Equal(t, 2, tl.Tracks[2].Notes)

	low, high, ok := tl.PitchRange()
	assert.True(t, ok)
	assert.Equal(t, uint8(40), low)
	assert.Equal(t, uint8(52), high)
}

func TestExtractBytes_TempoEventsFromSeveralTracks(t *testing.T) {
	conductor := (&trackBuilder{}).tempo(0, 500000).tempo(960, 1000000)
	notes := (&trackBuilder{}).tempo(960, 250000).noteOn(960, 0, 60, 100).noteOff(1440, 0, 60)

	tl, err := ExtractBytes(buildSMF(1, 480, conductor, notes), "tempos.mid", WithLogger(quietLogger()))
	require.NoError(t, err)

	evs := tl.Tempo.Events()
	require.Len(t, evs, 2)
	// same tick: the later track wins
	assert.Equal(t, 250000, evs[1].MicrosPerQuarter)
	assert.True(t, near(tl.Notes[0].StartTime, 1.0))
	assert.True(t, near(tl.Notes[0].Duration, 0.25))
}

func TestExtractBytes_MalformedInput(t *testing.T) {
	valid := buildSMF(0, 480, (&trackBuilder{}).noteOn(0, 0, 60, 100).noteOff(10, 0, 60))

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"not a midi file", []byte("not a midi file at all")},
		{"truncated track", valid[:len(valid)-3]},
		{"missing track", func() []byte {
			d := append([]byte{}, valid...)
			d[11] = 2 // header claims two tracks
			return d
		}()},
		{"track cut inside an event", rawSMF(0x00, 0x90, 0x3C, 0x64, 0x83, 0x60, 0x80, 0x3C, 0x40, 0x00, 0x90, 0x3E)},
		{"track without end of track", rawSMF(0x00, 0x90, 0x3C, 0x64, 0x83, 0x60, 0x80, 0x3C, 0x40)},
		{"smpte division", func() []byte {
			d := append([]byte{}, valid...)
			d[12], d[13] = 0xE7, 0x28
			return d
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ExtractBytes(tt.data, tt.name, WithLogger(quietLogger()))
			assert.True(t, errors.Is(err, ErrMalformedInput), "expected ErrMalformedInput, got %v", err)
		})
	}
}

func TestExtractBytes_ZeroDivisionIsInvalidTempoMap(t *testing.T) {
	data := buildSMF(0, 0, (&trackBuilder{}).noteOn(0, 0, 60, 100).noteOff(10, 0, 60))
	_, err := ExtractBytes(data, "zero.mid", WithLogger(quietLogger()))
	assert.True(t, errors.Is(err, tempo.ErrInvalidTempoMap), "got %v", err)
}

func TestExtractBytes_TrackNames(t *testing.T) {
	// "ピアノ" in Shift_JIS
	sjis := []byte{0x83, 0x73, 0x83, 0x41, 0x83, 0x6D}
	first := (&trackBuilder{}).name(0, []byte("Lead")).noteOn(0, 0, 60, 100).noteOff(10, 0, 60)
	second := (&trackBuilder{}).name(0, sjis)

	tl, err := ExtractBytes(buildSMF(1, 480, first, second), "names.mid", WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Equal(t, "Lead", tl.Tracks[0].Name)
	assert.Equal(t, "ピアノ", tl.Tracks[1].Name)
}

func TestDecodeText(t *testing.T) {
	assert.Equal(t, "plain", DecodeText("plain"))
	assert.Equal(t, "Café", DecodeText(string([]byte{'C', 'a', 'f', 0xE9})))
}

func TestExtract_Files(t *testing.T) {
	dir := t.TempDir()
	data := buildSMF(0, 480, (&trackBuilder{}).noteOn(0, 0, 60, 100).noteOff(480, 0, 60))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Song.MID"), data, 0644))

	t.Run("exact path", func(t *testing.T) {
		tl, err := Extract(filepath.Join(dir, "Song.MID"), WithLogger(quietLogger()))
		require.NoError(t, err)
		assert.Len(t, tl.Notes, 1)
	})

	t.Run("case-insensitive path", func(t *testing.T) {
		tl, err := Extract(filepath.Join(dir, "song.mid"), WithLogger(quietLogger()))
		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(tl.Name, "Song.MID"))
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Extract(filepath.Join(dir, "missing.mid"))
		assert.True(t, errors.Is(err, ErrFileNotFound), "got %v", err)
	})

	t.Run("reader", func(t *testing.T) {
		tl, err := ExtractReader(bytes.NewReader(data), "reader.mid", WithLogger(quietLogger()))
		require.NoError(t, err)
		assert.Len(t, tl.Notes, 1)
	})
}

func TestTimelineSummary(t *testing.T) {
	tr := (&trackBuilder{}).
		name(0, []byte("Piano")).
		noteOn(0, 0, 48, 100).
		noteOn(0, 0, 60, 100).
		noteOff(480, 0, 48).
		noteOff(480, 0, 60)

	tl, err := ExtractBytes(buildSMF(0, 480, tr), "summary.mid", WithLogger(quietLogger()))
	require.NoError(t, err)

	s := tl.Summary()
	assert.Equal(t, 2, s.Notes)
	assert.Equal(t, uint8(48), s.LowestPitch)
	assert.Equal(t, uint8(60), s.HighestPitch)
	assert.Equal(t, 13, s.Lanes)
	assert.Equal(t, 1, s.TempoEvents)
	assert.Equal(t, "Piano", s.Tracks[0].Name)

	empty := (&Timeline{}).Summary()
	assert.Equal(t, 0, empty.Lanes)
}
