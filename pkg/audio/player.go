// Package audio plays a MIDI file through a SoundFont synthesizer so that a
// real audio clock exists for scheduling. It uses go-meltysynth for synthesis
// and Ebitengine/audio for output.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2/audio"
	"github.com/sinshu/go-meltysynth/meltysynth"
	"github.com/zurustar/notefall/pkg/clock"
	"github.com/zurustar/notefall/pkg/fileutil"
	"github.com/zurustar/notefall/pkg/tempo"
)

// SampleRate is the audio sample rate used for MIDI synthesis.
const SampleRate = 44100

// ErrNoSoundFont is returned when no SoundFont file is provided.
var ErrNoSoundFont = errors.New("SoundFont file is required for MIDI playback")

// ErrSoundFontNotFound is returned when the SoundFont file cannot be found.
var ErrSoundFontNotFound = errors.New("SoundFont file not found")

// ErrMIDIFileNotFound is returned when the MIDI file cannot be found.
var ErrMIDIFileNotFound = errors.New("MIDI file not found")

// ErrMIDIInvalidFormat is returned when the synthesizer cannot load the file.
var ErrMIDIInvalidFormat = errors.New("invalid MIDI file format")

// MIDIStream implements io.Reader for Ebitengine/audio.
// It renders 16-bit stereo samples from the sequencer and counts them into a
// SampleSource.
type MIDIStream struct {
	sequencer *meltysynth.MidiFileSequencer
	samples   *clock.SampleSource
	stopped   bool
	mu        sync.Mutex
}

// NewMIDIStream creates a stream over seq. A nil seq yields silence.
func NewMIDIStream(seq *meltysynth.MidiFileSequencer) *MIDIStream {
	return &MIDIStream{
		sequencer: seq,
		samples:   clock.NewSampleSource(SampleRate),
	}
}

// Read implements io.Reader.
func (s *MIDIStream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// 16-bit stereo = 4 bytes per frame
	frames := len(p) / 4
	if frames == 0 {
		return 0, nil
	}
	n := frames * 4

	if s.stopped || s.sequencer == nil {
		clear(p[:n])
		return n, nil
	}

	left := make([]float32, frames)
	right := make([]float32, frames)
	s.sequencer.Render(left, right)
	s.samples.Add(int64(frames))

	for i := range frames {
		l := int16(clamp(left[i], -1, 1) * 32767)
		r := int16(clamp(right[i], -1, 1) * 32767)
		binary.LittleEndian.PutUint16(p[i*4:], uint16(l))
		binary.LittleEndian.PutUint16(p[i*4+2:], uint16(r))
	}
	return n, nil
}

// Stop makes further reads return silence.
func (s *MIDIStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
}

// Samples returns the sample counter fed by Read. It runs ahead of what is
// audible by the output buffer size.
func (s *MIDIStream) Samples() *clock.SampleSource {
	return s.samples
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// MIDIPlayer plays one MIDI file at a time and exposes its playback position
// as an audio clock source.
type MIDIPlayer struct {
	soundFont *meltysynth.SoundFont
	synth     *meltysynth.Synthesizer
	sequencer *meltysynth.MidiFileSequencer

	audioCtx *audio.Context
	player   *audio.Player
	stream   *MIDIStream

	tempo *tempo.Map

	playing       bool
	muted         bool
	duration      time.Duration
	soundFontPath string
	currentFile   string

	mu sync.RWMutex
}

// NewMIDIPlayer loads the SoundFont and prepares a synthesizer. audioCtx may
// be nil, in which case a context is created (only one may exist per process).
func NewMIDIPlayer(soundFontPath string, audioCtx *audio.Context) (*MIDIPlayer, error) {
	soundFont, err := LoadSoundFont(soundFontPath)
	if err != nil {
		return nil, err
	}

	audioCtx = outputContext(audioCtx)

	settings := meltysynth.NewSynthesizerSettings(SampleRate)
	synth, err := meltysynth.NewSynthesizer(soundFont, settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create synthesizer: %w", err)
	}

	return &MIDIPlayer{
		soundFont:     soundFont,
		synth:         synth,
		audioCtx:      audioCtx,
		soundFontPath: soundFontPath,
	}, nil
}

// outputContext returns audioCtx, or the process context when audioCtx is nil.
func outputContext(audioCtx *audio.Context) *audio.Context {
	if audioCtx != nil {
		return audioCtx
	}
	if c := audio.CurrentContext(); c != nil {
		return c
	}
	return audio.NewContext(SampleRate)
}

// NewSilentPlayer starts an endless silent stream on the audio device. Its
// Position still advances with the output, so it can drive the audio clock
// when no SoundFont is available.
func NewSilentPlayer(audioCtx *audio.Context) (*audio.Player, error) {
	player, err := outputContext(audioCtx).NewPlayer(NewMIDIStream(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to create audio player: %w", err)
	}
	player.Play()
	return player, nil
}

// LoadSoundFont reads and parses a SoundFont file.
func LoadSoundFont(path string) (*meltysynth.SoundFont, error) {
	if path == "" {
		return nil, ErrNoSoundFont
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSoundFontNotFound, path)
		}
		return nil, fmt.Errorf("failed to read SoundFont file: %w", err)
	}
	soundFont, err := meltysynth.NewSoundFont(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse SoundFont: %w", err)
	}
	return soundFont, nil
}

// Play starts playback of filename, stopping any current playback. tm, if not
// nil, is used for CurrentTick.
func (mp *MIDIPlayer) Play(filename string, tm *tempo.Map) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.stopInternal()

	actualPath, err := fileutil.Resolve(filename)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrMIDIFileNotFound, filename)
	}
	midiData, err := os.ReadFile(actualPath)
	if err != nil {
		return fmt.Errorf("failed to read MIDI file: %w", err)
	}

	midi, err := meltysynth.NewMidiFile(bytes.NewReader(midiData))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMIDIInvalidFormat, err)
	}

	mp.sequencer = meltysynth.NewMidiFileSequencer(mp.synth)
	mp.sequencer.Play(midi, false)
	mp.duration = midi.GetLength()
	mp.stream = NewMIDIStream(mp.sequencer)

	player, err := mp.audioCtx.NewPlayer(mp.stream)
	if err != nil {
		return fmt.Errorf("failed to create audio player: %w", err)
	}
	mp.player = player
	if mp.muted {
		mp.player.SetVolume(0)
	}

	mp.player.Play()
	mp.playing = true
	mp.currentFile = actualPath
	mp.tempo = tm
	return nil
}

// Stop stops the current playback.
func (mp *MIDIPlayer) Stop() {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.stopInternal()
}

// stopInternal must be called with mp.mu held.
func (mp *MIDIPlayer) stopInternal() {
	// stop the stream first so the player cannot read further
	if mp.stream != nil {
		mp.stream.Stop()
	}
	if mp.player != nil {
		mp.player.Close()
		mp.player = nil
	}
	mp.sequencer = nil
	mp.playing = false
	mp.currentFile = ""
}

// IsPlaying returns whether a file is playing and has not reached its end.
func (mp *MIDIPlayer) IsPlaying() bool {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	if mp.playing && mp.player != nil && mp.player.Position() >= mp.duration {
		mp.playing = false
	}
	return mp.playing
}

// SetMuted silences output without stopping the clock.
func (mp *MIDIPlayer) SetMuted(muted bool) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.muted = muted
	if mp.player != nil {
		if muted {
			mp.player.SetVolume(0)
		} else {
			mp.player.SetVolume(1)
		}
	}
}

// IsMuted returns whether output is muted.
func (mp *MIDIPlayer) IsMuted() bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return mp.muted
}

// Duration returns the length of the current file.
func (mp *MIDIPlayer) Duration() time.Duration {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return mp.duration
}

// Position returns the audible playback position. It implements
// clock.Positioner.
func (mp *MIDIPlayer) Position() time.Duration {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	if mp.player == nil {
		return 0
	}
	return mp.player.Position()
}

// Samples returns the rendered sample counter of the current stream, or nil
// when nothing is playing.
func (mp *MIDIPlayer) Samples() *clock.SampleSource {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	if mp.stream == nil {
		return nil
	}
	return mp.stream.Samples()
}

// CurrentTick returns the MIDI tick at the current position.
func (mp *MIDIPlayer) CurrentTick() int64 {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	if mp.player == nil || mp.tempo == nil {
		return 0
	}
	samples := int64(mp.player.Position().Seconds() * SampleRate)
	return mp.tempo.TickFromSamples(samples, SampleRate)
}

// CurrentFile returns the resolved path of the playing file.
func (mp *MIDIPlayer) CurrentFile() string {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return mp.currentFile
}

// SoundFontPath returns the path the SoundFont was loaded from.
func (mp *MIDIPlayer) SoundFontPath() string {
	return mp.soundFontPath
}
