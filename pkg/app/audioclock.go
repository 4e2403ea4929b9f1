package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/zurustar/notefall/pkg/audio"
	"github.com/zurustar/notefall/pkg/cli"
	"github.com/zurustar/notefall/pkg/clock"
	"github.com/zurustar/notefall/pkg/timeline"
)

// Playback 再生中かどうかを返す
type Playback interface {
	IsPlaying() bool
}

// silentOutput 無音ストリームを流すオーディオ出力
type silentOutput interface {
	Position() time.Duration
	Close() error
}

// openSilentOutput 無音ストリームの再生を始める
func openSilentOutput() (silentOutput, error) {
	p, err := audio.NewSilentPlayer(nil)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// audioClock スケジューラに渡す時刻源
// manual はヘッドレス時のみ使い、毎Tick一定量進める（疑似オーディオ時刻）
type audioClock struct {
	source clock.Source
	manual *clock.ManualSource
	player *audio.MIDIPlayer
	silent silentOutput
}

// newAudioClock SoundFontがあればMIDIを再生してその再生位置を時刻源にする
// SoundFontがなければ無音ストリームの再生位置を時刻源にする
func (app *Application) newAudioClock(cfg *cli.Config, tl *timeline.Timeline) (*audioClock, error) {
	if cfg.Headless {
		app.log.Info("Using simulated audio clock", "reason", "headless")
		m := clock.NewManualSource(0)
		return &audioClock{source: m, manual: m}, nil
	}

	silent := func() (*audioClock, error) {
		out, err := app.openSilent()
		if err != nil {
			return nil, fmt.Errorf("failed to open audio output: %w", err)
		}
		app.log.Info("Playing without audio", "clock", "silent stream")
		return &audioClock{source: clock.PlayerSource{Player: out}, silent: out}, nil
	}

	sfPath, ok := audio.FindSoundFont(cfg.SoundFont, cfg.MIDIPath)
	if !ok {
		app.log.Warn("SoundFont not found, playing without audio", "name", audio.DefaultSoundFontName)
		return silent()
	}

	player, err := audio.NewMIDIPlayer(sfPath, nil)
	if err != nil {
		if errors.Is(err, audio.ErrSoundFontNotFound) && cfg.SoundFont == "" {
			return silent()
		}
		return nil, fmt.Errorf("failed to initialize audio: %w", err)
	}
	player.SetMuted(cfg.Mute)
	if err := player.Play(cfg.MIDIPath, tl.Tempo); err != nil {
		return nil, fmt.Errorf("failed to start playback: %w", err)
	}
	app.log.Info("Playback started",
		"file", player.CurrentFile(), "soundfont", player.SoundFontPath(),
		"clock", cfg.Clock, "muted", player.IsMuted(), "duration", player.Duration())

	ac := &audioClock{player: player}
	switch cfg.Clock {
	case cli.ClockSamples:
		ac.source = clock.SourceFunc(func() float64 {
			if s := player.Samples(); s != nil {
				return s.Now()
			}
			return 0
		})
	default:
		ac.source = clock.PlayerSource{Player: player}
	}
	return ac, nil
}

// advance 疑似オーディオ時刻を step 秒進める関数を返す（実オーディオならnil）
func (ac *audioClock) advance(step float64) func() {
	if ac.manual == nil {
		return nil
	}
	m := ac.manual
	return func() { m.Advance(step) }
}

// playback 実オーディオの再生状態（MIDIを再生していなければnil）
func (ac *audioClock) playback() Playback {
	if ac.player == nil {
		return nil
	}
	return ac.player
}

// currentTick 再生中のMIDIティックを返す関数（MIDIを再生していなければnil）
func (ac *audioClock) currentTick() func() int64 {
	if ac.player == nil {
		return nil
	}
	return ac.player.CurrentTick
}

func (ac *audioClock) close() {
	if ac.player != nil {
		ac.player.Stop()
	}
	if ac.silent != nil {
		ac.silent.Close()
	}
}
