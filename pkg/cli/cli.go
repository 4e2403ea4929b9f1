package cli

import (
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/zurustar/notefall/pkg/actor"
	"github.com/zurustar/notefall/pkg/easing"
	"github.com/zurustar/notefall/pkg/logger"
)

// 自動判定を表す最低音の値
const AutoLowest = -1

// Clock sources
const (
	ClockPlayer  = "player"  // プレイヤーの再生位置
	ClockSamples = "samples" // レンダリング済みサンプル数
)

// Config はコマンドライン引数と環境変数から組み立てた設定を保持する
type Config struct {
	MIDIPath      string
	SoundFont     string        // 空なら自動検索
	Lookahead     float64       // 秒
	FallDuration  float64       // 秒
	DestroyOffset float64       // 秒
	Easing        string        // カーブ名
	LowestPitch   int           // AutoLowest なら曲から判定
	LaneWidth     float64
	LaneStartX    float64
	SpawnY        float64
	HitLineY      float64
	Headless      bool
	TUI           bool
	Mute          bool // 音を出さずにMIDIの再生位置を時刻源にする
	Lenient       bool
	Timeout       time.Duration // 0は無制限
	LogLevel      string
	LogFormat     string
	Clock         string

	// snapshot 用
	At     float64
	Output string
	Width  int
	Height int

	curve easing.Curve
}

// Defaults はフラグ未指定時の設定を返す
func Defaults() Config {
	return Config{
		Lookahead:     2.0,
		FallDuration:  2.0,
		DestroyOffset: 0.25,
		Easing:        "ease-in-quad",
		LowestPitch:   AutoLowest,
		LaneWidth:     1,
		SpawnY:        10,
		HitLineY:      0,
		LogLevel:      "info",
		LogFormat:     "text",
		Clock:         ClockPlayer,
		Output:        "frame.png",
		Width:         1024,
		Height:        768,
		curve:         easing.Default,
	}
}

// Curve は設定確定時に構築したイージングカーブを返す
// Defaults 以外で作ったConfigでは finish を通るまで nil
func (c *Config) Curve() easing.Curve {
	return c.curve
}

// Layout は最低音とレーン位置から actor.Layout を作る
func (c *Config) Layout(lowest uint8) actor.Layout {
	return actor.Layout{
		SpawnY:       c.SpawnY,
		HitLineY:     c.HitLineY,
		LaneStartX:   c.LaneStartX,
		LaneWidth:    c.LaneWidth,
		LowestPitch:  lowest,
		FallDuration: c.FallDuration,
		Curve:        c.Curve(),
	}
}

// Runner はサブコマンドの実処理
type Runner interface {
	Play(cfg *Config) error
	Inspect(cfg *Config, w io.Writer) error
	Snapshot(cfg *Config) error
}

// NewRootCommand はルートコマンドとサブコマンドを作成する
func NewRootCommand(r Runner) *cobra.Command {
	cfg := Defaults()
	var timeoutSec int

	root := &cobra.Command{
		Use:           "notefall",
		Short:         "Falling-note MIDI visualizer synchronised to the audio clock",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfg.SoundFont, "soundfont", "", "SoundFont (.sf2) path (default: search next to the MIDI file)")
	pf.Float64Var(&cfg.Lookahead, "lookahead", cfg.Lookahead, "seconds before a note's start at which it spawns")
	pf.Float64Var(&cfg.FallDuration, "fall-duration", cfg.FallDuration, "seconds a note takes from spawn line to hit line")
	pf.Float64Var(&cfg.DestroyOffset, "destroy-offset", cfg.DestroyOffset, "seconds after a note ends before it is destroyed")
	pf.StringVar(&cfg.Easing, "easing", cfg.Easing, "fall curve: "+strings.Join(easing.Names(), ", "))
	pf.IntVar(&cfg.LowestPitch, "lowest", cfg.LowestPitch, "MIDI key of the leftmost lane (-1: lowest note in the song)")
	pf.Float64Var(&cfg.LaneWidth, "lane-width", cfg.LaneWidth, "lane width in world units")
	pf.Float64Var(&cfg.LaneStartX, "lane-start", cfg.LaneStartX, "x of the first lane in world units")
	pf.Float64Var(&cfg.SpawnY, "spawn-y", cfg.SpawnY, "spawn line y in world units")
	pf.Float64Var(&cfg.HitLineY, "hit-y", cfg.HitLineY, "hit line y in world units")
	pf.BoolVar(&cfg.Lenient, "lenient", false, "skip note-offs without a sounding note instead of failing")
	pf.IntVarP(&timeoutSec, "timeout", "t", 0, "exit after this many seconds (0: no limit)")
	pf.StringVarP(&cfg.LogLevel, "log-level", "l", cfg.LogLevel, "log level: debug, info, warn, error")
	pf.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format: text, json")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 {
			cfg.MIDIPath = args[0]
		}
		return cfg.finish(cmd, timeoutSec)
	}

	play := &cobra.Command{
		Use:   "play <file.mid>",
		Short: "Play a MIDI file with falling notes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.Play(&cfg)
		},
	}
	play.Flags().BoolVar(&cfg.Headless, "headless", false, "run without a window")
	play.Flags().BoolVar(&cfg.TUI, "tui", false, "draw in the terminal instead of a window")
	play.Flags().BoolVar(&cfg.Mute, "mute", false, "play the MIDI file silently, keeping it as the clock")
	play.Flags().StringVar(&cfg.Clock, "clock", cfg.Clock, "audio clock source: player, samples")

	inspect := &cobra.Command{
		Use:   "inspect <file.mid>",
		Short: "Print the tempo map, tracks and first notes of a MIDI file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.Inspect(&cfg, cmd.OutOrStdout())
		},
	}

	snapshot := &cobra.Command{
		Use:   "snapshot <file.mid>",
		Short: "Render the frame at a given time to a PNG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.Snapshot(&cfg)
		},
	}
	snapshot.Flags().Float64Var(&cfg.At, "at", 0, "seconds after playback start")
	snapshot.Flags().StringVarP(&cfg.Output, "output", "o", cfg.Output, "output PNG path")
	snapshot.Flags().IntVar(&cfg.Width, "width", cfg.Width, "image width in pixels")
	snapshot.Flags().IntVar(&cfg.Height, "height", cfg.Height, "image height in pixels")

	root.AddCommand(play, inspect, snapshot)
	return root
}

// finish は環境変数を反映して設定を検証する（コマンドラインフラグが優先）
func (c *Config) finish(cmd *cobra.Command, timeoutSec int) error {
	changed := func(name string) bool {
		f := cmd.Flags().Lookup(name)
		return f != nil && f.Changed
	}

	if !changed("headless") {
		if v := os.Getenv("HEADLESS"); v != "" {
			c.Headless = v == "1" || strings.ToLower(v) == "true"
		}
	}
	if !changed("timeout") {
		if v := os.Getenv("TIMEOUT"); v != "" {
			if t, err := strconv.Atoi(v); err == nil && t > 0 {
				timeoutSec = t
			}
		}
	}
	if !changed("log-level") {
		if v := os.Getenv("LOG_LEVEL"); v != "" {
			c.LogLevel = strings.ToLower(v)
		}
	}
	if !changed("soundfont") {
		if v := os.Getenv("NOTEFALL_SOUNDFONT"); v != "" {
			c.SoundFont = v
		}
	}

	if timeoutSec < 0 {
		return fmt.Errorf("timeout must be non-negative, got %d", timeoutSec)
	}
	c.Timeout = time.Duration(timeoutSec) * time.Second

	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w (must be debug, info, warn, or error)", err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.LogFormat)
	}
	if c.Clock != ClockPlayer && c.Clock != ClockSamples {
		return fmt.Errorf("invalid clock source: %s (must be %s or %s)", c.Clock, ClockPlayer, ClockSamples)
	}
	if c.Headless && c.TUI {
		return fmt.Errorf("--headless and --tui cannot be combined")
	}

	if !finite(c.Lookahead) || c.Lookahead < 0 {
		return fmt.Errorf("lookahead must be non-negative, got %v", c.Lookahead)
	}
	if !finite(c.FallDuration) || c.FallDuration <= 0 {
		return fmt.Errorf("fall duration must be positive, got %v", c.FallDuration)
	}
	if !finite(c.DestroyOffset) {
		return fmt.Errorf("destroy offset must be finite, got %v", c.DestroyOffset)
	}
	if !finite(c.LaneWidth) || c.LaneWidth <= 0 {
		return fmt.Errorf("lane width must be positive, got %v", c.LaneWidth)
	}
	if c.SpawnY == c.HitLineY {
		return fmt.Errorf("spawn line and hit line must differ (both %v)", c.SpawnY)
	}
	if c.LowestPitch != AutoLowest && (c.LowestPitch < 0 || c.LowestPitch > 127) {
		return fmt.Errorf("lowest pitch must be 0-127 or %d, got %d", AutoLowest, c.LowestPitch)
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("image size must be positive, got %dx%d", c.Width, c.Height)
	}

	curve, err := easing.ByName(c.Easing)
	if err != nil {
		return err
	}
	c.curve = curve
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
