package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/zurustar/notefall/pkg/cli"
	"github.com/zurustar/notefall/pkg/clock"
	"github.com/zurustar/notefall/pkg/logger"
	"github.com/zurustar/notefall/pkg/scheduler"
	"github.com/zurustar/notefall/pkg/snapshot"
	"github.com/zurustar/notefall/pkg/timeline"
	"github.com/zurustar/notefall/pkg/tui"
	"github.com/zurustar/notefall/pkg/window"
)

// ヘッドレスモードのTick間隔
const headlessInterval = time.Second / 60

// TUIモードのログ出力先
const tuiLogFile = "notefall.log"

// Application はアプリケーションのメインロジックを管理する
type Application struct {
	log    *slog.Logger
	stdout io.Writer

	// テスト用: ヘッドレスモードのTick間隔
	headlessInterval time.Duration
	// テスト用: SoundFontがないときのオーディオ出力
	openSilent func() (silentOutput, error)
}

// New Applicationを作成
func New() *Application {
	return &Application{
		stdout:           os.Stdout,
		headlessInterval: headlessInterval,
		openSilent:       openSilentOutput,
	}
}

// Run コマンドライン引数を解析してサブコマンドを実行
func (app *Application) Run(args []string) error {
	cmd := cli.NewRootCommand(app)
	cmd.SetArgs(args)
	cmd.SetOut(app.stdout)
	return cmd.Execute()
}

// initLogger ロガーを初期化
func (app *Application) initLogger(cfg *cli.Config, w io.Writer) error {
	if err := logger.InitLoggerWithWriter(cfg.LogLevel, cfg.LogFormat, w); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	app.log = logger.GetLogger()
	return nil
}

// loadTimeline MIDIファイルからノートのタイムラインを抽出
func (app *Application) loadTimeline(cfg *cli.Config) (*timeline.Timeline, error) {
	opts := []timeline.Option{timeline.WithLogger(app.log)}
	if cfg.Lenient {
		opts = append(opts, timeline.WithLenient())
	}
	tl, err := timeline.Extract(cfg.MIDIPath, opts...)
	if err != nil {
		return nil, err
	}
	if tl.Dropped > 0 {
		app.log.Warn("Some notes were dropped", "count", tl.Dropped)
	}
	return tl, nil
}

// lanes 最も左のレーンの音高とレーン数を決める
func lanes(cfg *cli.Config, s timeline.Summary) (uint8, int) {
	if cfg.LowestPitch == cli.AutoLowest {
		if s.Notes == 0 {
			return 60, 12
		}
		return s.LowestPitch, s.Lanes
	}
	lowest := uint8(cfg.LowestPitch)
	if s.Notes == 0 || s.HighestPitch < lowest {
		return lowest, 12
	}
	return lowest, int(s.HighestPitch-lowest) + 1
}

// Play MIDIファイルを再生しながらノートを降らせる
func (app *Application) Play(cfg *cli.Config) error {
	logOut := io.Writer(os.Stdout)
	if cfg.TUI {
		f, err := os.Create(tuiLogFile)
		if err != nil {
			return fmt.Errorf("failed to create log file: %w", err)
		}
		defer f.Close()
		logOut = f
	}
	if err := app.initLogger(cfg, logOut); err != nil {
		return err
	}

	app.log.Info("Application started", "file", cfg.MIDIPath)

	tl, err := app.loadTimeline(cfg)
	if err != nil {
		return err
	}
	summary := tl.Summary()
	lowest, laneCount := lanes(cfg, summary)
	app.log.Info("Timeline loaded",
		"notes", summary.Notes, "tracks", len(summary.Tracks), "length", summary.Length,
		"lowest", lowest, "lanes", laneCount)

	ac, err := app.newAudioClock(cfg, tl)
	if err != nil {
		return err
	}
	defer ac.close()

	layout := cfg.Layout(lowest)
	sched := scheduler.New(clock.New(ac.source, app.log), scheduler.NoteFactory{Layout: layout}, scheduler.Config{
		DestroyOffset: cfg.DestroyOffset,
		Logger:        app.log,
	})
	if err := sched.Start(tl.Notes, cfg.Lookahead); err != nil {
		return err
	}
	defer sched.Stop()

	switch {
	case cfg.Headless:
		ctx := context.Background()
		if cfg.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
			defer cancel()
		}
		err = RunHeadless(ctx, sched, HeadlessOptions{
			Interval: app.headlessInterval,
			Advance:  ac.advance(app.headlessInterval.Seconds()),
			Playback: ac.playback(),
			Logger:   app.log,
		})

	case cfg.TUI:
		m := tui.NewModel(sched, tui.Options{
			Title:       tl.Name,
			Lanes:       laneCount,
			Lowest:      lowest,
			Layout:      layout,
			Timeout:     cfg.Timeout,
			Advance:     ac.advance(tui.DefaultFrameInterval.Seconds()),
			Playback:    ac.playback(),
			Tempo:       tl.Tempo,
			CurrentTick: ac.currentTick(),
		})
		m, err = tui.Run(m)
		if err == nil && m.TimedOut() {
			app.log.Info("Timeout reached, terminating")
		}

	default:
		g := window.NewGame(sched, window.Options{
			Title:       tl.Name,
			Timeout:     cfg.Timeout,
			Lanes:       laneCount,
			Layout:      layout,
			Lowest:      lowest,
			Advance:     ac.advance(1.0 / 60),
			Playback:    ac.playback(),
			Tempo:       tl.Tempo,
			CurrentTick: ac.currentTick(),
		})
		err = window.Run(g)
	}
	if err != nil {
		return err
	}

	st := sched.Stats()
	app.log.Info("Application terminated normally",
		"spawned", st.Spawned, "destroyed", st.Destroyed, "failed", st.Failed, "max_lateness", st.MaxLateness)
	return nil
}

// Snapshot 指定時刻のフレームをPNGに書き出す
func (app *Application) Snapshot(cfg *cli.Config) error {
	if err := app.initLogger(cfg, os.Stdout); err != nil {
		return err
	}
	tl, err := app.loadTimeline(cfg)
	if err != nil {
		return err
	}
	lowest, laneCount := lanes(cfg, tl.Summary())

	res, err := snapshot.Capture(tl.Notes, cfg.At, snapshot.Config{
		Title:         tl.Name,
		Width:         cfg.Width,
		Height:        cfg.Height,
		Layout:        cfg.Layout(lowest),
		Lanes:         laneCount,
		Lookahead:     cfg.Lookahead,
		DestroyOffset: cfg.DestroyOffset,
		Logger:        app.log,
	})
	if err != nil {
		return err
	}
	if err := res.SavePNG(cfg.Output); err != nil {
		return err
	}
	app.log.Info("Snapshot written", "path", cfg.Output, "at", cfg.At, "live", res.Stats.Live)
	return nil
}
