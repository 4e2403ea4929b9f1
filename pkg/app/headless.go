package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/zurustar/notefall/pkg/logger"
	"github.com/zurustar/notefall/pkg/scheduler"
)

// HeadlessOptions ヘッドレス実行の設定
type HeadlessOptions struct {
	Interval time.Duration // Tick間隔
	Advance  func()        // 毎Tickの前に呼ばれる（手動クロック用）
	Playback Playback      // nilなら音声なし
	Logger   *slog.Logger
}

// RunHeadless ウィンドウなしでスケジューラを駆動する
// 全ノートが破棄され再生も終わるか、ctx が終了するまでブロックする
// タイムアウトによる終了は正常終了として扱う
func RunHeadless(ctx context.Context, sched *scheduler.Scheduler, opts HeadlessOptions) error {
	if opts.Interval <= 0 {
		opts.Interval = headlessInterval
	}
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}

	log.Info("Headless mode: running without display", "interval", opts.Interval)

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	ticks := 0
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				log.Info("Timeout reached, terminating", "ticks", ticks)
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
		}

		if opts.Advance != nil {
			opts.Advance()
		}
		sched.Tick()
		ticks++

		if sched.Done() && (opts.Playback == nil || !opts.Playback.IsPlaying()) {
			st := sched.Stats()
			log.Info("All notes finished", "ticks", ticks, "spawned", st.Spawned, "destroyed", st.Destroyed)
			return nil
		}
	}
}
