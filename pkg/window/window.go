// Package window はEbitengineのウィンドウで落下ノートを表示する
package window

import (
	"fmt"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"
	"github.com/zurustar/notefall/pkg/actor"
	"github.com/zurustar/notefall/pkg/logger"
	"github.com/zurustar/notefall/pkg/render"
	"github.com/zurustar/notefall/pkg/scheduler"
	"github.com/zurustar/notefall/pkg/tempo"
	"golang.org/x/image/font/basicfont"
)

const (
	// ScreenWidth は論理画面の幅
	ScreenWidth = 1024
	// ScreenHeight は論理画面の高さ
	ScreenHeight = 768
)

// デフォルトフォント
var defaultFace = text.NewGoXFace(basicfont.Face7x13)

// Playback は再生中かどうかを返す（audio.MIDIPlayerが実装する）
type Playback interface {
	IsPlaying() bool
}

// Options はGameの設定
type Options struct {
	Title       string        // ウィンドウタイトル
	Timeout     time.Duration // 0なら無制限
	Lanes       int           // レーン数
	Layout      actor.Layout  // ワールド座標の配置
	Lowest      uint8         // 最も左のレーンの音高
	Advance     func()        // 毎フレームTickの前に呼ばれる（手動クロック用）
	Playback    Playback      // nilなら音声なし
	Tempo       *tempo.Map    // nilならティックとBPMを表示しない
	CurrentTick func() int64  // 再生中のティック（nilなら経過時間から求める）
}

// Game はEbitengineのゲームインターフェースを実装する
type Game struct {
	sched    *scheduler.Scheduler
	opts     Options
	viewport render.Viewport

	startTime time.Time
	frozen    bool // スペースキーで表示を一時停止中

	mu sync.RWMutex
}

// NewGame Gameを作成
func NewGame(sched *scheduler.Scheduler, opts Options) *Game {
	return &Game{
		sched:     sched,
		opts:      opts,
		viewport:  render.NewViewport(opts.Layout, opts.Lanes, ScreenWidth, ScreenHeight),
		startTime: time.Now(),
	}
}

// Update ゲームロジックの更新（Ebitengineが毎フレーム呼び出す）
// 1フレームにつきスケジューラのTickを1回だけ呼ぶ
func (g *Game) Update() error {
	// タイムアウトチェック
	if g.opts.Timeout > 0 && time.Since(g.startTime) >= g.opts.Timeout {
		logger.GetLogger().Info("Timeout reached, closing window", "timeout", g.opts.Timeout)
		return ebiten.Termination
	}

	// Escキーで終了（1回だけ反応）
	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		return ebiten.Termination
	}

	// スペースキーで表示の一時停止を切り替える
	if inpututil.IsKeyJustPressed(ebiten.KeySpace) {
		g.SetFrozen(!g.Frozen())
	}

	g.step()

	if g.Finished() {
		return ebiten.Termination
	}
	return nil
}

// step はクロックを進めてスケジューラを1回Tickする
func (g *Game) step() {
	if g.opts.Advance != nil {
		g.opts.Advance()
	}
	g.sched.Tick()

	// 一時停止中に生成されたノートも止める
	if g.Frozen() {
		g.applyFrozen(true)
	}
}

// Finished は全ノートが消え、音声も終わったかどうかを返す
func (g *Game) Finished() bool {
	if !g.sched.Done() {
		return false
	}
	return g.opts.Playback == nil || !g.opts.Playback.IsPlaying()
}

// SetFrozen はノートの毎フレーム更新を止める/再開する
// 破棄の期限はオーディオクロックで判定されるので、止めていてもノートは消える
func (g *Game) SetFrozen(frozen bool) {
	g.mu.Lock()
	g.frozen = frozen
	g.mu.Unlock()
	g.applyFrozen(frozen)
	logger.GetLogger().Debug("Display frozen", "frozen", frozen)
}

// Frozen は一時停止中かどうかを返す
func (g *Game) Frozen() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.frozen
}

func (g *Game) applyFrozen(frozen bool) {
	for _, a := range g.sched.Live() {
		if fn, ok := a.(*actor.FallingNote); ok {
			fn.SetActive(!frozen)
		}
	}
}

// Draw 画面描画（Ebitengineが毎フレーム呼び出す）
func (g *Game) Draw(screen *ebiten.Image) {
	screen.Fill(render.Background)

	g.drawLanes(screen)
	g.drawNotes(screen)
	g.drawHUD(screen)
}

// drawLanes レーンの区切りと判定ラインを描画
func (g *Game) drawLanes(screen *ebiten.Image) {
	v := g.viewport
	for i := 0; i <= v.Lanes; i++ {
		x := float32(v.LaneX(i))
		clr := render.LaneLine
		if render.IsOctaveStart(g.opts.Lowest + uint8(i)) {
			clr = render.OctaveLine
		}
		vector.StrokeLine(screen, x, 0, x, float32(v.HitLineY()), 1, clr, false)
	}
	y := float32(v.HitLineY())
	vector.StrokeLine(screen, 0, y, float32(v.Width), y, 2, render.HitLine, false)
}

// drawNotes 生存中のノートを描画
func (g *Game) drawNotes(screen *ebiten.Image) {
	for _, a := range g.sched.Live() {
		fn, ok := a.(*actor.FallingNote)
		if !ok {
			continue
		}
		x, y, w, h := g.viewport.RectToScreen(fn.Bounds())
		clr := render.NoteColor(fn.Track, fn.Pitch)
		vector.DrawFilledRect(screen, float32(x)+1, float32(y), float32(w)-2, float32(h), clr, false)
	}
}

// hudLines HUDに表示する行
func (g *Game) hudLines() []string {
	st := g.sched.Stats()
	elapsed := g.sched.Elapsed()
	lines := []string{
		g.opts.Title,
		fmt.Sprintf("time %7.2fs", elapsed),
	}
	if tick, bpm, ok := render.MusicalPosition(g.opts.Tempo, g.opts.CurrentTick, elapsed); ok {
		lines = append(lines, fmt.Sprintf("tick %d  %.1f BPM", tick, bpm))
	}
	lines = append(lines, fmt.Sprintf("notes %d/%d  live %d  failed %d", st.Spawned, st.Total, st.Live, st.Failed))
	if g.Frozen() {
		lines = append(lines, "paused (SPACE to resume)")
	}
	return lines
}

// drawHUD 経過時間と統計を描画
func (g *Game) drawHUD(screen *ebiten.Image) {
	for i, line := range g.hudLines() {
		op := &text.DrawOptions{}
		op.GeoM.Translate(10, 10+float64(i*16))
		op.ColorScale.ScaleWithColor(render.Text)
		text.Draw(screen, line, defaultFace, op)
	}
}

// Layout 画面サイズを返す
func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return ScreenWidth, ScreenHeight
}

// Run GUIモードでウィンドウを実行
func Run(g *Game) error {
	ebiten.SetWindowSize(ScreenWidth, ScreenHeight)
	ebiten.SetWindowTitle("notefall - " + g.opts.Title)
	// Ebitengineがアスペクト比を維持してスケーリングする
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)

	if err := ebiten.RunGame(g); err != nil {
		return fmt.Errorf("failed to run game: %w", err)
	}
	return nil
}
