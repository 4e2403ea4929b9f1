// Package snapshot renders a single frame of the falling-note view to a PNG
// without opening a window or playing audio. The scheduler runs on a manual
// clock stepped frame by frame up to the requested time, so the picture is
// the same state a live run shows at that moment.
package snapshot

import (
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"math"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/zurustar/notefall/pkg/actor"
	"github.com/zurustar/notefall/pkg/clock"
	"github.com/zurustar/notefall/pkg/logger"
	"github.com/zurustar/notefall/pkg/render"
	"github.com/zurustar/notefall/pkg/scheduler"
	"github.com/zurustar/notefall/pkg/timeline"
)

// ErrInvalidTime is returned for a negative or non-finite capture time.
var ErrInvalidTime = errors.New("invalid snapshot time")

const noteRadius = 3

// Config describes the frame and the scheduler settings to replay.
type Config struct {
	Title         string
	Width, Height int
	FrameRate     int
	Layout        actor.Layout
	Lanes         int
	Lookahead     float64
	DestroyOffset float64
	Logger        *slog.Logger
}

func (c *Config) defaults() {
	if c.Width <= 0 {
		c.Width = 1024
	}
	if c.Height <= 0 {
		c.Height = 768
	}
	if c.FrameRate <= 0 {
		c.FrameRate = 60
	}
	if c.Logger == nil {
		c.Logger = logger.GetLogger()
	}
}

// Result is a rendered frame.
type Result struct {
	At    float64
	Stats scheduler.Stats
	dc    *gg.Context
}

// Image returns the rendered frame.
func (r *Result) Image() image.Image {
	return r.dc.Image()
}

// EncodePNG writes the frame as PNG to w.
func (r *Result) EncodePNG(w io.Writer) error {
	return r.dc.EncodePNG(w)
}

// SavePNG writes the frame as PNG to path.
func (r *Result) SavePNG(path string) error {
	if err := r.dc.SavePNG(path); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// Capture replays notes up to at seconds after playback start and renders
// the live notes.
func Capture(notes []timeline.NoteInfo, at float64, cfg Config) (*Result, error) {
	if at < 0 || math.IsNaN(at) || math.IsInf(at, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTime, at)
	}
	cfg.defaults()

	src := clock.NewManualSource(0)
	sched := scheduler.New(clock.New(src, cfg.Logger), scheduler.NoteFactory{Layout: cfg.Layout}, scheduler.Config{
		DestroyOffset: cfg.DestroyOffset,
		Logger:        cfg.Logger,
	})
	if err := sched.Start(notes, cfg.Lookahead); err != nil {
		return nil, err
	}
	defer sched.Stop()

	dt := 1 / float64(cfg.FrameRate)
	now := 0.0
	sched.Tick()
	for now < at {
		now = min(now+dt, at)
		src.Set(now)
		sched.Tick()
	}

	var live []*actor.FallingNote
	for _, a := range sched.Live() {
		if fn, ok := a.(*actor.FallingNote); ok {
			live = append(live, fn)
		}
	}

	dc := gg.NewContext(cfg.Width, cfg.Height)
	vp := render.NewViewport(cfg.Layout, cfg.Lanes, cfg.Width, cfg.Height)
	stats := sched.Stats()
	if err := draw(dc, vp, cfg, live, fmt.Sprintf("%s  %.2fs  live %d/%d", cfg.Title, at, stats.Live, stats.Total)); err != nil {
		return nil, err
	}

	cfg.Logger.Debug("Snapshot rendered", "at", at, "live", len(live), "spawned", stats.Spawned, "destroyed", stats.Destroyed)
	return &Result{At: at, Stats: stats, dc: dc}, nil
}

func draw(dc *gg.Context, vp render.Viewport, cfg Config, notes []*actor.FallingNote, label string) error {
	dc.SetColor(render.Background)
	dc.DrawRectangle(0, 0, float64(cfg.Width), float64(cfg.Height))
	dc.Fill()

	lowest := cfg.Layout.LowestPitch
	for i := 0; i <= vp.Lanes; i++ {
		x := vp.LaneX(i)
		if i < vp.Lanes && render.IsOctaveStart(lowest+uint8(i)) {
			dc.SetColor(render.OctaveLine)
		} else {
			dc.SetColor(render.LaneLine)
		}
		dc.SetLineWidth(0.5)
		dc.DrawLine(x, 0, x, float64(cfg.Height))
		dc.Stroke()
	}

	for _, n := range notes {
		x, y, w, h := vp.RectToScreen(n.Bounds())
		dc.DrawRoundedRectangle(x+1, y, max(w-2, 1), h, noteRadius)
		dc.SetColor(render.NoteColor(n.Track, n.Pitch))
		dc.FillPreserve()
		dc.SetRGBA(0, 0, 0, 1)
		dc.SetLineWidth(1)
		dc.Stroke()
	}

	hit := vp.HitLineY()
	dc.SetColor(render.HitLine)
	dc.SetLineWidth(2)
	dc.DrawLine(0, hit, float64(cfg.Width), hit)
	dc.Stroke()

	font, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return fmt.Errorf("failed to load font: %w", err)
	}
	laneW := float64(cfg.Width) / float64(vp.Lanes)
	dc.SetFontFace(truetype.NewFace(font, &truetype.Options{Size: math.Max(8, math.Min(14, laneW/2))}))
	dc.SetRGBA(1, 1, 1, 0.5)
	for i := 0; i < vp.Lanes; i++ {
		p := lowest + uint8(i)
		if render.IsOctaveStart(p) {
			dc.DrawString(fmt.Sprintf("C%d", int(p)/12-1), vp.LaneX(i)+2, hit+20)
		}
	}

	dc.SetFontFace(truetype.NewFace(font, &truetype.Options{Size: 14}))
	dc.SetColor(render.Text)
	dc.DrawString(label, 10, float64(cfg.Height)-16)
	return nil
}
