// Package render maps falling-note world coordinates to pixels and holds the
// palette shared by the window and the snapshot renderer.
package render

import (
	"image/color"

	"github.com/zurustar/notefall/pkg/actor"
	"github.com/zurustar/notefall/pkg/tempo"
)

// HitMargin is the pixel distance from the bottom of the frame to the hit
// line.
const HitMargin = 96

// Viewport maps a Layout to a width x height pixel frame: the spawn line at
// the top edge, the hit line HitMargin pixels above the bottom, and the lanes
// filling the width.
type Viewport struct {
	Width, Height int
	Lanes         int

	minX   float64
	spawnY float64
	sx, sy float64
}

// NewViewport creates a viewport for lanes lanes (at least one).
func NewViewport(layout actor.Layout, lanes, width, height int) Viewport {
	lanes = max(lanes, 1)
	v := Viewport{
		Width:  width,
		Height: height,
		Lanes:  lanes,
		minX:   layout.LaneStartX - layout.LaneWidth/2,
		spawnY: layout.SpawnY,
		sx:     1,
		sy:     1,
	}
	if span := float64(lanes) * layout.LaneWidth; span != 0 {
		v.sx = float64(width) / span
	}
	if fall := layout.SpawnY - layout.HitLineY; fall != 0 {
		v.sy = float64(height-HitMargin) / fall
	}
	return v
}

// ToScreen converts a world point to pixels (y-down).
func (v Viewport) ToScreen(x, y float64) (float64, float64) {
	return (x - v.minX) * v.sx, (v.spawnY - y) * v.sy
}

// RectToScreen converts a world rectangle to a pixel rectangle with a
// non-negative size. Zero-length notes get a minimum height of 2 pixels.
func (v Viewport) RectToScreen(r actor.Rect) (x, y, w, h float64) {
	x0, y0 := v.ToScreen(r.MinX, r.MinY)
	x1, y1 := v.ToScreen(r.MaxX, r.MaxY)
	x, w = min(x0, x1), abs(x1-x0)
	y, h = min(y0, y1), abs(y1-y0)
	if h < 2 {
		y -= (2 - h) / 2
		h = 2
	}
	return x, y, w, h
}

// HitLineY returns the pixel row of the hit line.
func (v Viewport) HitLineY() float64 {
	return float64(v.Height - HitMargin)
}

// LaneX returns the left pixel edge of lane i.
func (v Viewport) LaneX(i int) float64 {
	return float64(i) * float64(v.Width) / float64(v.Lanes)
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

var (
	Background = color.RGBA{0x12, 0x12, 0x18, 0xFF}
	LaneLine   = color.RGBA{0xFF, 0xFF, 0xFF, 0x18}
	OctaveLine = color.RGBA{0xFF, 0xFF, 0xFF, 0x4C}
	HitLine    = color.RGBA{0xFF, 0xFF, 0xFF, 0xCC}
	Text       = color.White
)

var trackColors = []color.RGBA{
	{0xFF, 0x80, 0x00, 0xFF}, // orange
	{0x33, 0xFF, 0x33, 0xFF}, // green
	{0x80, 0xD9, 0xFF, 0xFF}, // blue
	{0xCC, 0x99, 0x0D, 0xFF}, // yellow
	{0xFF, 0x99, 0xB3, 0xFF}, // pink
	{0x80, 0x80, 0x80, 0xFF}, // grey
}

// NoteColor returns the fill colour for a note: one hue per track, darker on
// black keys.
func NoteColor(track int, pitch uint8) color.RGBA {
	c := trackColors[((track%len(trackColors))+len(trackColors))%len(trackColors)]
	if !IsWhiteKey(pitch) {
		c = Darker(c)
	}
	return c
}

// Darker returns c at 80% brightness.
func Darker(c color.RGBA) color.RGBA {
	return color.RGBA{
		R: uint8(float64(c.R) * 0.8),
		G: uint8(float64(c.G) * 0.8),
		B: uint8(float64(c.B) * 0.8),
		A: c.A,
	}
}

// IsWhiteKey reports whether pitch is a white key on a piano keyboard.
func IsWhiteKey(pitch uint8) bool {
	switch pitch % 12 {
	case 1, 3, 6, 8, 10:
		return false
	}
	return true
}

// IsOctaveStart reports whether pitch is a C.
func IsOctaveStart(pitch uint8) bool {
	return pitch%12 == 0
}

// MusicalPosition returns the MIDI tick and tempo shown in the HUD. tick reads
// the position of the playing file when it is not nil; otherwise elapsed audio
// seconds are mapped through tm. ok is false without a tempo map.
func MusicalPosition(tm *tempo.Map, tick func() int64, elapsed float64) (int64, float64, bool) {
	if tm == nil {
		return 0, 0, false
	}
	var t int64
	if tick != nil {
		t = tick()
	} else {
		t = tm.SecondsToTicks(elapsed)
	}
	return t, tm.BPMAt(t), true
}
