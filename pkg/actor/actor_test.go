package actor

import (
	"errors"
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zurustar/notefall/pkg/easing"
)

func testLayout() Layout {
	return Layout{
		SpawnY:       15,
		HitLineY:     0,
		LaneStartX:   -4.5,
		LaneWidth:    1.0,
		LowestPitch:  48,
		FallDuration: 2.0,
		Curve:        easing.Linear,
	}
}

func TestNewLanePosition(t *testing.T) {
	// pitch 60, lowest 48, start -4.5, width 1.0
	a, err := New(Params{Layout: testLayout(), Pitch: 60, Duration: 1.0})
	require.NoError(t, err)
	assert.Equal(t, 12, a.Lane)
	assert.InDelta(t, 7.5, a.X, 1e-12)
}

func TestNewFallSpeedAndLength(t *testing.T) {
	// fall 2.0s from y=15 to y=0, note lasts 1.0s
	a, err := New(Params{Layout: testLayout(), Pitch: 60, Duration: 1.0})
	require.NoError(t, err)
	assert.InDelta(t, 7.5, a.FallSpeed, 1e-12)
	assert.InDelta(t, 7.5, a.VisualLength, 1e-12)
	// leading edge on the spawn line
	assert.InDelta(t, 15+7.5/2, a.Y, 1e-12)
	assert.InDelta(t, 15, a.Bounds().MinY, 1e-12)
	assert.Equal(t, Active, a.State())
}

func TestNewRejectsInvalidParams(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Params)
	}{
		{"zero fall duration", func(p *Params) { p.FallDuration = 0 }},
		{"negative fall duration", func(p *Params) { p.FallDuration = -1 }},
		{"NaN fall duration", func(p *Params) { p.FallDuration = math.NaN() }},
		{"missing curve", func(p *Params) { p.Curve = nil }},
		{"negative duration", func(p *Params) { p.Duration = -0.1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Params{Layout: testLayout(), Pitch: 60, Duration: 1}
			tt.modify(&p)
			_, err := New(p)
			assert.True(t, errors.Is(err, ErrInvalidParams), "got %v", err)
		})
	}
}

func TestUpdateFollowsCurve(t *testing.T) {
	p := Params{Layout: testLayout(), Pitch: 60, Duration: 1.0, FallStart: 10}
	a, err := New(p)
	require.NoError(t, err)

	tests := []struct {
		now      float64
		progress float64
	}{
		{9, 0}, // before spawn time: clamped
		{10, 0},
		{11, 0.5},
		{12, 1},
		{20, 1},
	}
	for _, tt := range tests {
		a.Update(tt.now)
		assert.InDelta(t, tt.progress, a.Progress(), 1e-12, "now=%v", tt.now)
		top := (15 + 7.5) + (0-(15+7.5))*tt.progress
		assert.InDelta(t, top-7.5/2, a.Y, 1e-9, "now=%v", tt.now)
	}
}

func TestUpdateUsesEasing(t *testing.T) {
	layout := testLayout()
	layout.Curve = easing.EaseInQuad
	a, err := New(Params{Layout: layout, Pitch: 48, Duration: 0})
	require.NoError(t, err)

	a.Update(1.0) // progress 0.5, eased 0.25
	assert.InDelta(t, 15*0.75, a.Y, 1e-12)
	assert.Equal(t, 0, a.Lane)
	assert.InDelta(t, -4.5, a.X, 1e-12)
}

func TestInactiveNoteDoesNotMove(t *testing.T) {
	a, err := New(Params{Layout: testLayout(), Pitch: 60, Duration: 1.0})
	require.NoError(t, err)

	a.Update(0.5)
	y := a.Y
	a.SetActive(false)
	assert.Equal(t, Inactive, a.State())
	a.Update(1.5)
	assert.Equal(t, y, a.Y)

	a.SetActive(true)
	a.Update(1.5)
	assert.Less(t, a.Y, y)
}

func TestDestroyExactlyOnce(t *testing.T) {
	a, err := New(Params{Layout: testLayout(), Pitch: 60, Duration: 1.0})
	require.NoError(t, err)
	a.SetActive(false)

	assert.True(t, a.Destroy(ReasonDeadline), "inactive notes can still be destroyed")
	assert.False(t, a.Destroy(ReasonCancelled))
	assert.Equal(t, ReasonDeadline, a.Reason())
	assert.True(t, a.Destroyed())

	a.SetActive(true)
	assert.Equal(t, Destroyed, a.State(), "destroyed is terminal")

	y := a.Y
	a.Update(5)
	assert.Equal(t, y, a.Y)
}

func TestBounds(t *testing.T) {
	a, err := New(Params{Layout: testLayout(), Pitch: 60, Duration: 1.0})
	require.NoError(t, err)
	b := a.Bounds()
	assert.InDelta(t, 7.0, b.MinX, 1e-12)
	assert.InDelta(t, 8.0, b.MaxX, 1e-12)
	assert.InDelta(t, 1.0, b.Width(), 1e-12)
	assert.InDelta(t, 7.5, b.Height(), 1e-12)
}

func TestStrings(t *testing.T) {
	assert.Equal(t, "inactive", Inactive.String())
	assert.Equal(t, "cancelled", ReasonCancelled.String())
	assert.Equal(t, "none", Reason(0).String())
}

// TestFallProperty checks that the leading edge moves monotonically from the
// spawn line towards the hit line.
func TestFallProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("y is non-increasing over time and bounded", prop.ForAll(
		func(fall, duration, t1, t2 float64) bool {
			layout := testLayout()
			layout.FallDuration = fall
			layout.Curve = easing.SmoothStep
			a, err := New(Params{Layout: layout, Pitch: 60, Duration: duration})
			if err != nil {
				return false
			}
			if t1 > t2 {
				t1, t2 = t2, t1
			}
			start := a.Y
			a.Update(t1)
			y1 := a.Y
			a.Update(t2)
			y2 := a.Y
			end := layout.HitLineY - a.VisualLength/2
			return y1 <= start+1e-9 && y2 <= y1+1e-9 && y2 >= end-1e-9
		},
		gen.Float64Range(0.1, 10),
		gen.Float64Range(0, 5),
		gen.Float64Range(-1, 20),
		gen.Float64Range(-1, 20),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
