// Package actor implements the falling note: a visual object that moves from
// the spawn line to the hit line as the audio clock advances and is destroyed
// exactly once.
//
// Coordinates are y-up: SpawnY is normally above HitLineY.
package actor

import (
	"errors"
	"fmt"
	"math"

	"github.com/zurustar/notefall/pkg/easing"
)

// ErrInvalidParams is returned by New for unusable parameters.
var ErrInvalidParams = errors.New("invalid actor parameters")

// State is the lifecycle state of a FallingNote.
type State int

const (
	Active State = iota
	Inactive
	Destroyed
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Inactive:
		return "inactive"
	case Destroyed:
		return "destroyed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Reason tells why a FallingNote was destroyed.
type Reason int

const (
	// ReasonDeadline means the audio clock reached the destroy deadline.
	ReasonDeadline Reason = iota + 1
	// ReasonCancelled means playback stopped first.
	ReasonCancelled
)

func (r Reason) String() string {
	switch r {
	case ReasonDeadline:
		return "deadline"
	case ReasonCancelled:
		return "cancelled"
	}
	return "none"
}

// Layout holds the per-session placement parameters shared by every note.
type Layout struct {
	SpawnY       float64
	HitLineY     float64
	LaneStartX   float64
	LaneWidth    float64
	LowestPitch  uint8
	FallDuration float64      // seconds from spawn line to hit line
	Curve        easing.Curve // required
}

// Params initializes one FallingNote.
type Params struct {
	Layout

	Pitch    uint8
	Velocity uint8
	Track    int
	Duration float64 // note length in seconds

	// FallStart is the audio-clock time at which the fall starts. It can
	// differ from the scheduler's spawn deadline: a note spawned earlier than
	// its fall start waits on the spawn line.
	FallStart float64
	// DestroyDeadline is the audio-clock time at which the note is removed.
	DestroyDeadline float64
}

// Rect is an axis-aligned rectangle in world units.
type Rect struct {
	MinX, MinY, MaxX, MaxY float64
}

// Width returns MaxX - MinX.
func (r Rect) Width() float64 { return r.MaxX - r.MinX }

// Height returns MaxY - MinY.
func (r Rect) Height() float64 { return r.MaxY - r.MinY }

// FallingNote is a single falling note.
type FallingNote struct {
	Pitch    uint8
	Velocity uint8
	Track    int

	Lane         int
	X            float64 // lane centre
	Y            float64 // vertical centre
	FallSpeed    float64 // world units per second
	VisualLength float64

	FallStart       float64 // audio-clock time the fall begins
	DestroyDeadline float64
	Elapsed         float64 // seconds since FallStart at the last update

	layout Layout
	state  State
	reason Reason
}

// New computes the lane, speed and initial position of a note. The note
// starts Active with its leading (bottom) edge on the spawn line.
func New(p Params) (*FallingNote, error) {
	if !(p.FallDuration > 0) || math.IsInf(p.FallDuration, 0) {
		return nil, fmt.Errorf("%w: fall duration must be positive, got %v", ErrInvalidParams, p.FallDuration)
	}
	if p.Curve == nil {
		return nil, fmt.Errorf("%w: easing curve is required", ErrInvalidParams)
	}
	if p.Duration < 0 || math.IsNaN(p.Duration) {
		return nil, fmt.Errorf("%w: duration must not be negative, got %v", ErrInvalidParams, p.Duration)
	}

	a := &FallingNote{
		Pitch:           p.Pitch,
		Velocity:        p.Velocity,
		Track:           p.Track,
		Lane:            int(p.Pitch) - int(p.LowestPitch),
		FallStart:       p.FallStart,
		DestroyDeadline: p.DestroyDeadline,
		layout:          p.Layout,
		state:           Active,
	}
	a.X = p.LaneStartX + float64(a.Lane)*p.LaneWidth
	a.FallSpeed = (p.SpawnY - p.HitLineY) / p.FallDuration
	a.VisualLength = p.Duration * a.FallSpeed
	a.Y = p.SpawnY + a.VisualLength/2
	return a, nil
}

// Update moves the note to its position at audio time now. It does nothing
// while the note is inactive or destroyed.
func (a *FallingNote) Update(now float64) {
	if a.state != Active {
		return
	}
	a.Elapsed = now - a.FallStart
	eased := a.layout.Curve.Evaluate(a.Progress())
	top := lerp(a.layout.SpawnY+a.VisualLength, a.layout.HitLineY, eased)
	a.Y = top - a.VisualLength/2
}

// Progress returns the linear fall progress in [0,1] as of the last update.
func (a *FallingNote) Progress() float64 {
	return easing.Clamp01(a.Elapsed / a.layout.FallDuration)
}

// SetActive pauses or resumes per-frame updates. It has no effect on a
// destroyed note and does not affect the destroy deadline.
func (a *FallingNote) SetActive(active bool) {
	if a.state == Destroyed {
		return
	}
	if active {
		a.state = Active
	} else {
		a.state = Inactive
	}
}

// Destroy moves the note to the terminal Destroyed state. It returns false if
// the note was already destroyed.
func (a *FallingNote) Destroy(reason Reason) bool {
	if a.state == Destroyed {
		return false
	}
	a.state = Destroyed
	a.reason = reason
	return true
}

// State returns the lifecycle state.
func (a *FallingNote) State() State { return a.state }

// Destroyed reports whether Destroy has been called.
func (a *FallingNote) Destroyed() bool { return a.state == Destroyed }

// Reason returns why the note was destroyed, or 0 while it is alive.
func (a *FallingNote) Reason() Reason { return a.reason }

// Bounds returns the note rectangle: one lane wide and VisualLength tall,
// centred on (X, Y).
func (a *FallingNote) Bounds() Rect {
	halfW := a.layout.LaneWidth / 2
	halfH := a.VisualLength / 2
	return Rect{
		MinX: a.X - halfW,
		MinY: a.Y - halfH,
		MaxX: a.X + halfW,
		MaxY: a.Y + halfH,
	}
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}
