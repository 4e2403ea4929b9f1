// Package easing provides normalized progress curves used to interpolate the
// fall of a note. Every curve maps t in [0,1] to [0,1]; inputs outside the
// range are clamped.
package easing

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// ErrUnknownCurve is returned by ByName for an unregistered curve name.
var ErrUnknownCurve = errors.New("unknown easing curve")

// ErrInvalidKeyframes is returned when a keyframe curve cannot be built.
var ErrInvalidKeyframes = errors.New("invalid keyframes")

// Curve maps linear progress to eased progress.
type Curve interface {
	Evaluate(t float64) float64
}

// Func adapts a plain function to the Curve interface. The input is clamped
// before f is called and the result is clamped after.
type Func func(t float64) float64

// Evaluate implements Curve.
func (f Func) Evaluate(t float64) float64 {
	return Clamp01(f(Clamp01(t)))
}

// Clamp01 limits v to [0,1]. NaN becomes 0.
func Clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// standard is a named closed-form curve.
type standard struct {
	name string
	fn   func(t float64) float64
}

// Evaluate implements Curve.
func (c *standard) Evaluate(t float64) float64 {
	return Clamp01(c.fn(Clamp01(t)))
}

func (c *standard) String() string {
	return c.name
}

// Standard curves.
var (
	Linear        Curve = &standard{"linear", linear}
	EaseInQuad    Curve = &standard{"ease-in-quad", easeInQuad}
	EaseOutQuad   Curve = &standard{"ease-out-quad", easeOutQuad}
	EaseInOutQuad Curve = &standard{"ease-in-out-quad", easeInOutQuad}
	EaseInCubic   Curve = &standard{"ease-in-cubic", easeInCubic}
	EaseOutCubic  Curve = &standard{"ease-out-cubic", easeOutCubic}
	SmoothStep    Curve = &standard{"smoothstep", smoothStep}
)

func linear(t float64) float64      { return t }
func easeInQuad(t float64) float64  { return t * t }
func easeOutQuad(t float64) float64 { return t * (2 - t) }
func easeInCubic(t float64) float64 { return t * t * t }
func smoothStep(t float64) float64  { return t * t * (3 - 2*t) }

func easeInOutQuad(t float64) float64 {
	if t < 0.5 {
		return 2 * t * t
	}
	return -1 + (4-2*t)*t
}

func easeOutCubic(t float64) float64 {
	u := t - 1
	return u*u*u + 1
}

// Default is the curve used when none is configured.
var Default = EaseInQuad

var registry = map[string]Curve{}

func init() {
	for _, c := range []Curve{Linear, EaseInQuad, EaseOutQuad, EaseInOutQuad, EaseInCubic, EaseOutCubic, SmoothStep} {
		registry[c.(*standard).name] = c
	}
}

// ByName returns a registered curve. Names are case-insensitive and
// underscores may be used instead of hyphens. An empty name returns Default.
func ByName(name string) (Curve, error) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "-")
	if key == "" {
		return Default, nil
	}
	c, ok := registry[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %s)", ErrUnknownCurve, name, strings.Join(Names(), ", "))
	}
	return c, nil
}

// Names returns the registered curve names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Keyframe is one control point of a keyframe curve. Tangents are slopes
// (value per unit time) entering and leaving the point.
type Keyframe struct {
	Time       float64
	Value      float64
	InTangent  float64
	OutTangent float64
}

type keyframeCurve struct {
	keys []Keyframe
}

// Keyframes builds a curve that interpolates between keyframes with cubic
// Hermite segments. Times must be strictly increasing. Before the first key
// the first value is held; after the last key the last value is held.
func Keyframes(keys []Keyframe) (Curve, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: at least one keyframe is required", ErrInvalidKeyframes)
	}
	for i, k := range keys {
		if math.IsNaN(k.Time) || math.IsNaN(k.Value) {
			return nil, fmt.Errorf("%w: NaN in keyframe %d", ErrInvalidKeyframes, i)
		}
		if i > 0 && k.Time <= keys[i-1].Time {
			return nil, fmt.Errorf("%w: keyframe times must be strictly increasing (%v after %v)",
				ErrInvalidKeyframes, k.Time, keys[i-1].Time)
		}
	}
	c := &keyframeCurve{keys: make([]Keyframe, len(keys))}
	copy(c.keys, keys)
	return c, nil
}

// Evaluate implements Curve.
func (c *keyframeCurve) Evaluate(t float64) float64 {
	t = Clamp01(t)
	keys := c.keys
	if t <= keys[0].Time {
		return Clamp01(keys[0].Value)
	}
	last := keys[len(keys)-1]
	if t >= last.Time {
		return Clamp01(last.Value)
	}

	i := sort.Search(len(keys), func(i int) bool { return keys[i].Time > t }) - 1
	k0, k1 := keys[i], keys[i+1]
	dt := k1.Time - k0.Time
	s := (t - k0.Time) / dt

	s2 := s * s
	s3 := s2 * s
	h00 := 2*s3 - 3*s2 + 1
	h10 := s3 - 2*s2 + s
	h01 := -2*s3 + 3*s2
	h11 := s3 - s2

	v := h00*k0.Value + h10*dt*k0.OutTangent + h01*k1.Value + h11*dt*k1.InTangent
	return Clamp01(v)
}
