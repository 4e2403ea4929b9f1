package scheduler

import (
	"github.com/zurustar/notefall/pkg/actor"
)

// NoteFactory creates actor.FallingNote actors laid out with a shared Layout.
// The fall is timed so the note arrives at the hit line at its start time.
type NoteFactory struct {
	Layout actor.Layout
}

// Spawn implements ActorFactory.
func (f NoteFactory) Spawn(req SpawnRequest) (Actor, error) {
	a, err := actor.New(actor.Params{
		Layout:          f.Layout,
		Pitch:           req.Note.Pitch,
		Velocity:        req.Note.Velocity,
		Track:           req.Note.Track,
		Duration:        req.Note.Duration,
		FallStart:       req.HitTime - f.Layout.FallDuration,
		DestroyDeadline: req.DestroyDeadline,
	})
	if err != nil {
		return nil, err
	}
	a.Update(req.Now)
	return a, nil
}
