// Package scheduler spawns falling notes from a sorted note timeline as the
// audio clock reaches each note's lookahead window, and destroys them at
// their audio-clock deadlines.
//
// The scheduler is driven by Tick, called once per update cycle from a single
// goroutine. All timing decisions use the audio clock; how often Tick is
// called only bounds the precision of a spawn, never its correctness.
package scheduler

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/zurustar/notefall/pkg/actor"
	"github.com/zurustar/notefall/pkg/deadline"
	"github.com/zurustar/notefall/pkg/logger"
	"github.com/zurustar/notefall/pkg/timeline"
)

var (
	// ErrUnsortedNotes is returned by Start when notes are not ordered by
	// start time.
	ErrUnsortedNotes = errors.New("notes are not sorted by start time")
	// ErrInvalidLookahead is returned by Start for a negative lookahead.
	ErrInvalidLookahead = errors.New("invalid lookahead")
	// ErrAlreadyRunning is returned by Start while a session is active.
	ErrAlreadyRunning = errors.New("scheduler is already running")
	// ErrActorSpawn wraps a factory failure. It is logged and the note is
	// skipped; the session continues.
	ErrActorSpawn = errors.New("actor spawn failed")
)

// Clock is the audio clock the scheduler reads.
type Clock interface {
	// Start captures the playback epoch once and returns it.
	Start() float64
	Epoch() float64
	Now() float64
}

// Actor is a spawned visual object.
type Actor interface {
	Update(now float64)
	Destroy(reason actor.Reason) bool
	Destroyed() bool
}

// SpawnRequest carries everything a factory needs to create the actor for
// one note. Times are audio-clock seconds.
type SpawnRequest struct {
	Session string
	Index   int
	Note    timeline.NoteInfo

	Now             float64
	Epoch           float64
	Lookahead       float64
	SpawnDeadline   float64 // Epoch + StartTime - Lookahead
	HitTime         float64 // Epoch + StartTime
	DestroyDeadline float64 // Epoch + StartTime + Duration + destroy offset
}

// ActorFactory creates actors. A returned error is wrapped in ErrActorSpawn.
type ActorFactory interface {
	Spawn(req SpawnRequest) (Actor, error)
}

// FactoryFunc adapts a function to ActorFactory.
type FactoryFunc func(req SpawnRequest) (Actor, error)

// Spawn implements ActorFactory.
func (f FactoryFunc) Spawn(req SpawnRequest) (Actor, error) {
	return f(req)
}

// Config holds scheduler settings.
type Config struct {
	// DestroyOffset is added to a note's end time to get its destroy
	// deadline.
	DestroyOffset float64
	Logger        *slog.Logger
}

// Stats is a snapshot of scheduler counters.
type Stats struct {
	Total     int
	Spawned   int // includes failed spawns
	Pending   int
	Live      int
	Destroyed int // reached their deadline
	Cancelled int // force-destroyed by Stop
	Failed    int
	// MaxLateness is the largest gap between a spawn deadline and the tick
	// that acted on it, in seconds.
	MaxLateness float64
}

type liveActor struct {
	index int
	actor Actor
	task  *deadline.Task
}

// Scheduler turns notes into actors.
type Scheduler struct {
	clock   Clock
	factory ActorFactory
	cfg     Config
	log     *slog.Logger

	session   string
	notes     []timeline.NoteInfo
	spawned   []bool
	next      int
	lookahead float64
	epoch     float64
	running   bool

	queue *deadline.Queue
	live  []*liveActor
	stats Stats
}

// New creates a scheduler. Nothing happens until Start.
func New(clock Clock, factory ActorFactory, cfg Config) *Scheduler {
	log := cfg.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	return &Scheduler{
		clock:   clock,
		factory: factory,
		cfg:     cfg,
		log:     log,
		queue:   deadline.NewQueue(),
	}
}

// Start begins a scheduling session. notes must be sorted by StartTime and
// are not modified. The first session takes the clock epoch (captured here if
// playback has not already captured it); each later session after Stop uses
// the clock reading at its own Start.
func (s *Scheduler) Start(notes []timeline.NoteInfo, lookahead float64) error {
	if s.running {
		return ErrAlreadyRunning
	}
	if lookahead < 0 {
		return fmt.Errorf("%w: must not be negative, got %v", ErrInvalidLookahead, lookahead)
	}
	for i := 1; i < len(notes); i++ {
		if notes[i].StartTime < notes[i-1].StartTime {
			return fmt.Errorf("%w: note %d starts at %v, before note %d at %v",
				ErrUnsortedNotes, i, notes[i].StartTime, i-1, notes[i-1].StartTime)
		}
	}

	s.notes = notes
	s.spawned = make([]bool, len(notes))
	s.next = 0
	s.lookahead = lookahead
	if s.session == "" {
		s.epoch = s.clock.Start()
	} else {
		// a later session on the same clock starts from the current time
		s.epoch = s.clock.Now()
	}
	s.session = uuid.NewString()
	s.live = s.live[:0]
	s.queue = deadline.NewQueue()
	s.stats = Stats{Total: len(notes), Pending: len(notes)}
	s.running = true

	s.log.Info("Scheduling started",
		"session", s.session, "notes", len(notes), "lookahead", lookahead,
		"destroy_offset", s.cfg.DestroyOffset, "epoch", s.epoch)
	return nil
}

// Tick runs one scheduling step: spawn every note whose lookahead window has
// arrived, destroy actors whose deadline has passed, then update the rest.
// It is a no-op when no session is running.
func (s *Scheduler) Tick() {
	if !s.running {
		return
	}
	now := s.clock.Now()
	elapsed := now - s.epoch

	// notes are sorted, so the first note that is not due ends the scan
	for s.next < len(s.notes) {
		note := s.notes[s.next]
		due := note.StartTime - s.lookahead
		if elapsed < due {
			break
		}
		s.spawn(s.next, now, elapsed-due)
		s.next++
	}

	s.queue.Poll(now)

	alive := s.live[:0]
	for _, la := range s.live {
		if la.actor.Destroyed() {
			continue
		}
		la.actor.Update(now)
		alive = append(alive, la)
	}
	for i := len(alive); i < len(s.live); i++ {
		s.live[i] = nil
	}
	s.live = alive
	s.stats.Live = len(s.live)
}

func (s *Scheduler) spawn(i int, now, lateness float64) {
	note := s.notes[i]
	s.spawned[i] = true
	s.stats.Spawned++
	s.stats.Pending--
	s.stats.MaxLateness = max(s.stats.MaxLateness, lateness)

	req := SpawnRequest{
		Session:         s.session,
		Index:           i,
		Note:            note,
		Now:             now,
		Epoch:           s.epoch,
		Lookahead:       s.lookahead,
		SpawnDeadline:   s.epoch + note.StartTime - s.lookahead,
		HitTime:         s.epoch + note.StartTime,
		DestroyDeadline: s.epoch + note.StartTime + note.Duration + s.cfg.DestroyOffset,
	}

	a, err := s.factory.Spawn(req)
	if err == nil && a == nil {
		err = errors.New("factory returned no actor")
	}
	if err != nil {
		s.stats.Failed++
		s.log.Warn("Skipping note",
			"session", s.session, "index", i, "pitch", note.Pitch,
			"start", note.StartTime, "error", fmt.Errorf("%w: %v", ErrActorSpawn, err))
		return
	}

	la := &liveActor{index: i, actor: a}
	la.task = s.queue.Schedule(req.DestroyDeadline, func(float64) {
		if la.actor.Destroy(actor.ReasonDeadline) {
			s.stats.Destroyed++
		}
	})
	s.live = append(s.live, la)
	s.stats.Live = len(s.live)
}

// Stop ends the session: unspawned notes are discarded, pending destroy
// deadlines are cancelled and every live actor is destroyed immediately.
// Calling Stop without a running session is a no-op.
func (s *Scheduler) Stop() {
	if !s.running {
		return
	}
	s.running = false

	for _, la := range s.live {
		la.task.Cancel(func() {
			if la.actor.Destroy(actor.ReasonCancelled) {
				s.stats.Cancelled++
			}
		})
	}
	s.queue.CancelAll(nil)
	for i := range s.live {
		s.live[i] = nil
	}
	s.live = s.live[:0]

	discarded := s.stats.Pending
	s.stats.Live = 0
	s.stats.Pending = 0

	s.log.Info("Scheduling stopped",
		"session", s.session, "spawned", s.stats.Spawned, "discarded", discarded,
		"destroyed", s.stats.Destroyed, "cancelled", s.stats.Cancelled, "failed", s.stats.Failed)
}

// Running reports whether a session is active.
func (s *Scheduler) Running() bool {
	return s.running
}

// Done reports whether every note has been spawned and every actor has been
// destroyed.
func (s *Scheduler) Done() bool {
	return s.running && s.next == len(s.notes) && len(s.live) == 0
}

// Stats returns a snapshot of the counters.
func (s *Scheduler) Stats() Stats {
	return s.stats
}

// Session returns the ID of the current or last session.
func (s *Scheduler) Session() string {
	return s.session
}

// Spawned reports whether note i has been spawned in this session.
func (s *Scheduler) Spawned(i int) bool {
	return i >= 0 && i < len(s.spawned) && s.spawned[i]
}

// Live returns the actors currently alive, in spawn order.
func (s *Scheduler) Live() []Actor {
	out := make([]Actor, 0, len(s.live))
	for _, la := range s.live {
		if !la.actor.Destroyed() {
			out = append(out, la.actor)
		}
	}
	return out
}

// Elapsed returns the audio time since the session epoch.
func (s *Scheduler) Elapsed() float64 {
	return s.clock.Now() - s.epoch
}

// NextDeadline returns the earliest pending destroy deadline.
func (s *Scheduler) NextDeadline() (float64, bool) {
	return s.queue.Next()
}
