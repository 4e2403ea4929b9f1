// Package tui renders the falling notes in a terminal with bubbletea. Each
// frame message drives exactly one scheduler tick.
package tui

import (
	"fmt"
	"image/color"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/zurustar/notefall/pkg/actor"
	"github.com/zurustar/notefall/pkg/render"
	"github.com/zurustar/notefall/pkg/scheduler"
	"github.com/zurustar/notefall/pkg/tempo"
)

// DefaultFrameInterval is the time between frames (about 30 fps).
const DefaultFrameInterval = 33 * time.Millisecond

// Playback reports whether audio is still playing.
type Playback interface {
	IsPlaying() bool
}

// Options configures the model.
type Options struct {
	Title         string
	Lanes         int
	Lowest        uint8
	Layout        actor.Layout
	FrameInterval time.Duration
	Timeout       time.Duration
	Advance       func() // called before each tick
	Playback      Playback
	Tempo         *tempo.Map   // enables the tick and BPM readout
	CurrentTick   func() int64 // tick of the playing file; nil maps elapsed time through Tempo
}

// FrameMsg advances the view by one frame.
type FrameMsg time.Time

// Model is the bubbletea model.
type Model struct {
	sched *scheduler.Scheduler
	opts  Options

	width, height int
	frozen        bool
	quitting      bool
	timedOut      bool
	started       time.Time

	headerStyle lipgloss.Style
	dimStyle    lipgloss.Style
	hitStyle    lipgloss.Style
}

// NewModel creates a model over a started scheduler.
func NewModel(sched *scheduler.Scheduler, opts Options) Model {
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = DefaultFrameInterval
	}
	return Model{
		sched:       sched,
		opts:        opts,
		width:       80,
		height:      24,
		started:     time.Now(),
		headerStyle: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF8000")),
		dimStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("#808080")),
		hitStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")),
	}
}

func frame(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return FrameMsg(t)
	})
}

func (m Model) Init() tea.Cmd {
	return frame(m.opts.FrameInterval)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case " ":
			m.frozen = !m.frozen
			m.applyFrozen()
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height

	case FrameMsg:
		if m.opts.Timeout > 0 && time.Since(m.started) >= m.opts.Timeout {
			m.timedOut = true
			m.quitting = true
			return m, tea.Quit
		}
		m.step()
		if m.finished() {
			m.quitting = true
			return m, tea.Quit
		}
		return m, frame(m.opts.FrameInterval)
	}
	return m, nil
}

func (m *Model) step() {
	if m.opts.Advance != nil {
		m.opts.Advance()
	}
	m.sched.Tick()
	if m.frozen {
		m.applyFrozen()
	}
}

func (m Model) finished() bool {
	if !m.sched.Done() {
		return false
	}
	return m.opts.Playback == nil || !m.opts.Playback.IsPlaying()
}

func (m Model) applyFrozen() {
	for _, a := range m.sched.Live() {
		if fn, ok := a.(*actor.FallingNote); ok {
			fn.SetActive(!m.frozen)
		}
	}
}

// TimedOut reports whether the model quit because of the timeout.
func (m Model) TimedOut() bool {
	return m.timedOut
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	st := m.sched.Stats()
	state := "PLAY"
	if m.frozen {
		state = "HOLD"
	}
	elapsed := m.sched.Elapsed()
	title := fmt.Sprintf("notefall  %s  %s  %7.2fs", state, m.opts.Title, elapsed)
	if tick, bpm, ok := render.MusicalPosition(m.opts.Tempo, m.opts.CurrentTick, elapsed); ok {
		title += fmt.Sprintf("  tick %d  %.1f BPM", tick, bpm)
	}
	header := m.headerStyle.Render(title)
	stats := m.dimStyle.Render(fmt.Sprintf("notes %d/%d  live %d  destroyed %d  failed %d",
		st.Spawned, st.Total, st.Live, st.Destroyed, st.Failed))
	help := m.dimStyle.Render("space:hold  q:quit")

	rows := max(m.height-4, 2)
	cols := min(m.opts.Lanes, m.width)
	grid := Grid(m.liveNotes(), m.opts.Layout, cols, rows)

	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n")
	for _, row := range grid {
		for _, c := range row {
			if c.Filled {
				b.WriteString(lipgloss.NewStyle().Foreground(hex(c.Color)).Render("█"))
			} else {
				b.WriteString(" ")
			}
		}
		b.WriteString("\n")
	}
	b.WriteString(m.hitStyle.Render(hitLine(m.opts.Lowest, max(cols, 1))))
	b.WriteString("\n")
	b.WriteString(stats + "  " + help)
	return b.String()
}

func (m Model) liveNotes() []*actor.FallingNote {
	live := m.sched.Live()
	out := make([]*actor.FallingNote, 0, len(live))
	for _, a := range live {
		if fn, ok := a.(*actor.FallingNote); ok {
			out = append(out, fn)
		}
	}
	return out
}

// Cell is one character of the note grid.
type Cell struct {
	Filled bool
	Color  color.RGBA
}

// Grid rasterizes notes into rows x cols cells. Row 0 is the spawn line and
// the last row sits on the hit line; column i is lane i. Parts of a note
// outside the grid are clipped.
func Grid(notes []*actor.FallingNote, layout actor.Layout, cols, rows int) [][]Cell {
	grid := make([][]Cell, rows)
	for i := range grid {
		grid[i] = make([]Cell, max(cols, 0))
	}
	fall := layout.SpawnY - layout.HitLineY
	if rows == 0 || cols <= 0 || fall == 0 {
		return grid
	}

	toRow := func(y float64) float64 {
		return (layout.SpawnY - y) / fall * float64(rows-1)
	}
	for _, n := range notes {
		if n.Lane < 0 || n.Lane >= cols {
			continue
		}
		b := n.Bounds()
		top, bottom := toRow(b.MaxY), toRow(b.MinY)
		if top > bottom {
			top, bottom = bottom, top
		}
		first := max(int(top+0.5), 0)
		last := min(int(bottom+0.5), rows-1)
		clr := render.NoteColor(n.Track, n.Pitch)
		for r := first; r <= last; r++ {
			grid[r][n.Lane] = Cell{Filled: true, Color: clr}
		}
	}
	return grid
}

// hitLine marks each C with a tick so octaves can be told apart.
func hitLine(lowest uint8, cols int) string {
	var b strings.Builder
	for i := 0; i < cols; i++ {
		if render.IsOctaveStart(lowest + uint8(i)) {
			b.WriteString("┴")
		} else {
			b.WriteString("─")
		}
	}
	return b.String()
}

func hex(c color.RGBA) lipgloss.Color {
	return lipgloss.Color(fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B))
}

// Run starts the terminal program and blocks until it exits.
func Run(m Model) (Model, error) {
	p := tea.NewProgram(m, tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return m, fmt.Errorf("terminal view failed: %w", err)
	}
	if fm, ok := final.(Model); ok {
		return fm, nil
	}
	return m, nil
}
