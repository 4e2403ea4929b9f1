package app

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/zurustar/notefall/pkg/cli"
	"github.com/zurustar/notefall/pkg/timeline"
)

// inspect で表示するノート数
const inspectNotes = 10

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF8000"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#808080"))
	valueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#80D9FF"))
)

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// NoteName MIDIノート番号を音名にする（60 = C4）
func NoteName(pitch uint8) string {
	return fmt.Sprintf("%s%d", noteNames[pitch%12], int(pitch)/12-1)
}

// Inspect テンポマップ、トラック、先頭のノートを表示
func (app *Application) Inspect(cfg *cli.Config, w io.Writer) error {
	if err := app.initLogger(cfg, os.Stderr); err != nil {
		return err
	}
	tl, err := app.loadTimeline(cfg)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, FormatTimeline(tl))
	return err
}

// FormatTimeline タイムラインの概要を整形する
func FormatTimeline(tl *timeline.Timeline) string {
	s := tl.Summary()
	var b strings.Builder

	field := func(label string, value any) {
		fmt.Fprintf(&b, "  %s %s\n", labelStyle.Render(fmt.Sprintf("%-10s", label)), valueStyle.Render(fmt.Sprint(value)))
	}

	b.WriteString(headingStyle.Render(tl.Name))
	b.WriteString("\n")
	field("notes", s.Notes)
	length := fmt.Sprintf("%.3fs", s.Length)
	if tl.Tempo != nil {
		length += fmt.Sprintf(" (tick %d)", tl.Tempo.SecondsToTicks(s.Length))
	}
	field("length", length)
	if s.Notes > 0 {
		field("range", fmt.Sprintf("%s-%s (%d lanes)", NoteName(s.LowestPitch), NoteName(s.HighestPitch), s.Lanes))
	}
	if s.Dropped > 0 {
		field("dropped", s.Dropped)
	}

	b.WriteString(headingStyle.Render("Tempo"))
	b.WriteString("\n")
	if tl.Tempo != nil {
		field("ppq", tl.Tempo.PPQ())
		for _, ev := range tl.Tempo.Events() {
			field(fmt.Sprintf("tick %d", ev.Tick), fmt.Sprintf("%.2f BPM at %.3fs", ev.BPM(), tl.Tempo.TicksToSeconds(ev.Tick)))
		}
	}

	b.WriteString(headingStyle.Render("Tracks"))
	b.WriteString("\n")
	for _, tr := range s.Tracks {
		name := tr.Name
		if name == "" {
			name = "-"
		}
		field(fmt.Sprintf("#%d", tr.Index), fmt.Sprintf("%s (%d notes)", name, tr.Notes))
	}

	if len(tl.Notes) > 0 {
		b.WriteString(headingStyle.Render("Notes"))
		b.WriteString("\n")
		for i, n := range tl.Notes {
			if i == inspectNotes {
				fmt.Fprintf(&b, "  %s\n", labelStyle.Render(fmt.Sprintf("... %d more", len(tl.Notes)-inspectNotes)))
				break
			}
			field(fmt.Sprintf("%.3fs", n.StartTime),
				fmt.Sprintf("%-4s vel %3d  ch %2d  track %d  %.3fs", NoteName(n.Pitch), n.Velocity, n.Channel+1, n.Track, n.Duration))
		}
	}
	return b.String()
}
