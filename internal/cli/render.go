package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/MrWong99/cuecard/internal/events"
	"github.com/MrWong99/cuecard/pkg/audio"
)

const noteWidth = 72

var categoryColors = map[events.Category]lipgloss.Color{
	events.CategoryAnswer:   lipgloss.Color("#9ECE6A"),
	events.CategoryAdvice:   lipgloss.Color("#7AA2F7"),
	events.CategoryFollowUp: lipgloss.Color("#E0AF68"),
}

// Renderer prints session events to a terminal. Styles degrade to plain text
// when w is not a terminal. Safe for concurrent use.
type Renderer struct {
	mu sync.Mutex
	w  io.Writer

	note   lipgloss.Style
	label  lipgloss.Style
	status lipgloss.Style
	errs   lipgloss.Style
	dim    lipgloss.Style
	header lipgloss.Style
}

// NewRenderer creates a Renderer writing to w.
func NewRenderer(w io.Writer) *Renderer {
	lr := lipgloss.NewRenderer(w)
	return &Renderer{
		w: w,
		note: lr.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			Padding(0, 1).
			Width(noteWidth),
		label:  lr.NewStyle().Bold(true),
		status: lr.NewStyle().Foreground(lipgloss.Color("#A9B1D6")),
		errs:   lr.NewStyle().Foreground(lipgloss.Color("#F7768E")),
		dim:    lr.NewStyle().Faint(true),
		header: lr.NewStyle().Bold(true).Underline(true),
	}
}

// Note renders one note card.
func (r *Renderer) Note(m events.Message) string {
	color, ok := categoryColors[m.Category]
	if !ok {
		color = categoryColors[events.CategoryAnswer]
	}
	title := r.label.Foreground(color).Render(strings.ToUpper(string(m.Category)))
	stamp := r.dim.Render(m.Timestamp.Format("15:04:05"))
	return r.note.BorderForeground(color).Render(title + "  " + stamp + "\n" + m.Content)
}

// Event prints e if it is user-facing. Audio activity and processing markers
// are not printed.
func (r *Renderer) Event(e events.Event) {
	switch e.Kind {
	case events.KindResponse:
		r.println(r.Note(e.Message))
	case events.KindAudioStatus:
		r.Info(e.Text)
	case events.KindAudioError:
		r.Error(e.Text)
	}
}

// Info prints a status line.
func (r *Renderer) Info(msg string) {
	r.println(r.status.Render("• " + msg))
}

// Error prints an error line.
func (r *Renderer) Error(msg string) {
	r.println(r.errs.Render("✗ " + msg))
}

// Devices prints a device table. Default devices are marked with "*".
func (r *Renderer) Devices(list audio.DeviceList) {
	var b strings.Builder
	b.WriteString(r.header.Render(fmt.Sprintf("%-4s %-6s %3s %3s  %s", "", "ID", "IN", "OUT", "NAME")))
	b.WriteString("\n")
	for _, d := range list.Devices {
		marker := ""
		if d.ID == list.DefaultInputID {
			marker += "*i"
		}
		if d.ID == list.DefaultOutputID {
			marker += "*o"
		}
		line := fmt.Sprintf("%-4s %-6s %3d %3d  %s", marker, d.ID, d.InputChannels, d.OutputChannels, d.Name)
		if !d.IsInput() {
			line = r.dim.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	if len(list.Devices) == 0 {
		b.WriteString(r.dim.Render("no audio devices found"))
		b.WriteString("\n")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = io.WriteString(r.w, b.String())
}

func (r *Renderer) println(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = fmt.Fprintln(r.w, s)
}
