package tui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aretw0/statestack/pkg/domain"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// StackView renders stack snapshots one line per agent.
type StackView struct {
	agent   lipgloss.Style
	frame   lipgloss.Style
	dormant lipgloss.Style
	current lipgloss.Style
	wait    lipgloss.Style
	sep     string
}

// NewStackView styles output for w. Colors are dropped when w is not a terminal.
func NewStackView(w io.Writer) *StackView {
	r := lipgloss.NewRenderer(w)
	if !IsTerminal(w) {
		r.SetColorProfile(termenv.Ascii)
	}
	return &StackView{
		agent:   r.NewStyle().Bold(true).Width(12),
		frame:   r.NewStyle().Faint(true),
		dormant: r.NewStyle().Foreground(lipgloss.Color("#60a5fa")),
		current: r.NewStyle().Bold(true).Foreground(lipgloss.Color("#facc15")),
		wait:    r.NewStyle().Italic(true).Foreground(lipgloss.Color("#a78bfa")),
		sep:     " > ",
	}
}

// Render formats one snapshot, bottom of the stack first.
func (v *StackView) Render(snap domain.StackSnapshot) string {
	parts := make([]string, 0, len(snap.Entries))
	for _, e := range snap.Entries {
		name := string(e.StateID)
		if e.Label != "" && e.Label != domain.DefaultLabel {
			name += "@" + string(e.Label)
		}
		if e.Dormant {
			parts = append(parts, v.dormant.Render(name))
			continue
		}

		text := v.current.Render(name)
		var extra []string
		if e.Wait != "" {
			extra = append(extra, v.wait.Render(e.Wait))
		}
		if e.DebugData != "" {
			extra = append(extra, fmt.Sprintf("%q", e.DebugData))
		}
		if len(extra) > 0 {
			text += " " + strings.Join(extra, " ")
		}
		parts = append(parts, text)
	}
	if len(parts) == 0 {
		parts = append(parts, v.frame.Render("(detached)"))
	}

	line := v.agent.Render(string(snap.AgentID)) + v.frame.Render(fmt.Sprintf("f%-5d", snap.Frame)) + " " + strings.Join(parts, v.sep)
	if snap.Pending > 0 {
		line += v.frame.Render(fmt.Sprintf(" (+%d pending)", snap.Pending))
	}
	return line
}
