package commands

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

// theme is the color scheme of status lines.
var theme = struct {
	Primary lipgloss.Color
	Dim     lipgloss.Color
	Alert   lipgloss.Color
}{
	Primary: lipgloss.Color("#00ff9f"),
	Dim:     lipgloss.Color("#6e7681"),
	Alert:   lipgloss.Color("#ff5f87"),
}

var (
	labelStyle = lipgloss.NewStyle().Bold(true).Foreground(theme.Primary)
	dimStyle   = lipgloss.NewStyle().Foreground(theme.Dim)
	alertStyle = lipgloss.NewStyle().Bold(true).Foreground(theme.Alert)
)

// status prints a labeled status line, e.g. "● listening  ws://:7480/glk".
func status(w io.Writer, label, format string, args ...any) {
	fmt.Fprintln(w, labelStyle.Render("● "+label)+"  "+dimStyle.Render(fmt.Sprintf(format, args...)))
}

// alert prints a labeled status line for failures.
func alert(w io.Writer, label, format string, args ...any) {
	fmt.Fprintln(w, alertStyle.Render("✕ "+label)+"  "+fmt.Sprintf(format, args...))
}
