// Package ui renders CLI output: status lines, tables and colored entity
// swatches.
package ui

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/muesli/termenv"
)

var (
	Accent = lipgloss.Color("#7C3AED")
	Good   = lipgloss.Color("#10B981")
	Muted  = lipgloss.Color("#6B7280")
	Warn   = lipgloss.Color("#F59E0B")
	Bad    = lipgloss.Color("#EF4444")

	Title   = lipgloss.NewStyle().Bold(true).Foreground(Accent)
	Subtle  = lipgloss.NewStyle().Foreground(Muted)
	Success = lipgloss.NewStyle().Foreground(Good)
	Warning = lipgloss.NewStyle().Foreground(Warn)
	Failure = lipgloss.NewStyle().Foreground(Bad).Bold(true)

	header = lipgloss.NewStyle().Bold(true).Foreground(Accent).Padding(0, 1)
	cell   = lipgloss.NewStyle().Padding(0, 1)
)

// Setup picks the color profile for w. NO_COLOR, a non-terminal w, or
// noColor turn colors off.
func Setup(w io.Writer, noColor bool) {
	if noColor || os.Getenv("NO_COLOR") != "" {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}
	lipgloss.SetColorProfile(termenv.NewOutput(w).EnvColorProfile())
}

// ColorEnabled reports whether styles currently emit color.
func ColorEnabled() bool {
	return lipgloss.ColorProfile() != termenv.Ascii
}

// Table renders rows under headers.
func Table(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Muted)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		})
	return t.String()
}

// Swatch renders a block in a #rrggbb color followed by label.
func Swatch(color, label string) string {
	if !strings.HasPrefix(color, "#") {
		return label
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render("■") + " " + label
}

// Action colors an audit action name.
func Action(action string) string {
	switch action {
	case "CREATE":
		return Success.Render(action)
	case "DELETE":
		return Failure.Render(action)
	default:
		return Warning.Render(action)
	}
}
