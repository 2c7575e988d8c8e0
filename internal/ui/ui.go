// Package ui holds terminal styling helpers shared by the CLI commands.
package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10")) // green
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11")) // yellow
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))  // red
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")) // blue
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))  // grey
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	pinStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("13")) // magenta
)

// IsTTY reports whether stdout is an interactive terminal. Styling is
// skipped when piping output.
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func render(style lipgloss.Style, s string) string {
	if !IsTTY() {
		return s
	}
	return style.Render(s)
}

// RenderPass styles success markers.
func RenderPass(s string) string { return render(passStyle, s) }

// RenderWarn styles warnings.
func RenderWarn(s string) string { return render(warnStyle, s) }

// RenderFail styles errors.
func RenderFail(s string) string { return render(failStyle, s) }

// RenderAccent styles identifiers and highlights.
func RenderAccent(s string) string { return render(accentStyle, s) }

// RenderDim styles secondary detail like timestamps and sources.
func RenderDim(s string) string { return render(dimStyle, s) }

// RenderHeader styles group headings.
func RenderHeader(s string) string { return render(headerStyle, s) }

// RenderPin styles the pinned marker.
func RenderPin(s string) string { return render(pinStyle, s) }
