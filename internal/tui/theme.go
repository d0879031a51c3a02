package tui

import (
	"os"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	colorPrimary   = lipgloss.Color("205")
	colorSuccess   = lipgloss.Color("40")
	colorWarning   = lipgloss.Color("214")
	colorInfo      = lipgloss.Color("75")
	colorDim       = lipgloss.Color("245")
	colorHighlight = lipgloss.Color("141")
)

// Styles shared by the list and recover views
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary)

	GameStyle = lipgloss.NewStyle().
			Foreground(colorHighlight).
			Bold(true)

	PathStyle = lipgloss.NewStyle().
			Foreground(colorInfo).
			Italic(true)

	KeepStyle = lipgloss.NewStyle().
			Foreground(colorSuccess)

	LatestStyle = lipgloss.NewStyle().
			Foreground(colorWarning)

	DimStyle = lipgloss.NewStyle().
			Foreground(colorDim)
)

// Theme returns the huh theme for savehaven forms
func Theme() *huh.Theme {
	return huh.ThemeCatppuccin()
}

// IsTerminal reports whether both stdin and stdout are terminals, which
// interactive forms need.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// IsColorDisabled returns true if NO_COLOR is set or the terminal is dumb
func IsColorDisabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return true
	}
	if os.Getenv("TERM") == "dumb" {
		return true
	}
	return !IsTerminal()
}

// ApplyTheme applies the savehaven theme, or accessible mode when colors are off
func ApplyTheme(form *huh.Form) *huh.Form {
	if IsColorDisabled() {
		return form.WithAccessible(true)
	}
	return form.WithTheme(Theme())
}
