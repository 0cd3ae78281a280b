package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// todosync theme. Kept intentionally small: reusable styles plus
// helpers for the states the CLI prints over and over.

var (
	cPrimary = lipgloss.Color("63")  // blue
	cAccent  = lipgloss.Color("205") // magenta
	cGood    = lipgloss.Color("42")  // green
	cWarn    = lipgloss.Color("214") // orange
	cBad     = lipgloss.Color("196") // red
	cMuted   = lipgloss.Color("244") // gray
)

var (
	Title = lipgloss.NewStyle().Bold(true).Foreground(cAccent)
	H2    = lipgloss.NewStyle().Bold(true).Foreground(cPrimary)
	Key   = lipgloss.NewStyle().Bold(true).Foreground(cPrimary)
	Good  = lipgloss.NewStyle().Bold(true).Foreground(cGood)
	Warn  = lipgloss.NewStyle().Bold(true).Foreground(cWarn)
	Bad   = lipgloss.NewStyle().Bold(true).Foreground(cBad)
	Muted = lipgloss.NewStyle().Foreground(cMuted)

	Panel = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(cMuted).Padding(0, 1)
)

// NoColor disables styling when the output is not a color terminal.
// Called once from the command root.
func NoColor() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

// AutoDetect resets the color profile to whatever the terminal
// supports.
func AutoDetect() {
	lipgloss.SetColorProfile(termenv.ColorProfile())
}

func Heading(title string) string {
	return Title.Render(title)
}

func LabelValue(label string, value any) string {
	return fmt.Sprintf("%s %v", Key.Render(label+":"), value)
}

// SyncStateText colors an orchestrator state for display.
func SyncStateText(state string) string {
	switch strings.ToLower(strings.TrimSpace(state)) {
	case "success":
		return Good.Render("success")
	case "syncing":
		return H2.Render("syncing")
	case "conflicts":
		return Warn.Render("conflicts")
	case "error":
		return Bad.Render("error")
	default:
		return Muted.Render(state)
	}
}

// QualityText colors a connection quality for display.
func QualityText(quality string) string {
	switch strings.ToLower(strings.TrimSpace(quality)) {
	case "excellent", "good":
		return Good.Render(quality)
	case "poor":
		return Warn.Render(quality)
	case "offline":
		return Bad.Render("offline")
	default:
		return Muted.Render(quality)
	}
}

// PriorityText colors a queue priority for display.
func PriorityText(priority string) string {
	switch strings.ToLower(strings.TrimSpace(priority)) {
	case "high":
		return Bad.Render("high")
	case "low":
		return Muted.Render("low")
	default:
		return priority
	}
}

// Checkbox renders a task's completion marker.
func Checkbox(completed bool) string {
	if completed {
		return Good.Render("[x]")
	}
	return "[ ]"
}
