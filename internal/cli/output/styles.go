package output

import (
	"github.com/charmbracelet/lipgloss"
)

// Styles holds the lipgloss styles used for terminal output.
type Styles struct {
	Header  lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Null    lipgloss.Style
	Spinner lipgloss.Style
}

// Colors
var (
	primaryColor = lipgloss.AdaptiveColor{Light: "#7C3AED", Dark: "#A78BFA"}
	successColor = lipgloss.AdaptiveColor{Light: "#15803D", Dark: "#4ADE80"}
	warningColor = lipgloss.AdaptiveColor{Light: "#B45309", Dark: "#FBBF24"}
	errorColor   = lipgloss.AdaptiveColor{Light: "#B91C1C", Dark: "#F87171"}
	mutedColor   = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"}
)

// NewStyles builds styles bound to r, so color output follows the
// capabilities of the writer r was created for.
func NewStyles(r *lipgloss.Renderer) Styles {
	return Styles{
		Header:  r.NewStyle().Bold(true).Foreground(primaryColor),
		Bold:    r.NewStyle().Bold(true),
		Muted:   r.NewStyle().Foreground(mutedColor),
		Success: r.NewStyle().Foreground(successColor),
		Warning: r.NewStyle().Foreground(warningColor),
		Error:   r.NewStyle().Bold(true).Foreground(errorColor),
		Null:    r.NewStyle().Faint(true),
		Spinner: r.NewStyle().Foreground(primaryColor),
	}
}
