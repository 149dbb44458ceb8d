// Package tui provides terminal output for cutover.
//
// Colors use AdaptiveColor so output reads on light and dark terminals.
// Every status is shown with an icon, a color and its text, so nothing is
// lost when color is disabled.
//
// # NO_COLOR Support
//
// Call CheckNoColor() at the start of commands to respect the NO_COLOR
// environment variable. Colors are also disabled when TERM=dumb.
package tui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/mrz1836/cutover/internal/constants"
)

//nolint:gochecknoglobals // Intentional package-level constants for TUI styling API
var (
	// ColorPrimary is blue, used for active states and primary actions.
	ColorPrimary = lipgloss.AdaptiveColor{Light: "#0087AF", Dark: "#00D7FF"}

	// ColorSuccess is green, used for success states and passed stages.
	ColorSuccess = lipgloss.AdaptiveColor{Light: "#008700", Dark: "#00FF87"}

	// ColorWarning is yellow, used for rollbacks and attention-required items.
	ColorWarning = lipgloss.AdaptiveColor{Light: "#AF8700", Dark: "#FFD700"}

	// ColorError is red, used for failures and escalations.
	ColorError = lipgloss.AdaptiveColor{Light: "#AF0000", Dark: "#FF5F5F"}

	// ColorMuted is gray, used for secondary text.
	ColorMuted = lipgloss.AdaptiveColor{Light: "#585858", Dark: "#6C6C6C"}

	// EnvColors paint the two environments in routing bars and tables.
	EnvColors = map[constants.EnvID]lipgloss.AdaptiveColor{
		constants.EnvBlue:  {Light: "#005FAF", Dark: "#5FAFFF"},
		constants.EnvGreen: {Light: "#008700", Dark: "#5FD75F"},
	}

	// StyleBold applies bold formatting to text.
	StyleBold = lipgloss.NewStyle().Bold(true)

	// StyleDim applies dim formatting to text.
	StyleDim = lipgloss.NewStyle().Faint(true)
)

// TableStyles holds lipgloss styles for table rendering.
type TableStyles struct {
	Header lipgloss.Style
	Cell   lipgloss.Style
	Dim    lipgloss.Style
}

// NewTableStyles creates styles for table rendering.
func NewTableStyles() *TableStyles {
	return &TableStyles{
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#333333", Dark: "#DDDDDD"}),
		Cell: lipgloss.NewStyle(),
		Dim: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#666666", Dark: "#888888"}),
	}
}

// OutputStyles holds common output styles.
type OutputStyles struct {
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style
	Dim     lipgloss.Style
}

// NewOutputStyles creates common output styles.
func NewOutputStyles() *OutputStyles {
	return &OutputStyles{
		Success: lipgloss.NewStyle().Foreground(ColorSuccess).Bold(true),
		Error:   lipgloss.NewStyle().Foreground(ColorError).Bold(true),
		Warning: lipgloss.NewStyle().Foreground(ColorWarning),
		Info:    lipgloss.NewStyle().Foreground(ColorPrimary),
		Dim:     lipgloss.NewStyle().Foreground(ColorMuted),
	}
}

// CheckNoColor respects the NO_COLOR environment variable.
// Call this at the start of commands that output styled text.
func CheckNoColor() {
	if !HasColorSupport() {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// HasColorSupport returns false if NO_COLOR is set (any value, including
// empty) or TERM=dumb. See https://no-color.org/
func HasColorSupport() bool {
	if _, exists := os.LookupEnv("NO_COLOR"); exists {
		return false
	}
	return os.Getenv("TERM") != "dumb"
}

// StateColor returns the color for an attempt state.
func StateColor(state constants.AttemptState) lipgloss.AdaptiveColor {
	switch state {
	case constants.StateCompleted:
		return ColorSuccess
	case constants.StateRollingBack, constants.StateRolledBack, constants.StateAborted:
		return ColorWarning
	case constants.StateCriticalEscalation:
		return ColorError
	case constants.StateIdle:
		return ColorMuted
	default:
		return ColorPrimary
	}
}

// StateIcon returns the icon for an attempt state.
func StateIcon(state constants.AttemptState) string {
	switch state {
	case constants.StateCompleted:
		return "✓"
	case constants.StateAborted:
		return "⊘"
	case constants.StateRollingBack, constants.StateRolledBack:
		return "↺"
	case constants.StateCriticalEscalation:
		return "✗"
	case constants.StateIdle:
		return "○"
	default:
		return "●"
	}
}

// FormatState renders a state as icon, color and text.
func FormatState(state constants.AttemptState) string {
	return lipgloss.NewStyle().Foreground(StateColor(state)).Render(StateIcon(state) + " " + state.String())
}

// FormatVerdict renders a stage verdict.
func FormatVerdict(v constants.Verdict) string {
	if v == constants.VerdictPass {
		return lipgloss.NewStyle().Foreground(ColorSuccess).Render("✓ " + v.String())
	}
	return lipgloss.NewStyle().Foreground(ColorError).Render("✗ " + v.String())
}

// SeverityColor returns the color for an incident severity.
func SeverityColor(s constants.Severity) lipgloss.AdaptiveColor {
	switch s {
	case constants.SeverityInfo:
		return ColorSuccess
	case constants.SeverityWarning:
		return ColorWarning
	default:
		return ColorError
	}
}

// FormatIncidentType renders an incident type in its severity color.
func FormatIncidentType(t constants.IncidentType, s constants.Severity) string {
	return lipgloss.NewStyle().Foreground(SeverityColor(s)).Render(t.String())
}

// FormatEnv renders an environment name in its color.
func FormatEnv(env constants.EnvID) string {
	c, ok := EnvColors[env]
	if !ok {
		return env.String()
	}
	return lipgloss.NewStyle().Foreground(c).Bold(true).Render(env.String())
}
