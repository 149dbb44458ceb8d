package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mrz1836/cutover/internal/constants"
	"github.com/mrz1836/cutover/internal/domain"
)

// RoutingBarWidth is the number of cells in a routing bar.
const RoutingBarWidth = 40

// RoutingBar draws the blue/green split as a bar followed by the weights.
//
//	blue ████████████████████░░░░░░░░░░░░░░░░░░░░ green  50/50
func RoutingBar(w domain.Weights) string {
	blue := w[constants.EnvBlue] * RoutingBarWidth / 100
	if w[constants.EnvBlue] > 0 && blue == 0 {
		blue = 1
	}
	if w[constants.EnvGreen] > 0 && blue == RoutingBarWidth {
		blue = RoutingBarWidth - 1
	}
	bar := lipgloss.NewStyle().Foreground(EnvColors[constants.EnvBlue]).Render(strings.Repeat("█", blue)) +
		lipgloss.NewStyle().Foreground(EnvColors[constants.EnvGreen]).Render(strings.Repeat("░", RoutingBarWidth-blue))
	return fmt.Sprintf("%s %s %s  %d/%d",
		FormatEnv(constants.EnvBlue), bar, FormatEnv(constants.EnvGreen),
		w[constants.EnvBlue], w[constants.EnvGreen])
}

// StageRows returns one table row per stage.
func StageRows(stages []domain.StageResult) [][]string {
	rows := make([][]string, 0, len(stages))
	for _, s := range stages {
		rows = append(rows, []string{
			fmt.Sprintf("%d%%", s.Percentage),
			FormatVerdict(s.Verdict),
			fmt.Sprintf("%.2f%%", s.Metrics.ErrorRate),
			fmt.Sprintf("%.0fms", s.Metrics.P95LatencyMs),
			FormatDuration(s.Duration),
			s.Reason,
		})
	}
	return rows
}

// StageHeaders are the column headers matching StageRows.
func StageHeaders() []string {
	return []string{"STAGE", "VERDICT", "ERRORS", "P95", "HELD", "REASON"}
}

// AttemptSummary renders an attempt for the terminal.
func AttemptSummary(a *domain.DeploymentAttempt) string {
	var b strings.Builder
	label := StyleDim.Render
	title := fmt.Sprintf("%s %s", StyleBold.Render(a.ServiceID), StyleDim.Render(a.ID))
	if a.DryRun {
		title += " " + lipgloss.NewStyle().Foreground(ColorWarning).Render("[dry run]")
	}
	b.WriteString(title + "\n")

	fmt.Fprintf(&b, "  %s %s\n", label("state:   "), FormatState(a.State))
	fmt.Fprintf(&b, "  %s %s\n", label("outcome: "), a.Outcome)
	fmt.Fprintf(&b, "  %s %s\n", label("revision:"), a.Revision)
	if a.SourceEnv != "" || a.TargetEnv != "" {
		fmt.Fprintf(&b, "  %s %s → %s\n", label("shift:   "), FormatEnv(a.SourceEnv), FormatEnv(a.TargetEnv))
	}
	fmt.Fprintf(&b, "  %s %s (%s)\n", label("started: "), a.StartedAt.Format("2006-01-02 15:04:05Z07:00"), RelativeTime(a.StartedAt))
	if a.CompletedAt != nil {
		fmt.Fprintf(&b, "  %s %s\n", label("took:    "), FormatDuration(a.Duration(*a.CompletedAt)))
	}
	if a.Error != "" {
		fmt.Fprintf(&b, "  %s %s\n", label("error:   "), lipgloss.NewStyle().Foreground(ColorError).Render(a.Error))
	}
	if len(a.Stages) > 0 {
		b.WriteString("\n")
		NewTable(&b, StageHeaders()).Render(StageRows(a.Stages))
	}
	return b.String()
}

// IncidentRows returns one table row per incident.
func IncidentRows(incs []*domain.Incident) [][]string {
	rows := make([][]string, 0, len(incs))
	for _, inc := range incs {
		rows = append(rows, []string{
			inc.ID,
			inc.ServiceID,
			FormatIncidentType(inc.Type, inc.Severity()),
			fmt.Sprintf("%s→%s", inc.FromEnv, inc.ToEnv),
			inc.Status.String(),
			RelativeTime(inc.Timestamp),
		})
	}
	return rows
}

// IncidentHeaders are the column headers matching IncidentRows.
func IncidentHeaders() []string {
	return []string{"ID", "SERVICE", "TYPE", "ROUTE", "STATUS", "WHEN"}
}

// IncidentDetail renders a single incident.
func IncidentDetail(inc *domain.Incident) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", StyleBold.Render(inc.ID), FormatIncidentType(inc.Type, inc.Severity()))
	field := func(name, value string) {
		if value != "" {
			fmt.Fprintf(&b, "  %s %s\n", StyleDim.Render(pad(name+":", 10)), value)
		}
	}
	field("service", inc.ServiceID)
	field("attempt", inc.AttemptID)
	field("route", fmt.Sprintf("%s → %s", FormatEnv(inc.FromEnv), FormatEnv(inc.ToEnv)))
	field("status", inc.Status.String())
	field("severity", string(inc.Severity()))
	field("revision", inc.Revision)
	field("initiator", inc.Initiator)
	field("duration", FormatDuration(secondsDuration(inc.DurationSeconds)))
	field("when", inc.Timestamp.Format("2006-01-02 15:04:05Z07:00"))
	field("reason", inc.Reason)
	return b.String()
}
