package tui

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/cutover/internal/clock"
	"github.com/mrz1836/cutover/internal/constants"
	"github.com/mrz1836/cutover/internal/domain"
)

// plain disables color for the duration of a test so rendered output can be
// compared as text.
func plain(t *testing.T) {
	t.Helper()
	prev := lipgloss.ColorProfile()
	lipgloss.SetColorProfile(termenv.Ascii)
	t.Cleanup(func() { lipgloss.SetColorProfile(prev) })
}

func TestHasColorSupport(t *testing.T) {
	t.Setenv("TERM", "xterm-256color")
	t.Setenv("NO_COLOR", "")
	assert.False(t, HasColorSupport(), "NO_COLOR set to empty still disables color")
}

func TestHasColorSupport_DumbTerminal(t *testing.T) {
	t.Setenv("TERM", "dumb")
	assert.False(t, HasColorSupport())
}

func TestStateIcon(t *testing.T) {
	tests := []struct {
		state constants.AttemptState
		icon  string
	}{
		{constants.StateCompleted, "✓"},
		{constants.StateAborted, "⊘"},
		{constants.StateRolledBack, "↺"},
		{constants.StateCriticalEscalation, "✗"},
		{constants.StateTrafficShifting, "●"},
		{constants.StateIdle, "○"},
	}
	for _, tc := range tests {
		t.Run(tc.state.String(), func(t *testing.T) {
			assert.Equal(t, tc.icon, StateIcon(tc.state))
		})
	}
}

func TestStateColor(t *testing.T) {
	assert.Equal(t, ColorSuccess, StateColor(constants.StateCompleted))
	assert.Equal(t, ColorError, StateColor(constants.StateCriticalEscalation))
	assert.Equal(t, ColorWarning, StateColor(constants.StateRolledBack))
	assert.Equal(t, ColorPrimary, StateColor(constants.StateDeploying))
}

func TestFormatState_Plain(t *testing.T) {
	plain(t)
	assert.Equal(t, "↺ rolled_back", FormatState(constants.StateRolledBack))
	assert.Equal(t, "✗ fail", FormatVerdict(constants.VerdictFail))
}

func TestTTYOutput(t *testing.T) {
	plain(t)
	var buf bytes.Buffer
	out := NewTTYOutput(&buf)

	out.Success("done")
	out.Warning("careful")
	out.Error(errors.New("boom"))
	out.Info("fyi")

	assert.Equal(t, "✓ done\n⚠ careful\n✗ boom\nℹ fyi\n", buf.String())
}

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	out := NewOutput(&buf, FormatJSON)

	out.Success("done")
	out.Error(errors.New("boom"))
	out.Table([]string{"ID", "TYPE"}, [][]string{{"inc-1", "rollback"}, {"inc-2"}})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.JSONEq(t, `{"type":"success","message":"done"}`, lines[0])
	assert.JSONEq(t, `{"type":"error","message":"boom"}`, lines[1])

	var rows []map[string]string
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &rows))
	assert.Equal(t, []map[string]string{
		{"ID": "inc-1", "TYPE": "rollback"},
		{"ID": "inc-2", "TYPE": ""},
	}, rows)
}

func TestTable_AlignsStyledCells(t *testing.T) {
	var buf bytes.Buffer
	styled := lipgloss.NewStyle().Foreground(ColorError).Render("fail")

	NewTable(&buf, []string{"STAGE", "VERDICT", "NOTE"}).Render([][]string{
		{"1%", styled, "x"},
		{"100%", "pass", "y"},
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, lipgloss.Width(lines[1]), lipgloss.Width(lines[2]))
	assert.Equal(t, lipgloss.Width(lines[0])-len("NOTE")+1, lipgloss.Width(lines[1]))
}

func TestTable_Truncates(t *testing.T) {
	plain(t)
	var buf bytes.Buffer
	NewTable(&buf, []string{"REASON"}).WithMaxCell(8).Render([][]string{{"error rate exceeded"}})
	assert.Contains(t, buf.String(), "error r…")
}

func TestRoutingBar(t *testing.T) {
	plain(t)
	bar := RoutingBar(domain.Weights{constants.EnvBlue: 75, constants.EnvGreen: 25})
	assert.Equal(t, "blue "+strings.Repeat("█", 30)+strings.Repeat("░", 10)+" green  75/25", bar)

	// A 1% candidate still shows.
	bar = RoutingBar(domain.Weights{constants.EnvBlue: 99, constants.EnvGreen: 1})
	assert.Contains(t, bar, strings.Repeat("█", 39)+"░ ")
}

func TestRelativeTimeWith(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := clock.NewManual(now)

	tests := []struct {
		ago  time.Duration
		want string
	}{
		{10 * time.Second, "just now"},
		{time.Minute, "1 minute ago"},
		{5 * time.Minute, "5 minutes ago"},
		{2 * time.Hour, "2 hours ago"},
		{36 * time.Hour, "1 day ago"},
		{15 * 24 * time.Hour, "2 weeks ago"},
	}
	for _, tc := range tests {
		t.Run(tc.want, func(t *testing.T) {
			assert.Equal(t, tc.want, RelativeTimeWith(now.Add(-tc.ago), c))
		})
	}
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "850ms", FormatDuration(850*time.Millisecond))
	assert.Equal(t, "42s", FormatDuration(42*time.Second))
	assert.Equal(t, "3m12s", FormatDuration(3*time.Minute+12*time.Second))
	assert.Equal(t, "1h05m", FormatDuration(time.Hour+5*time.Minute))
}

func TestAttemptSummary(t *testing.T) {
	plain(t)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	done := start.Add(4 * time.Minute)
	a := &domain.DeploymentAttempt{
		ID:          "att-20260301-120000-abcd1234",
		ServiceID:   "api",
		SourceEnv:   constants.EnvBlue,
		TargetEnv:   constants.EnvGreen,
		Revision:    "v2",
		State:       constants.StateRolledBack,
		Outcome:     constants.OutcomeRolledBack,
		StartedAt:   start,
		CompletedAt: &done,
		Error:       "stage 25%: error rate 2.50% exceeds 1.00%",
		Stages: []domain.StageResult{
			{Percentage: 1, Verdict: constants.VerdictPass, Metrics: domain.StageMetrics{ErrorRate: 0.1, P95LatencyMs: 120}},
			{Percentage: 25, Verdict: constants.VerdictFail, Metrics: domain.StageMetrics{ErrorRate: 2.5, P95LatencyMs: 130}, Reason: "error rate 2.50% exceeds 1.00%"},
		},
	}

	out := AttemptSummary(a)
	assert.Contains(t, out, "↺ rolled_back")
	assert.Contains(t, out, "blue → green")
	assert.Contains(t, out, "4m00s")
	assert.Contains(t, out, "2.50%")
	assert.Contains(t, out, "STAGE")
	assert.NotContains(t, out, "[dry run]")
}

func TestIncidentDetail(t *testing.T) {
	plain(t)
	inc := &domain.Incident{
		ID:              "inc-20260301-120400-abcd1234",
		Type:            constants.IncidentCriticalEscalation,
		ServiceID:       "api",
		FromEnv:         constants.EnvGreen,
		ToEnv:           constants.EnvBlue,
		Reason:          "blue failed re-verification",
		DurationSeconds: 185,
		Status:          constants.OutcomeFailed,
	}

	out := IncidentDetail(inc)
	assert.Contains(t, out, "critical_escalation")
	assert.Contains(t, out, "severity:  critical")
	assert.Contains(t, out, "3m05s")
	assert.NotContains(t, out, "revision:", "empty fields are skipped")

	rows := IncidentRows([]*domain.Incident{inc})
	require.Len(t, rows, 1)
	assert.Equal(t, "green→blue", rows[0][3])
}
