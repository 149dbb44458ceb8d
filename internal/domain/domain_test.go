package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/cutover/internal/constants"
)

func TestWeights_Active(t *testing.T) {
	tests := []struct {
		name    string
		weights Weights
		active  constants.EnvID
		ok      bool
	}{
		{"blue active", Weights{constants.EnvBlue: 100, constants.EnvGreen: 0}, constants.EnvBlue, true},
		{"green active", Weights{constants.EnvBlue: 0, constants.EnvGreen: 100}, constants.EnvGreen, true},
		{"split", Weights{constants.EnvBlue: 75, constants.EnvGreen: 25}, "", false},
		{"empty", Weights{}, "", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			active, ok := tc.weights.Active()
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.active, active)
		})
	}
}

func TestSplit(t *testing.T) {
	w := Split(constants.EnvGreen, 25)
	assert.Equal(t, 25, w[constants.EnvGreen])
	assert.Equal(t, 75, w[constants.EnvBlue])
	assert.Equal(t, 100, w.Sum())
}

func TestWeights_EqualAndClone(t *testing.T) {
	w := Split(constants.EnvBlue, 100)
	c := w.Clone()
	assert.True(t, w.Equal(c))

	c[constants.EnvBlue] = 50
	assert.False(t, w.Equal(c))
	assert.Equal(t, 100, w[constants.EnvBlue])
}

func TestDeploymentAttempt_Duration(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	a := &DeploymentAttempt{StartedAt: start}
	assert.Equal(t, time.Minute, a.Duration(start.Add(time.Minute)))

	done := start.Add(10 * time.Second)
	a.CompletedAt = &done
	assert.Equal(t, 10*time.Second, a.Duration(start.Add(time.Hour)))
	assert.Nil(t, a.LastStage())
}

func TestIncident_JSONFieldNames(t *testing.T) {
	inc := Incident{
		ID:              "i-1",
		Type:            constants.IncidentRollback,
		FromEnv:         constants.EnvGreen,
		ToEnv:           constants.EnvBlue,
		DurationSeconds: 12.5,
		Status:          constants.OutcomeRolledBack,
	}
	data, err := json.Marshal(inc)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "rollback", raw["type"])
	assert.Equal(t, "green", raw["from_env"])
	assert.Equal(t, "blue", raw["to_env"])
	assert.InDelta(t, 12.5, raw["duration_seconds"], 0.0001)
	assert.Equal(t, "rolled_back", raw["status"])
}

func TestIncident_Severity(t *testing.T) {
	assert.Equal(t, constants.SeverityCritical, (&Incident{Type: constants.IncidentCriticalEscalation}).Severity())
	assert.Equal(t, constants.SeverityError, (&Incident{Type: constants.IncidentRollback}).Severity())
	assert.Equal(t, constants.SeverityInfo, (&Incident{Type: constants.IncidentDeploymentSucceeded}).Severity())
}

func TestTarget_URL(t *testing.T) {
	tests := []struct {
		base, path, want string
	}{
		{"http://api-green:8080", "/healthz", "http://api-green:8080/healthz"},
		{"http://api-green:8080/", "healthz", "http://api-green:8080/healthz"},
		{"http://api-green:8080/", "/v1/orders?limit=1", "http://api-green:8080/v1/orders?limit=1"},
		{"http://api-green:8080", "", "http://api-green:8080"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, Target{BaseURL: tt.base}.URL(tt.path))
		})
	}
}
