package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/cutover/internal/constants"
	"github.com/mrz1836/cutover/internal/errors"
)

const serviceYAML = `
services:
  api:
    namespace: prod
    image: registry.local/api
    addresses:
      blue: http://api-blue.prod.svc:8080
      green: http://api-green.prod.svc:8080
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFromPaths_Defaults(t *testing.T) {
	cfg, err := LoadFromPaths(context.Background(), "", "")
	require.NoError(t, err)

	assert.Equal(t, constants.DefaultStages(), cfg.Rollout.Stages)
	assert.Equal(t, constants.DefaultDwell, cfg.Rollout.Dwell)
	assert.InDelta(t, 1.0, cfg.Rollout.Thresholds.MaxErrorRate, 0.0001)
	assert.Equal(t, 1, cfg.Rollout.BreachPolicy.ConsecutiveBreaches)
	assert.Equal(t, 3, cfg.Health.MaxRetries)
	require.Len(t, cfg.Health.Checks, 1)
	assert.Equal(t, "/healthz", cfg.Health.Checks[0].Endpoint)
	assert.Equal(t, BackendKubernetes, cfg.Orchestration.Backend)
	assert.Equal(t, BackendFile, cfg.Lease.Backend)
	assert.NotNil(t, cfg.Services)
}

func TestLoadFromPaths_ProjectOverridesGlobal(t *testing.T) {
	global := writeConfig(t, serviceYAML+`
rollout:
  dwell: 10m
  stages: [10, 50, 100]
`)
	project := writeConfig(t, `
rollout:
  dwell: 30s
health:
  max_retries: 5
`)

	cfg, err := LoadFromPaths(context.Background(), project, global)
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Rollout.Dwell)
	assert.Equal(t, []int{10, 50, 100}, cfg.Rollout.Stages)
	assert.Equal(t, 5, cfg.Health.MaxRetries)

	svc, ok := cfg.Service("api")
	require.True(t, ok)
	assert.Equal(t, "prod", svc.Namespace)
	assert.Equal(t, "http://api-green.prod.svc:8080", svc.Address(constants.EnvGreen))
	assert.Equal(t, "api-blue", svc.WorkloadName("api", constants.EnvBlue))
	assert.Equal(t, "api-routing", svc.RoutingObjectName("api"))
}

func TestLoadFromPaths_EnvOverride(t *testing.T) {
	t.Setenv("CUTOVER_ROLLOUT_STAGES", "20,60,100")
	t.Setenv("CUTOVER_ROLLOUT_SAMPLE_INTERVAL", "5s")
	t.Setenv("CUTOVER_LEASE_BACKEND", "redis")

	cfg, err := LoadFromPaths(context.Background(), "", "")
	require.NoError(t, err)

	assert.Equal(t, []int{20, 60, 100}, cfg.Rollout.Stages)
	assert.Equal(t, 5*time.Second, cfg.Rollout.SampleInterval)
	assert.Equal(t, BackendRedis, cfg.Lease.Backend)
}

func TestLoadFromPaths_InvalidConfig(t *testing.T) {
	path := writeConfig(t, `
rollout:
  stages: [5, 1, 100]
`)
	_, err := LoadFromPaths(context.Background(), path, "")
	require.ErrorIs(t, err, errors.ErrValidation)
}

func TestLoad_ExplicitPathMustExist(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, errors.ErrValidation)
}

func TestLoad_ExplicitPath(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := writeConfig(t, serviceYAML)

	cfg, err := Load(context.Background(), path)
	require.NoError(t, err)
	_, ok := cfg.Service("api")
	assert.True(t, ok)
}

func TestStateDirAndSQLitePath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Incidents.Dir = "/var/lib/cutover"

	dir, err := cfg.StateDir()
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/cutover", dir)

	db, err := cfg.SQLitePath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/var/lib/cutover", constants.IncidentDBFile), db)
}
