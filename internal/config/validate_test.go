package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/cutover/internal/errors"
)

func validServiceConfig() ServiceConfig {
	return ServiceConfig{
		Addresses: map[string]string{
			"blue":  "http://api-blue:8080",
			"green": "http://api-green:8080",
		},
	}
}

func TestValidate_Defaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Services["api"] = validServiceConfig()
	require.NoError(t, Validate(cfg))
}

func TestValidate_Nil(t *testing.T) {
	require.ErrorIs(t, Validate(nil), errors.ErrConfigNil)
}

func TestValidateStages(t *testing.T) {
	tests := []struct {
		name   string
		stages []int
		valid  bool
	}{
		{"default", []int{1, 5, 10, 25, 50, 75, 100}, true},
		{"single full cutover", []int{100}, true},
		{"empty", nil, false},
		{"descending", []int{50, 25, 100}, false},
		{"duplicate", []int{10, 10, 100}, false},
		{"not ending at 100", []int{10, 50}, false},
		{"zero", []int{0, 100}, false},
		{"over 100", []int{50, 150}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateStages(tc.stages)
			if tc.valid {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, errors.ErrValidation)
		})
	}
}

func TestValidate_Rules(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		message string
	}{
		{"zero sample interval", func(c *Config) { c.Rollout.SampleInterval = 0 }, "rollout.sample_interval"},
		{"negative dwell", func(c *Config) { c.Rollout.Dwell = -1 }, "rollout.dwell"},
		{"zero consecutive breaches", func(c *Config) { c.Rollout.BreachPolicy.ConsecutiveBreaches = 0 }, "consecutive_breaches"},
		{"zero threshold", func(c *Config) { c.Rollout.Thresholds.MaxErrorRate = 0 }, "rollout.thresholds"},
		{"zero retries", func(c *Config) { c.Health.MaxRetries = 0 }, "health.max_retries"},
		{"zero parallelism", func(c *Config) { c.Health.Parallelism = 0 }, "health.parallelism"},
		{"empty check endpoint", func(c *Config) { c.Health.Checks = []CheckConfig{{}} }, "health.checks[0]"},
		{"unnamed assertion", func(c *Config) { c.Smoke.Assertions = []AssertionConfig{{Path: "/"}} }, "smoke.assertions[0]"},
		{"unknown lease backend", func(c *Config) { c.Lease.Backend = "etcd" }, "lease.backend"},
		{"unknown dry run env", func(c *Config) { c.DryRun.AssumeActive = "red" }, "dry_run.assume_active"},
		{"zero rollback timeout", func(c *Config) { c.Timeouts.Rollback = 0 }, "timeouts.rollback"},
		{"zero stage grace", func(c *Config) { c.Timeouts.StageGrace = 0 }, "timeouts.stage_grace"},
		{"missing green address", func(c *Config) {
			svc := validServiceConfig()
			delete(svc.Addresses, "green")
			c.Services["api"] = svc
		}, "services.api.addresses.green"},
		{"relative address", func(c *Config) {
			svc := validServiceConfig()
			svc.Addresses["blue"] = "api-blue:8080"
			c.Services["api"] = svc
		}, "not an absolute URL"},
		{"unknown env address", func(c *Config) {
			svc := validServiceConfig()
			svc.Addresses["purple"] = "http://x"
			c.Services["api"] = svc
		}, "unknown environment"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := Validate(cfg)
			require.ErrorIs(t, err, errors.ErrValidation)
			assert.Contains(t, err.Error(), tc.message)
		})
	}
}
