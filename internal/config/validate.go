package config

import (
	"net/url"
	"time"

	"github.com/mrz1836/cutover/internal/constants"
	"github.com/mrz1836/cutover/internal/errors"
)

// Validate checks the configuration and returns the first problem found,
// wrapping errors.ErrValidation.
//
// Validation rules:
//   - stages are strictly ascending, within 1..100 and end at 100
//   - dwell, sample interval and every timeout are positive
//   - thresholds are positive and consecutive breaches is at least 1
//   - health retries and parallelism are at least 1 and every check names an endpoint
//   - backends are known values
//   - every service has a valid blue and green address
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.ErrConfigNil
	}

	validators := []func(*Config) error{
		validateRollout,
		validateTimeouts,
		validateHealth,
		validateBackends,
		validateServices,
	}
	for _, validate := range validators {
		if err := validate(cfg); err != nil {
			return err
		}
	}
	return nil
}

// ValidateStages checks a stage list on its own.
func ValidateStages(stages []int) error {
	if len(stages) == 0 {
		return errors.Wrap(errors.ErrValidation, "rollout.stages must not be empty")
	}
	prev := 0
	for _, p := range stages {
		if p <= prev || p > 100 {
			return errors.Wrapf(errors.ErrValidation,
				"rollout.stages must be strictly ascending within 1..100, got %v", stages)
		}
		prev = p
	}
	if prev != 100 {
		return errors.Wrapf(errors.ErrValidation, "rollout.stages must end at 100, got %v", stages)
	}
	return nil
}

func validateRollout(cfg *Config) error {
	r := cfg.Rollout
	if err := ValidateStages(r.Stages); err != nil {
		return err
	}
	if err := positive("rollout.dwell", r.Dwell, true); err != nil {
		return err
	}
	if err := positive("rollout.sample_interval", r.SampleInterval, false); err != nil {
		return err
	}
	if r.Thresholds.MaxErrorRate <= 0 || r.Thresholds.MaxP95LatencyMs <= 0 {
		return errors.Wrap(errors.ErrValidation, "rollout.thresholds must be positive")
	}
	if r.BreachPolicy.ConsecutiveBreaches < 1 {
		return errors.Wrapf(errors.ErrValidation,
			"rollout.breach_policy.consecutive_breaches must be at least 1, got %d", r.BreachPolicy.ConsecutiveBreaches)
	}
	return nil
}

func validateTimeouts(cfg *Config) error {
	t := cfg.Timeouts
	for name, d := range map[string]time.Duration{
		"timeouts.resolve":      t.Resolve,
		"timeouts.deploy_ready": t.DeployReady,
		"timeouts.rollback":     t.Rollback,
		"timeouts.stage_grace":  t.StageGrace,
	} {
		if err := positive(name, d, false); err != nil {
			return err
		}
	}
	return nil
}

func validateHealth(cfg *Config) error {
	h := cfg.Health
	if h.MaxRetries < 1 {
		return errors.Wrapf(errors.ErrValidation, "health.max_retries must be at least 1, got %d", h.MaxRetries)
	}
	if h.Parallelism < 1 {
		return errors.Wrapf(errors.ErrValidation, "health.parallelism must be at least 1, got %d", h.Parallelism)
	}
	if err := positive("health.per_request_timeout", h.PerRequestTimeout, false); err != nil {
		return err
	}
	if err := positive("health.overall_timeout", h.OverallTimeout, false); err != nil {
		return err
	}
	if err := positive("health.retry_delay", h.RetryDelay, true); err != nil {
		return err
	}
	for i, c := range h.Checks {
		if c.Endpoint == "" {
			return errors.Wrapf(errors.ErrValidation, "health.checks[%d].endpoint must not be empty", i)
		}
	}
	for i, a := range cfg.Smoke.Assertions {
		if a.Name == "" || a.Path == "" {
			return errors.Wrapf(errors.ErrValidation, "smoke.assertions[%d] needs a name and a path", i)
		}
	}
	return nil
}

func validateBackends(cfg *Config) error {
	checks := []struct {
		key     string
		value   string
		allowed []string
	}{
		{"orchestration.backend", cfg.Orchestration.Backend, []string{BackendKubernetes, BackendMemory}},
		{"metrics.backend", cfg.Metrics.Backend, []string{BackendPrometheus, BackendStatic}},
		{"lease.backend", cfg.Lease.Backend, []string{BackendFile, BackendRedis, BackendMemory}},
		{"incidents.backend", cfg.Incidents.Backend, []string{BackendFile, BackendSQLite}},
	}
	for _, c := range checks {
		if !contains(c.allowed, c.value) {
			return errors.Wrapf(errors.ErrValidation, "%s must be one of %v, got %q", c.key, c.allowed, c.value)
		}
	}
	if cfg.Orchestration.MaxAttempts < 1 || cfg.Metrics.MaxAttempts < 1 || cfg.Notifications.MaxAttempts < 1 {
		return errors.Wrap(errors.ErrValidation, "max_attempts settings must be at least 1")
	}
	if cfg.Lease.TTL <= 0 {
		return errors.Wrap(errors.ErrValidation, "lease.ttl must be positive")
	}
	if !constants.EnvID(cfg.DryRun.AssumeActive).Valid() {
		return errors.Wrapf(errors.ErrValidation, "dry_run.assume_active must be blue or green, got %q", cfg.DryRun.AssumeActive)
	}
	return nil
}

func validateServices(cfg *Config) error {
	for id, svc := range cfg.Services {
		for key := range svc.Addresses {
			if !constants.EnvID(key).Valid() {
				return errors.Wrapf(errors.ErrValidation, "services.%s.addresses has unknown environment %q", id, key)
			}
		}
		for _, env := range constants.AllEnvs() {
			addr := svc.Address(env)
			if addr == "" {
				return errors.Wrapf(errors.ErrValidation, "services.%s.addresses.%s must be set", id, env)
			}
			if u, err := url.Parse(addr); err != nil || u.Scheme == "" || u.Host == "" {
				return errors.Wrapf(errors.ErrValidation, "services.%s.addresses.%s is not an absolute URL: %q", id, env, addr)
			}
		}
		if svc.Replicas < 0 {
			return errors.Wrapf(errors.ErrValidation, "services.%s.replicas must not be negative", id)
		}
	}
	return nil
}

func positive(key string, d time.Duration, allowZero bool) error {
	if d < 0 || (d == 0 && !allowZero) {
		return errors.Wrapf(errors.ErrValidation, "%s must be positive, got %s", key, d)
	}
	return nil
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
