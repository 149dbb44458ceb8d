package metrics

import (
	"github.com/mrz1836/cutover/internal/constants"
	"github.com/mrz1836/cutover/internal/domain"
)

// Thresholds are the hard limits a stage must stay under. A sample breaches
// when either value is strictly greater than its limit.
type Thresholds struct {
	MaxErrorRate    float64
	MaxP95LatencyMs float64
}

// Breached reports whether a exceeds either limit.
func (t Thresholds) Breached(errorRate, p95LatencyMs float64) bool {
	return errorRate > t.MaxErrorRate || p95LatencyMs > t.MaxP95LatencyMs
}

// Policy decides how many breaching samples fail a stage.
type Policy struct {
	// ConsecutiveBreaches is the run length of breaching samples that fails a
	// stage. Values below 1 mean 1: any single breaching sample fails.
	ConsecutiveBreaches int
}

func (p Policy) limit() int {
	if p.ConsecutiveBreaches < 1 {
		return 1
	}
	return p.ConsecutiveBreaches
}

// Evaluate returns Fail when samples contain a run of breaching samples at
// least as long as the policy requires, or when there are no samples at all.
func Evaluate(samples []domain.MetricSample, th Thresholds, p Policy) constants.Verdict {
	if len(samples) == 0 {
		return constants.VerdictFail
	}
	run := 0
	for _, s := range samples {
		if !th.Breached(s.ErrorRate, s.P95LatencyMs) {
			run = 0
			continue
		}
		run++
		if run >= p.limit() {
			return constants.VerdictFail
		}
	}
	return constants.VerdictPass
}

// Worst returns the highest error rate and p95 latency among samples.
func Worst(samples []domain.MetricSample) domain.StageMetrics {
	var out domain.StageMetrics
	for _, s := range samples {
		out.ErrorRate = max(out.ErrorRate, s.ErrorRate)
		out.P95LatencyMs = max(out.P95LatencyMs, s.P95LatencyMs)
	}
	return out
}
