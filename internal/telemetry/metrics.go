// Package telemetry records controller metrics and traces.
//
// Metrics live on a private Prometheus registry. A one-shot CLI run cannot be
// scraped, so the registry is written to a node-exporter textfile on exit when
// configured. Traces go through OpenTelemetry to a JSON lines file.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mrz1836/cutover/internal/constants"
	"github.com/mrz1836/cutover/internal/domain"
)

const namespace = "cutover"

// Recorder holds the controller metrics.
type Recorder struct {
	registry *prometheus.Registry

	attempts      *prometheus.CounterVec
	stages        *prometheus.CounterVec
	rollbacks     *prometheus.CounterVec
	notifications *prometheus.CounterVec
	weights       *prometheus.GaugeVec
	duration      *prometheus.HistogramVec
	stageErrRate  *prometheus.GaugeVec
}

// NewRecorder creates a Recorder with its own registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Finished deployment attempts by outcome.",
		}, []string{"service", "outcome"}),
		stages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stages_total",
			Help:      "Evaluated rollout stages by verdict.",
		}, []string{"service", "verdict"}),
		rollbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rollbacks_total",
			Help:      "Rollbacks by result.",
		}, []string{"service", "result"}),
		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification deliveries by sink and result.",
		}, []string{"sink", "result"}),
		weights: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "traffic_weight",
			Help:      "Last traffic weight written per environment.",
		}, []string{"service", "env"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "attempt_duration_seconds",
			Help:      "Wall-clock duration of finished attempts.",
			Buckets:   prometheus.ExponentialBuckets(30, 2, 10),
		}, []string{"service", "outcome"}),
		stageErrRate: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stage_error_rate_percent",
			Help:      "Worst error rate seen in the last evaluated stage.",
		}, []string{"service"}),
	}
}

// Registry returns the registry holding all controller metrics.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// ObserveWeights records a routing write.
func (r *Recorder) ObserveWeights(serviceID string, weights domain.Weights) {
	for _, env := range constants.AllEnvs() {
		r.weights.WithLabelValues(serviceID, env.String()).Set(float64(weights[env]))
	}
}

// ObserveDelivery records a notification result.
func (r *Recorder) ObserveDelivery(sink string, err error) {
	result := "delivered"
	if err != nil {
		result = "failed"
	}
	r.notifications.WithLabelValues(sink, result).Inc()
}

// StageFinished records an evaluated stage.
func (r *Recorder) StageFinished(serviceID string, stage domain.StageResult) {
	r.stages.WithLabelValues(serviceID, stage.Verdict.String()).Inc()
	r.stageErrRate.WithLabelValues(serviceID).Set(stage.Metrics.ErrorRate)
}

// RollbackFinished records a rollback. escalated means the target failed re-verification.
func (r *Recorder) RollbackFinished(serviceID string, escalated bool) {
	result := constants.StateRolledBack.String()
	if escalated {
		result = constants.StateCriticalEscalation.String()
	}
	r.rollbacks.WithLabelValues(serviceID, result).Inc()
}

// AttemptFinished records a terminal attempt.
func (r *Recorder) AttemptFinished(a *domain.DeploymentAttempt) {
	r.attempts.WithLabelValues(a.ServiceID, a.Outcome.String()).Inc()
	if a.CompletedAt != nil {
		r.duration.WithLabelValues(a.ServiceID, a.Outcome.String()).Observe(a.CompletedAt.Sub(a.StartedAt).Seconds())
	}
}

// WriteTextfile writes the registry in text exposition format, atomically.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
