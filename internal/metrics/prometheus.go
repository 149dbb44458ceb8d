package metrics

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"net/http"
	"strings"
	"text/template"
	"time"

	"github.com/prometheus/client_golang/api"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"

	"github.com/mrz1836/cutover/internal/constants"
	cerrors "github.com/mrz1836/cutover/internal/errors"
)

// PrometheusConfig configures a PrometheusProvider.
type PrometheusConfig struct {
	Address string

	// ErrorRateQuery and LatencyQuery are templates rendered with
	// .Service, .Environment and .Window.
	ErrorRateQuery string
	LatencyQuery   string

	// RoundTripper overrides the HTTP transport. Nil uses api.DefaultRoundTripper.
	RoundTripper http.RoundTripper
}

// PrometheusProvider evaluates instant PromQL queries for error rate and p95 latency.
type PrometheusProvider struct {
	api       promv1.API
	errorRate *template.Template
	latency   *template.Template
	now       func() time.Time
}

type queryVars struct {
	Service     string
	Environment string
	Window      string
}

// NewPrometheusProvider parses the query templates and builds an API client.
func NewPrometheusProvider(cfg PrometheusConfig) (*PrometheusProvider, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, cerrors.Mark(fmt.Errorf("metrics.address: %w", cerrors.ErrEmptyValue), cerrors.ErrValidation)
	}
	if cfg.ErrorRateQuery == "" {
		cfg.ErrorRateQuery = constants.DefaultErrorRateQuery
	}
	if cfg.LatencyQuery == "" {
		cfg.LatencyQuery = constants.DefaultLatencyQuery
	}

	errorRate, err := template.New("error_rate").Option("missingkey=error").Parse(cfg.ErrorRateQuery)
	if err != nil {
		return nil, cerrors.Mark(fmt.Errorf("parse metrics.error_rate_query: %w", err), cerrors.ErrValidation)
	}
	latency, err := template.New("latency").Option("missingkey=error").Parse(cfg.LatencyQuery)
	if err != nil {
		return nil, cerrors.Mark(fmt.Errorf("parse metrics.latency_query: %w", err), cerrors.ErrValidation)
	}

	client, err := api.NewClient(api.Config{Address: cfg.Address, RoundTripper: cfg.RoundTripper})
	if err != nil {
		return nil, cerrors.Mark(fmt.Errorf("create prometheus client: %w", err), cerrors.ErrValidation)
	}

	return &PrometheusProvider{
		api:       promv1.NewAPI(client),
		errorRate: errorRate,
		latency:   latency,
		now:       time.Now,
	}, nil
}

// Query implements Provider. A NaN result (no requests in the window) reads
// as zero; an empty result fails with errors.ErrNoMetricsData.
func (p *PrometheusProvider) Query(ctx context.Context, q Query) (Aggregate, error) {
	window := q.Window
	if window <= 0 {
		window = constants.DefaultMetricsWindow
	}
	vars := queryVars{
		Service:     q.ServiceID,
		Environment: q.Env.String(),
		Window:      model.Duration(window).String(),
	}
	ts := p.now()

	errorRate, err := p.instant(ctx, p.errorRate, vars, ts)
	if err != nil {
		return Aggregate{}, err
	}
	latency, err := p.instant(ctx, p.latency, vars, ts)
	if err != nil {
		return Aggregate{}, err
	}
	return Aggregate{ErrorRate: errorRate, P95LatencyMs: latency}, nil
}

func (p *PrometheusProvider) instant(ctx context.Context, tmpl *template.Template, vars queryVars, ts time.Time) (float64, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return 0, cerrors.Mark(fmt.Errorf("render %s query: %w", tmpl.Name(), err), cerrors.ErrValidation)
	}
	query := buf.String()

	value, _, err := p.api.Query(ctx, query, ts)
	if err != nil {
		return 0, cerrors.Mark(
			fmt.Errorf("%s query for %s/%s: %w: %w", tmpl.Name(), vars.Service, vars.Environment, cerrors.ErrMetricsQuery, err),
			cerrors.ErrInfrastructure,
		)
	}

	v, ok := firstValue(value)
	if !ok {
		return 0, fmt.Errorf("%s query for %s/%s: %w", tmpl.Name(), vars.Service, vars.Environment, cerrors.ErrNoMetricsData)
	}
	if math.IsNaN(v) {
		return 0, nil
	}
	return v, nil
}

func firstValue(v model.Value) (float64, bool) {
	switch val := v.(type) {
	case model.Vector:
		if len(val) == 0 {
			return 0, false
		}
		return float64(val[0].Value), true
	case *model.Scalar:
		return float64(val.Value), true
	case model.Matrix:
		if len(val) == 0 || len(val[0].Values) == 0 {
			return 0, false
		}
		values := val[0].Values
		return float64(values[len(values)-1].Value), true
	default:
		return 0, false
	}
}
