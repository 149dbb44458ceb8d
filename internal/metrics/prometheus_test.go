package metrics

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/cutover/internal/constants"
	cerrors "github.com/mrz1836/cutover/internal/errors"
)

type fakePrometheus struct {
	mu      sync.Mutex
	queries []string
	body    func(query string) (int, string)
}

func (f *fakePrometheus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	query := r.Form.Get("query")
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()

	status, body := f.body(query)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func (f *fakePrometheus) Queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

func vectorBody(value string) string {
	return fmt.Sprintf(`{"status":"success","data":{"resultType":"vector","result":[{"metric":{},"value":[1700000000.000,%q]}]}}`, value)
}

func newFakePrometheus(t *testing.T, body func(query string) (int, string)) (*fakePrometheus, *httptest.Server) {
	t.Helper()
	fake := &fakePrometheus{body: body}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return fake, srv
}

func TestPrometheusProvider_Query(t *testing.T) {
	fake, srv := newFakePrometheus(t, func(query string) (int, string) {
		if strings.Contains(query, "histogram_quantile") {
			return http.StatusOK, vectorBody("412.5")
		}
		return http.StatusOK, vectorBody("2.5")
	})

	p, err := NewPrometheusProvider(PrometheusConfig{Address: srv.URL})
	require.NoError(t, err)

	agg, err := p.Query(context.Background(), Query{ServiceID: "api", Env: constants.EnvGreen, Window: 2 * time.Minute})
	require.NoError(t, err)
	assert.InDelta(t, 2.5, agg.ErrorRate, 1e-9)
	assert.InDelta(t, 412.5, agg.P95LatencyMs, 1e-9)

	queries := fake.Queries()
	require.Len(t, queries, 2)
	assert.Contains(t, queries[0], `service="api"`)
	assert.Contains(t, queries[0], `env="green"`)
	assert.Contains(t, queries[0], "[2m]")
}

func TestPrometheusProvider_CustomTemplates(t *testing.T) {
	fake, srv := newFakePrometheus(t, func(string) (int, string) {
		return http.StatusOK, `{"status":"success","data":{"resultType":"scalar","result":[1700000000.000,"0.75"]}}`
	})

	p, err := NewPrometheusProvider(PrometheusConfig{
		Address:        srv.URL,
		ErrorRateQuery: `errors:{{.Service}}:{{.Environment}}`,
		LatencyQuery:   `latency:{{.Service}}:{{.Environment}}:{{.Window}}`,
	})
	require.NoError(t, err)

	agg, err := p.Query(context.Background(), Query{ServiceID: "web", Env: constants.EnvBlue})
	require.NoError(t, err)
	assert.InDelta(t, 0.75, agg.ErrorRate, 1e-9)
	assert.Equal(t, []string{"errors:web:blue", "latency:web:blue:1m"}, fake.Queries())
}

func TestPrometheusProvider_NaNReadsAsZero(t *testing.T) {
	_, srv := newFakePrometheus(t, func(string) (int, string) {
		return http.StatusOK, vectorBody("NaN")
	})
	p, err := NewPrometheusProvider(PrometheusConfig{Address: srv.URL})
	require.NoError(t, err)

	agg, err := p.Query(context.Background(), Query{ServiceID: "api", Env: constants.EnvGreen})
	require.NoError(t, err)
	assert.Zero(t, agg.ErrorRate)
}

func TestPrometheusProvider_EmptyResult(t *testing.T) {
	_, srv := newFakePrometheus(t, func(string) (int, string) {
		return http.StatusOK, `{"status":"success","data":{"resultType":"vector","result":[]}}`
	})
	p, err := NewPrometheusProvider(PrometheusConfig{Address: srv.URL})
	require.NoError(t, err)

	_, err = p.Query(context.Background(), Query{ServiceID: "api", Env: constants.EnvGreen})
	require.ErrorIs(t, err, cerrors.ErrNoMetricsData)
	assert.NotErrorIs(t, err, cerrors.ErrInfrastructure)
}

func TestPrometheusProvider_BackendErrorIsInfrastructure(t *testing.T) {
	_, srv := newFakePrometheus(t, func(string) (int, string) {
		return http.StatusServiceUnavailable, `{"status":"error","errorType":"unavailable","error":"tsdb not ready"}`
	})
	p, err := NewPrometheusProvider(PrometheusConfig{Address: srv.URL})
	require.NoError(t, err)

	_, err = p.Query(context.Background(), Query{ServiceID: "api", Env: constants.EnvGreen})
	require.ErrorIs(t, err, cerrors.ErrInfrastructure)
	require.ErrorIs(t, err, cerrors.ErrMetricsQuery)
}

func TestNewPrometheusProvider_Validation(t *testing.T) {
	_, err := NewPrometheusProvider(PrometheusConfig{})
	require.ErrorIs(t, err, cerrors.ErrValidation)

	_, err = NewPrometheusProvider(PrometheusConfig{Address: "http://localhost:9090", ErrorRateQuery: "{{.Service"})
	require.ErrorIs(t, err, cerrors.ErrValidation)
}
