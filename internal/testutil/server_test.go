package testutil

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url) //nolint:gosec,noctx // test server URL
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestProbeServer_ScriptedStatuses(t *testing.T) {
	s := NewProbeServer(t)
	s.SetStatus("/healthz", http.StatusServiceUnavailable, http.StatusOK)
	s.SetBody("/healthz", "ok")

	code, _ := get(t, s.URL+"/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	code, body := get(t, s.URL+"/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body)

	code, _ = get(t, s.URL+"/healthz")
	assert.Equal(t, http.StatusOK, code, "last code repeats")

	assert.Equal(t, 3, s.Hits("/healthz"))
	assert.Equal(t, 0, s.Hits("/ready"))
}

func TestProbeServer_RecordsRequests(t *testing.T) {
	s := NewProbeServer(t)

	req, err := http.NewRequest(http.MethodPost, s.URL+"/orders", strings.NewReader(`{"id":1}`)) //nolint:noctx // test
	require.NoError(t, err)
	req.Header.Set("X-Test", "yes")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	reqs := s.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPost, reqs[0].Method)
	assert.Equal(t, "/orders", reqs[0].Path)
	assert.Equal(t, "yes", reqs[0].Header.Get("X-Test"))
	assert.JSONEq(t, `{"id":1}`, reqs[0].Body)
	assert.Equal(t, 1, s.TotalHits())
}
