package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// ProbeServer is an httptest server with scripted per-path responses.
// Paths without a script answer 200 with an empty body.
type ProbeServer struct {
	*httptest.Server

	mu       sync.Mutex
	statuses map[string][]int
	bodies   map[string]string
	stalled  map[string]bool
	hits     map[string]int
	requests []*RecordedRequest
	closed   chan struct{}
}

// RecordedRequest is a request observed by a ProbeServer.
type RecordedRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   string
}

// NewProbeServer starts a ProbeServer that is closed when the test ends.
func NewProbeServer(t testing.TB) *ProbeServer {
	t.Helper()

	s := &ProbeServer{
		statuses: make(map[string][]int),
		bodies:   make(map[string]string),
		stalled:  make(map[string]bool),
		hits:     make(map[string]int),
		closed:   make(chan struct{}),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	// Registered last so it runs first: stalled handlers must return before Close.
	t.Cleanup(func() { close(s.closed) })
	return s
}

// SetStatus scripts the status codes returned for path. Each request consumes
// one code; the last code repeats once the script is exhausted.
func (s *ProbeServer) SetStatus(path string, codes ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[path] = append([]int(nil), codes...)
}

// SetBody sets the response body for path.
func (s *ProbeServer) SetBody(path, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bodies[path] = body
}

// Stall makes requests to path block until the client gives up.
func (s *ProbeServer) Stall(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stalled[path] = true
}

// Hits returns how many requests path has received.
func (s *ProbeServer) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// TotalHits returns the number of requests across all paths.
func (s *ProbeServer) TotalHits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// Requests returns a copy of every recorded request in arrival order.
func (s *ProbeServer) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RecordedRequest, 0, len(s.requests))
	for _, r := range s.requests {
		out = append(out, *r)
	}
	return out
}

func (s *ProbeServer) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	path := r.URL.Path
	s.hits[path]++
	s.requests = append(s.requests, &RecordedRequest{
		Method: r.Method,
		Path:   path,
		Header: r.Header.Clone(),
		Body:   string(body),
	})
	stalled := s.stalled[path]
	status := http.StatusOK
	if codes := s.statuses[path]; len(codes) > 0 {
		status = codes[0]
		if len(codes) > 1 {
			s.statuses[path] = codes[1:]
		}
	}
	respBody := s.bodies[path]
	s.mu.Unlock()

	if stalled {
		select {
		case <-r.Context().Done():
		case <-s.closed:
		}
		return
	}

	w.WriteHeader(status)
	_, _ = io.WriteString(w, respBody)
}
