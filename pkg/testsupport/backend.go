package testsupport

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// Responder builds the reply to one request. A nil payload writes no body.
type Responder func(r *http.Request, body []byte) (status int, payload any)

// Recorded is a request received by a Backend.
type Recorded struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   []byte
}

// Backend is an httptest server that answers configured routes and counts
// calls per route. Unknown routes answer 404.
type Backend struct {
	server *httptest.Server

	mu       sync.Mutex
	routes   map[string]Responder
	calls    map[string]int
	requests []Recorded
	gate     chan struct{}
}

// NewBackend starts a backend closed automatically at the end of the test.
func NewBackend(t testing.TB) *Backend {
	t.Helper()

	b := &Backend{
		routes: make(map[string]Responder),
		calls:  make(map[string]int),
	}
	b.server = httptest.NewServer(http.HandlerFunc(b.serve))
	t.Cleanup(b.server.Close)
	return b
}

// URL returns the API root.
func (b *Backend) URL() string {
	return b.server.URL
}

// Handle routes method+path to fn.
func (b *Backend) Handle(method, path string, fn Responder) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.routes[routeKey(method, path)] = fn
}

// JSON routes method+path to a fixed reply.
func (b *Backend) JSON(method, path string, status int, payload any) {
	b.Handle(method, path, func(*http.Request, []byte) (int, any) {
		return status, payload
	})
}

// Hold makes every request wait until the returned release function is
// called. Requests already waiting are released too.
func (b *Backend) Hold() (release func()) {
	gate := make(chan struct{})
	b.mu.Lock()
	b.gate = gate
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			if b.gate == gate {
				b.gate = nil
			}
			b.mu.Unlock()
			close(gate)
		})
	}
}

// Calls returns how many requests hit method+path.
func (b *Backend) Calls(method, path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[routeKey(method, path)]
}

// TotalCalls returns the number of requests received.
func (b *Backend) TotalCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.requests)
}

// Requests returns a copy of every request received.
func (b *Backend) Requests() []Recorded {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Recorded(nil), b.requests...)
}

// LastRequest returns the most recent request.
func (b *Backend) LastRequest() (Recorded, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.requests) == 0 {
		return Recorded{}, false
	}
	return b.requests[len(b.requests)-1], true
}

func (b *Backend) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	key := routeKey(r.Method, r.URL.Path)

	b.mu.Lock()
	b.calls[key]++
	b.requests = append(b.requests, Recorded{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		Header: r.Header.Clone(),
		Body:   body,
	})
	fn, ok := b.routes[key]
	gate := b.gate
	b.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "route not found: " + key})
		return
	}

	status, payload := fn(r, body)
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	if payload == nil {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func routeKey(method, path string) string {
	return method + " " + path
}
