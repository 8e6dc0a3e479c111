package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-resource-cache/apierror"
	"github.com/goliatone/go-resource-cache/session"
)

var testSession = session.Session{Token: "secret", Scope: "acme"}

func newExecutor(t *testing.T, cfg Config) *Executor {
	t.Helper()
	e, err := New(cfg)
	require.NoError(t, err)
	return e
}

// TestDo_StandardHeaders tests that every call carries auth and tenant headers.
func TestDo_StandardHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "acme", r.Header.Get(DefaultScopeHeader))
		assert.NotEmpty(t, r.Header.Get(RequestIDHeader))
		assert.Equal(t, "ops", r.URL.Query().Get("search"))

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"data":[]}`))
	}))
	defer server.Close()

	e := newExecutor(t, Config{})
	resp, err := e.Do(context.Background(), Request{
		Method:   http.MethodGet,
		URL:      server.URL + "/api/config/acme/departments/",
		Session:  testSession,
		Query:    url.Values{"search": {"ops"}},
		Resource: "departments",
	})

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.RequestID)
}

// TestDo_MissingSessionFailsFast tests that no request is sent without token or scope.
func TestDo_MissingSessionFailsFast(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	e := newExecutor(t, Config{})

	for _, s := range []session.Session{{Scope: "acme"}, {Token: "secret"}, {}} {
		_, err := e.Do(context.Background(), Request{URL: server.URL, Session: s, Resource: "roles"})
		require.Error(t, err)
		assert.True(t, apierror.IsPrecondition(err), "got kind %q", apierror.KindOf(err))
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

// TestDo_StatusClassification tests typed failures for error statuses.
func TestDo_StatusClassification(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		kind    apierror.Kind
		message string
	}{
		{"unauthorized", http.StatusUnauthorized, `{"message":"Unauthorized"}`, apierror.KindUnauthorized, "Unauthorized"},
		{"forbidden", http.StatusForbidden, `{"error":"scope not allowed"}`, apierror.KindForbidden, "scope not allowed"},
		{"not found", http.StatusNotFound, ``, apierror.KindNotFound, "Not Found"},
		{"validation", http.StatusUnprocessableEntity, `{"error":{"message":"name is required"}}`, apierror.KindValidation, "name is required"},
		{"server", http.StatusInternalServerError, `upstream exploded`, apierror.KindServer, "upstream exploded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			e := newExecutor(t, Config{})
			_, err := e.Do(context.Background(), Request{URL: server.URL, Session: testSession})

			require.Error(t, err)
			assert.Equal(t, tt.kind, apierror.KindOf(err))
			assert.Equal(t, tt.status, apierror.StatusOf(err))
			assert.Equal(t, tt.message, apierror.MessageOf(err))
		})
	}
}

// TestDo_PostBody tests JSON encoding of the request body.
func TestDo_PostBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Housekeeping", body["name"])

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":{"id":"d-1","name":"Housekeeping"}}`))
	}))
	defer server.Close()

	e := newExecutor(t, Config{})
	resp, err := e.Do(context.Background(), Request{
		Method:  http.MethodPost,
		URL:     server.URL,
		Session: testSession,
		Body:    map[string]string{"name": "Housekeeping"},
	})
	require.NoError(t, err)

	type department struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	record, err := DecodeRecord[department](resp)
	require.NoError(t, err)
	assert.Equal(t, department{ID: "d-1", Name: "Housekeeping"}, record)
}

// TestDo_Timeout tests that the request budget yields a timeout kind.
func TestDo_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	e := newExecutor(t, Config{Timeout: 50 * time.Millisecond})
	_, err := e.Do(context.Background(), Request{URL: server.URL, Session: testSession})

	require.Error(t, err)
	assert.Equal(t, apierror.KindTimeout, apierror.KindOf(err))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

// TestDo_Canceled tests that caller cancellation is distinguished from timeouts.
func TestDo_Canceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	e := newExecutor(t, Config{})
	_, err := e.Do(ctx, Request{URL: server.URL, Session: testSession})

	require.Error(t, err)
	assert.Equal(t, apierror.KindCanceled, apierror.KindOf(err))
}

// TestDo_TransportFailure tests an unreachable backend.
func TestDo_TransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	target := server.URL
	server.Close()

	e := newExecutor(t, Config{Timeout: time.Second})
	_, err := e.Do(context.Background(), Request{URL: target, Session: testSession})

	require.Error(t, err)
	assert.Equal(t, apierror.KindTransport, apierror.KindOf(err))
}

// TestDo_RateLimit tests that the limiter spaces requests.
func TestDo_RateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	e := newExecutor(t, Config{RateLimit: 20, RateBurst: 1})

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := e.Do(context.Background(), Request{URL: server.URL, Session: testSession})
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestDecodeJSON(t *testing.T) {
	type page struct {
		Data []string `json:"data"`
	}

	got, err := DecodeJSON[page](&Response{StatusCode: 200, Body: []byte(`{"data":["a","b"]}`)})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got.Data)

	empty, err := DecodeJSON[page](&Response{StatusCode: http.StatusNoContent})
	require.NoError(t, err)
	assert.Nil(t, empty.Data)

	deleted, err := DecodeJSON[page](&Response{Method: http.MethodDelete, StatusCode: http.StatusOK})
	require.NoError(t, err)
	assert.Nil(t, deleted.Data)

	_, err = DecodeJSON[page](&Response{StatusCode: 200, Body: []byte(`<html>oops</html>`)})
	require.Error(t, err)
	assert.Equal(t, apierror.KindDecode, apierror.KindOf(err))
}

func TestDecode_EmptyBodyOnReadIsAFailure(t *testing.T) {
	tests := []struct {
		name string
		resp *Response
	}{
		{"nil response", nil},
		{"200 get", &Response{Method: http.MethodGet, StatusCode: http.StatusOK}},
		{"200 whitespace", &Response{Method: http.MethodGet, StatusCode: http.StatusOK, Body: []byte(" \n")}},
		{"201 post", &Response{Method: http.MethodPost, StatusCode: http.StatusCreated}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeJSON[map[string]any](tt.resp)
			assert.Equal(t, apierror.KindDecode, apierror.KindOf(err))

			_, err = DecodeRecord[map[string]any](tt.resp)
			assert.Equal(t, apierror.KindDecode, apierror.KindOf(err))
		})
	}
}

func TestDecodeRecord_Bare(t *testing.T) {
	type role struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}

	got, err := DecodeRecord[role](&Response{StatusCode: 200, Body: []byte(`{"id":"r-1","name":"Buyer"}`)})
	require.NoError(t, err)
	assert.Equal(t, role{ID: "r-1", Name: "Buyer"}, got)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.RateLimit = -1
	assert.Error(t, bad.Validate())

	_, err := New(Config{Timeout: time.Microsecond})
	assert.Error(t, err)
}
