package bridge

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"command-console/pkg/display"
	"command-console/pkg/logging"
	"command-console/pkg/metrics"
	"command-console/pkg/transport"
)

const (
	timeout = time.Second
	tick    = 5 * time.Millisecond
)

type call struct {
	method string
	path   string
	body   []byte
}

// fakeBackend records calls and answers from a per-path table.
type fakeBackend struct {
	mu      sync.Mutex
	calls   []call
	replies map[string]string
	errs    map[string]error
	gates   map[string]chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		replies: map[string]string{},
		errs:    map[string]error{},
		gates:   map[string]chan struct{}{},
	}
}

func (f *fakeBackend) PostJSON(ctx context.Context, path string, body []byte) (*transport.Response, error) {
	return f.handle(http.MethodPost, path, body)
}

func (f *fakeBackend) GetJSON(ctx context.Context, path string) (*transport.Response, error) {
	return f.handle(http.MethodGet, path, nil)
}

func (f *fakeBackend) handle(method, path string, body []byte) (*transport.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{method: method, path: path, body: body})
	gate := f.gates[path]
	reply, err := f.replies[path], f.errs[path]
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return &transport.Response{StatusCode: http.StatusOK, Body: []byte(reply)}, nil
}

func (f *fakeBackend) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func newBridge(backend Backend, opts ...Option) *Bridge {
	return New(backend, display.New(nil), opts...)
}

func TestSubmitInvalidPayloadMakesNoCall(t *testing.T) {
	payloads := []string{"{", "{a:1}", "not json", `{"a":1}}`, "[1,2,"}

	for _, p := range payloads {
		t.Run(p, func(t *testing.T) {
			backend := newFakeBackend()
			b := newBridge(backend)

			err := b.SubmitCommand(context.Background(), "query", "ping", p)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidPayload)
			assert.Empty(t, backend.Calls())
			assert.True(t, strings.HasPrefix(b.Display().Text(), PrefixPayloadError), b.Display().Text())
			assert.True(t, b.SendEnabled())
		})
	}
}

func TestSubmitEmptyCommandMakesNoCall(t *testing.T) {
	for _, cmd := range []string{"", " ", "\t\n  "} {
		backend := newFakeBackend()
		b := newBridge(backend)

		err := b.SubmitCommand(context.Background(), "action", cmd, "")
		assert.ErrorIs(t, err, ErrEmptyCommand)
		assert.Empty(t, backend.Calls())
		assert.Equal(t, TextEmptyCommand, b.Display().Text())
		assert.True(t, b.SendEnabled())
	}
}

func TestPayloadCheckedBeforeCommand(t *testing.T) {
	b := newBridge(newFakeBackend())

	err := b.SubmitCommand(context.Background(), "query", "", "{broken")
	assert.ErrorIs(t, err, ErrInvalidPayload)
	assert.True(t, strings.HasPrefix(b.Display().Text(), PrefixPayloadError))
}

func TestSubmitRouting(t *testing.T) {
	tests := []struct {
		mode string
		path string
	}{
		{"query", "/query"},
		{"action", "/action"},
		{"", "/action"},
		{"QUERY", "/action"},
		{"something", "/action"},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			backend := newFakeBackend()
			backend.replies[tt.path] = `{"ok":true}`
			b := newBridge(backend)

			require.NoError(t, b.SubmitCommand(context.Background(), tt.mode, "ping", ""))
			calls := backend.Calls()
			require.Len(t, calls, 1)
			assert.Equal(t, http.MethodPost, calls[0].method)
			assert.Equal(t, tt.path, calls[0].path)
		})
	}
}

func TestSubmitBody(t *testing.T) {
	tests := []struct {
		name    string
		mode    string
		command string
		payload string
		want    string
	}{
		{"object payload", "action", "ping", `{"a":1}`, `{"command":"ping","payload":{"a":1}}`},
		{"no payload", "query", "status", "", `{"command":"status","payload":null}`},
		{"whitespace trimmed", "query", "  status  ", "  \n ", `{"command":"status","payload":null}`},
		{"payload compacted", "action", "trigger 1", "{\n  \"tokens\": [1, 2]\n}", `{"command":"trigger 1","payload":{"tokens":[1,2]}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newFakeBackend()
			backend.replies[Mode(tt.mode).Endpoint()] = `{}`
			b := newBridge(backend)

			require.NoError(t, b.SubmitCommand(context.Background(), tt.mode, tt.command, tt.payload))
			calls := backend.Calls()
			require.Len(t, calls, 1)
			assert.Equal(t, tt.want, string(calls[0].body))
		})
	}
}

func TestSubmitDisplaysPrettyResponse(t *testing.T) {
	backend := newFakeBackend()
	backend.replies["/query"] = `{"id":123,"tags":["a"]}`
	b := newBridge(backend)

	require.NoError(t, b.SubmitCommand(context.Background(), "query", "get_campaign 123", ""))
	assert.Equal(t, "{\n  \"id\": 123,\n  \"tags\": [\n    \"a\"\n  ]\n}", b.Display().Text())
}

func TestSubmitNetworkError(t *testing.T) {
	backend := newFakeBackend()
	backend.errs["/action"] = errors.New("connection refused")

	var states []bool
	b := newBridge(backend, WithSendStateHook(func(enabled bool) { states = append(states, enabled) }))

	err := b.SubmitCommand(context.Background(), "action", "trigger 5", "")
	require.Error(t, err)
	assert.Equal(t, "Network error: connection refused", b.Display().Text())
	assert.True(t, b.SendEnabled())
	assert.Equal(t, []bool{false, true}, states)
}

func TestSubmitUnparsableResponse(t *testing.T) {
	backend := newFakeBackend()
	backend.replies["/query"] = "<html>Internal Server Error</html>"
	b := newBridge(backend)

	err := b.SubmitCommand(context.Background(), "query", "status", "")
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(b.Display().Text(), PrefixNetworkError))
	assert.True(t, b.SendEnabled())
}

func TestSubmitReenablesAfterSuccess(t *testing.T) {
	backend := newFakeBackend()
	backend.replies["/query"] = `[]`

	var states []bool
	b := newBridge(backend, WithSendStateHook(func(enabled bool) { states = append(states, enabled) }))

	require.NoError(t, b.SubmitCommand(context.Background(), "query", "status", ""))
	require.NoError(t, b.SubmitCommand(context.Background(), "query", "status", ""))
	assert.True(t, b.SendEnabled())
	assert.Equal(t, []bool{false, true, false, true}, states)
}

func TestSubmitWhileInFlight(t *testing.T) {
	backend := newFakeBackend()
	backend.replies["/query"] = `{"n":1}`
	gate := make(chan struct{})
	backend.gates["/query"] = gate

	disabled := make(chan struct{})
	b := newBridge(backend, WithSendStateHook(func(enabled bool) {
		if !enabled {
			close(disabled)
		}
	}))

	done := make(chan error, 1)
	go func() { done <- b.SubmitCommand(context.Background(), "query", "first", "") }()
	<-disabled

	assert.False(t, b.SendEnabled())
	err := b.SubmitCommand(context.Background(), "query", "second", "")
	assert.ErrorIs(t, err, ErrSendInFlight)
	assert.Equal(t, TextSending, b.Display().Text())

	close(gate)
	require.NoError(t, <-done)
	assert.True(t, b.SendEnabled())
	assert.Len(t, backend.Calls(), 1)
}

func TestFetchHistory(t *testing.T) {
	backend := newFakeBackend()
	backend.replies[HistoryPath] = `{"count":1,"items":[{"id":1}]}`
	b := newBridge(backend)

	require.NoError(t, b.FetchHistory(context.Background()))
	calls := backend.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, http.MethodGet, calls[0].method)
	assert.Equal(t, HistoryPath, calls[0].path)
	assert.Nil(t, calls[0].body)
	assert.Equal(t, "{\n  \"count\": 1,\n  \"items\": [\n    {\n      \"id\": 1\n    }\n  ]\n}", b.Display().Text())
}

func TestFetchHistoryError(t *testing.T) {
	backend := newFakeBackend()
	backend.errs[HistoryPath] = errors.New("Failed to fetch")
	b := newBridge(backend)

	err := b.FetchHistory(context.Background())
	require.Error(t, err)
	assert.Equal(t, "History fetch error: Failed to fetch", b.Display().Text())
}

func TestFetchHistoryShowsStatusThenResult(t *testing.T) {
	backend := newFakeBackend()
	backend.replies[HistoryPath] = `{"count":0,"items":[]}`
	var seen []string
	b := New(backend, display.New(func(s string) { seen = append(seen, s) }))

	require.NoError(t, b.FetchHistory(context.Background()))
	require.Len(t, seen, 2)
	assert.Equal(t, TextFetchingHistory, seen[0])
}

func TestHistoryIgnoresSendTrigger(t *testing.T) {
	backend := newFakeBackend()
	backend.replies["/query"] = `{"send":true}`
	backend.replies[HistoryPath] = `{"history":true}`
	gate := make(chan struct{})
	backend.gates["/query"] = gate

	disabled := make(chan struct{})
	b := newBridge(backend, WithSendStateHook(func(enabled bool) {
		if !enabled {
			close(disabled)
		}
	}))

	done := make(chan error, 1)
	go func() { done <- b.SubmitCommand(context.Background(), "query", "slow", "") }()
	<-disabled

	// history runs while the send is still pending and becomes the latest trigger
	require.NoError(t, b.FetchHistory(context.Background()))
	assert.False(t, b.SendEnabled())
	assert.Equal(t, "{\n  \"history\": true\n}", b.Display().Text())

	close(gate)
	require.NoError(t, <-done)

	// the send settled after a newer trigger, so its result is dropped
	assert.Equal(t, "{\n  \"history\": true\n}", b.Display().Text())
	assert.True(t, b.SendEnabled())
}

func TestStaleResultCounted(t *testing.T) {
	backend := newFakeBackend()
	backend.replies[HistoryPath] = `{}`
	gate := make(chan struct{})
	backend.gates[HistoryPath] = gate

	mc := metrics.NewMetricsCollector()
	d := display.New(nil)
	b := New(backend, d, WithMetrics(mc))

	done := make(chan error, 1)
	go func() { done <- b.FetchHistory(context.Background()) }()
	require.Eventually(t, func() bool { return len(backend.Calls()) == 1 }, timeout, tick)

	// a validation error is a newer trigger too
	_ = b.SubmitCommand(context.Background(), "query", "", "")
	close(gate)
	require.NoError(t, <-done)

	assert.Equal(t, TextEmptyCommand, d.Text())
	families, err := mc.Registry().Gather()
	require.NoError(t, err)
	var stale float64
	for _, mf := range families {
		if mf.GetName() == "client_stale_results_total" {
			stale = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.Equal(t, 1.0, stale)
}

func TestAgainstHTTPBackend(t *testing.T) {
	var gotBody string
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody, gotPath = string(b), r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/action" {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, `{"detail":"Unrecognized action command"}`)
			return
		}
		_, _ = io.WriteString(w, `{"count":0,"items":[]}`)
	}))
	defer srv.Close()

	b := newBridge(transport.NewClient(transport.Options{BaseURL: srv.URL}))

	// a 500 with a JSON body is displayed like a success
	require.NoError(t, b.SubmitCommand(context.Background(), "action", "ping", `{"a":1}`))
	assert.Equal(t, "/action", gotPath)
	assert.Equal(t, `{"command":"ping","payload":{"a":1}}`, gotBody)
	assert.Equal(t, "{\n  \"detail\": \"Unrecognized action command\"\n}", b.Display().Text())

	require.NoError(t, b.FetchHistory(context.Background()))
	assert.Equal(t, "/history", gotPath)
	assert.Empty(t, gotBody)
}

func TestHistoryAgainstClosedBackend(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	b := newBridge(transport.NewClient(transport.Options{BaseURL: url}))
	err := b.FetchHistory(context.Background())
	require.Error(t, err)

	text := b.Display().Text()
	assert.True(t, strings.HasPrefix(text, PrefixHistoryError))
	assert.Equal(t, PrefixHistoryError+errors.Unwrap(err).Error(), text)
}

func TestLoggerFromContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html>oops</html>")
	}))
	t.Cleanup(srv.Close)

	var buf bytes.Buffer
	ctx := logging.WithContext(context.Background(), logging.NewLogger("console", logging.Options{Level: "debug", Output: &buf}))
	b := New(transport.NewClient(transport.Options{BaseURL: srv.URL}), display.New(nil))

	require.Error(t, b.FetchHistory(ctx))

	out := buf.String()
	assert.Contains(t, out, `"message":"response is not JSON"`)
	assert.Contains(t, out, `"operation":"history"`)
	assert.Contains(t, out, `"correlation_id":"console-`)
	assert.Contains(t, out, `"received_ms"`)
	assert.Contains(t, out, `"decoded_ms"`)
}
