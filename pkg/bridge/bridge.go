// Package bridge implements the two console operations: sending a command
// to /query or /action, and fetching /history. Both render their outcome
// into a shared display.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"command-console/pkg/display"
	"command-console/pkg/logging"
	"command-console/pkg/metrics"
	"command-console/pkg/render"
	"command-console/pkg/transport"
)

// Display texts shown by the bridge.
const (
	TextSending         = "Sending..."
	TextFetchingHistory = "Fetching history..."
	TextEmptyCommand    = "Please enter a command or prompt."

	PrefixPayloadError = "Payload JSON parse error: "
	PrefixNetworkError = "Network error: "
	PrefixHistoryError = "History fetch error: "

	HistoryPath = "/history"
)

// ErrSendInFlight is returned when a send is triggered while another one
// has not settled yet.
var ErrSendInFlight = errors.New("a send is already in flight")

// Backend is the HTTP side of the bridge.
type Backend interface {
	PostJSON(ctx context.Context, path string, body []byte) (*transport.Response, error)
	GetJSON(ctx context.Context, path string) (*transport.Response, error)
}

// Bridge wires user triggers to backend calls.
type Bridge struct {
	backend Backend
	display *display.Display
	log     logging.Logger
	metrics *metrics.MetricsCollector

	sending    atomic.Bool
	onSendable func(enabled bool)
}

// Option customises a Bridge.
type Option func(*Bridge)

func WithLogger(l logging.Logger) Option {
	return func(b *Bridge) { b.log = l }
}

func WithMetrics(mc *metrics.MetricsCollector) Option {
	return func(b *Bridge) { b.metrics = mc }
}

// WithSendStateHook registers fn to be called whenever the send trigger
// is disabled (false) or re-enabled (true).
func WithSendStateHook(fn func(enabled bool)) Option {
	return func(b *Bridge) { b.onSendable = fn }
}

// New creates a Bridge writing into d.
func New(backend Backend, d *display.Display, opts ...Option) *Bridge {
	b := &Bridge{
		backend: backend,
		display: d,
		log:     logging.Discard(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Display returns the display the bridge writes to.
func (b *Bridge) Display() *display.Display {
	return b.display
}

// SendEnabled reports whether the send trigger is currently enabled.
func (b *Bridge) SendEnabled() bool {
	return !b.sending.Load()
}

// SubmitCommand validates the form inputs, posts them to the endpoint
// chosen by mode and renders the response. It blocks until the call
// settles. The returned error mirrors what was displayed.
func (b *Bridge) SubmitCommand(ctx context.Context, mode, command, payloadText string) error {
	if b.sending.Load() {
		return ErrSendInFlight
	}

	intent, err := ParseIntent(mode, command, payloadText)
	if err != nil {
		var perr *PayloadError
		if errors.As(err, &perr) {
			b.display.Begin(PrefixPayloadError + perr.Err.Error())
			b.metrics.IncrementValidationFailures("invalid_payload")
		} else {
			b.display.Begin(TextEmptyCommand)
			b.metrics.IncrementValidationFailures("empty_command")
		}
		return err
	}

	body, err := intent.Body()
	if err != nil {
		b.display.Begin(PrefixNetworkError + err.Error())
		return err
	}

	if !b.sending.CompareAndSwap(false, true) {
		return ErrSendInFlight
	}
	gen := b.display.Begin(TextSending)
	b.sendStateChanged(false)
	defer b.release()

	path := intent.Mode.Endpoint()
	log := logging.FromContext(ctx, b.log).WithFields(map[string]interface{}{"operation": "send", "endpoint": path})

	text, err := b.call(log, path, func() (*transport.Response, error) {
		return b.backend.PostJSON(ctx, path, body)
	})
	if err != nil {
		text = PrefixNetworkError + err.Error()
		err = fmt.Errorf("send %s: %w", path, err)
	}

	if !b.display.Settle(gen, text) {
		log.Debug("dropping stale send result")
		b.metrics.IncrementStaleResults("send")
	}
	return err
}

// FetchHistory requests /history and renders the response. It does not
// touch the send trigger.
func (b *Bridge) FetchHistory(ctx context.Context) error {
	gen := b.display.Begin(TextFetchingHistory)
	log := logging.FromContext(ctx, b.log).WithField("operation", "history")

	text, err := b.call(log, HistoryPath, func() (*transport.Response, error) {
		return b.backend.GetJSON(ctx, HistoryPath)
	})
	if err != nil {
		text = PrefixHistoryError + err.Error()
		err = fmt.Errorf("fetch history: %w", err)
	}

	if !b.display.Settle(gen, text) {
		log.Debug("dropping stale history result")
		b.metrics.IncrementStaleResults("history")
	}
	return err
}

// call runs one request and renders its body. Status codes are not
// inspected: an error response with a JSON body renders like any other.
func (b *Bridge) call(log logging.Logger, path string, fn func() (*transport.Response, error)) (string, error) {
	resp, err := fn()
	if err != nil {
		return "", err
	}

	text, err := render.Indent(resp.Body)
	resp.Latency.Checkpoint("decoded")
	log = log.WithCorrelationID(resp.Latency.CorrelationID()).WithFields(resp.Latency.Fields())
	if err != nil {
		b.metrics.RecordRequest(path, metrics.OutcomeDecodeError, resp.StatusCode, resp.Duration)
		log.Error("response is not JSON", err)
		return "", err
	}
	b.metrics.RecordRequest(path, metrics.OutcomeOK, resp.StatusCode, resp.Duration)
	log.Debug("response rendered")
	return text, nil
}

func (b *Bridge) release() {
	b.sending.Store(false)
	b.sendStateChanged(true)
}

func (b *Bridge) sendStateChanged(enabled bool) {
	b.metrics.SetSendInFlight(!enabled)
	if b.onSendable != nil {
		b.onSendable(enabled)
	}
}
