package transport

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"command-console/pkg/correlation"
	"command-console/pkg/logging"
	"command-console/pkg/metrics"
)

// Options configures a Client.
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	Logger    logging.Logger
	Metrics   *metrics.MetricsCollector
	IDs       *correlation.IDGenerator
}

// Response is the raw outcome of a backend call. Latency carries the
// request's correlation id and its "received" checkpoint so callers can add
// their own.
type Response struct {
	StatusCode int
	Body       []byte
	Duration   time.Duration
	Latency    *metrics.LatencyTracker
}

// Client issues JSON requests against the console backend. Every call is
// a single attempt: resty's retry support stays disabled.
//
// Transport failures are counted here; callers count the remaining
// outcomes once they have decoded the body.
type Client struct {
	resty   *resty.Client
	log     logging.Logger
	metrics *metrics.MetricsCollector
	ids     *correlation.IDGenerator
}

// NewClient creates a backend client rooted at opts.BaseURL.
func NewClient(opts Options) *Client {
	r := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetRetryCount(0).
		SetHeader("Accept", "application/json")
	if opts.UserAgent != "" {
		r.SetHeader("User-Agent", opts.UserAgent)
	}

	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	ids := opts.IDs
	if ids == nil {
		ids = correlation.NewIDGenerator("console")
	}

	return &Client{
		resty:   r,
		log:     log,
		metrics: opts.Metrics,
		ids:     ids,
	}
}

// PostJSON sends body to path with Content-Type application/json.
func (c *Client) PostJSON(ctx context.Context, path string, body []byte) (*Response, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

// GetJSON fetches path without a request body.
func (c *Client) GetJSON(ctx context.Context, path string) (*Response, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*Response, error) {
	id, ctx := correlation.Ensure(ctx, c.ids)
	log := c.log.WithCorrelationID(id).WithFields(map[string]interface{}{
		"method":   method,
		"endpoint": path,
	})
	tracker := metrics.NewLatencyTracker(id)

	req := c.resty.R().
		SetContext(ctx).
		SetHeader(correlation.HeaderName, id)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	log.Debug("sending request")
	resp, err := req.Execute(method, path)
	tracker.Checkpoint("received")
	if err != nil {
		c.metrics.RecordRequest(path, metrics.OutcomeTransportError, 0, tracker.Elapsed())
		log.WithFields(tracker.Fields()).Error("request failed", err)
		return nil, err
	}

	out := &Response{
		StatusCode: resp.StatusCode(),
		Body:       resp.Body(),
		Duration:   tracker.Elapsed(),
		Latency:    tracker,
	}

	fields := tracker.Fields()
	fields["status_code"] = out.StatusCode
	fields["bytes"] = len(out.Body)
	if out.StatusCode >= 400 {
		// non-2xx bodies are still shown to the user as results
		log.WithFields(fields).Warn(fmt.Sprintf("backend returned %s", resp.Status()))
	} else {
		log.WithFields(fields).Info("request completed")
	}
	return out, nil
}
