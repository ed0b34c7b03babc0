// Package statsig wraps the Statsig console API used to publish and fetch
// experiments. All calls are authenticated by a static API key header and
// bounded by an explicit timeout; a missing key is a configured-off state
// the caller detects with Configured().
package statsig

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://api.statsig.com/console/v1"

// ErrNotFound is returned by GetExperiment when the platform has no record
// under the requested id.
var ErrNotFound = eris.New("statsig: experiment not found")

// ErrNotConfigured is returned when a call is made without an API key.
var ErrNotConfigured = eris.New("statsig: api key not configured")

// APIError carries the platform's own message for a rejected call, so
// publish failures can surface it verbatim.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// Client defines the console API operations used by this application.
type Client interface {
	// Configured reports whether an API key is present. When false, every
	// call fails with ErrNotConfigured and callers should use local data.
	Configured() bool
	ListExperiments(ctx context.Context) ([]Experiment, error)
	GetExperiment(ctx context.Context, id string) (*Experiment, error)
	// UpsertExperiment creates the experiment when payload.ID is empty and
	// updates it otherwise. Returns the platform-assigned id.
	UpsertExperiment(ctx context.Context, payload Experiment) (string, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default console API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithTimeout overrides the default per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		c.http.Timeout = d
	}
}

// WithRateLimit overrides the default request rate (10 req/s).
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		} else {
			c.limiter = nil
		}
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a console API client. An empty apiKey yields a client
// that reports Configured() == false.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(10, 10),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Configured() bool {
	return c.apiKey != ""
}

func (c *httpClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *httpClient) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	if !c.Configured() {
		return 0, nil, ErrNotConfigured
	}
	if err := c.wait(ctx); err != nil {
		return 0, nil, eris.Wrap(err, "statsig: rate limit")
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return 0, nil, eris.Wrap(err, "statsig: marshal request")
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, eris.Wrap(err, "statsig: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("STATSIG-API-KEY", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, eris.Wrap(err, "statsig: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, eris.Wrap(err, "statsig: read response")
	}
	return resp.StatusCode, respBody, nil
}

// apiError extracts the platform's message from an error body, falling back
// to the raw status when the body is not the expected JSON shape.
func apiError(status int, body []byte) error {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Message != "" {
		return &APIError{StatusCode: status, Message: er.Message}
	}
	return &APIError{StatusCode: status, Message: http.StatusText(status)}
}

func (c *httpClient) ListExperiments(ctx context.Context) ([]Experiment, error) {
	status, body, err := c.do(ctx, http.MethodGet, "/experiments", nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, eris.Wrap(apiError(status, body), "statsig: list experiments")
	}

	var resp listResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrap(err, "statsig: unmarshal list response")
	}
	return resp.Data, nil
}

func (c *httpClient) GetExperiment(ctx context.Context, id string) (*Experiment, error) {
	status, body, err := c.do(ctx, http.MethodGet, "/experiments/"+id, nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if status != http.StatusOK {
		return nil, eris.Wrapf(apiError(status, body), "statsig: get experiment %s", id)
	}

	// Some responses wrap the record in a data envelope, some return it
	// bare. Try the envelope first.
	var resp getResponse
	if err := json.Unmarshal(body, &resp); err == nil && resp.Data != nil {
		return resp.Data, nil
	}
	var exp Experiment
	if err := json.Unmarshal(body, &exp); err != nil {
		return nil, eris.Wrap(err, "statsig: unmarshal experiment")
	}
	return &exp, nil
}

func (c *httpClient) UpsertExperiment(ctx context.Context, payload Experiment) (string, error) {
	method := http.MethodPost
	path := "/experiments"
	if payload.ID != "" {
		method = http.MethodPut
		path = "/experiments/" + payload.ID
	}

	status, body, err := c.do(ctx, method, path, payload)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return "", eris.Wrap(apiError(status, body), "statsig: upsert experiment")
	}

	var resp upsertResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", eris.Wrap(err, "statsig: unmarshal upsert response")
	}

	// The assigned id shows up in different places across API versions.
	switch {
	case resp.ID != "":
		return resp.ID, nil
	case resp.Data != nil && resp.Data.ID != "":
		return resp.Data.ID, nil
	default:
		return payload.ID, nil
	}
}
