// Package backend is the HTTP client for the RefractorIQ analysis backend.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"refractoriq/internal/report"
	"refractoriq/internal/slogutil"
	"refractoriq/internal/version"
)

const (
	// DefaultTimeout bounds a single request when Options.Timeout is zero.
	DefaultTimeout = 30 * time.Second
	// DefaultMaxBodySize caps response bodies; result documents embed the full graph.
	DefaultMaxBodySize = 64 << 20
	// DefaultRetryBaseDelay is the first backoff step for retried requests.
	DefaultRetryBaseDelay = 500 * time.Millisecond
)

// Options configures a Client.
type Options struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	MaxRetries int
	Logger     *slog.Logger
	// HTTPClient overrides the base transport; the bearer token is layered on top.
	HTTPClient *http.Client
}

// StartRequest are the parameters of a new analysis.
type StartRequest struct {
	RepoURL           string
	ExcludeThirdParty bool
	ExcludeTests      bool
}

// Client talks to one analysis backend.
type Client struct {
	base   string
	client *http.Client
	logger *slog.Logger
	retry  retryConfig
}

// New creates a client for the backend at opts.BaseURL.
func New(opts Options) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(opts.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("invalid backend URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("invalid backend URL %q: must be absolute http(s)", opts.BaseURL)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	if opts.Token != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, hc)
		hc = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: opts.Token,
			TokenType:   "Bearer",
		}))
	} else {
		clone := *hc
		hc = &clone
	}
	hc.Timeout = timeout

	logger := opts.Logger
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}

	retries := opts.MaxRetries
	if retries < 0 {
		retries = 0
	}

	return &Client{
		base:   strings.TrimRight(u.String(), "/"),
		client: hc,
		logger: logger,
		retry: retryConfig{
			maxRetries: retries,
			baseDelay:  DefaultRetryBaseDelay,
			maxDelay:   5 * time.Second,
		},
	}, nil
}

// BaseURL returns the normalised backend base URL.
func (c *Client) BaseURL() string {
	return c.base
}

// DefaultResultsPath is where results live when the status omits results_url.
func DefaultResultsPath(jobID string) string {
	return "/analyze/results/" + url.PathEscape(jobID)
}

// StartAnalysis asks the backend to analyse a repository and returns the job id.
// The start call is never retried.
func (c *Client) StartAnalysis(ctx context.Context, req StartRequest) (string, error) {
	query := url.Values{}
	query.Set("repo_url", req.RepoURL)
	query.Set("exclude_third_party", strconv.FormatBool(req.ExcludeThirdParty))
	query.Set("exclude_tests", strconv.FormatBool(req.ExcludeTests))

	var resp struct {
		report.StartResponse
		Error string `json:"error"`
	}
	status, err := c.getJSON(ctx, c.base+"/analyze/full", query, 0, &resp)
	if err != nil {
		return "", err
	}
	if resp.JobID == "" {
		msg := resp.Error
		if msg == "" {
			msg = "response did not include a job id"
		}
		return "", &RemoteError{StatusCode: status, Message: msg}
	}
	return resp.JobID, nil
}

// JobStatus fetches the current status of a job.
func (c *Client) JobStatus(ctx context.Context, jobID string) (*report.StatusResponse, error) {
	var resp report.StatusResponse
	if _, err := c.getJSON(ctx, c.base+"/analyze/status/"+url.PathEscape(jobID), nil, c.retry.maxRetries, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FetchResults downloads the results document. resultsURL is either a path
// relative to the backend base or an absolute URL.
func (c *Client) FetchResults(ctx context.Context, resultsURL string) (*report.AnalysisResult, error) {
	target, err := c.resolve(resultsURL)
	if err != nil {
		return nil, err
	}
	var result report.AnalysisResult
	if _, err := c.getJSON(ctx, target, nil, c.retry.maxRetries, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Search runs a free-text query against a completed job's results.
func (c *Client) Search(ctx context.Context, jobID, query string, k int) ([]report.SearchHit, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("k", strconv.Itoa(k))

	var resp report.SearchResponse
	if _, err := c.getJSON(ctx, c.base+DefaultResultsPath(jobID)+"/search", q, c.retry.maxRetries, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func (c *Client) resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("empty results URL")
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid results URL %q: %w", ref, err)
	}
	if u.IsAbs() {
		return ref, nil
	}
	if !strings.HasPrefix(ref, "/") {
		ref = "/" + ref
	}
	return c.base + ref, nil
}

// getJSON performs a GET and decodes a 2xx body into out. It returns the status code.
func (c *Client) getJSON(ctx context.Context, target string, query url.Values, retries int, out any) (int, error) {
	if query != nil {
		target += "?" + query.Encode()
	}

	resp, err := c.doRequest(ctx, target, retries)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, DefaultMaxBodySize))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, parseErrorResponse(resp.StatusCode, data)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to parse response: %w", err)
	}
	return resp.StatusCode, nil
}

type retryConfig struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// doRequest performs a GET with exponential backoff on network errors and 5xx.
// 4xx responses are returned to the caller without retrying.
func (c *Client) doRequest(ctx context.Context, target string, retries int) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			delay := c.retry.baseDelay * time.Duration(1<<uint(attempt-1))
			if delay > c.retry.maxDelay {
				delay = c.retry.maxDelay
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			c.logger.Debug("Retrying backend request", "attempt", attempt+1, "url", target)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", version.UserAgent())

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		if resp.StatusCode >= 500 && attempt < retries {
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			continue
		}
		return resp, nil
	}

	if retries == 0 {
		return nil, lastErr
	}
	return nil, fmt.Errorf("request failed after %d retries: %w", retries, lastErr)
}
