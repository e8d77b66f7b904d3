package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cuongbtq/analysis-delivery/internal/domain"
	"github.com/google/uuid"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultConnectTimeout = 5 * time.Second
	maxErrorBody          = 4 << 10
)

// Config holds analysis engine connection settings
type Config struct {
	BaseURL        string
	RequestTimeout time.Duration
	ConnectTimeout time.Duration
}

// Client talks to the analysis engine over HTTP
type Client struct {
	baseURL string
	http    *http.Client
	// stream has no overall timeout; progress streams are long-lived and
	// bounded by the caller's context instead.
	stream *http.Client
	logger *slog.Logger
}

// New creates a new engine Client
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: cfg.ConnectTimeout, KeepAlive: 30 * time.Second}).DialContext
	transport.ResponseHeaderTimeout = cfg.ConnectTimeout

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.RequestTimeout, Transport: transport},
		stream:  &http.Client{Transport: transport},
		logger:  logger,
	}
}

type submitRequest struct {
	Title          string `json:"title"`
	ScreenplayText string `json:"screenplay_text"`
	UserID         string `json:"user_id"`
	Genre          string `json:"genre,omitempty"`
}

type submitResponse struct {
	AnalysisID string `json:"analysis_id"`
	Status     string `json:"status"`
	Message    string `json:"message"`
}

type statusResponse struct {
	AnalysisID   string         `json:"analysis_id"`
	Status       string         `json:"status"`
	Result       map[string]any `json:"result"`
	ErrorMessage *string        `json:"error_message"`
}

// Submit hands a document to the engine and returns the engine-assigned job ID
func (c *Client) Submit(ctx context.Context, sub domain.Submission) (string, error) {
	body := submitRequest{
		Title:          sub.Title,
		ScreenplayText: sub.Text,
		UserID:         sub.OwnerID,
		Genre:          sub.Genre,
	}

	var resp submitResponse
	if err := c.doJSON(ctx, http.MethodPost, "/analyze/text", body, &resp); err != nil {
		return "", err
	}
	if resp.AnalysisID == "" {
		return "", fmt.Errorf("%w: submit response has no analysis_id", domain.ErrUpstreamUnavailable)
	}
	return resp.AnalysisID, nil
}

// GetStatus returns the engine's current status for a job
func (c *Client) GetStatus(ctx context.Context, jobID string) (domain.StatusUpdate, error) {
	resp, err := c.getAnalysis(ctx, jobID)
	if err != nil {
		return domain.StatusUpdate{}, err
	}
	status, err := parseEngineStatus(resp.Status)
	if err != nil {
		return domain.StatusUpdate{}, err
	}
	return domain.StatusUpdate{
		JobID:        jobID,
		Status:       status,
		ErrorMessage: deref(resp.ErrorMessage),
	}, nil
}

// GetResult returns the engine's report for a job
func (c *Client) GetResult(ctx context.Context, jobID string) (*domain.Report, error) {
	resp, err := c.getAnalysis(ctx, jobID)
	if err != nil {
		return nil, err
	}
	status, err := parseEngineStatus(resp.Status)
	if err != nil {
		return nil, err
	}
	return &domain.Report{
		JobID:        jobID,
		Status:       status,
		Fields:       resp.Result,
		ErrorMessage: deref(resp.ErrorMessage),
	}, nil
}

// StreamProgress opens the engine's progress event stream for a job. The
// stream lives until ctx is done or it is closed.
func (c *Client) StreamProgress(ctx context.Context, jobID string) (domain.ProgressStream, error) {
	endpoint := c.baseURL + "/analysis/" + url.PathEscape(jobID) + "/progress"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	if err := checkStatus(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}

	c.logger.Debug("Engine progress stream opened", slog.String("job_id", jobID))
	return newEventStream(resp.Body, c.logger.With(slog.String("job_id", jobID))), nil
}

func (c *Client) getAnalysis(ctx context.Context, jobID string) (*statusResponse, error) {
	var resp statusResponse
	if err := c.doJSON(ctx, http.MethodGet, "/analysis/"+url.PathEscape(jobID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	reqID := uuid.New().String()
	start := time.Now()

	var reader io.Reader
	if body != nil {
		bs, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		reader = bytes.NewReader(bs)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("Engine request failed",
			slog.String("req_id", reqID),
			slog.String("method", method),
			slog.String("path", path),
			slog.Any("error", err),
		)
		return fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("Engine response",
		slog.String("req_id", reqID),
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Int64("elapsed_ms", time.Since(start).Milliseconds()),
	)

	if err := checkStatus(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", domain.ErrUpstreamUnavailable, err)
	}
	return nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode/100 == 2 {
		return nil
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if resp.StatusCode == http.StatusNotFound {
		return domain.ErrNotFound
	}
	return fmt.Errorf("%w: non-2xx status %d: %s", domain.ErrUpstreamUnavailable, resp.StatusCode, strings.TrimSpace(string(raw)))
}

func parseEngineStatus(s string) (domain.Status, error) {
	status, err := domain.ParseStatus(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	return status, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
