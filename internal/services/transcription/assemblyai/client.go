// Package assemblyai is a client for the AssemblyAI v2 transcription API.
package assemblyai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"jumpcut/internal/domain"
	"jumpcut/internal/domain/ports"
	"jumpcut/internal/metrics"
)

const (
	defaultBaseURL = "https://api.assemblyai.com"
	queryTimeout   = 30 * time.Second
	maxErrorBody   = 512

	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	poll    PollPolicy
	retry   RetryConfig
	logger  *slog.Logger
}

type Config struct {
	APIKey  string
	BaseURL string
	// Client defaults to an instrumented client without an overall timeout;
	// uploads of large media are bounded by the caller's context instead.
	Client *http.Client
	Poll   PollPolicy
	Retry  RetryConfig
	Logger *slog.Logger
}

// Transcript is the subset of the transcript resource the service needs.
type Transcript struct {
	ID     string        `json:"id"`
	Status string        `json:"status"`
	Error  string        `json:"error,omitempty"`
	Words  []domain.Word `json:"words,omitempty"`
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	poll := cfg.Poll
	if poll == (PollPolicy{}) {
		poll = DefaultPollPolicy()
	}
	retry := cfg.Retry
	if retry.MaxAttempts == 0 {
		retry = DefaultRetryConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		apiKey:  strings.TrimSpace(cfg.APIKey),
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		poll:    poll.normalized(),
		retry:   retry,
		logger:  logger,
	}
}

// Upload streams media to the upload endpoint and returns the hosted URL.
func (c *Client) Upload(ctx context.Context, media io.Reader) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/upload", media)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrUploadFailed, err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	var body struct {
		UploadURL string `json:"upload_url"`
	}
	if err := c.do(req, &body); err != nil {
		return "", domain.WithReason(domain.ErrUploadFailed, err.Error())
	}
	if strings.TrimSpace(body.UploadURL) == "" {
		return "", domain.WithReason(domain.ErrUploadFailed, "response has no upload_url")
	}
	return body.UploadURL, nil
}

// CreateTranscript starts transcription of previously uploaded media.
func (c *Client) CreateTranscript(ctx context.Context, uploadURL string) (ports.TranscriptID, error) {
	payload, err := json.Marshal(map[string]string{"audio_url": uploadURL})
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrTranscriptionCreateFailed, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/transcript", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrTranscriptionCreateFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	var body Transcript
	if err := c.do(req, &body); err != nil {
		return "", domain.WithReason(domain.ErrTranscriptionCreateFailed, err.Error())
	}
	if strings.TrimSpace(body.ID) == "" {
		return "", domain.WithReason(domain.ErrTranscriptionCreateFailed, "response has no id")
	}
	return ports.TranscriptID(body.ID), nil
}

// Submit uploads media and creates a transcript for it.
func (c *Client) Submit(ctx context.Context, media io.Reader) (ports.TranscriptID, error) {
	uploadURL, err := c.Upload(ctx, media)
	if err != nil {
		return "", err
	}
	return c.CreateTranscript(ctx, uploadURL)
}

// Status fetches the current transcript resource. Transient failures are
// retried; anything else surfaces as domain.ErrQueryFailed.
func (c *Client) Status(ctx context.Context, id ports.TranscriptID) (Transcript, error) {
	endpoint := c.baseURL + "/v2/transcript/" + url.PathEscape(string(id))
	var body Transcript
	err := RetryWithBackoff(ctx, c.retry, func() error {
		reqCtx, cancel := context.WithTimeout(ctx, queryTimeout)
		defer cancel()
		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}
		body = Transcript{}
		return c.do(req, &body)
	})
	if err != nil {
		return Transcript{}, domain.WithReason(domain.ErrQueryFailed, err.Error())
	}
	if strings.TrimSpace(body.Status) == "" {
		return Transcript{}, domain.WithReason(domain.ErrQueryFailed, "response has no status")
	}
	return body, nil
}

// PollUntilDone queries the transcript until it completes or fails, waiting
// according to the client's PollPolicy between queries.
func (c *Client) PollUntilDone(ctx context.Context, id ports.TranscriptID, onStatus func(status string)) ([]domain.Word, error) {
	policy := c.poll
	pollCtx := ctx
	if policy.Timeout > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeoutCause(ctx, policy.Timeout, domain.ErrPollTimeout)
		defer cancel()
	}

	interval := policy.Interval
	for {
		tr, err := c.Status(pollCtx, id)
		metrics.TranscriptPollsTotal.Inc()
		if err != nil {
			if pollCtx.Err() != nil {
				return nil, c.pollAborted(pollCtx, policy)
			}
			return nil, err
		}
		if onStatus != nil {
			onStatus(tr.Status)
		}

		switch tr.Status {
		case StatusCompleted:
			return tr.Words, nil
		case StatusError:
			reason := strings.TrimSpace(tr.Error)
			if reason == "" {
				reason = "unknown error"
			}
			return nil, domain.WithReason(domain.ErrTranscriptionFailed, reason)
		}

		c.logger.Debug("transcript pending",
			slog.String("transcriptId", string(id)),
			slog.String("status", tr.Status),
			slog.Duration("wait", interval),
		)
		timer := time.NewTimer(interval)
		select {
		case <-pollCtx.Done():
			timer.Stop()
			return nil, c.pollAborted(pollCtx, policy)
		case <-timer.C:
		}
		interval = policy.next(interval)
	}
}

func (c *Client) pollAborted(pollCtx context.Context, policy PollPolicy) error {
	if errors.Is(context.Cause(pollCtx), domain.ErrPollTimeout) {
		return domain.WithReason(domain.ErrPollTimeout, "no terminal status after "+policy.Timeout.String())
	}
	return pollCtx.Err()
}

func (c *Client) do(req *http.Request, out interface{}) error {
	req.Header.Set("authorization", c.apiKey)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return newStatusError(resp, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
