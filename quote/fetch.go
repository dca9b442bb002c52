package quote

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/cyberx-ai/supplymesh/core"
	"github.com/cyberx-ai/supplymesh/logging"
)

// DefaultFetchTimeout bounds one remote quote round-trip, stream included.
const DefaultFetchTimeout = 120 * time.Second

// Fetcher reads remote supplier quoting streams.
type Fetcher struct {
	httpClient *http.Client
	timeout    time.Duration
	logger     logging.Logger
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithFetchTimeout overrides the per-fetch deadline.
func WithFetchTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) { f.timeout = d }
}

// WithFetchLogger sets the diagnostics logger.
func WithFetchLogger(logger logging.Logger) FetcherOption {
	return func(f *Fetcher) { f.logger = logger }
}

// NewFetcher creates a Fetcher.
func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		httpClient: &http.Client{},
		timeout:    DefaultFetchTimeout,
		logger:     logging.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// streamFrame covers the two terminal payload shapes suppliers emit: the
// flat progress frame and the enveloped task-result form.
type streamFrame struct {
	IsTaskComplete bool   `json:"is_task_complete"`
	Content        string `json:"content"`
	Result         *struct {
		Status struct {
			State string `json:"state"`
		} `json:"status"`
		Artifacts []struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"artifacts"`
	} `json:"result"`
}

// Fetch posts the demand query to a supplier endpoint and reads the
// server-sent-event stream to completion, returning the text of the last
// terminal frame. A stream that ends without a terminal frame is an
// ExternalCallFailure.
func (f *Fetcher) Fetch(ctx context.Context, endpoint, contextID, query string) (string, error) {
	payload := map[string]any{
		"params": map[string]any{
			"message": map[string]any{
				"contextId": contextID,
				"parts":     []map[string]any{{"text": query}},
			},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", core.NewFailure(core.FailureExternalCall, "encode quote request: %v", err)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", core.NewFailure(core.FailureExternalCall, "build quote request for %s: %v", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || fetchCtx.Err() == context.DeadlineExceeded {
			return "", core.NewFailure(core.FailureTimeout, "quote fetch from %s timed out after %s", endpoint, f.timeout)
		}
		return "", core.NewFailure(core.FailureExternalCall, "quote fetch from %s: %v", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", core.NewFailure(core.FailureExternalCall, "quote fetch from %s: status %d", endpoint, resp.StatusCode)
	}

	var finalText string
	var sawTerminal bool
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		var frame streamFrame
		if err := json.Unmarshal([]byte(data), &frame); err != nil {
			f.logger.Warn("skipping undecodable stream frame", "endpoint", endpoint)
			continue
		}
		if frame.IsTaskComplete {
			sawTerminal = true
			finalText = frame.Content
			continue
		}
		if frame.Result != nil && frame.Result.Status.State == "completed" {
			sawTerminal = true
			if len(frame.Result.Artifacts) > 0 && len(frame.Result.Artifacts[0].Parts) > 0 {
				finalText = frame.Result.Artifacts[0].Parts[0].Text
			}
		}
	}
	if err := scanner.Err(); err != nil {
		if fetchCtx.Err() == context.DeadlineExceeded {
			return "", core.NewFailure(core.FailureTimeout, "quote fetch from %s timed out after %s", endpoint, f.timeout)
		}
		return "", core.NewFailure(core.FailureExternalCall, "read quote stream from %s: %v", endpoint, err)
	}
	if !sawTerminal {
		return "", core.NewFailure(core.FailureExternalCall, "quote stream from %s ended without a terminal frame", endpoint)
	}
	return finalText, nil
}
