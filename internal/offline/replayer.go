package offline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ReplayResult is the server's answer to a replayed item.
type ReplayResult struct {
	StatusCode int
	Body       json.RawMessage
}

// Replayer sends a queued item to the server.
type Replayer interface {
	Replay(ctx context.Context, item QueueItem) (*ReplayResult, error)
}

// Prober reports whether the server is reachable.
type Prober interface {
	Probe(ctx context.Context) bool
}

// HTTPReplayer replays items against BaseURL with a bearer token.
type HTTPReplayer struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewHTTPReplayer(baseURL, token string, timeout time.Duration) *HTTPReplayer {
	return &HTTPReplayer{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		Client:  &http.Client{Timeout: timeout},
	}
}

func (r *HTTPReplayer) Replay(ctx context.Context, item QueueItem) (*ReplayResult, error) {
	var body io.Reader
	if len(item.Data) > 0 && item.Method != http.MethodGet {
		body = bytes.NewReader(item.Data)
	}
	req, err := http.NewRequestWithContext(ctx, item.Method, r.BaseURL+item.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if r.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.Token)
	}

	resp, err := r.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	result := &ReplayResult{StatusCode: resp.StatusCode}
	if json.Valid(raw) {
		result.Body = raw
	}
	return result, nil
}

// Probe calls the health endpoint. Any response below 500 counts as
// reachable.
func (r *HTTPReplayer) Probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.BaseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := r.Client.Do(req)
	if err != nil {
		return false
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}
