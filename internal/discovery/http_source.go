package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/BidWorks/Outreach/internal/models"
)

// HTTPSourceConfig configures an HTTP-backed provider pool adapter.
type HTTPSourceConfig struct {
	BaseURL    string
	Path       string
	Timeout    time.Duration
	Retries    int
	HTTPClient *http.Client
}

// HTTPSource queries an external provider registry or search service. The
// remote contract is a POST of {category, center, radius, exclude} answered
// with {candidates: [...]}.
type HTTPSource struct {
	baseURL string
	path    string
	client  *http.Client
	timeout time.Duration
	retries int
}

func NewHTTPSource(cfg HTTPSourceConfig) (*HTTPSource, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("discovery source base url required")
	}
	path := cfg.Path
	if path == "" {
		path = "/providers/query"
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	retries := cfg.Retries
	if retries < 0 {
		retries = 0
	}
	return &HTTPSource{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		path:    path,
		client:  client,
		timeout: timeout,
		retries: retries,
	}, nil
}

type queryPayload struct {
	Category string          `json:"category"`
	Center   models.Location `json:"center"`
	Radius   int             `json:"radius"`
	Exclude  []string        `json:"exclude,omitempty"`
}

type queryResponse struct {
	Candidates []models.Candidate `json:"candidates"`
}

func (c *HTTPSource) Query(ctx context.Context, q Query, radius int) ([]models.Candidate, error) {
	payload := queryPayload{
		Category: q.Category,
		Center:   q.Center,
		Radius:   radius,
	}
	for k := range q.Exclude {
		payload.Exclude = append(payload.Exclude, k)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("discovery marshal query: %w", err)
	}

	attempts := c.retries + 1
	var lastErr error
	for i := 0; i < attempts; i++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
		httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+c.path, bytes.NewReader(body))
		if err != nil {
			cancel()
			return nil, fmt.Errorf("discovery build request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		resp, err := c.client.Do(httpReq)
		cancel()
		if err != nil {
			lastErr = err
		} else {
			found, parseErr := decodeCandidates(resp)
			resp.Body.Close()
			if parseErr == nil {
				return found, nil
			}
			lastErr = parseErr
		}
		if i < attempts-1 {
			time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
		}
	}
	return nil, fmt.Errorf("discovery query failed: %w", lastErr)
}

func decodeCandidates(resp *http.Response) ([]models.Candidate, error) {
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("discovery source unavailable: %s", resp.Status)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discovery source rejected query: %s", resp.Status)
	}
	var out queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("discovery decode response: %w", err)
	}
	return out.Candidates, nil
}
