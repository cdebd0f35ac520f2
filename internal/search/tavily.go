package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultTavilyURL is the Tavily search endpoint.
const DefaultTavilyURL = "https://api.tavily.com/search"

// Tavily implements Searcher with the Tavily REST API.
type Tavily struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
}

// NewTavily constructs a Tavily client. endpoint may be empty.
func NewTavily(apiKey, endpoint string, timeout time.Duration) (*Tavily, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("TAVILY_API_KEY is required")
	}
	if strings.TrimSpace(endpoint) == "" {
		endpoint = DefaultTavilyURL
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Tavily{
		apiKey:     apiKey,
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type tavilyRequest struct {
	APIKey      string `json:"api_key"`
	Query       string `json:"query"`
	MaxResults  int    `json:"max_results"`
	SearchDepth string `json:"search_depth"`
}

type tavilyResponse struct {
	Results []struct {
		URL   string  `json:"url"`
		Title string  `json:"title"`
		Score float64 `json:"score"`
	} `json:"results"`
	Detail any `json:"detail,omitempty"`
}

// StatusError is a non-2xx search response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("search http status %d: %s", e.StatusCode, e.Body)
}

// HTTPStatus reports the response status for error classifiers.
func (e *StatusError) HTTPStatus() int {
	return e.StatusCode
}

// ProviderMessage is the response body.
func (e *StatusError) ProviderMessage() string {
	return e.Body
}

// Search runs one query. Duplicate and empty URLs are dropped.
func (t *Tavily) Search(ctx context.Context, query string, maxResults int, depth Depth) ([]string, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("search query is empty")
	}
	if maxResults <= 0 {
		maxResults = 5
	}
	if depth == "" {
		depth = DepthAdvanced
	}
	payload, err := json.Marshal(tavilyRequest{
		APIKey:      t.apiKey,
		Query:       query,
		MaxResults:  maxResults,
		SearchDepth: string(depth),
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var parsed tavilyResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("search response parse: %w", err)
	}

	seen := make(map[string]struct{}, len(parsed.Results))
	urls := make([]string, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		u := strings.TrimSpace(r.URL)
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
		if len(urls) == maxResults {
			break
		}
	}
	return urls, nil
}

var _ Searcher = (*Tavily)(nil)
