package enrichment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// DefaultSearchEndpoint is the Tavily search API
const DefaultSearchEndpoint = "https://api.tavily.com/search"

const maxErrorBody = 512

// TavilySearcher is a Searcher backed by the Tavily web-search API
type TavilySearcher struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

type tavilyRequest struct {
	Query         string `json:"query"`
	SearchDepth   string `json:"search_depth"`
	IncludeAnswer bool   `json:"include_answer"`
	MaxResults    int    `json:"max_results"`
}

// NewTavilySearcher creates a searcher. An empty endpoint selects the public
// API and a nil client selects http.DefaultClient.
func NewTavilySearcher(apiKey, endpoint string, client *http.Client) *TavilySearcher {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		endpoint = DefaultSearchEndpoint
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &TavilySearcher{
		apiKey:   strings.TrimSpace(apiKey),
		endpoint: endpoint,
		client:   client,
	}
}

// Search asks the provider one question. The context bounds the whole call.
func (s *TavilySearcher) Search(ctx context.Context, query string) (*SearchResponse, error) {
	body, err := json.Marshal(tavilyRequest{
		Query:         query,
		SearchDepth:   "basic",
		IncludeAnswer: true,
		MaxResults:    5,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("tavily: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("tavily: decode response: %w", err)
	}
	return &out, nil
}
