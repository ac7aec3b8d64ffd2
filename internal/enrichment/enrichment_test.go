package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang-bookkeeping-service/internal/models"
	"golang-bookkeeping-service/pkg/errors"
	"golang-bookkeeping-service/pkg/logger"
)

type fakeAccounts struct {
	accounts []*models.Account
	err      error
}

func (f *fakeAccounts) ActiveAccountsByType(ctx context.Context, types ...models.AccountType) ([]*models.Account, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*models.Account
	for _, a := range f.accounts {
		for _, t := range types {
			if a.Type == t && a.Active {
				out = append(out, a)
			}
		}
	}
	return out, nil
}

type fakeSearcher struct {
	mu       sync.Mutex
	calls    int
	queries  []string
	response *SearchResponse
	err      error
}

func (f *fakeSearcher) Search(ctx context.Context, query string) (*SearchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.queries = append(f.queries, query)
	return f.response, f.err
}

type fakeCompleter struct {
	answer  string
	err     error
	prompts []string
}

func (f *fakeCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.answer, f.err
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RateLimitPerSecond = 0
	return cfg
}

func newTestClient(searcher Searcher, completer Completer) *Client {
	return NewClient(&fakeAccounts{accounts: testChart()}, searcher, completer, testConfig(), logger.NewDiscardLogger())
}

func TestEnrichWithoutProvidersSimulates(t *testing.T) {
	c := newTestClient(nil, nil)
	assert.False(t, c.HasSearchProvider())
	assert.False(t, c.HasCompletionProvider())

	res, err := c.Enrich(context.Background(), Request{Name: "SHELL UTRECHT", Amount: decimal.NewFromInt(60)})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "4310", res.AccountCode)
	assert.Equal(t, IndustryFuel, res.Industry)
	assert.Equal(t, StrategyKeyword, res.Strategy)
	assert.True(t, res.Simulated)
}

func TestEnrichEmptyNameReturnsNothing(t *testing.T) {
	c := newTestClient(nil, nil)
	res, err := c.Enrich(context.Background(), Request{Name: "   "})
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestEnrichUsesSearchAndCompletion(t *testing.T) {
	searcher := &fakeSearcher{response: &SearchResponse{Answer: "De Kas is a restaurant in Amsterdam."}}
	completer := &fakeCompleter{answer: `{"account_id": "` + testAccountID("4520") + `", "confidence": 88, "reasoning": "business lunch"}`}
	c := newTestClient(searcher, completer)

	res, err := c.Enrich(context.Background(), Request{Name: "De Kas", City: "Amsterdam", Amount: decimal.NewFromInt(85)})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "4520", res.AccountCode)
	assert.Equal(t, 88, res.Confidence)
	assert.Equal(t, StrategyJSON, res.Strategy)
	assert.Equal(t, IndustryFood, res.Industry)
	assert.False(t, res.Simulated)

	require.Len(t, searcher.queries, 1)
	assert.Equal(t, `What type of business is "De Kas" located in Amsterdam in the Netherlands?`, searcher.queries[0])
	require.Len(t, completer.prompts, 1)
	assert.Contains(t, completer.prompts[0], "Merchant: De Kas")
	assert.Contains(t, completer.prompts[0], "restaurant")
}

func TestEnrichCachesSearchAnswers(t *testing.T) {
	searcher := &fakeSearcher{response: &SearchResponse{Answer: "A gas station."}}
	c := newTestClient(searcher, nil)

	for i := 0; i < 3; i++ {
		res, err := c.Enrich(context.Background(), Request{Name: "Tankpunt Noord"})
		require.NoError(t, err)
		require.NotNil(t, res)
		assert.Equal(t, "4310", res.AccountCode)
	}
	assert.Equal(t, 1, searcher.calls)
}

func TestEnrichFallsBackWhenProvidersFail(t *testing.T) {
	searcher := &fakeSearcher{err: fmt.Errorf("connection refused")}
	completer := &fakeCompleter{err: context.DeadlineExceeded}
	c := newTestClient(searcher, completer)

	res, err := c.Enrich(context.Background(), Request{Name: "Q-Park Centrum"})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Simulated)
	assert.Equal(t, IndustryParking, res.Industry)
	assert.Equal(t, StrategyKeyword, res.Strategy)
}

func TestEnrichDiscardsAnswersOffTheMenu(t *testing.T) {
	completer := &fakeCompleter{answer: `{"account_id": "` + testAccountID("4210") + `", "account_code": "4210", "confidence": 99}`}
	c := newTestClient(nil, completer)

	res, err := c.Enrich(context.Background(), Request{Name: "KPN"})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "4410", res.AccountCode)
	assert.Equal(t, StrategyKeyword, res.Strategy)
}

func TestEnrichClueOverride(t *testing.T) {
	c := newTestClient(nil, nil)
	res, err := c.Enrich(context.Background(), Request{Name: "SHELL A2", CategoryClues: []string{"restaurant"}})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, IndustryFood, res.Industry)
	assert.Equal(t, "4520", res.AccountCode)
}

func TestEnrichPropagatesAccountLookupErrors(t *testing.T) {
	c := NewClient(&fakeAccounts{err: fmt.Errorf("disk I/O error")}, nil, nil, testConfig(), logger.NewDiscardLogger())
	_, err := c.Enrich(context.Background(), Request{Name: "SHELL"})
	require.Error(t, err)
}

func TestProviderErrorClassifiesTimeouts(t *testing.T) {
	err := providerError("search provider", fmt.Errorf("wrapped: %w", context.DeadlineExceeded))
	assert.Equal(t, errors.CodeProviderTimeout, err.Code)

	err = providerError("search provider", fmt.Errorf("503"))
	assert.Equal(t, errors.CodeProviderUnavailable, err.Code)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Timeout = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.CapitalizationThreshold = decimal.NewFromInt(-1)
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.RateLimitPerSecond = -1
	assert.Error(t, cfg.Validate())
}

func TestTavilySearcher(t *testing.T) {
	var got tavilyRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"answer": "A bakery.", "results": [{"title": "Bakkerij Jansen", "url": "https://example.nl", "content": "Fresh bread"}]}`))
	}))
	defer srv.Close()

	s := NewTavilySearcher("secret", srv.URL, srv.Client())
	resp, err := s.Search(context.Background(), "What type of business is \"Jansen\" in the Netherlands?")
	require.NoError(t, err)
	assert.Equal(t, "A bakery.", resp.Answer)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "Bakkerij Jansen", resp.Results[0].Title)
	assert.True(t, got.IncludeAnswer)
	assert.Equal(t, 5, got.MaxResults)
	assert.Contains(t, got.Query, "Jansen")
}

func TestTavilySearcherStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid api key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewTavilySearcher("bad", srv.URL, srv.Client()).Search(context.Background(), "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestTavilySearcherHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewTavilySearcher("k", srv.URL, srv.Client()).Search(ctx, "q")
	require.Error(t, err)
}
