// Package enrichment infers the industry and best-fitting ledger account of an
// unknown merchant.
//
// It runs in two stages. The detective asks a web-search provider what kind of
// business the merchant is and reduces the answer to an industry label. The
// accountant offers an LLM a menu of bookable expense and equity accounts,
// grouped into semantic buckets, and validates whatever comes back against that
// menu. Both providers are optional: without a search provider the detective
// uses a local vendor table, and without a completion provider the accountant
// uses deterministic keyword matching. Provider failures never escape Enrich.
package enrichment

import (
	"context"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"golang-bookkeeping-service/internal/models"
	"golang-bookkeeping-service/pkg/errors"
	"golang-bookkeeping-service/pkg/logger"
)

// Request describes the merchant to enrich. Only Name is required.
type Request struct {
	Name          string
	City          string
	Address       string
	CategoryClues []string
	Amount        decimal.Decimal
}

// Result is the account the accountant settled on
type Result struct {
	AccountID   string
	AccountCode string
	Confidence  int
	Reason      string
	Industry    Industry
	Strategy    Strategy
	Simulated   bool
}

// SearchResult is one hit returned by a search provider
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// SearchResponse is the answer of a search provider
type SearchResponse struct {
	Answer  string         `json:"answer"`
	Results []SearchResult `json:"results"`
}

// Searcher is a business-lookup provider
type Searcher interface {
	Search(ctx context.Context, query string) (*SearchResponse, error)
}

// Completer is an LLM completion provider
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// AccountSource supplies the chart of accounts
type AccountSource interface {
	ActiveAccountsByType(ctx context.Context, types ...models.AccountType) ([]*models.Account, error)
}

// Config holds enrichment settings
type Config struct {
	Timeout                 time.Duration   `json:"timeout" mapstructure:"timeout"`
	CapitalizationThreshold decimal.Decimal `json:"capitalization_threshold" mapstructure:"-"`
	RateLimitPerSecond      float64         `json:"rate_limit_per_second" mapstructure:"rate_limit_per_second"`
	CacheTTL                time.Duration   `json:"cache_ttl" mapstructure:"cache_ttl"`
}

// DefaultConfig returns the default enrichment configuration
func DefaultConfig() Config {
	return Config{
		Timeout:                 10 * time.Second,
		CapitalizationThreshold: decimal.NewFromInt(450),
		RateLimitPerSecond:      2,
		CacheTTL:                24 * time.Hour,
	}
}

// Validate checks the configuration values
func (c Config) Validate() error {
	if c.Timeout <= 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "enrichment.timeout", c.Timeout, nil)
	}
	if c.CapitalizationThreshold.IsNegative() {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "enrichment.capitalization_threshold", c.CapitalizationThreshold, nil)
	}
	if c.RateLimitPerSecond < 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "enrichment.rate_limit_per_second", c.RateLimitPerSecond, nil)
	}
	if c.CacheTTL < 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "enrichment.cache_ttl", c.CacheTTL, nil)
	}
	return nil
}

// Client runs the detective and accountant stages
type Client struct {
	accounts  AccountSource
	searcher  Searcher
	completer Completer
	config    Config
	limiter   *rate.Limiter
	memo      *cache.Cache
	logger    logger.Logger
}

// NewClient creates an enrichment client. searcher and completer may be nil,
// which selects the local simulation for that stage.
func NewClient(accounts AccountSource, searcher Searcher, completer Completer, config Config, log logger.Logger) *Client {
	c := &Client{
		accounts:  accounts,
		searcher:  searcher,
		completer: completer,
		config:    config,
		logger:    logger.OrGlobal(log, "enrichment"),
	}
	if config.RateLimitPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(config.RateLimitPerSecond), 1)
	}
	if config.CacheTTL > 0 {
		c.memo = cache.New(config.CacheTTL, 2*config.CacheTTL)
	}
	return c
}

// HasSearchProvider reports whether a search provider is configured
func (c *Client) HasSearchProvider() bool { return c.searcher != nil }

// HasCompletionProvider reports whether an LLM provider is configured
func (c *Client) HasCompletionProvider() bool { return c.completer != nil }

// Enrich infers an account for the merchant. It returns nil when no account
// could be chosen. Errors are only returned for chart-of-accounts lookups;
// provider failures fall back to local strategies.
func (c *Client) Enrich(ctx context.Context, req Request) (*Result, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, nil
	}

	finding := c.investigate(ctx, req)
	log := c.logger.WithFields(logger.Fields{
		"merchant":  req.Name,
		"industry":  finding.Industry,
		"simulated": finding.Simulated,
	})
	log.Debug("Detective finished")

	res, err := c.assign(ctx, finding, req.Amount)
	if err != nil {
		return nil, err
	}
	if res == nil {
		log.Debug("Accountant found no account")
		return nil, nil
	}
	res.Simulated = finding.Simulated
	log.WithFields(logger.Fields{
		"account_code": res.AccountCode,
		"confidence":   res.Confidence,
		"strategy":     res.Strategy,
	}).Debug("Accountant picked account")
	return res, nil
}

// withTimeout bounds one provider call
func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.config.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.config.Timeout)
}

func providerError(provider string, err error) *errors.BookkeepingError {
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.ProviderError(errors.CodeProviderTimeout, provider, err)
	}
	return errors.ProviderError(errors.CodeProviderUnavailable, provider, err)
}
