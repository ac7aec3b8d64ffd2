// Package config loads the bookkeeper settings from viper and builds the
// components the commands run on.
package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"golang-bookkeeping-service/internal/enrichment"
	"golang-bookkeeping-service/internal/learning"
	"golang-bookkeeping-service/internal/matcher"
	"golang-bookkeeping-service/internal/posting"
	"golang-bookkeeping-service/internal/reconciler"
	"golang-bookkeeping-service/internal/relations"
	"golang-bookkeeping-service/internal/reporter"
	"golang-bookkeeping-service/internal/rules"
	"golang-bookkeeping-service/internal/store"
	"golang-bookkeeping-service/pkg/errors"
	"golang-bookkeeping-service/pkg/logger"
)

// DefaultDatabasePath is used when database.path is not set
const DefaultDatabasePath = "bookkeeper.db"

// AppConfig is the full application configuration
type AppConfig struct {
	Database   DatabaseConfig         `mapstructure:"database"`
	Log        LogConfig              `mapstructure:"log"`
	Matching   matcher.MatchingConfig `mapstructure:"matching"`
	Enrichment EnrichmentConfig       `mapstructure:"enrichment"`
	Batch      BatchConfig            `mapstructure:"batch"`
	Learning   LearningConfig         `mapstructure:"learning"`
}

// DatabaseConfig locates the sqlite file
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LogConfig selects log level and format
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// EnrichmentConfig holds provider credentials and limits. Empty keys select
// the local simulation for that provider.
type EnrichmentConfig struct {
	SearchAPIKey            string        `mapstructure:"search_api_key"`
	SearchEndpoint          string        `mapstructure:"search_endpoint"`
	LLMAPIKey               string        `mapstructure:"llm_api_key"`
	LLMModel                string        `mapstructure:"llm_model"`
	Timeout                 time.Duration `mapstructure:"timeout"`
	CapitalizationThreshold float64       `mapstructure:"capitalization_threshold"`
	RateLimitPerSecond      float64       `mapstructure:"rate_limit_per_second"`
	CacheTTL                time.Duration `mapstructure:"cache_ttl"`
}

// BatchConfig controls batch runs
type BatchConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// LearningConfig controls rule learning
type LearningConfig struct {
	MinCounterpartyLength int `mapstructure:"min_counterparty_length"`
}

// SetDefaults registers every key with its default value, which also makes
// the keys visible to AutomaticEnv during Unmarshal.
func SetDefaults(v *viper.Viper) {
	m := matcher.DefaultMatchingConfig()
	e := enrichment.DefaultConfig()
	threshold, _ := e.CapitalizationThreshold.Float64()

	v.SetDefault("database.path", DefaultDatabasePath)
	v.SetDefault("log.level", string(logger.InfoLevel))
	v.SetDefault("log.format", string(logger.TextFormat))
	v.SetDefault("matching.auto_book_threshold", m.AutoBookThreshold)
	v.SetDefault("matching.invoice_amount_tolerance", m.InvoiceAmountTolerance)
	v.SetDefault("matching.invoice_window_days", m.InvoiceWindowDays)
	v.SetDefault("matching.min_counterparty_length", m.MinCounterpartyLength)
	v.SetDefault("matching.auto_create_relations", m.AutoCreateRelations)
	v.SetDefault("enrichment.search_api_key", "")
	v.SetDefault("enrichment.search_endpoint", enrichment.DefaultSearchEndpoint)
	v.SetDefault("enrichment.llm_api_key", "")
	v.SetDefault("enrichment.llm_model", enrichment.DefaultModel)
	v.SetDefault("enrichment.timeout", e.Timeout)
	v.SetDefault("enrichment.capitalization_threshold", threshold)
	v.SetDefault("enrichment.rate_limit_per_second", e.RateLimitPerSecond)
	v.SetDefault("enrichment.cache_ttl", e.CacheTTL)
	v.SetDefault("batch.concurrency", reconciler.DefaultConcurrency)
	v.SetDefault("learning.min_counterparty_length", learning.DefaultMinCounterpartyLength)
}

// Load reads the configuration from v and validates it. The conventional
// TAVILY_API_KEY and OPENAI_API_KEY variables fill provider keys that are
// not set through the BOOKKEEPER_ prefix.
func Load(v *viper.Viper) (*AppConfig, error) {
	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "config", nil, err).
			WithSuggestion("Check the syntax and value types in the config file")
	}
	if cfg.Enrichment.SearchAPIKey == "" {
		cfg.Enrichment.SearchAPIKey = os.Getenv("TAVILY_API_KEY")
	}
	if cfg.Enrichment.LLMAPIKey == "" {
		cfg.Enrichment.LLMAPIKey = os.Getenv("OPENAI_API_KEY")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every section
func (c *AppConfig) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "database.path", c.Database.Path, nil)
	}
	if err := c.LoggerConfig(false).Validate(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "log", c.Log, err)
	}
	if err := c.Matching.Validate(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "matching", c.Matching.String(), err)
	}
	if err := c.EnrichmentSettings().Validate(); err != nil {
		return err
	}
	if c.Batch.Concurrency < 1 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "batch.concurrency", c.Batch.Concurrency,
			fmt.Errorf("concurrency must be at least 1"))
	}
	if c.Learning.MinCounterpartyLength < 1 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "learning.min_counterparty_length", c.Learning.MinCounterpartyLength,
			fmt.Errorf("minimum length must be at least 1"))
	}
	return nil
}

// LoggerConfig converts the log section. verbose forces debug level.
func (c *AppConfig) LoggerConfig(verbose bool) *logger.Config {
	cfg := logger.DefaultConfig()
	if c.Log.Level != "" {
		cfg.Level = logger.Level(strings.ToLower(c.Log.Level))
	}
	if c.Log.Format != "" {
		cfg.Format = logger.Format(strings.ToLower(c.Log.Format))
	}
	if verbose {
		cfg.Level = logger.DebugLevel
	}
	cfg.Output = logger.StderrOutput
	return cfg
}

// EnrichmentSettings converts the enrichment section
func (c *AppConfig) EnrichmentSettings() enrichment.Config {
	return enrichment.Config{
		Timeout:                 c.Enrichment.Timeout,
		CapitalizationThreshold: decimal.NewFromFloat(c.Enrichment.CapitalizationThreshold),
		RateLimitPerSecond:      c.Enrichment.RateLimitPerSecond,
		CacheTTL:                c.Enrichment.CacheTTL,
	}
}

// BatchSettings converts the batch section
func (c *AppConfig) BatchSettings() *reconciler.Config {
	cfg := reconciler.DefaultConfig()
	cfg.Concurrency = c.Batch.Concurrency
	return cfg
}

// Services bundles the components a command works with
type Services struct {
	Config       *AppConfig
	Store        *store.Store
	Rules        *rules.Accessor
	Enricher     *enrichment.Client
	Resolver     *matcher.Resolver
	Poster       *posting.Poster
	Learner      *learning.Writer
	Orchestrator *reconciler.Orchestrator
	Logger       logger.Logger
}

// Close releases the store
func (s *Services) Close() error {
	return s.Store.Close()
}

// OpenStore opens the database and seeds the default chart of accounts
func OpenStore(ctx context.Context, cfg *AppConfig, log logger.Logger) (*store.Store, error) {
	s, err := store.Open(cfg.Database.Path, log)
	if err != nil {
		return nil, err
	}
	if err := s.SeedDefaults(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// NewEnrichmentClient creates the enrichment client with real providers for
// every configured key.
func NewEnrichmentClient(cfg *AppConfig, accounts enrichment.AccountSource, log logger.Logger) *enrichment.Client {
	var searcher enrichment.Searcher
	if key := strings.TrimSpace(cfg.Enrichment.SearchAPIKey); key != "" {
		searcher = enrichment.NewTavilySearcher(key, cfg.Enrichment.SearchEndpoint, nil)
	}
	var completer enrichment.Completer
	if key := strings.TrimSpace(cfg.Enrichment.LLMAPIKey); key != "" {
		completer = enrichment.NewOpenAICompleter(key, cfg.Enrichment.LLMModel)
	}

	log.WithFields(logger.Fields{
		"search_provider":     searcher != nil,
		"completion_provider": completer != nil,
	}).Debug("Configured enrichment providers")

	return enrichment.NewClient(accounts, searcher, completer, cfg.EnrichmentSettings(), log)
}

// NewServices opens the store and wires the full pipeline
func NewServices(ctx context.Context, cfg *AppConfig, log logger.Logger) (*Services, error) {
	s, err := OpenStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	ruleAccessor := rules.NewAccessor(s, log)
	enricher := NewEnrichmentClient(cfg, s, log)
	relationMatcher := relations.NewMatcher(s, enricher, log)
	resolver := matcher.NewResolver(s, ruleAccessor, relationMatcher, enricher, cfg.Matching.Clone(), log)
	poster := posting.NewPoster(s, log)
	learner := learning.NewWriter(ruleAccessor, cfg.Learning.MinCounterpartyLength, log)

	orchestrator, err := reconciler.NewOrchestrator(s, resolver, poster, learner, cfg.BatchSettings(), log)
	if err != nil {
		s.Close()
		return nil, err
	}

	return &Services{
		Config:       cfg,
		Store:        s,
		Rules:        ruleAccessor,
		Enricher:     enricher,
		Resolver:     resolver,
		Poster:       poster,
		Learner:      learner,
		Orchestrator: orchestrator,
		Logger:       log,
	}, nil
}

// CreateReportConfig creates a report configuration for the output format
func CreateReportConfig(format string, includeBooked bool) (*reporter.ReportConfig, error) {
	config := reporter.DefaultReportConfig()
	config.Format = reporter.OutputFormat(strings.ToLower(strings.TrimSpace(format)))
	config.IncludeBooked = includeBooked
	if config.Format == reporter.FormatCSV {
		config.CSVHeaders = true
		config.CSVDelimiter = ','
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "output-format", format, err).
			WithSuggestion("Valid formats: console, json, csv")
	}
	return config, nil
}
