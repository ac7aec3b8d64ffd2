package config

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"

	"golang-bookkeeping-service/internal/matcher"
	"golang-bookkeeping-service/internal/reconciler"
	"golang-bookkeeping-service/internal/reporter"
	"golang-bookkeeping-service/pkg/errors"
	"golang-bookkeeping-service/pkg/logger"
)

func newViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	v.Set("database.path", filepath.Join(t.TempDir(), "books.db"))
	return v
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TAVILY_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	cfg, err := Load(newViper(t))
	if err != nil {
		t.Fatalf("failed to load defaults: %v", err)
	}

	defaults := matcher.DefaultMatchingConfig()
	if cfg.Matching.AutoBookThreshold != defaults.AutoBookThreshold {
		t.Errorf("expected threshold %d, got %d", defaults.AutoBookThreshold, cfg.Matching.AutoBookThreshold)
	}
	if cfg.Matching.InvoiceWindowDays != defaults.InvoiceWindowDays {
		t.Errorf("expected window %d, got %d", defaults.InvoiceWindowDays, cfg.Matching.InvoiceWindowDays)
	}
	if cfg.Batch.Concurrency != reconciler.DefaultConcurrency {
		t.Errorf("expected concurrency %d, got %d", reconciler.DefaultConcurrency, cfg.Batch.Concurrency)
	}
	if cfg.Enrichment.Timeout <= 0 {
		t.Errorf("expected a positive enrichment timeout, got %v", cfg.Enrichment.Timeout)
	}
	if cfg.Enrichment.SearchAPIKey != "" || cfg.Enrichment.LLMAPIKey != "" {
		t.Errorf("expected no provider keys by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	v := newViper(t)
	v.Set("matching.auto_book_threshold", 80)
	v.Set("enrichment.timeout", "3s")
	v.Set("batch.concurrency", 2)

	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Matching.AutoBookThreshold != 80 {
		t.Errorf("expected threshold 80, got %d", cfg.Matching.AutoBookThreshold)
	}
	if cfg.Enrichment.Timeout != 3*time.Second {
		t.Errorf("expected 3s timeout, got %v", cfg.Enrichment.Timeout)
	}
	if cfg.BatchSettings().Concurrency != 2 {
		t.Errorf("expected batch concurrency 2, got %d", cfg.BatchSettings().Concurrency)
	}
}

func TestLoadProviderKeysFromEnvironment(t *testing.T) {
	t.Setenv("TAVILY_API_KEY", "tvly-test")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load(newViper(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Enrichment.SearchAPIKey != "tvly-test" || cfg.Enrichment.LLMAPIKey != "sk-test" {
		t.Errorf("expected keys from the environment, got %q and %q",
			cfg.Enrichment.SearchAPIKey, cfg.Enrichment.LLMAPIKey)
	}
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  interface{}
	}{
		{"empty database path", "database.path", ""},
		{"unknown log level", "log.level", "chatty"},
		{"threshold above 100", "matching.auto_book_threshold", 150},
		{"zero concurrency", "batch.concurrency", 0},
		{"zero learning length", "learning.min_counterparty_length", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newViper(t)
			v.Set(tt.key, tt.val)

			_, err := Load(v)
			if !errors.IsCategory(err, errors.CategoryConfiguration) {
				t.Errorf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestLoggerConfig(t *testing.T) {
	cfg := &AppConfig{Log: LogConfig{Level: "WARN", Format: "json"}}

	lc := cfg.LoggerConfig(false)
	if lc.Level != logger.WarnLevel || lc.Format != logger.JSONFormat {
		t.Errorf("unexpected logger config: %+v", lc)
	}
	if lc.Output != logger.StderrOutput {
		t.Errorf("logs must go to stderr, got %s", lc.Output)
	}
	if cfg.LoggerConfig(true).Level != logger.DebugLevel {
		t.Errorf("verbose must force debug level")
	}
}

func TestCreateReportConfig(t *testing.T) {
	cfg, err := CreateReportConfig(" JSON ", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Format != reporter.FormatJSON || !cfg.IncludeBooked {
		t.Errorf("unexpected report config: %+v", cfg)
	}

	if _, err := CreateReportConfig("xml", false); !errors.IsCategory(err, errors.CategoryConfiguration) {
		t.Errorf("expected configuration error for xml, got %v", err)
	}
}

func TestNewServices(t *testing.T) {
	t.Setenv("TAVILY_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	cfg, err := Load(newViper(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := context.Background()
	svc, err := NewServices(ctx, cfg, logger.NewDiscardLogger())
	if err != nil {
		t.Fatalf("failed to wire services: %v", err)
	}
	defer svc.Close()

	acc, err := svc.Store.AccountByCode(ctx, "1100")
	if err != nil || acc == nil {
		t.Fatalf("expected the seeded bank account, got %v %v", acc, err)
	}
	if svc.Orchestrator == nil || svc.Resolver == nil || svc.Poster == nil {
		t.Errorf("expected a fully wired pipeline: %+v", svc)
	}
}
