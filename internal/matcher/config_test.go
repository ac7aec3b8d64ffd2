package matcher

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestDefaultMatchingConfig(t *testing.T) {
	config := DefaultMatchingConfig()

	if config.AutoBookThreshold != 70 {
		t.Errorf("Expected auto-book threshold 70, got %d", config.AutoBookThreshold)
	}
	if !config.InvoiceTolerance().Equal(decimal.RequireFromString("0.02")) {
		t.Errorf("Expected invoice tolerance 0.02, got %s", config.InvoiceTolerance())
	}
	if config.InvoiceWindowDays != 7 {
		t.Errorf("Expected invoice window 7, got %d", config.InvoiceWindowDays)
	}
	if config.AutoCreateRelations {
		t.Error("Expected relation auto-creation to be off by default")
	}
	if err := config.Validate(); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}
}

func TestMatchingConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*MatchingConfig)
	}{
		{"threshold below zero", func(c *MatchingConfig) { c.AutoBookThreshold = -1 }},
		{"threshold above 100", func(c *MatchingConfig) { c.AutoBookThreshold = 101 }},
		{"negative tolerance", func(c *MatchingConfig) { c.InvoiceAmountTolerance = -0.01 }},
		{"negative window", func(c *MatchingConfig) { c.InvoiceWindowDays = -1 }},
		{"zero counterparty length", func(c *MatchingConfig) { c.MinCounterpartyLength = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultMatchingConfig()
			tt.modify(config)
			if err := config.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestMatchingConfigClone(t *testing.T) {
	original := DefaultMatchingConfig()
	clone := original.Clone()
	clone.AutoBookThreshold = 90

	if original.AutoBookThreshold != 70 {
		t.Error("Modifying the clone changed the original")
	}
	if (*MatchingConfig)(nil).Clone() != nil {
		t.Error("Clone of nil should be nil")
	}
}

func TestIsWithinInvoiceWindow(t *testing.T) {
	config := DefaultMatchingConfig()
	txDate := time.Date(2024, 3, 10, 15, 30, 0, 0, time.UTC)

	tests := []struct {
		invoiceDate time.Time
		want        bool
	}{
		{time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), true},
		{time.Date(2024, 3, 17, 23, 0, 0, 0, time.UTC), true},
		{time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), false},
		{time.Date(2024, 3, 18, 0, 0, 0, 0, time.UTC), false},
	}

	for _, tt := range tests {
		if got := config.IsWithinInvoiceWindow(txDate, tt.invoiceDate); got != tt.want {
			t.Errorf("IsWithinInvoiceWindow(%s) = %t, want %t", tt.invoiceDate.Format("2006-01-02"), got, tt.want)
		}
	}
}

func TestIsWithinAmountTolerance(t *testing.T) {
	config := DefaultMatchingConfig()
	total := decimal.RequireFromString("121.00")

	tests := []struct {
		amount string
		want   bool
	}{
		{"-121.00", true},
		{"121.02", true},
		{"-120.98", true},
		{"-121.03", false},
		{"100.00", false},
	}

	for _, tt := range tests {
		if got := config.IsWithinAmountTolerance(decimal.RequireFromString(tt.amount), total); got != tt.want {
			t.Errorf("IsWithinAmountTolerance(%s) = %t, want %t", tt.amount, got, tt.want)
		}
	}
}
