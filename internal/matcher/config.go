// Package matcher resolves a bank transaction to a booking suggestion.
//
// The resolver runs a fixed sequence of stages and stops at the first one that
// produces a result:
//  1. Invoice match: an open purchase or sales invoice with the same amount
//     dated within the invoice window after the transaction
//  2. User rule: the highest-priority keyword rule matching the counterparty
//  3. Relation: a known contact whose name and the counterparty contain one another
//  4. Vendor table: well-known merchants with a fixed expense account
//  5. External enrichment: web search plus LLM account selection
//
// Every stage works on the cleaned counterparty name, or the cleaned
// description when the counterparty is too short to be useful.
//
// Example usage:
//
//	config := matcher.DefaultMatchingConfig()
//	config.InvoiceWindowDays = 14
//
//	resolver := matcher.NewResolver(store, ruleAccessor, relationMatcher, enricher, config, log)
//	outcome, err := resolver.Resolve(ctx, tx)
package matcher

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"golang-bookkeeping-service/internal/models"
)

// MatchingConfig holds the resolver settings.
type MatchingConfig struct {
	// AutoBookThreshold is the lowest confidence that is posted without review (0-100)
	AutoBookThreshold int `json:"auto_book_threshold" mapstructure:"auto_book_threshold"`

	// InvoiceAmountTolerance is the largest absolute difference, in euro,
	// between a transaction and an invoice total that still counts as equal
	InvoiceAmountTolerance float64 `json:"invoice_amount_tolerance" mapstructure:"invoice_amount_tolerance"`

	// InvoiceWindowDays is how many days after the transaction an invoice may be dated
	InvoiceWindowDays int `json:"invoice_window_days" mapstructure:"invoice_window_days"`

	// MinCounterpartyLength is the shortest counterparty name preferred over the description
	MinCounterpartyLength int `json:"min_counterparty_length" mapstructure:"min_counterparty_length"`

	// AutoCreateRelations creates a relation for confident enrichment results
	AutoCreateRelations bool `json:"auto_create_relations" mapstructure:"auto_create_relations"`
}

// DefaultMatchingConfig returns a configuration with sensible defaults
func DefaultMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		AutoBookThreshold:      models.DefaultAutoBookThreshold,
		InvoiceAmountTolerance: 0.02,
		InvoiceWindowDays:      7,
		MinCounterpartyLength:  3,
		AutoCreateRelations:    false,
	}
}

// Validate checks if the matching configuration is valid
func (mc *MatchingConfig) Validate() error {
	if mc.AutoBookThreshold < 0 || mc.AutoBookThreshold > 100 {
		return fmt.Errorf("auto-book threshold must be between 0 and 100: %d", mc.AutoBookThreshold)
	}

	if mc.InvoiceAmountTolerance < 0 {
		return fmt.Errorf("invoice amount tolerance cannot be negative: %f", mc.InvoiceAmountTolerance)
	}

	if mc.InvoiceWindowDays < 0 {
		return fmt.Errorf("invoice window days cannot be negative: %d", mc.InvoiceWindowDays)
	}

	if mc.MinCounterpartyLength < 1 {
		return fmt.Errorf("minimum counterparty length must be positive: %d", mc.MinCounterpartyLength)
	}

	return nil
}

// Clone creates a copy of the matching configuration
func (mc *MatchingConfig) Clone() *MatchingConfig {
	if mc == nil {
		return nil
	}
	clone := *mc
	return &clone
}

// InvoiceTolerance returns the amount tolerance as a decimal rounded to the cent
func (mc *MatchingConfig) InvoiceTolerance() decimal.Decimal {
	return decimal.NewFromFloat(mc.InvoiceAmountTolerance).Round(2)
}

// InvoiceWindow returns the inclusive day range in which an invoice matching a
// transaction on txDate may be dated.
func (mc *MatchingConfig) InvoiceWindow(txDate time.Time) (from, to time.Time) {
	from = models.TruncateDay(txDate)
	return from, from.AddDate(0, 0, mc.InvoiceWindowDays)
}

// IsWithinInvoiceWindow checks an invoice date against the window of txDate
func (mc *MatchingConfig) IsWithinInvoiceWindow(txDate, invoiceDate time.Time) bool {
	from, to := mc.InvoiceWindow(txDate)
	d := models.TruncateDay(invoiceDate)
	return !d.Before(from) && !d.After(to)
}

// IsWithinAmountTolerance compares a transaction amount with an invoice total,
// ignoring sign.
func (mc *MatchingConfig) IsWithinAmountTolerance(amount, total decimal.Decimal) bool {
	return models.CompareAmountsWithTolerance(amount.Abs(), total.Abs(), mc.InvoiceTolerance())
}

// String returns a human-readable description of the configuration
func (mc *MatchingConfig) String() string {
	return fmt.Sprintf("MatchingConfig{AutoBook: %d, InvoiceTolerance: %.2f, InvoiceWindow: %d days, MinCounterparty: %d, AutoCreateRelations: %t}",
		mc.AutoBookThreshold, mc.InvoiceAmountTolerance, mc.InvoiceWindowDays, mc.MinCounterpartyLength, mc.AutoCreateRelations)
}
