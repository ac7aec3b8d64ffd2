// Package models defines the bookkeeping entities shared by the matching
// pipeline, the poster and the store.
//
// All monetary values are shopspring decimals. Identifiers are UUID strings;
// an empty string means "not set" for optional references.
package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the canonical date layout used for transaction and invoice dates.
const DateLayout = "2006-01-02"

// TransactionStatus is the lifecycle state of a bank transaction.
type TransactionStatus string

const (
	StatusUnmatched  TransactionStatus = "unmatched"
	StatusMatched    TransactionStatus = "matched"
	StatusBooked     TransactionStatus = "booked"
	StatusPending    TransactionStatus = "pending"
	StatusReconciled TransactionStatus = "reconciled"
)

// IsValid checks if the status is known
func (s TransactionStatus) IsValid() bool {
	switch s {
	case StatusUnmatched, StatusMatched, StatusBooked, StatusPending, StatusReconciled:
		return true
	}
	return false
}

// IsPosted reports whether journal entries already exist for the transaction.
func (s TransactionStatus) IsPosted() bool {
	return s == StatusBooked || s == StatusPending || s == StatusReconciled
}

// Transaction is one imported bank movement. Amount is signed: negative for
// money out, positive for money in.
type Transaction struct {
	ID               string             `json:"id"`
	Date             time.Time          `json:"date"`
	Amount           decimal.Decimal    `json:"amount"`
	Description      string             `json:"description"`
	CounterpartyName string             `json:"counterparty_name,omitempty"`
	CounterpartyIBAN string             `json:"counterparty_iban,omitempty"`
	Status           TransactionStatus  `json:"status"`
	JournalEntryID   string             `json:"journal_entry_id,omitempty"`
	ContactID        string             `json:"contact_id,omitempty"`
	InvoiceID        string             `json:"invoice_id,omitempty"`
	SourceHash       string             `json:"-"`
	Suggested        *ConfidenceOutcome `json:"suggested,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
}

// Validate performs basic validation on the Transaction
func (t *Transaction) Validate() error {
	if t.Date.IsZero() {
		return fmt.Errorf("transaction date cannot be empty")
	}
	if t.Amount.IsZero() {
		return fmt.Errorf("transaction amount cannot be zero")
	}
	if strings.TrimSpace(t.Description) == "" && strings.TrimSpace(t.CounterpartyName) == "" {
		return fmt.Errorf("transaction needs a description or a counterparty name")
	}
	if t.Status != "" && !t.Status.IsValid() {
		return fmt.Errorf("invalid transaction status: %s", t.Status)
	}
	return nil
}

// IsOutgoing reports whether money leaves the bank account.
func (t *Transaction) IsOutgoing() bool {
	return t.Amount.IsNegative()
}

// AbsoluteAmount returns the unsigned transaction amount
func (t *Transaction) AbsoluteAmount() decimal.Decimal {
	return t.Amount.Abs()
}

// String returns a short human-readable form
func (t *Transaction) String() string {
	return fmt.Sprintf("Transaction{ID: %s, Date: %s, Amount: %s, Counterparty: %q, Status: %s}",
		t.ID, t.Date.Format(DateLayout), t.Amount.StringFixed(2), t.CounterpartyName, t.Status)
}

// MarshalJSON writes the date as YYYY-MM-DD and the amount with two decimals.
func (t *Transaction) MarshalJSON() ([]byte, error) {
	type Alias Transaction
	return json.Marshal(&struct {
		Date   string `json:"date"`
		Amount string `json:"amount"`
		*Alias
	}{
		Date:   t.Date.Format(DateLayout),
		Amount: t.Amount.StringFixed(2),
		Alias:  (*Alias)(t),
	})
}

// ParseAmount parses a signed amount written with either a decimal point or a
// Dutch decimal comma ("-1.234,56").
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "€")
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	switch {
	case lastComma > lastDot:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case lastDot > lastComma && lastComma >= 0:
		s = strings.ReplaceAll(s, ",", "")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount '%s': %w", s, err)
	}
	return d, nil
}

// ParseDate parses the common bank export date layouts.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("date string cannot be empty")
	}

	formats := []string{
		DateLayout,
		"20060102",
		"02-01-2006",
		"02/01/2006",
		"2006/01/02",
		time.RFC3339,
	}

	var lastErr error
	for _, format := range formats {
		t, err := time.Parse(format, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, fmt.Errorf("unable to parse date '%s': %w", s, lastErr)
}

// TruncateDay drops the time-of-day part in UTC.
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// CompareAmountsWithTolerance compares two decimal amounts with a tolerance
func CompareAmountsWithTolerance(a, b, tolerance decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tolerance)
}
