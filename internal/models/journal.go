package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// BalanceTolerance is the largest debit/credit difference still considered
// balanced. A difference of one cent or less is rounding.
var BalanceTolerance = decimal.New(1, -2)

// EntryKind tells what a journal entry books
type EntryKind string

const (
	EntryDirect     EntryKind = "direct"
	EntryPayment    EntryKind = "payment"
	EntryCost       EntryKind = "cost"
	EntryRevenue    EntryKind = "revenue"
	EntrySettlement EntryKind = "settlement"
	EntryInvoice    EntryKind = "invoice"
)

// JournalLine is one side of a double-entry posting. Exactly one of Debit and
// Credit is positive.
type JournalLine struct {
	ID          string          `json:"id"`
	EntryID     string          `json:"entry_id"`
	AccountID   string          `json:"account_id"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Description string          `json:"description,omitempty"`
}

// JournalEntry groups lines whose debit and credit totals must match.
type JournalEntry struct {
	ID            string        `json:"id"`
	Date          time.Time     `json:"date"`
	Kind          EntryKind     `json:"kind"`
	Description   string        `json:"description"`
	TransactionID string        `json:"transaction_id,omitempty"`
	InvoiceID     string        `json:"invoice_id,omitempty"`
	ContactID     string        `json:"contact_id,omitempty"`
	Lines         []JournalLine `json:"lines"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Debit appends a debit line
func (e *JournalEntry) Debit(accountID string, amount decimal.Decimal, description string) *JournalEntry {
	e.Lines = append(e.Lines, JournalLine{AccountID: accountID, Debit: amount, Credit: decimal.Zero, Description: description})
	return e
}

// Credit appends a credit line
func (e *JournalEntry) Credit(accountID string, amount decimal.Decimal, description string) *JournalEntry {
	e.Lines = append(e.Lines, JournalLine{AccountID: accountID, Debit: decimal.Zero, Credit: amount, Description: description})
	return e
}

// Totals sums debit and credit over all lines
func (e *JournalEntry) Totals() (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, l := range e.Lines {
		debit = debit.Add(l.Debit)
		credit = credit.Add(l.Credit)
	}
	return debit, credit
}

// IsBalanced reports whether debit and credit totals agree to the cent.
func (e *JournalEntry) IsBalanced() bool {
	debit, credit := e.Totals()
	return debit.Sub(credit).Abs().LessThanOrEqual(BalanceTolerance)
}

// ValidateLines checks the structural shape of the entry: at least two lines,
// each line one-sided, non-negative and pointing at an account. Balance is
// checked separately so the caller can report both totals.
func (e *JournalEntry) ValidateLines() error {
	if len(e.Lines) < 2 {
		return fmt.Errorf("journal entry needs at least two lines, got %d", len(e.Lines))
	}
	for i, l := range e.Lines {
		if l.AccountID == "" {
			return fmt.Errorf("line %d has no account", i+1)
		}
		if l.Debit.IsNegative() || l.Credit.IsNegative() {
			return fmt.Errorf("line %d has a negative amount", i+1)
		}
		if l.Debit.IsPositive() == l.Credit.IsPositive() {
			return fmt.Errorf("line %d must have exactly one of debit or credit", i+1)
		}
	}
	return nil
}
