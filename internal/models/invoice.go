package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceKind distinguishes purchase from sales invoices
type InvoiceKind string

const (
	InvoicePurchase InvoiceKind = "purchase"
	InvoiceSales    InvoiceKind = "sales"
)

// InvoiceStatus is the document status of an invoice
type InvoiceStatus string

const (
	InvoiceDraft   InvoiceStatus = "draft"
	InvoiceSent    InvoiceStatus = "sent"
	InvoicePending InvoiceStatus = "pending"
	InvoiceOverdue InvoiceStatus = "overdue"
	InvoicePaid    InvoiceStatus = "paid"
)

// Invoice is a purchase or sales document. Total is the gross amount and
// VATRate a percentage (21, 9 or 0).
type Invoice struct {
	ID                   string          `json:"id"`
	Kind                 InvoiceKind     `json:"kind"`
	Number               string          `json:"number"`
	ContactID            string          `json:"contact_id"`
	Date                 time.Time       `json:"date"`
	Total                decimal.Decimal `json:"total"`
	VATRate              decimal.Decimal `json:"vat_rate"`
	AccountID            string          `json:"account_id,omitempty"`
	Status               InvoiceStatus   `json:"status"`
	JournalEntryID       string          `json:"journal_entry_id,omitempty"`
	PaymentTransactionID string          `json:"payment_transaction_id,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
}

// Validate performs basic validation on the Invoice
func (i *Invoice) Validate() error {
	if i.Kind != InvoicePurchase && i.Kind != InvoiceSales {
		return fmt.Errorf("invalid invoice kind: %s", i.Kind)
	}
	if strings.TrimSpace(i.ContactID) == "" {
		return fmt.Errorf("invoice needs a contact")
	}
	if !i.Total.IsPositive() {
		return fmt.Errorf("invoice total must be positive, got %s", i.Total)
	}
	if i.VATRate.IsNegative() {
		return fmt.Errorf("invoice VAT rate cannot be negative")
	}
	return nil
}

// PayableStatuses are the statuses in which an invoice of the given kind
// awaits a bank payment.
func PayableStatuses(kind InvoiceKind) []InvoiceStatus {
	if kind == InvoiceSales {
		return []InvoiceStatus{InvoiceSent}
	}
	return []InvoiceStatus{InvoicePending, InvoiceOverdue}
}

// AwaitsPayment reports whether the invoice is open and not yet linked to a
// bank transaction.
func (i *Invoice) AwaitsPayment() bool {
	if i.PaymentTransactionID != "" {
		return false
	}
	for _, s := range PayableStatuses(i.Kind) {
		if i.Status == s {
			return true
		}
	}
	return false
}
