package models

import "fmt"

// Confidence scores used by the matching pipeline.
const (
	ConfidenceNone    = 0
	ConfidenceCertain = 100

	// DefaultAutoBookThreshold is the lowest score that is booked without review.
	DefaultAutoBookThreshold = 70
)

// BookingMode selects how the poster books a resolved transaction
type BookingMode string

const (
	// ModeDirect books bank against the target account in one entry.
	ModeDirect BookingMode = "direct"
	// ModeRelation routes the booking through a suspense account and links a contact.
	ModeRelation BookingMode = "relation"
)

// OutcomeSource names the pipeline stage that produced an outcome
type OutcomeSource string

const (
	SourceInvoice    OutcomeSource = "invoice"
	SourceRule       OutcomeSource = "rule"
	SourceCRM        OutcomeSource = "crm"
	SourceVendor     OutcomeSource = "vendor_default"
	SourceEnrichment OutcomeSource = "external_enrichment"
	SourceManual     OutcomeSource = "manual"
	SourceNone       OutcomeSource = "none"
)

// Suggestion is the booking the pipeline proposes
type Suggestion struct {
	Mode        BookingMode `json:"mode"`
	AccountID   string      `json:"account_id,omitempty"`
	ContactID   string      `json:"contact_id,omitempty"`
	InvoiceID   string      `json:"invoice_id,omitempty"`
	Description string      `json:"description"`
}

// ConfidenceOutcome is the single result of resolving one transaction.
type ConfidenceOutcome struct {
	Score      int           `json:"score"`
	Reason     string        `json:"reason"`
	Source     OutcomeSource `json:"source"`
	Suggestion *Suggestion   `json:"suggestion,omitempty"`
}

// NoMatch returns the zero-confidence outcome
func NoMatch(reason string) *ConfidenceOutcome {
	return &ConfidenceOutcome{Score: ConfidenceNone, Reason: reason, Source: SourceNone}
}

// HasMatch reports whether any stage produced a suggestion
func (o *ConfidenceOutcome) HasMatch() bool {
	return o != nil && o.Source != SourceNone && o.Suggestion != nil
}

// IsActionable reports whether the outcome may be posted without review: the
// score reaches the threshold and the suggestion names a target account.
func (o *ConfidenceOutcome) IsActionable(threshold int) bool {
	return o.HasMatch() && o.Score >= threshold && o.Suggestion.AccountID != ""
}

// String returns a one-line summary
func (o *ConfidenceOutcome) String() string {
	if !o.HasMatch() {
		return fmt.Sprintf("no match (%s)", o.Reason)
	}
	return fmt.Sprintf("%s %d%% %s account=%s contact=%s: %s",
		o.Source, o.Score, o.Suggestion.Mode, o.Suggestion.AccountID, o.Suggestion.ContactID, o.Reason)
}
