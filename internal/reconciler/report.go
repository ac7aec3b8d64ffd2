package reconciler

import (
	"time"

	"golang-bookkeeping-service/internal/models"
	"golang-bookkeeping-service/pkg/errors"
)

// Action is what the batch did with one transaction
type Action string

const (
	ActionAutoBooked  Action = "auto_booked"
	ActionNeedsReview Action = "needs_review"
	ActionSkipped     Action = "skipped"
	ActionError       Action = "error"
)

// ItemResult is the outcome for one transaction in a batch
type ItemResult struct {
	TransactionID string                    `json:"transaction_id"`
	Counterparty  string                    `json:"counterparty,omitempty"`
	Amount        string                    `json:"amount,omitempty"`
	Action        Action                    `json:"action"`
	Outcome       *models.ConfidenceOutcome `json:"outcome,omitempty"`
	EntryIDs      []string                  `json:"entry_ids,omitempty"`
	Status        models.TransactionStatus  `json:"status,omitempty"`
	Reason        string                    `json:"reason,omitempty"`
	Warning       string                    `json:"warning,omitempty"`
	Error         *errors.BookkeepingError  `json:"error,omitempty"`
	Duration      time.Duration             `json:"duration"`
}

func (r *ItemResult) fail(err error) {
	r.Action = ActionError
	r.Error = errors.WrapIfNeeded(err, errors.CategoryBatch, errors.CodeItemFailed,
		"processing transaction "+r.TransactionID+" failed")
	r.Reason = r.Error.Message
}

// Report aggregates a batch run
type Report struct {
	TotalProcessed int                  `json:"total_processed"`
	AutoBooked     int                  `json:"auto_booked"`
	NeedsReview    int                  `json:"needs_review"`
	Skipped        int                  `json:"skipped"`
	Errors         int                  `json:"errors"`
	Concurrency    int                  `json:"concurrency"`
	Threshold      int                  `json:"auto_book_threshold"`
	Cancelled      bool                 `json:"cancelled,omitempty"`
	StartedAt      time.Time            `json:"started_at"`
	Duration       time.Duration        `json:"duration"`
	Details        []*ItemResult        `json:"details"`
	ErrorSummary   *errors.ErrorSummary `json:"error_summary,omitempty"`
}

// AutoBookRate returns the share of processed transactions that were booked
// without review, as a percentage.
func (r *Report) AutoBookRate() float64 {
	if r.TotalProcessed == 0 {
		return 0
	}
	return float64(r.AutoBooked) / float64(r.TotalProcessed) * 100
}

// HasErrors reports whether any item failed
func (r *Report) HasErrors() bool {
	return r.Errors > 0
}

// tally fills the counters and the error summary from Details
func (r *Report) tally() {
	var errs []*errors.BookkeepingError
	r.TotalProcessed, r.AutoBooked, r.NeedsReview, r.Skipped, r.Errors = 0, 0, 0, 0, 0
	for _, d := range r.Details {
		r.TotalProcessed++
		switch d.Action {
		case ActionAutoBooked:
			r.AutoBooked++
		case ActionNeedsReview:
			r.NeedsReview++
		case ActionSkipped:
			r.Skipped++
		case ActionError:
			r.Errors++
			if d.Error != nil {
				errs = append(errs, d.Error)
			}
		}
	}
	if len(errs) > 0 {
		r.ErrorSummary = errors.NewErrorSummary(errs)
	}
}
