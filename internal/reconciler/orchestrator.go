package reconciler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang-bookkeeping-service/internal/matcher"
	"golang-bookkeeping-service/internal/models"
	"golang-bookkeeping-service/internal/posting"
	"golang-bookkeeping-service/pkg/errors"
	"golang-bookkeeping-service/pkg/logger"
)

// Store is the persistence the orchestrator reads and annotates
type Store interface {
	TransactionByID(ctx context.Context, id string) (*models.Transaction, error)
	UnmatchedTransactionIDs(ctx context.Context) ([]string, error)
	AttachSuggestion(ctx context.Context, id string, o *models.ConfidenceOutcome) error
	RelationByID(ctx context.Context, id string) (*models.Relation, error)
}

// Resolver produces the booking outcome for a transaction
type Resolver interface {
	Resolve(ctx context.Context, tx *models.Transaction) (*models.ConfidenceOutcome, error)
	Config() *matcher.MatchingConfig
}

// Poster books a resolved transaction
type Poster interface {
	Post(ctx context.Context, tx *models.Transaction, outcome *models.ConfidenceOutcome) (*posting.Result, error)
}

// Learner records a confirmed booking as a rule
type Learner interface {
	Learn(ctx context.Context, tx *models.Transaction, mode models.BookingMode, accountID, contactID string) (*models.Rule, error)
}

// BatchProgress is passed to progress callbacks after every finished item
type BatchProgress struct {
	Total              int           `json:"total"`
	Completed          int           `json:"completed"`
	Failed             int           `json:"failed"`
	PercentComplete    float64       `json:"percent_complete"`
	Elapsed            time.Duration `json:"elapsed"`
	EstimatedRemaining time.Duration `json:"estimated_remaining"`
	LastTransactionID  string        `json:"last_transaction_id"`
	LastAction         Action        `json:"last_action"`
}

// ProgressCallback is called to report batch progress. Calls are serialized.
type ProgressCallback func(*BatchProgress)

// Orchestrator runs the resolve, post and learn pipeline
type Orchestrator struct {
	store    Store
	resolver Resolver
	poster   Poster
	learner  Learner
	config   *Config
	logger   logger.Logger

	progressCallbacks []ProgressCallback
	progressMutex     sync.Mutex
}

// NewOrchestrator creates an orchestrator. learner may be nil, which turns
// learning off.
func NewOrchestrator(store Store, resolver Resolver, poster Poster, learner Learner, config *Config, log logger.Logger) (*Orchestrator, error) {
	if store == nil || resolver == nil || poster == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "orchestrator dependencies", nil, nil).
			WithSuggestion("provide a store, a resolver and a poster")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "batch", config, err)
	}

	return &Orchestrator{
		store:    store,
		resolver: resolver,
		poster:   poster,
		learner:  learner,
		config:   config,
		logger:   logger.OrGlobal(log, "orchestrator"),
	}, nil
}

// AddProgressCallback adds a progress callback function
func (o *Orchestrator) AddProgressCallback(callback ProgressCallback) {
	o.progressMutex.Lock()
	defer o.progressMutex.Unlock()
	o.progressCallbacks = append(o.progressCallbacks, callback)
}

// RunBatch resolves every transaction in ids and books the ones whose outcome
// clears the auto-book threshold. Transactions below the threshold keep their
// status and get the suggestion attached. A nil or empty ids runs every
// unmatched transaction; concurrency below 1 uses the configured default.
//
// A failing transaction is recorded in the report and never stops the batch.
// When ctx is cancelled the report covers what finished and the error is a
// cancellation error.
func (o *Orchestrator) RunBatch(ctx context.Context, ids []string, concurrency int) (*Report, error) {
	if len(ids) == 0 {
		all, err := o.store.UnmatchedTransactionIDs(ctx)
		if err != nil {
			return nil, err
		}
		ids = all
	}
	ids = PrepareIDs(ids)

	if concurrency < 1 {
		concurrency = o.config.Concurrency
	}
	workers := concurrency
	if workers > len(ids) {
		workers = len(ids)
	}

	threshold := o.resolver.Config().AutoBookThreshold
	report := &Report{
		Concurrency: concurrency,
		Threshold:   threshold,
		StartedAt:   time.Now(),
		Details:     make([]*ItemResult, len(ids)),
	}

	o.logger.WithFields(logger.Fields{
		"transactions": len(ids),
		"concurrency":  concurrency,
		"threshold":    threshold,
	}).Info("Starting batch")

	tracker := logger.NewProgressTracker(logger.ProgressConfig{
		Operation:   "batch",
		Total:       int64(len(ids)),
		LogInterval: o.config.ProgressLogInterval,
		Logger:      o.logger,
	})

	// Workers claim the next unclaimed index until the list is exhausted.
	var next int64 = -1
	var completed, failed int64
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				i := int(atomic.AddInt64(&next, 1))
				if i >= len(ids) {
					return
				}
				item := o.processItem(ctx, ids[i], threshold)
				report.Details[i] = item

				isFailure := item.Action == ActionError
				tracker.Increment(isFailure)
				done := atomic.AddInt64(&completed, 1)
				if isFailure {
					atomic.AddInt64(&failed, 1)
				}
				o.notify(report.StartedAt, len(ids), int(done), int(atomic.LoadInt64(&failed)), item)
			}
		}()
	}
	wg.Wait()
	tracker.Complete()

	var runErr error
	if err := ctx.Err(); err != nil {
		report.Cancelled = true
		for i, d := range report.Details {
			if d == nil {
				report.Details[i] = &ItemResult{TransactionID: ids[i], Action: ActionSkipped, Reason: "batch cancelled"}
			}
		}
		runErr = errors.InternalError(errors.CodeCancelled, "batch", err)
	}

	report.Duration = time.Since(report.StartedAt)
	report.tally()

	o.logger.WithFields(logger.Fields{
		"processed":    report.TotalProcessed,
		"auto_booked":  report.AutoBooked,
		"needs_review": report.NeedsReview,
		"skipped":      report.Skipped,
		"errors":       report.Errors,
		"duration":     report.Duration.String(),
	}).Info("Batch finished")
	return report, runErr
}

// processItem runs one transaction through the pipeline. A panic inside any
// stage is recovered into an internal error for this item.
func (o *Orchestrator) processItem(ctx context.Context, id string, threshold int) (item *ItemResult) {
	start := time.Now()
	item = &ItemResult{TransactionID: id}
	log := o.logger.WithField("transaction_id", id)

	defer func() {
		if r := recover(); r != nil {
			item.fail(errors.InternalError(errors.CodeUnexpectedError, "batch item "+id, fmt.Errorf("panic: %v", r)))
			log.WithField("panic", r).Error("Recovered from panic while processing transaction")
		}
		item.Duration = time.Since(start)
	}()

	tx, err := o.store.TransactionByID(ctx, id)
	if err != nil {
		item.fail(err)
		return item
	}
	if tx == nil {
		item.fail(errors.StoreError(errors.CodeNotFound, "transaction "+id, nil))
		return item
	}
	item.Counterparty = tx.CounterpartyName
	item.Amount = tx.Amount.StringFixed(2)
	item.Status = tx.Status

	if reason := skipReason(tx); reason != "" {
		item.Action = ActionSkipped
		item.Reason = reason
		return item
	}

	// An invoice matched here can be taken by a concurrent worker before
	// this item posts; the item then resolves once more without it.
	for attempt := 1; ; attempt++ {
		outcome, err := o.resolver.Resolve(ctx, tx)
		if err != nil {
			item.fail(err)
			log.WithError(err).Warn("Resolving transaction failed")
			return item
		}
		item.Outcome = outcome
		item.Reason = outcome.Reason

		if !outcome.IsActionable(threshold) {
			item.Action = ActionNeedsReview
			if outcome.HasMatch() {
				if err := o.store.AttachSuggestion(ctx, tx.ID, outcome); err != nil {
					item.fail(err)
					return item
				}
			}
			log.WithFields(logger.Fields{
				"source":     outcome.Source,
				"confidence": outcome.Score,
			}).Debug("Left for review")
			return item
		}

		result, err := o.poster.Post(ctx, tx, outcome)
		if isInvoiceClaimed(err) && attempt < maxResolveAttempts {
			log.WithError(err).Debug("Matched invoice was taken, resolving again")
			continue
		}
		if err != nil {
			item.fail(err)
			log.WithError(err).Warn("Posting transaction failed")
			return item
		}
		item.Action = ActionAutoBooked
		item.EntryIDs = result.EntryIDs
		item.Status = result.Status

		if warning := o.learn(ctx, tx, outcome.Suggestion); warning != "" {
			item.Warning = warning
		}
		return item
	}
}

const maxResolveAttempts = 2

func isInvoiceClaimed(err error) bool {
	be, ok := errors.AsBookkeepingError(err)
	return ok && be.Code == errors.CodeInvoiceClaimed
}

// learn records the booking as a rule. Failures are returned as a warning;
// the booking itself already succeeded.
func (o *Orchestrator) learn(ctx context.Context, tx *models.Transaction, s *models.Suggestion) string {
	if o.learner == nil || !o.config.Learn || s == nil {
		return ""
	}
	if _, err := o.learner.Learn(ctx, tx, s.Mode, s.AccountID, s.ContactID); err != nil {
		o.logger.WithError(err).WithField("transaction_id", tx.ID).Warn("Learning from booking failed")
		return "learning failed: " + err.Error()
	}
	return ""
}

func (o *Orchestrator) notify(started time.Time, total, completed, failed int, item *ItemResult) {
	o.progressMutex.Lock()
	defer o.progressMutex.Unlock()
	if len(o.progressCallbacks) == 0 {
		return
	}

	elapsed := time.Since(started)
	progress := &BatchProgress{
		Total:             total,
		Completed:         completed,
		Failed:            failed,
		Elapsed:           elapsed,
		LastTransactionID: item.TransactionID,
		LastAction:        item.Action,
	}
	if total > 0 {
		progress.PercentComplete = float64(completed) / float64(total) * 100
	}
	if completed > 0 && completed < total {
		progress.EstimatedRemaining = elapsed / time.Duration(completed) * time.Duration(total-completed)
	}
	for _, callback := range o.progressCallbacks {
		callback(progress)
	}
}

// Resolve loads a transaction and returns its outcome without booking it.
func (o *Orchestrator) Resolve(ctx context.Context, transactionID string) (*models.Transaction, *models.ConfidenceOutcome, error) {
	tx, err := o.load(ctx, transactionID)
	if err != nil {
		return nil, nil, err
	}
	outcome, err := o.resolver.Resolve(ctx, tx)
	if err != nil {
		return tx, nil, err
	}
	return tx, outcome, nil
}

// BookManually books a transaction on the given account, through the given
// relation when contactID is set, and learns a rule from it. With a contact
// and no account the relation's default account is used.
func (o *Orchestrator) BookManually(ctx context.Context, transactionID, accountID, contactID string) (*posting.Result, error) {
	tx, err := o.load(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	mode := resolveMode(contactID)
	if mode == models.ModeRelation && accountID == "" {
		rel, err := o.store.RelationByID(ctx, contactID)
		if err != nil {
			return nil, err
		}
		if rel == nil {
			return nil, errors.StoreError(errors.CodeNotFound, "relation "+contactID, nil)
		}
		accountID = rel.DefaultAccountID
	}
	if accountID == "" {
		return nil, errors.PostingError(errors.CodeIncompleteInput, transactionID, nil)
	}

	outcome := &models.ConfidenceOutcome{
		Score:  models.ConfidenceCertain,
		Reason: "booked manually",
		Source: models.SourceManual,
		Suggestion: &models.Suggestion{
			Mode:      mode,
			AccountID: accountID,
			ContactID: contactID,
		},
	}
	// A suggested invoice is kept so a manual confirmation of an invoice
	// match still links the invoice.
	if tx.Suggested != nil && tx.Suggested.Suggestion != nil && mode == models.ModeRelation &&
		tx.Suggested.Suggestion.ContactID == contactID {
		outcome.Suggestion.InvoiceID = tx.Suggested.Suggestion.InvoiceID
	}

	result, err := o.poster.Post(ctx, tx, outcome)
	if err != nil {
		return nil, err
	}
	o.learn(ctx, tx, outcome.Suggestion)

	o.logger.WithFields(logger.Fields{
		"transaction_id": tx.ID,
		"account_id":     accountID,
		"contact_id":     contactID,
	}).Info("Booked manually")
	return result, nil
}

func (o *Orchestrator) load(ctx context.Context, transactionID string) (*models.Transaction, error) {
	tx, err := o.store.TransactionByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, errors.StoreError(errors.CodeNotFound, "transaction "+transactionID, nil)
	}
	return tx, nil
}
