package reconciler

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"golang-bookkeeping-service/internal/enrichment"
	"golang-bookkeeping-service/internal/learning"
	"golang-bookkeeping-service/internal/matcher"
	"golang-bookkeeping-service/internal/models"
	"golang-bookkeeping-service/internal/posting"
	"golang-bookkeeping-service/internal/relations"
	"golang-bookkeeping-service/internal/rules"
	"golang-bookkeeping-service/internal/store"
	"golang-bookkeeping-service/pkg/errors"
	"golang-bookkeeping-service/pkg/logger"
)

type stubEnricher struct {
	result *enrichment.Result
}

func (s *stubEnricher) Enrich(ctx context.Context, req enrichment.Request) (*enrichment.Result, error) {
	return s.result, nil
}

type panickingResolver struct {
	*matcher.Resolver
	panicOn string
}

func (p *panickingResolver) Resolve(ctx context.Context, tx *models.Transaction) (*models.ConfidenceOutcome, error) {
	if tx.ID == p.panicOn {
		panic("stage exploded")
	}
	return p.Resolver.Resolve(ctx, tx)
}

type fixture struct {
	store        *store.Store
	resolver     *matcher.Resolver
	orchestrator *Orchestrator
}

func newFixture(t *testing.T, enricher matcher.Enricher) *fixture {
	t.Helper()
	log := logger.NewDiscardLogger()
	s, err := store.Open(filepath.Join(t.TempDir(), "books.db"), log)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.SeedDefaults(context.Background()))

	var relEnricher relations.Enricher
	if enricher != nil {
		relEnricher = enricher
	}
	ruleAccessor := rules.NewAccessor(s, log)
	resolver := matcher.NewResolver(s, ruleAccessor, relations.NewMatcher(s, relEnricher, log), enricher, nil, log)
	o, err := NewOrchestrator(s, resolver, posting.NewPoster(s, log),
		learning.NewWriter(ruleAccessor, learning.DefaultMinCounterpartyLength, log), nil, log)
	require.NoError(t, err)
	return &fixture{store: s, resolver: resolver, orchestrator: o}
}

func (f *fixture) insert(t *testing.T, amount, description, counterparty string) *models.Transaction {
	t.Helper()
	tx := &models.Transaction{
		Date:             time.Date(2024, 12, 24, 0, 0, 0, 0, time.UTC),
		Amount:           decimal.RequireFromString(amount),
		Description:      description,
		CounterpartyName: counterparty,
	}
	inserted, err := f.store.InsertTransaction(context.Background(), tx)
	require.NoError(t, err)
	require.True(t, inserted)
	return tx
}

func (f *fixture) status(t *testing.T, id string) *models.Transaction {
	t.Helper()
	tx, err := f.store.TransactionByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, tx)
	return tx
}

func TestRunBatchMixedOutcomes(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	rel := &models.Relation{Name: "Acme BV", Type: models.RelationCustomer, DefaultAccountID: store.SeedAccountID("8000"), Active: true}
	require.NoError(t, f.store.CreateRelation(ctx, rel))

	shell := f.insert(t, "-45.30", "BEA 12:00 24-12-2024 SHELL UTRECHT NR 12345 PAS 678", "")
	acme := f.insert(t, "1210.00", "Factuur 2024-001", "Acme BV")
	unknown := f.insert(t, "-12.00", "Zwxq Qrtv", "")

	var mu sync.Mutex
	var updates []*BatchProgress
	f.orchestrator.AddProgressCallback(func(p *BatchProgress) {
		mu.Lock()
		defer mu.Unlock()
		updates = append(updates, p)
	})

	report, err := f.orchestrator.RunBatch(ctx, nil, 2)
	require.NoError(t, err)
	require.Equal(t, 3, report.TotalProcessed)
	require.Equal(t, 2, report.AutoBooked)
	require.Equal(t, 1, report.NeedsReview)
	require.Equal(t, 0, report.Errors)
	require.Nil(t, report.ErrorSummary)
	require.Len(t, updates, 3)
	highest := 0
	for _, u := range updates {
		if u.Completed > highest {
			highest = u.Completed
		}
	}
	require.Equal(t, 3, highest)

	require.Equal(t, models.StatusBooked, f.status(t, shell.ID).Status)
	require.Equal(t, models.StatusPending, f.status(t, acme.ID).Status)
	require.Equal(t, models.StatusUnmatched, f.status(t, unknown.ID).Status)

	byID := map[string]*ItemResult{}
	for _, d := range report.Details {
		byID[d.TransactionID] = d
	}
	require.Equal(t, ActionAutoBooked, byID[shell.ID].Action)
	require.Len(t, byID[shell.ID].EntryIDs, 1)
	require.Len(t, byID[acme.ID].EntryIDs, 2)
	require.Equal(t, ActionNeedsReview, byID[unknown.ID].Action)

	// only unmatched transactions are picked up again
	again, err := f.orchestrator.RunBatch(ctx, nil, 2)
	require.NoError(t, err)
	require.Equal(t, 1, again.TotalProcessed)
}

func TestRunBatchAttachesLowConfidenceSuggestion(t *testing.T) {
	f := newFixture(t, &stubEnricher{result: &enrichment.Result{
		AccountID: store.SeedAccountID("4520"), AccountCode: "4520", Confidence: 55,
		Industry: enrichment.IndustryFood, Strategy: enrichment.StrategyCode, Reason: "code found",
	}})
	tx := f.insert(t, "-18.50", "", "Lunchbar De Hoek")

	report, err := f.orchestrator.RunBatch(context.Background(), []string{tx.ID}, 1)
	require.NoError(t, err)
	require.Equal(t, 1, report.NeedsReview)
	require.Equal(t, 0, report.AutoBooked)

	stored := f.status(t, tx.ID)
	require.Equal(t, models.StatusUnmatched, stored.Status)
	require.NotNil(t, stored.Suggested)
	require.Equal(t, 55, stored.Suggested.Score)
	require.Equal(t, models.SourceEnrichment, stored.Suggested.Source)
	require.Equal(t, store.SeedAccountID("4520"), stored.Suggested.Suggestion.AccountID)

	entries, err := f.store.EntriesForTransaction(context.Background(), tx.ID)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestManualBookingIsLearned(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first := f.insert(t, "-35.00", "Incasso", "New Vendor Co")
	report, err := f.orchestrator.RunBatch(ctx, []string{first.ID}, 1)
	require.NoError(t, err)
	require.Equal(t, 1, report.NeedsReview)

	result, err := f.orchestrator.BookManually(ctx, first.ID, store.SeedAccountID("4700"), "")
	require.NoError(t, err)
	require.Equal(t, models.StatusBooked, result.Status)

	second := f.insert(t, "-35.00", "Incasso", "New Vendor Co")
	_, outcome, err := f.orchestrator.Resolve(ctx, second.ID)
	require.NoError(t, err)
	require.Equal(t, models.SourceRule, outcome.Source)
	require.Equal(t, models.ConfidenceCertain, outcome.Score)
	require.Equal(t, store.SeedAccountID("4700"), outcome.Suggestion.AccountID)

	report, err = f.orchestrator.RunBatch(ctx, []string{second.ID}, 1)
	require.NoError(t, err)
	require.Equal(t, 1, report.AutoBooked)
}

func TestBookManuallyThroughRelation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	rel := &models.Relation{Name: "Jansen Installatie", Type: models.RelationSupplier, DefaultAccountID: store.SeedAccountID("4100"), Active: true}
	require.NoError(t, f.store.CreateRelation(ctx, rel))
	tx := f.insert(t, "-300.00", "Huur", "Verhuurder")

	result, err := f.orchestrator.BookManually(ctx, tx.ID, "", rel.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusPending, result.Status)
	require.Equal(t, rel.ID, f.status(t, tx.ID).ContactID)

	_, err = f.orchestrator.BookManually(ctx, tx.ID, store.SeedAccountID("4100"), "")
	require.True(t, errors.IsCategory(err, errors.CategoryPosting))

	_, err = f.orchestrator.BookManually(ctx, "missing", store.SeedAccountID("4100"), "")
	require.True(t, errors.IsCategory(err, errors.CategoryStore))
}

func TestRunBatchRecoversPanics(t *testing.T) {
	f := newFixture(t, nil)
	boom := f.insert(t, "-45.30", "SHELL", "")
	fine := f.insert(t, "-20.00", "KPN", "")

	o, err := NewOrchestrator(f.store, &panickingResolver{Resolver: f.resolver, panicOn: boom.ID},
		posting.NewPoster(f.store, logger.NewDiscardLogger()), nil, nil, logger.NewDiscardLogger())
	require.NoError(t, err)

	report, err := o.RunBatch(context.Background(), []string{boom.ID, fine.ID, "missing"}, 3)
	require.NoError(t, err)
	require.Equal(t, 3, report.TotalProcessed)
	require.Equal(t, 2, report.Errors)
	require.Equal(t, 1, report.AutoBooked)
	require.NotNil(t, report.ErrorSummary)
	require.Equal(t, 1, report.ErrorSummary.ByCategory[errors.CategoryInternal])
	require.Equal(t, 1, report.ErrorSummary.ByCategory[errors.CategoryStore])

	require.Equal(t, ActionError, report.Details[0].Action)
	require.Equal(t, errors.CodeUnexpectedError, report.Details[0].Error.Code)
	require.Equal(t, models.StatusUnmatched, f.status(t, boom.ID).Status)
}

func TestRunBatchSkipsPostedAndDuplicates(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	tx := f.insert(t, "-45.30", "SHELL", "")

	_, err := f.orchestrator.BookManually(ctx, tx.ID, store.SeedAccountID("4310"), "")
	require.NoError(t, err)

	report, err := f.orchestrator.RunBatch(ctx, []string{tx.ID, " " + tx.ID, ""}, 0)
	require.NoError(t, err)
	require.Equal(t, 1, report.TotalProcessed)
	require.Equal(t, 1, report.Skipped)
	require.Equal(t, DefaultConcurrency, report.Concurrency)
	require.Equal(t, "already booked", report.Details[0].Reason)
}

func TestRunBatchCancelled(t *testing.T) {
	f := newFixture(t, nil)
	a := f.insert(t, "-45.30", "SHELL", "")
	b := f.insert(t, "-20.00", "KPN", "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := f.orchestrator.RunBatch(ctx, []string{a.ID, b.ID}, 2)
	require.Error(t, err)
	be, ok := errors.AsBookkeepingError(err)
	require.True(t, ok)
	require.Equal(t, errors.CodeCancelled, be.Code)
	require.True(t, report.Cancelled)
	require.Equal(t, 2, report.Skipped)
}

func TestPrepareIDs(t *testing.T) {
	require.Equal(t, []string{"a", "b", "c"}, PrepareIDs([]string{" a", "b", "", "a", "c ", "b"}))
	require.Empty(t, PrepareIDs(nil))
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
	require.Error(t, (&Config{Concurrency: 0}).Validate())
	require.Error(t, (&Config{Concurrency: 1, ProgressLogInterval: -time.Second}).Validate())

	_, err := NewOrchestrator(nil, nil, nil, nil, nil, nil)
	require.Error(t, err)
}

func TestReportRate(t *testing.T) {
	r := &Report{Details: []*ItemResult{
		{Action: ActionAutoBooked}, {Action: ActionAutoBooked}, {Action: ActionNeedsReview}, {Action: ActionSkipped},
	}}
	r.tally()
	require.Equal(t, 4, r.TotalProcessed)
	require.InDelta(t, 50.0, r.AutoBookRate(), 0.001)
	require.False(t, r.HasErrors())
}

func (f *fixture) purchaseInvoice(t *testing.T) (*models.Relation, *models.Invoice) {
	t.Helper()
	ctx := context.Background()
	rel := &models.Relation{Name: "Jansen Installatie", Type: models.RelationSupplier, DefaultAccountID: store.SeedAccountID("4100"), Active: true}
	require.NoError(t, f.store.CreateRelation(ctx, rel))
	inv := &models.Invoice{Kind: models.InvoicePurchase, Number: "F-1", ContactID: rel.ID,
		Date: time.Date(2024, 12, 26, 0, 0, 0, 0, time.UTC), Total: decimal.RequireFromString("121.00"),
		VATRate: decimal.NewFromInt(21), Status: models.InvoicePending}
	require.NoError(t, f.store.InsertInvoice(ctx, inv))
	return rel, inv
}

func TestInvoiceMatchedOnlyOnceAcrossBatches(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, inv := f.purchaseInvoice(t)

	first := f.insert(t, "-121.00", "Factuur F-1", "Jansen Installatie")
	second := f.insert(t, "-121.00", "Termijn december", "Jansen Installatie")

	report, err := f.orchestrator.RunBatch(ctx, []string{first.ID}, 1)
	require.NoError(t, err)
	require.Equal(t, models.SourceInvoice, report.Details[0].Outcome.Source)
	require.Equal(t, inv.ID, f.status(t, first.ID).InvoiceID)

	report, err = f.orchestrator.RunBatch(ctx, []string{second.ID}, 1)
	require.NoError(t, err)
	require.Equal(t, 0, report.Errors)
	require.NotEqual(t, models.SourceInvoice, report.Details[0].Outcome.Source)
	require.Empty(t, f.status(t, second.ID).InvoiceID)

	open, err := f.store.OpenInvoices(ctx, models.InvoicePurchase, models.PayableStatuses(models.InvoicePurchase),
		inv.Date.AddDate(0, 0, -30), inv.Date.AddDate(0, 0, 30))
	require.NoError(t, err)
	require.Empty(t, open)
}

func TestInvoiceMatchedOnlyOnceWithinBatch(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, inv := f.purchaseInvoice(t)

	var ids []string
	for _, desc := range []string{"Factuur F-1", "Termijn december", "Restant december"} {
		ids = append(ids, f.insert(t, "-121.00", desc, "Jansen Installatie").ID)
	}

	report, err := f.orchestrator.RunBatch(ctx, ids, 3)
	require.NoError(t, err)
	require.Equal(t, 0, report.Errors)
	require.Equal(t, 3, report.AutoBooked)

	holders := 0
	for _, id := range ids {
		if f.status(t, id).InvoiceID == inv.ID {
			holders++
		}
	}
	require.Equal(t, 1, holders, "invoice F-1 must be held by exactly one transaction")
}
