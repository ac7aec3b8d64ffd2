package matcher

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"golang-bookkeeping-service/internal/enrichment"
	"golang-bookkeeping-service/internal/models"
	"golang-bookkeeping-service/internal/normalizer"
	"golang-bookkeeping-service/internal/relations"
	"golang-bookkeeping-service/internal/vendors"
	"golang-bookkeeping-service/pkg/errors"
	"golang-bookkeeping-service/pkg/logger"
)

// Store is the persistence the resolver reads from
type Store interface {
	OpenInvoices(ctx context.Context, kind models.InvoiceKind, statuses []models.InvoiceStatus, from, to time.Time) ([]*models.Invoice, error)
	AccountByID(ctx context.Context, id string) (*models.Account, error)
	AccountByCode(ctx context.Context, code string) (*models.Account, error)
	RelationByID(ctx context.Context, id string) (*models.Relation, error)
	CreateRelation(ctx context.Context, r *models.Relation) error
}

// RuleFinder finds the user rule for cleaned counterparty text
type RuleFinder interface {
	FindMatchingRule(ctx context.Context, cleaned string) (*models.Rule, error)
}

// RelationFinder finds a known relation for cleaned counterparty text
type RelationFinder interface {
	FindRelation(ctx context.Context, cleaned string, amount decimal.Decimal) (*relations.Match, error)
}

// Enricher infers an account for an unknown merchant
type Enricher interface {
	Enrich(ctx context.Context, req enrichment.Request) (*enrichment.Result, error)
}

// Resolver runs the matching stages for one transaction at a time. It is safe
// for concurrent use as long as its collaborators are.
type Resolver struct {
	store     Store
	rules     RuleFinder
	relations RelationFinder
	enricher  Enricher
	config    *MatchingConfig
	logger    logger.Logger
}

// NewResolver creates a resolver. enricher may be nil, which skips the
// enrichment stage.
func NewResolver(store Store, rules RuleFinder, relations RelationFinder, enricher Enricher, config *MatchingConfig, log logger.Logger) *Resolver {
	if config == nil {
		config = DefaultMatchingConfig()
	}
	return &Resolver{
		store:     store,
		rules:     rules,
		relations: relations,
		enricher:  enricher,
		config:    config,
		logger:    logger.OrGlobal(log, "resolver"),
	}
}

// Config returns a copy of the resolver configuration
func (r *Resolver) Config() *MatchingConfig {
	return r.config.Clone()
}

type stage struct {
	name string
	run  func(ctx context.Context, tx *models.Transaction, cleaned string) (*models.ConfidenceOutcome, error)
}

func (r *Resolver) stages() []stage {
	return []stage{
		{"invoice", r.matchInvoice},
		{"rule", r.matchRule},
		{"relation", r.matchRelation},
		{"vendor", r.matchVendor},
		{"enrichment", r.matchEnrichment},
	}
}

// Input returns the cleaned text every stage matches against: the counterparty
// name when it is long enough, the description otherwise.
func (r *Resolver) Input(tx *models.Transaction) string {
	counterparty := strings.TrimSpace(tx.CounterpartyName)
	if utf8.RuneCountInString(counterparty) >= r.config.MinCounterpartyLength {
		if cleaned := normalizer.Clean(counterparty); cleaned != "" {
			return cleaned
		}
	}
	return normalizer.Clean(tx.Description)
}

// Resolve returns the outcome of the first stage that matches, or a no-match
// outcome. Only store failures are returned as errors.
func (r *Resolver) Resolve(ctx context.Context, tx *models.Transaction) (*models.ConfidenceOutcome, error) {
	if tx == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "transaction", nil, nil)
	}

	cleaned := r.Input(tx)
	log := r.logger.WithFields(logger.Fields{
		"transaction_id": tx.ID,
		"input":          cleaned,
	})

	for _, s := range r.stages() {
		if err := ctx.Err(); err != nil {
			return nil, errors.InternalError(errors.CodeCancelled, "resolve", err)
		}
		outcome, err := s.run(ctx, tx, cleaned)
		if err != nil {
			return nil, err
		}
		if outcome != nil {
			log.WithFields(logger.Fields{
				"stage":      s.name,
				"confidence": outcome.Score,
				"mode":       outcome.Suggestion.Mode,
			}).Debug("Stage matched")
			return outcome, nil
		}
		log.WithField("stage", s.name).Debug("Stage found nothing")
	}

	if cleaned == "" {
		return models.NoMatch("transaction has no usable counterparty or description"), nil
	}
	return models.NoMatch(fmt.Sprintf("no invoice, rule, relation, vendor or enrichment match for %q", cleaned)), nil
}

// invoiceCandidate is an open invoice scored against a transaction
type invoiceCandidate struct {
	invoice          *models.Invoice
	amountDifference decimal.Decimal
	dateDifference   time.Duration
}

func (r *Resolver) matchInvoice(ctx context.Context, tx *models.Transaction, cleaned string) (*models.ConfidenceOutcome, error) {
	kind := models.InvoiceSales
	if tx.IsOutgoing() {
		kind = models.InvoicePurchase
	}

	from, to := r.config.InvoiceWindow(tx.Date)
	invoices, err := r.store.OpenInvoices(ctx, kind, models.PayableStatuses(kind), from, to)
	if err != nil {
		return nil, err
	}

	candidates := r.scoreInvoiceCandidates(tx, invoices)
	if len(candidates) == 0 {
		return nil, nil
	}
	inv := candidates[0].invoice

	rel, err := r.store.RelationByID(ctx, inv.ContactID)
	if err != nil {
		return nil, err
	}

	accountID, accountNote, err := r.invoiceAccount(ctx, inv, rel, tx)
	if err != nil {
		return nil, err
	}

	contactName := inv.ContactID
	if rel != nil {
		contactName = rel.Name
	}
	return &models.ConfidenceOutcome{
		Score:  models.ConfidenceCertain,
		Source: models.SourceInvoice,
		Reason: fmt.Sprintf("%s invoice %s of %s for %s dated %s%s",
			inv.Kind, inv.Number, contactName, inv.Total.StringFixed(2), inv.Date.Format(models.DateLayout), accountNote),
		Suggestion: &models.Suggestion{
			Mode:        models.ModeRelation,
			AccountID:   accountID,
			ContactID:   inv.ContactID,
			InvoiceID:   inv.ID,
			Description: fmt.Sprintf("Payment of invoice %s", inv.Number),
		},
	}, nil
}

// scoreInvoiceCandidates keeps invoices within tolerance and window, closest
// amount first, then closest date.
func (r *Resolver) scoreInvoiceCandidates(tx *models.Transaction, invoices []*models.Invoice) []invoiceCandidate {
	var out []invoiceCandidate
	for _, inv := range invoices {
		if !inv.AwaitsPayment() {
			continue
		}
		if !r.config.IsWithinAmountTolerance(tx.Amount, inv.Total) || !r.config.IsWithinInvoiceWindow(tx.Date, inv.Date) {
			continue
		}
		diff := models.TruncateDay(inv.Date).Sub(models.TruncateDay(tx.Date))
		out = append(out, invoiceCandidate{
			invoice:          inv,
			amountDifference: tx.AbsoluteAmount().Sub(inv.Total).Abs(),
			dateDifference:   diff,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].amountDifference.Equal(out[j].amountDifference) {
			return out[i].amountDifference.LessThan(out[j].amountDifference)
		}
		return out[i].dateDifference < out[j].dateDifference
	})
	return out
}

// invoiceAccount picks the account for an invoice match: the relation's
// default, the invoice's own account, then enrichment.
func (r *Resolver) invoiceAccount(ctx context.Context, inv *models.Invoice, rel *models.Relation, tx *models.Transaction) (string, string, error) {
	if rel != nil && rel.DefaultAccountID != "" {
		acct, err := r.store.AccountByID(ctx, rel.DefaultAccountID)
		if err != nil {
			return "", "", err
		}
		if acct.IsBookable() {
			return acct.ID, "", nil
		}
	}
	if inv.AccountID != "" {
		acct, err := r.store.AccountByID(ctx, inv.AccountID)
		if err != nil {
			return "", "", err
		}
		if acct.IsBookable() {
			return acct.ID, "", nil
		}
	}
	if r.enricher == nil || rel == nil {
		return "", ", no account known", nil
	}

	res, err := r.enricher.Enrich(ctx, enrichment.Request{Name: rel.Name, Amount: tx.AbsoluteAmount()})
	if err != nil || res == nil {
		return "", ", no account known", nil
	}
	acct, err := r.store.AccountByID(ctx, res.AccountID)
	if err != nil {
		return "", "", err
	}
	if !acct.IsBookable() {
		return "", ", no account known", nil
	}
	return acct.ID, ", account inferred: " + res.Reason, nil
}

func (r *Resolver) matchRule(ctx context.Context, tx *models.Transaction, cleaned string) (*models.ConfidenceOutcome, error) {
	rule, err := r.rules.FindMatchingRule(ctx, cleaned)
	if err != nil || rule == nil {
		return nil, err
	}

	var accountID string
	if rule.AccountID != "" {
		acct, err := r.store.AccountByID(ctx, rule.AccountID)
		if err != nil {
			return nil, err
		}
		if acct.IsBookable() {
			accountID = acct.ID
		} else {
			r.logger.WithFields(logger.Fields{"rule_id": rule.ID, "account_id": rule.AccountID}).
				Warn("Rule targets an account that cannot be booked")
		}
	}

	mode := models.ModeDirect
	if rule.ContactID != "" {
		mode = models.ModeRelation
		if accountID == "" {
			rel, err := r.store.RelationByID(ctx, rule.ContactID)
			if err != nil {
				return nil, err
			}
			if rel != nil && rel.DefaultAccountID != "" {
				acct, err := r.store.AccountByID(ctx, rel.DefaultAccountID)
				if err != nil {
					return nil, err
				}
				if acct.IsBookable() {
					accountID = acct.ID
				}
			}
		}
	}

	if accountID == "" && mode == models.ModeDirect {
		return nil, nil
	}
	return &models.ConfidenceOutcome{
		Score:  models.ConfidenceCertain,
		Source: models.SourceRule,
		Reason: fmt.Sprintf("rule %q (priority %d, used %d times)", rule.Keyword, rule.Priority, rule.UsageCount),
		Suggestion: &models.Suggestion{
			Mode:        mode,
			AccountID:   accountID,
			ContactID:   rule.ContactID,
			Description: describe(tx, cleaned),
		},
	}, nil
}

func (r *Resolver) matchRelation(ctx context.Context, tx *models.Transaction, cleaned string) (*models.ConfidenceOutcome, error) {
	match, err := r.relations.FindRelation(ctx, cleaned, tx.Amount)
	if err != nil || match == nil {
		return nil, err
	}

	var accountID string
	if match.Account != nil {
		accountID = match.Account.ID
	}
	return &models.ConfidenceOutcome{
		Score:  match.Confidence,
		Source: models.SourceCRM,
		Reason: match.Reason,
		Suggestion: &models.Suggestion{
			Mode:        models.ModeRelation,
			AccountID:   accountID,
			ContactID:   match.Relation.ID,
			Description: describe(tx, cleaned),
		},
	}, nil
}

func (r *Resolver) matchVendor(ctx context.Context, tx *models.Transaction, cleaned string) (*models.ConfidenceOutcome, error) {
	m, ok := vendors.MatchVendor(cleaned)
	if !ok {
		return nil, nil
	}

	acct, err := r.store.AccountByCode(ctx, m.AccountCode)
	if err != nil {
		return nil, err
	}
	if !acct.IsBookable() {
		r.logger.WithFields(logger.Fields{"keyword": m.Keyword, "account_code": m.AccountCode}).
			Warn("Vendor account is missing or cannot be booked")
		return nil, nil
	}

	return &models.ConfidenceOutcome{
		Score:  models.ConfidenceCertain,
		Source: models.SourceVendor,
		Reason: fmt.Sprintf("known %s merchant %s", m.Category, m.Keyword),
		Suggestion: &models.Suggestion{
			Mode:        models.ModeDirect,
			AccountID:   acct.ID,
			Description: describe(tx, cleaned),
		},
	}, nil
}

func (r *Resolver) matchEnrichment(ctx context.Context, tx *models.Transaction, cleaned string) (*models.ConfidenceOutcome, error) {
	if r.enricher == nil || cleaned == "" {
		return nil, nil
	}

	res, err := r.enricher.Enrich(ctx, enrichment.Request{Name: cleaned, Amount: tx.AbsoluteAmount()})
	if err != nil {
		return nil, err
	}
	if res == nil || res.AccountID == "" {
		return nil, nil
	}

	acct, err := r.store.AccountByID(ctx, res.AccountID)
	if err != nil {
		return nil, err
	}
	if !acct.IsBookable() {
		return nil, nil
	}

	outcome := &models.ConfidenceOutcome{
		Score:  res.Confidence,
		Source: models.SourceEnrichment,
		Reason: fmt.Sprintf("%s merchant, %s: %s", res.Industry, res.Strategy, res.Reason),
		Suggestion: &models.Suggestion{
			Mode:        models.ModeDirect,
			AccountID:   acct.ID,
			Description: describe(tx, cleaned),
		},
	}

	if r.config.AutoCreateRelations && res.Confidence >= r.config.AutoBookThreshold {
		rel, err := r.createRelation(ctx, tx, cleaned, acct.ID)
		if err != nil {
			return nil, err
		}
		outcome.Suggestion.Mode = models.ModeRelation
		outcome.Suggestion.ContactID = rel.ID
		outcome.Reason += ", relation " + rel.Name + " created"
	}
	return outcome, nil
}

func (r *Resolver) createRelation(ctx context.Context, tx *models.Transaction, cleaned, accountID string) (*models.Relation, error) {
	name := strings.TrimSpace(tx.CounterpartyName)
	if utf8.RuneCountInString(name) < r.config.MinCounterpartyLength {
		name = cleaned
	}
	typ := models.RelationCustomer
	if tx.IsOutgoing() {
		typ = models.RelationSupplier
	}

	rel := &models.Relation{
		Name:             name,
		Type:             typ,
		IBAN:             tx.CounterpartyIBAN,
		DefaultAccountID: accountID,
		Active:           true,
	}
	if err := r.store.CreateRelation(ctx, rel); err != nil {
		return nil, err
	}
	r.logger.WithFields(logger.Fields{"relation_id": rel.ID, "relation": rel.Name}).Info("Created relation from enrichment")
	return rel, nil
}

func describe(tx *models.Transaction, cleaned string) string {
	if cleaned != "" {
		return cleaned
	}
	return strings.TrimSpace(tx.Description)
}
