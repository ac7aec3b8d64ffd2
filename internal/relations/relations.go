// Package relations matches cleaned counterparty text against the known
// bookkeeping relations.
package relations

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"golang-bookkeeping-service/internal/enrichment"
	"golang-bookkeeping-service/internal/models"
	"golang-bookkeeping-service/internal/normalizer"
	"golang-bookkeeping-service/pkg/logger"
)

// MinContainedLength is the shortest string that may satisfy the containment
// test. Shorter fragments ("BV", "NL") would match half the relation list.
const MinContainedLength = 3

// AccountSource says where a relation match got its ledger account from
type AccountSource string

const (
	AccountFromDefault    AccountSource = "default_account"
	AccountFromEnrichment AccountSource = "enrichment"
	AccountUnresolved     AccountSource = "unresolved"
)

// Store is the persistence the relation matcher needs
type Store interface {
	ActiveRelations(ctx context.Context) ([]*models.Relation, error)
	AccountByID(ctx context.Context, id string) (*models.Account, error)
}

// Enricher infers a ledger account for a counterparty name
type Enricher interface {
	Enrich(ctx context.Context, req enrichment.Request) (*enrichment.Result, error)
}

// Match is a relation hit. Account is nil when neither the relation's default
// nor enrichment produced a bookable account; the relation match stands anyway.
type Match struct {
	Relation   *models.Relation
	Account    *models.Account
	Source     AccountSource
	Confidence int
	Reason     string
}

// Matcher finds relations by bidirectional containment
type Matcher struct {
	store    Store
	enricher Enricher
	logger   logger.Logger
}

// NewMatcher creates a relation matcher. enricher may be nil.
func NewMatcher(store Store, enricher Enricher, log logger.Logger) *Matcher {
	return &Matcher{
		store:    store,
		enricher: enricher,
		logger:   logger.OrGlobal(log, "relations"),
	}
}

// Contains reports whether cleaned and name contain one another, ignoring
// case, with the contained side at least MinContainedLength runes long.
func Contains(cleaned, name string) bool {
	a := strings.ToLower(strings.TrimSpace(cleaned))
	b := strings.ToLower(strings.TrimSpace(name))
	shorter := a
	if utf8.RuneCountInString(b) < utf8.RuneCountInString(a) {
		shorter = b
	}
	if utf8.RuneCountInString(shorter) < MinContainedLength {
		return false
	}
	return normalizer.ContainsEither(a, b)
}

// FindRelation returns the first active relation, in store order, whose name
// and cleaned contain one another, or nil. The relation's default account is
// used when it is bookable; otherwise enrichment is asked for one.
func (m *Matcher) FindRelation(ctx context.Context, cleaned string, amount decimal.Decimal) (*Match, error) {
	if strings.TrimSpace(cleaned) == "" {
		return nil, nil
	}

	relations, err := m.store.ActiveRelations(ctx)
	if err != nil {
		return nil, err
	}

	var hit *models.Relation
	for _, r := range relations {
		if Contains(cleaned, r.Name) {
			hit = r
			break
		}
	}
	if hit == nil {
		return nil, nil
	}

	log := m.logger.WithFields(logger.Fields{"relation_id": hit.ID, "relation": hit.Name})
	match := &Match{Relation: hit, Source: AccountUnresolved, Confidence: models.ConfidenceCertain}

	if hit.DefaultAccountID != "" {
		acct, err := m.store.AccountByID(ctx, hit.DefaultAccountID)
		if err != nil {
			return nil, err
		}
		if acct.IsBookable() {
			match.Account = acct
			match.Source = AccountFromDefault
			match.Reason = "relation " + hit.Name + " with default account " + acct.String()
			log.Debug("Relation matched with default account")
			return match, nil
		}
		log.WithField("account_id", hit.DefaultAccountID).Warn("Relation default account is not bookable")
	}

	match.Reason = "relation " + hit.Name + " without a usable default account"
	if m.enricher == nil {
		return match, nil
	}

	res, err := m.enricher.Enrich(ctx, enrichment.Request{Name: hit.Name, Amount: amount.Abs()})
	if err != nil {
		log.WithError(err).Warn("Enrichment for relation failed")
		return match, nil
	}
	if res == nil || res.AccountID == "" {
		return match, nil
	}

	acct, err := m.store.AccountByID(ctx, res.AccountID)
	if err != nil {
		return nil, err
	}
	if !acct.IsBookable() {
		return match, nil
	}
	match.Account = acct
	match.Source = AccountFromEnrichment
	match.Reason = "relation " + hit.Name + ", account inferred: " + res.Reason
	log.WithField("account_code", acct.Code).Debug("Relation matched with enriched account")
	return match, nil
}
