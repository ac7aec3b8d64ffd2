// Package rules reads and writes keyword rules, the first and fully
// deterministic resolution path after invoice matching.
package rules

import (
	"context"
	"strings"
	"time"

	"golang-bookkeeping-service/internal/models"
	"golang-bookkeeping-service/internal/normalizer"
	"golang-bookkeeping-service/pkg/errors"
	"golang-bookkeeping-service/pkg/logger"
)

// Store is the persistence the rule accessor needs
type Store interface {
	ActiveRules(ctx context.Context) ([]*models.Rule, error)
	RuleByKeyword(ctx context.Context, keyword string) (*models.Rule, error)
	MaxRulePriority(ctx context.Context) (int, error)
	InsertRule(ctx context.Context, r *models.Rule) error
	TouchRule(ctx context.Context, id, accountID, contactID string, at time.Time) error
}

// Accessor finds and upserts rules
type Accessor struct {
	store  Store
	logger logger.Logger
	now    func() time.Time
}

// NewAccessor creates a rule accessor over store
func NewAccessor(store Store, log logger.Logger) *Accessor {
	return &Accessor{
		store:  store,
		logger: logger.OrGlobal(log, "rules"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// FindMatchingRule returns the first active rule, in descending priority, whose
// keyword matches cleaned, or nil. Keywords are normalized the same way as the
// input so a rule learned from a raw counterparty still matches its cleaned form.
func (a *Accessor) FindMatchingRule(ctx context.Context, cleaned string) (*models.Rule, error) {
	if strings.TrimSpace(cleaned) == "" {
		return nil, nil
	}

	rules, err := a.store.ActiveRules(ctx)
	if err != nil {
		return nil, err
	}

	for _, r := range rules {
		if Matches(r, cleaned) {
			a.logger.WithFields(logger.Fields{
				"rule_id":  r.ID,
				"keyword":  r.Keyword,
				"priority": r.Priority,
			}).Debug("Rule matched")
			return r, nil
		}
	}
	return nil, nil
}

// Matches reports whether the rule keyword matches cleaned text. Exact rules
// compare the whole string ignoring case; contains rules need a whole-token match.
func Matches(r *models.Rule, cleaned string) bool {
	keyword := normalizer.Clean(r.Keyword)
	if keyword == "" {
		return false
	}
	switch r.MatchType {
	case models.MatchExact:
		return strings.EqualFold(keyword, strings.TrimSpace(cleaned))
	default:
		return normalizer.MatchesKeyword(cleaned, keyword)
	}
}

// UpsertRule records a booking decision for pattern. An existing rule with the
// same keyword (ignoring case) gets its usage counter and last-used time bumped
// and its targets updated; otherwise a contains rule is created above every
// existing priority.
func (a *Accessor) UpsertRule(ctx context.Context, pattern, accountID, contactID string) (*models.Rule, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return nil, errors.ValidationError(errors.CodeMissingField, "pattern", pattern, nil)
	}
	if accountID == "" && contactID == "" {
		return nil, errors.ValidationError(errors.CodeMissingField, "account_id", accountID, nil)
	}

	now := a.now()
	existing, err := a.store.RuleByKeyword(ctx, pattern)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if err := a.store.TouchRule(ctx, existing.ID, accountID, contactID, now); err != nil {
			return nil, err
		}
		existing.UsageCount++
		existing.LastUsed = &now
		if accountID != "" {
			existing.AccountID = accountID
		}
		if contactID != "" {
			existing.ContactID = contactID
		}
		a.logger.WithFields(logger.Fields{
			"rule_id":     existing.ID,
			"keyword":     existing.Keyword,
			"usage_count": existing.UsageCount,
		}).Debug("Rule usage recorded")
		return existing, nil
	}

	highest, err := a.store.MaxRulePriority(ctx)
	if err != nil {
		return nil, err
	}

	rule := &models.Rule{
		Keyword:    pattern,
		MatchType:  models.MatchContains,
		AccountID:  accountID,
		ContactID:  contactID,
		Priority:   highest + 1,
		Active:     true,
		UsageCount: 1,
		LastUsed:   &now,
		CreatedAt:  now,
	}
	if err := a.store.InsertRule(ctx, rule); err != nil {
		return nil, err
	}

	a.logger.WithFields(logger.Fields{
		"rule_id":  rule.ID,
		"keyword":  rule.Keyword,
		"priority": rule.Priority,
	}).Info("Rule created")
	return rule, nil
}
