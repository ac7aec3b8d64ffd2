// Package learning turns confirmed bookings into keyword rules so the same
// counterparty resolves through the rule stage next time.
package learning

import (
	"context"
	"strings"
	"unicode/utf8"

	"golang-bookkeeping-service/internal/models"
	"golang-bookkeeping-service/pkg/logger"
)

// DefaultMinCounterpartyLength is the shortest counterparty name a rule is
// learned from. Shorter names match too much.
const DefaultMinCounterpartyLength = 4

// RuleWriter upserts a rule keyed on a counterparty
type RuleWriter interface {
	UpsertRule(ctx context.Context, pattern, accountID, contactID string) (*models.Rule, error)
}

// Writer is the feedback writer
type Writer struct {
	rules     RuleWriter
	minLength int
	logger    logger.Logger
}

// NewWriter creates a writer. A minLength below 1 uses the default.
func NewWriter(rules RuleWriter, minLength int, log logger.Logger) *Writer {
	if minLength < 1 {
		minLength = DefaultMinCounterpartyLength
	}
	return &Writer{
		rules:     rules,
		minLength: minLength,
		logger:    logger.OrGlobal(log, "learning"),
	}
}

// Learn records the booking of tx so its counterparty maps to accountID (and
// contactID in relation mode). It returns the upserted rule, or nil when the
// counterparty is missing or too short to learn from.
func (w *Writer) Learn(ctx context.Context, tx *models.Transaction, mode models.BookingMode, accountID, contactID string) (*models.Rule, error) {
	if tx == nil {
		return nil, nil
	}
	pattern := strings.TrimSpace(tx.CounterpartyName)
	if utf8.RuneCountInString(pattern) < w.minLength {
		w.logger.WithField("transaction_id", tx.ID).Debug("Counterparty too short to learn from")
		return nil, nil
	}
	if mode != models.ModeRelation {
		contactID = ""
	}
	if accountID == "" && contactID == "" {
		return nil, nil
	}

	rule, err := w.rules.UpsertRule(ctx, pattern, accountID, contactID)
	if err != nil {
		return nil, err
	}
	w.logger.WithFields(logger.Fields{
		"transaction_id": tx.ID,
		"keyword":        rule.Keyword,
		"rule_id":        rule.ID,
		"mode":           mode,
	}).Info("Learned rule from booking")
	return rule, nil
}
