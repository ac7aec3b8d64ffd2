package learning

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"golang-bookkeeping-service/internal/models"
	"golang-bookkeeping-service/pkg/logger"
)

type upsert struct {
	pattern, accountID, contactID string
}

type fakeRules struct {
	calls []upsert
	err   error
}

func (f *fakeRules) UpsertRule(ctx context.Context, pattern, accountID, contactID string) (*models.Rule, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.calls = append(f.calls, upsert{pattern, accountID, contactID})
	return &models.Rule{ID: "rule-1", Keyword: pattern, AccountID: accountID, ContactID: contactID}, nil
}

func tx(counterparty string) *models.Transaction {
	return &models.Transaction{ID: "tx-1", CounterpartyName: counterparty}
}

func TestLearnDirect(t *testing.T) {
	rules := &fakeRules{}
	w := NewWriter(rules, 0, logger.NewDiscardLogger())

	rule, err := w.Learn(context.Background(), tx("  Bakkerij Jansen "), models.ModeDirect, "acc-4520", "rel-1")
	require.NoError(t, err)
	require.NotNil(t, rule)
	require.Equal(t, []upsert{{"Bakkerij Jansen", "acc-4520", ""}}, rules.calls)
}

func TestLearnRelationKeepsContact(t *testing.T) {
	rules := &fakeRules{}
	w := NewWriter(rules, 4, logger.NewDiscardLogger())

	_, err := w.Learn(context.Background(), tx("Acme BV"), models.ModeRelation, "acc-8000", "rel-1")
	require.NoError(t, err)
	require.Equal(t, []upsert{{"Acme BV", "acc-8000", "rel-1"}}, rules.calls)
}

func TestLearnSkipsShortCounterparty(t *testing.T) {
	tests := []struct {
		name         string
		counterparty string
		learned      bool
	}{
		{"empty", "", false},
		{"three runes", "KPN", false},
		{"padded three runes", "  KPN  ", false},
		{"four runes", "ANWB", true},
		{"accented", "Café", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rules := &fakeRules{}
			w := NewWriter(rules, DefaultMinCounterpartyLength, logger.NewDiscardLogger())
			rule, err := w.Learn(context.Background(), tx(tt.counterparty), models.ModeDirect, "acc", "")
			require.NoError(t, err)
			require.Equal(t, tt.learned, rule != nil)
			require.Equal(t, tt.learned, len(rules.calls) == 1)
		})
	}
}

func TestLearnNothingToPointAt(t *testing.T) {
	rules := &fakeRules{}
	w := NewWriter(rules, 0, logger.NewDiscardLogger())

	rule, err := w.Learn(context.Background(), tx("Acme BV"), models.ModeDirect, "", "rel-1")
	require.NoError(t, err)
	require.Nil(t, rule)
	require.Empty(t, rules.calls)
}

func TestLearnPropagatesStoreError(t *testing.T) {
	w := NewWriter(&fakeRules{err: fmt.Errorf("disk full")}, 0, logger.NewDiscardLogger())

	_, err := w.Learn(context.Background(), tx("Acme BV"), models.ModeDirect, "acc", "")
	require.Error(t, err)
}
