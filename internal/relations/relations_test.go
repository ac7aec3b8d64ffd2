package relations

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang-bookkeeping-service/internal/enrichment"
	"golang-bookkeeping-service/internal/models"
	"golang-bookkeeping-service/pkg/logger"
)

type fakeStore struct {
	relations []*models.Relation
	accounts  map[string]*models.Account
}

func (f *fakeStore) ActiveRelations(ctx context.Context) ([]*models.Relation, error) {
	return f.relations, nil
}

func (f *fakeStore) AccountByID(ctx context.Context, id string) (*models.Account, error) {
	return f.accounts[id], nil
}

type fakeEnricher struct {
	result *enrichment.Result
	err    error
	got    []enrichment.Request
}

func (f *fakeEnricher) Enrich(ctx context.Context, req enrichment.Request) (*enrichment.Result, error) {
	f.got = append(f.got, req)
	return f.result, f.err
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		relations: []*models.Relation{
			{ID: "r-jansen", Name: "Jansen Installatietechniek", Type: models.RelationSupplier, DefaultAccountID: "a-4400", Active: true},
			{ID: "r-bakker", Name: "Bakker BV", Type: models.RelationCustomer, Active: true},
			{ID: "r-deprec", Name: "Verhuur Noord", Type: models.RelationSupplier, DefaultAccountID: "a-4210", Active: true},
		},
		accounts: map[string]*models.Account{
			"a-4400": {ID: "a-4400", Code: "4400", Name: "Kantoorkosten", Type: models.AccountExpense, Active: true},
			"a-4210": {ID: "a-4210", Code: "4210", Name: "Afschrijvingen", Type: models.AccountExpense, Active: true},
			"a-4100": {ID: "a-4100", Code: "4100", Name: "Huisvesting huur", Type: models.AccountExpense, Active: true},
		},
	}
}

func TestContains(t *testing.T) {
	tests := []struct {
		cleaned, name string
		want          bool
	}{
		{"JANSEN INSTALLATIETECHNIEK UTRECHT", "Jansen Installatietechniek", true},
		{"Bakker", "Bakker BV", true},
		{"BV", "Bakker BV", false},
		{"Jan", "Jansen", true},
		{"", "Jansen", false},
		{"Pietersen", "Jansen", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Contains(tt.cleaned, tt.name), "%q vs %q", tt.cleaned, tt.name)
	}
}

func TestFindRelationUsesDefaultAccount(t *testing.T) {
	enricher := &fakeEnricher{}
	m := NewMatcher(newFakeStore(), enricher, logger.NewDiscardLogger())

	match, err := m.FindRelation(context.Background(), "JANSEN INSTALLATIETECHNIEK", decimal.NewFromInt(-250))
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, "r-jansen", match.Relation.ID)
	assert.Equal(t, "4400", match.Account.Code)
	assert.Equal(t, AccountFromDefault, match.Source)
	assert.Equal(t, models.ConfidenceCertain, match.Confidence)
	assert.Empty(t, enricher.got)
}

func TestFindRelationEnrichesWithoutDefault(t *testing.T) {
	enricher := &fakeEnricher{result: &enrichment.Result{AccountID: "a-4100", AccountCode: "4100", Confidence: 65, Reason: "housing"}}
	m := NewMatcher(newFakeStore(), enricher, logger.NewDiscardLogger())

	match, err := m.FindRelation(context.Background(), "BAKKER BV AMSTERDAM", decimal.NewFromInt(-1200))
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, "r-bakker", match.Relation.ID)
	assert.Equal(t, "4100", match.Account.Code)
	assert.Equal(t, AccountFromEnrichment, match.Source)
	assert.Equal(t, models.ConfidenceCertain, match.Confidence)

	require.Len(t, enricher.got, 1)
	assert.Equal(t, "Bakker BV", enricher.got[0].Name)
	assert.True(t, enricher.got[0].Amount.Equal(decimal.NewFromInt(1200)))
}

func TestFindRelationIgnoresBlacklistedDefault(t *testing.T) {
	m := NewMatcher(newFakeStore(), nil, logger.NewDiscardLogger())

	match, err := m.FindRelation(context.Background(), "VERHUUR NOORD", decimal.NewFromInt(-80))
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Nil(t, match.Account)
	assert.Equal(t, AccountUnresolved, match.Source)
	assert.Equal(t, models.ConfidenceCertain, match.Confidence)
}

func TestFindRelationSurvivesEnrichmentFailure(t *testing.T) {
	enricher := &fakeEnricher{err: fmt.Errorf("boom")}
	m := NewMatcher(newFakeStore(), enricher, logger.NewDiscardLogger())

	match, err := m.FindRelation(context.Background(), "Bakker BV", decimal.NewFromInt(10))
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Nil(t, match.Account)
}

func TestFindRelationNoHit(t *testing.T) {
	m := NewMatcher(newFakeStore(), nil, logger.NewDiscardLogger())

	for _, cleaned := range []string{"", "ALBERT HEIJN", "BV"} {
		match, err := m.FindRelation(context.Background(), cleaned, decimal.NewFromInt(10))
		require.NoError(t, err)
		assert.Nil(t, match, cleaned)
	}
}

func TestFindRelationFirstInStoreOrderWins(t *testing.T) {
	store := newFakeStore()
	store.relations = append([]*models.Relation{{ID: "r-first", Name: "Jansen", Type: models.RelationSupplier, Active: true}}, store.relations...)
	m := NewMatcher(store, nil, logger.NewDiscardLogger())

	match, err := m.FindRelation(context.Background(), "JANSEN INSTALLATIETECHNIEK", decimal.NewFromInt(-5))
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, "r-first", match.Relation.ID)
}
