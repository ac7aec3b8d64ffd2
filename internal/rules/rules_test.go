package rules

import (
	"context"
	"sort"
	"strings"
	"testing"
	"time"

	"golang-bookkeeping-service/internal/models"
	"golang-bookkeeping-service/pkg/logger"
)

type fakeStore struct {
	rules  []*models.Rule
	nextID int
}

func (f *fakeStore) ActiveRules(ctx context.Context) ([]*models.Rule, error) {
	var out []*models.Rule
	for _, r := range f.rules {
		if r.Active {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out, nil
}

func (f *fakeStore) RuleByKeyword(ctx context.Context, keyword string) (*models.Rule, error) {
	for _, r := range f.rules {
		if strings.EqualFold(r.Keyword, keyword) {
			return r, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) MaxRulePriority(ctx context.Context) (int, error) {
	highest := 0
	for _, r := range f.rules {
		if r.Priority > highest {
			highest = r.Priority
		}
	}
	return highest, nil
}

func (f *fakeStore) InsertRule(ctx context.Context, r *models.Rule) error {
	f.nextID++
	r.ID = "rule-" + string(rune('a'+f.nextID))
	copied := *r
	f.rules = append(f.rules, &copied)
	return nil
}

func (f *fakeStore) TouchRule(ctx context.Context, id, accountID, contactID string, at time.Time) error {
	for _, r := range f.rules {
		if r.ID == id {
			r.UsageCount++
			r.LastUsed = &at
			if accountID != "" {
				r.AccountID = accountID
			}
			if contactID != "" {
				r.ContactID = contactID
			}
		}
	}
	return nil
}

func rule(id, keyword string, mt models.RuleMatchType, priority int) *models.Rule {
	return &models.Rule{ID: id, Keyword: keyword, MatchType: mt, AccountID: "acct-" + id, Priority: priority, Active: true}
}

func TestFindMatchingRule(t *testing.T) {
	store := &fakeStore{rules: []*models.Rule{
		rule("low", "SHELL", models.MatchContains, 1),
		rule("high", "SHELL UTRECHT", models.MatchContains, 5),
		rule("exact", "KPN", models.MatchExact, 3),
		rule("bp", "BP", models.MatchContains, 2),
		{ID: "off", Keyword: "JUMBO", MatchType: models.MatchContains, AccountID: "x", Priority: 9, Active: false},
	}}
	a := NewAccessor(store, logger.NewDiscardLogger())

	tests := []struct {
		name    string
		cleaned string
		wantID  string
	}{
		{"highest priority wins", "SHELL UTRECHT", "high"},
		{"lower priority when higher misses", "SHELL AMSTERDAM", "low"},
		{"exact matches whole string", "kpn", "exact"},
		{"exact rejects longer text", "KPN abonnement", ""},
		{"word boundary", "BPost pakket", ""},
		{"word boundary hit", "BP Station A12", "bp"},
		{"inactive rules ignored", "JUMBO ZWOLLE", ""},
		{"empty input", "  ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := a.FindMatchingRule(context.Background(), tt.cleaned)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			gotID := ""
			if got != nil {
				gotID = got.ID
			}
			if gotID != tt.wantID {
				t.Errorf("FindMatchingRule(%q) = %q, want %q", tt.cleaned, gotID, tt.wantID)
			}
		})
	}
}

func TestRawKeywordMatchesCleanedInput(t *testing.T) {
	r := rule("raw", "BEA SHELL UTRECHT NR 12345", models.MatchExact, 1)
	if !Matches(r, "SHELL UTRECHT") {
		t.Error("expected a noisy keyword to match its cleaned form")
	}
}

func TestUpsertRuleCreatesAboveExistingPriorities(t *testing.T) {
	store := &fakeStore{rules: []*models.Rule{rule("a", "SHELL", models.MatchContains, 7)}}
	a := NewAccessor(store, logger.NewDiscardLogger())

	created, err := a.UpsertRule(context.Background(), "New Vendor Co", "acct-4700", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.Priority != 8 {
		t.Errorf("priority = %d, want 8", created.Priority)
	}
	if created.MatchType != models.MatchContains || !created.Active || created.UsageCount != 1 {
		t.Errorf("unexpected new rule: %+v", created)
	}
	if created.LastUsed == nil {
		t.Error("expected last used to be set")
	}

	found, err := a.FindMatchingRule(context.Background(), "New Vendor Co")
	if err != nil || found == nil || found.AccountID != "acct-4700" {
		t.Fatalf("expected learned rule to match, got %+v, %v", found, err)
	}
	if found.Priority != 8 {
		t.Errorf("learned rule should outrank older rules")
	}
}

func TestUpsertRuleTouchesExisting(t *testing.T) {
	existing := rule("a", "New Vendor Co", models.MatchContains, 3)
	existing.UsageCount = 4
	store := &fakeStore{rules: []*models.Rule{existing}}
	a := NewAccessor(store, logger.NewDiscardLogger())
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return at }

	got, err := a.UpsertRule(context.Background(), "NEW VENDOR CO", "acct-new", "contact-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.rules) != 1 {
		t.Fatalf("expected no new rule, have %d", len(store.rules))
	}
	if got.UsageCount != 5 || existing.UsageCount != 5 {
		t.Errorf("usage count = %d/%d, want 5", got.UsageCount, existing.UsageCount)
	}
	if existing.LastUsed == nil || !existing.LastUsed.Equal(at) {
		t.Errorf("last used = %v, want %v", existing.LastUsed, at)
	}
	if existing.AccountID != "acct-new" || existing.ContactID != "contact-1" {
		t.Errorf("targets not updated: %+v", existing)
	}
	if existing.Priority != 3 {
		t.Errorf("priority must not change on touch, got %d", existing.Priority)
	}
}

func TestUpsertRuleValidation(t *testing.T) {
	a := NewAccessor(&fakeStore{}, logger.NewDiscardLogger())
	if _, err := a.UpsertRule(context.Background(), " ", "acct", ""); err == nil {
		t.Error("expected error for empty pattern")
	}
	if _, err := a.UpsertRule(context.Background(), "Vendor", "", ""); err == nil {
		t.Error("expected error without account or contact")
	}
}
