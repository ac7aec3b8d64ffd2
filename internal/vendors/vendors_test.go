package vendors

import (
	"testing"

	"golang-bookkeeping-service/internal/models"
	"golang-bookkeeping-service/internal/normalizer"
)

func TestMatchVendor(t *testing.T) {
	tests := []struct {
		cleaned  string
		wantCode string
		wantCat  string
	}{
		{"SHELL UTRECHT", "4310", CategoryFuel},
		{"BP Station A12", "4310", CategoryFuel},
		{"Albert Heijn Amsterdam", "4520", CategoryFood},
		{"AH to go Utrecht CS", "4520", CategoryFood},
		{"KPN", "4410", CategoryTelecom},
		{"Bol.com", "4400", CategoryOffice},
		{"Q-Park Centrum", "4320", CategoryParking},
		{"PostNL", "4430", CategoryPostage},
		{"NS Groep IZ NS Reizigers", "4330", CategoryTransport},
		{"Eneco Services", "4150", CategoryEnergy},
	}

	for _, tt := range tests {
		t.Run(tt.cleaned, func(t *testing.T) {
			m, ok := MatchVendor(tt.cleaned)
			if !ok {
				t.Fatalf("MatchVendor(%q) found nothing", tt.cleaned)
			}
			if m.AccountCode != tt.wantCode || m.Category != tt.wantCat {
				t.Errorf("MatchVendor(%q) = %s/%s, want %s/%s", tt.cleaned, m.AccountCode, m.Category, tt.wantCode, tt.wantCat)
			}
		})
	}
}

func TestMatchVendorRespectsWordBoundaries(t *testing.T) {
	for _, cleaned := range []string{"SHELLFISH MARKET", "BPost", "KPNX Holding", "", "Bakker Jansen"} {
		if m, ok := MatchVendor(cleaned); ok {
			t.Errorf("MatchVendor(%q) unexpectedly matched %+v", cleaned, m)
		}
	}
}

func TestMatchVendorAfterCleaning(t *testing.T) {
	m, ok := MatchVendor(normalizer.Clean("BEA 12:00 24-12-2024 SHELL UTRECHT NR 12345 PAS 678"))
	if !ok || m.AccountCode != "4310" {
		t.Fatalf("expected fuel account, got %+v", m)
	}
}

func TestTableNeverTargetsBlacklistedAccounts(t *testing.T) {
	for _, e := range Entries() {
		if models.IsBlacklistedCode(e.AccountCode) {
			t.Errorf("entry %s targets blacklisted account %s", e.Category, e.AccountCode)
		}
		if len(e.Keywords) == 0 {
			t.Errorf("entry %s has no keywords", e.Category)
		}
		if e.AccountCode == "" {
			t.Errorf("entry %s has no account code", e.Category)
		}
	}
}
