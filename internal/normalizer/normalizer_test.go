package normalizer

import (
	"testing"
	"testing/quick"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "card payment with terminal noise",
			input: "BEA 12:00 24-12-2024 SHELL UTRECHT NR 12345 PAS 678",
			want:  "SHELL UTRECHT",
		},
		{
			name:  "wallet and contactless phrase",
			input: "Apple Pay Contactloos ALBERT HEIJN 1403 AMSTERDAM",
			want:  "ALBERT HEIJN AMSTERDAM",
		},
		{
			name:  "payment gateway",
			input: "Bol.com via Mollie 2024-01-15 REF 998877",
			want:  "Bol.com",
		},
		{
			name:  "betaalautomaat with seconds",
			input: "Betaalautomaat 08:15:42 pasnummer 012 JUMBO ZWOLLE",
			want:  "012 JUMBO ZWOLLE",
		},
		{
			name:  "sepa jargon",
			input: "SEPA Overboeking IBAN NL91ABNA0417164300 BIC ABNANL2A Naam: Acme BV",
			want:  "Acme BV",
		},
		{
			name:  "textual date",
			input: "KPN 12 dec 2024 abonnement",
			want:  "KPN abonnement",
		},
		{
			name:  "short numbers stay",
			input: "Restaurant 101",
			want:  "Restaurant 101",
		},
		{
			name:  "whitespace only",
			input: "   \t  ",
			want:  "",
		},
		{
			name:  "already clean",
			input: "SHELL UTRECHT",
			want:  "SHELL UTRECHT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Clean(tt.input); got != tt.want {
				t.Errorf("Clean(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestCleanIsIdempotent(t *testing.T) {
	tricky := []string{
		"Apple NR Pay",
		"1-12-12-2024",
		"24 NR dec 2024",
		"1234:56",
		"PAS PAS 123",
		"-BEA- 4444 -",
		"Google  Pay\tvia  Mollie",
		"12:00:00:00",
		"NL91ABNA0417164300",
		"SHELL-1234",
		"*** , ; ***",
	}
	for _, s := range tricky {
		once := Clean(s)
		if twice := Clean(once); twice != once {
			t.Errorf("Clean not idempotent for %q: %q then %q", s, once, twice)
		}
	}

	property := func(s string) bool {
		once := Clean(s)
		return Clean(once) == once
	}
	if err := quick.Check(property, &quick.Config{MaxCount: 2000}); err != nil {
		t.Error(err)
	}
}

func TestMatchesKeyword(t *testing.T) {
	tests := []struct {
		text    string
		keyword string
		want    bool
	}{
		{"BP Station", "BP", true},
		{"BPost", "BP", false},
		{"SHELL UTRECHT", "SHELL", true},
		{"SHELLFISH", "SHELL", false},
		{"shell utrecht", "SHELL", true},
		{"T-Mobile Netherlands", "t-mobile", true},
		{"ALBERT HEIJN 1403", "Albert Heijn", true},
		{"ALBERT  HEIJN", "albert heijn", true},
		{"ALBERTHEIJN", "albert heijn", false},
		{"Café de Zwaan", "café", true},
		{"Cafés", "café", false},
		{"anything", "", false},
		{"", "BP", false},
		{"AH to go", "AH", true},
		{"AHOLD", "AH", false},
	}

	for _, tt := range tests {
		t.Run(tt.text+"/"+tt.keyword, func(t *testing.T) {
			if got := MatchesKeyword(tt.text, tt.keyword); got != tt.want {
				t.Errorf("MatchesKeyword(%q, %q) = %v, want %v", tt.text, tt.keyword, got, tt.want)
			}
		})
	}
}

func TestContainsEither(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"Acme BV", "acme bv", true},
		{"ACME BV AMSTERDAM", "Acme BV", true},
		{"Acme", "Acme BV", true},
		{"Acme", "Globex", false},
		{"", "Acme", false},
		{"Acme", "  ", false},
	}

	for _, tt := range tests {
		if got := ContainsEither(tt.a, tt.b); got != tt.want {
			t.Errorf("ContainsEither(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
