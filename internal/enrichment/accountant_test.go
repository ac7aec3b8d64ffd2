package enrichment

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang-bookkeeping-service/internal/models"
)

func testAccountID(code string) string {
	return "00000000-0000-4000-8000-00000000" + code
}

func testAccount(code, name string, typ models.AccountType, taxCategory string) *models.Account {
	return &models.Account{
		ID:          testAccountID(code),
		Code:        code,
		Name:        name,
		Type:        typ,
		TaxCategory: taxCategory,
		Active:      true,
	}
}

func testChart() []*models.Account {
	inactive := testAccount("4800", "Oude kosten", models.AccountExpense, "")
	inactive.Active = false
	return []*models.Account{
		testAccount("0500", "Privé opnamen", models.AccountEquity, "prive"),
		testAccount("4100", "Huisvesting huur", models.AccountExpense, "huisvesting"),
		testAccount("4050", "Kleine investeringen", models.AccountExpense, ""),
		testAccount("4210", "Afschrijvingen inventaris", models.AccountExpense, "afschrijvingen"),
		testAccount("4310", "Brandstof", models.AccountExpense, "auto"),
		testAccount("4400", "Kantoorkosten", models.AccountExpense, "kantoor"),
		testAccount("4410", "Telefoon en internet", models.AccountExpense, "kantoor"),
		testAccount("4520", "Kantine en representatie", models.AccountExpense, "voeding"),
		testAccount("4600", "Algemene kosten", models.AccountExpense, "algemeen"),
		testAccount("4910", "Interne doorbelasting", models.AccountExpense, "doorbelasting"),
		inactive,
	}
}

var threshold = decimal.NewFromInt(450)

func TestBuildMenuExcludesBlacklistedAndInactive(t *testing.T) {
	menu := BuildMenu(testChart(), decimal.NewFromInt(1000), threshold)

	assert.Nil(t, menu.ByCode("4210"))
	assert.Nil(t, menu.ByCode("4910"))
	assert.Nil(t, menu.ByCode("4800"))
	assert.Nil(t, menu.ByID(testAccountID("4210")))
	require.NotNil(t, menu.ByCode("4310"))
	assert.Equal(t, 8, menu.Size())

	assert.False(t, menu.AssetsExcluded)
	require.Len(t, menu.Buckets[BucketAssets], 1)
	assert.Equal(t, "4050", menu.Buckets[BucketAssets][0].Code)
	assert.Equal(t, "0500", menu.Buckets[BucketPrivate][0].Code)
	assert.Equal(t, "4600", menu.Buckets[BucketOther][0].Code)
}

func TestBuildMenuDropsAssetsBelowThreshold(t *testing.T) {
	menu := BuildMenu(testChart(), decimal.RequireFromString("-120.00"), threshold)

	assert.True(t, menu.AssetsExcluded)
	assert.Empty(t, menu.Buckets[BucketAssets])
	assert.Nil(t, menu.ByCode("4050"))

	prompt := BuildPrompt(Finding{Name: "Coolblue", Industry: IndustryEquipment}, "Coolblue", decimal.RequireFromString("-120.00"), menu, threshold)
	assert.Contains(t, prompt, "HARD RULE")
	assert.Contains(t, prompt, "EUR 120.00")
	assert.Contains(t, prompt, testAccountID("4400")+" | 4400 | Kantoorkosten")
	assert.NotContains(t, prompt, "4050")
	assert.NotContains(t, prompt, "4210")
}

func TestParseAnswer(t *testing.T) {
	menu := BuildMenu(testChart(), decimal.NewFromInt(50), threshold)

	tests := []struct {
		name       string
		text       string
		wantCode   string
		wantScore  int
		wantStrat  Strategy
		wantReason string
	}{
		{
			name:       "json with id",
			text:       `Sure: {"account_id": "` + testAccountID("4310") + `", "account_code": "4310", "confidence": 92, "reasoning": "fuel purchase"}`,
			wantCode:   "4310",
			wantScore:  92,
			wantStrat:  StrategyJSON,
			wantReason: "fuel purchase",
		},
		{
			name:      "json with numeric code and fractional confidence",
			text:      `{"account_code": 4410, "confidence": 0.9}`,
			wantCode:  "4410",
			wantScore: 90,
			wantStrat: StrategyJSON,
		},
		{
			name:      "json with confidence of one percent",
			text:      `{"account_code": "4410", "confidence": 1}`,
			wantCode:  "4410",
			wantScore: 1,
			wantStrat: StrategyJSON,
		},
		{
			name:      "json without confidence",
			text:      `{"account_id": "` + strings.ToUpper(testAccountID("4520")) + `"}`,
			wantCode:  "4520",
			wantScore: 80,
			wantStrat: StrategyJSON,
		},
		{
			name:      "uuid in prose",
			text:      "I would book this on " + testAccountID("4520") + " since it is a lunch.",
			wantCode:  "4520",
			wantScore: 75,
			wantStrat: StrategyUUID,
		},
		{
			name:      "code in prose",
			text:      "Best fit is account 4410 Telefoon en internet.",
			wantCode:  "4410",
			wantScore: 70,
			wantStrat: StrategyCode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ParseAnswer(tt.text, menu)
			require.NotNil(t, res)
			assert.Equal(t, tt.wantCode, res.AccountCode)
			assert.Equal(t, testAccountID(tt.wantCode), res.AccountID)
			assert.Equal(t, tt.wantScore, res.Confidence)
			assert.Equal(t, tt.wantStrat, res.Strategy)
			if tt.wantReason != "" {
				assert.Equal(t, tt.wantReason, res.Reason)
			}
		})
	}
}

func TestParseAnswerRejectsAccountsOffTheMenu(t *testing.T) {
	menu := BuildMenu(testChart(), decimal.NewFromInt(50), threshold)

	for _, text := range []string{
		`{"account_id": "` + testAccountID("4210") + `", "account_code": "4210", "confidence": 95}`,
		`{"account_id": "` + testAccountID("4050") + `", "account_code": "4050", "confidence": 95}`,
		"Use depreciation account 4210.",
		"I have no idea.",
		"",
	} {
		assert.Nil(t, ParseAnswer(text, menu), text)
	}
}

func TestKeywordFallback(t *testing.T) {
	small := BuildMenu(testChart(), decimal.NewFromInt(50), threshold)
	large := BuildMenu(testChart(), decimal.NewFromInt(2000), threshold)

	res := KeywordFallback(IndustryFuel, small)
	require.NotNil(t, res)
	assert.Equal(t, "4310", res.AccountCode)
	assert.Equal(t, 65, res.Confidence)
	assert.Equal(t, StrategyKeyword, res.Strategy)

	res = KeywordFallback(IndustryEquipment, small)
	require.NotNil(t, res)
	assert.Equal(t, "4400", res.AccountCode)

	res = KeywordFallback(IndustryEquipment, large)
	require.NotNil(t, res)
	assert.Equal(t, "4050", res.AccountCode)

	res = KeywordFallback(IndustryUnknown, small)
	require.NotNil(t, res)
	assert.Equal(t, "4600", res.AccountCode)
	assert.Equal(t, 30, res.Confidence)
	assert.Equal(t, StrategyGeneral, res.Strategy)

	assert.Nil(t, KeywordFallback(IndustryFuel, BuildMenu(nil, decimal.Zero, threshold)))
}

func TestBuildPromptTruncatesLongDescriptionOnCharacters(t *testing.T) {
	menu := BuildMenu(testChart(), decimal.NewFromInt(50), threshold)
	answer := "a" + strings.Repeat("café ", 200)
	prompt := BuildPrompt(Finding{Name: "Café de Zon", Industry: IndustryFood, Answer: answer}, "Café de Zon",
		decimal.RequireFromString("-12.50"), menu, threshold)

	require.True(t, utf8.ValidString(prompt))
	line := ""
	for _, l := range strings.Split(prompt, "\n") {
		if strings.HasPrefix(l, "Business description: ") {
			line = strings.TrimPrefix(l, "Business description: ")
		}
	}
	require.NotEmpty(t, line)
	assert.LessOrEqual(t, utf8.RuneCountInString(line), maxAnswerRunes)
	assert.True(t, strings.HasPrefix(answer, line))
}

func TestNormalizeConfidence(t *testing.T) {
	tests := []struct {
		in   float64
		want int
	}{
		{0, defaultJSONScore},
		{-3, defaultJSONScore},
		{0.85, 85},
		{0.999, 100},
		{1, 1},
		{1.5, 2},
		{72, 72},
		{140, 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeConfidence(tt.in), "confidence %v", tt.in)
	}
}
