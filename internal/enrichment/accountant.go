package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"golang-bookkeeping-service/internal/models"
)

// Bucket is a semantic group of ledger accounts offered to the LLM
type Bucket string

const (
	BucketCarTravel    Bucket = "car_travel"
	BucketHousing      Bucket = "housing"
	BucketOffice       Bucket = "office"
	BucketFood         Bucket = "food_hospitality"
	BucketProfessional Bucket = "professional_services"
	BucketAssets       Bucket = "assets"
	BucketPrivate      Bucket = "private"
	BucketBanking      Bucket = "banking"
	BucketInventory    Bucket = "inventory"
	BucketOther        Bucket = "other"
)

// Strategy names how the accountant's answer was obtained
type Strategy string

const (
	StrategyJSON    Strategy = "json"
	StrategyUUID    Strategy = "uuid_scan"
	StrategyCode    Strategy = "code_scan"
	StrategyKeyword Strategy = "keyword_fallback"
	StrategyGeneral Strategy = "general_fallback"
)

// Confidence assigned per strategy when the answer carries none of its own
const (
	defaultJSONScore = 80
	uuidScore        = 75
	codeScore        = 70
	keywordScore     = 65
	generalScore     = 30
)

// bucketKeywords assign accounts to buckets by name or tax category. The first
// bucket with a matching keyword wins; accounts matching none land in other.
var bucketKeywords = []struct {
	bucket   Bucket
	keywords []string
}{
	{BucketAssets, []string{"inventaris", "investering", "apparatuur", "machine", "vaste activa", "afschrijving"}},
	{BucketPrivate, []string{"privé", "prive", "opname"}},
	{BucketCarTravel, []string{"auto", "brandstof", "parkeer", "reis", "vervoer", "lease"}},
	{BucketHousing, []string{"huisvesting", "huur", "energie", "water", "schoonmaak"}},
	{BucketFood, []string{"kantine", "representatie", "voeding", "lunch", "horeca"}},
	{BucketOffice, []string{"kantoor", "telefoon", "internet", "software", "abonnement", "porti", "verzend", "reclame", "drukwerk"}},
	{BucketProfessional, []string{"advies", "accountant", "juridisch", "notaris", "verzeker", "administratie"}},
	{BucketBanking, []string{"bank", "rente"}},
	{BucketInventory, []string{"inkoop", "voorraad", "grondstof"}},
}

var bucketOrder = []Bucket{
	BucketCarTravel, BucketHousing, BucketOffice, BucketFood, BucketProfessional,
	BucketAssets, BucketPrivate, BucketBanking, BucketInventory, BucketOther,
}

// industryHints point an industry at its bucket and at account-name fragments
// the keyword fallback searches for, most specific first.
var industryHints = map[Industry]struct {
	bucket Bucket
	hints  []string
}{
	IndustryFuel:         {BucketCarTravel, []string{"brandstof", "auto"}},
	IndustryParking:      {BucketCarTravel, []string{"parkeer", "auto"}},
	IndustryTransport:    {BucketCarTravel, []string{"reiskosten", "vervoer", "reis"}},
	IndustryFood:         {BucketFood, []string{"kantine", "representatie"}},
	IndustryTelecom:      {BucketOffice, []string{"telefoon", "internet"}},
	IndustrySoftware:     {BucketOffice, []string{"software", "abonnement"}},
	IndustryPostage:      {BucketOffice, []string{"porti", "verzend"}},
	IndustryOffice:       {BucketOffice, []string{"kantoor"}},
	IndustryMarketing:    {BucketOffice, []string{"reclame", "advertentie"}},
	IndustryBanking:      {BucketBanking, []string{"bank"}},
	IndustryInsurance:    {BucketProfessional, []string{"verzeker"}},
	IndustryEnergy:       {BucketHousing, []string{"energie", "water"}},
	IndustryHousing:      {BucketHousing, []string{"huisvesting", "huur"}},
	IndustryProfessional: {BucketProfessional, []string{"advies", "accountant"}},
	IndustryEquipment:    {BucketAssets, []string{"inventaris", "investering"}},
	IndustryWholesale:    {BucketInventory, []string{"inkoop", "voorraad"}},
}

// generalHints identify the catch-all account used as last resort
var generalHints = []string{"algemene", "overige"}

var (
	uuidPattern = regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\b`)
	codePattern = regexp.MustCompile(`\b\d{4}\b`)
)

// Menu is the set of accounts the accountant may choose from, grouped into
// buckets. Blacklisted and inactive accounts are never part of it.
type Menu struct {
	Buckets map[Bucket][]*models.Account
	byID    map[string]*models.Account
	byCode  map[string]*models.Account
	// AssetsExcluded is set when the amount is below the capitalization threshold.
	AssetsExcluded bool
}

// BucketFor returns the bucket an account belongs to
func BucketFor(a *models.Account) Bucket {
	text := strings.ToLower(a.Name + " " + a.TaxCategory)
	for _, bk := range bucketKeywords {
		for _, kw := range bk.keywords {
			if strings.Contains(text, kw) {
				return bk.bucket
			}
		}
	}
	return BucketOther
}

// BuildMenu groups the bookable accounts into buckets. Below the
// capitalization threshold the asset bucket is dropped entirely.
func BuildMenu(accounts []*models.Account, amount, capitalizationThreshold decimal.Decimal) *Menu {
	m := &Menu{
		Buckets: make(map[Bucket][]*models.Account),
		byID:    make(map[string]*models.Account),
		byCode:  make(map[string]*models.Account),
	}
	m.AssetsExcluded = amount.Abs().LessThan(capitalizationThreshold)

	sorted := make([]*models.Account, 0, len(accounts))
	for _, a := range accounts {
		if a.IsBookable() {
			sorted = append(sorted, a)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Code < sorted[j].Code })

	for _, a := range sorted {
		b := BucketFor(a)
		if b == BucketAssets && m.AssetsExcluded {
			continue
		}
		m.Buckets[b] = append(m.Buckets[b], a)
		m.byID[strings.ToLower(a.ID)] = a
		m.byCode[a.Code] = a
	}
	return m
}

// Size returns the number of accounts on the menu
func (m *Menu) Size() int { return len(m.byID) }

// ByID returns the menu account with the given id, or nil
func (m *Menu) ByID(id string) *models.Account {
	if parsed, err := uuid.Parse(strings.TrimSpace(id)); err == nil {
		id = parsed.String()
	}
	return m.byID[strings.ToLower(strings.TrimSpace(id))]
}

// ByCode returns the menu account with the given code, or nil
func (m *Menu) ByCode(code string) *models.Account {
	return m.byCode[strings.TrimSpace(code)]
}

// maxAnswerRunes caps the business description quoted in the prompt
const maxAnswerRunes = 600

// truncateRunes cuts s to at most n runes without splitting a character
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// BuildPrompt renders the accountant prompt for the LLM.
func BuildPrompt(f Finding, name string, amount decimal.Decimal, menu *Menu, capitalizationThreshold decimal.Decimal) string {
	var b strings.Builder
	b.WriteString("You are a Dutch bookkeeper choosing the ledger account for a bank transaction.\n")
	fmt.Fprintf(&b, "Merchant: %s\n", name)
	fmt.Fprintf(&b, "Industry: %s\n", f.Industry)
	if f.Answer != "" {
		fmt.Fprintf(&b, "Business description: %s\n", strings.TrimSpace(truncateRunes(f.Answer, maxAnswerRunes)))
	}
	if !amount.IsZero() {
		fmt.Fprintf(&b, "Amount: EUR %s\n", amount.Abs().StringFixed(2))
	}
	if menu.AssetsExcluded {
		fmt.Fprintf(&b, "HARD RULE: the amount is below EUR %s, so it must be expensed directly. Never choose an asset or depreciation account.\n",
			capitalizationThreshold.StringFixed(0))
	}

	b.WriteString("\nAvailable accounts, grouped by purpose (id | code | name):\n")
	for _, bucket := range bucketOrder {
		accounts := menu.Buckets[bucket]
		if len(accounts) == 0 {
			continue
		}
		fmt.Fprintf(&b, "[%s]\n", bucket)
		for _, a := range accounts {
			fmt.Fprintf(&b, "- %s | %s | %s\n", a.ID, a.Code, a.Name)
		}
	}

	b.WriteString("\nThink step by step about what the merchant sells and which account fits best, then answer with ONLY JSON:\n")
	b.WriteString(`{"account_id": "<id from the list>", "account_code": "<code>", "confidence": <0-100>, "reasoning": "<short explanation>"}`)
	b.WriteString("\n")
	return b.String()
}

type accountantAnswer struct {
	AccountID   string          `json:"account_id"`
	AccountCode json.RawMessage `json:"account_code"`
	Confidence  float64         `json:"confidence"`
	Reasoning   string          `json:"reasoning"`
}

// ParseAnswer applies the response strategies in order: structured JSON, a
// UUID anywhere in the text, then a four-digit account code. Only accounts on
// the menu are accepted. It returns nil when no strategy yields an account.
func ParseAnswer(text string, menu *Menu) *Result {
	if res := parseJSONAnswer(text, menu); res != nil {
		return res
	}
	for _, id := range uuidPattern.FindAllString(text, -1) {
		if a := menu.ByID(id); a != nil {
			return resultFor(a, uuidScore, StrategyUUID, "account id found in free-text answer")
		}
	}
	for _, code := range codePattern.FindAllString(text, -1) {
		if a := menu.ByCode(code); a != nil {
			return resultFor(a, codeScore, StrategyCode, "account code found in free-text answer")
		}
	}
	return nil
}

func parseJSONAnswer(text string, menu *Menu) *Result {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil
	}

	var ans accountantAnswer
	if err := json.Unmarshal([]byte(text[start:end+1]), &ans); err != nil {
		return nil
	}

	acct := menu.ByID(ans.AccountID)
	if acct == nil && len(ans.AccountCode) > 0 {
		acct = menu.ByCode(strings.Trim(string(ans.AccountCode), `"`))
	}
	if acct == nil {
		return nil
	}

	reason := strings.TrimSpace(ans.Reasoning)
	if reason == "" {
		reason = "chosen by the accountant model"
	}
	return resultFor(acct, normalizeConfidence(ans.Confidence), StrategyJSON, reason)
}

// normalizeConfidence accepts fractions below 1 and 1-100 percentages.
func normalizeConfidence(c float64) int {
	if c <= 0 || math.IsNaN(c) {
		return defaultJSONScore
	}
	if c < 1 {
		c *= 100
	}
	if c > 100 {
		c = 100
	}
	return int(math.Round(c))
}

func resultFor(a *models.Account, confidence int, strategy Strategy, reason string) *Result {
	return &Result{
		AccountID:   a.ID,
		AccountCode: a.Code,
		Confidence:  confidence,
		Reason:      reason,
		Strategy:    strategy,
	}
}

// KeywordFallback picks an account from the menu by industry hints without any
// external call. The general expense account is the last resort.
func KeywordFallback(industry Industry, menu *Menu) *Result {
	profile, ok := industryHints[industry]
	if ok {
		hints := profile.hints
		if profile.bucket == BucketAssets {
			if menu.AssetsExcluded {
				hints = nil
			}
			hints = append(append([]string{}, hints...), industryHints[IndustryOffice].hints...)
		}
		for _, hint := range hints {
			if a := findByHint(menu, hint); a != nil {
				return resultFor(a, keywordScore, StrategyKeyword,
					fmt.Sprintf("%s merchant mapped to %s by keyword", industry, a.Name))
			}
		}
	}

	for _, hint := range generalHints {
		if a := findByHint(menu, hint); a != nil {
			return resultFor(a, generalScore, StrategyGeneral,
				fmt.Sprintf("no specific account for industry %s, using general expenses", industry))
		}
	}
	return nil
}

func findByHint(menu *Menu, hint string) *models.Account {
	for _, bucket := range bucketOrder {
		for _, a := range menu.Buckets[bucket] {
			if strings.Contains(strings.ToLower(a.Name+" "+a.TaxCategory), hint) {
				return a
			}
		}
	}
	return nil
}

// assign runs the accountant stage
func (c *Client) assign(ctx context.Context, f Finding, amount decimal.Decimal) (*Result, error) {
	accounts, err := c.accounts.ActiveAccountsByType(ctx, models.AccountExpense, models.AccountEquity)
	if err != nil {
		return nil, err
	}
	menu := BuildMenu(accounts, amount, c.config.CapitalizationThreshold)
	if menu.Size() == 0 {
		return nil, nil
	}

	var res *Result
	if c.completer != nil {
		res = c.askModel(ctx, f, amount, menu)
	}
	if res == nil {
		res = KeywordFallback(f.Industry, menu)
	}
	if res != nil {
		res.Industry = f.Industry
	}
	return res, nil
}

func (c *Client) askModel(ctx context.Context, f Finding, amount decimal.Decimal, menu *Menu) *Result {
	prompt := BuildPrompt(f, f.Name, amount, menu, c.config.CapitalizationThreshold)

	callCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	text, err := c.completer.Complete(callCtx, prompt)
	if err != nil {
		c.logger.WithError(providerError("completion provider", err)).Warn("Completion provider failed, using keyword fallback")
		return nil
	}

	res := ParseAnswer(text, menu)
	if res == nil {
		c.logger.WithField("answer_length", len(text)).Warn("Completion answer named no account on the menu")
	}
	return res
}
