package enrichment

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/patrickmn/go-cache"

	"golang-bookkeeping-service/internal/normalizer"
	"golang-bookkeeping-service/internal/vendors"
	"golang-bookkeeping-service/pkg/logger"
)

// Industry is the business category the detective settles on
type Industry string

const (
	IndustryUnknown      Industry = "unknown"
	IndustryFuel         Industry = "fuel"
	IndustryParking      Industry = "parking"
	IndustryTransport    Industry = "transport"
	IndustryFood         Industry = "food_hospitality"
	IndustryTelecom      Industry = "telecom"
	IndustrySoftware     Industry = "software"
	IndustryPostage      Industry = "postage"
	IndustryBanking      Industry = "banking"
	IndustryInsurance    Industry = "insurance"
	IndustryEnergy       Industry = "energy"
	IndustryProfessional Industry = "professional_services"
	IndustryEquipment    Industry = "equipment"
	IndustryOffice       Industry = "office_supplies"
	IndustryHousing      Industry = "housing"
	IndustryMarketing    Industry = "marketing"
	IndustryWholesale    Industry = "wholesale"
)

// industryPatterns are tried in order against the search answer; the first hit
// wins. Fuel comes before food because most stations also sell food.
var industryPatterns = []struct {
	industry Industry
	pattern  *regexp.Regexp
}{
	{IndustryFuel, regexp.MustCompile(`(?i)\b(?:gas station|petrol|fuel|tankstation|filling station|service station)`)},
	{IndustryParking, regexp.MustCompile(`(?i)\b(?:parking|parkeer|car park)`)},
	{IndustryTransport, regexp.MustCompile(`(?i)\b(?:railway|train operator|public transport|openbaar vervoer|bus company|taxi|ride-hailing)`)},
	{IndustryFood, regexp.MustCompile(`(?i)\b(?:restaurant|caf[eé]|bar\b|bakery|bakkerij|supermarket|grocery|catering|food|lunchroom|hotel|coffee|eetcaf[eé])`)},
	{IndustryTelecom, regexp.MustCompile(`(?i)\b(?:telecom|mobile network|internet service provider|telephone|mobile operator)`)},
	{IndustrySoftware, regexp.MustCompile(`(?i)\b(?:software|saas|cloud|hosting|web services|it services)`)},
	{IndustryPostage, regexp.MustCompile(`(?i)\b(?:postal|parcel|courier|shipping|logistics)`)},
	{IndustryInsurance, regexp.MustCompile(`(?i)\b(?:insurance|insurer|verzekering)`)},
	{IndustryBanking, regexp.MustCompile(`(?i)\b(?:bank|banking|payment provider|financial institution)\b`)},
	{IndustryEnergy, regexp.MustCompile(`(?i)\b(?:energy|electricity|utility company|water company|gas supplier)`)},
	{IndustryProfessional, regexp.MustCompile(`(?i)\b(?:accountan|law firm|lawyer|legal|notary|notaris|consult|advisory|tax advis)`)},
	{IndustryEquipment, regexp.MustCompile(`(?i)\b(?:electronics|computer store|furniture|machinery|equipment)`)},
	{IndustryOffice, regexp.MustCompile(`(?i)\b(?:office supplies|stationery|printing|webshop|online retailer|e-commerce)`)},
	{IndustryHousing, regexp.MustCompile(`(?i)\b(?:real estate|property management|landlord|rental|cleaning|facility)`)},
	{IndustryMarketing, regexp.MustCompile(`(?i)\b(?:advertising|marketing|media agency)`)},
	{IndustryWholesale, regexp.MustCompile(`(?i)\b(?:wholesale|wholesaler|distributor)`)},
}

// ExtractIndustry returns the industry of the first pattern found in text.
func ExtractIndustry(text string) Industry {
	for _, p := range industryPatterns {
		if p.pattern.MatchString(text) {
			return p.industry
		}
	}
	return IndustryUnknown
}

// vendorIndustries maps vendor table categories to industries
var vendorIndustries = map[string]Industry{
	vendors.CategoryFuel:      IndustryFuel,
	vendors.CategoryParking:   IndustryParking,
	vendors.CategoryTransport: IndustryTransport,
	vendors.CategoryFood:      IndustryFood,
	vendors.CategoryTelecom:   IndustryTelecom,
	vendors.CategorySoftware:  IndustrySoftware,
	vendors.CategoryOffice:    IndustryOffice,
	vendors.CategoryPostage:   IndustryPostage,
	vendors.CategoryBanking:   IndustryBanking,
	vendors.CategoryInsurance: IndustryInsurance,
	vendors.CategoryEnergy:    IndustryEnergy,
}

// simulationTable is the offline vendor-to-industry lookup used when no search
// provider is configured. Entries extend the vendor table with generic trade
// words that often appear in Dutch company names.
var simulationTable = []struct {
	keyword  string
	industry Industry
}{
	{"restaurant", IndustryFood},
	{"eetcafe", IndustryFood},
	{"brasserie", IndustryFood},
	{"bakkerij", IndustryFood},
	{"slagerij", IndustryFood},
	{"pizzeria", IndustryFood},
	{"hotel", IndustryFood},
	{"catering", IndustryFood},
	{"tankstation", IndustryFuel},
	{"garage", IndustryFuel},
	{"parkeergarage", IndustryParking},
	{"taxi", IndustryTransport},
	{"advocaten", IndustryProfessional},
	{"advocaat", IndustryProfessional},
	{"notaris", IndustryProfessional},
	{"accountants", IndustryProfessional},
	{"administratiekantoor", IndustryProfessional},
	{"consultancy", IndustryProfessional},
	{"advies", IndustryProfessional},
	{"verzekeringen", IndustryInsurance},
	{"makelaardij", IndustryHousing},
	{"vastgoed", IndustryHousing},
	{"schoonmaak", IndustryHousing},
	{"drukkerij", IndustryOffice},
	{"kantoorartikelen", IndustryOffice},
	{"reclamebureau", IndustryMarketing},
	{"marketing", IndustryMarketing},
	{"groothandel", IndustryWholesale},
	{"hosting", IndustrySoftware},
	{"software", IndustrySoftware},
	{"electronics", IndustryEquipment},
	{"meubelen", IndustryEquipment},
}

// minFuzzyRunes is the shortest token compared by edit distance. Shorter
// tokens collide too easily.
const minFuzzyRunes = 5

// Finding is what the detective concluded about a merchant
type Finding struct {
	Name      string
	Industry  Industry
	Query     string
	Answer    string
	Simulated bool
	Source    string
}

// BuildQuery returns the locality-aware search question for a merchant.
func BuildQuery(name, city, address string) string {
	name = strings.TrimSpace(name)
	city = strings.TrimSpace(city)
	address = strings.TrimSpace(address)

	q := fmt.Sprintf("What type of business is %q", name)
	switch {
	case address != "" && city != "":
		q += fmt.Sprintf(" at %s, %s", address, city)
	case address != "":
		q += " at " + address
	case city != "":
		q += " located in " + city
	}
	return q + " in the Netherlands?"
}

// SimulateIndustry classifies a merchant name without any external call.
func SimulateIndustry(name string) Industry {
	cleaned := normalizer.Clean(name)
	if cleaned == "" {
		return IndustryUnknown
	}
	if m, ok := vendors.MatchVendor(cleaned); ok {
		if ind, ok := vendorIndustries[m.Category]; ok {
			return ind
		}
	}
	for _, e := range simulationTable {
		if normalizer.MatchesKeyword(cleaned, e.keyword) {
			return e.industry
		}
	}

	// Typo tolerance: one edit on longer tokens ("Restaurnt", "Vattenfal").
	for _, token := range strings.Fields(strings.ToLower(cleaned)) {
		if utf8.RuneCountInString(token) < minFuzzyRunes {
			continue
		}
		for _, e := range simulationTable {
			if levenshtein.ComputeDistance(token, e.keyword) <= 1 {
				return e.industry
			}
		}
		for _, entry := range vendors.Entries() {
			for _, kw := range entry.Keywords {
				kw = strings.ToLower(kw)
				if utf8.RuneCountInString(kw) < minFuzzyRunes || strings.Contains(kw, " ") {
					continue
				}
				if levenshtein.ComputeDistance(token, kw) <= 1 {
					return vendorIndustries[entry.Category]
				}
			}
		}
	}
	return IndustryUnknown
}

// ApplyClues lets document-derived category clues override the detective for
// food and hospitality, where receipts are more reliable than web search.
func ApplyClues(detected Industry, clues []string) Industry {
	if len(clues) == 0 {
		return detected
	}
	fromClues := ExtractIndustry(strings.Join(clues, " "))
	if fromClues == IndustryUnknown || fromClues == detected {
		return detected
	}
	if fromClues == IndustryFood || detected == IndustryFood {
		return fromClues
	}
	return detected
}

func memoKey(req Request) string {
	return strings.ToLower(req.Name) + "|" + strings.ToLower(req.City) + "|" + strings.ToLower(req.Address)
}

// investigate runs the detective stage. It never fails: provider problems
// degrade to the local simulation.
func (c *Client) investigate(ctx context.Context, req Request) Finding {
	query := BuildQuery(req.Name, req.City, req.Address)
	finding := Finding{Name: req.Name, Query: query}

	if c.searcher == nil {
		finding.Industry = SimulateIndustry(req.Name)
		finding.Simulated = true
		finding.Source = "simulation"
	} else if cached, ok := c.cached(req); ok {
		finding.Industry = cached
		finding.Source = "cache"
	} else {
		answer, err := c.search(ctx, query)
		if err != nil {
			c.logger.WithError(err).WithField("merchant", req.Name).Warn("Search provider failed, using local simulation")
			finding.Industry = SimulateIndustry(req.Name)
			finding.Simulated = true
			finding.Source = "simulation"
		} else {
			finding.Answer = answer
			finding.Industry = ExtractIndustry(answer)
			finding.Source = "search"
			if finding.Industry == IndustryUnknown {
				finding.Industry = SimulateIndustry(req.Name)
			}
			c.remember(req, finding.Industry)
		}
	}

	if overridden := ApplyClues(finding.Industry, req.CategoryClues); overridden != finding.Industry {
		c.logger.WithFields(logger.Fields{
			"merchant": req.Name,
			"detected": finding.Industry,
			"clues":    overridden,
		}).Debug("Category clues override detective")
		finding.Industry = overridden
		finding.Source = "clues"
	}
	return finding
}

func (c *Client) search(ctx context.Context, query string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", providerError("search provider", err)
		}
	}

	callCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.searcher.Search(callCtx, query)
	if err != nil {
		return "", providerError("search provider", err)
	}
	if resp == nil {
		return "", providerError("search provider", fmt.Errorf("empty response"))
	}

	var b strings.Builder
	b.WriteString(resp.Answer)
	for _, r := range resp.Results {
		b.WriteString("\n")
		b.WriteString(r.Title)
		b.WriteString(" ")
		b.WriteString(r.Content)
	}
	return b.String(), nil
}

func (c *Client) cached(req Request) (Industry, bool) {
	if c.memo == nil {
		return "", false
	}
	v, ok := c.memo.Get(memoKey(req))
	if !ok {
		return "", false
	}
	return v.(Industry), true
}

func (c *Client) remember(req Request, industry Industry) {
	if c.memo == nil {
		return
	}
	c.memo.Set(memoKey(req), industry, cache.DefaultExpiration)
}
