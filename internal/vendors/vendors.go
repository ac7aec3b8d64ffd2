// Package vendors holds the static table of well-known Dutch and European
// merchants. It is the last deterministic stage before external enrichment and
// never performs I/O.
package vendors

import "golang-bookkeeping-service/internal/normalizer"

// Category labels used by the table
const (
	CategoryFuel      = "fuel"
	CategoryParking   = "parking"
	CategoryTransport = "public_transport"
	CategoryFood      = "food_hospitality"
	CategoryTelecom   = "telecom"
	CategorySoftware  = "software"
	CategoryOffice    = "office"
	CategoryPostage   = "postage"
	CategoryBanking   = "banking"
	CategoryInsurance = "insurance"
	CategoryEnergy    = "energy"
)

// Entry maps merchant keywords to a ledger account code
type Entry struct {
	Keywords    []string
	AccountCode string
	Category    string
}

// Match is a vendor table hit
type Match struct {
	AccountCode string
	Category    string
	Keyword     string
}

// table is evaluated top to bottom; the first entry with a matching keyword wins.
var table = []Entry{
	{
		Keywords:    []string{"SHELL", "BP", "ESSO", "TOTAL", "TOTALENERGIES", "TEXACO", "TANGO", "TINQ", "GULF", "ARGOS", "AVIA", "FIETEN", "MAKRO TANKSTATION"},
		AccountCode: "4310",
		Category:    CategoryFuel,
	},
	{
		Keywords:    []string{"Q-PARK", "QPARK", "INTERPARKING", "PARKMOBILE", "YELLOWBRICK", "EASYPARK", "P1 PARKING", "PARKEREN", "PARKING"},
		AccountCode: "4320",
		Category:    CategoryParking,
	},
	{
		Keywords:    []string{"NS", "NS GROEP", "NS REIZIGERS", "OV-CHIPKAART", "TRANSLINK", "GVB", "RET", "HTM", "ARRIVA", "CONNEXXION", "QBUZZ", "KEOLIS", "UBER", "BOLT", "TAXI"},
		AccountCode: "4330",
		Category:    CategoryTransport,
	},
	{
		Keywords: []string{"ALBERT HEIJN", "AH", "AH TO GO", "JUMBO", "LIDL", "ALDI", "PLUS", "DIRK", "SPAR", "COOP", "HOOGVLIET", "VOMAR", "DEKAMARKT",
			"STARBUCKS", "MCDONALDS", "BURGER KING", "KFC", "SUBWAY", "LA PLACE", "HEMA", "THUISBEZORGD", "DELIVEROO", "RESTAURANT", "CAFE", "LUNCHROOM", "BAKKERIJ"},
		AccountCode: "4520",
		Category:    CategoryFood,
	},
	{
		Keywords:    []string{"KPN", "VODAFONE", "VODAFONEZIGGO", "ZIGGO", "T-MOBILE", "ODIDO", "TELE2", "SIMYO", "BEN", "LEBARA", "YOUFONE"},
		AccountCode: "4410",
		Category:    CategoryTelecom,
	},
	{
		Keywords: []string{"MICROSOFT", "GOOGLE", "GOOGLE WORKSPACE", "ADOBE", "DROPBOX", "ATLASSIAN", "GITHUB", "JETBRAINS", "SLACK", "ZOOM", "NOTION",
			"CANVA", "OPENAI", "ANTHROPIC", "AWS", "AMAZON WEB SERVICES", "DIGITALOCEAN", "HETZNER", "TRANSIP", "MONEYBIRD", "EXACT", "SNELSTART", "MAILCHIMP"},
		AccountCode: "4420",
		Category:    CategorySoftware,
	},
	{
		Keywords:    []string{"STAPLES", "OFFICE CENTRE", "VIKING", "BOL.COM", "COOLBLUE", "MEDIAMARKT", "IKEA", "ACTION", "BLOKKER", "BRUNA"},
		AccountCode: "4400",
		Category:    CategoryOffice,
	},
	{
		Keywords:    []string{"POSTNL", "DHL", "DPD", "GLS", "UPS", "SENDCLOUD"},
		AccountCode: "4430",
		Category:    CategoryPostage,
	},
	{
		Keywords:    []string{"ING", "ING BANK", "RABOBANK", "ABN AMRO", "BUNQ", "KNAB", "TRIODOS", "SNS", "ASN", "REGIOBANK", "KOSTEN REKENING", "KOSTEN BETAALVERKEER"},
		AccountCode: "4700",
		Category:    CategoryBanking,
	},
	{
		Keywords:    []string{"CENTRAAL BEHEER", "NATIONALE-NEDERLANDEN", "NN", "ACHMEA", "INTERPOLIS", "ALLIANZ", "ASR", "OHRA", "FBTO", "AEGON", "UNIVE"},
		AccountCode: "4620",
		Category:    CategoryInsurance,
	},
	{
		Keywords:    []string{"ENECO", "VATTENFALL", "ESSENT", "GREENCHOICE", "BUDGET ENERGIE", "ENERGIEDIRECT", "VANDEBRON", "EVIDES", "VITENS", "WATERNET", "BRABANT WATER"},
		AccountCode: "4150",
		Category:    CategoryEnergy,
	},
}

// Entries returns a copy of the table in evaluation order
func Entries() []Entry {
	out := make([]Entry, len(table))
	copy(out, table)
	return out
}

// MatchVendor returns the first table entry with a keyword occurring as whole
// tokens in cleaned, or false.
func MatchVendor(cleaned string) (*Match, bool) {
	if cleaned == "" {
		return nil, false
	}
	for _, e := range table {
		for _, kw := range e.Keywords {
			if normalizer.MatchesKeyword(cleaned, kw) {
				return &Match{AccountCode: e.AccountCode, Category: e.Category, Keyword: kw}, true
			}
		}
	}
	return nil, false
}
