package parsers

import (
	"encoding/csv"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"golang-bookkeeping-service/internal/models"
)

// StatementGenerator produces synthetic bank statements for demos and load
// tests. The same seed always yields the same statement.
type StatementGenerator struct {
	Count     int
	StartDate time.Time
	EndDate   time.Time
	Seed      int64
	Layout    *ImportConfig
}

type sampleParty struct {
	name        string
	iban        string
	min, max    float64
	incoming    bool
	description []string
}

var sampleParties = []sampleParty{
	{"Shell", "", 40, 110, false, []string{"BEA, Betaalpas SHELL %d", "Tankstation %d"}},
	{"Q-Park", "", 2, 25, false, []string{"Parkeren garage %d"}},
	{"NS Groep", "", 3, 60, false, []string{"NS reizen %d", "OV-chipkaart opladen"}},
	{"KPN B.V.", "NL12INGB0001234567", 25, 95, false, []string{"Factuur %d mobiel", "Internet abonnement"}},
	{"Albert Heijn", "", 5, 80, false, []string{"AH to go %d", "Boodschappen kantoor"}},
	{"Coolblue B.V.", "NL55RABO0123456789", 60, 1800, false, []string{"Bestelling %d"}},
	{"Belastingdienst", "NL86INGB0002445588", 100, 4000, false, []string{"Omzetbelasting Q%d"}},
	{"Acme BV", "NL91ABNA0417164300", 250, 6000, true, []string{"Factuur 2026-%03d", "Betaling factuur %d"}},
	{"De Groot Advies", "NL02ABNA0123456789", 500, 3500, true, []string{"Inv %d", "Termijn %d"}},
	{"", "", 1, 15, false, []string{"Kosten zakelijk pakket", "Rente en kosten %d"}},
}

// Generate creates Count transactions dated between StartDate and EndDate,
// oldest first.
func (sg *StatementGenerator) Generate() []*models.Transaction {
	rng := rand.New(rand.NewSource(sg.Seed))
	days := int(sg.EndDate.Sub(sg.StartDate).Hours()/24) + 1
	if days < 1 {
		days = 1
	}

	txs := make([]*models.Transaction, 0, sg.Count)
	for i := 0; i < sg.Count; i++ {
		p := sampleParties[rng.Intn(len(sampleParties))]
		amount := decimal.NewFromFloat(p.min + rng.Float64()*(p.max-p.min)).Round(2)
		if !p.incoming {
			amount = amount.Neg()
		}
		desc := p.description[rng.Intn(len(p.description))]
		if strings.Contains(desc, "%") {
			desc = fmt.Sprintf(desc, rng.Intn(900)+100)
		}
		txs = append(txs, &models.Transaction{
			Date:             models.TruncateDay(sg.StartDate.AddDate(0, 0, rng.Intn(days))),
			Amount:           amount,
			Description:      desc,
			CounterpartyName: p.name,
			CounterpartyIBAN: p.iban,
		})
	}

	sort.SliceStable(txs, func(i, j int) bool { return txs[i].Date.Before(txs[j].Date) })
	return txs
}

// WriteCSV writes txs in the generator's layout: the normalized tuple for
// standard and headerless, or a Dutch bank export with Af/Bij and decimal
// commas.
func (sg *StatementGenerator) WriteCSV(w io.Writer, txs []*models.Transaction) error {
	layout := sg.Layout
	if layout == nil {
		layout = DefaultImportConfig()
	}

	writer := csv.NewWriter(w)
	writer.Comma = layout.Delimiter

	dutch := strings.EqualFold(layout.Name, DutchBankImportConfig.Name)
	switch {
	case dutch:
		writer.Write([]string{"Datum", "Naam / Omschrijving", "Tegenrekening", "Af Bij", "Bedrag (EUR)", "Mededelingen"})
	case layout.HasHeader:
		writer.Write([]string{FieldDate, FieldAmount, FieldDescription, FieldCounterpartyName, FieldCounterpartyIBAN})
	}

	for _, tx := range txs {
		var record []string
		if dutch {
			direction := "Bij"
			if tx.IsOutgoing() {
				direction = "Af"
			}
			record = []string{
				tx.Date.Format("20060102"),
				tx.CounterpartyName,
				tx.CounterpartyIBAN,
				direction,
				strings.Replace(tx.Amount.Abs().StringFixed(2), ".", ",", 1),
				tx.Description,
			}
		} else {
			record = []string{
				tx.Date.Format(models.DateLayout),
				tx.Amount.StringFixed(2),
				tx.Description,
				tx.CounterpartyName,
				tx.CounterpartyIBAN,
			}
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}
