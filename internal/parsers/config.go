package parsers

import (
	"fmt"
	"strings"
)

// Canonical field names of the import tuple.
const (
	FieldDate             = "date"
	FieldAmount           = "amount"
	FieldDescription      = "description"
	FieldCounterpartyName = "counterparty_name"
	FieldCounterpartyIBAN = "counterparty_iban"
	FieldDirection        = "direction"
)

// RequiredFields must be present in every import file.
var RequiredFields = []string{FieldDate, FieldAmount}

// OptionalFields are read when a matching column exists.
var OptionalFields = []string{FieldDescription, FieldCounterpartyName, FieldCounterpartyIBAN, FieldDirection}

// defaultAliases maps each canonical field to header names seen in common
// Dutch and English bank exports. Matching is case-insensitive.
var defaultAliases = map[string][]string{
	FieldDate:             {"date", "datum", "boekdatum", "transaction_date", "booking_date", "value_date"},
	FieldAmount:           {"amount", "bedrag", "bedrag (eur)", "transaction_amount"},
	FieldDescription:      {"description", "omschrijving", "mededelingen", "memo", "details"},
	FieldCounterpartyName: {"counterparty_name", "counterparty", "naam tegenpartij", "naam / omschrijving", "name", "payee"},
	FieldCounterpartyIBAN: {"counterparty_iban", "iban", "tegenrekening", "tegenrekening iban/bban", "counter_account"},
	FieldDirection:        {"direction", "af bij", "af/bij", "debit_credit"},
}

// ImportConfig describes one CSV layout for bank transaction imports
type ImportConfig struct {
	Name        string `json:"name"`
	HasHeader   bool   `json:"has_header"`
	Delimiter   rune   `json:"delimiter"`
	Description string `json:"description,omitempty"`

	// ColumnAliases adds header names per canonical field, checked before
	// the built-in aliases.
	ColumnAliases map[string][]string `json:"column_aliases,omitempty"`

	// Columns is the column order used when the file has no header row.
	Columns []string `json:"columns,omitempty"`
}

// Validate checks if the import configuration is valid
func (c *ImportConfig) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("import format name cannot be empty")
	}
	if c.Delimiter == 0 || c.Delimiter == '"' || c.Delimiter == '\n' || c.Delimiter == '\r' {
		return fmt.Errorf("invalid delimiter %q", c.Delimiter)
	}
	for field := range c.ColumnAliases {
		if !isKnownField(field) {
			return fmt.Errorf("unknown field %q in column aliases", field)
		}
	}
	if !c.HasHeader {
		if len(c.Columns) == 0 {
			return fmt.Errorf("column order is required when the file has no header")
		}
		for _, field := range RequiredFields {
			if !contains(c.Columns, field) {
				return fmt.Errorf("column order must include %q", field)
			}
		}
	}
	return nil
}

// Aliases returns the header names accepted for a canonical field
func (c *ImportConfig) Aliases(field string) []string {
	aliases := append([]string{}, c.ColumnAliases[field]...)
	return append(aliases, defaultAliases[field]...)
}

// DefaultImportConfig returns the normalized tuple layout
func DefaultImportConfig() *ImportConfig {
	return StandardImportConfig.clone()
}

func (c *ImportConfig) clone() *ImportConfig {
	cp := *c
	cp.Columns = append([]string(nil), c.Columns...)
	cp.ColumnAliases = make(map[string][]string, len(c.ColumnAliases))
	for k, v := range c.ColumnAliases {
		cp.ColumnAliases[k] = append([]string(nil), v...)
	}
	return &cp
}

// Predefined import layouts
var (
	// StandardImportConfig is the normalized tuple: date, amount, description,
	// counterparty_name, counterparty_iban.
	StandardImportConfig = &ImportConfig{
		Name:        "standard",
		HasHeader:   true,
		Delimiter:   ',',
		Description: "Normalized tuple with a header row",
	}

	// DutchBankImportConfig covers semicolon separated exports with Dutch
	// headers and an Af/Bij direction column.
	DutchBankImportConfig = &ImportConfig{
		Name:        "dutch",
		HasHeader:   true,
		Delimiter:   ';',
		Description: "Dutch bank export with semicolons and decimal commas",
	}

	// HeaderlessImportConfig reads the tuple in its canonical column order
	HeaderlessImportConfig = &ImportConfig{
		Name:        "headerless",
		HasHeader:   false,
		Delimiter:   ',',
		Columns:     []string{FieldDate, FieldAmount, FieldDescription, FieldCounterpartyName, FieldCounterpartyIBAN},
		Description: "Normalized tuple without a header row",
	}
)

// GetImportConfig returns a copy of a predefined layout by name
func GetImportConfig(name string) *ImportConfig {
	for _, cfg := range ListImportConfigs() {
		if strings.EqualFold(cfg.Name, strings.TrimSpace(name)) {
			return cfg.clone()
		}
	}
	return nil
}

// ListImportConfigs returns all predefined layouts
func ListImportConfigs() []*ImportConfig {
	return []*ImportConfig{
		StandardImportConfig,
		DutchBankImportConfig,
		HeaderlessImportConfig,
	}
}

// DetectDelimiter picks ';' or ',' from a header line, whichever occurs more.
func DetectDelimiter(headerLine string) rune {
	if strings.Count(headerLine, ";") > strings.Count(headerLine, ",") {
		return ';'
	}
	return ','
}

func isKnownField(field string) bool {
	return contains(RequiredFields, field) || contains(OptionalFields, field)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
