package store

import (
	"context"

	"github.com/google/uuid"

	"golang-bookkeeping-service/internal/models"
	"golang-bookkeeping-service/pkg/logger"
)

type seedAccount struct {
	code, name  string
	typ         models.AccountType
	vat         models.VATClass
	taxCategory string
	role        models.SystemRole
}

// defaultChart is a small RGS-style chart for a Dutch sole trader. The
// 4210 and 4910 rows sit in the blacklisted ranges.
var defaultChart = []seedAccount{
	{"0100", "Inventaris", models.AccountAsset, models.VATHigh, "vaste activa", models.RoleNone},
	{"0500", "Privé opnamen", models.AccountEquity, models.VATNone, "prive", models.RoleNone},
	{"1100", "Bank", models.AccountAsset, models.VATNone, "liquide middelen", models.RoleBank},
	{"1300", "Debiteuren", models.AccountAsset, models.VATNone, "vorderingen", models.RoleDebtors},
	{"1510", "Te vorderen BTW", models.AccountAsset, models.VATNone, "btw", models.RoleVATReceivable},
	{"1520", "Af te dragen BTW", models.AccountLiability, models.VATNone, "btw", models.RoleVATPayable},
	{"1600", "Crediteuren", models.AccountLiability, models.VATNone, "schulden", models.RoleCreditors},
	{"2000", "Kruisposten", models.AccountLiability, models.VATNone, "tussenrekening", models.RoleSuspense},
	{"2010", "Kruisposten ontvangsten", models.AccountAsset, models.VATNone, "tussenrekening", models.RoleReceivableSuspense},
	{"4100", "Huisvesting huur", models.AccountExpense, models.VATHigh, "huisvesting", models.RoleNone},
	{"4150", "Energie en water", models.AccountExpense, models.VATHigh, "huisvesting", models.RoleNone},
	{"4210", "Afschrijvingen inventaris", models.AccountExpense, models.VATNone, "afschrijvingen", models.RoleNone},
	{"4300", "Autokosten", models.AccountExpense, models.VATHigh, "auto", models.RoleNone},
	{"4310", "Brandstof", models.AccountExpense, models.VATHigh, "auto", models.RoleNone},
	{"4320", "Parkeerkosten", models.AccountExpense, models.VATHigh, "auto", models.RoleNone},
	{"4330", "Reiskosten openbaar vervoer", models.AccountExpense, models.VATLow, "reiskosten", models.RoleNone},
	{"4400", "Kantoorkosten", models.AccountExpense, models.VATHigh, "kantoor", models.RoleNone},
	{"4410", "Telefoon en internet", models.AccountExpense, models.VATHigh, "kantoor", models.RoleNone},
	{"4420", "Software en abonnementen", models.AccountExpense, models.VATHigh, "kantoor", models.RoleNone},
	{"4430", "Porti en verzendkosten", models.AccountExpense, models.VATZero, "kantoor", models.RoleNone},
	{"4510", "Reclame en advertenties", models.AccountExpense, models.VATHigh, "verkoopkosten", models.RoleNone},
	{"4520", "Kantine en representatie", models.AccountExpense, models.VATLow, "voeding", models.RoleNone},
	{"4600", "Algemene kosten", models.AccountExpense, models.VATHigh, "algemeen", models.RoleNone},
	{"4610", "Advieskosten", models.AccountExpense, models.VATHigh, "advies", models.RoleNone},
	{"4620", "Verzekeringen", models.AccountExpense, models.VATZero, "verzekeringen", models.RoleNone},
	{"4700", "Bankkosten", models.AccountExpense, models.VATZero, "bank", models.RoleNone},
	{"4910", "Interne doorbelasting", models.AccountExpense, models.VATNone, "doorbelasting", models.RoleNone},
	{"7000", "Inkoopwaarde omzet", models.AccountExpense, models.VATHigh, "voorraad", models.RoleNone},
	{"8000", "Omzet hoog tarief", models.AccountRevenue, models.VATHigh, "omzet", models.RoleNone},
	{"8010", "Omzet laag tarief", models.AccountRevenue, models.VATLow, "omzet", models.RoleNone},
}

// defaultRules are system rules. They cannot be deleted through DeleteRule.
var defaultRules = []struct {
	keyword     string
	accountCode string
}{
	{"BELASTINGDIENST", "1520"},
	{"KVK", "4600"},
}

// SeedAccountID returns the deterministic id of a seeded account code.
func SeedAccountID(code string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("account:"+code)).String()
}

// SeedDefaults ensures the default chart of accounts and system rules exist.
// It is idempotent and safe to run on every startup; accounts the user has
// edited are left alone.
func (s *Store) SeedDefaults(ctx context.Context) error {
	return s.Atomic(ctx, func(ctx context.Context) error {
		for _, sa := range defaultChart {
			existing, err := s.AccountByCode(ctx, sa.code)
			if err != nil {
				return err
			}
			if existing != nil {
				continue
			}
			a := &models.Account{
				ID:          SeedAccountID(sa.code),
				Code:        sa.code,
				Name:        sa.name,
				Type:        sa.typ,
				VATClass:    sa.vat,
				TaxCategory: sa.taxCategory,
				SystemRole:  sa.role,
				Active:      true,
			}
			if err := s.UpsertAccount(ctx, a); err != nil {
				return err
			}
		}

		for i, dr := range defaultRules {
			existing, err := s.RuleByKeyword(ctx, dr.keyword)
			if err != nil {
				return err
			}
			if existing != nil {
				continue
			}
			acct, err := s.AccountByCode(ctx, dr.accountCode)
			if err != nil {
				return err
			}
			if acct == nil {
				continue
			}
			r := &models.Rule{
				ID:        uuid.NewSHA1(uuid.NameSpaceOID, []byte("rule:"+dr.keyword)).String(),
				Keyword:   dr.keyword,
				MatchType: models.MatchContains,
				AccountID: acct.ID,
				Priority:  len(defaultRules) - i,
				Active:    true,
				IsSystem:  true,
			}
			if err := s.InsertRule(ctx, r); err != nil {
				return err
			}
		}

		s.logger.WithFields(logger.Fields{
			"accounts": len(defaultChart),
			"rules":    len(defaultRules),
		}).Debug("Default chart of accounts seeded")
		return nil
	})
}
