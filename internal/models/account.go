package models

import (
	"fmt"
	"strconv"
	"strings"
)

// AccountType is the ledger classification of an account
type AccountType string

const (
	AccountAsset     AccountType = "asset"
	AccountLiability AccountType = "liability"
	AccountEquity    AccountType = "equity"
	AccountRevenue   AccountType = "revenue"
	AccountExpense   AccountType = "expense"
)

// IsValid checks if the account type is known
func (t AccountType) IsValid() bool {
	switch t {
	case AccountAsset, AccountLiability, AccountEquity, AccountRevenue, AccountExpense:
		return true
	}
	return false
}

// SystemRole marks the accounts the poster books counter-lines against.
type SystemRole string

const (
	RoleNone               SystemRole = ""
	RoleBank               SystemRole = "bank"
	RoleSuspense           SystemRole = "suspense"
	RoleReceivableSuspense SystemRole = "receivable_suspense"
	RoleCreditors          SystemRole = "creditors"
	RoleDebtors            SystemRole = "debtors"
	RoleVATReceivable      SystemRole = "vat_receivable"
	RoleVATPayable         SystemRole = "vat_payable"
)

// VATClass is the optional VAT rate class of an account
type VATClass string

const (
	VATNone VATClass = ""
	VATHigh VATClass = "high"
	VATLow  VATClass = "low"
	VATZero VATClass = "zero"
)

// Account is a chart-of-accounts entry
type Account struct {
	ID          string      `json:"id"`
	Code        string      `json:"code"`
	Name        string      `json:"name"`
	Type        AccountType `json:"type"`
	VATClass    VATClass    `json:"vat_class,omitempty"`
	TaxCategory string      `json:"tax_category,omitempty"`
	SystemRole  SystemRole  `json:"system_role,omitempty"`
	Active      bool        `json:"active"`
}

// Validate performs basic validation on the Account
func (a *Account) Validate() error {
	if strings.TrimSpace(a.Code) == "" {
		return fmt.Errorf("account code cannot be empty")
	}
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("account name cannot be empty")
	}
	if !a.Type.IsValid() {
		return fmt.Errorf("invalid account type: %s", a.Type)
	}
	return nil
}

// IsBlacklisted reports whether the account may never be suggested for a bank
// transaction or invoice.
func (a *Account) IsBlacklisted() bool {
	return IsBlacklistedCode(a.Code)
}

// IsBookable reports whether the account may be used as a posting target.
func (a *Account) IsBookable() bool {
	return a != nil && a.Active && !a.IsBlacklisted()
}

// String returns "code name"
func (a *Account) String() string {
	return fmt.Sprintf("%s %s", a.Code, a.Name)
}

// blacklistedRanges are depreciation (4200-4299) and internal allocations (4900-4999).
var blacklistedRanges = [][2]int{
	{4200, 4299},
	{4900, 4999},
}

// IsBlacklistedCode reports whether an account code falls in a blacklisted range.
func IsBlacklistedCode(code string) bool {
	n, err := strconv.Atoi(strings.TrimSpace(code))
	if err != nil {
		return false
	}
	for _, r := range blacklistedRanges {
		if n >= r[0] && n <= r[1] {
			return true
		}
	}
	return false
}
