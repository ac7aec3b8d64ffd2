package models

import (
	"fmt"
	"strings"
	"time"
)

// RelationType classifies a counterparty
type RelationType string

const (
	RelationSupplier RelationType = "supplier"
	RelationCustomer RelationType = "customer"
	RelationBoth     RelationType = "both"
)

// IsValid checks if the relation type is known
func (t RelationType) IsValid() bool {
	return t == RelationSupplier || t == RelationCustomer || t == RelationBoth
}

// Relation is a bookkeeping contact
type Relation struct {
	ID               string       `json:"id"`
	Name             string       `json:"name"`
	Type             RelationType `json:"type"`
	IBAN             string       `json:"iban,omitempty"`
	DefaultAccountID string       `json:"default_account_id,omitempty"`
	Active           bool         `json:"active"`
	CreatedAt        time.Time    `json:"created_at"`
}

// Validate performs basic validation on the Relation
func (r *Relation) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("relation name cannot be empty")
	}
	if !r.Type.IsValid() {
		return fmt.Errorf("invalid relation type: %s", r.Type)
	}
	return nil
}

// RuleMatchType selects how a rule keyword is compared
type RuleMatchType string

const (
	MatchContains RuleMatchType = "contains"
	MatchExact    RuleMatchType = "exact"
)

// IsValid checks if the match type is known
func (t RuleMatchType) IsValid() bool {
	return t == MatchContains || t == MatchExact
}

// Rule maps a keyword to a target account and/or contact. Higher priority wins.
type Rule struct {
	ID         string        `json:"id"`
	Keyword    string        `json:"keyword"`
	MatchType  RuleMatchType `json:"match_type"`
	AccountID  string        `json:"account_id,omitempty"`
	ContactID  string        `json:"contact_id,omitempty"`
	Priority   int           `json:"priority"`
	Active     bool          `json:"active"`
	UsageCount int           `json:"usage_count"`
	LastUsed   *time.Time    `json:"last_used,omitempty"`
	IsSystem   bool          `json:"is_system"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Validate performs basic validation on the Rule
func (r *Rule) Validate() error {
	if strings.TrimSpace(r.Keyword) == "" {
		return fmt.Errorf("rule keyword cannot be empty")
	}
	if !r.MatchType.IsValid() {
		return fmt.Errorf("invalid rule match type: %s", r.MatchType)
	}
	if r.AccountID == "" && r.ContactID == "" {
		return fmt.Errorf("rule %q needs a target account or contact", r.Keyword)
	}
	return nil
}
