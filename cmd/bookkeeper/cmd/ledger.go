package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"golang-bookkeeping-service/cmd/bookkeeper/config"
	"golang-bookkeeping-service/internal/models"
	"golang-bookkeeping-service/internal/store"
	"golang-bookkeeping-service/pkg/errors"
)

// accounts

var accountsBalances bool

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Show the chart of accounts",
}

var accountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List ledger accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd.Context(), func(ctx context.Context, svc *config.Services) error {
			accounts, err := svc.Store.ListAccounts(ctx)
			if err != nil {
				return err
			}
			headers := []string{"Code", "Name", "Type", "Role", "Bookable"}
			if accountsBalances {
				headers = append(headers, "Balance")
			}
			var rows [][]string
			for _, a := range accounts {
				bookable := "yes"
				if !a.IsBookable() {
					bookable = "no"
				}
				row := []string{a.Code, a.Name, string(a.Type), orDash(string(a.SystemRole)), bookable}
				if accountsBalances {
					bal, err := svc.Store.AccountBalance(ctx, a.ID)
					if err != nil {
						return err
					}
					row = append(row, bal.StringFixed(2))
				}
				rows = append(rows, row)
			}
			printTable(cmd.OutOrStdout(), headers, rows)
			return nil
		})
	},
}

// rules

var (
	ruleAccount  string
	ruleContact  string
	ruleExact    bool
	rulePriority int
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage keyword rules",
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List rules by priority",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd.Context(), func(ctx context.Context, svc *config.Services) error {
			list, err := svc.Store.ListRules(ctx)
			if err != nil {
				return err
			}
			codes, err := accountCodes(ctx, svc.Store)
			if err != nil {
				return err
			}
			var rows [][]string
			for _, r := range list {
				origin := "learned"
				if r.IsSystem {
					origin = "system"
				}
				rows = append(rows, []string{
					r.ID, r.Keyword, string(r.MatchType), orDash(codes[r.AccountID]), orDash(r.ContactID),
					strconv.Itoa(r.Priority), strconv.Itoa(r.UsageCount), origin,
				})
			}
			printTable(cmd.OutOrStdout(), []string{"ID", "Keyword", "Match", "Account", "Contact", "Priority", "Used", "Origin"}, rows)
			return nil
		})
	},
}

var rulesAddCmd = &cobra.Command{
	Use:   "add <keyword>",
	Short: "Add a keyword rule",
	Long: `Add creates a rule that sends every transaction whose cleaned counterparty
contains the keyword to the given account or relation. Without --priority
the rule goes above every existing rule.

Example:
  bookkeeper rules add "q-park" --account 4330`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keyword := strings.TrimSpace(args[0])
		return withServices(cmd.Context(), func(ctx context.Context, svc *config.Services) error {
			rule := &models.Rule{
				Keyword:   keyword,
				MatchType: models.MatchContains,
				ContactID: strings.TrimSpace(ruleContact),
				Priority:  rulePriority,
				Active:    true,
			}
			if ruleExact {
				rule.MatchType = models.MatchExact
			}
			if ruleAccount != "" {
				acc, err := resolveAccount(ctx, svc.Store, ruleAccount)
				if err != nil {
					return err
				}
				if !acc.IsBookable() {
					return errors.New(errors.CategoryInvariant, errors.CodeBlacklistedAccount,
						fmt.Sprintf("account %s cannot be a rule target", acc)).WithContext("account_id", acc.ID)
				}
				rule.AccountID = acc.ID
			}
			existing, err := svc.Store.RuleByKeyword(ctx, keyword)
			if err != nil {
				return err
			}
			if existing != nil {
				return errors.ValidationError(errors.CodeInvalidState, "keyword", keyword,
					fmt.Errorf("a rule for this keyword already exists (%s)", existing.ID))
			}
			if !cmd.Flags().Changed("priority") {
				highest, err := svc.Store.MaxRulePriority(ctx)
				if err != nil {
					return err
				}
				rule.Priority = highest + 1
			}
			if err := svc.Store.InsertRule(ctx, rule); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added rule %q with priority %d: %s\n", rule.Keyword, rule.Priority, rule.ID)
			return nil
		})
	},
}

var rulesDeleteCmd = &cobra.Command{
	Use:   "delete <rule-id>",
	Short: "Delete a learned or user rule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd.Context(), func(ctx context.Context, svc *config.Services) error {
			if err := svc.Store.DeleteRule(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted rule %s\n", args[0])
			return nil
		})
	},
}

// relations

var (
	relationType    string
	relationIBAN    string
	relationAccount string
)

var relationsCmd = &cobra.Command{
	Use:   "relations",
	Short: "Manage suppliers and customers",
}

var relationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List relations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd.Context(), func(ctx context.Context, svc *config.Services) error {
			list, err := svc.Store.ListRelations(ctx)
			if err != nil {
				return err
			}
			codes, err := accountCodes(ctx, svc.Store)
			if err != nil {
				return err
			}
			var rows [][]string
			for _, r := range list {
				active := "yes"
				if !r.Active {
					active = "no"
				}
				rows = append(rows, []string{r.ID, r.Name, string(r.Type), orDash(r.IBAN), orDash(codes[r.DefaultAccountID]), active})
			}
			printTable(cmd.OutOrStdout(), []string{"ID", "Name", "Type", "IBAN", "Default account", "Active"}, rows)
			return nil
		})
	},
}

var relationsAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a relation",
	Example: `  bookkeeper relations add "Acme BV" --type customer --account 8000
  bookkeeper relations add "KPN B.V." --type supplier --iban NL12INGB0001234567`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd.Context(), func(ctx context.Context, svc *config.Services) error {
			rel := &models.Relation{
				Name:   strings.TrimSpace(args[0]),
				Type:   models.RelationType(strings.ToLower(relationType)),
				IBAN:   strings.ToUpper(strings.ReplaceAll(relationIBAN, " ", "")),
				Active: true,
			}
			if relationAccount != "" {
				acc, err := resolveAccount(ctx, svc.Store, relationAccount)
				if err != nil {
					return err
				}
				rel.DefaultAccountID = acc.ID
			}
			if err := svc.Store.CreateRelation(ctx, rel); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s %s: %s\n", rel.Type, rel.Name, rel.ID)
			return nil
		})
	},
}

// transactions

var (
	txStatus string
	txLimit  int
)

var transactionsCmd = &cobra.Command{
	Use:     "transactions",
	Aliases: []string{"tx"},
	Short:   "List imported transactions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd.Context(), func(ctx context.Context, svc *config.Services) error {
			list, err := svc.Store.ListTransactions(ctx, store.TransactionFilter{
				Status: models.TransactionStatus(strings.ToLower(txStatus)),
				Limit:  txLimit,
			})
			if err != nil {
				return err
			}
			var rows [][]string
			for _, tx := range list {
				suggestion := "-"
				if tx.Suggested != nil {
					suggestion = fmt.Sprintf("%s %d", tx.Suggested.Source, tx.Suggested.Score)
				}
				rows = append(rows, []string{
					tx.ID, tx.Date.Format(models.DateLayout), tx.Amount.StringFixed(2),
					orDash(tx.CounterpartyName), tx.Description, string(tx.Status), suggestion,
				})
			}
			printTable(cmd.OutOrStdout(), []string{"ID", "Date", "Amount", "Counterparty", "Description", "Status", "Suggestion"}, rows)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(accountsCmd, rulesCmd, relationsCmd, transactionsCmd)

	accountsCmd.AddCommand(accountsListCmd)
	accountsListCmd.Flags().BoolVar(&accountsBalances, "balances", false, "include the balance of every account")

	rulesCmd.AddCommand(rulesListCmd, rulesAddCmd, rulesDeleteCmd)
	rulesAddCmd.Flags().StringVar(&ruleAccount, "account", "", "target account code or id")
	rulesAddCmd.Flags().StringVar(&ruleContact, "contact", "", "target relation id")
	rulesAddCmd.Flags().BoolVar(&ruleExact, "exact", false, "match the whole counterparty instead of a substring")
	rulesAddCmd.Flags().IntVar(&rulePriority, "priority", 0, "rule priority (default: above all existing rules)")

	relationsCmd.AddCommand(relationsListCmd, relationsAddCmd)
	relationsAddCmd.Flags().StringVar(&relationType, "type", string(models.RelationSupplier), "supplier, customer or both")
	relationsAddCmd.Flags().StringVar(&relationIBAN, "iban", "", "bank account of the relation")
	relationsAddCmd.Flags().StringVar(&relationAccount, "account", "", "default cost or revenue account code")

	transactionsCmd.Flags().StringVar(&txStatus, "status", "", "only transactions with this status")
	transactionsCmd.Flags().IntVar(&txLimit, "limit", 50, "maximum rows, 0 for all")
}

// accountCodes maps account ids to their codes for display
func accountCodes(ctx context.Context, s *store.Store) (map[string]string, error) {
	accounts, err := s.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	codes := make(map[string]string, len(accounts))
	for _, a := range accounts {
		codes[a.ID] = a.Code
	}
	return codes, nil
}
