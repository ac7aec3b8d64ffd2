package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"golang-bookkeeping-service/cmd/bookkeeper/config"
	"golang-bookkeeping-service/internal/posting"
	"golang-bookkeeping-service/pkg/errors"
)

var (
	bookAccount string
	bookContact string
)

var bookCmd = &cobra.Command{
	Use:   "book <transaction-id>",
	Short: "Book a transaction on an account",
	Long: `Book records a reviewed transaction. With only --account the amount is
booked directly against the bank account. With --contact the transaction
runs through the relation's suspense account: a payment entry between bank
and suspense plus a cost or revenue entry against suspense. The transaction
stays pending until it is settled. The counterparty is learned as a rule so
the next transaction from the same party resolves automatically.

Examples:
  bookkeeper book 3f2a9c1d-... --account 4310
  bookkeeper book 3f2a9c1d-... --contact 7be0... --account 8000`,
	Args: cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(bookAccount) == "" && strings.TrimSpace(bookContact) == "" {
			return errors.ValidationError(errors.CodeMissingField, "account", nil, nil).
				WithSuggestion("Pass --account, --contact or both")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd.Context(), func(ctx context.Context, svc *config.Services) error {
			var accountID string
			if bookAccount != "" {
				acc, err := resolveAccount(ctx, svc.Store, bookAccount)
				if err != nil {
					return err
				}
				accountID = acc.ID
			}
			result, err := svc.Orchestrator.BookManually(ctx, args[0], accountID, strings.TrimSpace(bookContact))
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), "Booked", args[0], result)
			return nil
		})
	},
}

var settleInvoice string

var settleCmd = &cobra.Command{
	Use:   "settle <transaction-id>",
	Short: "Settle an invoice with a bank transaction",
	Long: `Settle links a pending transaction to the invoice it pays. Whatever the
transaction left open on the suspense account is moved to creditors or
debtors. The invoice is marked paid and the transaction reconciled. An
invoice that was never booked is not booked here; use "invoice post" first
when its cost or revenue still has to be recorded.

Example:
  bookkeeper settle 3f2a9c1d-... --invoice 51c4...`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd.Context(), func(ctx context.Context, svc *config.Services) error {
			result, err := svc.Poster.Settle(ctx, args[0], settleInvoice)
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), "Settled", args[0], result)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(bookCmd)
	rootCmd.AddCommand(settleCmd)

	bookCmd.Flags().StringVarP(&bookAccount, "account", "a", "", "ledger account code or id")
	bookCmd.Flags().StringVar(&bookContact, "contact", "", "relation id to book through")

	settleCmd.Flags().StringVar(&settleInvoice, "invoice", "", "invoice id (required)")
	settleCmd.MarkFlagRequired("invoice")
}

func printResult(w io.Writer, verb, subject string, result *posting.Result) {
	fmt.Fprintf(w, "%s %s: %d journal entries", verb, subject, len(result.EntryIDs))
	if result.Status != "" {
		fmt.Fprintf(w, ", status %s", result.Status)
	}
	fmt.Fprintln(w)
	for _, id := range result.EntryIDs {
		fmt.Fprintf(w, "  %s\n", id)
	}
}
