package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"golang-bookkeeping-service/cmd/bookkeeper/config"
	"golang-bookkeeping-service/internal/models"
	"golang-bookkeeping-service/pkg/errors"
)

var invoiceCmd = &cobra.Command{
	Use:   "invoice",
	Short: "Manage purchase and sales invoices",
}

var (
	invoiceKind    string
	invoiceNumber  string
	invoiceContact string
	invoiceDate    string
	invoiceTotal   string
	invoiceVAT     string
	invoiceAccount string
	invoiceStatus  string
)

var invoiceAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register an invoice",
	Long: `Add registers a purchase or sales invoice so bank payments can be matched
against it. The total is the gross amount and accepts arithmetic, which is
handy for adding VAT on the spot.

Examples:
  bookkeeper invoice add --kind purchase --number F-2026-031 --contact 7be0... \
    --date 2026-03-01 --total "1000*1.21" --vat 21
  bookkeeper invoice add --kind sales --number 2026-004 --contact 51c4... \
    --date 2026-03-05 --total 605 --vat 21 --status sent`,
	RunE: func(cmd *cobra.Command, args []string) error {
		inv, err := invoiceFromFlags()
		if err != nil {
			return err
		}
		return withServices(cmd.Context(), func(ctx context.Context, svc *config.Services) error {
			rel, err := svc.Store.RelationByID(ctx, inv.ContactID)
			if err != nil {
				return err
			}
			if rel == nil {
				return errors.StoreError(errors.CodeNotFound, "relation "+inv.ContactID, nil).
					WithSuggestion("Use 'bookkeeper relations list' to find the relation id")
			}
			if invoiceAccount != "" {
				acc, err := resolveAccount(ctx, svc.Store, invoiceAccount)
				if err != nil {
					return err
				}
				inv.AccountID = acc.ID
			}
			if err := svc.Store.InsertInvoice(ctx, inv); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s invoice %s for %s: %s\n", inv.Kind, inv.Number, rel.Name, inv.ID)
			return nil
		})
	},
}

var invoicePostCmd = &cobra.Command{
	Use:   "post <invoice-id>",
	Short: "Book an invoice against creditors or debtors",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd.Context(), func(ctx context.Context, svc *config.Services) error {
			result, err := svc.Poster.PostInvoice(ctx, args[0])
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), "Posted invoice", args[0], result)
			return nil
		})
	},
}

var invoiceListKind string

var invoiceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List open invoices",
	RunE: func(cmd *cobra.Command, args []string) error {
		kinds := []models.InvoiceKind{models.InvoicePurchase, models.InvoiceSales}
		if invoiceListKind != "" {
			kinds = []models.InvoiceKind{models.InvoiceKind(invoiceListKind)}
		}
		open := []models.InvoiceStatus{models.InvoiceDraft, models.InvoiceSent, models.InvoicePending, models.InvoiceOverdue}
		from := time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)
		to := time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

		return withServices(cmd.Context(), func(ctx context.Context, svc *config.Services) error {
			var rows [][]string
			for _, kind := range kinds {
				invoices, err := svc.Store.OpenInvoices(ctx, kind, open, from, to)
				if err != nil {
					return err
				}
				for _, inv := range invoices {
					booked := "no"
					if inv.JournalEntryID != "" {
						booked = "yes"
					}
					rows = append(rows, []string{
						inv.ID, string(inv.Kind), inv.Number, inv.Date.Format(models.DateLayout),
						inv.Total.StringFixed(2), inv.VATRate.String() + "%", string(inv.Status), booked,
					})
				}
			}
			printTable(cmd.OutOrStdout(), []string{"ID", "Kind", "Number", "Date", "Total", "VAT", "Status", "Booked"}, rows)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(invoiceCmd)
	invoiceCmd.AddCommand(invoiceAddCmd, invoicePostCmd, invoiceListCmd)

	f := invoiceAddCmd.Flags()
	f.StringVar(&invoiceKind, "kind", "", "purchase or sales (required)")
	f.StringVar(&invoiceNumber, "number", "", "invoice number (required)")
	f.StringVar(&invoiceContact, "contact", "", "relation id (required)")
	f.StringVar(&invoiceDate, "date", "", "invoice date, YYYY-MM-DD (required)")
	f.StringVar(&invoiceTotal, "total", "", "gross total, e.g. 1210.00 or \"1000*1.21\" (required)")
	f.StringVar(&invoiceVAT, "vat", "21", "VAT rate in percent")
	f.StringVar(&invoiceAccount, "account", "", "cost or revenue account code (default: the relation's default account)")
	f.StringVar(&invoiceStatus, "status", string(models.InvoicePending), "draft, sent, pending or overdue")
	for _, name := range []string{"kind", "number", "contact", "date", "total"} {
		invoiceAddCmd.MarkFlagRequired(name)
	}

	invoiceListCmd.Flags().StringVar(&invoiceListKind, "kind", "", "only purchase or sales invoices")
}

func invoiceFromFlags() (*models.Invoice, error) {
	kind := models.InvoiceKind(strings.ToLower(strings.TrimSpace(invoiceKind)))
	if kind != models.InvoicePurchase && kind != models.InvoiceSales {
		return nil, errors.ValidationError(errors.CodeInvalidState, "kind", invoiceKind,
			fmt.Errorf("must be purchase or sales"))
	}
	date, err := models.ParseDate(invoiceDate)
	if err != nil {
		return nil, errors.ValidationError(errors.CodeInvalidDate, "date", invoiceDate, err)
	}
	total, err := parseAmountExpr(invoiceTotal)
	if err != nil {
		return nil, err
	}
	vat, err := decimal.NewFromString(strings.TrimSuffix(strings.TrimSpace(invoiceVAT), "%"))
	if err != nil {
		return nil, errors.ValidationError(errors.CodeInvalidAmount, "vat", invoiceVAT, err)
	}

	status := models.InvoiceStatus(strings.ToLower(strings.TrimSpace(invoiceStatus)))
	switch status {
	case models.InvoiceDraft, models.InvoiceSent, models.InvoicePending, models.InvoiceOverdue:
	default:
		return nil, errors.ValidationError(errors.CodeInvalidState, "status", invoiceStatus,
			fmt.Errorf("must be draft, sent, pending or overdue"))
	}

	inv := &models.Invoice{
		Kind:      kind,
		Number:    strings.TrimSpace(invoiceNumber),
		ContactID: strings.TrimSpace(invoiceContact),
		Date:      models.TruncateDay(date),
		Total:     total,
		VATRate:   vat,
		Status:    status,
	}
	if err := inv.Validate(); err != nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "invoice", inv.Number, err)
	}
	return inv, nil
}
