package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alfredxing/calc/compute"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-isatty"
	"github.com/shopspring/decimal"
	"golang.org/x/term"

	"golang-bookkeeping-service/internal/models"
	"golang-bookkeeping-service/pkg/errors"
)

// AccountLookup finds accounts by code or id
type AccountLookup interface {
	AccountByCode(ctx context.Context, code string) (*models.Account, error)
	AccountByID(ctx context.Context, id string) (*models.Account, error)
}

// resolveAccount accepts an account code ("4310") or an account id
func resolveAccount(ctx context.Context, accounts AccountLookup, ref string) (*models.Account, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, nil
	}
	acc, err := accounts.AccountByCode(ctx, ref)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		if acc, err = accounts.AccountByID(ctx, ref); err != nil {
			return nil, err
		}
	}
	if acc == nil {
		return nil, errors.StoreError(errors.CodeNotFound, "account "+ref, nil).
			WithSuggestion("Use 'bookkeeper accounts list' to see account codes")
	}
	return acc, nil
}

// parseAmountExpr parses an amount, allowing simple arithmetic such as
// "100*1.21" or "(250+50)".
func parseAmountExpr(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if d, err := models.ParseAmount(s); err == nil {
		return d, nil
	}
	v, err := compute.Evaluate(s)
	if err != nil {
		return decimal.Zero, errors.ValidationError(errors.CodeInvalidAmount, "amount", s, err)
	}
	return decimal.NewFromFloat(v).Round(2), nil
}

// isTerminal reports whether f is an interactive terminal
func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// terminalWidth returns the width of stdout, or 0 when it is not a terminal
func terminalWidth() int {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return 0
	}
	w, _, err := term.GetSize(fd)
	if err != nil {
		return 0
	}
	return w
}

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

// printTable renders rows as a bordered table sized to the terminal
func printTable(w io.Writer, headers []string, rows [][]string) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "(none)")
		return
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	if width := terminalWidth(); width > 0 {
		t = t.Width(width)
	}
	fmt.Fprintln(w, t.Render())
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
