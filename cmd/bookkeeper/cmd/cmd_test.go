package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"golang-bookkeeping-service/internal/models"
	"golang-bookkeeping-service/internal/store"
	"golang-bookkeeping-service/pkg/errors"
	"golang-bookkeeping-service/pkg/logger"
)

func TestValidateFileExists(t *testing.T) {
	tmpDir := t.TempDir()
	validFile := filepath.Join(tmpDir, "valid.csv")
	if err := os.WriteFile(validFile, []byte("test"), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	tests := []struct {
		name        string
		filePath    string
		expectError bool
	}{
		{"valid file", validFile, false},
		{"empty path", "", true},
		{"non-existent file", "/non/existent/file.csv", true},
		{"directory instead of file", tmpDir, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateFileExists(tt.filePath, "test file")
			if tt.expectError && !errors.IsCategory(err, errors.CategoryValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateBatchFlags(t *testing.T) {
	reset := func() {
		batchAll, batchIDs, batchConcurrency = false, nil, 0
		batchOutputFormat, batchOutputFile = "console", ""
	}
	defer reset()

	tests := []struct {
		name          string
		setupFlags    func()
		expectError   bool
		errorContains string
	}{
		{"all", func() { batchAll = true }, false, ""},
		{"ids", func() { batchIDs = []string{"a", "b"} }, false, ""},
		{"neither", func() {}, true, "ids"},
		{"both", func() { batchAll = true; batchIDs = []string{"a"} }, true, "mutually exclusive"},
		{"negative concurrency", func() { batchAll = true; batchConcurrency = -1 }, true, "concurrency"},
		{"invalid format", func() { batchAll = true; batchOutputFormat = "xml" }, true, "output-format"},
		{"missing output dir", func() { batchAll = true; batchOutputFile = "/no/such/dir/report.json" }, true, "does not exist"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reset()
			tt.setupFlags()

			err := validateBatchFlags(&cobra.Command{}, nil)
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				} else if !strings.Contains(err.Error(), tt.errorContains) {
					t.Errorf("expected error to contain %q, got: %v", tt.errorContains, err)
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestLayoutFor(t *testing.T) {
	dir := t.TempDir()
	dutch := filepath.Join(dir, "ing.csv")
	os.WriteFile(dutch, []byte("\ufeffDatum;Bedrag;Af Bij\n"), 0644)
	standard := filepath.Join(dir, "std.csv")
	os.WriteFile(standard, []byte("date,amount\n"), 0644)

	tests := []struct {
		path, format, want string
	}{
		{dutch, "auto", "dutch"},
		{standard, "auto", "standard"},
		{standard, "headerless", "headerless"},
	}
	for _, tt := range tests {
		layout, err := layoutFor(tt.path, tt.format)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if layout.Name != tt.want {
			t.Errorf("%s/%s: expected layout %s, got %s", filepath.Base(tt.path), tt.format, tt.want, layout.Name)
		}
	}
}

func TestParseAmountExpr(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"1210.00", "1210.00", false},
		{"1.234,56", "1234.56", false},
		{"1000*1.21", "1210.00", false},
		{"(250+50)/2", "150.00", false},
		{"twelve", "", true},
	}
	for _, tt := range tests {
		got, err := parseAmountExpr(tt.input)
		if tt.wantErr {
			if !errors.IsCategory(err, errors.CategoryValidation) {
				t.Errorf("%q: expected validation error, got %v", tt.input, err)
			}
			continue
		}
		if err != nil || got.StringFixed(2) != tt.want {
			t.Errorf("%q: expected %s, got %s (%v)", tt.input, tt.want, got.StringFixed(2), err)
		}
	}
}

type fakeAccounts map[string]*models.Account

func (f fakeAccounts) AccountByCode(ctx context.Context, code string) (*models.Account, error) {
	for _, a := range f {
		if a.Code == code {
			return a, nil
		}
	}
	return nil, nil
}

func (f fakeAccounts) AccountByID(ctx context.Context, id string) (*models.Account, error) {
	return f[id], nil
}

func TestResolveAccount(t *testing.T) {
	accounts := fakeAccounts{"acc-1": {ID: "acc-1", Code: "4310", Name: "Brandstof"}}
	ctx := context.Background()

	byCode, err := resolveAccount(ctx, accounts, " 4310 ")
	if err != nil || byCode.ID != "acc-1" {
		t.Errorf("expected lookup by code, got %v %v", byCode, err)
	}
	byID, err := resolveAccount(ctx, accounts, "acc-1")
	if err != nil || byID.Code != "4310" {
		t.Errorf("expected lookup by id, got %v %v", byID, err)
	}
	if _, err := resolveAccount(ctx, accounts, "9999"); !errors.IsCategory(err, errors.CategoryStore) {
		t.Errorf("expected not found error, got %v", err)
	}
}

func TestErrorHandlerExitCodes(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		code     int
		contains string
	}{
		{"nil", nil, 0, ""},
		{"validation", errors.ValidationError(errors.CodeInvalidDate, "date", "x", nil), 3, "Validation error help"},
		{"configuration", errors.MissingAccountError("suspense"), 4, "Suggestion:"},
		{"invariant", errors.PostingError(errors.CodeBlacklistedAccount, "tx-1", nil), 5, "Booking error help"},
		{"store", errors.StoreError(errors.CodeNotFound, "transaction x", nil), 7, "Database error help"},
		{"batch", errors.New(errors.CategoryBatch, errors.CodeItemFailed, "1 of 2 failed"), 8, "1 of 2 failed"},
		{"missing file", fmt.Errorf("open: %w", os.ErrNotExist), 2, "File not found"},
		{"generic", fmt.Errorf("boom"), 1, "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			h := &CLIErrorHandler{logger: logger.NewDiscardLogger(), out: &out}

			if code := h.HandleError(tt.err); code != tt.code {
				t.Errorf("expected exit code %d, got %d", tt.code, code)
			}
			if !strings.Contains(out.String(), tt.contains) {
				t.Errorf("expected output to contain %q, got:\n%s", tt.contains, out.String())
			}
		})
	}
}

func TestBatchCommandHelp(t *testing.T) {
	for _, name := range []string{"all", "ids", "concurrency", "output-format", "output-file", "progress", "include-booked"} {
		if batchCmd.Flags().Lookup(name) == nil {
			t.Errorf("flag %q not found", name)
		}
	}
	if !strings.Contains(batchCmd.Long, "Examples:") {
		t.Errorf("batch help should carry examples")
	}
}

func TestBookAndSettleHelpDescribeSuspenseFlow(t *testing.T) {
	if !strings.Contains(bookCmd.Long, "suspense account") {
		t.Errorf("book help should say relation bookings go through suspense")
	}
	if strings.Contains(bookCmd.Long, "payment entry on\ncreditors") {
		t.Errorf("book help should not claim a payment entry on creditors or debtors")
	}
	if strings.Contains(settleCmd.Long, "booked first") {
		t.Errorf("settle help should not claim the invoice is booked first")
	}
	if !strings.Contains(settleCmd.Long, "invoice post") {
		t.Errorf("settle help should point to invoice post for unbooked invoices")
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestImportBookAndListEndToEnd(t *testing.T) {
	t.Setenv("TAVILY_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("BOOKKEEPER_LOG_LEVEL", "error")

	dir := t.TempDir()
	db := filepath.Join(dir, "books.db")
	csvPath := filepath.Join(dir, "statement.csv")
	csv := "date,amount,description,counterparty_name\n" +
		"2026-03-02,-4.50,Parkeren,Q-Park Centrum\n" +
		"2026-03-03,-61.20,Tanken,Shell Utrecht\n"
	if err := os.WriteFile(csvPath, []byte(csv), 0644); err != nil {
		t.Fatalf("failed to write statement: %v", err)
	}

	out, err := execute(t, "import", "--db", db, "--format", "standard", csvPath)
	if err != nil {
		t.Fatalf("import failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "2 imported, 0 already present") {
		t.Errorf("unexpected import output: %s", out)
	}

	out, err = execute(t, "import", "--db", db, "--format", "standard", csvPath)
	if err != nil || !strings.Contains(out, "0 imported, 2 already present") {
		t.Errorf("re-import must skip every row, got %v: %s", err, out)
	}

	s, err := store.Open(db, logger.NewDiscardLogger())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	txs, err := s.ListTransactions(context.Background(), store.TransactionFilter{})
	s.Close()
	if err != nil || len(txs) != 2 {
		t.Fatalf("expected 2 transactions, got %d (%v)", len(txs), err)
	}
	parking := txs[0]

	out, err = execute(t, "book", "--db", db, parking.ID, "--account", "4320")
	if err != nil {
		t.Fatalf("book failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Booked "+parking.ID) {
		t.Errorf("unexpected book output: %s", out)
	}

	out, err = execute(t, "rules", "list", "--db", db)
	if err != nil || !strings.Contains(out, "Q-Park Centrum") {
		t.Errorf("expected the learned rule in the list, got %v: %s", err, out)
	}

	out, err = execute(t, "transactions", "--db", db, "--status", "booked")
	if err != nil || !strings.Contains(out, parking.ID) || strings.Contains(out, txs[1].ID) {
		t.Errorf("expected only the booked transaction, got %v: %s", err, out)
	}

	out, err = execute(t, "book", "--db", db, parking.ID, "--account", "4320")
	if !errors.IsCategory(err, errors.CategoryPosting) {
		t.Errorf("booking twice must fail with a posting error, got %v: %s", err, out)
	}
}

func TestSampleThenImport(t *testing.T) {
	t.Setenv("BOOKKEEPER_LOG_LEVEL", "error")

	dir := t.TempDir()
	statement := filepath.Join(dir, "ing.csv")
	out, err := execute(t, "sample", "--rows", "12", "--layout", "dutch", "--seed", "3", "--from", "2026-02-01", "-o", statement)
	if err != nil {
		t.Fatalf("sample failed: %v\n%s", err, out)
	}

	out, err = execute(t, "import", "--db", filepath.Join(dir, "books.db"), "--format", "auto", statement)
	if err != nil {
		t.Fatalf("import failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "12 imported, 0 already present") {
		t.Errorf("unexpected import output: %s", out)
	}
	if !strings.Contains(out, "0 rows rejected") {
		t.Errorf("generated rows must all parse: %s", out)
	}
}
