package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"golang-bookkeeping-service/cmd/bookkeeper/config"
	"golang-bookkeeping-service/internal/parsers"
	"golang-bookkeeping-service/pkg/errors"
	"golang-bookkeeping-service/pkg/logger"
)

var (
	importFormat    string
	importBatchSize int
)

var importCmd = &cobra.Command{
	Use:   "import <file>...",
	Short: "Import bank statement CSV files",
	Long: `Import reads bank statement exports and stores every row as an unmatched
transaction. Rows that were imported before are skipped, so importing an
overlapping export twice is safe. Rows with an unreadable date or amount are
reported and skipped; the rest of the file is still imported.

Layouts:
  standard    comma separated with English headers (date, amount, ...)
  dutch       semicolon separated Dutch bank export (Datum, Af Bij, Bedrag, ...)
  headerless  date, amount, description, counterparty, IBAN without a header
  auto        standard or dutch, detected from the header delimiter

Examples:
  bookkeeper import statement.csv
  bookkeeper import --format dutch NL12INGB_2026-03.csv`,
	Args: cobra.MinimumNArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		for i, path := range args {
			if err := validateFileExists(path, fmt.Sprintf("import file %d", i+1)); err != nil {
				return err
			}
		}
		if importFormat != "auto" && parsers.GetImportConfig(importFormat) == nil {
			return errors.ValidationError(errors.CodeInvalidState, "format", importFormat,
				fmt.Errorf("unknown layout")).
				WithSuggestion("Valid layouts: auto, standard, dutch, headerless")
		}
		return nil
	},
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringVar(&importFormat, "format", "auto", "file layout: auto, standard, dutch, headerless")
	importCmd.Flags().IntVar(&importBatchSize, "batch-size", parsers.DefaultImportBatchSize, "rows stored per database transaction")
}

func runImport(cmd *cobra.Command, args []string) error {
	return withServices(cmd.Context(), func(ctx context.Context, svc *config.Services) error {
		out := cmd.OutOrStdout()
		var failed int
		for _, path := range args {
			result, err := importFile(ctx, svc, path)
			if err != nil {
				if ctx.Err() != nil {
					return err
				}
				failed++
				svc.Logger.WithError(err).WithField("file", path).Error("Import failed")
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
				continue
			}
			fmt.Fprintf(out, "%s: %d imported, %d already present, %d rows rejected\n",
				path, result.Inserted, result.Duplicates, result.Stats.ErrorCount)
			for _, sample := range result.Stats.GetSampleErrors(5) {
				fmt.Fprintf(out, "  %s\n", sample)
			}
		}
		if failed > 0 {
			return errors.New(errors.CategoryBatch, errors.CodeItemFailed,
				fmt.Sprintf("%d of %d files could not be imported", failed, len(args)))
		}
		return nil
	})
}

func importFile(ctx context.Context, svc *config.Services, path string) (*parsers.ImportResult, error) {
	layout, err := layoutFor(path, importFormat)
	if err != nil {
		return nil, err
	}
	parser, err := parsers.NewTransactionParser(layout, svc.Logger)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.ParseError(errors.CodeInvalidFormat, path, 0, "", "", err)
	}
	defer f.Close()

	svc.Logger.WithFields(logger.Fields{
		"file":   path,
		"layout": layout.Name,
	}).Debug("Importing file")
	return parser.Import(ctx, f, filepath.Base(path), svc.Store, importBatchSize)
}

// layoutFor picks the import layout. auto looks at the delimiter of the
// first line.
func layoutFor(path, format string) (*parsers.ImportConfig, error) {
	if format != "auto" {
		return parsers.GetImportConfig(format), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.ParseError(errors.CodeInvalidFormat, path, 0, "", "", err)
	}
	defer f.Close()

	first, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && first == "" {
		return parsers.DefaultImportConfig(), nil
	}
	if parsers.DetectDelimiter(strings.TrimPrefix(first, "\ufeff")) == ';' {
		return parsers.GetImportConfig("dutch"), nil
	}
	return parsers.DefaultImportConfig(), nil
}

func validateFileExists(filePath, description string) error {
	if filePath == "" {
		return errors.ValidationError(errors.CodeMissingField, description, nil, nil)
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return errors.ValidationError(errors.CodeInvalidState, description, filePath,
			fmt.Errorf("file does not exist"))
	}
	if err != nil {
		return errors.ValidationError(errors.CodeInvalidState, description, filePath, err)
	}
	if info.IsDir() {
		return errors.ValidationError(errors.CodeInvalidState, description, filePath,
			fmt.Errorf("expected a file, got a directory"))
	}
	return nil
}
