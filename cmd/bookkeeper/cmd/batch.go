package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/hako/durafmt"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"golang-bookkeeping-service/cmd/bookkeeper/config"
	"golang-bookkeeping-service/internal/reconciler"
	"golang-bookkeeping-service/internal/reporter"
	"golang-bookkeeping-service/pkg/errors"
)

// Flags for the batch command
var (
	batchAll           bool
	batchIDs           []string
	batchConcurrency   int
	batchOutputFormat  string
	batchOutputFile    string
	batchProgress      bool
	batchIncludeBooked bool
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Resolve and book transactions in bulk",
	Long: `Batch resolves transactions concurrently. Outcomes at or above the
auto-book threshold are booked and learned as rules; everything else keeps
its status and gets the suggestion attached for review.

Examples:
  # Every unmatched transaction
  bookkeeper batch --all

  # Selected transactions with a JSON report
  bookkeeper batch --ids 3f2a...,9c1d... --output-format json --output-file report.json

  # Live progress on stderr
  bookkeeper batch --all --progress --concurrency 8`,

	PreRunE: validateBatchFlags,
	RunE:    runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().BoolVar(&batchAll, "all", false, "process every unmatched transaction")
	batchCmd.Flags().StringSliceVar(&batchIDs, "ids", []string{}, "comma-separated transaction ids")
	batchCmd.Flags().IntVarP(&batchConcurrency, "concurrency", "c", 0, "parallel workers (default: batch.concurrency)")
	batchCmd.Flags().StringVarP(&batchOutputFormat, "output-format", "f", "console", "output format: console, json, csv")
	batchCmd.Flags().StringVarP(&batchOutputFile, "output-file", "o", "", "output file path (default: stdout)")
	batchCmd.Flags().BoolVar(&batchProgress, "progress", false, "show progress on stderr")
	batchCmd.Flags().BoolVar(&batchIncludeBooked, "include-booked", false, "list auto-booked and skipped items in the console report")
}

func validateBatchFlags(cmd *cobra.Command, args []string) error {
	if !batchAll && len(batchIDs) == 0 {
		return errors.ValidationError(errors.CodeMissingField, "ids", nil, nil).
			WithSuggestion("Pass --all or --ids")
	}
	if batchAll && len(batchIDs) > 0 {
		return errors.ValidationError(errors.CodeInvalidState, "ids", strings.Join(batchIDs, ","),
			fmt.Errorf("--all and --ids are mutually exclusive"))
	}
	if batchConcurrency < 0 {
		return errors.ValidationError(errors.CodeOutOfRange, "concurrency", batchConcurrency, nil)
	}
	if !reporter.OutputFormat(batchOutputFormat).IsValid() {
		return errors.ValidationError(errors.CodeInvalidState, "output-format", batchOutputFormat,
			fmt.Errorf("valid formats: console, json, csv"))
	}
	if batchOutputFile != "" {
		dir := filepath.Dir(batchOutputFile)
		if dir != "." {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				return errors.ValidationError(errors.CodeInvalidState, "output-file", batchOutputFile,
					fmt.Errorf("output directory does not exist: %s", dir))
			}
		}
	}
	return nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return withServices(ctx, func(ctx context.Context, svc *config.Services) error {
		reportConfig, err := config.CreateReportConfig(batchOutputFormat, batchIncludeBooked)
		if err != nil {
			return err
		}
		generator, err := reporter.NewSafeReportGenerator(reportConfig, svc.Logger)
		if err != nil {
			return err
		}

		if batchProgress {
			interactive := isTerminal(os.Stderr)
			svc.Orchestrator.AddProgressCallback(func(p *reconciler.BatchProgress) {
				line := fmt.Sprintf("[%d/%d] %.1f%% complete, %d failed, about %s left",
					p.Completed, p.Total, p.PercentComplete, p.Failed,
					durafmt.Parse(p.EstimatedRemaining).LimitFirstN(2))
				if interactive {
					fmt.Fprintf(os.Stderr, "\r\033[K%s", line)
				} else {
					fmt.Fprintln(os.Stderr, line)
				}
			})
		}

		var ids []string
		if !batchAll {
			ids = batchIDs
		}
		report, runErr := svc.Orchestrator.RunBatch(ctx, ids, batchConcurrency)
		if batchProgress && isTerminal(os.Stderr) {
			fmt.Fprintln(os.Stderr)
		}
		if report == nil {
			return runErr
		}

		output := os.Stdout
		if batchOutputFile != "" {
			output, err = os.Create(batchOutputFile)
			if err != nil {
				return errors.InternalError(errors.CodeUnexpectedError, "create output file", err).
					WithContext("path", batchOutputFile)
			}
			defer output.Close()
		}
		if err := generator.GenerateReportSafely(report, output); err != nil {
			return err
		}

		if viper.GetBool("verbose") {
			fmt.Fprintf(os.Stderr, "Processed %d transactions in %s: %d booked, %d for review, %d skipped, %d failed.\n",
				report.TotalProcessed, durafmt.Parse(report.Duration).LimitFirstN(2),
				report.AutoBooked, report.NeedsReview, report.Skipped, report.Errors)
		}

		if runErr != nil {
			return runErr
		}
		if report.HasErrors() {
			return errors.New(errors.CategoryBatch, errors.CodeItemFailed,
				fmt.Sprintf("%d of %d transactions failed", report.Errors, report.TotalProcessed)).
				WithSuggestion("See the ERRORS section of the report for details")
		}
		return nil
	})
}
