package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"golang-bookkeeping-service/cmd/bookkeeper/config"
	"golang-bookkeeping-service/internal/learning"
	"golang-bookkeeping-service/internal/reporter"
)

var (
	resolveOutputFormat string
	resolveHistory      bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <transaction-id>",
	Short: "Show how a transaction would be categorized",
	Long: `Resolve runs one transaction through the matching pipeline and prints the
outcome without booking anything. When the outcome needs review, a hint from
earlier bookings of similar transactions is shown as well.

Examples:
  bookkeeper resolve 3f2a9c1d-...
  bookkeeper resolve 3f2a9c1d-... --output-format json`,
	Args: cobra.ExactArgs(1),
	RunE: runResolve,
}

func init() {
	rootCmd.AddCommand(resolveCmd)

	resolveCmd.Flags().StringVarP(&resolveOutputFormat, "output-format", "f", "console", "output format: console, json")
	resolveCmd.Flags().BoolVar(&resolveHistory, "history", true, "suggest an account from booking history when review is needed")
}

func runResolve(cmd *cobra.Command, args []string) error {
	return withServices(cmd.Context(), func(ctx context.Context, svc *config.Services) error {
		reportConfig, err := config.CreateReportConfig(resolveOutputFormat, false)
		if err != nil {
			return err
		}
		generator, err := reporter.NewReportGenerator(reportConfig)
		if err != nil {
			return err
		}

		tx, outcome, err := svc.Orchestrator.Resolve(ctx, args[0])
		if err != nil {
			return err
		}
		threshold := svc.Config.Matching.AutoBookThreshold
		out := cmd.OutOrStdout()
		if err := generator.GenerateOutcome(tx, outcome, threshold, out); err != nil {
			return err
		}

		if !resolveHistory || outcome.IsActionable(threshold) || reportConfig.Format != reporter.FormatConsole {
			return nil
		}
		history, err := learning.TrainHistory(ctx, svc.Store, svc.Logger)
		if err != nil {
			svc.Logger.WithError(err).Warn("Could not train on booking history")
			return nil
		}
		hint, ok := history.Suggest(tx)
		if !ok {
			return nil
		}
		acc, err := svc.Store.AccountByID(ctx, hint.AccountID)
		if err != nil || acc == nil {
			return err
		}
		fmt.Fprintf(out, "History hint: %s (probability %.0f%%)\n", acc, hint.Probability*100)
		fmt.Fprintf(out, "  bookkeeper book %s --account %s\n", tx.ID, acc.Code)
		return nil
	})
}
