package reporter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"golang-bookkeeping-service/internal/reconciler"
	"golang-bookkeeping-service/pkg/errors"
	"golang-bookkeeping-service/pkg/logger"
)

// SafeReportGenerator writes batch reports without losing them. When the
// report file cannot be written the report goes to a "_backup" file next to
// it. When a JSON or CSV rendering fails the console layout is written
// instead.
type SafeReportGenerator struct {
	*ReportGenerator
	logger logger.Logger
	notice io.Writer
}

// NewSafeReportGenerator creates a generator. A nil config selects the
// console defaults.
func NewSafeReportGenerator(config *ReportConfig, log logger.Logger) (*SafeReportGenerator, error) {
	generator, err := NewReportGenerator(config)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "report_config", config, err).
			WithSuggestion("Use --output-format console, json or csv")
	}
	return &SafeReportGenerator{
		ReportGenerator: generator,
		logger:          logger.OrGlobal(log, "reporter"),
		notice:          os.Stderr,
	}, nil
}

// GenerateReportSafely writes report to writer, falling back as described on
// SafeReportGenerator.
func (srg *SafeReportGenerator) GenerateReportSafely(report *reconciler.Report, writer io.Writer) error {
	switch {
	case report == nil:
		return errors.ValidationError(errors.CodeMissingField, "report", nil, nil).
			WithSuggestion("Run a batch before writing its report")
	case writer == nil:
		return errors.ValidationError(errors.CodeMissingField, "writer", nil, nil)
	}

	log := srg.logger.WithFields(logger.Fields{
		"format":      srg.config.Format,
		"destination": describeWriter(writer),
		"processed":   report.TotalProcessed,
	})
	log.Debug("Writing batch report")

	err := srg.GenerateReport(report, writer)
	if err == nil {
		return nil
	}
	log.WithError(err).Warn("Batch report could not be written, trying fallback")

	if file, ok := writer.(*os.File); ok && isReportFile(file) && isFileError(err) {
		return srg.writeBackup(report, file.Name(), err)
	}
	if srg.config.Format != FormatConsole {
		return srg.writeConsole(report, writer, err)
	}
	return asReportError(err)
}

// writeBackup renders the report in its requested format to the sibling
// backup path of the file that failed
func (srg *SafeReportGenerator) writeBackup(report *reconciler.Report, path string, cause error) error {
	backup := backupPathFor(path)
	f, err := os.Create(backup)
	if err != nil {
		return asReportError(cause)
	}
	defer f.Close()

	if err := srg.GenerateReport(report, f); err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "report_backup",
			fmt.Errorf("writing %s failed (%v) and so did the backup %s: %w", path, cause, backup, err))
	}

	srg.logger.WithFields(logger.Fields{"file": path, "backup": backup}).Warn("Batch report written to backup file")
	fmt.Fprintf(srg.notice, "Warning: could not write %s, report saved to %s\n", path, backup)
	return nil
}

// writeConsole replaces a failed JSON or CSV rendering with the console layout
func (srg *SafeReportGenerator) writeConsole(report *reconciler.Report, writer io.Writer, cause error) error {
	cfg := *srg.config
	cfg.Format = FormatConsole
	console, err := NewReportGenerator(&cfg)
	if err != nil {
		return asReportError(cause)
	}

	fmt.Fprintf(writer, "NOTE: %s report failed (%v), showing the console report instead\n\n", srg.config.Format, cause)
	if err := console.GenerateReport(report, writer); err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "report_console_fallback",
			fmt.Errorf("%s report failed (%v) and so did the console report: %w", srg.config.Format, cause, err))
	}
	return nil
}

func asReportError(err error) error {
	if bkErr, ok := errors.AsBookkeepingError(err); ok {
		return bkErr
	}
	return errors.InternalError(errors.CodeUnexpectedError, "report_generation", err).
		WithSuggestion("Check that the --output-file directory is writable")
}

func isReportFile(f *os.File) bool {
	return f.Name() != "" && f != os.Stdout && f != os.Stderr
}

func isFileError(err error) bool {
	return os.IsPermission(err) || os.IsNotExist(err) ||
		errors.Is(err, os.ErrClosed) || errors.Is(err, syscall.ENOSPC)
}

// backupPathFor maps report.json to report_backup.json
func backupPathFor(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_backup" + ext
}

func describeWriter(w io.Writer) string {
	if f, ok := w.(*os.File); ok && f.Name() != "" {
		return "file:" + f.Name()
	}
	return fmt.Sprintf("%T", w)
}
