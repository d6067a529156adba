package cmd

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"syscall"

	"booking-validation-service/pkg/errors"
	"booking-validation-service/pkg/logger"

	"github.com/spf13/viper"
)

// CLIErrorHandler provides user-friendly error handling for CLI operations
type CLIErrorHandler struct {
	logger  logger.Logger
	verbose bool
	out     io.Writer
}

// NewCLIErrorHandler creates a new CLI error handler
func NewCLIErrorHandler() *CLIErrorHandler {
	return &CLIErrorHandler{
		logger:  logger.GetGlobalLogger().WithComponent("cli"),
		verbose: viper.GetBool("verbose"),
		out:     os.Stderr,
	}
}

// HandleError prints err for the user and returns the process exit code
func (h *CLIErrorHandler) HandleError(err error) int {
	if err == nil {
		return 0
	}

	h.logger.WithError(err).Debug("Command failed")

	var parseErr *errors.EnhancedParseError
	if h.verbose && stderrors.As(err, &parseErr) {
		fmt.Fprintf(h.out, "%s\n\n", parseErr.GetDetailedError())
	}

	if reconcilerErr, ok := errors.AsReconcilerError(err); ok {
		return h.handleReconcilerError(reconcilerErr)
	}
	return h.handleGenericError(err)
}

func (h *CLIErrorHandler) handleReconcilerError(err *errors.ReconcilerError) int {
	fmt.Fprintf(h.out, "Error: %s\n", err.Message)

	if len(err.Context) > 0 {
		keys := make([]string, 0, len(err.Context))
		for key := range err.Context {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		fmt.Fprintf(h.out, "\nContext:\n")
		for _, key := range keys {
			fmt.Fprintf(h.out, "  %s: %v\n", key, err.Context[key])
		}
	}

	if err.Suggestion != "" {
		fmt.Fprintf(h.out, "\nSuggestion: %s\n", err.Suggestion)
	}

	fmt.Fprintf(h.out, "\n%s\n", getCategoryHelp(err.Category))

	if h.verbose {
		if err.Cause != nil {
			fmt.Fprintf(h.out, "\nUnderlying error: %v\n", err.Cause)
		}
		h.suggestRecoveryActions(err.Category)
	}

	return err.GetExitCode()
}

func (h *CLIErrorHandler) handleGenericError(err error) int {
	switch {
	case isFileNotFoundError(err):
		fmt.Fprintf(h.out, "Error: File not found\n")
		fmt.Fprintf(h.out, "Suggestion: Check if the file path is correct and the file exists\n")
		return 2
	case isPermissionError(err):
		fmt.Fprintf(h.out, "Error: Permission denied\n")
		fmt.Fprintf(h.out, "Suggestion: Check file permissions and ensure you have read access\n")
		return 2
	case isDiskFullError(err):
		fmt.Fprintf(h.out, "Error: Insufficient disk space\n")
		fmt.Fprintf(h.out, "Suggestion: Free up disk space and try again\n")
		return 2
	}

	// cobra flag and argument errors end up here
	fmt.Fprintf(h.out, "Error: %v\n", err)
	fmt.Fprintf(h.out, "Run 'validator --help' for usage.\n")
	return 1
}

func getCategoryHelp(category errors.ErrorCategory) string {
	switch category {
	case errors.CategoryFile:
		return `File error help:
• Check that the manifest exists and is readable
• Verify the file path is correct (use absolute paths if needed)
• Workbooks must be .xlsx files, delimited text must be UTF-8`

	case errors.CategoryParse:
		return `Parse error help:
• Verify the manifest has a header row and consistent columns
• Try --delimiter if the separator is not detected
• Use --sheet to pick the workbook sheet holding the manifest`

	case errors.CategoryValidation:
		return `Validation error help:
• Check that all required fields have values
• Mapping keys must be canonical fields such as pnr, passengerName or flightDate
• Only a report still in processing can be run`

	case errors.CategoryConfiguration:
		return `Configuration error help:
• Check your command-line flags and VALIDATOR_* environment variables
• Verify configuration file syntax if using --config
• Use 'validator validate --help' to see all available options`

	case errors.CategoryStore:
		return `Store error help:
• Check --store and --dsn and that the database is reachable
• Run 'validator migrate' once before using a new database
• The report can be inspected later with 'validator report --id'`

	case errors.CategoryReconciliation:
		return `Validation run help:
• The report was marked failed; its error is shown by 'validator report'
• An interrupted run leaves the report in processing`

	default:
		return `For more help:
• Use 'validator --help' for general help
• Use 'validator validate --help' for command-specific help`
	}
}

func (h *CLIErrorHandler) suggestRecoveryActions(category errors.ErrorCategory) {
	fmt.Fprintf(h.out, "\nRecovery suggestions:\n")

	switch category {
	case errors.CategoryFile:
		fmt.Fprintf(h.out, "• Re-export the manifest from the airline portal\n")
		fmt.Fprintf(h.out, "• Check available disk space for the output file\n")
	case errors.CategoryParse:
		fmt.Fprintf(h.out, "• Save the manifest as UTF-8 CSV or .xlsx\n")
		fmt.Fprintf(h.out, "• Remove merged header rows above the column names\n")
	case errors.CategoryValidation, errors.CategoryConfiguration:
		fmt.Fprintf(h.out, "• Review the mapping file and command-line arguments\n")
		fmt.Fprintf(h.out, "• Try with default settings first\n")
	case errors.CategoryStore:
		fmt.Fprintf(h.out, "• Retry once the database is available; upload the manifest again for a new report\n")
	}

	fmt.Fprintf(h.out, "• Use --log-format json to capture logs for support\n")
}

func isFileNotFoundError(err error) bool {
	return stderrors.Is(err, os.ErrNotExist) || strings.Contains(err.Error(), "no such file or directory")
}

func isPermissionError(err error) bool {
	return stderrors.Is(err, os.ErrPermission) ||
		strings.Contains(err.Error(), "permission denied") ||
		strings.Contains(err.Error(), "access denied")
}

func isDiskFullError(err error) bool {
	if stderrors.Is(err, syscall.ENOSPC) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "no space left") ||
		strings.Contains(errStr, "disk full") ||
		strings.Contains(errStr, "device full")
}
