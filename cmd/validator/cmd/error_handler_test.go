package cmd

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"

	"booking-validation-service/pkg/errors"
	"booking-validation-service/pkg/logger"
)

func newTestHandler(verbose bool) (*CLIErrorHandler, *bytes.Buffer) {
	var out bytes.Buffer
	return &CLIErrorHandler{
		logger:  logger.NewWithWriter(io.Discard, logger.DebugLevel),
		verbose: verbose,
		out:     &out,
	}, &out
}

func TestHandleError_ExitCodes(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantText string
	}{
		{"nil", nil, 0, ""},
		{"file", errors.FileError(errors.CodeFileNotFound, "manifest.csv", os.ErrNotExist), 2, "File error help"},
		{"validation", errors.ValidationError(errors.CodeMissingField, "user", "", nil), 3, "Validation error help"},
		{"configuration", errors.ConfigurationError(errors.CodeInvalidConfig, "workers", 0, nil), 4, "Configuration error help"},
		{"reconciliation", errors.ReconciliationError(errors.CodeCancelled, "run", nil), 5, "Validation run help"},
		{"store", errors.StoreError(errors.CodeStoreUnavailable, "open_database", nil), 6, "Store error help"},
		{"wrapped os error", fmt.Errorf("open: %w", os.ErrNotExist), 2, "File not found"},
		{"disk full", fmt.Errorf("write report: no space left on device"), 2, "Insufficient disk space"},
		{"generic", fmt.Errorf(`unknown flag: --frobnicate`), 1, "validator --help"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, out := newTestHandler(false)
			if got := handler.HandleError(tt.err); got != tt.wantCode {
				t.Errorf("HandleError() = %d, want %d", got, tt.wantCode)
			}
			if !strings.Contains(out.String(), tt.wantText) {
				t.Errorf("output %q should contain %q", out.String(), tt.wantText)
			}
		})
	}
}

func TestHandleError_ContextAndVerbose(t *testing.T) {
	err := errors.StoreError(errors.CodeNotFound, "get_report", fmt.Errorf("record not found")).
		WithContext("report_id", "r-9").
		WithContext("driver", "sqlite").
		WithSuggestion("check the id")

	handler, out := newTestHandler(true)
	handler.HandleError(err)

	text := out.String()
	for _, want := range []string{
		"Context:\n  driver: sqlite\n  operation: get_report\n  report_id: r-9\n",
		"Suggestion: check the id",
		"Underlying error: record not found",
		"Recovery suggestions:",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("output should contain %q, got:\n%s", want, text)
		}
	}

	quiet, quietOut := newTestHandler(false)
	quiet.HandleError(err)
	if strings.Contains(quietOut.String(), "Underlying error") {
		t.Error("underlying error should only be shown in verbose mode")
	}
}

func TestHandleError_ParseDetails(t *testing.T) {
	err := errors.RowWidthError("manifest.csv", 4, 5, 3, []string{"BK1", "TG101", "2024-12-01"})

	handler, out := newTestHandler(true)
	if got := handler.HandleError(err); got != 3 {
		t.Errorf("HandleError() = %d, want 3", got)
	}
	for _, want := range []string{"  → Line: 4", "  → Content: BK1,TG101,2024-12-01", "Parse error help"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output should contain %q, got:\n%s", want, out.String())
		}
	}
}
