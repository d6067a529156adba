package errors

import (
	"fmt"
	"strings"
)

// ParseContext provides location information for a manifest parse failure
type ParseContext struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Column   string `json:"column,omitempty"`
	Value    string `json:"value,omitempty"`
	Expected string `json:"expected,omitempty"`
}

// EnhancedParseError extends ReconcilerError with the offending line and
// examples of what was expected there.
type EnhancedParseError struct {
	*ReconcilerError
	Context     *ParseContext `json:"context"`
	LineContent string        `json:"line_content,omitempty"`
	Examples    []string      `json:"examples,omitempty"`
}

// Error implements the error interface with location information
func (e *EnhancedParseError) Error() string {
	msg := e.ReconcilerError.Error()
	if e.Context == nil {
		return msg
	}
	location := fmt.Sprintf("at %s", e.Context.File)
	if e.Context.Line > 0 {
		location += fmt.Sprintf(":%d", e.Context.Line)
	}
	if e.Context.Column != "" {
		location += fmt.Sprintf(" column '%s'", e.Context.Column)
	}
	return msg + " " + location
}

// Unwrap exposes the embedded ReconcilerError so errors.As finds it
func (e *EnhancedParseError) Unwrap() error {
	return e.ReconcilerError
}

// GetDetailedError returns a multi-line description for CLI output
func (e *EnhancedParseError) GetDetailedError() string {
	lines := []string{fmt.Sprintf("ERROR: %s", e.Message)}

	if e.Context != nil {
		lines = append(lines, fmt.Sprintf("  → File: %s", e.Context.File))
		if e.Context.Line > 0 {
			lines = append(lines, fmt.Sprintf("  → Line: %d", e.Context.Line))
		}
		if e.Context.Column != "" {
			lines = append(lines, fmt.Sprintf("  → Column: %s", e.Context.Column))
		}
		if e.Context.Expected != "" {
			lines = append(lines, fmt.Sprintf("  → Expected: %s", e.Context.Expected))
		}
	}
	if e.LineContent != "" {
		lines = append(lines, fmt.Sprintf("  → Content: %s", e.LineContent))
	}
	if e.Suggestion != "" {
		lines = append(lines, fmt.Sprintf("  → Suggestion: %s", e.Suggestion))
	}
	if len(e.Examples) > 0 {
		lines = append(lines, "  → Examples:")
		for _, example := range e.Examples {
			lines = append(lines, fmt.Sprintf("    • %s", example))
		}
	}

	return strings.Join(lines, "\n")
}

// NewEnhancedParseError creates a new enhanced parse error
func NewEnhancedParseError(code ErrorCode, context *ParseContext, message string, cause error) *EnhancedParseError {
	base := build(cause, CategoryParse, code, message)
	if context != nil {
		base.WithContext("file", context.File).
			WithContext("line", context.Line).
			WithContext("column", context.Column)
	}
	return &EnhancedParseError{
		ReconcilerError: base,
		Context:         context,
	}
}

// WithLineContent adds the raw line content to the error
func (e *EnhancedParseError) WithLineContent(content string) *EnhancedParseError {
	e.LineContent = content
	return e
}

// WithExamples adds example values to help fix the error
func (e *EnhancedParseError) WithExamples(examples ...string) *EnhancedParseError {
	e.Examples = examples
	return e
}

// WithSuggestion adds a suggestion and returns the EnhancedParseError
func (e *EnhancedParseError) WithSuggestion(suggestion string) *EnhancedParseError {
	e.ReconcilerError.WithSuggestion(suggestion)
	return e
}

// RowWidthError reports a delimited row whose field count differs from the header
func RowWidthError(file string, line int, expected, actual int, content []string) *EnhancedParseError {
	return NewEnhancedParseError(
		CodeInvalidFormat,
		&ParseContext{
			File:     file,
			Line:     line,
			Expected: fmt.Sprintf("%d fields", expected),
			Value:    fmt.Sprintf("%d fields", actual),
		},
		fmt.Sprintf("row has %d fields, header has %d", actual, expected),
		nil,
	).WithLineContent(strings.Join(content, ",")).
		WithSuggestion("check for unquoted delimiters inside values or a missing trailing column")
}

// EncodingError reports invalid UTF-8 in a delimited manifest
func EncodingError(file string, line int, cause error) *EnhancedParseError {
	return NewEnhancedParseError(
		CodeEncodingError,
		&ParseContext{File: file, Line: line},
		"invalid UTF-8 encoding detected",
		cause,
	).WithSuggestion("save the manifest as UTF-8 (\"CSV UTF-8\" in most spreadsheet applications)")
}

// MalformedRecordError wraps a delimited-text reader failure
func MalformedRecordError(file string, line int, cause error) *EnhancedParseError {
	return NewEnhancedParseError(
		CodeInvalidFormat,
		&ParseContext{File: file, Line: line},
		"malformed delimited record",
		cause,
	).WithSuggestion("check quoting: every opening quote needs a closing quote").
		WithExamples(`BK12345678,"Jaidee, Somchai",TG101`)
}
