package errors

import (
	"fmt"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

// Error categories
const (
	// Policy errors (POLICY-001 to POLICY-099)
	ErrCodePolicyNotFound ErrorCode = "POLICY-001"
	ErrCodePolicyInvalid  ErrorCode = "POLICY-002"

	// Plan errors (PLAN-001 to PLAN-099)
	ErrCodePlanNotFound ErrorCode = "PLAN-001"
	ErrCodePlanInvalid  ErrorCode = "PLAN-002"
	ErrCodeStepInvalid  ErrorCode = "PLAN-003"

	// Plugin errors (PLUGIN-001 to PLUGIN-099)
	ErrCodePluginManifest    ErrorCode = "PLUGIN-001"
	ErrCodePluginKindUnknown ErrorCode = "PLUGIN-002"
	ErrCodePluginDuplicate   ErrorCode = "PLUGIN-003"

	// Audit errors (AUDIT-001 to AUDIT-099)
	ErrCodeAuditOpen        ErrorCode = "AUDIT-001"
	ErrCodeAuditWrite       ErrorCode = "AUDIT-002"
	ErrCodeAuditClosed      ErrorCode = "AUDIT-003"
	ErrCodeAuditKeyInvalid  ErrorCode = "AUDIT-004"
	ErrCodeAuditChainBroken ErrorCode = "AUDIT-005"

	// Configuration errors (CONFIG-001 to CONFIG-099)
	ErrCodeConfigInvalid ErrorCode = "CONFIG-001"

	// File I/O errors (IO-001 to IO-099)
	ErrCodeFileNotFound    ErrorCode = "IO-001"
	ErrCodeFileReadFailed  ErrorCode = "IO-002"
	ErrCodeFileWriteFailed ErrorCode = "IO-003"
	ErrCodeDirectoryFailed ErrorCode = "IO-004"
	ErrCodeFileUnmarshal   ErrorCode = "IO-005"
	ErrCodeFileMarshal     ErrorCode = "IO-006"
)

// GateError represents an enhanced error with code, suggestions, and documentation
type GateError struct {
	Code        ErrorCode
	Message     string
	Suggestions []string
	DocsURL     string
	Cause       error
}

// Error implements the error interface
func (e *GateError) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(": %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  • %s", suggestion))
		}
	}

	if e.DocsURL != "" {
		b.WriteString(fmt.Sprintf("\n\nDocumentation: %s", e.DocsURL))
	}

	return b.String()
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *GateError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a GateError with the same code.
func (e *GateError) Is(target error) bool {
	t, ok := target.(*GateError)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Message == ""
}

// New creates a new GateError
func New(code ErrorCode, message string) *GateError {
	return &GateError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new GateError wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *GateError {
	return &GateError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Code returns a sentinel usable with errors.Is to match any error of the given code.
func Code(code ErrorCode) *GateError {
	return &GateError{Code: code}
}

// WithSuggestion adds a suggestion to the error
func (e *GateError) WithSuggestion(suggestion string) *GateError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithSuggestions adds multiple suggestions to the error
func (e *GateError) WithSuggestions(suggestions ...string) *GateError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// WithDocs adds a documentation URL to the error
func (e *GateError) WithDocs(url string) *GateError {
	e.DocsURL = url
	return e
}

// Common error constructors for frequently used errors

// NewPolicyInvalidError creates a policy validation error
func NewPolicyInvalidError(details string) *GateError {
	return New(ErrCodePolicyInvalid, fmt.Sprintf("invalid policy: %s", details)).
		WithSuggestion("Check allowlist, max_steps, max_sec and budgets in the policy file").
		WithSuggestion("Budgets must be non-negative integers")
}

// NewPlanInvalidError creates a plan validation error
func NewPlanInvalidError(details string) *GateError {
	return New(ErrCodePlanInvalid, fmt.Sprintf("invalid plan: %s", details)).
		WithSuggestion("A plan is a list of {task, args} objects")
}

// NewStepInvalidError creates a malformed plan step error
func NewStepInvalidError(details string) *GateError {
	return New(ErrCodeStepInvalid, fmt.Sprintf("invalid step: %s", details))
}

// NewPluginManifestError creates a plugin manifest error
func NewPluginManifestError(details string) *GateError {
	return New(ErrCodePluginManifest, fmt.Sprintf("invalid plugin manifest: %s", details)).
		WithSuggestion("Every plugin entry requires 'kind' and 'name'").
		WithSuggestion("legacy_subprocess plugins require 'cmd', meta_http plugins require 'endpoint'")
}

// NewPluginKindUnknownError creates an unknown plugin kind error
func NewPluginKindUnknownError(kind string) *GateError {
	return New(ErrCodePluginKindUnknown, fmt.Sprintf("unknown plugin kind: %s", kind)).
		WithSuggestion("Use one of: legacy_subprocess, meta_http")
}

// NewAuditKeyInvalidError creates an invalid HMAC key error
func NewAuditKeyInvalidError(cause error) *GateError {
	return Wrap(ErrCodeAuditKeyInvalid, "audit HMAC key must be hex encoded", cause).
		WithSuggestion("Generate a key with 'openssl rand -hex 32'")
}

// NewAuditChainBrokenError creates a chain validation failure error
func NewAuditChainBrokenError(path string, index int) *GateError {
	return New(ErrCodeAuditChainBroken, fmt.Sprintf("audit chain broken in %s at record %d", path, index)).
		WithSuggestion("Run 'toolgate audit salvage' to keep the verified prefix")
}

// NewFileNotFoundError creates a file not found error
func NewFileNotFoundError(path string) *GateError {
	return New(ErrCodeFileNotFound, fmt.Sprintf("file not found: %s", path)).
		WithSuggestion("Check if the file path is correct").
		WithSuggestion("Verify the file exists and you have read permissions")
}

// NewFileUnmarshalError creates an unmarshal error
func NewFileUnmarshalError(path string, format string, cause error) *GateError {
	return Wrap(ErrCodeFileUnmarshal, fmt.Sprintf("failed to parse %s file: %s", format, path), cause).
		WithSuggestion("Check the file syntax and format").
		WithSuggestion(fmt.Sprintf("Ensure the file is valid %s", format))
}
