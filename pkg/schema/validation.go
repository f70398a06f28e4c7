package schema

import (
	"fmt"
	"strings"
)

// ValidationSeverity distinguishes blocking errors from advisory warnings.
type ValidationSeverity string

const (
	SeverityError   ValidationSeverity = "error"
	SeverityWarning ValidationSeverity = "warning"
)

// ValidationIssue locates one problem in a workflow definition. Path uses
// dotted field syntax with step indexes, e.g. "steps[2].config.url"; "/"
// is the workflow itself.
type ValidationIssue struct {
	Path     string             `json:"path"`
	Message  string             `json:"message"`
	Severity ValidationSeverity `json:"severity"`
}

func (i ValidationIssue) String() string {
	return i.Path + ": " + i.Message
}

// ValidationResult collects the issues of one definition. Only errors make
// it invalid; warnings are reported back to the author at define time.
type ValidationResult struct {
	Errors   []ValidationIssue `json:"errors,omitempty"`
	Warnings []ValidationIssue `json:"warnings,omitempty"`
}

func (r *ValidationResult) Valid() bool { return len(r.Errors) == 0 }

func (r *ValidationResult) Errorf(path, format string, args ...any) {
	r.Errors = append(r.Errors, ValidationIssue{Path: path, Message: fmt.Sprintf(format, args...), Severity: SeverityError})
}

func (r *ValidationResult) Warnf(path, format string, args ...any) {
	r.Warnings = append(r.Warnings, ValidationIssue{Path: path, Message: fmt.Sprintf(format, args...), Severity: SeverityWarning})
}

// Merge appends the issues of others; nil results are skipped.
func (r *ValidationResult) Merge(others ...*ValidationResult) {
	for _, o := range others {
		if o == nil {
			continue
		}
		r.Errors = append(r.Errors, o.Errors...)
		r.Warnings = append(r.Warnings, o.Warnings...)
	}
}

// StepPath formats the location of a step field; an empty field names the step.
func StepPath(index int, field string) string {
	if field == "" {
		return fmt.Sprintf("steps[%d]", index)
	}
	return fmt.Sprintf("steps[%d].%s", index, field)
}

// ToError returns nil for a valid result. Otherwise the VALIDATION_ERROR
// names the only error, or counts them and lists each one on its own line.
func (r *ValidationResult) ToError() error {
	if r.Valid() {
		return nil
	}

	msg := r.Errors[0].String()
	if len(r.Errors) > 1 {
		lines := make([]string, 0, len(r.Errors)+1)
		lines = append(lines, fmt.Sprintf("workflow definition has %d errors:", len(r.Errors)))
		for _, e := range r.Errors {
			lines = append(lines, "  "+e.String())
		}
		msg = strings.Join(lines, "\n")
	}

	return NewError(ErrCodeValidation, msg).WithDetails(map[string]any{
		"errors":   r.Errors,
		"warnings": r.Warnings,
	})
}
