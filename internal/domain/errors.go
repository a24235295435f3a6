package domain

import (
	"fmt"
	"strings"
)

// Issue describes one invalid input found during validation.
type Issue struct {
	Index     int    `json:"index"`
	Reference string `json:"reference,omitempty"`
	Field     string `json:"field,omitempty"`
	Problem   string `json:"problem"`
}

func (i Issue) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "entry %d", i.Index)
	if i.Reference != "" {
		fmt.Fprintf(&b, " (%s)", i.Reference)
	}
	if i.Field != "" {
		fmt.Fprintf(&b, " %s", i.Field)
	}
	b.WriteString(": ")
	b.WriteString(i.Problem)
	return b.String()
}

// ValidationError reports missing or invalid input. Issues enumerates every
// invalid transaction entry when the failure concerns a batch.
type ValidationError struct {
	Message string
	Issues  []Issue
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return e.Message
	}
	parts := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		parts[i] = issue.String()
	}
	return e.Message + ": " + strings.Join(parts, "; ")
}

// MalformedArchiveError reports an unreadable ZIP container.
type MalformedArchiveError struct {
	Err error
}

func (e *MalformedArchiveError) Error() string {
	return "malformed archive: " + e.Err.Error()
}

func (e *MalformedArchiveError) Unwrap() error {
	return e.Err
}

// SchemaError reports a JSON member whose shape does not match the contract.
type SchemaError struct {
	File string
	Err  error
}

func (e *SchemaError) Error() string {
	return e.File + ": " + e.Err.Error()
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// ConflictError reports identifiers that clash with stored records.
type ConflictError struct {
	Message    string
	References []string
}

func (e *ConflictError) Error() string {
	if len(e.References) == 0 {
		return e.Message
	}
	return e.Message + ": " + strings.Join(e.References, ", ")
}

// NotFoundError reports a CRUD operation on a missing record.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}
