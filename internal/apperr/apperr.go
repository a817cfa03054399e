package apperr

import "fmt"

// ValidationError indicates bad or missing input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// NotFoundError indicates a referenced entity does not exist.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// PermissionError indicates an attempt to mutate something the caller may not,
// such as a system rule or an approval by a non-approver.
type PermissionError struct {
	Reason string
}

func (e PermissionError) Error() string { return e.Reason }

// ConflictError indicates the operation requires a state that is not present.
// The engine settles approve and decline without a pending update instead of
// raising it; the 409 mapping stays for callers that want the strict behavior.
type ConflictError struct {
	Reason string
}

func (e ConflictError) Error() string { return e.Reason }
