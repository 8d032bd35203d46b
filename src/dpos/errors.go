package dpos

import "fmt"

// ValidationErr is returned when a consensus payload is well-formed but
// violates a consensus rule. The block carrying it is rejected and never
// partially applied.
type ValidationErr struct {
	reason string
}

// NewValidationErr creates a ValidationErr with a human-readable reason.
func NewValidationErr(format string, args ...interface{}) ValidationErr {
	return ValidationErr{reason: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
func (e ValidationErr) Error() string {
	return e.reason
}

// IsValidation checks whether an error is a ValidationErr.
func IsValidation(err error) bool {
	_, ok := err.(ValidationErr)
	return ok
}

// InvariantErr is returned when a state-mutating operation discovers its own
// preconditions broken. It indicates a prior validation gap, not a
// recoverable condition: the operation aborts entirely.
type InvariantErr struct {
	msg string
}

// NewInvariantErr creates an InvariantErr.
func NewInvariantErr(format string, args ...interface{}) InvariantErr {
	return InvariantErr{msg: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
func (e InvariantErr) Error() string {
	return e.msg
}

// IsInvariant checks whether an error is an InvariantErr.
func IsInvariant(err error) bool {
	_, ok := err.(InvariantErr)
	return ok
}
