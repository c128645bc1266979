// Package errors defines the error taxonomy shared by the mirror pipeline.
//
// Every fatal condition surfaces as an OperationError carrying the operation
// that failed and the Kind of failure. Callers classify errors with the
// standard library helpers:
//
//	if errors.Is(err, operrors.ErrConfiguration) {
//	    // nothing external was touched
//	}
package errors

import "fmt"

// Kind classifies an OperationError.
type Kind string

const (
	// KindConfiguration covers missing or malformed inputs. It is always
	// raised before any external side effect.
	KindConfiguration Kind = "configuration"
	// KindCredentialSetup covers failures installing secret material into an
	// SSH agent or credential cache.
	KindCredentialSetup Kind = "credential setup"
	// KindTeardown covers failures while releasing per-run state.
	KindTeardown Kind = "teardown"
)

// OperationError represents an error that occurred during a mirror operation
type OperationError struct {
	Op   string // The operation being performed
	Kind Kind   // Classification, empty for unclassified errors
	Err  error  // The underlying error
}

// Error implements the error interface
func (e *OperationError) Error() string {
	if e.Err == nil {
		return e.Op
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *OperationError) Unwrap() error {
	return e.Err
}

// New creates a new unclassified OperationError
func New(op string, err error) *OperationError {
	return &OperationError{
		Op:  op,
		Err: err,
	}
}

// Configuration creates a KindConfiguration error.
func Configuration(op string, err error) *OperationError {
	return &OperationError{Op: op, Kind: KindConfiguration, Err: err}
}

// CredentialSetup creates a KindCredentialSetup error.
func CredentialSetup(op string, err error) *OperationError {
	return &OperationError{Op: op, Kind: KindCredentialSetup, Err: err}
}

// Teardown creates a KindTeardown error.
func Teardown(op string, err error) *OperationError {
	return &OperationError{Op: op, Kind: KindTeardown, Err: err}
}

// Is implements error matching for OperationError. A target with a Kind
// matches any error of that kind; a target with an Op additionally requires
// the same operation.
func (e *OperationError) Is(target error) bool {
	t, ok := target.(*OperationError)
	if !ok {
		return false
	}
	if t.Kind != "" && t.Kind != e.Kind {
		return false
	}
	if t.Op != "" && t.Op != e.Op {
		return false
	}
	return t.Kind != "" || t.Op != ""
}
