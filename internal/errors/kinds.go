package errors

// Sentinels for errors.Is classification.
var (
	ErrConfiguration   = &OperationError{Kind: KindConfiguration}
	ErrCredentialSetup = &OperationError{Kind: KindCredentialSetup}
	ErrTeardown        = &OperationError{Kind: KindTeardown}
)

// IsConfiguration reports whether err is, or wraps, a configuration error.
func IsConfiguration(err error) bool {
	return is(err, KindConfiguration)
}

// IsCredentialSetup reports whether err is, or wraps, a credential setup
// failure.
func IsCredentialSetup(err error) bool {
	return is(err, KindCredentialSetup)
}

// IsTeardown reports whether err is, or wraps, a teardown failure.
func IsTeardown(err error) bool {
	return is(err, KindTeardown)
}

// is walks both single and joined error trees.
func is(err error, kind Kind) bool {
	switch e := err.(type) {
	case nil:
		return false
	case *OperationError:
		if e.Kind == kind {
			return true
		}
		return is(e.Err, kind)
	case interface{ Unwrap() []error }:
		for _, inner := range e.Unwrap() {
			if is(inner, kind) {
				return true
			}
		}
		return false
	case interface{ Unwrap() error }:
		return is(e.Unwrap(), kind)
	default:
		return false
	}
}
