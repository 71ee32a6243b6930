package cmdutils

import (
	"github.com/cockroachdb/errors"
)

// Assertf panics with an assertion failure built from format and args if condition is false.
//
// It is used for contract violations: programming errors in the caller that would leave
// GPU-visible state undefined if recording continued. Unlike DebugValidate, these checks are
// always compiled in.
func Assertf(condition bool, format string, args ...interface{}) {
	if !condition {
		panic(errors.AssertionFailedf(format, args...))
	}
}

// IsAssertionFailure reports whether a recovered panic value was raised by Assertf
func IsAssertionFailure(recovered any) bool {
	err, ok := recovered.(error)
	if !ok {
		return false
	}

	return errors.IsAssertionFailure(err)
}
