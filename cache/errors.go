package cache

import "errors"

// Errors raised by the *OrFail surface and by operations the adapter
// cannot classify. Non-OrFail operations never raise these — they
// signal the same conditions through a bool return, per the core's
// error-handling policy.
var (
	// ErrKeyNotFound is raised by GetOrFail when the key is absent or
	// logically expired.
	ErrKeyNotFound = errors.New("cache: key not found")

	// ErrTypeMismatch is raised by Increment/Decrement when the stored
	// value does not parse as a signed integer.
	ErrTypeMismatch = errors.New("cache: stored value is not numeric")
)
