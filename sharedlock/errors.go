package sharedlock

import "errors"

// Errors raised by the *OrFail surface only. The non-OrFail operations
// never raise these — they signal the same conditions through a bool
// return and a FailedX event.
var (
	// ErrFailedAcquireReader is raised by AcquireReaderOrFail when a
	// writer currently holds the key, or the reader slot table is full.
	ErrFailedAcquireReader = errors.New("sharedlock: failed to acquire reader slot")

	// ErrFailedAcquireWriter is raised by AcquireWriterOrFail when the
	// key is currently held by a writer or by any readers.
	ErrFailedAcquireWriter = errors.New("sharedlock: failed to acquire writer")

	// ErrFailedRelease is raised by ReleaseOrFail when this owner does
	// not hold the slot/writer it's trying to release.
	ErrFailedRelease = errors.New("sharedlock: not held by this owner")

	// ErrFailedRefresh is raised by RefreshOrFail when this owner does
	// not hold the slot/writer it's trying to refresh.
	ErrFailedRefresh = errors.New("sharedlock: refresh failed, not held by this owner")

	// ErrWrongShape names the condition of a key held in the opposite
	// shape. No operation in this package returns it: finding the other
	// shape (e.g. when releasing a writer) is reported like any other
	// failure, through a false return or the matching ErrFailedX.
	ErrWrongShape = errors.New("sharedlock: key is held in the other shape")
)
