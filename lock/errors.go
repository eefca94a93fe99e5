package lock

import "errors"

// Errors raised by the *OrFail surface and, for ErrFailedAcquire, by
// Run. The other operations never raise these; they signal the same
// conditions through a bool return and a FailedX event.
var (
	// ErrFailedAcquire is raised by AcquireOrFail and by Run when the
	// lock is already held by another owner.
	ErrFailedAcquire = errors.New("lock: failed to acquire")

	// ErrFailedRelease is raised by ReleaseOrFail when the lock is not
	// held by this owner.
	ErrFailedRelease = errors.New("lock: not held by this owner")

	// ErrFailedRefresh is raised by RefreshOrFail when the lock is not
	// held by this owner.
	ErrFailedRefresh = errors.New("lock: refresh failed, not held by this owner")

	// ErrUnavailable is raised by AcquireBlockingOrFail when the
	// blocking window elapses without acquiring the lock.
	ErrUnavailable = errors.New("lock: unavailable within blocking window")
)
