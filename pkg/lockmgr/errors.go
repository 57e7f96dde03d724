package lockmgr

import "errors"

// ErrLockOnShrinking is raised when a transaction in the Shrinking phase
// attempts to acquire any new lock, violating strict two-phase locking.
var ErrLockOnShrinking = errors.New("lockmgr: cannot acquire a lock while transaction is shrinking")

// ErrLockSharedOnReadUncommitted is raised when a ReadUncommitted
// transaction attempts to take a shared lock; that isolation level never
// reads through a shared lock at all.
var ErrLockSharedOnReadUncommitted = errors.New("lockmgr: shared locks are forbidden under read-uncommitted isolation")

// ErrUpgradeConflict is raised when a second lock_upgrade is attempted on
// a resource that already has one in flight.
var ErrUpgradeConflict = errors.New("lockmgr: another upgrade is already in flight for this resource")

// ErrDeadlock is raised when a transaction is wounded (aborted) while
// waiting for a lock.
var ErrDeadlock = errors.New("lockmgr: transaction aborted by wound-wait while waiting")
