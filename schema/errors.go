package schema

import "errors"

var (
	// ErrHostUnavailable indicates the host tab directory cannot be reached.
	ErrHostUnavailable = errors.New("host unavailable")
	// ErrWindowNotFound indicates a scope refers to a window that no longer exists.
	ErrWindowNotFound = errors.New("window not found")
	// ErrTabNotFound indicates a tab id the host no longer knows.
	ErrTabNotFound = errors.New("tab not found")
	// ErrNoActiveTab indicates the current window has no active tab.
	ErrNoActiveTab = errors.New("no active tab")
	// ErrIndexOutOfRange indicates a list index outside the pinned set.
	ErrIndexOutOfRange = errors.New("index out of range")
	// ErrStoreUnavailable indicates the persistence store is closed or unusable.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrInvalidPinnedSet indicates the persisted value is not a list of URLs.
	ErrInvalidPinnedSet = errors.New("invalid pinned set")
	// ErrMessageTooLarge indicates a native message exceeds the size limit.
	ErrMessageTooLarge = errors.New("native message too large")
)
