package storage

import "errors"

// Sentinel errors for the storage layer.
var (
	ErrNotFound      = errors.New("storage: key not found")
	ErrDatabaseError = errors.New("storage: database error")
	ErrSerialization = errors.New("storage: serialization error")
	ErrCorruption    = errors.New("storage: corruption detected")
)
