package persistence

import "errors"

// Standard persistence error types that all implementations should use.
var (
	// ErrExecutionNotFound indicates no execution exists for the given identifier.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrConfigNotFound indicates no configuration is stored under the given key.
	ErrConfigNotFound = errors.New("config not found")
)

// IsExecutionNotFound reports whether err means a missing execution record.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}

// IsConfigNotFound reports whether err means a missing configuration key.
func IsConfigNotFound(err error) bool {
	return errors.Is(err, ErrConfigNotFound)
}
