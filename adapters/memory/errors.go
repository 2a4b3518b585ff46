package memory

import (
	"github.com/AshkanYarmoradi/go-snapmink/adapters"
)

// Sentinel errors for the memory adapter.
// These are aliases to the adapters package errors for compatibility with errors.Is().
var (
	ErrAdapterClosed       = adapters.ErrAdapterClosed
	ErrEmptyStreamID       = adapters.ErrEmptyStreamID
	ErrNoEvents            = adapters.ErrNoEvents
	ErrConcurrencyConflict = adapters.ErrConcurrencyConflict
	ErrStreamNotFound      = adapters.ErrStreamNotFound
	ErrInvalidVersion      = adapters.ErrInvalidVersion
)

// NewStreamNotFoundError is an alias for adapters.NewStreamNotFoundError.
var NewStreamNotFoundError = adapters.NewStreamNotFoundError
