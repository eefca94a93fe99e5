// Package adapter defines the storage adapter contracts the core
// components (cache, lock, sharedlock) require. Concrete adapters
// (memory, postgres, sqlite, redis) live in sibling packages; this
// package only specifies the interfaces and the error vocabulary shared
// by every backend.
package adapter

import "errors"

// Sentinel adapter-level errors. Core packages classify errors they
// receive from an adapter call against these via errors.Is.
var (
	// ErrNotFound indicates the requested key has no entry.
	ErrNotFound = errors.New("adapter: not found")

	// ErrTypeMismatch indicates a numeric operation was attempted on a
	// stored value that is not parseable as a signed integer.
	ErrTypeMismatch = errors.New("adapter: value is not numeric")

	// ErrUnregisteredDriver indicates a provider was configured with a
	// driver name that has no registered adapter constructor. Fatal at
	// provider construction.
	ErrUnregisteredDriver = errors.New("adapter: unregistered driver")

	// ErrDefaultDriverNotDefined indicates no default driver was
	// configured and none was specified explicitly. Fatal at provider
	// construction.
	ErrDefaultDriverNotDefined = errors.New("adapter: default driver not defined")
)
