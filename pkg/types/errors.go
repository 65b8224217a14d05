package types

import "errors"

// Error taxonomy for the session services. Handlers map these to HTTP
// statuses; everything else surfaces as a server error.
var (
	// ErrSessionNotFound is returned for unknown or already-removed sessions
	ErrSessionNotFound = errors.New("session not found")

	// ErrNotSessionOwner is returned when the caller does not own the session
	ErrNotSessionOwner = errors.New("caller does not own session")

	// ErrValidation is returned for missing or malformed request fields
	ErrValidation = errors.New("invalid request")

	// ErrAssembly is returned when a chunk write or reassembly fails
	ErrAssembly = errors.New("chunk assembly failed")

	// ErrUpstream is returned when the compute service fails or is unreachable
	ErrUpstream = errors.New("compute service failure")

	// ErrStorage is returned when an object storage operation fails
	ErrStorage = errors.New("object storage failure")
)
