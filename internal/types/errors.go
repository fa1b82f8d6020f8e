package types

import "errors"

// Error taxonomy for the core. Handlers map these onto HTTP statuses;
// everything else is treated as a store failure.
var (
	// ErrInvalidArgument means the request carried no identifying
	// information. Rejected before any store access.
	ErrInvalidArgument = errors.New("either user_identifier or phone_number must be provided")

	// ErrNotFound means a referenced user or session is absent where
	// required. No fallback content is generated for this case.
	ErrNotFound = errors.New("requested item not found")

	// ErrConflict means a concurrent create raced on a unique identity
	// column and lost.
	ErrConflict = errors.New("user already exists with this identifier")

	// ErrUpstreamModel means the external model call failed or returned
	// unusable content. Chat-style endpoints recover from this locally.
	ErrUpstreamModel = errors.New("upstream model call failed")
)
