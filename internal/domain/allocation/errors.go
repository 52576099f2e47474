package allocation

import "errors"

var (
	// ErrNoneAvailable is returned when no candidate could be reserved.
	ErrNoneAvailable = errors.New("no item available")

	// ErrMissingPort is returned by New when a collaborator is nil.
	ErrMissingPort = errors.New("allocation port is nil")
)
