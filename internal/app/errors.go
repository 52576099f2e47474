package service

import "errors"

// Sentinel errors returned by Service. The HTTP layer maps each to a status
// and a code.
var (
	ErrNotOnboarded         = errors.New("worker not onboarded")
	ErrWorkerExists         = errors.New("worker already exists")
	ErrIncompleteSubmission = errors.New("one label per sub-item is required")
	ErrReservationExpired   = errors.New("reservation expired")
	ErrNoReservation        = errors.New("no active reservation for item")
	ErrSubmissionInFlight   = errors.New("submission already in progress")
	ErrUnknownItem          = errors.New("unknown item")
	ErrInvalidRequest       = errors.New("invalid request")
	ErrUnavailable          = errors.New("store unavailable")
	ErrTTLMismatch          = errors.New("store reservation TTL differs from timer")
)
