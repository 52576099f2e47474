package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound             = errors.New("not found")
	ErrDuplicateReservation = errors.New("duplicate reservation")
	ErrQuotaReached         = errors.New("item quota reached")
	ErrWorkerExists         = errors.New("worker already exists")
	ErrInvalidArgument      = errors.New("invalid argument")
)
