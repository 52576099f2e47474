package api

import (
	"errors"
	"fmt"
	"net/http"

	service "github.com/okian/jnana/internal/app"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest  = errors.New("bad request")
	ErrRateLimited = errors.New("rate limited")
	ErrNoWorker    = errors.New("missing X-Worker-ID header")
)

// Error carries the handler operation with the underlying kind.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Kind != nil && !errors.Is(e.Err, e.Kind):
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
}

// Unwrap exposes both the kind and the cause to errors.Is.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// NewKind returns an error of the given kind raised by op.
func NewKind(op string, kind error) error {
	return &Error{Op: op, Kind: kind}
}

// WrapKind tags err with a kind.
func WrapKind(op string, kind, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// Wrap attaches op to err and keeps its kind.
func Wrap(op string, err error) error {
	return &Error{Op: op, Err: err}
}

type errorMapping struct {
	kind   error
	status int
	code   string
}

var errorTable = [...]errorMapping{
	{ErrNoWorker, http.StatusUnauthorized, "MISSING_WORKER_ID"},
	{ErrRateLimited, http.StatusTooManyRequests, "RATE_LIMITED"},
	{ErrBadRequest, http.StatusBadRequest, "INVALID_REQUEST"},
	{service.ErrNotOnboarded, http.StatusForbidden, "WORKER_NOT_ONBOARDED"},
	{service.ErrIncompleteSubmission, http.StatusBadRequest, "INCOMPLETE_SUBMISSION"},
	{service.ErrInvalidRequest, http.StatusBadRequest, "INVALID_REQUEST"},
	{service.ErrReservationExpired, http.StatusConflict, "RESERVATION_EXPIRED"},
	{service.ErrNoReservation, http.StatusConflict, "NO_RESERVATION"},
	{service.ErrSubmissionInFlight, http.StatusConflict, "SUBMISSION_IN_FLIGHT"},
	{service.ErrWorkerExists, http.StatusConflict, "WORKER_EXISTS"},
	{service.ErrUnknownItem, http.StatusNotFound, "UNKNOWN_ITEM"},
	{service.ErrUnavailable, http.StatusServiceUnavailable, "RETRY_LATER"},
}

// classify maps an error to its HTTP status and code.
func classify(err error) (int, string) {
	for _, m := range errorTable {
		if errors.Is(err, m.kind) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}
