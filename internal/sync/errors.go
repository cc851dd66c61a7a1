package sync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/boreal-financial/catalog-sync/internal/httpclient"
	"github.com/boreal-financial/catalog-sync/internal/sources"
)

// Failure reasons recorded on Error
const (
	ReasonFetchFailed   = "FetchFailed"
	ReasonInvalidFormat = "InvalidFormat"
	ReasonEmptyCatalog  = "EmptyCatalog"
	ReasonFilterFailed  = "FilterFailed"
	ReasonStorageFailed = "StorageFailed"
	ReasonLockFailed    = "LockFailed"
	ReasonPanic         = "Panic"
)

// Error is a failed sync pass. Message is the user facing reason stored in
// the sync metadata; Err keeps the underlying cause for logs and traces.
type Error struct {
	Err     error
	Message string
	Reason  string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusReason names the failure class on the pass span
func (e *Error) StatusReason() string {
	return e.Reason
}

// fetchError classifies a catalog fetch failure
func fetchError(err error, timeout time.Duration) *Error {
	var httpErr *httpclient.HTTPError
	switch {
	case errors.As(err, &httpErr):
		return &Error{
			Err:     err,
			Message: fmt.Sprintf("Staff API error: %d %s", httpErr.StatusCode, http.StatusText(httpErr.StatusCode)),
			Reason:  ReasonFetchFailed,
		}
	case errors.Is(err, sources.ErrInvalidFormat):
		return &Error{Err: err, Message: sources.ErrInvalidFormat.Error(), Reason: ReasonInvalidFormat}
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{
			Err:     err,
			Message: fmt.Sprintf("Staff API request timed out after %s", timeout),
			Reason:  ReasonFetchFailed,
		}
	default:
		return &Error{Err: err, Message: err.Error(), Reason: ReasonFetchFailed}
	}
}
