package transfer

import (
	"errors"
	"fmt"
	"sort"

	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/s3types"
)

// ItemError is the failure of a single object transfer.
type ItemError struct {
	Key       string
	LocalPath string
	Err       error

	// Session is set when a multipart upload was left open and can be resumed.
	Session *s3types.SessionState
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("%s: %v", e.Key, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

// Error reports the items of a job that failed.
type Error struct {
	Op    string
	Total int
	Items []*ItemError
}

// NewError builds an Error with items sorted by key.
func NewError(op string, total int, items []*ItemError) *Error {
	sort.Slice(items, func(i, j int) bool { return items[i].Key < items[j].Key })
	return &Error{Op: op, Total: total, Items: items}
}

func (e *Error) Error() string {
	if len(e.Items) == 1 {
		return fmt.Sprintf("%s: %v", e.Op, e.Items[0])
	}
	return fmt.Sprintf("%s: %d of %d transfers failed", e.Op, len(e.Items), e.Total)
}

// Unwrap exposes every item error to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	errs := make([]error, len(e.Items))
	for i, item := range e.Items {
		errs[i] = item
	}
	return errs
}

// Resumable reports whether every failed item left a resumable session.
func (e *Error) Resumable() bool {
	if len(e.Items) == 0 {
		return false
	}
	for _, item := range e.Items {
		if item.Session == nil {
			return false
		}
	}
	return true
}

// Sessions returns the open multipart sessions of the failed items.
func (e *Error) Sessions() []s3types.SessionState {
	var sessions []s3types.SessionState
	for _, item := range e.Items {
		if item.Session != nil {
			sessions = append(sessions, *item.Session)
		}
	}
	return sessions
}

// Records converts the failed items into failure records for bucket.
func (e *Error) Records(bucket string) []s3types.FailureRecord {
	records := make([]s3types.FailureRecord, len(e.Items))
	for i, item := range e.Items {
		records[i] = s3types.FailureRecord{
			Source:      item.LocalPath,
			Bucket:      bucket,
			Destination: item.Key,
			Message:     item.Err.Error(),
		}
	}
	return records
}

// AsError extracts a *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var terr *Error
	ok := errors.As(err, &terr)
	return terr, ok
}
