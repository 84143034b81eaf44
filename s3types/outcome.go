package s3types

import "fmt"

// Outcome is the classified result of a transfer attempt. The set of
// variants is closed; callers match it with a type switch.
type Outcome interface {
	outcome()
	String() string
}

// Success means the attempt finished with no unresolved failure.
type Success struct{}

// BucketUnavailable means the target bucket could not be ensured.
type BucketUnavailable struct {
	Bucket string
	Err    error
}

// PartialFailure means a subset of items failed and may be retried.
type PartialFailure struct {
	Items []FailureRecord
}

// MaxRetriesExceeded means the retry ceiling was reached with failures left.
type MaxRetriesExceeded struct {
	Items []FailureRecord
}

// ResumableInterruption means multipart sessions were interrupted and can
// be resumed from the saved state.
type ResumableInterruption struct {
	Sessions []SessionState
}

// UnclassifiedError is any failure that carries no retry semantics.
type UnclassifiedError struct {
	Message string
}

func (Success) outcome()               {}
func (BucketUnavailable) outcome()     {}
func (PartialFailure) outcome()        {}
func (MaxRetriesExceeded) outcome()    {}
func (ResumableInterruption) outcome() {}
func (UnclassifiedError) outcome()     {}

func (Success) String() string { return "success" }

func (o BucketUnavailable) String() string {
	return fmt.Sprintf("bucket %q unavailable: %v", o.Bucket, o.Err)
}

func (o PartialFailure) String() string {
	return fmt.Sprintf("partial failure: %d item(s)", len(o.Items))
}

func (o MaxRetriesExceeded) String() string {
	return fmt.Sprintf("max retries exceeded: %d item(s)", len(o.Items))
}

func (o ResumableInterruption) String() string {
	return fmt.Sprintf("resumable interruption: %d session(s)", len(o.Sessions))
}

func (o UnclassifiedError) String() string {
	return "unclassified error: " + o.Message
}
