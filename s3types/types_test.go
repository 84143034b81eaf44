package s3types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewCopyMapping(t *testing.T) {
	mapping := NewCopyMapping(map[string]string{
		"c.txt": "other::c.txt",
		"a.txt": "x.txt",
		"b.txt": "y.txt",
	})

	assert.Equal(t, CopyMapping{
		{Source: "a.txt", Destination: "x.txt"},
		{Source: "b.txt", Destination: "y.txt"},
		{Source: "c.txt", Destination: "other::c.txt"},
	}, mapping)

	assert.Empty(t, NewCopyMapping(nil))
}

func TestProgressFunc(t *testing.T) {
	total := 0
	var sink ProgressSink = ProgressFunc(func(n int) { total += n })

	sink.IncrementStep(1)
	sink.IncrementStep(4)

	assert.Equal(t, 5, total)
}

func TestOutcome_String(t *testing.T) {
	tests := []struct {
		outcome Outcome
		want    string
	}{
		{Success{}, "success"},
		{BucketUnavailable{Bucket: "b", Err: errors.New("denied")}, `bucket "b" unavailable: denied`},
		{PartialFailure{Items: make([]FailureRecord, 2)}, "partial failure: 2 item(s)"},
		{MaxRetriesExceeded{Items: make([]FailureRecord, 1)}, "max retries exceeded: 1 item(s)"},
		{ResumableInterruption{Sessions: make([]SessionState, 3)}, "resumable interruption: 3 session(s)"},
		{UnclassifiedError{Message: "boom"}, "unclassified error: boom"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.outcome.String())
		})
	}
}
