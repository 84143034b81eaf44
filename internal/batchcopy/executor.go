package batchcopy

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/internal/s3api"
)

// Executor dispatches a batch of copy commands. When some commands fail it
// returns a *BatchError naming exactly those commands; the others succeeded.
type Executor interface {
	Execute(ctx context.Context, batch Batch) error
}

// CommandFailure pairs a failed command with its cause.
type CommandFailure struct {
	Command Command
	Err     error
}

// BatchError reports the subset of a batch that failed.
type BatchError struct {
	Total    int
	Failures []CommandFailure
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("%d of %d copy commands failed", len(e.Failures), e.Total)
}

// FailedCommands returns the commands that failed, in batch order.
func (e *BatchError) FailedCommands() []Command {
	cmds := make([]Command, len(e.Failures))
	for i, f := range e.Failures {
		cmds[i] = f.Command
	}
	return cmds
}

// ClientExecutor runs every command of a batch concurrently against S3.
type ClientExecutor struct {
	client      s3api.S3API
	maxInFlight int
}

// NewClientExecutor creates an executor. maxInFlight caps concurrent requests
// per batch; zero or less means one request per command in the batch.
func NewClientExecutor(client s3api.S3API, maxInFlight int) *ClientExecutor {
	return &ClientExecutor{
		client:      client,
		maxInFlight: maxInFlight,
	}
}

// Execute issues one CopyObject per command and waits for all of them.
func (e *ClientExecutor) Execute(ctx context.Context, batch Batch) error {
	if len(batch) == 0 {
		return nil
	}

	limit := len(batch)
	if e.maxInFlight > 0 && e.maxInFlight < limit {
		limit = e.maxInFlight
	}

	type indexed struct {
		index int
		CommandFailure
	}

	var (
		mu       sync.Mutex
		failures []indexed
		g        errgroup.Group
	)
	g.SetLimit(limit)

	for i, cmd := range batch {
		g.Go(func() error {
			if _, err := e.client.CopyObject(ctx, cmd.Input()); err != nil {
				mu.Lock()
				failures = append(failures, indexed{index: i, CommandFailure: CommandFailure{Command: cmd, Err: err}})
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(failures) == 0 {
		return nil
	}

	sort.Slice(failures, func(a, b int) bool {
		return failures[a].index < failures[b].index
	})
	batchErr := &BatchError{Total: len(batch), Failures: make([]CommandFailure, len(failures))}
	for i, f := range failures {
		batchErr.Failures[i] = f.CommandFailure
	}
	return batchErr
}
