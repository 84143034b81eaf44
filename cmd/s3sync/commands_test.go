package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	s3errors "github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/s3types"
)

func TestParseMapping(t *testing.T) {
	tests := []struct {
		name    string
		pairs   []string
		want    s3types.CopyMapping
		wantErr bool
	}{
		{
			name:  "keeps order and bucket destinations",
			pairs: []string{"b.txt=y.txt", "a.txt = other::x.txt"},
			want: s3types.CopyMapping{
				{Source: "b.txt", Destination: "y.txt"},
				{Source: "a.txt", Destination: "other::x.txt"},
			},
		},
		{
			name:  "later pair replaces earlier",
			pairs: []string{"a=1", "b=2", "a=3"},
			want: s3types.CopyMapping{
				{Source: "a", Destination: "3"},
				{Source: "b", Destination: "2"},
			},
		},
		{name: "missing separator", pairs: []string{"a.txt"}, wantErr: true},
		{name: "empty destination", pairs: []string{"a.txt="}, wantErr: true},
		{name: "empty source", pairs: []string{"=b.txt"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseMapping(tt.pairs)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, s3errors.IsInvalidInput(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadLines(t *testing.T) {
	input := "# mapping\na.txt=b.txt\n\n  c.txt=archive::c.txt  \n"

	lines, err := readLines("-", strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt=b.txt", "c.txt=archive::c.txt"}, lines)

	path := filepath.Join(t.TempDir(), "mapping.txt")
	require.NoError(t, os.WriteFile(path, []byte(input), 0o600))
	lines, err = readLines(path, nil)
	require.NoError(t, err)
	assert.Len(t, lines, 2)

	_, err = readLines(filepath.Join(t.TempDir(), "missing"), nil)
	assert.True(t, s3errors.IsInvalidInput(err))
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, 0},
		{"invalid input", s3errors.NewError("push", s3errors.ErrInvalidInput), exitInvalidInput},
		{"bucket unavailable", s3errors.NewBucketError("push", "b", s3errors.ErrBucketUnavailable), exitUnavailable},
		{"access denied", s3errors.NewError("push", s3errors.ErrAccessDenied), exitForbidden},
		{"retries", &s3errors.MaxRetriesError{Op: "push", Attempts: 3}, exitRetries},
		{"interrupted", context.Canceled, exitInterrupted},
		{"not completed", errNotCompleted, exitFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestExitError(t *testing.T) {
	assert.NoError(t, exitError(nil))

	var exit cli.ExitCoder
	require.ErrorAs(t, exitError(&s3errors.MaxRetriesError{Op: "push", Attempts: 3}), &exit)
	assert.Equal(t, exitRetries, exit.ExitCode())
	assert.Contains(t, exit.Error(), "may succeed")

	require.ErrorAs(t, exitError(s3errors.NewError("push", s3errors.ErrInvalidInput)), &exit)
	assert.Equal(t, exitInvalidInput, exit.ExitCode())
	assert.NotContains(t, exit.Error(), "may succeed")
}

func TestCounter(t *testing.T) {
	c := newCounter()
	c.IncrementStep(1200)
	c.IncrementStep(34)

	assert.True(t, strings.HasPrefix(c.summary("copied"), "copied 1,234 objects in "))
}

func TestApp_InvalidConfiguration(t *testing.T) {
	t.Chdir(t.TempDir())

	app := newApp()
	var stderr bytes.Buffer
	app.ErrWriter = &stderr
	app.ExitErrHandler = func(*cli.Context, error) {}

	err := app.Run([]string{"s3sync", "--concurrent-uploads", "0", "ensure-bucket"})

	var exit cli.ExitCoder
	require.True(t, errors.As(err, &exit))
	assert.Equal(t, exitInvalidInput, exit.ExitCode())
	assert.Contains(t, err.Error(), "concurrent_uploads")
}
