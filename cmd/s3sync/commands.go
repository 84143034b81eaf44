package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync"
	s3errors "github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/s3types"
)

// Exit statuses.
const (
	exitFailed       = 1
	exitInvalidInput = 2
	exitUnavailable  = 3
	exitForbidden    = 4
	exitRetries      = 5
	exitInterrupted  = 130
)

var errNotCompleted = errors.New("operation did not complete")

// exitCode maps an operation error to the process exit status.
func exitCode(err error) int {
	switch s3errors.Code(err) {
	case "":
		return 0
	case s3errors.CodeInvalidInput:
		return exitInvalidInput
	case s3errors.CodeUnavailable, s3errors.CodeNotFound:
		return exitUnavailable
	case s3errors.CodeForbidden:
		return exitForbidden
	case s3errors.CodeRetriesExhausted:
		return exitRetries
	case s3errors.CodeCanceled, s3errors.CodeTimeout:
		return exitInterrupted
	}
	return exitFailed
}

func exitError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if s3errors.Code(err).Retryable() {
		msg += "; running the command again may succeed"
	}
	return cli.Exit(msg, exitCode(err))
}

// counter is a progress sink that also reports the rate at the end.
type counter struct {
	n     atomic.Int64
	start time.Time
}

func newCounter() *counter {
	return &counter{start: time.Now()}
}

func (c *counter) IncrementStep(n int) {
	c.n.Add(int64(n))
}

func (c *counter) summary(verb string) string {
	elapsed := time.Since(c.start).Round(time.Millisecond)
	return fmt.Sprintf("%s %s objects in %s", verb, humanize.Comma(c.n.Load()), elapsed)
}

func runPush(c *cli.Context, client *s3sync.Client, _ *slog.Logger) error {
	if c.NArg() < 1 || c.NArg() > 2 {
		return invalidArgs(c, "push expects <dir> [prefix]")
	}
	progress := newCounter()

	ok, err := client.Push(c.Context, c.Args().Get(0), c.Args().Get(1), progress)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("push %s: %w", c.Args().Get(0), errNotCompleted)
	}
	fmt.Fprintln(c.App.Writer, progress.summary("uploaded"))
	return nil
}

func runPull(c *cli.Context, client *s3sync.Client, _ *slog.Logger) error {
	if c.NArg() != 2 {
		return invalidArgs(c, "pull expects <prefix> <dir>")
	}
	progress := newCounter()

	res, err := client.Pull(c.Context, c.Args().Get(0), c.Args().Get(1), progress)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(res.Transferred))
	for key := range res.Transferred {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(c.App.Writer, "%s => %s\n", key, res.Transferred[key])
	}
	fmt.Fprintln(c.App.Writer, progress.summary("downloaded"))
	return nil
}

func runCopy(c *cli.Context, client *s3sync.Client, _ *slog.Logger) error {
	pairs := c.Args().Slice()
	if path := c.String("from-file"); path != "" {
		lines, err := readLines(path, c.App.Reader)
		if err != nil {
			return err
		}
		pairs = append(pairs, lines...)
	}
	if len(pairs) == 0 {
		return invalidArgs(c, "copy expects at least one source=destination pair")
	}

	mapping, err := parseMapping(pairs)
	if err != nil {
		return err
	}
	progress := newCounter()

	ok, err := client.BatchCopy(c.Context, mapping, c.Int("concurrency"), progress)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("copy: %w", errNotCompleted)
	}
	fmt.Fprintln(c.App.Writer, progress.summary("copied"))
	return nil
}

func runList(c *cli.Context, client *s3sync.Client, _ *slog.Logger) error {
	pattern := c.Args().First()

	if !c.Bool("long") {
		keys, err := client.List(c.Context, pattern)
		if err != nil {
			return err
		}
		for _, key := range keys {
			fmt.Fprintln(c.App.Writer, key)
		}
		return nil
	}

	objects, err := client.Objects(c.Context, strings.TrimSuffix(pattern, "*"))
	if err != nil {
		return err
	}
	var total uint64
	for _, obj := range objects {
		total += uint64(obj.Size)
		fmt.Fprintf(c.App.Writer, "%10s  %-14s  %s\n",
			humanize.IBytes(uint64(obj.Size)), humanize.Time(obj.LastModified), obj.Key)
	}
	fmt.Fprintf(c.App.Writer, "%s objects, %s\n", humanize.Comma(int64(len(objects))), humanize.IBytes(total))
	return nil
}

func runEnsureBucket(c *cli.Context, client *s3sync.Client, logger *slog.Logger) error {
	if err := client.EnsureBucket(c.Context); err != nil {
		return err
	}
	logger.Info("bucket ready", "bucket", client.Bucket())
	return nil
}

// parseMapping turns "source=destination" arguments into a mapping, keeping
// their order. A later pair for the same source replaces the earlier one.
func parseMapping(pairs []string) (s3types.CopyMapping, error) {
	mapping := make(s3types.CopyMapping, 0, len(pairs))
	index := make(map[string]int, len(pairs))
	for _, pair := range pairs {
		src, dst, ok := strings.Cut(pair, "=")
		src, dst = strings.TrimSpace(src), strings.TrimSpace(dst)
		if !ok || src == "" || dst == "" {
			return nil, s3errors.NewError("copy", s3errors.ErrInvalidInput).
				WithMessage(fmt.Sprintf("expected source=destination, got %q", pair))
		}
		if i, seen := index[src]; seen {
			mapping[i].Destination = dst
			continue
		}
		index[src] = len(mapping)
		mapping = append(mapping, s3types.CopyPair{Source: src, Destination: dst})
	}
	return mapping, nil
}

// readLines returns the non-empty, non-comment lines of path, or of stdin
// when path is "-".
func readLines(path string, stdin io.Reader) ([]string, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, s3errors.NewError("copy", s3errors.ErrInvalidInput).WithMessage(err.Error())
		}
		defer f.Close()
		r = f
	}

	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return lines, nil
}

func invalidArgs(c *cli.Context, msg string) error {
	_ = cli.ShowSubcommandHelp(c)
	return s3errors.NewError(c.Command.Name, s3errors.ErrInvalidInput).WithMessage(msg)
}
