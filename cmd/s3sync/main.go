// Command s3sync pushes directories to S3, pulls prefixes back and copies
// objects in bulk between buckets.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/internal/config"
)

// flagKeys maps global flags to configuration keys.
var flagKeys = map[string]string{
	"bucket":               "bucket",
	"region":               "region",
	"endpoint":             "endpoint",
	"force-path-style":     "force_path_style",
	"concurrent-uploads":   "concurrent_uploads",
	"concurrent-downloads": "concurrent_downloads",
	"max-retries":          "max_retries",
	"max-resumes":          "max_resumes",
	"multipart-threshold":  "multipart_threshold",
	"force":                "force",
	"exclude":              "exclude",
	"log-level":            "log_level",
	"log-format":           "log_format",
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Usage: "Path to a YAML configuration file"},
		&cli.StringFlag{Name: "env-file", Usage: "Path to a .env file", Value: ".env"},
		&cli.StringFlag{Name: "bucket", Aliases: []string{"b"}, Usage: "Bucket to work on"},
		&cli.StringFlag{Name: "region", Usage: "AWS region"},
		&cli.StringFlag{Name: "endpoint", Usage: "Custom S3 endpoint URL"},
		&cli.BoolFlag{Name: "force-path-style", Usage: "Use path-style addressing"},
		&cli.IntFlag{Name: "concurrent-uploads", Usage: "Files uploaded at once"},
		&cli.IntFlag{Name: "concurrent-downloads", Usage: "Objects downloaded at once"},
		&cli.IntFlag{Name: "max-retries", Usage: "Failed directory passes allowed by push"},
		&cli.IntFlag{Name: "max-resumes", Usage: "Multipart resumes allowed per push pass"},
		&cli.Int64Flag{Name: "multipart-threshold", Usage: "Size in bytes above which uploads use multipart"},
		&cli.BoolFlag{Name: "force", Usage: "Overwrite existing objects on the first push pass", Value: true},
		&cli.StringSliceFlag{Name: "exclude", Usage: "Local path pattern never uploaded (repeatable)"},
		&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
		&cli.StringFlag{Name: "log-format", Usage: "text or json"},
		&cli.StringFlag{Name: "metrics-addr", Usage: "Serve Prometheus metrics on this address while running"},
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:                 "s3sync",
		Usage:                "Bulk sync directories with S3 and copy objects between buckets",
		Flags:                globalFlags(),
		EnableBashCompletion: true,
		Commands: []*cli.Command{
			{
				Name:      "push",
				Usage:     "Upload a local directory under a key prefix",
				ArgsUsage: "<dir> [prefix]",
				Action:    withClient(runPush),
			},
			{
				Name:      "pull",
				Usage:     "Download every object under a prefix into a directory",
				ArgsUsage: "<prefix> <dir>",
				Action:    withClient(runPull),
			},
			{
				Name:      "copy",
				Usage:     "Copy objects; destinations may be \"bucket::key\"",
				ArgsUsage: "<source=destination>...",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "concurrency", Aliases: []string{"c"}, Usage: "Copies per batch, minus one", Value: 10},
					&cli.StringFlag{Name: "from-file", Aliases: []string{"f"}, Usage: "Read source=destination lines from a file, - for stdin"},
				},
				Action: withClient(runCopy),
			},
			{
				Name:      "ls",
				Usage:     "List keys matching a prefix pattern",
				ArgsUsage: "[pattern]",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "long", Aliases: []string{"l"}, Usage: "Show sizes and modification times"},
				},
				Action: withClient(runList),
			},
			{
				Name:   "ensure-bucket",
				Usage:  "Create the bucket if it does not exist",
				Action: withClient(runEnsureBucket),
			},
		},
	}
}

type action func(c *cli.Context, client *s3sync.Client, logger *slog.Logger) error

// withClient loads configuration, builds the client and maps the result of
// the action to an exit status.
func withClient(run action) cli.ActionFunc {
	return func(c *cli.Context) error {
		loader := config.NewLoader()
		for flag, key := range flagKeys {
			if !c.IsSet(flag) {
				continue
			}
			if flag == "exclude" {
				loader.Set(key, c.StringSlice(flag))
				continue
			}
			loader.Set(key, c.Value(flag))
		}

		cfg, err := loader.Load(c.String("config"), c.String("env-file"))
		if err != nil {
			return exitError(err)
		}
		logger := cfg.NewLogger(c.App.ErrWriter)

		var reg prometheus.Registerer
		if addr := c.String("metrics-addr"); addr != "" {
			r, stop, err := serveMetrics(addr, logger)
			if err != nil {
				return exitError(err)
			}
			defer stop()
			reg = r
		}

		client, err := s3sync.New(cfg.ClientOptions(logger, reg)...)
		if err != nil {
			return exitError(err)
		}
		if err := run(c, client, logger); err != nil {
			return exitError(err)
		}
		return nil
	}
}

func serveMetrics(addr string, logger *slog.Logger) (*prometheus.Registry, func(), error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", ln.Addr().String())

	stop := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
	return reg, stop, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
