// Command importer imports CSV files or directories of CSV files
// synchronously, using the same job ledger as the server. Re-running it on
// the same content is a no-op; interrupted jobs resume from their last
// checkpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"text/tabwriter"

	"github.com/JonMunkholm/talkimport/internal/application"
	"github.com/JonMunkholm/talkimport/internal/config"
	"github.com/JonMunkholm/talkimport/internal/core"
	"github.com/JonMunkholm/talkimport/internal/logging"
	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

type options struct {
	Driver      string `long:"driver" description:"Store driver: postgres or memory (overrides DATABASE_DRIVER)"`
	DatabaseURL string `long:"database-url" description:"PostgreSQL URL (overrides DATABASE_URL)"`
	BatchSize   int    `short:"b" long:"batch-size" description:"Rows per checkpoint (overrides IMPORT_BATCH_SIZE)"`
	Resume      bool   `short:"r" long:"resume" description:"Also resume PENDING, IN_PROGRESS and FAILED jobs for the given files"`
	LogLevel    string `long:"log-level" description:"debug, info, warn or error (overrides LOG_LEVEL)"`

	Args struct {
		Paths []string `positional-arg-name:"PATH" required:"1" description:"CSV files or directories"`
	} `positional-args:"yes"`
}

// envOverrides maps set flags onto the environment read by config.Load.
func (o *options) envOverrides() map[string]string {
	env := map[string]string{}
	if o.Driver != "" {
		env["DATABASE_DRIVER"] = o.Driver
	}
	if o.DatabaseURL != "" {
		env["DATABASE_URL"] = o.DatabaseURL
	}
	if o.BatchSize > 0 {
		env["IMPORT_BATCH_SIZE"] = strconv.Itoa(o.BatchSize)
	}
	if o.LogLevel != "" {
		env["LOG_LEVEL"] = o.LogLevel
	}
	return env
}

func main() {
	var opts options
	if _, err := flags.NewParser(&opts, flags.Default).Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return
		}
		os.Exit(2)
	}

	_ = godotenv.Load()
	for k, v := range opts.envOverrides() {
		os.Setenv(k, v)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	jobs, err := run(ctx, cfg, opts)
	printSummary(jobs)
	if err != nil {
		slog.Error("import failed", "error", err)
		os.Exit(1)
	}
	for _, j := range jobs {
		if j.Status != core.StatusCompleted {
			os.Exit(1)
		}
	}
}

func run(ctx context.Context, cfg *config.Config, opts options) ([]*core.ImportJob, error) {
	files, err := expandPaths(opts.Args.Paths)
	if err != nil {
		return nil, err
	}

	stores, err := application.OpenStores(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	defer stores.Close()

	// The runner itself is the starter, so each submit imports inline.
	runner := application.NewRunner(stores, cfg.Import)
	intake := core.NewIntake(stores.Jobs, runner, core.IntakeConfig{MaxFileSize: cfg.Import.MaxFileSize})

	var jobs []*core.ImportJob
	for _, path := range files {
		if ctx.Err() != nil {
			return jobs, ctx.Err()
		}
		job, created, err := intake.SubmitDiscoveredFile(ctx, path, filepath.Base(path))
		if err != nil {
			slog.Error("submit failed", "path", path, "error", err)
			continue
		}
		if !created && opts.Resume && job.Status != core.StatusCompleted {
			if job, err = intake.StartImport(ctx, job.ID); err != nil {
				slog.Error("resume failed", "path", path, "error", err)
			}
		}
		if job != nil {
			jobs = append(jobs, job)
		}
	}
	return jobs, nil
}

// expandPaths replaces each directory with the CSV files directly inside it.
func expandPaths(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		found, err := core.FindCSVFiles(p)
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}
	return files, nil
}

func printSummary(jobs []*core.ImportJob) {
	if len(jobs) == 0 {
		return
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tSTATUS\tPROCESSED\tOK\tSKIPPED\tFAILED\tJOB")
	for _, j := range jobs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			j.FileName, j.Status, j.ProcessedCount, j.SuccessfulCount, j.SkippedCount, j.FailedCount, j.ID)
	}
	tw.Flush()
}
