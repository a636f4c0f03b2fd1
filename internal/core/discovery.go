package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/JonMunkholm/talkimport/internal/logging"
)

// DiscoveryResult summarizes a directory scan.
type DiscoveryResult struct {
	Found    int
	Created  int
	Existing int
	Failed   int
}

// FindCSVFiles returns the *.csv files directly under dir, sorted by name.
func FindCSVFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() && IsCSVFileName(e.Name()) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// DiscoverDir submits every CSV file under dir. A file that cannot be
// submitted is logged and counted; the scan continues.
func (in *Intake) DiscoverDir(ctx context.Context, dir string) (DiscoveryResult, error) {
	var res DiscoveryResult
	logger := logging.WithFields(ctx, "dir", dir)

	files, err := FindCSVFiles(dir)
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn("import source directory does not exist")
		return res, nil
	}
	if err != nil {
		return res, err
	}
	res.Found = len(files)

	for _, path := range files {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		job, created, err := in.SubmitDiscoveredFile(ctx, path, filepath.Base(path))
		switch {
		case err != nil:
			res.Failed++
			logger.Error("could not submit discovered file", "path", path, "error", err)
		case created:
			res.Created++
		default:
			res.Existing++
			logger.Debug("discovered file already known", "path", path, "job_id", job.ID, "status", job.Status)
		}
	}

	logger.Info("discovery finished",
		"found", res.Found,
		"created", res.Created,
		"existing", res.Existing,
		"failed", res.Failed,
	)
	return res, nil
}

// ResumeInterrupted starts every PENDING or IN_PROGRESS job, oldest first,
// and returns how many were started. FAILED jobs are left for a manual start.
func (in *Intake) ResumeInterrupted(ctx context.Context) (int, error) {
	jobs, err := in.jobs.ListByStatus(ctx, StatusPending, StatusInProgress)
	if err != nil {
		return 0, fmt.Errorf("list unfinished jobs: %w", err)
	}

	started := 0
	for _, job := range jobs {
		if err := in.starter.Start(ctx, job); err != nil {
			logging.WithFields(ctx, "job_id", job.ID).Warn("could not resume job", "error", err)
			continue
		}
		started++
	}
	if len(jobs) > 0 {
		logging.FromContext(ctx).Info("resumed unfinished jobs", "found", len(jobs), "started", started)
	}
	return started, nil
}
