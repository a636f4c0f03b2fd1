package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/JonMunkholm/talkimport/internal/config"
	"github.com/JonMunkholm/talkimport/internal/core"
)

const csvBody = "title,author,date,views,likes,link\n" +
	"A,Ann,June 2010,1,1,https://ted.com/a\n" +
	"B,Bob,July 2011,2,2,https://ted.com/b\n"

func TestExpandPaths(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.csv", "a.CSV", "notes.txt"} {
		os.WriteFile(filepath.Join(dir, name), []byte(csvBody), 0o644)
	}
	single := filepath.Join(t.TempDir(), "one.csv")
	os.WriteFile(single, []byte(csvBody), 0o644)

	got, err := expandPaths([]string{single, dir})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{single, filepath.Join(dir, "a.CSV"), filepath.Join(dir, "b.csv")}
	if len(got) != len(want) {
		t.Fatalf("expandPaths = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if _, err := expandPaths([]string{filepath.Join(dir, "missing")}); err == nil {
		t.Error("missing path should fail")
	}
}

func TestRun_ImportsInlineAndIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "talks.csv"), []byte(csvBody), 0o644)

	cfg := &config.Config{}
	cfg.Database.Driver = config.DriverMemory
	cfg.Import.BatchSize = 1

	var opts options
	opts.Args.Paths = []string{dir}

	jobs, err := run(context.Background(), cfg, opts)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 {
		t.Fatalf("jobs = %d, want 1", len(jobs))
	}
	if j := jobs[0]; j.Status != core.StatusCompleted || j.SuccessfulCount != 2 || j.LastProcessedLine != 2 {
		t.Errorf("job = %s %+v", j.Status, j.Progress())
	}
}

func TestEnvOverrides(t *testing.T) {
	opts := options{Driver: "memory", BatchSize: 25}
	env := opts.envOverrides()
	if env["DATABASE_DRIVER"] != "memory" || env["IMPORT_BATCH_SIZE"] != "25" {
		t.Errorf("env = %v", env)
	}
	if _, ok := env["DATABASE_URL"]; ok {
		t.Error("unset flag should not override DATABASE_URL")
	}
}
