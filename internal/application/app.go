// Package application wires configuration, storage and the import pipeline
// into a runnable whole shared by the server and the importer CLI.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/JonMunkholm/talkimport/internal/config"
	"github.com/JonMunkholm/talkimport/internal/core"
	"github.com/JonMunkholm/talkimport/internal/database"
	"github.com/JonMunkholm/talkimport/internal/database/memdb"
)

// Stores is the persistence pair the pipeline runs against.
type Stores struct {
	Jobs  core.JobStore
	Talks core.TalkStore
	close func()
}

// Close releases the underlying connections.
func (s *Stores) Close() {
	if s.close != nil {
		s.close()
	}
}

// OpenStores connects to the configured driver. For postgres it applies
// pending migrations first when AutoMigrate is set.
func OpenStores(ctx context.Context, cfg config.DatabaseConfig) (*Stores, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		slog.Warn("using in-memory store; jobs and talks are lost on exit")
		m := memdb.New()
		return &Stores{Jobs: m, Talks: m}, nil

	case config.DriverPostgres:
		if cfg.AutoMigrate {
			version, dirty, err := database.RunMigrations(cfg.URL)
			if err != nil {
				return nil, fmt.Errorf("migrate: %w", err)
			}
			slog.Info("database migrated", "version", version, "dirty", dirty)
		}

		pool, err := database.Open(ctx, database.PoolConfig{
			URL:             cfg.URL,
			MaxConns:        cfg.MaxConns,
			MinConns:        cfg.MinConns,
			MaxConnLifetime: cfg.MaxConnLifetime,
			MaxConnIdleTime: cfg.MaxConnIdleTime,
		})
		if err != nil {
			return nil, err
		}
		slog.Info("connected to database", "name", database.DatabaseName(cfg.URL))
		return &Stores{
			Jobs:  database.NewJobRepository(pool),
			Talks: database.NewTalkRepository(pool),
			close: pool.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// NewRunner builds the import runner for the given stores.
func NewRunner(stores *Stores, cfg config.ImportConfig) *core.Runner {
	writer := core.NewBatchWriter(stores.Talks, core.NewTalkValidator(time.Now))
	return core.NewRunner(stores.Jobs, writer, core.RunnerConfig{BatchSize: cfg.BatchSize})
}

// App is the long-running server side of the pipeline: imports run on a
// background dispatcher.
type App struct {
	Config     *config.Config
	Stores     *Stores
	Dispatcher *core.Dispatcher
	Service    *core.Service
}

// New opens storage and starts the dispatcher workers.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	stores, err := OpenStores(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	dispatcher := core.NewDispatcher(NewRunner(stores, cfg.Import), cfg.Import.Workers, cfg.Import.QueueSize)
	dispatcher.Run()

	intake := core.NewIntake(stores.Jobs, dispatcher, core.IntakeConfig{
		UploadDir:   cfg.Import.UploadDir,
		MaxFileSize: cfg.Import.MaxFileSize,
	})
	limiter := core.NewUploadLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime)

	return &App{
		Config:     cfg,
		Stores:     stores,
		Dispatcher: dispatcher,
		Service:    core.NewService(stores.Jobs, stores.Talks, intake, limiter),
	}, nil
}

// Bootstrap runs startup discovery and re-enqueues interrupted jobs, as
// configured. Failures are logged; the server stays up.
func (a *App) Bootstrap(ctx context.Context) {
	intake := a.Service.Intake()

	if a.Config.Import.DiscoveryEnabled {
		res, err := intake.DiscoverDir(ctx, a.Config.Import.SourceDir)
		if err != nil {
			slog.Error("startup discovery failed", "dir", a.Config.Import.SourceDir, "error", err)
		} else {
			slog.Info("startup discovery finished",
				"dir", a.Config.Import.SourceDir,
				"found", res.Found,
				"created", res.Created,
				"existing", res.Existing,
				"failed", res.Failed,
			)
		}
	}

	if a.Config.Import.ResumeOnStartup {
		n, err := intake.ResumeInterrupted(ctx)
		if err != nil {
			slog.Error("resume interrupted jobs failed", "error", err)
		} else if n > 0 {
			slog.Info("resumed interrupted jobs", "count", n)
		}
	}
}

// Shutdown waits for in-flight uploads, stops the dispatcher and closes
// storage, all within ctx.
func (a *App) Shutdown(ctx context.Context) {
	if l := a.Service.Limiter(); l != nil && l.Status().Active > 0 {
		slog.Info("waiting for uploads to complete", "active", l.Status().Active)
		if err := l.WaitForDrain(ctx); err != nil {
			slog.Warn("uploads did not complete in time", "error", err)
		}
	}
	if err := a.Dispatcher.Stop(ctx); err != nil {
		slog.Warn("dispatcher did not stop in time", "error", err)
	}
	a.Stores.Close()
}
