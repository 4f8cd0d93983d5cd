// Package app is the composition root: it wires configuration, the
// persistence repository, the object store, the model registry, the
// upscaler registry, the generation engine, the step handlers, the
// executor, the queue and the metrics registry into one App value the
// server and cmd/dreamforge entrypoint share.
package app

import (
	"context"
	"fmt"
	"os"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/dreamforge/internal/common"
	"github.com/ternarybob/dreamforge/internal/engine"
	"github.com/ternarybob/dreamforge/internal/executor"
	"github.com/ternarybob/dreamforge/internal/handlers/steps"
	"github.com/ternarybob/dreamforge/internal/metrics"
	"github.com/ternarybob/dreamforge/internal/models"
	"github.com/ternarybob/dreamforge/internal/objectstore"
	"github.com/ternarybob/dreamforge/internal/queue"
	"github.com/ternarybob/dreamforge/internal/registry"
	"github.com/ternarybob/dreamforge/internal/store"
	"github.com/ternarybob/dreamforge/internal/storage/sqlite"
	"github.com/ternarybob/dreamforge/internal/upscaler"
)

// App holds every wired dependency the HTTP layer and the worker pool need.
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	DB          *sqlite.SQLiteDB
	Repo        store.Repository
	ObjectStore objectstore.ObjectStore
	Registry    *registry.Registry
	Upscalers   *upscaler.Registry
	Engine      engine.Engine

	Executor *executor.Executor
	Queue    queue.Queue
	Pool     *queue.WorkerPool
	Metrics  *metrics.Registry

	cancelPool context.CancelFunc
}

// New wires a fully-functional App from configuration. The object store is
// optional: if it cannot be constructed (unset/invalid credentials), New
// falls back to an in-process objectstore.Memory so the control plane still
// runs end-to-end, logging a warning rather than failing startup, since the
// object store is the one external dependency eager-mode deployments (and
// our own tests) routinely run without.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	db, err := sqlite.NewSQLiteDB(logger, &cfg.SQLite)
	if err != nil {
		return nil, fmt.Errorf("initialize sqlite: %w", err)
	}
	a.DB = db
	a.Repo = sqlite.NewRepository(db)

	objStore, err := objectstore.New(cfg.ObjectStore)
	if err != nil {
		logger.Warn().Err(err).Msg("object store not configured, falling back to in-memory store")
		a.ObjectStore = objectstore.NewMemory()
	} else {
		a.ObjectStore = objStore
	}

	a.Registry = registry.New(a.Repo, cfg.Models.InstallRoot, cfg.Models.FallbackPath)
	a.Upscalers = upscaler.NewRegistry()
	a.Engine = buildEngine(cfg, logger)

	handlers := map[models.StepName]executor.Handler{
		models.StepGenerate: &steps.GenerateHandler{
			Engine:   a.Engine,
			Store:    a.ObjectStore,
			Registry: a.Registry,
			Logger:   logger,
		},
		models.StepUpscale: &steps.UpscaleHandler{
			Repo:     a.Repo,
			Store:    a.ObjectStore,
			Registry: a.Upscalers,
			Logger:   logger,
		},
	}

	a.Executor = executor.New(a.Repo, handlers, logger)

	if cfg.Queue.Eager {
		a.Queue = queue.NewEager(a.Executor.Execute)
	} else {
		async, err := queue.NewAsync(db.DB(), cfg.Queue.Name)
		if err != nil {
			return nil, fmt.Errorf("initialize async queue: %w", err)
		}
		a.Queue = async

		ctx, cancel := context.WithCancel(context.Background())
		a.cancelPool = cancel
		a.Pool = queue.NewWorkerPool(async, a.Executor.Execute, logger, cfg.Queue.Concurrency)
		a.Pool.Start(ctx)
	}
	a.Executor.SetQueue(a.Queue)

	a.Metrics = metrics.New(func() float64 {
		async, ok := a.Queue.(*queue.Async)
		if !ok {
			return 0
		}
		depth, err := async.Depth(context.Background())
		if err != nil {
			return 0
		}
		return float64(depth)
	})
	a.Executor.SetMetrics(a.Metrics)

	logger.Info().
		Bool("queue_eager", cfg.Queue.Eager).
		Str("sqlite_path", cfg.SQLite.Path).
		Msg("application initialized")

	return a, nil
}

// buildEngine picks the real subprocess engine when DF_ENGINE_BINARY is
// set, falling back to the deterministic Fake otherwise — the same fake
// used by eager-mode tests in §8, so a developer machine without GPU
// tooling still runs the full chain.
func buildEngine(cfg *common.Config, logger arbor.ILogger) engine.Engine {
	if bin := os.Getenv("DF_ENGINE_BINARY"); bin != "" {
		return engine.NewSubprocess(bin, cleanupCommand(), logger)
	}
	return engine.NewFake()
}

func cleanupCommand() []string {
	if v := os.Getenv("DF_ENGINE_CLEANUP_CMD"); v != "" {
		return []string{v}
	}
	return nil
}

// Close releases the worker pool and database handle, in that order so no
// in-flight worker is left holding a closed connection.
func (a *App) Close() error {
	if a.cancelPool != nil {
		a.cancelPool()
	}
	if a.Queue != nil {
		if err := a.Queue.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("failed to close queue")
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			return fmt.Errorf("close sqlite: %w", err)
		}
	}
	return nil
}
