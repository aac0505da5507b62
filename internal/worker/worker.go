// Package worker implements C2's runtime half: the separate process that
// polls the store, claims jobs atomically, spawns child interpreters, and
// streams output to log files. Grounded on the teacher's DirectExecutor
// (internal/tactile/direct.go) for child-process handling and its ticker
// loop (internal/store/reflection_worker.go) for the polling/heartbeat cadence.
package worker

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"brain/internal/config"
	"brain/internal/executions"
	"brain/internal/logging"
)

// Worker polls for queued executions and runs them to completion.
type Worker struct {
	db      *sql.DB
	dbPath  string
	execCfg config.ExecutionConfig
	cfg     config.WorkerConfig
	log     *zap.Logger
	id      string
}

// New constructs a Worker. dbPath is the store file path, needed so the
// brain-context shim can open its own read-only connection.
func New(db *sql.DB, dbPath string, execCfg config.ExecutionConfig, cfg config.WorkerConfig, log *zap.Logger) *Worker {
	return &Worker{
		db: db, dbPath: dbPath, execCfg: execCfg, cfg: cfg,
		log: logging.For(log, "worker"), id: uuid.NewString(),
	}
}

// ID returns this worker process's identifier, used as executions.worker_id.
func (w *Worker) ID() string { return w.id }

// Run launches cfg.MaxConcurrency poll-and-execute goroutines and blocks
// until ctx is cancelled or one of them returns a fatal error.
func (w *Worker) Run(ctx context.Context) error {
	concurrency := w.cfg.MaxConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	if w.cfg.MinConcurrency > concurrency {
		concurrency = w.cfg.MinConcurrency
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		slot := i
		g.Go(func() error {
			return w.pollLoop(gctx, slot)
		})
	}
	return g.Wait()
}

func (w *Worker) pollLoop(ctx context.Context, slot int) error {
	poll := w.cfg.PollInterval
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		exec, err := executions.Claim(ctx, w.db, w.id, 0)
		if err != nil {
			w.log.Warn("claim failed", zap.Error(err), zap.Int("slot", slot))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(poll):
			}
			continue
		}
		if exec == nil {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(poll):
			}
			continue
		}

		w.log.Info("claimed execution", zap.String("id", exec.ID), zap.String("language", string(exec.Language)))
		w.runJob(ctx, exec)
	}
}

func (w *Worker) runJob(ctx context.Context, exec *executions.Execution) {
	hbCtx, cancelHB := context.WithCancel(ctx)
	defer cancelHB()
	go w.heartbeatLoop(hbCtx, exec.ID)

	result := w.execute(ctx, exec)

	status := executions.StatusCompleted
	var exitCode *int
	errMsg := ""
	switch {
	case result.cancelled:
		status = executions.StatusCancelled
		errMsg = "execution cancelled"
	case result.timedOut:
		status = executions.StatusTimeout
		errMsg = "execution exceeded wall-clock limit"
	case result.err != nil:
		status = executions.StatusFailed
		errMsg = result.err.Error()
	case result.exitCode != 0:
		status = executions.StatusFailed
		code := result.exitCode
		exitCode = &code
	default:
		code := 0
		exitCode = &code
	}

	if err := executions.Complete(ctx, w.db, exec.ID, status, exitCode, errMsg, result.wallTimeMS); err != nil {
		w.log.Error("failed to record execution completion", zap.String("id", exec.ID), zap.Error(err))
	}
}

func (w *Worker) heartbeatLoop(ctx context.Context, executionID string) {
	interval := w.cfg.HeartbeatInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := executions.Heartbeat(ctx, w.db, executionID); err != nil {
				w.log.Warn("heartbeat failed", zap.String("id", executionID), zap.Error(err))
			}
		}
	}
}
