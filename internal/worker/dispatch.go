package worker

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"brain/internal/executions"
)

// jobResult summarizes how a child process's run ended, per the worker
// state machine in spec §4.2.
type jobResult struct {
	exitCode   int
	err        error
	timedOut   bool
	cancelled  bool
	wallTimeMS int64
}

// execute spawns the job's child process (python or shell, per language
// dispatch), streams its output into flush-policy buffers backed by the
// row's log files, and enforces the wall-clock timeout with SIGTERM then
// SIGKILL, grounded on internal/tactile/direct.go's Execute method.
func (w *Worker) execute(ctx context.Context, job *executions.Execution) jobResult {
	timeout := w.execCfg.WallClockLimit
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	grace := w.execCfg.KillGrace
	if grace <= 0 {
		grace = 5 * time.Second
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd, cleanup, err := w.buildCommand(execCtx, job)
	if err != nil {
		return jobResult{err: err}
	}
	if cleanup != nil {
		defer cleanup()
	}

	outFile, err := os.OpenFile(job.OutputFile, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return jobResult{err: err}
	}
	defer outFile.Close()
	errFile, err := os.OpenFile(job.ErrorFile, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return jobResult{err: err}
	}
	defer errFile.Close()

	inlineCap := w.execCfg.InlineOutputCapBytes
	if inlineCap <= 0 {
		inlineCap = 1 << 20
	}
	flushInterval := w.cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = time.Second
	}
	flushBytes := w.cfg.FlushBytes
	if flushBytes <= 0 {
		flushBytes = 10 << 10
	}
	flushLines := w.cfg.FlushLines
	if flushLines <= 0 {
		flushLines = 100
	}

	stdoutBuf := newStreamBuffer(outFile, job.OutputFile+".overflow", inlineCap, flushInterval, flushBytes, flushLines)
	stderrBuf := newStreamBuffer(errFile, job.ErrorFile+".overflow", inlineCap, flushInterval, flushBytes, flushLines)
	defer stdoutBuf.Close()
	defer stderrBuf.Close()

	cmd.Stdout = stdoutBuf
	cmd.Stderr = stderrBuf

	periodicFlush := time.NewTicker(flushInterval)
	defer periodicFlush.Stop()
	stopPeriodicFlush := make(chan struct{})
	defer close(stopPeriodicFlush)
	go func() {
		for {
			select {
			case <-stopPeriodicFlush:
				return
			case <-periodicFlush.C:
				stdoutBuf.Flush()
				stderrBuf.Flush()
			}
		}
	}()

	start := time.Now()
	runErr := cmd.Run()
	wallTime := time.Since(start)

	stdoutBuf.Flush()
	stderrBuf.Flush()

	outSize, outTruncated := stdoutBuf.sizeAndTruncated()
	errSize, errTruncated := stderrBuf.sizeAndTruncated()
	truncated := outTruncated || errTruncated
	overflowFile := ""
	if truncated {
		overflowFile = job.OutputFile + ".overflow"
	}
	if err := executions.UpdateOutputMeta(ctx, w.db, job.ID, outSize, errSize, truncated, overflowFile); err != nil {
		w.log.Warn("failed to record output metadata", zap.String("id", job.ID), zap.Error(err))
	}

	result := jobResult{wallTimeMS: wallTime.Milliseconds()}

	switch {
	case execCtx.Err() == context.DeadlineExceeded:
		result.timedOut = true
	case ctx.Err() == context.Canceled:
		result.cancelled = true
	case runErr != nil:
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			result.exitCode = exitErr.ExitCode()
		} else {
			result.err = runErr
		}
	}
	return result
}

// buildCommand constructs the exec.Cmd for a job per its language, applying
// SIGTERM-then-SIGKILL semantics via exec.CommandContext's Cancel hook. The
// returned cleanup func removes any temp file created for the job.
func (w *Worker) buildCommand(ctx context.Context, e *executions.Execution) (*exec.Cmd, func(), error) {
	switch e.Language {
	case executions.LanguageShell:
		cmd := exec.CommandContext(ctx, "sh", "-c", e.Code)
		applyGracefulCancel(cmd, w.execCfg.KillGrace)
		return cmd, nil, nil
	case executions.LanguagePython:
		return w.buildPythonCommand(ctx, e)
	default:
		cmd := exec.CommandContext(ctx, "sh", "-c", e.Code)
		applyGracefulCancel(cmd, w.execCfg.KillGrace)
		return cmd, nil, nil
	}
}

// buildPythonCommand writes the brain-context preamble plus the user's code
// to a scratch file and runs python3 against it. Per DESIGN.md's Open
// Question #3 decision, each execution gets a fresh interpreter: no REPL
// namespace is reused across jobs.
func (w *Worker) buildPythonCommand(ctx context.Context, e *executions.Execution) (*exec.Cmd, func(), error) {
	dir := filepath.Dir(e.OutputFile)
	f, err := os.CreateTemp(dir, "brain-exec-*.py")
	if err != nil {
		return nil, nil, err
	}
	script := brainPreamble(w.dbPath) + "\n" + e.Code + "\n"
	if _, err := f.WriteString(script); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, nil, err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, nil, err
	}

	cmd := exec.CommandContext(ctx, "python3", f.Name())
	applyGracefulCancel(cmd, w.execCfg.KillGrace)
	cleanup := func() { os.Remove(f.Name()) }
	return cmd, cleanup, nil
}

// applyGracefulCancel makes ctx cancellation send SIGTERM first, falling
// back to the default SIGKILL only after grace elapses, matching spec
// §4.2's "SIGTERM then SIGKILL after grace".
func applyGracefulCancel(cmd *exec.Cmd, grace time.Duration) {
	if grace <= 0 {
		grace = 5 * time.Second
	}
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = grace
}
