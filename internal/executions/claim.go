package executions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Claim is the single most important algorithm in the system (spec §4.2):
// it transitions exactly one queued row to running and returns it, ordered
// by priority DESC, created_at ASC, excluding rows that have exhausted their
// retries. Returns (nil, nil) when no job is available. The row is selected
// and then updated inside one transaction; the UPDATE re-checks
// status='queued' in its WHERE clause, so a caller that lost the row to
// another transaction affects zero rows and reports no job (E1).
func Claim(ctx context.Context, db *sql.DB, workerID string, pid int) (*Execution, error) {
	now := time.Now().UTC()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var id string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM executions
		WHERE status = 'queued' AND retry_count < max_retries
		ORDER BY priority DESC, created_at ASC
		LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select claimable execution: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE executions SET status = 'running', started_at = ?, claimed_at = ?, worker_id = ?, pid = ?
		WHERE id = ? AND status = 'queued'`, now, now, workerID, pid, id)
	if err != nil {
		return nil, fmt.Errorf("claim execution: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		// Lost the race between SELECT and UPDATE to another process's
		// transaction; report no job available rather than retry here —
		// the caller's poll loop will try again.
		return nil, nil
	}

	exec, err := scanByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return exec, nil
}

// ClaimTwoPhase is the fallback pattern spec §4.2/§9 documents for stores
// that lack an atomic update-returning statement: tentatively claim with a
// unique worker id, then verify ownership before advancing to running. Kept
// as real, tested code (not just a design-note aside) per SPEC_FULL.md §B.
func ClaimTwoPhase(ctx context.Context, db *sql.DB, workerID string, pid int) (*Execution, error) {
	now := time.Now().UTC()

	// Phase 1: tentatively tag one queued row with our worker id, without
	// yet changing its status — this is the "tentative claim" step.
	res, err := db.ExecContext(ctx, `
		UPDATE executions SET worker_id = ?
		WHERE id = (
			SELECT id FROM executions
			WHERE status = 'queued' AND retry_count < max_retries AND worker_id IS NULL
			ORDER BY priority DESC, created_at ASC LIMIT 1
		) AND worker_id IS NULL`, workerID)
	if err != nil {
		return nil, fmt.Errorf("tentative claim: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}

	// Phase 2: verify we are the row's owner, then advance to running.
	var id string
	err = db.QueryRowContext(ctx, `SELECT id FROM executions WHERE worker_id = ? AND status = 'queued'`, workerID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("verify tentative claim: %w", err)
	}

	res, err = db.ExecContext(ctx, `
		UPDATE executions SET status = 'running', started_at = ?, claimed_at = ?, pid = ?
		WHERE id = ? AND worker_id = ? AND status = 'queued'`, now, now, pid, id, workerID)
	if err != nil {
		return nil, fmt.Errorf("advance tentative claim: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	exec, err := scanByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	return exec, tx.Commit()
}

func scanByID(ctx context.Context, tx *sql.Tx, id string) (*Execution, error) {
	var e Execution
	var status, language string
	err := tx.QueryRowContext(ctx, `
		SELECT id, session_id, code, language, code_hash, priority, status, worker_id, pid,
		       created_at, queued_at, claimed_at, started_at, completed_at, exit_code, error_message,
		       max_memory_mb, cpu_time_ms, wall_time_ms, output_file, error_file, overflow_file,
		       output_size_bytes, error_size_bytes, output_truncated, retry_count, max_retries
		FROM executions WHERE id = ?`, id,
	).Scan(&e.ID, &e.SessionID, &e.Code, &language, &e.CodeHash, &e.Priority, &status, &e.WorkerID, &e.PID,
		&e.CreatedAt, &e.QueuedAt, &e.ClaimedAt, &e.StartedAt, &e.CompletedAt, &e.ExitCode, &e.ErrorMessage,
		&e.MaxMemoryMB, &e.CPUTimeMS, &e.WallTimeMS, &e.OutputFile, &e.ErrorFile, &e.OverflowFile,
		&e.OutputSizeBytes, &e.ErrorSizeBytes, &e.OutputTruncated, &e.RetryCount, &e.MaxRetries)
	if err != nil {
		return nil, fmt.Errorf("scan execution: %w", err)
	}
	e.Status = Status(status)
	e.Language = Language(language)
	return &e, nil
}

// Complete finalizes a terminal row exactly once (E2: terminal states never
// transition again, enforced here by requiring status='running' in the WHERE).
func Complete(ctx context.Context, db *sql.DB, id string, status Status, exitCode *int, errMsg string, wallTimeMS int64) error {
	if !status.IsTerminal() {
		return fmt.Errorf("complete requires a terminal status, got %q", status)
	}
	now := time.Now().UTC()
	_, err := db.ExecContext(ctx, `
		UPDATE executions SET status = ?, completed_at = ?, exit_code = ?, error_message = ?, wall_time_ms = ?
		WHERE id = ? AND status = 'running'`, string(status), now, exitCode, nullIfEmpty(errMsg), wallTimeMS, id)
	if err != nil {
		return fmt.Errorf("complete execution: %w", err)
	}
	return nil
}

// UpdateOutputMeta records the size/truncation bookkeeping for an
// execution's captured output once the worker has finished streaming it;
// overflowFile is recorded only when output actually spilled past the
// inline cap (SPEC_FULL.md §B).
func UpdateOutputMeta(ctx context.Context, db *sql.DB, id string, outputSize, errorSize int64, truncated bool, overflowFile string) error {
	_, err := db.ExecContext(ctx, `
		UPDATE executions SET output_size_bytes = ?, error_size_bytes = ?, output_truncated = ?, overflow_file = ?
		WHERE id = ?`, outputSize, errorSize, truncated, overflowFile, id)
	if err != nil {
		return fmt.Errorf("update execution output meta: %w", err)
	}
	return nil
}

// RequeueStale resets rows stuck in running whose owning worker has not
// refreshed claimed_at (its heartbeat) within olderThan back to queued
// (incrementing retry_count), or to failed if retries are exhausted, per
// spec §4.2's stale-claim recovery. A live worker periodically touches
// claimed_at on its in-flight row (see internal/worker's heartbeat loop);
// that touch is the "live-worker heartbeat set" spec §4.2 describes, kept
// inside the executions table rather than a separate table, since spec §6
// fixes the table set exactly.
func RequeueStale(ctx context.Context, db *sql.DB, olderThan time.Duration) (requeued, failed int, err error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	rows, err := db.QueryContext(ctx, `
		SELECT id, retry_count, max_retries FROM executions
		WHERE status = 'running' AND claimed_at < ?`, cutoff)
	if err != nil {
		return 0, 0, fmt.Errorf("scan stale claims: %w", err)
	}
	type stale struct {
		id         string
		retryCount int
		maxRetries int
	}
	var candidates []stale
	for rows.Next() {
		var c stale
		if err := rows.Scan(&c.id, &c.retryCount, &c.maxRetries); err != nil {
			rows.Close()
			return 0, 0, err
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return 0, 0, err
	}
	rows.Close()

	for _, c := range candidates {
		if c.retryCount >= c.maxRetries {
			if err := Complete(ctx, db, c.id, StatusFailed, nil, "stale claim exceeded max retries", 0); err != nil {
				return requeued, failed, err
			}
			failed++
			continue
		}
		_, err := db.ExecContext(ctx, `
			UPDATE executions SET status = 'queued', worker_id = NULL, pid = NULL,
			       claimed_at = NULL, started_at = NULL, retry_count = retry_count + 1
			WHERE id = ? AND status = 'running'`, c.id)
		if err != nil {
			return requeued, failed, fmt.Errorf("requeue stale claim: %w", err)
		}
		requeued++
	}
	return requeued, failed, nil
}

// Heartbeat refreshes claimed_at on a worker's in-flight row, marking it
// live for RequeueStale's purposes.
func Heartbeat(ctx context.Context, db *sql.DB, id string) error {
	_, err := db.ExecContext(ctx, `UPDATE executions SET claimed_at = ? WHERE id = ? AND status = 'running'`,
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("heartbeat execution: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
