package executions

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"brain/internal/brainerr"
	"brain/internal/config"
	"brain/internal/logging"
)

const truncationMarker = "\n[Output truncated]"

// Executions is the C2 server-side component.
type Executions struct {
	db  *sql.DB
	cfg config.ExecutionConfig
	log *zap.Logger
}

// New constructs the Executions component.
func New(db *sql.DB, cfg config.ExecutionConfig, log *zap.Logger) *Executions {
	return &Executions{db: db, cfg: cfg, log: logging.For(log, "executions")}
}

// Queue inserts a new queued row and returns its id, per spec §4.2. It never
// blocks on the worker: the row is simply inserted and control returns.
func (e *Executions) Queue(ctx context.Context, code string, language Language, sessionID string) (string, error) {
	if language == "" {
		language = DetectLanguage(code)
	}
	id := uuid.NewString()
	now := time.Now().UTC()
	hash := codeHash(code)
	priority := derivePriority(code)

	outDir := e.cfg.LogDir
	if outDir == "" {
		outDir = "."
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create execution log dir: %v", brainerr.ErrUnknown, err)
	}
	outputFile := outDir + "/" + id + ".out"
	errorFile := outDir + "/" + id + ".err"

	var sessionArg interface{}
	if sessionID != "" {
		sessionArg = sessionID
	}

	maxRetries := e.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	_, err := e.db.ExecContext(ctx, `
		INSERT INTO executions(
			id, session_id, code, language, code_hash, priority, status,
			created_at, queued_at, output_file, error_file, max_retries
		) VALUES (?, ?, ?, ?, ?, ?, 'queued', ?, ?, ?, ?, ?)`,
		id, sessionArg, code, string(language), hash, priority, now, now, outputFile, errorFile, maxRetries,
	)
	if err != nil {
		return "", fmt.Errorf("queue execution: %w", err)
	}
	return id, nil
}

// GetStatus returns lifecycle metadata only; it never reads the log files.
func (e *Executions) GetStatus(ctx context.Context, id string) (StatusView, bool, error) {
	var v StatusView
	var status string
	var claimedAt, startedAt, completedAt sql.NullTime
	var exitCode sql.NullInt64
	var errMsg sql.NullString

	err := e.db.QueryRowContext(ctx, `
		SELECT id, status, created_at, queued_at, claimed_at, started_at, completed_at,
		       exit_code, error_message, output_size_bytes, error_size_bytes, output_truncated
		FROM executions WHERE id = ?`, id,
	).Scan(&v.ID, &status, &v.CreatedAt, &v.QueuedAt, &claimedAt, &startedAt, &completedAt,
		&exitCode, &errMsg, &v.OutputSizeBytes, &v.ErrorSizeBytes, &v.OutputTruncated)
	if errors.Is(err, sql.ErrNoRows) {
		return StatusView{}, false, nil
	}
	if err != nil {
		return StatusView{}, false, fmt.Errorf("read execution status: %w", err)
	}
	v.Status = Status(status)
	if claimedAt.Valid {
		v.ClaimedAt = &claimedAt.Time
	}
	if startedAt.Valid {
		v.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		v.CompletedAt = &completedAt.Time
	}
	if exitCode.Valid {
		code := int(exitCode.Int64)
		v.ExitCode = &code
	}
	v.ErrorMessage = errMsg.String
	return v, true, nil
}

// GetOutput lazily opens output_file/error_file, appending the truncation
// marker to stdout when output_truncated is set, per spec §6.
func (e *Executions) GetOutput(ctx context.Context, id string) (Output, bool, error) {
	var outputFile, errorFile string
	var truncated bool
	err := e.db.QueryRowContext(ctx, `SELECT output_file, error_file, output_truncated FROM executions WHERE id = ?`, id).
		Scan(&outputFile, &errorFile, &truncated)
	if errors.Is(err, sql.ErrNoRows) {
		return Output{}, false, nil
	}
	if err != nil {
		return Output{}, false, fmt.Errorf("read execution files: %w", err)
	}

	stdout, err := readFileIfExists(outputFile)
	if err != nil {
		return Output{}, false, fmt.Errorf("%w: read output file: %v", brainerr.ErrUnknown, err)
	}
	stderr, err := readFileIfExists(errorFile)
	if err != nil {
		return Output{}, false, fmt.Errorf("%w: read error file: %v", brainerr.ErrUnknown, err)
	}
	if truncated {
		stdout += truncationMarker
	}
	return Output{Stdout: stdout, Stderr: stderr}, true, nil
}

// ListRecent returns recent executions for a session with a truncated code
// preview. An empty sessionID lists recent executions across all sessions.
func (e *Executions) ListRecent(ctx context.Context, sessionID string, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := e.db.QueryContext(ctx, `
		SELECT id, status, language, code, created_at, completed_at
		FROM executions WHERE (? = '' OR session_id = ?)
		ORDER BY created_at DESC LIMIT ?`, sessionID, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent executions: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var s Summary
		var status, language, code string
		var completedAt sql.NullTime
		if err := rows.Scan(&s.ID, &status, &language, &code, &s.CreatedAt, &completedAt); err != nil {
			return nil, err
		}
		s.Status = Status(status)
		s.Language = Language(language)
		s.CodePreview = truncatePreview(code, 120)
		if completedAt.Valid {
			s.CompletedAt = &completedAt.Time
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CancelStale bulk-marks running rows older than maxAge as timeout, per spec §4.2.
func (e *Executions) CancelStale(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	res, err := e.db.ExecContext(ctx, `
		UPDATE executions SET status = 'timeout',
		       error_message = 'execution exceeded wall-clock limit', completed_at = ?
		WHERE status = 'running' AND started_at < ?`, time.Now().UTC(), cutoff)
	if err != nil {
		return 0, fmt.Errorf("cancel stale executions: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func readFileIfExists(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func truncatePreview(code string, max int) string {
	if len(code) <= max {
		return code
	}
	return code[:max] + "..."
}

func codeHash(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}
