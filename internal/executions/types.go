// Package executions implements C2's durable job queue: server-side queue/status/
// output/cancel operations plus the atomic claim primitive shared with the
// worker process. Grounded on the teacher's ExecutionResult/timeout handling
// (internal/tactile/direct.go) and its cleanup-by-age bulk update pattern
// (internal/store/tool_cleanup.go).
package executions

import (
	"database/sql"
	"time"
)

// Status is an execution's lifecycle state, per spec §3.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusClaimed   Status = "claimed"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusTimeout   Status = "timeout"
)

// IsTerminal reports whether status is one of (E2)'s terminal states.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimeout:
		return true
	default:
		return false
	}
}

// Language is the execution's interpreter, per spec §4.2.
type Language string

const (
	LanguagePython Language = "python"
	LanguageShell  Language = "shell"
)

// Execution mirrors the executions table row, per spec §3.
type Execution struct {
	ID              string         `json:"id"`
	SessionID       sql.NullString `json:"session_id"`
	Code            string         `json:"code"`
	Language        Language       `json:"language"`
	CodeHash        string         `json:"code_hash"`
	Priority        int            `json:"priority"`
	Status          Status         `json:"status"`
	WorkerID        sql.NullString `json:"worker_id"`
	PID             sql.NullInt64  `json:"pid"`
	CreatedAt       time.Time      `json:"created_at"`
	QueuedAt        time.Time      `json:"queued_at"`
	ClaimedAt       sql.NullTime   `json:"claimed_at"`
	StartedAt       sql.NullTime   `json:"started_at"`
	CompletedAt     sql.NullTime   `json:"completed_at"`
	ExitCode        sql.NullInt64  `json:"exit_code"`
	ErrorMessage    sql.NullString `json:"error_message"`
	MaxMemoryMB     sql.NullInt64  `json:"max_memory_mb"`
	CPUTimeMS       sql.NullInt64  `json:"cpu_time_ms"`
	WallTimeMS      sql.NullInt64  `json:"wall_time_ms"`
	OutputFile      string         `json:"output_file"`
	ErrorFile       string         `json:"error_file"`
	OverflowFile    string         `json:"overflow_file"`
	OutputSizeBytes int64          `json:"output_size_bytes"`
	ErrorSizeBytes  int64          `json:"error_size_bytes"`
	OutputTruncated bool           `json:"output_truncated"`
	RetryCount      int            `json:"retry_count"`
	MaxRetries      int            `json:"max_retries"`
}

// StatusView is the lightweight response to GetStatus: lifecycle metadata
// only, never the large output bodies (spec §4.2).
type StatusView struct {
	ID              string     `json:"id"`
	Status          Status     `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	QueuedAt        time.Time  `json:"queued_at"`
	ClaimedAt       *time.Time `json:"claimed_at,omitempty"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	ExitCode        *int       `json:"exit_code,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	OutputSizeBytes int64      `json:"output_size_bytes"`
	ErrorSizeBytes  int64      `json:"error_size_bytes"`
	OutputTruncated bool       `json:"output_truncated"`
}

// Output is the lazily-read stdout/stderr pair from GetOutput.
type Output struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
}

// Summary is one row of ListRecent: execution metadata plus a truncated code preview.
type Summary struct {
	ID          string     `json:"id"`
	Status      Status     `json:"status"`
	Language    Language   `json:"language"`
	CodePreview string     `json:"code_preview"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
