// Package sessions implements C3: ephemeral per-conversation session state.
// Grounded on the teacher's session row shape (internal/store/local_session.go)
// and create/touch/expire lifecycle (internal/session/executor.go), with the
// subagent-process-spawning half of the teacher's session executor dropped —
// Brain sessions are plain store-backed conversation state, not LLM handles.
package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
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

// Session is a single ephemeral conversation's state, per spec §3.
type Session struct {
	ID               string                 `json:"id"`
	UserID           string                 `json:"user_id"`
	StartedAt        time.Time              `json:"started_at"`
	LastAccessed     time.Time              `json:"last_accessed"`
	ExpiresAt        time.Time              `json:"expires_at"`
	Data             map[string]interface{} `json:"data"`
	InitialContext   map[string]interface{} `json:"initial_context"`
	IsActive         bool                   `json:"is_active"`
	TerminatedReason string                 `json:"terminated_reason,omitempty"`
	InteractionCount int                    `json:"interaction_count"`
}

// Sessions is the C3 component.
type Sessions struct {
	db  *sql.DB
	cfg config.SessionConfig
	log *zap.Logger

	stop chan struct{}
	done chan struct{}
}

// New constructs the Sessions component.
func New(db *sql.DB, cfg config.SessionConfig, log *zap.Logger) *Sessions {
	return &Sessions{db: db, cfg: cfg, log: logging.For(log, "sessions")}
}

// Create inserts a fresh session row, per spec §4.3. initialContext is the
// snapshot the Orchestrator assembled for this session's init call.
func (s *Sessions) Create(ctx context.Context, initialContext map[string]interface{}) (*Session, error) {
	now := time.Now().UTC()
	id := uuid.NewString()
	userID := os.Getenv("USER")
	if userID == "" {
		userID = "local"
	}
	timeout := s.cfg.Timeout
	if timeout <= 0 {
		timeout = 24 * time.Hour
	}

	sess := &Session{
		ID: id, UserID: userID, StartedAt: now, LastAccessed: now,
		ExpiresAt: now.Add(timeout), Data: map[string]interface{}{},
		InitialContext: initialContext, IsActive: true,
	}

	dataJSON, _ := json.Marshal(sess.Data)
	ctxJSON, err := json.Marshal(initialContext)
	if err != nil {
		return nil, fmt.Errorf("encode initial context: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sessions(id, user_id, started_at, last_accessed, expires_at, data, initial_context, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1)`,
		id, userID, now, now, sess.ExpiresAt, string(dataJSON), string(ctxJSON)); err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	if err := s.emitEvent(ctx, tx, id, "created", nil); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return sess, nil
}

// Get returns the session if active and unexpired, touching last_accessed.
// Per spec §4.3's failure semantics, a missing/expired session returns
// (nil, nil) rather than an error.
func (s *Sessions) Get(ctx context.Context, id string) (*Session, error) {
	now := time.Now().UTC()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	sess, err := s.scanActive(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, nil
	}

	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET last_accessed = ? WHERE id = ?`, now, id); err != nil {
		return nil, fmt.Errorf("touch session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	sess.LastAccessed = now
	return sess, nil
}

// Update replaces a session's data document wholesale (caller specifies the
// full replacement), advances last_accessed, and logs an "updated" event
// naming the changed keys. Per DESIGN.md's Open Question #1, updating a
// non-active session is an explicit failure, not a silent no-op.
func (s *Sessions) Update(ctx context.Context, id string, data map[string]interface{}) error {
	now := time.Now().UTC()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	sess, err := s.scanActive(ctx, tx, id)
	if err != nil {
		return err
	}
	if sess == nil {
		return fmt.Errorf("%w: session %q is not active", brainerr.ErrNotFound, id)
	}

	changed := changedKeys(sess.Data, data)
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode session data: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE sessions SET data = ?, last_accessed = ?, interaction_count = interaction_count + 1
		WHERE id = ?`, string(dataJSON), now, id); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if err := s.emitEvent(ctx, tx, id, "updated", map[string]interface{}{"changed_keys": changed}); err != nil {
		return err
	}
	return tx.Commit()
}

// Cleanup marks every expired, still-active session inactive with reason
// "expired" and returns how many rows were reaped. Idempotent (P11): a
// second call with no new expirations affects zero rows.
func (s *Sessions) Cleanup(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET is_active = 0, terminated_reason = 'expired'
		WHERE is_active = 1 AND expires_at < ?`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("cleanup sessions: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// StartCleanupLoop launches the periodic reaper (spec §4.4 step 5: ~5m cadence).
func (s *Sessions) StartCleanupLoop(ctx context.Context) {
	if s.stop != nil {
		return
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		interval := s.cfg.CleanupInterval
		if interval <= 0 {
			interval = 5 * time.Minute
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := s.Cleanup(ctx); err != nil {
					s.log.Warn("session cleanup failed", zap.Error(err))
				} else if n > 0 {
					s.log.Info("reaped expired sessions", zap.Int("count", n))
				}
			}
		}
	}()
}

// Close stops the cleanup loop if running.
func (s *Sessions) Close() {
	if s.stop == nil {
		return
	}
	close(s.stop)
	select {
	case <-s.done:
	case <-time.After(2 * time.Second):
	}
}

func (s *Sessions) scanActive(ctx context.Context, tx *sql.Tx, id string) (*Session, error) {
	var sess Session
	var dataJSON, ctxJSON string
	var terminated sql.NullString
	err := tx.QueryRowContext(ctx, `
		SELECT id, user_id, started_at, last_accessed, expires_at, data, initial_context,
		       is_active, terminated_reason, interaction_count
		FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.UserID, &sess.StartedAt, &sess.LastAccessed, &sess.ExpiresAt,
		&dataJSON, &ctxJSON, &sess.IsActive, &terminated, &sess.InteractionCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	if !sess.IsActive || !sess.ExpiresAt.After(time.Now().UTC()) {
		return nil, nil
	}
	sess.TerminatedReason = terminated.String
	if err := json.Unmarshal([]byte(dataJSON), &sess.Data); err != nil {
		return nil, fmt.Errorf("%w: decode session data: %v", brainerr.ErrIntegrity, err)
	}
	if err := json.Unmarshal([]byte(ctxJSON), &sess.InitialContext); err != nil {
		return nil, fmt.Errorf("%w: decode initial context: %v", brainerr.ErrIntegrity, err)
	}
	return &sess, nil
}

func (s *Sessions) emitEvent(ctx context.Context, tx *sql.Tx, sessionID, eventType string, detail map[string]interface{}) error {
	detailJSON, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("encode session event detail: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO session_events(session_id, event_type, detail, created_at)
		VALUES (?, ?, ?, ?)`, sessionID, eventType, string(detailJSON), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("emit session event: %w", err)
	}
	return nil
}

func changedKeys(old, new map[string]interface{}) []string {
	var changed []string
	for k, v := range new {
		oldV, existed := old[k]
		if !existed {
			changed = append(changed, k)
			continue
		}
		oldJSON, _ := json.Marshal(oldV)
		newJSON, _ := json.Marshal(v)
		if string(oldJSON) != string(newJSON) {
			changed = append(changed, k)
		}
	}
	for k := range old {
		if _, ok := new[k]; !ok {
			changed = append(changed, k)
		}
	}
	return changed
}
