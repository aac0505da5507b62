package memory

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

// scoreConstant normalizes the log10(access_count+1) term to roughly the
// unit interval for realistic access counts, per spec §4.1's "C normalizes
// to the unit interval".
const scoreConstant = 3.0

// computeScore implements spec §4.1's recommended scoring form:
//
//	score = 0.4*exp(-ageDays/7) + 0.4*log10(access_count+1)/C + 0.2*typeWeight
func computeScore(ageDays float64, accessCount int, memType string) float64 {
	typeWeight := 0.1
	if isPrivileged(memType) {
		typeWeight = 1.0
	}
	recency := 0.4 * math.Exp(-ageDays/7)
	frequency := 0.4 * math.Log10(float64(accessCount)+1) / scoreConstant
	return clamp01(recency + frequency + 0.2*typeWeight)
}

// StartRebalance launches the periodic tiering maintenance task (spec §4.1's
// "fixed cadence ~1hr" rebalance pass), grounded on the teacher's ticker
// loop with a stop channel (internal/store/reflection_worker.go).
func (m *Memory) StartRebalance(ctx context.Context) {
	if m.stopRebalance != nil {
		return
	}
	m.stopRebalance = make(chan struct{})
	m.doneRebalance = make(chan struct{})
	go m.runRebalanceLoop(ctx, m.stopRebalance, m.doneRebalance)
}

func (m *Memory) runRebalanceLoop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	interval := m.cfg.RebalanceInterval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Rebalance(ctx); err != nil {
				m.log.Warn("rebalance cycle failed", zap.Error(err))
			}
		}
	}
}

// Rebalance runs one pass of the §4.1 tiering policy: refresh scores, demote
// stale hot rows, promote high-scoring warm rows (keeping headroom), demote
// long-cold warm rows, then run emergency eviction if hot still overflows.
// Exported so the Orchestrator's init-time sweep and tests can invoke it
// synchronously, converging the hot tier to <=300 within one cycle (P3).
func (m *Memory) Rebalance(ctx context.Context) error {
	if err := m.refreshScores(ctx); err != nil {
		return fmt.Errorf("refresh scores: %w", err)
	}

	now := dbNow()
	if _, err := m.db.ExecContext(ctx, `
		UPDATE memories SET storage_tier = 'warm'
		WHERE storage_tier = 'hot' AND is_private = 0
		  AND type NOT IN (?, ?) AND accessed_at < ? AND memory_score < 0.7`,
		TypeUserPreferences, TypeSystemCritical, now.Add(-24*time.Hour)); err != nil {
		return fmt.Errorf("demote stale hot rows: %w", err)
	}

	hotCount, err := m.tierCount(ctx, TierHot)
	if err != nil {
		return err
	}
	ceiling := m.cfg.HotPromotionCeiling
	if ceiling <= 0 {
		ceiling = 250
	}
	if room := ceiling - hotCount; room > 0 {
		if _, err := m.db.ExecContext(ctx, `
			UPDATE memories SET storage_tier = 'hot'
			WHERE key IN (
				SELECT key FROM memories WHERE storage_tier = 'warm'
				ORDER BY memory_score DESC LIMIT ?
			)`, room); err != nil {
			return fmt.Errorf("promote warm rows: %w", err)
		}
	}

	if _, err := m.db.ExecContext(ctx, `
		UPDATE memories SET storage_tier = 'cold'
		WHERE storage_tier = 'warm' AND accessed_at < ? AND access_count < 5`,
		now.Add(-30*24*time.Hour)); err != nil {
		return fmt.Errorf("demote cold warm rows: %w", err)
	}

	return m.emergencyEvict(ctx)
}

// refreshScores recomputes memory_score for every non-privileged row using
// the §4.1 recency/frequency/type formula. Privileged rows keep whatever
// score their reads/writes have already nudged toward 1, since (M2) already
// pins their tier regardless of score.
func (m *Memory) refreshScores(ctx context.Context) error {
	rows, err := m.db.QueryContext(ctx, `
		SELECT key, accessed_at, access_count, type FROM memories
		WHERE type NOT IN (?, ?)`, TypeUserPreferences, TypeSystemCritical)
	if err != nil {
		return err
	}
	type update struct {
		key   string
		score float64
	}
	var updates []update
	now := dbNow()
	for rows.Next() {
		var key, memType string
		var accessedAt time.Time
		var accessCount int
		if err := rows.Scan(&key, &accessedAt, &accessCount, &memType); err != nil {
			rows.Close()
			return err
		}
		ageDays := now.Sub(accessedAt).Hours() / 24
		updates = append(updates, update{key: key, score: computeScore(ageDays, accessCount, memType)})
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, `UPDATE memories SET memory_score = ? WHERE key = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, u := range updates {
		if _, err := stmt.ExecContext(ctx, u.score, u.key); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// emergencyEvict enforces (M4): hot count <= capacity at steady state. It
// demotes the oldest-accessed, least-frequently-used non-privileged hot rows
// in bulk until the count is back at the cap.
func (m *Memory) emergencyEvict(ctx context.Context) error {
	capacity := m.cfg.HotCapacity
	if capacity <= 0 {
		capacity = 300
	}
	hotCount, err := m.tierCount(ctx, TierHot)
	if err != nil {
		return err
	}
	overflow := hotCount - capacity
	if overflow <= 0 {
		return nil
	}
	res, err := m.db.ExecContext(ctx, `
		UPDATE memories SET storage_tier = 'warm'
		WHERE key IN (
			SELECT key FROM memories
			WHERE storage_tier = 'hot' AND type NOT IN (?, ?) AND is_private = 0
			ORDER BY accessed_at ASC, access_count ASC
			LIMIT ?
		)`, TypeUserPreferences, TypeSystemCritical, overflow)
	if err != nil {
		return fmt.Errorf("emergency evict: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		m.log.Info("emergency eviction demoted hot rows", zap.Int64("count", n))
	}
	return nil
}

func (m *Memory) tierCount(ctx context.Context, tier Tier) (int, error) {
	var count int
	err := m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories WHERE storage_tier = ?`, string(tier)).Scan(&count)
	if err != nil && err != sql.ErrNoRows {
		return 0, err
	}
	return count, nil
}
