// Package memory implements C1: the tiered key/value memory store with
// full-text search. Grounded on the teacher's cold-storage access-tracking
// shape (internal/store/local_cold.go) generalized from one archival tier to
// spec §4.1's hot/warm/cold scoring model.
package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"brain/internal/brainerr"
	"brain/internal/config"
	"brain/internal/logging"
)

// Memory is the C1 component. Construct once at boot and hand out the
// pointer; all methods are safe for concurrent use (SQLite itself
// serializes writers, per the single-connection policy in internal/store).
type Memory struct {
	db  *sql.DB
	cfg config.MemoryConfig
	log *zap.Logger

	stopRebalance chan struct{}
	doneRebalance chan struct{}
}

// New constructs the Memory component.
func New(db *sql.DB, cfg config.MemoryConfig, log *zap.Logger) *Memory {
	return &Memory{db: db, cfg: cfg, log: logging.For(log, "memory")}
}

// Set upserts key with value, per spec §4.1.
func (m *Memory) Set(ctx context.Context, key string, value Document, opts SetOptions) error {
	plain, err := encodeDocument(value)
	if err != nil {
		return fmt.Errorf("%w: encode value: %v", brainerr.ErrUnknown, err)
	}
	if len(plain) > m.cfg.MaxValueBytes {
		return fmt.Errorf("%w: value is %d bytes, max %d", brainerr.ErrResource, len(plain), m.cfg.MaxValueBytes)
	}

	sum := checksumOf(plain)
	stored := plain
	compressed := false
	if len(plain) > m.cfg.CompressionThresholdBytes {
		if gz, err := compress(plain); err == nil {
			stored = gz
			compressed = true
		}
	}

	tier := TierWarm
	if isPrivileged(opts.Type) {
		tier = TierHot
	}
	tags := strings.Join(opts.Tags, ",")
	now := dbNow()

	return m.withRetry(ctx, func() error {
		tx, err := m.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		var existingScore float64
		err = tx.QueryRowContext(ctx, `SELECT memory_score FROM memories WHERE key = ?`, key).Scan(&existingScore)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			_, err = tx.ExecContext(ctx, `
				INSERT INTO memories(
					key, value, is_compressed, type, tags, created_at, updated_at, accessed_at,
					access_count, update_count, storage_tier, memory_score, size_bytes, checksum, is_private
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?, 0.5, ?, ?, ?)`,
				key, stored, compressed, opts.Type, tags, now, now, now, string(tier), len(plain), sum, opts.Private,
			)
			if err != nil {
				return fmt.Errorf("insert memory: %w", err)
			}
		case err != nil:
			return fmt.Errorf("check existing memory: %w", err)
		default:
			newScore := clamp01(0.9*existingScore + 0.1)
			_, err = tx.ExecContext(ctx, `
				UPDATE memories SET
					value = ?, is_compressed = ?, type = ?, tags = ?, updated_at = ?,
					update_count = update_count + 1, storage_tier = ?, memory_score = ?,
					size_bytes = ?, checksum = ?, is_private = ?
				WHERE key = ?`,
				stored, compressed, opts.Type, tags, now, string(tier), newScore, len(plain), sum, opts.Private, key,
			)
			if err != nil {
				return fmt.Errorf("update memory: %w", err)
			}
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		return nil
	})
}

// Get reads key, touching accessed_at/access_count/memory_score per spec §4.1(b).
// found is false (with nil error) when the key does not exist.
func (m *Memory) Get(ctx context.Context, key string) (entry Entry, found bool, err error) {
	err = m.withRetry(ctx, func() error {
		tx, txErr := m.db.BeginTx(ctx, nil)
		if txErr != nil {
			return txErr
		}
		defer tx.Rollback()

		var row memoryRow
		scanErr := tx.QueryRowContext(ctx, `
			SELECT key, value, is_compressed, type, tags, created_at, updated_at, accessed_at,
			       access_count, update_count, storage_tier, memory_score, checksum
			FROM memories WHERE key = ?`, key,
		).Scan(&row.key, &row.value, &row.compressed, &row.memType, &row.tags, &row.createdAt, &row.updatedAt,
			&row.accessedAt, &row.accessCount, &row.updateCount, &row.tier, &row.score, &row.checksum)
		if errors.Is(scanErr, sql.ErrNoRows) {
			found = false
			return nil
		}
		if scanErr != nil {
			return fmt.Errorf("read memory: %w", scanErr)
		}

		doc, plain, decErr := row.decode()
		if decErr != nil {
			return fmt.Errorf("%w: %v", brainerr.ErrIntegrity, decErr)
		}
		if checksumOf(plain) != row.checksum {
			return fmt.Errorf("%w: checksum mismatch for key %q", brainerr.ErrIntegrity, key)
		}

		newScore := clamp01(0.95*row.score + 0.05)
		now := dbNow()
		if _, err := tx.ExecContext(ctx, `
			UPDATE memories SET accessed_at = ?, access_count = access_count + 1, memory_score = ?
			WHERE key = ?`, now, newScore, key); err != nil {
			return fmt.Errorf("touch memory access: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}

		found = true
		entry = Entry{
			Key:         row.key,
			Value:       doc,
			Type:        row.memType,
			Tags:        splitTags(row.tags),
			Score:       newScore,
			Tier:        Tier(row.tier),
			CreatedAt:   row.createdAt,
			UpdatedAt:   row.updatedAt,
			AccessedAt:  now,
			AccessCount: row.accessCount + 1,
			UpdateCount: row.updateCount,
		}
		return nil
	})
	return entry, found, err
}

// Stats returns per-tier counts and total stored bytes.
func (m *Memory) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	rows, err := m.db.QueryContext(ctx, `SELECT storage_tier, COUNT(*), COALESCE(SUM(size_bytes),0) FROM memories GROUP BY storage_tier`)
	if err != nil {
		return s, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var tier string
		var count int
		var bytes int64
		if err := rows.Scan(&tier, &count, &bytes); err != nil {
			return s, err
		}
		s.TotalBytes += bytes
		switch Tier(tier) {
		case TierHot:
			s.HotCount = count
		case TierWarm:
			s.WarmCount = count
		case TierCold:
			s.ColdCount = count
		}
	}
	return s, rows.Err()
}

// Close stops the background rebalance loop if running.
func (m *Memory) Close() {
	if m.stopRebalance == nil {
		return
	}
	close(m.stopRebalance)
	select {
	case <-m.doneRebalance:
	case <-time.After(2 * time.Second):
	}
}

func dbNow() time.Time { return time.Now().UTC() }

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func splitTags(tags string) []string {
	if tags == "" {
		return nil
	}
	return strings.Split(tags, ",")
}

type memoryRow struct {
	key         string
	value       []byte
	compressed  bool
	memType     string
	tags        string
	createdAt   time.Time
	updatedAt   time.Time
	accessedAt  time.Time
	accessCount int
	updateCount int
	tier        string
	score       float64
	checksum    string
}

func (r memoryRow) decode() (Document, []byte, error) {
	plain := r.value
	if r.compressed {
		dec, err := decompress(r.value)
		if err != nil {
			return nil, nil, err
		}
		plain = dec
	}
	doc, err := decodeDocument(plain)
	if err != nil {
		return nil, nil, err
	}
	return doc, plain, nil
}
