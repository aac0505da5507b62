package memory

import (
	"context"
	"fmt"
	"strings"
)

// Search runs an FTS-ranked keyword lookup per spec §4.1, restricted to
// hot/warm, non-private rows. Each whitespace-separated query term becomes a
// prefix term combined with OR; results are ordered by fts_rank * memory_score
// descending, ties broken on accessed_at desc. The index covers each row's
// key, type, tags and, for values stored uncompressed, the encoded value
// text; compressed values are matched on key, type and tags only.
func (m *Memory) Search(ctx context.Context, query string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	match := ftsMatchExpr(query)
	if match == "" {
		return nil, nil
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT mem.key, mem.value, mem.is_compressed, mem.type, mem.tags, mem.created_at,
		       mem.updated_at, mem.accessed_at, mem.access_count, mem.update_count,
		       mem.storage_tier, mem.memory_score, mem.checksum
		FROM memories_fts
		JOIN memories mem ON mem.rowid = memories_fts.rowid
		WHERE memories_fts MATCH ?
		  AND mem.storage_tier IN ('hot', 'warm')
		  AND mem.is_private = 0
		ORDER BY (bm25(memories_fts) * -1) * mem.memory_score DESC, mem.accessed_at DESC
		LIMIT ?`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("search memories: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var row memoryRow
		if err := rows.Scan(&row.key, &row.value, &row.compressed, &row.memType, &row.tags, &row.createdAt,
			&row.updatedAt, &row.accessedAt, &row.accessCount, &row.updateCount, &row.tier, &row.score, &row.checksum); err != nil {
			return nil, err
		}
		doc, plain, err := row.decode()
		if err != nil {
			continue // integrity failure on one row does not fail the whole search
		}
		if checksumOf(plain) != row.checksum {
			continue
		}
		out = append(out, Entry{
			Key: row.key, Value: doc, Type: row.memType, Tags: splitTags(row.tags),
			Score: row.score, Tier: Tier(row.tier), CreatedAt: row.createdAt,
			UpdatedAt: row.updatedAt, AccessedAt: row.accessedAt,
			AccessCount: row.accessCount, UpdateCount: row.updateCount,
		})
	}
	return out, rows.Err()
}

// ftsMatchExpr turns "foo bar" into `"foo"* OR "bar"*` for sqlite FTS5.
func ftsMatchExpr(query string) string {
	terms := strings.Fields(query)
	if len(terms) == 0 {
		return ""
	}
	parts := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ReplaceAll(t, `"`, "")
		if t == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf(`"%s"*`, t))
	}
	return strings.Join(parts, " OR ")
}

// TopForInit returns up to n memories for the Orchestrator's init context,
// per spec §4.1's priority ordering: (a) user_preferences, (b) the active
// project, (c) recently-accessed rows by score, (d) fill from warm by score.
// Never returns cold rows; never exceeds n.
func (m *Memory) TopForInit(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		n = 300
	}
	seen := make(map[string]bool, n)
	var out []Entry

	appendRows := func(query string, args ...interface{}) error {
		rows, err := m.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() && len(out) < n {
			var row memoryRow
			if err := rows.Scan(&row.key, &row.value, &row.compressed, &row.memType, &row.tags, &row.createdAt,
				&row.updatedAt, &row.accessedAt, &row.accessCount, &row.updateCount, &row.tier, &row.score, &row.checksum); err != nil {
				return err
			}
			if seen[row.key] {
				continue
			}
			doc, plain, err := row.decode()
			if err != nil || checksumOf(plain) != row.checksum {
				continue
			}
			seen[row.key] = true
			out = append(out, Entry{
				Key: row.key, Value: doc, Type: row.memType, Tags: splitTags(row.tags),
				Score: row.score, Tier: Tier(row.tier), CreatedAt: row.createdAt,
				UpdatedAt: row.updatedAt, AccessedAt: row.accessedAt,
				AccessCount: row.accessCount, UpdateCount: row.updateCount,
			})
		}
		return rows.Err()
	}

	const cols = `key, value, is_compressed, type, tags, created_at, updated_at, accessed_at, access_count, update_count, storage_tier, memory_score, checksum`

	// (a) all user_preferences.
	if err := appendRows(`SELECT `+cols+` FROM memories WHERE type = ? ORDER BY memory_score DESC`, TypeUserPreferences); err != nil {
		return nil, fmt.Errorf("top-for-init preferences: %w", err)
	}
	// (b) the single current active_project memory, if present.
	if len(out) < n {
		if err := appendRows(`SELECT `+cols+` FROM memories WHERE type = ? AND storage_tier IN ('hot','warm') ORDER BY updated_at DESC LIMIT 1`, TypeActiveProject); err != nil {
			return nil, fmt.Errorf("top-for-init active project: %w", err)
		}
	}
	// (c) everything accessed within the last 7 days, ranked by score.
	if len(out) < n {
		if err := appendRows(`
			SELECT `+cols+` FROM memories
			WHERE storage_tier IN ('hot','warm') AND accessed_at >= datetime('now', '-7 days')
			ORDER BY memory_score DESC LIMIT ?`, n-len(out)); err != nil {
			return nil, fmt.Errorf("top-for-init recent: %w", err)
		}
	}
	// (d) fill from warm by score.
	if len(out) < n {
		if err := appendRows(`
			SELECT `+cols+` FROM memories
			WHERE storage_tier = 'warm'
			ORDER BY memory_score DESC LIMIT ?`, n-len(out)); err != nil {
			return nil, fmt.Errorf("top-for-init fill: %w", err)
		}
	}
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}
