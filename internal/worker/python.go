package worker

import "fmt"

// brainPreambleTemplate injects the read-only "brain" convenience object
// into a Python execution's namespace, per spec §4.2. It is a trust-based
// convenience, not a sandbox boundary: it opens the same SQLite file the
// server uses, in read-only mode, via Python's own stdlib sqlite3 module —
// no Go-side bridge process is needed since the store file is already
// shared across processes under WAL (spec §5's "shared-resource policy").
const brainPreambleTemplate = `
import sqlite3 as _brain_sqlite3

class _Brain:
    def __init__(self, db_path):
        self._conn = _brain_sqlite3.connect("file:" + db_path + "?mode=ro", uri=True)
        self._conn.row_factory = _brain_sqlite3.Row

    def query(self, sql, params=None):
        cur = self._conn.execute(sql, params or [])
        return [dict(row) for row in cur.fetchall()]

    def get_memories(self, limit=10):
        return self.query(
            "SELECT key, type, storage_tier, memory_score FROM memories "
            "WHERE storage_tier IN ('hot','warm') ORDER BY memory_score DESC LIMIT ?",
            [limit],
        )

    def search_memories(self, text):
        return self.query(
            "SELECT mem.key, mem.type FROM memories_fts "
            "JOIN memories mem ON mem.rowid = memories_fts.rowid "
            "WHERE memories_fts MATCH ? LIMIT 25",
            [text],
        )

brain = _Brain(%q)
`

func brainPreamble(dbPath string) string {
	return fmt.Sprintf(brainPreambleTemplate, dbPath)
}
