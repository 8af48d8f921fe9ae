package agent

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	// Pure-Go SQLite driver, imported for side effects (registers "sqlite").
	// No CGO keeps the agent trivially cross-compilable.
	_ "modernc.org/sqlite"

	"github.com/xkilldash9x/tabwire/internal/protocol"
)

// historyLimit caps one get-browser-recent-history result.
const historyLimit = 50

// HistoryStore records every navigation the agent performs and serves the
// recent-history queries. Headless Chrome exposes no history API, so the
// agent keeps its own record, persisted across restarts. Use ":memory:" for
// an in-memory store in tests.
type HistoryStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewHistoryStore opens or creates the history database at path and
// initializes its schema.
func NewHistoryStore(path string, logger *zap.Logger) (*HistoryStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("agent: open history database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("agent: ping history database: %w", err)
	}

	const schema = `
	CREATE TABLE IF NOT EXISTS history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		visited_ms INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_history_visited ON history (visited_ms DESC);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("agent: init history schema: %w", err)
	}

	return &HistoryStore{db: db, logger: logger.Named("history")}, nil
}

// Record stores one visited navigation. Failures are logged, not returned:
// history bookkeeping must never fail the navigation that triggered it.
func (h *HistoryStore) Record(ctx context.Context, url, title string) {
	_, err := h.db.ExecContext(ctx,
		`INSERT INTO history (url, title, visited_ms) VALUES (?, ?, ?)`,
		url, title, time.Now().UnixMilli())
	if err != nil {
		h.logger.Warn("Failed to record navigation", zap.String("url", url), zap.Error(err))
	}
}

// Search returns the most recent entries whose URL or title contains query
// (case-insensitive); an empty query matches everything.
func (h *HistoryStore) Search(ctx context.Context, query string) ([]protocol.HistoryItem, error) {
	pattern := "%" + query + "%"
	rows, err := h.db.QueryContext(ctx,
		`SELECT url, title, visited_ms FROM history
		 WHERE url LIKE ? OR title LIKE ?
		 ORDER BY visited_ms DESC, id DESC LIMIT ?`,
		pattern, pattern, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("agent: query history: %w", err)
	}
	defer rows.Close()

	var items []protocol.HistoryItem
	for rows.Next() {
		var item protocol.HistoryItem
		if err := rows.Scan(&item.URL, &item.Title, &item.LastVisitedMs); err != nil {
			return nil, fmt.Errorf("agent: scan history row: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("agent: iterate history rows: %w", err)
	}
	return items, nil
}

// Close releases the database handle.
func (h *HistoryStore) Close() error {
	return h.db.Close()
}
