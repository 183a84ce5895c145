package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/toolgate-dev/toolgate/api"
)

// SQLiteStore is the durable audit backend, selected with
// audit_backend: sqlite. Unlike JSONLStore, queries see records from
// previous sessions.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the audit database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return nil, fmt.Errorf("creating audit database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening audit database: %w", err)
	}

	// Single connection: serialized-append discipline.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit database migration failed: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS decisions (
		id           TEXT PRIMARY KEY,
		ts           INTEGER NOT NULL,
		call_digest  TEXT,
		tool         TEXT,
		agent        TEXT,
		class        TEXT,
		layer        TEXT NOT NULL,
		approved     INTEGER NOT NULL,
		reason       TEXT,
		threat       TEXT,
		duration_ns  INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_decisions_ts ON decisions(ts);
	CREATE INDEX IF NOT EXISTS idx_decisions_tool ON decisions(tool);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Write(ctx context.Context, record *api.AuditRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO decisions (id, ts, call_digest, tool, agent, class, layer, approved, reason, threat, duration_ns)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.Timestamp.UnixNano(), record.CallDigest, record.Tool,
		record.Agent, string(record.Class), record.Layer, boolToInt(record.Approved),
		record.Reason, record.Threat, int64(record.Duration),
	)
	return err
}

func (s *SQLiteStore) Query(ctx context.Context, filter api.QueryFilter) ([]*api.AuditRecord, error) {
	query := `SELECT id, ts, call_digest, tool, agent, class, layer, approved, reason, threat, duration_ns
	          FROM decisions WHERE 1=1`
	var args []any

	if !filter.Since.IsZero() {
		query += " AND ts >= ?"
		args = append(args, filter.Since.UnixNano())
	}
	if !filter.Until.IsZero() {
		query += " AND ts <= ?"
		args = append(args, filter.Until.UnixNano())
	}
	if filter.Tool != "" {
		query += " AND tool = ?"
		args = append(args, filter.Tool)
	}
	if filter.Layer != "" {
		query += " AND layer = ?"
		args = append(args, filter.Layer)
	}
	if filter.DeniedOnly {
		query += " AND approved = 0"
	}
	query += " ORDER BY ts"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*api.AuditRecord
	for rows.Next() {
		var r api.AuditRecord
		var ts, durationNS int64
		var approved int
		var class string
		if err := rows.Scan(&r.ID, &ts, &r.CallDigest, &r.Tool, &r.Agent, &class,
			&r.Layer, &approved, &r.Reason, &r.Threat, &durationNS); err != nil {
			return nil, err
		}
		r.Timestamp = time.Unix(0, ts)
		r.Class = api.ResourceClass(class)
		r.Approved = approved != 0
		r.Duration = time.Duration(durationNS)
		results = append(results, &r)
	}
	return results, rows.Err()
}

func (s *SQLiteStore) Stats(ctx context.Context) (*api.AuditStats, error) {
	stats := &api.AuditStats{
		ByLayer: make(map[string]int),
		ByTool:  make(map[string]int),
	}

	rows, err := s.db.QueryContext(ctx, `SELECT layer, tool, approved, COUNT(*) FROM decisions GROUP BY layer, tool, approved`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var layer, tool string
		var approved, count int
		if err := rows.Scan(&layer, &tool, &approved, &count); err != nil {
			return nil, err
		}
		stats.Total += count
		if approved != 0 {
			stats.Approved += count
		} else {
			stats.Denied += count
		}
		if layer != "" {
			stats.ByLayer[layer] += count
		}
		if tool != "" {
			stats.ByTool[tool] += count
		}
	}
	return stats, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
