package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cognicore/celldiag/pkg/celldiag/internalerr"
	"github.com/cognicore/celldiag/pkg/celldiag/signals"
	"github.com/cognicore/celldiag/pkg/celldiag/store"
)

const patternColumns = "event_id, pattern_id, type, axis, ts_ms, duration_ms, confidence, metrics, related_errors, context"

// sqliteStore implements store.Store on a single SQLite file.
type sqliteStore struct {
	db *sql.DB
}

// OpenSQLite opens a SQLite database with WAL mode enabled and creates the
// history table if needed.
func OpenSQLite(ctx context.Context, path string) (store.Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &sqliteStore{db: db}, nil
}

// Close closes the database connection
func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// initSchema creates tables if they don't exist
func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS detected_patterns (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id TEXT UNIQUE NOT NULL,
	pattern_id TEXT NOT NULL,
	type TEXT NOT NULL,
	axis TEXT,
	ts_ms INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	confidence REAL NOT NULL,
	metrics TEXT,
	related_errors TEXT,
	context TEXT
);

CREATE INDEX IF NOT EXISTS idx_detected_patterns_ts ON detected_patterns(ts_ms);
CREATE INDEX IF NOT EXISTS idx_detected_patterns_pattern ON detected_patterns(pattern_id, ts_ms);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// AppendPatterns inserts all records in one transaction.
func (s *sqliteStore) AppendPatterns(ctx context.Context, patterns ...store.DetectedPattern) error {
	if len(patterns) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO detected_patterns
	(event_id, pattern_id, type, axis, ts_ms, duration_ms, confidence, metrics, related_errors, context)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range patterns {
		if p.EventID == "" {
			return fmt.Errorf("append pattern %s: empty event id: %w", p.PatternID, internalerr.ErrInvalidInput)
		}
		metrics, err := encodeJSON(p.Metrics)
		if err != nil {
			return fmt.Errorf("encode metrics for %s: %w", p.EventID, err)
		}
		related, err := encodeJSON(p.RelatedErrors)
		if err != nil {
			return fmt.Errorf("encode related errors for %s: %w", p.EventID, err)
		}
		pctx, err := encodeJSON(p.Context)
		if err != nil {
			return fmt.Errorf("encode context for %s: %w", p.EventID, err)
		}

		_, err = stmt.ExecContext(ctx,
			p.EventID, p.PatternID, string(p.Type), p.Axis,
			p.Timestamp.UnixMilli(), p.Duration.Milliseconds(), p.Confidence,
			metrics, related, pctx)
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint") {
				return fmt.Errorf("append pattern event %s: %w", p.EventID, internalerr.ErrDuplicate)
			}
			return fmt.Errorf("insert pattern %s: %w", p.EventID, err)
		}
	}
	return tx.Commit()
}

// ListPatterns returns matching records ordered by timestamp.
func (s *sqliteStore) ListPatterns(ctx context.Context, f store.Filter) ([]store.DetectedPattern, error) {
	var (
		where []string
		args  []any
	)
	if f.PatternID != "" {
		where = append(where, "pattern_id = ?")
		args = append(args, f.PatternID)
	}
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(f.Type))
	}
	if !f.Since.IsZero() {
		where = append(where, "ts_ms >= ?")
		args = append(args, f.Since.UnixMilli())
	}
	if !f.Until.IsZero() {
		where = append(where, "ts_ms < ?")
		args = append(args, f.Until.UnixMilli())
	}

	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}
	var query string
	if f.Limit > 0 {
		// most recent N, returned oldest first
		query = `SELECT ` + patternColumns + ` FROM (
	SELECT seq, ` + patternColumns + ` FROM detected_patterns` + cond + `
	ORDER BY ts_ms DESC, seq DESC LIMIT ?
) ORDER BY ts_ms, seq`
		args = append(args, f.Limit)
	} else {
		query = `SELECT ` + patternColumns + ` FROM detected_patterns` + cond + ` ORDER BY ts_ms, seq`
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query patterns: %w", err)
	}
	defer rows.Close()

	var out []store.DetectedPattern
	for rows.Next() {
		var (
			p                      store.DetectedPattern
			typ                    string
			axis                   sql.NullString
			tsMS, durMS            int64
			metrics, related, pctx sql.NullString
		)
		if err := rows.Scan(&p.EventID, &p.PatternID, &typ, &axis, &tsMS, &durMS, &p.Confidence, &metrics, &related, &pctx); err != nil {
			return nil, fmt.Errorf("scan pattern: %w", err)
		}
		p.Type = signals.PatternType(typ)
		p.Axis = axis.String
		p.Timestamp = time.UnixMilli(tsMS).UTC()
		p.Duration = time.Duration(durMS) * time.Millisecond
		if err := decodeJSON(metrics, &p.Metrics); err != nil {
			return nil, fmt.Errorf("decode metrics for %s: %w", p.EventID, err)
		}
		if err := decodeJSON(related, &p.RelatedErrors); err != nil {
			return nil, fmt.Errorf("decode related errors for %s: %w", p.EventID, err)
		}
		if err := decodeJSON(pctx, &p.Context); err != nil {
			return nil, fmt.Errorf("decode context for %s: %w", p.EventID, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func encodeJSON(v any) (sql.NullString, error) {
	switch x := v.(type) {
	case map[string]float64:
		if len(x) == 0 {
			return sql.NullString{}, nil
		}
	case []string:
		if len(x) == 0 {
			return sql.NullString{}, nil
		}
	case map[string]any:
		if len(x) == 0 {
			return sql.NullString{}, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeJSON(s sql.NullString, dst any) error {
	if !s.Valid || s.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(s.String), dst)
}
