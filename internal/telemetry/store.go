package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store is the SQLite-backed telemetry sink. It satisfies the search
// engine's Recorder interface. Recording failures are logged and
// swallowed; telemetry must never make a query or scan fail.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (and if needed creates) the telemetry database at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create telemetry directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open telemetry database: %w", err)
	}
	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: logger}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	-- Latency histogram (aggregated daily)
	CREATE TABLE IF NOT EXISTS query_latency_stats (
		date TEXT NOT NULL,
		bucket TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (date, bucket)
	);

	-- Zero-result queries (circular buffer, max 100)
	CREATE TABLE IF NOT EXISTS zero_result_queries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		query TEXT NOT NULL,
		timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- One row per completed scan pass
	CREATE TABLE IF NOT EXISTS scan_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at TIMESTAMP NOT NULL,
		duration_ms INTEGER NOT NULL,
		files INTEGER NOT NULL,
		errors INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create telemetry schema: %w", err)
	}
	return nil
}

// RecordQuery records one query's latency bucket and, when it found
// nothing, remembers the query text for later inspection.
func (s *Store) RecordQuery(ctx context.Context, query string, results int, latency time.Duration) {
	date := time.Now().Format("2006-01-02")
	bucket := LatencyToBucket(latency)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO query_latency_stats (date, bucket, count)
		VALUES (?, ?, 1)
		ON CONFLICT(date, bucket) DO UPDATE SET count = count + 1
	`, date, string(bucket))
	if err != nil {
		s.logger.Warn("failed to record query latency", slog.String("error", err.Error()))
		return
	}

	if results == 0 {
		if err := s.addZeroResultQuery(ctx, query); err != nil {
			s.logger.Warn("failed to record zero-result query", slog.String("error", err.Error()))
		}
	}
}

func (s *Store) addZeroResultQuery(ctx context.Context, query string) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO zero_result_queries (query) VALUES (?)
	`, query); err != nil {
		return err
	}

	// Trim to the newest 100 entries.
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM zero_result_queries
		WHERE id NOT IN (
			SELECT id FROM zero_result_queries
			ORDER BY id DESC
			LIMIT 100
		)
	`)
	return err
}

// RecordScan appends one scan pass to the history.
func (s *Store) RecordScan(ctx context.Context, rec ScanRecord) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scan_history (started_at, duration_ms, files, errors)
		VALUES (?, ?, ?, ?)
	`, rec.StartedAt, rec.Duration.Milliseconds(), rec.Files, rec.Errors)
	if err != nil {
		s.logger.Warn("failed to record scan", slog.String("error", err.Error()))
	}
}

// LatencyCounts returns the latency distribution for a date range,
// dates formatted as 2006-01-02 inclusive.
func (s *Store) LatencyCounts(ctx context.Context, from, to string) (map[LatencyBucket]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT bucket, SUM(count) AS total
		FROM query_latency_stats
		WHERE date >= ? AND date <= ?
		GROUP BY bucket
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query latency counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[LatencyBucket]int64)
	for rows.Next() {
		var bucket string
		var count int64
		if err := rows.Scan(&bucket, &count); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		counts[LatencyBucket(bucket)] = count
	}
	return counts, rows.Err()
}

// ZeroResultQueries returns the most recent queries that found nothing,
// newest first.
func (s *Store) ZeroResultQueries(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT query
		FROM zero_result_queries
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query zero-result queries: %w", err)
	}
	defer rows.Close()

	var queries []string
	for rows.Next() {
		var q string
		if err := rows.Scan(&q); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		queries = append(queries, q)
	}
	return queries, rows.Err()
}

// ScanHistory returns the most recent scan passes, newest first.
func (s *Store) ScanHistory(ctx context.Context, limit int) ([]ScanRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT started_at, duration_ms, files, errors
		FROM scan_history
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query scan history: %w", err)
	}
	defer rows.Close()

	var records []ScanRecord
	for rows.Next() {
		var rec ScanRecord
		var durationMS int64
		if err := rows.Scan(&rec.StartedAt, &durationMS, &rec.Files, &rec.Errors); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
