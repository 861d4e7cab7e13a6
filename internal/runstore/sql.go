package runstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS calibration_runs (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	payload    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_calibration_runs_status ON calibration_runs(status);
`

const upsertRun = `
INSERT INTO calibration_runs (id, status, created_at, updated_at, payload)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	status = excluded.status,
	updated_at = excluded.updated_at,
	payload = excluded.payload
`

const selectRuns = `SELECT payload FROM calibration_runs ORDER BY created_at`

// SQLPersister stores runs as JSON payloads in sqlite or postgres.
type SQLPersister struct {
	db     *sql.DB
	driver string
}

// OpenSQL opens the database for driver "sqlite" or "postgres" and applies the schema.
func OpenSQL(driver, dsn string) (*SQLPersister, error) {
	switch driver {
	case "sqlite", "postgres":
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == "sqlite" {
		// a single writer avoids SQLITE_BUSY from the executor goroutines
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("set WAL mode: %w", err)
		}
	}
	p, err := NewSQLPersister(db, driver)
	if err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

// NewSQLPersister wraps an open database and creates the schema.
func NewSQLPersister(db *sql.DB, driver string) (*SQLPersister, error) {
	p := &SQLPersister{db: db, driver: driver}
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}
	return p, nil
}

// Save upserts the record
func (p *SQLPersister) Save(ctx context.Context, rec *Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", rec.ID, err)
	}
	_, err = p.db.ExecContext(ctx, p.rebind(upsertRun),
		rec.ID,
		string(rec.Status),
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		time.Now().UTC().Format(time.RFC3339Nano),
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("save run %s: %w", rec.ID, err)
	}
	return nil
}

// LoadAll returns every stored run, oldest first
func (p *SQLPersister) LoadAll(ctx context.Context) ([]*Record, error) {
	rows, err := p.db.QueryContext(ctx, selectRuns)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		var rec Record
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return nil, fmt.Errorf("decode run: %w", err)
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// Close closes the database
func (p *SQLPersister) Close() error {
	return p.db.Close()
}

// rebind rewrites ? placeholders into $n for postgres.
func (p *SQLPersister) rebind(query string) string {
	if p.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
