// internal/store/sqlite.go
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/valpere/GigScrapexter/internal/utils"
)

// sqliteDialect is the default backend: a single file, WAL mode so
// the CRUD app can read while a run is writing.
type sqliteDialect struct{}

func (sqliteDialect) name() string { return "sqlite" }

func (sqliteDialect) placeholder(n int) string { return "?" }

func (sqliteDialect) insertIgnore(table, columns, values, conflictKey string) string {
	return fmt.Sprintf("INSERT OR IGNORE INTO %s (%s) VALUES (%s)", table, columns, values)
}

func (sqliteDialect) schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS venues (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			created_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS bands (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			genre TEXT,
			created_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			venue_id INTEGER NOT NULL REFERENCES venues(id),
			date TEXT NOT NULL,
			title TEXT NOT NULL,
			open_time TEXT,
			start_time TEXT,
			price_text TEXT,
			source_url TEXT,
			created_at TIMESTAMP,
			UNIQUE(venue_id, date)
		)`,
		`CREATE TABLE IF NOT EXISTS bookings (
			event_id INTEGER NOT NULL REFERENCES events(id),
			band_id INTEGER NOT NULL REFERENCES bands(id),
			UNIQUE(event_id, band_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_date ON events(date)`,
	}
}

// OpenSQLite opens (creating if needed) a SQLite-backed store at path.
func OpenSQLite(path string, logger utils.Logger) (Store, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// SQLite serializes writers; extra connections just contend.
	db.SetMaxOpenConns(1)

	store, err := newSQLStore(db, sqliteDialect{}, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}
