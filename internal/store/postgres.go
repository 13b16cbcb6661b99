// internal/store/postgres.go
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/valpere/GigScrapexter/internal/utils"
)

// postgresDialect backs the store with PostgreSQL for deployments
// where the CRUD app and the scraper share a server.
type postgresDialect struct{}

func (postgresDialect) name() string { return "postgres" }

func (postgresDialect) placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (postgresDialect) insertIgnore(table, columns, values, conflictKey string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO NOTHING",
		table, columns, values, conflictKey)
}

func (postgresDialect) schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS venues (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			created_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS bands (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			genre TEXT,
			created_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id BIGSERIAL PRIMARY KEY,
			venue_id BIGINT NOT NULL REFERENCES venues(id),
			date TEXT NOT NULL,
			title TEXT NOT NULL,
			open_time TEXT,
			start_time TEXT,
			price_text TEXT,
			source_url TEXT,
			created_at TIMESTAMPTZ,
			UNIQUE(venue_id, date)
		)`,
		`CREATE TABLE IF NOT EXISTS bookings (
			event_id BIGINT NOT NULL REFERENCES events(id),
			band_id BIGINT NOT NULL REFERENCES bands(id),
			UNIQUE(event_id, band_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_date ON events(date)`,
	}
}

// OpenPostgres opens a PostgreSQL-backed store from a lib/pq DSN.
func OpenPostgres(dsn string, logger utils.Logger) (Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	db.SetMaxOpenConns(DBSemaphoreWidth)

	store, err := newSQLStore(db, postgresDialect{}, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Open picks a backend from the DSN: "postgres://" or "host=" style
// strings go to PostgreSQL, anything else is a SQLite file path.
func Open(dsn string, logger utils.Logger) (Store, error) {
	if looksLikePostgres(dsn) {
		return OpenPostgres(dsn, logger)
	}
	return OpenSQLite(dsn, logger)
}

func looksLikePostgres(dsn string) bool {
	for _, prefix := range []string{"postgres://", "postgresql://", "host=", "dbname="} {
		if len(dsn) >= len(prefix) && dsn[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}
