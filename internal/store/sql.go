// internal/store/sql.go
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/valpere/GigScrapexter/internal/utils"
	"github.com/valpere/GigScrapexter/pkg/types"
)

// dialect abstracts the differences between the SQLite and PostgreSQL
// backends: placeholder style and conflict-ignoring insert syntax.
type dialect interface {
	name() string
	placeholder(n int) string
	insertIgnore(table, columns, values, conflictKey string) string
	schema() []string
}

// sqlStore implements Store over database/sql with a dialect.
type sqlStore struct {
	db      *sql.DB
	dialect dialect
	sem     semaphore
	logger  utils.Logger
}

func newSQLStore(db *sql.DB, d dialect, logger utils.Logger) (*sqlStore, error) {
	if logger == nil {
		logger = utils.NewLogger()
	}

	s := &sqlStore{
		db:      db,
		dialect: d,
		sem:     newSemaphore(DBSemaphoreWidth),
		logger:  logger.WithField("store", d.name()),
	}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *sqlStore) migrate() error {
	for _, stmt := range s.dialect.schema() {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	return nil
}

func (s *sqlStore) ph(n int) string { return s.dialect.placeholder(n) }

// FindOrCreateVenue returns the venue's ID, creating it if absent.
func (s *sqlStore) FindOrCreateVenue(ctx context.Context, name string) (int64, error) {
	if err := s.sem.acquire(ctx); err != nil {
		return 0, err
	}
	defer s.sem.release()

	var id int64
	query := fmt.Sprintf("SELECT id FROM venues WHERE name = %s", s.ph(1))
	err := s.db.QueryRowContext(ctx, query, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("looking up venue %q: %w", name, err)
	}

	insert := s.dialect.insertIgnore("venues", "name, created_at", fmt.Sprintf("%s, %s", s.ph(1), s.ph(2)), "name")
	if _, err := s.db.ExecContext(ctx, insert, name, time.Now().UTC()); err != nil {
		return 0, fmt.Errorf("creating venue %q: %w", name, err)
	}
	if err := s.db.QueryRowContext(ctx, query, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("re-reading venue %q: %w", name, err)
	}
	s.logger.Debugf("created venue %q (id %d)", name, id)
	return id, nil
}

// FindOrCreateBand returns the band's ID, creating it if absent.
func (s *sqlStore) FindOrCreateBand(ctx context.Context, name, genreHint string) (int64, error) {
	if err := s.sem.acquire(ctx); err != nil {
		return 0, err
	}
	defer s.sem.release()

	var id int64
	query := fmt.Sprintf("SELECT id FROM bands WHERE name = %s", s.ph(1))
	err := s.db.QueryRowContext(ctx, query, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("looking up band %q: %w", name, err)
	}

	insert := s.dialect.insertIgnore("bands", "name, genre, created_at",
		fmt.Sprintf("%s, %s, %s", s.ph(1), s.ph(2), s.ph(3)), "name")
	if _, err := s.db.ExecContext(ctx, insert, name, genreHint, time.Now().UTC()); err != nil {
		return 0, fmt.Errorf("creating band %q: %w", name, err)
	}
	if err := s.db.QueryRowContext(ctx, query, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("re-reading band %q: %w", name, err)
	}
	s.logger.Debugf("created band %q (id %d)", name, id)
	return id, nil
}

// UpsertEvent writes an event keyed on (venue, date). An existing
// row wins: re-scraping must not clobber manual corrections made in
// the CRUD app.
func (s *sqlStore) UpsertEvent(ctx context.Context, venueID int64, ev *types.Event) (int64, bool, error) {
	if err := s.sem.acquire(ctx); err != nil {
		return 0, false, err
	}
	defer s.sem.release()

	date := ev.Date.Format("2006-01-02")

	var id int64
	query := fmt.Sprintf("SELECT id FROM events WHERE venue_id = %s AND date = %s", s.ph(1), s.ph(2))
	err := s.db.QueryRowContext(ctx, query, venueID, date).Scan(&id)
	if err == nil {
		return id, false, nil
	}
	if err != sql.ErrNoRows {
		return 0, false, fmt.Errorf("looking up event: %w", err)
	}

	open := ev.OpenTime
	if open == "" {
		open = DefaultOpenTime
	}
	start := ev.StartTime
	if start == "" {
		start = DefaultStartTime
	}

	insert := s.dialect.insertIgnore("events",
		"venue_id, date, title, open_time, start_time, price_text, source_url, created_at",
		fmt.Sprintf("%s, %s, %s, %s, %s, %s, %s, %s",
			s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6), s.ph(7), s.ph(8)),
		"venue_id, date")
	if _, err := s.db.ExecContext(ctx, insert,
		venueID, date, ev.Title, open, start, ev.PriceText, ev.SourceURL, time.Now().UTC()); err != nil {
		return 0, false, fmt.Errorf("inserting event: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, query, venueID, date).Scan(&id); err != nil {
		return 0, false, fmt.Errorf("re-reading event: %w", err)
	}
	return id, true, nil
}

// EnsureBooking links a band to an event, idempotently.
func (s *sqlStore) EnsureBooking(ctx context.Context, eventID, bandID int64) error {
	if err := s.sem.acquire(ctx); err != nil {
		return err
	}
	defer s.sem.release()

	insert := s.dialect.insertIgnore("bookings", "event_id, band_id",
		fmt.Sprintf("%s, %s", s.ph(1), s.ph(2)), "event_id, band_id")
	if _, err := s.db.ExecContext(ctx, insert, eventID, bandID); err != nil {
		return fmt.Errorf("ensuring booking: %w", err)
	}
	return nil
}

// RecentEventCount counts the venue's events inside the recent
// window. Errors degrade to zero; history is advisory.
func (s *sqlStore) RecentEventCount(venue string) int {
	cutoff := time.Now().Add(-RecentWindow).Format("2006-01-02")
	query := fmt.Sprintf(`SELECT COUNT(*) FROM events e
		JOIN venues v ON v.id = e.venue_id
		WHERE v.name = %s AND e.date >= %s`, s.ph(1), s.ph(2))

	var count int
	if err := s.db.QueryRow(query, venue, cutoff).Scan(&count); err != nil {
		s.logger.Debugf("recent event count for %q: %v", venue, err)
		return 0
	}
	return count
}

// TypicalWeekdays returns weekdays on which the venue has hosted at
// least two shows.
func (s *sqlStore) TypicalWeekdays(venue string) []time.Weekday {
	query := fmt.Sprintf(`SELECT e.date FROM events e
		JOIN venues v ON v.id = e.venue_id
		WHERE v.name = %s`, s.ph(1))

	rows, err := s.db.Query(query, venue)
	if err != nil {
		return nil
	}
	defer rows.Close()

	counts := make(map[time.Weekday]int)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil || len(raw) < 10 {
			continue
		}
		if d, err := time.Parse("2006-01-02", raw[:10]); err == nil {
			counts[d.Weekday()]++
		}
	}

	var out []time.Weekday
	for wd, n := range counts {
		if n >= 2 {
			out = append(out, wd)
		}
	}
	return out
}

// Ping verifies the database is reachable.
func (s *sqlStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database.
func (s *sqlStore) Close() error {
	return s.db.Close()
}
