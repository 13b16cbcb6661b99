// internal/store/store_test.go
package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/valpere/GigScrapexter/pkg/types"
)

func openTestStore(t *testing.T) Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "gigs.db")
	s, err := OpenSQLite(path, nil)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPing(t *testing.T) {
	s := openTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestFindOrCreateVenueIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, err := s.FindOrCreateVenue(ctx, "Shimokitazawa Shelter")
	if err != nil {
		t.Fatalf("FindOrCreateVenue() error = %v", err)
	}
	second, err := s.FindOrCreateVenue(ctx, "Shimokitazawa Shelter")
	if err != nil {
		t.Fatalf("FindOrCreateVenue() second call error = %v", err)
	}
	if first != second {
		t.Errorf("venue IDs differ: %d vs %d", first, second)
	}

	other, err := s.FindOrCreateVenue(ctx, "Antiknock")
	if err != nil {
		t.Fatalf("FindOrCreateVenue() error = %v", err)
	}
	if other == first {
		t.Error("distinct venues share an ID")
	}
}

func TestFindOrCreateBandKeepsGenre(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, err := s.FindOrCreateBand(ctx, "Guitar Wolf", "garage rock")
	if err != nil {
		t.Fatalf("FindOrCreateBand() error = %v", err)
	}
	// A different hint on a later run must not create a second row
	// or overwrite the first genre.
	second, err := s.FindOrCreateBand(ctx, "Guitar Wolf", "punk")
	if err != nil {
		t.Fatalf("FindOrCreateBand() error = %v", err)
	}
	if first != second {
		t.Errorf("band IDs differ: %d vs %d", first, second)
	}

	sq := s.(*sqlStore)
	var genre string
	if err := sq.db.QueryRow("SELECT genre FROM bands WHERE id = ?", first).Scan(&genre); err != nil {
		t.Fatalf("reading genre: %v", err)
	}
	if genre != "garage rock" {
		t.Errorf("genre = %q, want the original hint", genre)
	}
}

func TestUpsertEventExistingRowWins(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	venueID, err := s.FindOrCreateVenue(ctx, "Den-atsu")
	if err != nil {
		t.Fatalf("FindOrCreateVenue() error = %v", err)
	}

	date := time.Date(2025, time.June, 10, 0, 0, 0, 0, time.Local)
	ev := &types.Event{
		Title:     "Night of Noise",
		Date:      date,
		OpenTime:  "18:30",
		StartTime: "19:00",
		SourceURL: "https://example.com/schedule",
	}

	id, created, err := s.UpsertEvent(ctx, venueID, ev)
	if err != nil {
		t.Fatalf("UpsertEvent() error = %v", err)
	}
	if !created {
		t.Error("first upsert reported created = false")
	}

	// Second scrape of the same page, with a retitled event: the
	// stored row (possibly hand-corrected) must be left alone.
	changed := &types.Event{Title: "NIGHT OF NOISE vol.2", Date: date}
	id2, created2, err := s.UpsertEvent(ctx, venueID, changed)
	if err != nil {
		t.Fatalf("UpsertEvent() second call error = %v", err)
	}
	if created2 {
		t.Error("second upsert reported created = true")
	}
	if id != id2 {
		t.Errorf("event IDs differ: %d vs %d", id, id2)
	}

	sq := s.(*sqlStore)
	var title string
	if err := sq.db.QueryRow("SELECT title FROM events WHERE id = ?", id).Scan(&title); err != nil {
		t.Fatalf("reading title: %v", err)
	}
	if title != "Night of Noise" {
		t.Errorf("title = %q, want original row preserved", title)
	}
}

func TestUpsertEventAppliesDefaultTimes(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	venueID, err := s.FindOrCreateVenue(ctx, "Milkyway")
	if err != nil {
		t.Fatalf("FindOrCreateVenue() error = %v", err)
	}

	ev := &types.Event{
		Title: "Acoustic Evening",
		Date:  time.Date(2025, time.July, 1, 0, 0, 0, 0, time.Local),
	}
	id, _, err := s.UpsertEvent(ctx, venueID, ev)
	if err != nil {
		t.Fatalf("UpsertEvent() error = %v", err)
	}

	sq := s.(*sqlStore)
	var open, start string
	err = sq.db.QueryRow("SELECT open_time, start_time FROM events WHERE id = ?", id).Scan(&open, &start)
	if err != nil {
		t.Fatalf("reading times: %v", err)
	}
	if open != DefaultOpenTime || start != DefaultStartTime {
		t.Errorf("times = %q/%q, want defaults %q/%q", open, start, DefaultOpenTime, DefaultStartTime)
	}
}

func TestEnsureBookingIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	venueID, _ := s.FindOrCreateVenue(ctx, "Shelter")
	bandID, _ := s.FindOrCreateBand(ctx, "Melt-Banana", "")
	eventID, _, err := s.UpsertEvent(ctx, venueID, &types.Event{
		Title: "Extreme Night",
		Date:  time.Date(2025, time.June, 20, 0, 0, 0, 0, time.Local),
	})
	if err != nil {
		t.Fatalf("UpsertEvent() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := s.EnsureBooking(ctx, eventID, bandID); err != nil {
			t.Fatalf("EnsureBooking() call %d error = %v", i+1, err)
		}
	}

	sq := s.(*sqlStore)
	var count int
	err = sq.db.QueryRow("SELECT COUNT(*) FROM bookings WHERE event_id = ? AND band_id = ?", eventID, bandID).Scan(&count)
	if err != nil {
		t.Fatalf("counting bookings: %v", err)
	}
	if count != 1 {
		t.Errorf("booking rows = %d, want 1", count)
	}
}

func TestVenueHistory(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	venueID, _ := s.FindOrCreateVenue(ctx, "Antiknock")

	// Two Fridays and one Saturday within the recent window, plus
	// one show far in the past.
	now := time.Now()
	friday := now
	for friday.Weekday() != time.Friday {
		friday = friday.AddDate(0, 0, 1)
	}
	dates := []time.Time{
		friday,
		friday.AddDate(0, 0, 7),
		friday.AddDate(0, 0, 1),
		now.AddDate(-1, 0, 0),
	}
	for i, d := range dates {
		_, _, err := s.UpsertEvent(ctx, venueID, &types.Event{
			Title: "Show",
			Date:  d,
		})
		if err != nil {
			t.Fatalf("UpsertEvent() %d error = %v", i, err)
		}
	}

	// The year-old show falls outside the window; upcoming dates
	// all count as recent activity.
	if count := s.RecentEventCount("Antiknock"); count != 3 {
		t.Errorf("RecentEventCount() = %d, want 3", count)
	}

	weekdays := s.TypicalWeekdays("Antiknock")
	found := false
	for _, wd := range weekdays {
		if wd == time.Friday {
			found = true
		}
		if wd == time.Saturday {
			t.Error("Saturday reported typical from a single show")
		}
	}
	if !found {
		t.Error("Friday not reported typical despite two shows")
	}
}

func TestDialectInsertIgnore(t *testing.T) {
	got := postgresDialect{}.insertIgnore("venues", "name", "$1", "name")
	want := "INSERT INTO venues (name) VALUES ($1) ON CONFLICT (name) DO NOTHING"
	if got != want {
		t.Errorf("postgres insertIgnore = %q, want %q", got, want)
	}

	got = sqliteDialect{}.insertIgnore("venues", "name", "?", "name")
	want = "INSERT OR IGNORE INTO venues (name) VALUES (?)"
	if got != want {
		t.Errorf("sqlite insertIgnore = %q, want %q", got, want)
	}
}

func TestLooksLikePostgres(t *testing.T) {
	tests := []struct {
		dsn  string
		want bool
	}{
		{"postgres://user@localhost/gigs", true},
		{"postgresql://user@localhost/gigs", true},
		{"host=localhost dbname=gigs", true},
		{"/var/lib/gigs/gigs.db", false},
		{"gigs.db", false},
	}
	for _, tt := range tests {
		if got := looksLikePostgres(tt.dsn); got != tt.want {
			t.Errorf("looksLikePostgres(%q) = %v, want %v", tt.dsn, got, tt.want)
		}
	}
}
