// internal/store/store.go

// Package store persists validated events into the external CRUD
// application's database. All writes are idempotent: find-or-create
// for venues and bands, natural-key upsert for events, and a unique
// booking row per event/band pair, so re-scraping a page never
// duplicates rows. Database access is capped by a semaphore separate
// from the scraping worker pool; the database is a shared resource
// and scraping parallelism must not translate into write pressure.
package store

import (
	"context"
	"time"

	"github.com/valpere/GigScrapexter/pkg/types"
)

// Defaults applied when an event carries no explicit times. Doors at
// seven, music half past: the standard Tokyo live house evening.
const (
	DefaultOpenTime  = "19:00"
	DefaultStartTime = "19:30"

	// DBSemaphoreWidth caps concurrent database operations.
	DBSemaphoreWidth = 3

	// RecentWindow bounds what counts as recent venue activity.
	RecentWindow = 90 * 24 * time.Hour
)

// Store is the persistence interface the orchestrator writes through.
type Store interface {
	// FindOrCreateVenue returns the venue's ID, creating it if absent.
	FindOrCreateVenue(ctx context.Context, name string) (int64, error)

	// FindOrCreateBand returns the band's ID, creating it with the
	// genre hint if absent. The hint never overwrites an existing
	// band's genre.
	FindOrCreateBand(ctx context.Context, name, genreHint string) (int64, error)

	// UpsertEvent writes an event keyed on (venue, date). The boolean
	// reports whether a new row was created; an existing row is left
	// untouched.
	UpsertEvent(ctx context.Context, venueID int64, ev *types.Event) (int64, bool, error)

	// EnsureBooking links a band to an event, idempotently.
	EnsureBooking(ctx context.Context, eventID, bandID int64) error

	// RecentEventCount and TypicalWeekdays feed the confidence
	// engine's venue-history signals.
	RecentEventCount(venue string) int
	TypicalWeekdays(venue string) []time.Weekday

	// Ping verifies the database is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// semaphore is a counting semaphore over a buffered channel.
type semaphore chan struct{}

func newSemaphore(width int) semaphore {
	return make(semaphore, width)
}

func (s semaphore) acquire(ctx context.Context) error {
	select {
	case s <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s semaphore) release() {
	<-s
}
