// internal/statestore/statestore.go
package statestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/valpere/GigScrapexter/internal/utils"
)

// Default configuration constants
const (
	DefaultDirPerm      = 0o755
	DefaultFilePerm     = 0o644
	DefaultSessionLimit = 100
)

// Store persists small JSON state documents that must survive between
// runs: the complexity cache, blacklist sets, learned OCR preferences,
// rate limiter history and the session log. Each document is one file
// under the state directory. Corrupt or missing files degrade to empty
// state rather than failing the run.
type Store struct {
	dir          string
	sessionLimit int
	logger       utils.Logger
	mu           sync.Mutex
}

// Config configures the state store.
type Config struct {
	Dir          string `yaml:"dir" json:"dir"`
	SessionLimit int    `yaml:"session_limit" json:"session_limit"`
}

// New creates a state store rooted at the configured directory,
// creating it if necessary.
func New(config *Config, logger utils.Logger) (*Store, error) {
	if config == nil || config.Dir == "" {
		return nil, fmt.Errorf("state store requires a directory")
	}
	if logger == nil {
		logger = utils.NewLogger()
	}

	limit := config.SessionLimit
	if limit <= 0 {
		limit = DefaultSessionLimit
	}

	if err := os.MkdirAll(config.Dir, DefaultDirPerm); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	return &Store{
		dir:          config.Dir,
		sessionLimit: limit,
		logger:       logger.WithField("component", "statestore"),
	}, nil
}

// Load reads the named document into v. It returns false when the
// document does not exist or cannot be decoded; callers start from
// empty state in that case.
func (s *Store) Load(name string, v interface{}) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("reading state %s: %w", name, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		// A half-written or corrupt file is recoverable state loss,
		// not a fatal condition.
		s.logger.Warnf("state %s is corrupt, starting empty: %v", name, err)
		return false, nil
	}
	return true, nil
}

// Save writes the named document atomically via a temp file rename,
// so a crash mid-write never leaves a truncated document behind.
func (s *Store) Save(name string, v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding state %s: %w", name, err)
	}

	target := s.path(name)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, DefaultFilePerm); err != nil {
		return fmt.Errorf("writing state %s: %w", name, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("committing state %s: %w", name, err)
	}
	return nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

// SessionEntry records the outcome of one scraping run.
type SessionEntry struct {
	StartedAt       time.Time `json:"started_at"`
	Mode            string    `json:"mode"`
	TargetsPlanned  int       `json:"targets_planned"`
	TargetsComplete int       `json:"targets_completed"`
	Errors          int       `json:"errors"`
	EventsSaved     int       `json:"events_saved"`
	DurationMinutes float64   `json:"duration_minutes"`
}

// AppendSession appends a run record to the session log, keeping only
// the most recent entries.
func (s *Store) AppendSession(entry SessionEntry) error {
	var sessions []SessionEntry
	if _, err := s.Load("sessions", &sessions); err != nil {
		return err
	}

	sessions = append(sessions, entry)
	if len(sessions) > s.sessionLimit {
		sessions = sessions[len(sessions)-s.sessionLimit:]
	}
	return s.Save("sessions", sessions)
}

// Sessions returns the recorded run history, newest last.
func (s *Store) Sessions() ([]SessionEntry, error) {
	var sessions []SessionEntry
	if _, err := s.Load("sessions", &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}
