// internal/statestore/statestore_test.go
package statestore

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(&Config{Dir: t.TempDir()}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return store
}

func TestSaveAndLoad(t *testing.T) {
	store := newTestStore(t)

	saved := map[string]string{"https://example.com": "moderate"}
	if err := store.Save("complexity", saved); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	var loaded map[string]string
	found, err := store.Load("complexity", &loaded)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !found {
		t.Fatal("expected document to exist")
	}
	if loaded["https://example.com"] != "moderate" {
		t.Errorf("expected moderate, got %q", loaded["https://example.com"])
	}
}

func TestLoadMissing(t *testing.T) {
	store := newTestStore(t)

	var v map[string]int
	found, err := store.Load("missing", &v)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if found {
		t.Error("expected missing document to report not found")
	}
}

func TestLoadCorruptDegradesToEmpty(t *testing.T) {
	store := newTestStore(t)

	path := filepath.Join(store.dir, "broken.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("writing corrupt file: %v", err)
	}

	var v map[string]int
	found, err := store.Load("broken", &v)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if found {
		t.Error("corrupt document should be treated as missing")
	}
}

func TestSessionLogTruncation(t *testing.T) {
	store, err := New(&Config{Dir: t.TempDir(), SessionLimit: 3}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		entry := SessionEntry{
			StartedAt:       time.Now(),
			Mode:            "test",
			TargetsPlanned:  i,
			TargetsComplete: i,
		}
		if err := store.AppendSession(entry); err != nil {
			t.Fatalf("AppendSession failed: %v", err)
		}
	}

	sessions, err := store.Sessions()
	if err != nil {
		t.Fatalf("Sessions failed: %v", err)
	}
	if len(sessions) != 3 {
		t.Fatalf("expected 3 sessions after truncation, got %d", len(sessions))
	}
	if sessions[0].TargetsPlanned != 2 {
		t.Errorf("expected oldest retained session to be run 2, got %d", sessions[0].TargetsPlanned)
	}
}
