package settings

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "settings.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGet_DefaultWhenEmpty(t *testing.T) {
	s := openTestStore(t)

	pref, err := s.Get(context.Background())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if pref.Mode != ModeAuto || pref.Language != "" {
		t.Errorf("default preference: got %+v", pref)
	}
}

func TestSetGet_Roundtrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	want := Preference{Mode: ModeManual, Language: "de"}
	if err := s.Set(ctx, want); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err := s.Get(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != want {
		t.Errorf("roundtrip: got %+v, want %+v", got, want)
	}

	// Overwrite.
	want = Preference{Mode: ModeAuto, Language: ""}
	if err := s.Set(ctx, want); err != nil {
		t.Fatalf("set again: %v", err)
	}
	got, err = s.Get(ctx)
	if err != nil {
		t.Fatalf("get again: %v", err)
	}
	if got != want {
		t.Errorf("overwrite: got %+v, want %+v", got, want)
	}
}

func TestSet_RejectsInvalidMode(t *testing.T) {
	s := openTestStore(t)
	if err := s.Set(context.Background(), Preference{Mode: "sometimes"}); err == nil {
		t.Fatal("set: expected error for invalid mode")
	}
}

func TestActionLog(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.LogAction(ctx, ActionEntry{
		Action:   "openSharing",
		RecordID: "001ABCdef123456XYZ",
		URL:      "https://x.my.salesforce.com/p/share/CustomObjectSharingDetail?parentId=001ABCdef123456XYZ",
		Status:   "opened",
	})
	s.LogAction(ctx, ActionEntry{Action: "openSharing", Status: "failed"})

	entries, err := s.RecentActions(ctx, 10)
	if err != nil {
		t.Fatalf("recent actions: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("recent actions: got %d entries", len(entries))
	}
	for _, e := range entries {
		if e.EntryID == "" {
			t.Error("entry without generated ID")
		}
	}
}

func TestWatch_DetectsChange(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan struct{}, 4)
	go s.Watch(ctx, WatchOptions{Interval: 20 * time.Millisecond}, func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})

	// Let the watcher seed its initial token.
	time.Sleep(60 * time.Millisecond)

	if err := s.Set(ctx, Preference{Mode: ModeManual, Language: "fr"}); err != nil {
		t.Fatalf("set: %v", err)
	}

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("watch: change not detected within 2s")
	}
}

func TestLogAction_DefaultEntryIDShape(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.LogAction(ctx, ActionEntry{Action: "openSharing", Status: "opened"})

	entries, err := s.RecentActions(ctx, 1)
	if err != nil {
		t.Fatalf("recent actions: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	id := entries[0].EntryID
	if !strings.HasPrefix(id, "act_") {
		t.Errorf("entry ID %q lacks act_ prefix", id)
	}
	// act_<UTC timestamp>_<nano id>
	if !strings.Contains(id, "Z_") {
		t.Errorf("entry ID %q lacks timestamp segment", id)
	}
}
