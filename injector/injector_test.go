package injector

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/sharedock/sharedock/relay"
	"github.com/sharedock/sharedock/settings"
)

func TestMatchesHost(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	inj := New(DefaultConfig(), relay.New(relay.WithLogger(logger)), nil, logger)

	cases := []struct {
		url  string
		want bool
	}{
		{"https://acme.lightning.force.com/lightning/r/Account/001ABCdef123456XYZ/view", true},
		{"https://acme.my.salesforce.com/001ABCdef123456XYZ", true},
		{"https://acme--dev.sandbox.my.salesforce.com/home", true},
		{"https://c.na1.visualforce.com/apex/Page", true},
		{"https://login.salesforce.com/", true},
		{"https://example.com/lightning/r/Account/001ABCdef123456XYZ/view", false},
		{"https://salesforce.com.evil.example/", false},
		{"about:blank", false},
		{"not a url", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := inj.matchesHost(tc.url); got != tc.want {
			t.Errorf("matchesHost(%q) = %v, want %v", tc.url, got, tc.want)
		}
	}
}

func TestHandleOpenSharingAuditsRecordID(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := settings.Open(filepath.Join(t.TempDir(), "sharedock.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	inj := New(DefaultConfig(), relay.New(relay.WithLogger(logger)), store, logger)

	// No browser is connected, so the open fails; the action is still
	// audited with the identifier recovered from the sharing URL.
	ctx := context.Background()
	msg := relay.Message{
		Type: relay.TypeOpenSharing,
		URL:  "https://acme.lightning.force.com/p/share/CustomObjectSharingDetail?parentId=001ABCdef123456XYZ",
	}
	if err := inj.handleOpenSharing(ctx, msg); err == nil {
		t.Fatal("expected error without a browser")
	}

	entries, err := store.RecentActions(ctx, 1)
	if err != nil {
		t.Fatalf("recent actions: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if entries[0].RecordID != "001ABCdef123456XYZ" {
		t.Errorf("record id = %q", entries[0].RecordID)
	}
	if entries[0].Status != "failed" {
		t.Errorf("status = %q", entries[0].Status)
	}
}

func TestSharingRecordID(t *testing.T) {
	cases := []struct {
		url  string
		want string
	}{
		{"https://acme.lightning.force.com/p/share/CustomObjectSharingDetail?parentId=001ABCdef123456XYZ", "001ABCdef123456XYZ"},
		{"https://acme.my.salesforce.com/p/share/CustomObjectSharingDetail?parentId=001ABCdef123456", "001ABCdef123456"},
		{"https://acme.my.salesforce.com/p/share/CustomObjectSharingDetail?parentId=tooShort", ""},
		{"https://acme.my.salesforce.com/p/share/CustomObjectSharingDetail", ""},
		{"::not a url::", ""},
	}
	for _, tc := range cases {
		if got := sharingRecordID(tc.url); got != tc.want {
			t.Errorf("sharingRecordID(%q) = %q, want %q", tc.url, got, tc.want)
		}
	}
}

func TestMatchesHostCustomList(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := DefaultConfig()
	cfg.Hosts = []string{".example.my.salesforce.com"}
	inj := New(cfg, relay.New(relay.WithLogger(logger)), nil, logger)

	if !inj.matchesHost("https://example.my.salesforce.com/home") {
		t.Error("exact host should match its own suffix entry")
	}
	if inj.matchesHost("https://other.my.salesforce.com/home") {
		t.Error("host outside the configured list matched")
	}
}
