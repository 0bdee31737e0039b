package keeper

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/sharedock/sharedock/injector/internal/button"
	"github.com/sharedock/sharedock/injector/internal/config"
	"github.com/sharedock/sharedock/relay"
)

const (
	recordURL  = "https://acme.lightning.force.com/lightning/r/Account/001ABCdef123456XYZ/view"
	recordURL2 = "https://acme.lightning.force.com/lightning/r/Contact/003ABCdef123456XYZ/view"
	listURL    = "https://acme.lightning.force.com/lightning/o/Account/list"
)

// fakeOps scripts the page surface. Not safe for concurrent use; tests
// drive the handler directly on one goroutine.
type fakeOps struct {
	url      string
	snapshot []byte
	state    string
	lang     string

	// dockResults are consumed one per InsertDocked call; an empty string
	// means "container not found". When exhausted, docking succeeds.
	dockResults []string
	// dockNone makes every dock attempt fail, a page whose container
	// selector never matches.
	dockNone bool

	dockCalls   int
	floatCalls  int
	removeCalls int
	notified    []string
	lastParams  button.Params
}

func (f *fakeOps) CurrentURL(ctx context.Context) (string, error) { return f.url, nil }
func (f *fakeOps) Snapshot(ctx context.Context) ([]byte, error)   { return f.snapshot, nil }
func (f *fakeOps) State(ctx context.Context) (string, error)      { return f.state, nil }

func (f *fakeOps) InsertDocked(ctx context.Context, p button.Params) (string, error) {
	f.dockCalls++
	f.lastParams = p
	if f.state != button.StateNone {
		return button.StateExisting, nil
	}
	if f.dockNone {
		return button.StateNone, nil
	}
	res := button.StateDocked
	if len(f.dockResults) > 0 {
		res = f.dockResults[0]
		f.dockResults = f.dockResults[1:]
	}
	if res == button.StateDocked {
		f.state = button.StateDocked
	}
	return res, nil
}

func (f *fakeOps) InsertFloating(ctx context.Context, p button.Params) (string, error) {
	f.floatCalls++
	if f.state != button.StateNone {
		return button.StateExisting, nil
	}
	f.state = button.StateFloating
	return button.StateFloating, nil
}

func (f *fakeOps) Remove(ctx context.Context) error {
	f.removeCalls++
	f.state = button.StateNone
	return nil
}

func (f *fakeOps) Notify(ctx context.Context, msg string) error {
	f.notified = append(f.notified, msg)
	return nil
}

func (f *fakeOps) BrowserLanguage(ctx context.Context) string {
	if f.lang == "" {
		return "en-US"
	}
	return f.lang
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestKeeper wires a keeper around the fake with fast timings and no
// reinsert window; tests that need the window override Timing themselves.
func newTestKeeper(t *testing.T, ops *fakeOps, r *relay.Relay, timing config.TimingConfig) *Keeper {
	t.Helper()
	if timing.DockRetry == 0 {
		timing.DockRetry = 10 * time.Millisecond
	}
	if timing.PollInterval == 0 {
		timing.PollInterval = time.Hour
	}
	if timing.SettleDelay == 0 {
		timing.SettleDelay = 5 * time.Millisecond
	}
	k := New(Config{
		Ops:   ops,
		Relay: r,
		Selectors: config.SelectorConfig{
			Lightning: "ul.oneActionsRibbon",
			Classic:   "td#topButtonRow",
		},
		Timing: timing,
		Logger: discard(),
	})
	k.ctx, k.cancel = context.WithCancel(context.Background())
	t.Cleanup(k.cancel)
	return k
}

func waitSig(t *testing.T, k *Keeper) signal {
	t.Helper()
	select {
	case s := <-k.sigCh:
		return s
	case <-time.After(time.Second):
		t.Fatal("expected a scheduled signal, got none")
		return signal{}
	}
}

func noSig(t *testing.T, k *Keeper, within time.Duration) {
	t.Helper()
	select {
	case s := <-k.sigCh:
		t.Fatalf("unexpected signal kind %d", s.kind)
	case <-time.After(within):
	}
}

func TestNavigateInsertsDocked(t *testing.T) {
	ops := &fakeOps{url: recordURL}
	k := newTestKeeper(t, ops, nil, config.TimingConfig{})

	k.handle(signal{kind: sigNavigate, url: recordURL})

	if ops.state != button.StateDocked {
		t.Fatalf("state = %q, want docked", ops.state)
	}
	if ops.dockCalls != 1 {
		t.Fatalf("dock calls = %d, want 1", ops.dockCalls)
	}
	if ops.lastParams.Container != "ul.oneActionsRibbon" {
		t.Errorf("container = %q", ops.lastParams.Container)
	}
	if ops.lastParams.Variant != button.VariantLightning {
		t.Errorf("variant = %q", ops.lastParams.Variant)
	}
	if ops.lastParams.Label == "" || ops.lastParams.Title == "" {
		t.Errorf("empty display strings: %+v", ops.lastParams)
	}
	if k.last.id != "001ABCdef123456XYZ" {
		t.Errorf("tracked id = %q", k.last.id)
	}
}

func TestRepeatedEnsureIsIdempotent(t *testing.T) {
	ops := &fakeOps{url: recordURL}
	k := newTestKeeper(t, ops, nil, config.TimingConfig{})

	k.handle(signal{kind: sigNavigate, url: recordURL})
	k.handle(signal{kind: sigPoll})
	k.handle(signal{kind: sigPoll})

	if ops.dockCalls != 1 {
		t.Fatalf("dock calls = %d, want 1 across repeated ensures", ops.dockCalls)
	}
	if ops.floatCalls != 0 {
		t.Fatalf("float calls = %d, want 0", ops.floatCalls)
	}
}

func TestIrrelevantPageGetsNothing(t *testing.T) {
	ops := &fakeOps{url: listURL}
	k := newTestKeeper(t, ops, nil, config.TimingConfig{})

	k.handle(signal{kind: sigNavigate, url: listURL})
	k.handle(signal{kind: sigPoll})

	if ops.dockCalls != 0 || ops.floatCalls != 0 {
		t.Fatalf("insert attempted on non-record page: dock=%d float=%d",
			ops.dockCalls, ops.floatCalls)
	}
}

func TestDockRetryThenFloatingFallback(t *testing.T) {
	ops := &fakeOps{url: recordURL, dockResults: []string{"", ""}}
	k := newTestKeeper(t, ops, nil, config.TimingConfig{})

	k.handle(signal{kind: sigNavigate, url: recordURL})
	if ops.dockCalls != 1 {
		t.Fatalf("dock calls = %d, want 1 before retry", ops.dockCalls)
	}

	s := waitSig(t, k)
	if s.kind != sigDockRetry {
		t.Fatalf("scheduled kind = %d, want dock retry", s.kind)
	}
	k.handle(s)

	if ops.dockCalls != 2 {
		t.Fatalf("dock calls = %d, want 2 after retry", ops.dockCalls)
	}
	if ops.floatCalls != 1 {
		t.Fatalf("float calls = %d, want exactly 1", ops.floatCalls)
	}
	if ops.state != button.StateFloating {
		t.Fatalf("state = %q, want floating", ops.state)
	}

	// The consumed retry does not reschedule itself; only a later failed
	// ensure would arm a new one.
	noSig(t, k, 50*time.Millisecond)
}

func TestNavigationRemovesAndReinserts(t *testing.T) {
	ops := &fakeOps{url: recordURL}
	k := newTestKeeper(t, ops, nil, config.TimingConfig{})

	k.handle(signal{kind: sigNavigate, url: recordURL})
	ops.url = recordURL2
	k.handle(signal{kind: sigNavigate, url: recordURL2})

	if ops.removeCalls < 1 {
		t.Fatal("navigation never removed the stale element")
	}
	if ops.dockCalls != 2 {
		t.Fatalf("dock calls = %d, want 2", ops.dockCalls)
	}
	if k.last.id != "003ABCdef123456XYZ" {
		t.Errorf("tracked id = %q after navigation", k.last.id)
	}
}

func TestNavigationSchedulesReinsertWindow(t *testing.T) {
	ops := &fakeOps{url: recordURL}
	timing := config.TimingConfig{
		ReinsertDelays: []time.Duration{time.Millisecond, 2 * time.Millisecond},
	}
	k := newTestKeeper(t, ops, nil, timing)

	k.handle(signal{kind: sigNavigate, url: recordURL})

	for i := 0; i < 2; i++ {
		if s := waitSig(t, k); s.kind != sigEnsure {
			t.Fatalf("signal %d kind = %d, want ensure", i, s.kind)
		}
	}
}

func TestMutationReinsertsAfterSettle(t *testing.T) {
	ops := &fakeOps{url: recordURL}
	k := newTestKeeper(t, ops, nil, config.TimingConfig{})

	k.handle(signal{kind: sigNavigate, url: recordURL})

	// Host re-render wiped the element without changing the URL.
	ops.state = button.StateNone
	k.handle(signal{kind: sigMutation, url: recordURL})

	s := waitSig(t, k)
	if s.kind != sigEnsure {
		t.Fatalf("kind = %d, want ensure", s.kind)
	}
	k.handle(s)

	if ops.state != button.StateDocked {
		t.Fatalf("state = %q, want docked after settle reinsert", ops.state)
	}
	if ops.dockCalls != 2 {
		t.Fatalf("dock calls = %d, want 2", ops.dockCalls)
	}
}

func TestRecoversAfterFloatingWiped(t *testing.T) {
	ops := &fakeOps{url: recordURL, dockNone: true}
	k := newTestKeeper(t, ops, nil, config.TimingConfig{})

	// Navigation: dock fails, the single deferred retry ends in floating.
	k.handle(signal{kind: sigNavigate, url: recordURL})
	s := waitSig(t, k)
	if s.kind != sigDockRetry {
		t.Fatalf("kind = %d, want dock retry", s.kind)
	}
	k.handle(s)
	if ops.state != button.StateFloating {
		t.Fatalf("state = %q, want floating", ops.state)
	}

	// Host re-render wipes the element on the same URL. The retry cycle
	// must run again and end in floating, not stall with nothing armed.
	ops.state = button.StateNone
	k.handle(signal{kind: sigMutation, url: recordURL})

	s = waitSig(t, k)
	if s.kind != sigEnsure {
		t.Fatalf("kind = %d, want ensure", s.kind)
	}
	k.handle(s)

	s = waitSig(t, k)
	if s.kind != sigDockRetry {
		t.Fatalf("kind = %d, want dock retry after wipe", s.kind)
	}
	k.handle(s)

	if ops.state != button.StateFloating {
		t.Fatalf("state = %q, want floating restored", ops.state)
	}
	if ops.floatCalls != 2 {
		t.Fatalf("float calls = %d, want 2", ops.floatCalls)
	}
}

func TestMutationKeepsDOMDerivedIdentifier(t *testing.T) {
	// The URL token is 16 chars, never a valid identifier; the id comes
	// from the snapshot only.
	domURL := "https://acme.lightning.force.com/lightning/r/Account/0123456789ABCDEF/view"
	snap := []byte(`<html><body><div data-recordid="001ABCdef123456XYZ"></div></body></html>`)
	ops := &fakeOps{url: domURL, snapshot: snap}
	k := newTestKeeper(t, ops, nil, config.TimingConfig{})

	k.handle(signal{kind: sigNavigate, url: domURL})
	if k.last.id != "001ABCdef123456XYZ" {
		t.Fatalf("tracked id = %q, want the DOM-derived value", k.last.id)
	}
	if ops.state != button.StateDocked {
		t.Fatalf("state = %q, want docked", ops.state)
	}

	// Pure mutations on the same URL must not read as a record change.
	k.handle(signal{kind: sigMutation, url: domURL})
	k.handle(signal{kind: sigMutation, url: domURL})

	if ops.removeCalls != 1 {
		t.Fatalf("remove calls = %d, want only the initial navigation's", ops.removeCalls)
	}
	if ops.dockCalls != 1 {
		t.Fatalf("dock calls = %d, want 1", ops.dockCalls)
	}
	if k.last.id != "001ABCdef123456XYZ" {
		t.Fatalf("tracked id = %q after mutations", k.last.id)
	}
}

func TestMutationWithElementPresentDoesNothing(t *testing.T) {
	ops := &fakeOps{url: recordURL}
	k := newTestKeeper(t, ops, nil, config.TimingConfig{})

	k.handle(signal{kind: sigNavigate, url: recordURL})
	k.handle(signal{kind: sigMutation, url: recordURL})

	noSig(t, k, 30*time.Millisecond)
	if ops.dockCalls != 1 {
		t.Fatalf("dock calls = %d, want 1", ops.dockCalls)
	}
}

func TestSettingsUpdateRebuilds(t *testing.T) {
	ops := &fakeOps{url: recordURL}
	k := newTestKeeper(t, ops, nil, config.TimingConfig{})

	k.handle(signal{kind: sigNavigate, url: recordURL})
	k.handle(signal{kind: sigSettings})

	if ops.removeCalls != 2 {
		t.Fatalf("remove calls = %d, want 2", ops.removeCalls)
	}
	if ops.dockCalls != 2 {
		t.Fatalf("dock calls = %d, want 2", ops.dockCalls)
	}
}

func TestClickSendsSharingURL(t *testing.T) {
	ops := &fakeOps{url: recordURL}
	r := relay.New(relay.WithLogger(discard()))

	got := make([]relay.Message, 0, 1)
	r.RegisterLocal(relay.TypeOpenSharing, func(ctx context.Context, msg relay.Message) error {
		got = append(got, msg)
		return nil
	})

	k := newTestKeeper(t, ops, r, config.TimingConfig{})
	k.handle(signal{kind: sigClick, url: recordURL})

	if len(got) != 1 {
		t.Fatalf("messages = %d, want 1", len(got))
	}
	want := "https://acme.lightning.force.com/p/share/CustomObjectSharingDetail?parentId=001ABCdef123456XYZ"
	if got[0].URL != want {
		t.Fatalf("sharing URL = %q, want %q", got[0].URL, want)
	}
	if len(ops.notified) != 0 {
		t.Errorf("unexpected notification: %v", ops.notified)
	}
}

func TestClickWithoutIdentifierNotifiesOnce(t *testing.T) {
	ops := &fakeOps{url: listURL, snapshot: []byte("<html><body></body></html>")}
	r := relay.New(relay.WithLogger(discard()))

	sent := 0
	r.RegisterLocal(relay.TypeOpenSharing, func(ctx context.Context, msg relay.Message) error {
		sent++
		return nil
	})

	k := newTestKeeper(t, ops, r, config.TimingConfig{})
	k.handle(signal{kind: sigClick, url: listURL})

	if sent != 0 {
		t.Fatalf("relay messages = %d, want 0", sent)
	}
	if len(ops.notified) != 1 {
		t.Fatalf("notifications = %d, want exactly 1", len(ops.notified))
	}
	if ops.notified[0] == "" {
		t.Fatal("empty notification text")
	}
}

func TestClickFallsBackToDOMIdentifier(t *testing.T) {
	snap := []byte(`<html><body><div data-recordid="001ABCdef123456XYZ"></div></body></html>`)
	ops := &fakeOps{url: listURL, snapshot: snap}
	r := relay.New(relay.WithLogger(discard()))

	var gotURL string
	r.RegisterLocal(relay.TypeOpenSharing, func(ctx context.Context, msg relay.Message) error {
		gotURL = msg.URL
		return nil
	})

	k := newTestKeeper(t, ops, r, config.TimingConfig{})
	k.handle(signal{kind: sigClick, url: listURL})

	if !strings.HasSuffix(gotURL, "parentId=001ABCdef123456XYZ") {
		t.Fatalf("sharing URL = %q", gotURL)
	}
	if !strings.HasPrefix(gotURL, "https://acme.lightning.force.com/") {
		t.Fatalf("sharing URL origin = %q", gotURL)
	}
}

func TestClassicPageUsesClassicParams(t *testing.T) {
	classicURL := "https://acme.my.salesforce.com/001ABCdef123456XYZ"
	ops := &fakeOps{url: classicURL}
	k := newTestKeeper(t, ops, nil, config.TimingConfig{})

	k.handle(signal{kind: sigNavigate, url: classicURL})

	if ops.dockCalls != 1 {
		t.Fatalf("dock calls = %d, want 1", ops.dockCalls)
	}
	if ops.lastParams.Variant != button.VariantClassic {
		t.Errorf("variant = %q, want classic", ops.lastParams.Variant)
	}
	if ops.lastParams.Container != "td#topButtonRow" {
		t.Errorf("container = %q", ops.lastParams.Container)
	}
}
