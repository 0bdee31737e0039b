// Package keeper runs the per-tab reaction loop: it watches one page for
// DOM mutations and client-side navigation and keeps exactly one injected
// sharing control present and correct on record-detail pages.
//
// One goroutine per tab serialises every reaction; mutation signals, timer
// callbacks and click handling never interleave mid-decision. Timers are
// fire-and-forget: a stale timer firing after a further navigation is fine
// because every handler re-checks current state before acting.
package keeper

import (
	"context"
	_ "embed"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/go-rod/rod/lib/proto"

	"github.com/sharedock/sharedock/i18n"
	"github.com/sharedock/sharedock/injector/internal/browser"
	"github.com/sharedock/sharedock/injector/internal/button"
	"github.com/sharedock/sharedock/injector/internal/config"
	"github.com/sharedock/sharedock/injector/internal/locator"
	"github.com/sharedock/sharedock/recordid"
	"github.com/sharedock/sharedock/relay"
	"github.com/sharedock/sharedock/settings"
)

//go:embed observer.js
var observerJS string

// SignalBinding is the CDP binding observer.js reports through.
const SignalBinding = "__sharedock_signal"

// evalTimeout bounds every in-page operation so a hung renderer cannot
// wedge the loop.
const evalTimeout = 5 * time.Second

// PageOps is the page surface the keeper drives. The rod-backed
// implementation is the only production one; tests substitute a fake.
type PageOps interface {
	CurrentURL(ctx context.Context) (string, error)
	Snapshot(ctx context.Context) ([]byte, error)
	State(ctx context.Context) (string, error)
	InsertDocked(ctx context.Context, p button.Params) (string, error)
	InsertFloating(ctx context.Context, p button.Params) (string, error)
	Remove(ctx context.Context) error
	Notify(ctx context.Context, msg string) error
	BrowserLanguage(ctx context.Context) string
}

// Config assembles a Keeper.
type Config struct {
	Tab       *browser.Tab // nil when Ops is provided directly
	Ops       PageOps      // defaults to the rod-backed ops over Tab
	Relay     *relay.Relay
	Settings  *settings.Store // optional; nil falls back to browser language
	Selectors config.SelectorConfig
	Timing    config.TimingConfig
	Logger    *slog.Logger
}

type signalKind int

const (
	sigNavigate signalKind = iota
	sigMutation
	sigPoll
	sigEnsure // settle and reinsert timers
	sigDockRetry
	sigClick
	sigSettings
)

type signal struct {
	kind signalKind
	url  string // navigate/click payload; empty = read from the page
}

// lastSeen is the loop's only mutable state: the previously observed URL
// and identifier, used purely for change detection.
type lastSeen struct {
	url string
	id  recordid.ID
}

// Keeper keeps the control alive on a single tab.
type Keeper struct {
	cfg    Config
	ops    PageOps
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	sigCh chan signal
	sub   <-chan relay.Message
	unsub func()

	last           lastSeen
	dockRetryArmed bool
	browserLang    string // cached after first read
}

// New creates a Keeper. Call Start to begin watching.
func New(cfg Config) *Keeper {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	ops := cfg.Ops
	if ops == nil && cfg.Tab != nil {
		ops = rodOps{tab: cfg.Tab}
	}
	return &Keeper{
		cfg:    cfg,
		ops:    ops,
		logger: cfg.Logger,
		sigCh:  make(chan signal, 64),
	}
}

// Start injects the page-side helpers, subscribes to signals and runs the
// reaction loop until ctx is cancelled or Stop is called.
func (k *Keeper) Start(ctx context.Context) error {
	k.ctx, k.cancel = context.WithCancel(ctx)

	if k.cfg.Tab != nil {
		if err := k.wireTab(); err != nil {
			k.cancel()
			return err
		}
	}

	if k.cfg.Relay != nil {
		k.sub, k.unsub = k.cfg.Relay.Subscribe()
	}

	// Process the initial page view as a navigation.
	k.enqueue(signal{kind: sigNavigate})

	go k.loop()
	return nil
}

// Stop tears the loop down. The injected element is left in place; the
// page owns its own lifetime from here.
func (k *Keeper) Stop() {
	if k.unsub != nil {
		k.unsub()
	}
	if k.cancel != nil {
		k.cancel()
	}
}

func (k *Keeper) wireTab() error {
	page := k.cfg.Tab.Page

	// Bindings survive cross-document navigation; evaluated scripts do not.
	if err := (proto.RuntimeAddBinding{Name: SignalBinding}).Call(page); err != nil {
		k.logger.Warn("keeper: add signal binding", "error", err)
	}
	if err := (proto.RuntimeAddBinding{Name: button.ClickBinding}).Call(page); err != nil {
		k.logger.Warn("keeper: add click binding", "error", err)
	}
	if err := (proto.PageEnable{}).Call(page); err != nil {
		k.logger.Warn("keeper: enable page events", "error", err)
	}

	go k.listenEvents()

	return k.installScripts()
}

// installScripts evaluates the helper bundle; runs at attach time and again
// after every full document load.
func (k *Keeper) installScripts() error {
	page := k.cfg.Tab.Page
	if err := locator.Install(page); err != nil {
		return err
	}
	if err := button.Install(page); err != nil {
		return err
	}
	if _, err := page.Eval(observerJS); err != nil {
		return err
	}
	return nil
}

// listenEvents receives binding calls and load events from the page and
// converts them into loop signals.
func (k *Keeper) listenEvents() {
	page := k.cfg.Tab.Page

	page.Context(k.ctx).EachEvent(
		func(e *proto.RuntimeBindingCalled) {
			switch e.Name {
			case SignalBinding:
				var payload struct {
					Kind string `json:"kind"`
					URL  string `json:"url"`
				}
				if err := json.Unmarshal([]byte(e.Payload), &payload); err != nil {
					k.logger.Debug("keeper: bad signal payload", "error", err)
					return
				}
				kind := sigMutation
				if payload.Kind == "navigate" {
					kind = sigNavigate
				}
				k.enqueue(signal{kind: kind, url: payload.URL})

			case button.ClickBinding:
				k.enqueue(signal{kind: sigClick, url: e.Payload})
			}
		},
		func(e *proto.PageLoadEventFired) {
			// Full document load wiped the evaluated helpers.
			if err := k.installScripts(); err != nil {
				k.logger.Warn("keeper: reinstall after load", "error", err)
			}
			k.enqueue(signal{kind: sigNavigate})
		},
	)()
}

func (k *Keeper) enqueue(s signal) {
	select {
	case k.sigCh <- s:
	case <-k.ctx.Done():
	default:
		// A full queue means a signal storm; dropping is safe, the poll
		// tick converges the state anyway.
	}
}

// after schedules an ensure signal; fire-and-forget by design.
func (k *Keeper) after(d time.Duration, kind signalKind) {
	time.AfterFunc(d, func() {
		select {
		case k.sigCh <- signal{kind: kind}:
		case <-k.ctx.Done():
		}
	})
}

func (k *Keeper) loop() {
	ticker := time.NewTicker(k.cfg.Timing.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-k.ctx.Done():
			return

		case s := <-k.sigCh:
			k.handle(s)

		case <-ticker.C:
			k.handle(signal{kind: sigPoll})

		case msg, ok := <-k.sub:
			if !ok {
				k.sub = nil
				continue
			}
			if msg.Type == relay.TypeSettingsUpdated {
				k.handle(signal{kind: sigSettings})
			}
		}
	}
}

// handle processes one signal to completion. It runs only on the loop
// goroutine.
func (k *Keeper) handle(s signal) {
	ctx, cancel := context.WithTimeout(k.ctx, evalTimeout)
	defer cancel()

	// A click is a user action: process it against the page as it is now,
	// before any navigation bookkeeping swallows it.
	if s.kind == sigClick {
		k.clicked(ctx, s.url)
		return
	}

	url := s.url
	if url == "" {
		if u, err := k.ops.CurrentURL(ctx); err == nil && u != "" {
			url = u
		} else {
			url = k.last.url
		}
	}
	id := k.extractID(ctx, s.kind, url)

	if url != k.last.url || id != k.last.id {
		k.navigated(ctx, url, id)
		return
	}

	switch s.kind {
	case sigMutation:
		// Something else changed the DOM. If our element survived there is
		// nothing to do; if it went missing, reinsert after the host's
		// re-render has had a moment to settle.
		if st, err := k.ops.State(ctx); err == nil && st == button.StateNone {
			k.after(k.cfg.Timing.SettleDelay, sigEnsure)
		}

	case sigPoll, sigEnsure, sigNavigate:
		k.ensureInserted(ctx, false)

	case sigDockRetry:
		// The armed retry has fired; a later miss on the same page starts a
		// fresh dock-retry cycle instead of silently giving up.
		k.dockRetryArmed = false
		k.ensureInserted(ctx, true)

	case sigSettings:
		// Display strings changed: rebuild from scratch.
		if err := k.ops.Remove(ctx); err != nil {
			k.logger.Debug("keeper: remove on settings update", "error", err)
		}
		k.ensureInserted(ctx, false)
	}
}

// navigated handles an observed URL or identifier change: tear the element
// down and re-run insertion now and across the reinsert window, absorbing
// the host's staggered re-rendering.
func (k *Keeper) navigated(ctx context.Context, url string, id recordid.ID) {
	k.logger.Info("keeper: navigation", "url", url, "record_id", string(id))

	k.last = lastSeen{url: url, id: id}
	k.dockRetryArmed = false

	if err := k.ops.Remove(ctx); err != nil {
		k.logger.Debug("keeper: remove on navigation", "error", err)
	}

	k.ensureInserted(ctx, false)
	for _, d := range k.cfg.Timing.ReinsertDelays {
		k.after(d, sigEnsure)
	}
}

// extractID recomputes the identifier for change detection. The DOM
// fallback costs a full snapshot, so mutation signals skip it: a pure
// mutation with an unchanged URL cannot have moved to a different record,
// so the previously resolved identifier stands. The navigate/poll paths
// stay authoritative.
func (k *Keeper) extractID(ctx context.Context, kind signalKind, url string) recordid.ID {
	if id, ok := recordid.FromURL(url); ok {
		return id
	}
	if kind == sigMutation {
		if url == k.last.url {
			return k.last.id
		}
		return ""
	}
	if recordid.Mode(url) == recordid.ModeNone {
		return ""
	}
	snap, err := k.ops.Snapshot(ctx)
	if err != nil {
		return ""
	}
	id, _ := recordid.FromDOM(snap)
	return id
}

// clicked runs the activation path: extract authoritatively, surface the
// error string when nothing is found, otherwise hand the sharing URL to
// the relay. The current page is never navigated.
func (k *Keeper) clicked(ctx context.Context, clickURL string) {
	url := clickURL
	if url == "" {
		url = k.last.url
	}

	var snap []byte
	if _, ok := recordid.FromURL(url); !ok {
		snap, _ = k.ops.Snapshot(ctx)
	}

	id, ok := recordid.Extract(url, snap)
	if !ok {
		str := k.strings(ctx)
		if err := k.ops.Notify(ctx, str.ErrorNoRecordID); err != nil {
			k.logger.Warn("keeper: notify failed", "error", err)
		}
		return
	}

	origin := recordid.Origin(url)
	if origin == "" {
		k.logger.Warn("keeper: no origin for click", "url", url)
		return
	}

	share := recordid.SharingURL(origin, id)
	k.logger.Info("keeper: open sharing", "record_id", string(id), "url", share)
	if k.cfg.Relay != nil {
		k.cfg.Relay.Send(ctx, relay.Message{Type: relay.TypeOpenSharing, URL: share})
	}
}

// strings resolves the display strings for the current page view. The
// settings store is best-effort; on any failure the browser language wins.
func (k *Keeper) strings(ctx context.Context) i18n.Strings {
	pref := settings.Preference{Mode: settings.ModeAuto}
	if k.cfg.Settings != nil {
		if p, err := k.cfg.Settings.Get(ctx); err == nil {
			pref = p
		} else {
			k.logger.Debug("keeper: settings unavailable", "error", err)
		}
	}

	if k.browserLang == "" {
		k.browserLang = k.ops.BrowserLanguage(ctx)
		if k.browserLang == "" {
			k.browserLang = i18n.BrowserLanguage()
		}
	}

	return i18n.Resolve(pref.Mode, pref.Language, k.browserLang)
}
