// Package injector drives the sharing control into Salesforce tabs of a
// Chrome instance. It connects to (or launches) the browser, discovers tabs
// on configured hosts, and runs one keeper per matching tab to hold the
// control in place across the host UI's re-rendering and navigation.
//
// The injector decides which tabs matter; the keeper decides what happens
// inside each one.
package injector

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/go-rod/rod/lib/proto"

	"github.com/sharedock/sharedock/injector/internal/browser"
	"github.com/sharedock/sharedock/injector/internal/config"
	"github.com/sharedock/sharedock/injector/internal/keeper"
	"github.com/sharedock/sharedock/recordid"
	"github.com/sharedock/sharedock/relay"
	"github.com/sharedock/sharedock/settings"
)

// Injector is the top-level orchestrator. Create one per daemon.
type Injector struct {
	cfg    *config.Config
	mgr    *browser.Manager
	relay  *relay.Relay
	store  *settings.Store // optional; nil disables persistence
	logger *slog.Logger

	mu      sync.Mutex
	keepers map[proto.TargetTargetID]*keeper.Keeper

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates an Injector from configuration. store may be nil.
func New(cfg *config.Config, r *relay.Relay, store *settings.Store, logger *slog.Logger) *Injector {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.ApplyDefaults()

	mgr := browser.NewManager(browser.Config{
		RemoteURL: cfg.Browser.Remote,
		Headless:  cfg.Browser.Headless,
		Logger:    logger,
	})

	return &Injector{
		cfg:     cfg,
		mgr:     mgr,
		relay:   r,
		store:   store,
		logger:  logger,
		keepers: make(map[proto.TargetTargetID]*keeper.Keeper),
	}
}

// Start connects to the browser, registers the privileged message handlers,
// attaches to every matching open tab and begins watching for new ones.
func (inj *Injector) Start(ctx context.Context) error {
	inj.ctx, inj.cancel = context.WithCancel(ctx)

	b, err := inj.mgr.Start(inj.ctx)
	if err != nil {
		return fmt.Errorf("injector: start browser: %w", err)
	}

	// The privileged side of the activation path: a click in any tab lands
	// here and opens the sharing page in a fresh tab.
	inj.relay.RegisterLocal(relay.TypeOpenSharing, inj.handleOpenSharing)

	// Tabs the user already has open.
	pages, err := b.Pages()
	if err != nil {
		inj.logger.Warn("injector: list pages", "error", err)
	}
	for _, page := range pages {
		info, err := page.Info()
		if err != nil {
			continue
		}
		if inj.matchesHost(info.URL) {
			inj.attach(page.TargetID, info.URL)
		}
	}

	go inj.watchTargets()

	inj.logger.Info("injector: started",
		"hosts", inj.cfg.Hosts, "tabs", len(inj.keepers))
	return nil
}

// Open navigates a new tab to rawURL and attaches a keeper to it. Used when
// the daemon is asked to open a record page itself rather than waiting for
// the user to browse to one.
func (inj *Injector) Open(ctx context.Context, rawURL string) error {
	b := inj.mgr.Browser()
	if b == nil {
		return fmt.Errorf("injector: not started")
	}

	tab, err := browser.OpenPage(ctx, b, rawURL, inj.cfg.Browser.Stealth)
	if err != nil {
		return err
	}
	return inj.startKeeper(tab)
}

// Stop tears down every keeper and the browser connection.
func (inj *Injector) Stop() {
	inj.mu.Lock()
	for id, k := range inj.keepers {
		k.Stop()
		delete(inj.keepers, id)
	}
	inj.mu.Unlock()

	if inj.cancel != nil {
		inj.cancel()
	}
	inj.mgr.Close()
}

// watchTargets tracks tab lifecycle: attach to pages that arrive on (or
// navigate to) a configured host, drop keepers for closed tabs.
func (inj *Injector) watchTargets() {
	b := inj.mgr.Browser()

	b.Context(inj.ctx).EachEvent(
		func(e *proto.TargetTargetCreated) {
			if e.TargetInfo.Type != proto.TargetTargetInfoTypePage {
				return
			}
			if inj.matchesHost(e.TargetInfo.URL) {
				inj.attach(e.TargetInfo.TargetID, e.TargetInfo.URL)
			}
		},
		func(e *proto.TargetTargetInfoChanged) {
			// A tab created on about:blank reaches its host URL only here.
			if e.TargetInfo.Type != proto.TargetTargetInfoTypePage {
				return
			}
			if inj.matchesHost(e.TargetInfo.URL) {
				inj.attach(e.TargetInfo.TargetID, e.TargetInfo.URL)
			}
		},
		func(e *proto.TargetTargetDestroyed) {
			inj.detach(e.TargetID)
		},
	)()
}

func (inj *Injector) attach(id proto.TargetTargetID, pageURL string) {
	inj.mu.Lock()
	if _, ok := inj.keepers[id]; ok {
		inj.mu.Unlock()
		return
	}
	inj.mu.Unlock()

	b := inj.mgr.Browser()
	page, err := b.PageFromTarget(id)
	if err != nil {
		inj.logger.Warn("injector: attach to target", "target", id, "error", err)
		return
	}

	if err := inj.startKeeper(browser.Attach(page)); err != nil {
		inj.logger.Warn("injector: start keeper", "url", pageURL, "error", err)
		return
	}
	inj.logger.Info("injector: attached", "url", pageURL, "target", id)
}

func (inj *Injector) startKeeper(tab *browser.Tab) error {
	k := keeper.New(keeper.Config{
		Tab:       tab,
		Relay:     inj.relay,
		Settings:  inj.store,
		Selectors: inj.cfg.Selectors,
		Timing:    inj.cfg.Timing,
		Logger:    inj.logger,
	})
	if err := k.Start(inj.ctx); err != nil {
		return err
	}

	inj.mu.Lock()
	inj.keepers[tab.TargetID] = k
	inj.mu.Unlock()
	return nil
}

func (inj *Injector) detach(id proto.TargetTargetID) {
	inj.mu.Lock()
	k, ok := inj.keepers[id]
	if ok {
		delete(inj.keepers, id)
	}
	inj.mu.Unlock()

	if ok {
		k.Stop()
		inj.logger.Info("injector: detached", "target", id)
	}
}

// handleOpenSharing opens the sharing URL in a new tab and records the
// action. The originating page is never navigated.
func (inj *Injector) handleOpenSharing(ctx context.Context, msg relay.Message) error {
	err := inj.mgr.OpenTab(ctx, msg.URL)

	if inj.store != nil {
		status := "opened"
		if err != nil {
			status = "failed"
		}
		inj.store.LogAction(ctx, settings.ActionEntry{
			Action:   relay.TypeOpenSharing,
			RecordID: sharingRecordID(msg.URL),
			URL:      msg.URL,
			Status:   status,
		})
	}
	return err
}

// sharingRecordID recovers the record identifier from a sharing URL's
// parentId parameter; empty when absent or malformed.
func sharingRecordID(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	id := u.Query().Get("parentId")
	if !recordid.IsValid(id) {
		return ""
	}
	return id
}

// matchesHost reports whether rawURL's host falls under one of the
// configured host suffixes.
func (inj *Injector) matchesHost(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, suffix := range inj.cfg.Hosts {
		s := strings.ToLower(suffix)
		if host == strings.TrimPrefix(s, ".") || strings.HasSuffix(host, s) {
			return true
		}
	}
	return false
}
