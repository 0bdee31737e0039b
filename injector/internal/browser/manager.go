// Package browser manages the Chrome the injector works against: connect to
// a user's running instance over the DevTools WebSocket, or launch a local
// one, and open new tabs for sharing URLs.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// Config configures the browser manager.
type Config struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via the rod launcher.
	RemoteURL string

	// Headless launches without a window. Ignored when RemoteURL is set.
	Headless bool

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager owns the rod browser handle.
type Manager struct {
	cfg    Config
	mu     sync.RWMutex
	brow   *rod.Browser
	lnch   *launcher.Launcher
	closed bool
}

// NewManager creates a Manager. Call Start to connect.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg}
}

// Start launches or connects to Chrome and returns the rod handle.
func (m *Manager) Start(ctx context.Context) (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, fmt.Errorf("browser: manager is closed")
	}

	log := m.cfg.Logger
	wsURL := m.cfg.RemoteURL

	if wsURL == "" {
		l := launcher.New().
			Headless(m.cfg.Headless).
			Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		m.lnch = l
		log.Info("browser: launched local chrome", "url", wsURL, "headless", m.cfg.Headless)
	} else {
		log.Info("browser: connecting to remote", "url", wsURL)
	}

	b := rod.New().Context(ctx).ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}

	m.brow = b
	return b, nil
}

// Browser returns the current rod handle. Thread-safe.
func (m *Manager) Browser() *rod.Browser {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.brow
}

// OpenTab opens url in a new browsing context. This is the terminal step of
// the openSharing path: the current page is never navigated.
func (m *Manager) OpenTab(ctx context.Context, url string) error {
	b := m.Browser()
	if b == nil {
		return fmt.Errorf("browser: no active browser")
	}

	page, err := b.Context(ctx).Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return fmt.Errorf("browser: open tab %s: %w", url, err)
	}

	// Bring the new tab to the front; a sharing dialog the user cannot see
	// might as well not have opened.
	if _, err := page.Context(ctx).Activate(); err != nil {
		m.cfg.Logger.Debug("browser: activate tab failed", "error", err)
	}
	return nil
}

// Close shuts down the connection and, when sharedock launched Chrome
// itself, the process.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true

	if m.brow != nil {
		m.brow.Close()
		m.brow = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
	return nil
}
