// Command sharedock is the Salesforce sharing-shortcut daemon. It drives a
// Chrome instance over the DevTools protocol, keeps a "sharing" control on
// every record-detail tab, and opens the sharing page when it is clicked.
//
// Usage:
//
//	sharedock                                  # launch Chrome, watch Salesforce tabs
//	sharedock -attach ws://127.0.0.1:9222/...  # attach to a running Chrome
//	sharedock -url https://acme.lightning...   # open a record page and watch it
//	sharedock -config sharedock.yaml           # full configuration
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sharedock/sharedock/injector"
	"github.com/sharedock/sharedock/relay"
	"github.com/sharedock/sharedock/settings"
	"github.com/sharedock/sharedock/settingsapi"
)

func main() {
	configPath := flag.String("config", "", "path to sharedock.yaml config file")
	attachURL := flag.String("attach", "", "DevTools WebSocket URL of a running Chrome")
	openURL := flag.String("url", "", "record page to open and watch")
	headless := flag.Bool("headless", false, "launch Chrome without a window")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *attachURL, *openURL, *headless); err != nil {
		logger.Error("sharedock: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, attachURL, openURL string, headless bool) error {
	cfg := injector.DefaultConfig()
	if configPath != "" {
		loaded, err := injector.LoadConfigFile(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if attachURL != "" {
		cfg.Browser.Remote = attachURL
	}
	if headless {
		cfg.Browser.Headless = true
	}

	r := relay.New(relay.WithLogger(logger))

	// The store is best-effort: a broken database file degrades to the
	// browser-language defaults instead of keeping the daemon down.
	store, err := settings.Open(cfg.SettingsDB)
	if err != nil {
		logger.Warn("sharedock: settings store unavailable",
			"path", cfg.SettingsDB, "error", err)
		store = nil
	} else {
		defer store.Close()

		// Out-of-band database edits reach open tabs the same way HTTP
		// updates do.
		go store.Watch(ctx, settings.WatchOptions{
			Debounce: 200 * time.Millisecond,
			Logger:   logger,
		}, func() {
			r.Broadcast(relay.TypeSettingsUpdated)
		})
	}

	var srv *http.Server
	if store != nil {
		api := settingsapi.New(store, r, logger)
		srv = &http.Server{Addr: cfg.Listen, Handler: api.Router()}
		go func() {
			logger.Info("sharedock: settings API listening", "addr", cfg.Listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("sharedock: settings API failed", "error", err)
			}
		}()
	}

	inj := injector.New(cfg, r, store, logger)
	if err := inj.Start(ctx); err != nil {
		return err
	}

	if openURL != "" {
		if err := inj.Open(ctx, openURL); err != nil {
			logger.Error("sharedock: open url", "url", openURL, "error", err)
		}
	}

	<-ctx.Done()
	logger.Info("sharedock: shutting down")

	if srv != nil {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}
	inj.Stop()
	return nil
}
