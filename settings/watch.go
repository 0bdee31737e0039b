package settings

import (
	"context"
	"log/slog"
	"time"
)

// WatchOptions tunes the change watcher.
type WatchOptions struct {
	// Interval is the polling frequency. Default: 1s.
	Interval time.Duration
	// Debounce is the quiet period after a change before onChange fires;
	// further changes reset the timer. 0 fires immediately.
	Debounce time.Duration
	Logger   *slog.Logger
}

func (o *WatchOptions) defaults() {
	if o.Interval <= 0 {
		o.Interval = time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// dataVersion reads PRAGMA data_version: it advances whenever another
// connection commits, which makes it a cheap cross-process change token.
func (s *Store) dataVersion(ctx context.Context) (int64, error) {
	var v int64
	err := s.db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&v)
	return v, err
}

// changeToken combines data_version with the settings rows' own
// updated_at maximum, so same-connection writes are also observed.
func (s *Store) changeToken(ctx context.Context) (int64, error) {
	dv, err := s.dataVersion(ctx)
	if err != nil {
		return 0, err
	}
	var maxUpdated int64
	if err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(updated_at), 0) FROM settings").Scan(&maxUpdated); err != nil {
		return 0, err
	}
	return dv<<32 ^ maxUpdated, nil
}

// Watch polls for settings changes until ctx is cancelled and calls
// onChange after each detected change (post-debounce). Out-of-band edits to
// the database file are picked up too, which is the point: the HTTP surface
// is not the only writer.
func (s *Store) Watch(ctx context.Context, opts WatchOptions, onChange func()) {
	opts.defaults()
	log := opts.Logger

	last, err := s.changeToken(ctx)
	if err != nil {
		log.Warn("settings: initial change token failed", "error", err)
	}

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	var debounceTimer *time.Timer
	var debounceCh <-chan time.Time

	log.Debug("settings: watch started", "interval", opts.Interval)

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case <-ticker.C:
			cur, err := s.changeToken(ctx)
			if err != nil {
				log.Warn("settings: change token failed", "error", err)
				continue
			}
			if cur == last {
				continue
			}
			last = cur
			if opts.Debounce <= 0 {
				onChange()
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.NewTimer(opts.Debounce)
			debounceCh = debounceTimer.C

		case <-debounceCh:
			debounceCh = nil
			onChange()
		}
	}
}
