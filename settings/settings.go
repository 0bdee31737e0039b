// Package settings is the persistent collaborator for the injected control:
// a SQLite store holding the two-field language preference plus an audit log
// of sharing actions. The store is best-effort from the page path's point of
// view; callers fall back to browser-language detection when it is
// unavailable.
//
// The caller must blank-import a database/sql driver named "sqlite":
//
//	import _ "modernc.org/sqlite"
package settings

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/sharedock/sharedock/idgen"
)

// Preference modes.
const (
	ModeAuto   = "auto"   // follow the detected browser language
	ModeManual = "manual" // use the explicitly selected language
)

// Preference is the stored language preference.
type Preference struct {
	Mode     string `json:"mode"`
	Language string `json:"language"`
}

// Valid reports whether the preference is storable.
func (p Preference) Valid() bool {
	return p.Mode == ModeAuto || p.Mode == ModeManual
}

// Store is the settings database handle.
type Store struct {
	db    *sql.DB
	newID idgen.Generator
}

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator overrides the audit-entry ID generator.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(s *Store) { s.newID = gen }
}

// Open opens (or creates) the settings database at path, applying the
// production pragmas (WAL, busy_timeout, foreign_keys) and the schema.
func Open(path string, opts ...Option) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("settings: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("settings: open: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("settings: %s: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("settings: apply schema: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("settings: ping: %w", err)
	}

	// Timestamped audit IDs keep the entry_id ORDER BY tiebreak
	// chronological even when created_at collides within a second.
	s := &Store{db: db, newID: idgen.Prefixed("act_", idgen.Timestamped(idgen.NanoID(8)))}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the stored preference. A missing row yields the default
// {auto, ""} without error.
func (s *Store) Get(ctx context.Context) (Preference, error) {
	pref := Preference{Mode: ModeAuto}

	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM settings WHERE key IN ('mode', 'language')`)
	if err != nil {
		return pref, fmt.Errorf("settings: get: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return pref, fmt.Errorf("settings: scan: %w", err)
		}
		switch k {
		case "mode":
			pref.Mode = v
		case "language":
			pref.Language = v
		}
	}
	if err := rows.Err(); err != nil {
		return pref, fmt.Errorf("settings: get: %w", err)
	}
	if !pref.Valid() {
		pref.Mode = ModeAuto
	}
	return pref, nil
}

// Set stores the preference atomically.
func (s *Store) Set(ctx context.Context, pref Preference) error {
	if !pref.Valid() {
		return fmt.Errorf("settings: invalid mode %q", pref.Mode)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("settings: set: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	for k, v := range map[string]string{"mode": pref.Mode, "language": pref.Language} {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO settings (key, value, updated_at) VALUES (?,?,?)
			ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
			k, v, now); err != nil {
			return fmt.Errorf("settings: set %s: %w", k, err)
		}
	}
	return tx.Commit()
}

// ActionEntry is one recorded sharing action.
type ActionEntry struct {
	EntryID   string    `json:"entry_id"`
	Action    string    `json:"action"`
	RecordID  string    `json:"record_id"`
	URL       string    `json:"url"`
	Status    string    `json:"status"` // "opened", "failed"
	CreatedAt time.Time `json:"created_at"`
}

// LogAction records a sharing action. Errors are logged via slog but never
// propagate: a failing audit store must not block the page path.
func (s *Store) LogAction(ctx context.Context, entry ActionEntry) {
	if entry.EntryID == "" {
		entry.EntryID = s.newID()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO action_log (entry_id, action, record_id, url, status, created_at)
		VALUES (?,?,?,?,?,?)`,
		entry.EntryID, entry.Action, entry.RecordID, entry.URL, entry.Status,
		time.Now().Unix())
	if err != nil {
		slog.Warn("settings: action log failed", "error", err, "action", entry.Action)
	}
}

// RecentActions returns the newest entries, most recent first.
func (s *Store) RecentActions(ctx context.Context, limit int) ([]ActionEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT entry_id, action, record_id, url, status, created_at
		FROM action_log ORDER BY created_at DESC, entry_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("settings: recent actions: %w", err)
	}
	defer rows.Close()

	var out []ActionEntry
	for rows.Next() {
		var e ActionEntry
		var ts int64
		if err := rows.Scan(&e.EntryID, &e.Action, &e.RecordID, &e.URL, &e.Status, &ts); err != nil {
			return nil, fmt.Errorf("settings: scan action: %w", err)
		}
		e.CreatedAt = time.Unix(ts, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}
