package interaction

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// PatternStore persists pattern-based permission allowlist entries keyed
// by (pattern, scope), backed by SQLite — grounded on the teacher's use of
// mattn/go-sqlite3 + database/sql for local, single-process persistence
// (v2/session/store.go).
type PatternStore struct {
	mu         sync.Mutex
	db         *sql.DB
	sessionID  string // patterns saved with scope=session are valid only for this process's current session set
	logger     *slog.Logger
	sessionPat map[string]bool // fast in-memory mirror of scope=session rows for the active session
}

// OpenPatternStore opens (creating if needed) a SQLite-backed pattern
// store at path. Use ":memory:" for an ephemeral, test-only store.
func OpenPatternStore(path string, logger *slog.Logger) (*PatternStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open pattern store: %w", err)
	}
	const schema = `
CREATE TABLE IF NOT EXISTS permission_patterns (
	pattern    TEXT NOT NULL,
	scope      TEXT NOT NULL,
	session_id TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (pattern, scope, session_id)
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init pattern store schema: %w", err)
	}
	return &PatternStore{db: db, logger: logger, sessionPat: make(map[string]bool)}, nil
}

// Close releases the underlying database handle.
func (s *PatternStore) Close() error {
	return s.db.Close()
}

// Save records a (pattern, scope) grant. Scope "once" is never persisted —
// it only ever applies to the single request it was issued for and the
// caller should not have reached Save with it.
func (s *PatternStore) Save(pattern string, scope Scope, sessionID string) {
	if scope == ScopeOnce || pattern == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sessionKey := ""
	if scope == ScopeSession {
		sessionKey = sessionID
		s.sessionPat[pattern] = true
	}
	if _, err := s.db.Exec(
		`INSERT OR IGNORE INTO permission_patterns (pattern, scope, session_id) VALUES (?, ?, ?)`,
		pattern, string(scope), sessionKey,
	); err != nil {
		s.logger.Warn("interaction: failed to persist permission pattern", "pattern", pattern, "error", err)
	}
}

// Allows reports whether req is already covered by a saved pattern, trying
// from most specific (full token set) to broadest (empty prefix is never
// auto-checked — PatternAt(0) == "*" is reserved for explicit super-admin
// configuration, not auto-save).
func (s *PatternStore) Allows(req PermissionRequest) bool {
	tokens := req.Tokens()
	for k := len(tokens); k >= 1; k-- {
		candidate := req.PatternAt(k)
		if s.has(candidate) {
			return true
		}
	}
	return false
}

func (s *PatternStore) has(pattern string) bool {
	s.mu.Lock()
	if s.sessionPat[pattern] {
		s.mu.Unlock()
		return true
	}
	s.mu.Unlock()

	row := s.db.QueryRow(
		`SELECT 1 FROM permission_patterns WHERE pattern = ? AND scope = 'project' LIMIT 1`,
		pattern,
	)
	var one int
	return row.Scan(&one) == nil
}
