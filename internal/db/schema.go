// Package db provides SQLite database management for CIRRUS. Two databases:
// cirrus.db (sessions, profiles, IdP URLs, SSO integrations) and
// cirrus-audit.db (append-only lifecycle event log).
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

const (
	MetadataDBFile = "cirrus.db"
	AuditDBFile    = "cirrus-audit.db"
)

// MetadataSchema defines all tables for the main database.
const MetadataSchema = `
PRAGMA journal_mode=WAL;
PRAGMA foreign_keys=ON;

-- Named profiles (AWS credentials-file profile labels)
CREATE TABLE IF NOT EXISTS named_profiles (
    id      TEXT PRIMARY KEY,
    name    TEXT NOT NULL UNIQUE
);

-- Identity-provider sign-in URLs for SAML federation
CREATE TABLE IF NOT EXISTS idp_urls (
    id      TEXT PRIMARY KEY,
    url     TEXT NOT NULL UNIQUE
);

-- AWS Identity Center portal connections
CREATE TABLE IF NOT EXISTS aws_sso_integrations (
    id                      TEXT PRIMARY KEY,
    alias                   TEXT NOT NULL,
    portal_url              TEXT NOT NULL,
    region                  TEXT NOT NULL,
    browser_opening         INTEGER DEFAULT 1,
    access_token_expiration TEXT  -- NULL while offline
);

-- Sessions (one row per configured credential source, all families)
CREATE TABLE IF NOT EXISTS sessions (
    id                  TEXT PRIMARY KEY,
    name                TEXT NOT NULL,
    type                TEXT NOT NULL,
    status              TEXT NOT NULL DEFAULT 'inactive',
    region              TEXT DEFAULT 'us-east-1',
    started_at          TEXT,
    last_stopped_at     TEXT,
    profile_id          TEXT REFERENCES named_profiles(id),
    role_arn            TEXT DEFAULT '',
    parent_session_id   TEXT REFERENCES sessions(id),
    role_session_name   TEXT DEFAULT '',
    idp_url_id          TEXT REFERENCES idp_urls(id),
    idp_arn             TEXT DEFAULT '',
    sso_integration_id  TEXT REFERENCES aws_sso_integrations(id),
    email               TEXT DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
CREATE INDEX IF NOT EXISTS idx_sessions_type ON sessions(type);
CREATE INDEX IF NOT EXISTS idx_sessions_profile ON sessions(profile_id);
CREATE INDEX IF NOT EXISTS idx_sessions_parent ON sessions(parent_session_id);
CREATE INDEX IF NOT EXISTS idx_sessions_idp_url ON sessions(idp_url_id);
CREATE INDEX IF NOT EXISTS idx_sessions_integration ON sessions(sso_integration_id);
`

// AuditSchema defines the append-only lifecycle event log table.
const AuditSchema = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS audit_log (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp       TEXT NOT NULL,
    session_id      TEXT DEFAULT '',
    event_type      TEXT NOT NULL,
    detail          TEXT DEFAULT '{}',
    record_hash     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_event_type ON audit_log(event_type);
CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_log(timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_session ON audit_log(session_id);
`

// OpenMetadataDB opens or creates the metadata database under dataDir.
func OpenMetadataDB(dataDir string) (*sql.DB, error) {
	dbPath := filepath.Join(dataDir, MetadataDBFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening metadata db: %w", err)
	}

	if _, err := db.Exec(MetadataSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing metadata schema: %w", err)
	}

	return db, nil
}

// OpenAuditDB opens or creates the append-only audit database under dataDir.
func OpenAuditDB(dataDir string) (*sql.DB, error) {
	dbPath := filepath.Join(dataDir, AuditDBFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening audit db: %w", err)
	}

	if _, err := db.Exec(AuditSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing audit schema: %w", err)
	}

	return db, nil
}

// EnsureDataDir creates the CIRRUS data directory.
func EnsureDataDir(path string) error {
	if err := os.MkdirAll(path, 0700); err != nil {
		return fmt.Errorf("creating directory %s: %w", path, err)
	}
	return nil
}
