package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS fault_records (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    device_type TEXT NOT NULL,
    manufacturer TEXT NOT NULL,
    model TEXT NOT NULL,
    fault_description TEXT NOT NULL,
    symptoms TEXT,
    error_codes TEXT,
    root_cause TEXT NOT NULL,
    solution TEXT NOT NULL,
    parts_required TEXT,
    estimated_repair_time TEXT,
    difficulty TEXT NOT NULL CHECK(difficulty IN ('easy', 'medium', 'hard', 'expert')),
    views INTEGER DEFAULT 0,
    helpful INTEGER DEFAULT 0,
    not_helpful INTEGER DEFAULT 0,
    provenance TEXT NOT NULL DEFAULT 'admin-entered'
        CHECK(provenance IN ('admin-entered', 'ai-synthesized', 'web-discovered')),
    source_document_id INTEGER,
    source_website TEXT,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS fault_links (
    fault_id INTEGER NOT NULL REFERENCES fault_records(id),
    linked_fault_id INTEGER NOT NULL,
    PRIMARY KEY (fault_id, linked_fault_id)
);

CREATE TABLE IF NOT EXISTS search_sources (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    url TEXT UNIQUE NOT NULL,
    source_type TEXT NOT NULL DEFAULT 'website'
        CHECK(source_type IN ('website', 'forum', 'manual', 'feed')),
    is_active INTEGER DEFAULT 1,
    respects_robots INTEGER DEFAULT 1,
    requires_auth INTEGER DEFAULT 0,
    auth_key_env TEXT,
    last_scraped TEXT
);

CREATE TABLE IF NOT EXISTS query_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    account_id INTEGER NOT NULL REFERENCES accounts(id),
    query_text TEXT NOT NULL,
    device_type TEXT,
    manufacturer TEXT,
    model TEXT,
    search_performed INTEGER DEFAULT 0,
    fault_ids TEXT,
    cost INTEGER DEFAULT 0,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS accounts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    role TEXT NOT NULL DEFAULT 'user' CHECK(role IN ('user', 'admin')),
    balance INTEGER DEFAULT 0,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS documents (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    owner_id INTEGER NOT NULL REFERENCES accounts(id),
    name TEXT NOT NULL,
    extracted_text TEXT NOT NULL,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_faults_device ON fault_records(device_type, manufacturer, model);
CREATE INDEX IF NOT EXISTS idx_faults_views ON fault_records(views);
CREATE INDEX IF NOT EXISTS idx_sources_active ON search_sources(is_active);
CREATE INDEX IF NOT EXISTS idx_history_account ON query_history(account_id);
CREATE INDEX IF NOT EXISTS idx_documents_owner ON documents(owner_id);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
