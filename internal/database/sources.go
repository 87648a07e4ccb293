package database

import (
	"database/sql"
	"time"
)

const sourceColumns = `id, name, url, source_type, is_active, respects_robots,
	requires_auth, auth_key_env, last_scraped`

// InsertSource adds a search source. Returns the ID on success, 0 if the URL
// is already configured.
func (db *DB) InsertSource(name, url, sourceType string, respectsRobots bool) (int64, error) {
	robots := 0
	if respectsRobots {
		robots = 1
	}
	result, err := db.conn.Exec(
		`INSERT INTO search_sources (name, url, source_type, respects_robots)
		VALUES (?, ?, ?, ?)`,
		name, url, sourceType, robots,
	)
	if err != nil {
		// Duplicate URL constraint
		return 0, nil //nolint: nilerr
	}
	return result.LastInsertId()
}

// GetActiveSources returns all sources enabled for automated search.
func (db *DB) GetActiveSources() ([]SearchSource, error) {
	rows, err := db.conn.Query(
		"SELECT " + sourceColumns + " FROM search_sources WHERE is_active = 1 ORDER BY id",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSources(rows)
}

// GetAllSources returns every configured source.
func (db *DB) GetAllSources() ([]SearchSource, error) {
	rows, err := db.conn.Query(
		"SELECT " + sourceColumns + " FROM search_sources ORDER BY id",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSources(rows)
}

// SetSourceActive toggles a source on or off.
func (db *DB) SetSourceActive(sourceID int64, active bool) error {
	v := 0
	if active {
		v = 1
	}
	_, err := db.conn.Exec(
		"UPDATE search_sources SET is_active = ? WHERE id = ?", v, sourceID,
	)
	return err
}

// TouchSourceScraped records that a scrape of the source was attempted now,
// regardless of whether the fetch succeeded.
func (db *DB) TouchSourceScraped(sourceID int64) error {
	_, err := db.conn.Exec(
		"UPDATE search_sources SET last_scraped = ? WHERE id = ?",
		time.Now().UTC().Format("2006-01-02 15:04:05"), sourceID,
	)
	return err
}

func scanSources(rows *sql.Rows) ([]SearchSource, error) {
	var sources []SearchSource
	for rows.Next() {
		var s SearchSource
		var active, robots, auth int
		if err := rows.Scan(&s.ID, &s.Name, &s.URL, &s.SourceType, &active, &robots,
			&auth, &s.AuthKeyEnv, &s.LastScraped); err != nil {
			return nil, err
		}
		s.IsActive = active != 0
		s.RespectsRobots = robots != 0
		s.RequiresAuth = auth != 0
		sources = append(sources, s)
	}
	return sources, rows.Err()
}
