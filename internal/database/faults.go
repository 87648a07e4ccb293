package database

import (
	"database/sql"
	"strings"
)

const faultColumns = `id, device_type, manufacturer, model, fault_description, symptoms,
	error_codes, root_cause, solution, parts_required, estimated_repair_time, difficulty,
	views, helpful, not_helpful, provenance, source_document_id, source_website, created_at`

// InsertFault inserts a new fault record and returns its ID.
func (db *DB) InsertFault(f *FaultRecord) (int64, error) {
	result, err := db.conn.Exec(
		`INSERT INTO fault_records (device_type, manufacturer, model, fault_description,
		symptoms, error_codes, root_cause, solution, parts_required, estimated_repair_time,
		difficulty, provenance, source_document_id, source_website)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.DeviceType, f.Manufacturer, f.Model, f.FaultDescription,
		f.Symptoms, f.ErrorCodes, f.RootCause, f.Solution, JoinParts(f.PartsRequired),
		f.EstimatedRepairTime, f.Difficulty, f.Provenance, f.SourceDocumentID, f.SourceWebsite,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetFaultByID returns a single fault record, or nil if not found.
func (db *DB) GetFaultByID(faultID int64) (*FaultRecord, error) {
	row := db.conn.QueryRow(
		"SELECT "+faultColumns+" FROM fault_records WHERE id = ?", faultID,
	)
	f, err := scanFault(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// SearchFaultDescriptions returns faults whose description contains any of the
// given tokens as a substring, ordered by descending view count. Matching is
// case-insensitive. An empty token list returns no rows.
func (db *DB) SearchFaultDescriptions(tokens []string, limit int) ([]FaultRecord, error) {
	if len(tokens) == 0 {
		return nil, nil
	}

	var clauses []string
	var args []any
	for _, tok := range tokens {
		clauses = append(clauses, "lower(fault_description) LIKE ?")
		args = append(args, "%"+strings.ToLower(tok)+"%")
	}
	args = append(args, limit)

	query := "SELECT " + faultColumns + ` FROM fault_records
		WHERE ` + strings.Join(clauses, " OR ") + `
		ORDER BY views DESC, id ASC LIMIT ?`

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFaults(rows)
}

// ListFaults returns fault records ordered by descending view count.
func (db *DB) ListFaults(limit, offset int) ([]FaultRecord, error) {
	rows, err := db.conn.Query(
		"SELECT "+faultColumns+" FROM fault_records ORDER BY views DESC, id ASC LIMIT ? OFFSET ?",
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFaults(rows)
}

// IncrementFaultViews bumps the view counter for a fault.
func (db *DB) IncrementFaultViews(faultID int64) error {
	_, err := db.conn.Exec(
		"UPDATE fault_records SET views = views + 1 WHERE id = ?", faultID,
	)
	return err
}

// RateFault increments the helpful or not_helpful counter for a fault.
func (db *DB) RateFault(faultID int64, helpful bool) error {
	column := "not_helpful"
	if helpful {
		column = "helpful"
	}
	_, err := db.conn.Exec(
		"UPDATE fault_records SET "+column+" = "+column+" + 1 WHERE id = ?", faultID,
	)
	return err
}

// LinkFaults records a weak reference between two faults. Linking the same
// pair twice is a no-op.
func (db *DB) LinkFaults(faultID, linkedFaultID int64) error {
	_, err := db.conn.Exec(
		"INSERT OR IGNORE INTO fault_links (fault_id, linked_fault_id) VALUES (?, ?)",
		faultID, linkedFaultID,
	)
	return err
}

// GetLinkedFaultIDs returns the IDs linked from a fault. Links are weak
// references and may point at records that no longer exist.
func (db *DB) GetLinkedFaultIDs(faultID int64) ([]int64, error) {
	rows, err := db.conn.Query(
		"SELECT linked_fault_id FROM fault_links WHERE fault_id = ? ORDER BY linked_fault_id",
		faultID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// JoinParts flattens a parts list to its comma-joined at-rest form.
func JoinParts(parts []string) string {
	return strings.Join(parts, ",")
}

// SplitParts parses the at-rest form back into a list. The round-trip is
// lossless as long as no part name contains a comma.
func SplitParts(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func scanFault(row *sql.Row) (*FaultRecord, error) {
	var f FaultRecord
	var parts *string
	if err := row.Scan(&f.ID, &f.DeviceType, &f.Manufacturer, &f.Model, &f.FaultDescription,
		&f.Symptoms, &f.ErrorCodes, &f.RootCause, &f.Solution, &parts, &f.EstimatedRepairTime,
		&f.Difficulty, &f.Views, &f.Helpful, &f.NotHelpful, &f.Provenance,
		&f.SourceDocumentID, &f.SourceWebsite, &f.CreatedAt); err != nil {
		return nil, err
	}
	if parts != nil {
		f.PartsRequired = SplitParts(*parts)
	}
	return &f, nil
}

func scanFaults(rows *sql.Rows) ([]FaultRecord, error) {
	var faults []FaultRecord
	for rows.Next() {
		var f FaultRecord
		var parts *string
		if err := rows.Scan(&f.ID, &f.DeviceType, &f.Manufacturer, &f.Model, &f.FaultDescription,
			&f.Symptoms, &f.ErrorCodes, &f.RootCause, &f.Solution, &parts, &f.EstimatedRepairTime,
			&f.Difficulty, &f.Views, &f.Helpful, &f.NotHelpful, &f.Provenance,
			&f.SourceDocumentID, &f.SourceWebsite, &f.CreatedAt); err != nil {
			return nil, err
		}
		if parts != nil {
			f.PartsRequired = SplitParts(*parts)
		}
		faults = append(faults, f)
	}
	return faults, rows.Err()
}
