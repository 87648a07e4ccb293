package database

import (
	"database/sql"
	"encoding/json"
)

// InsertQueryHistory appends one audit record for a completed request.
// History rows are never mutated afterwards.
func (db *DB) InsertQueryHistory(h *QueryHistory) (int64, error) {
	var idsJSON *string
	if h.FaultIDs != nil {
		data, err := json.Marshal(h.FaultIDs)
		if err != nil {
			return 0, err
		}
		s := string(data)
		idsJSON = &s
	}

	performed := 0
	if h.SearchPerformed {
		performed = 1
	}

	result, err := db.conn.Exec(
		`INSERT INTO query_history (account_id, query_text, device_type, manufacturer,
		model, search_performed, fault_ids, cost)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		h.AccountID, h.QueryText, h.DeviceType, h.Manufacturer, h.Model,
		performed, idsJSON, h.Cost,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetQueryHistory returns the most recent history rows for an account.
func (db *DB) GetQueryHistory(accountID int64, limit int) ([]QueryHistory, error) {
	rows, err := db.conn.Query(
		`SELECT id, account_id, query_text, device_type, manufacturer, model,
		search_performed, fault_ids, cost, created_at
		FROM query_history WHERE account_id = ? ORDER BY id DESC LIMIT ?`,
		accountID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanHistory(rows)
}

func scanHistory(rows *sql.Rows) ([]QueryHistory, error) {
	var entries []QueryHistory
	for rows.Next() {
		var h QueryHistory
		var performed int
		var idsJSON *string
		if err := rows.Scan(&h.ID, &h.AccountID, &h.QueryText, &h.DeviceType,
			&h.Manufacturer, &h.Model, &performed, &idsJSON, &h.Cost, &h.CreatedAt); err != nil {
			return nil, err
		}
		h.SearchPerformed = performed != 0
		if idsJSON != nil {
			if err := json.Unmarshal([]byte(*idsJSON), &h.FaultIDs); err != nil {
				h.FaultIDs = nil
			}
		}
		entries = append(entries, h)
	}
	return entries, rows.Err()
}
