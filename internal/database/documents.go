package database

import "database/sql"

// InsertDocument stores already-extracted document text for an owner.
func (db *DB) InsertDocument(ownerID int64, name, extractedText string) (int64, error) {
	result, err := db.conn.Exec(
		"INSERT INTO documents (owner_id, name, extracted_text) VALUES (?, ?, ?)",
		ownerID, name, extractedText,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetDocument returns a document scoped to its owner, or nil if the document
// does not exist or belongs to someone else.
func (db *DB) GetDocument(documentID, ownerID int64) (*Document, error) {
	row := db.conn.QueryRow(
		`SELECT id, owner_id, name, extracted_text, created_at
		FROM documents WHERE id = ? AND owner_id = ?`,
		documentID, ownerID,
	)
	var d Document
	if err := row.Scan(&d.ID, &d.OwnerID, &d.Name, &d.ExtractedText, &d.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

// ListDocuments returns all documents owned by an account.
func (db *DB) ListDocuments(ownerID int64) ([]Document, error) {
	rows, err := db.conn.Query(
		`SELECT id, owner_id, name, extracted_text, created_at
		FROM documents WHERE owner_id = ? ORDER BY id`,
		ownerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.OwnerID, &d.Name, &d.ExtractedText, &d.CreatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}
