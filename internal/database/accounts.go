package database

import "database/sql"

// InsertAccount creates an account and returns its ID.
func (db *DB) InsertAccount(name, role string, balance int) (int64, error) {
	result, err := db.conn.Exec(
		"INSERT INTO accounts (name, role, balance) VALUES (?, ?, ?)",
		name, role, balance,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetAccount returns an account by ID, or nil if not found.
func (db *DB) GetAccount(accountID int64) (*Account, error) {
	row := db.conn.QueryRow(
		"SELECT id, name, role, balance, created_at FROM accounts WHERE id = ?", accountID,
	)
	var a Account
	if err := row.Scan(&a.ID, &a.Name, &a.Role, &a.Balance, &a.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

// ListAccounts returns all accounts.
func (db *DB) ListAccounts() ([]Account, error) {
	rows, err := db.conn.Query(
		"SELECT id, name, role, balance, created_at FROM accounts ORDER BY id",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Name, &a.Role, &a.Balance, &a.CreatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// AddBalance credits queries to an account.
func (db *DB) AddBalance(accountID int64, amount int) error {
	_, err := db.conn.Exec(
		"UPDATE accounts SET balance = balance + ? WHERE id = ?", amount, accountID,
	)
	return err
}

// DecrementBalance spends one query from the account's balance. The update
// only applies while the balance is positive, so concurrent callers can never
// drive it below zero. Returns false when the balance was already exhausted.
func (db *DB) DecrementBalance(accountID int64) (bool, error) {
	result, err := db.conn.Exec(
		"UPDATE accounts SET balance = balance - 1 WHERE id = ? AND balance > 0", accountID,
	)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
