package database

// GetStats returns aggregate counts for the status command.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}

	queries := []struct {
		sql  string
		dest *int
	}{
		{"SELECT COUNT(*) FROM fault_records", &s.TotalFaults},
		{"SELECT COUNT(*) FROM fault_records WHERE provenance = 'ai-synthesized'", &s.SynthesizedFaults},
		{"SELECT COUNT(*) FROM fault_records WHERE provenance = 'web-discovered'", &s.DiscoveredFaults},
		{"SELECT COUNT(*) FROM search_sources", &s.TotalSources},
		{"SELECT COUNT(*) FROM search_sources WHERE is_active = 1", &s.ActiveSources},
		{"SELECT COUNT(*) FROM query_history", &s.TotalQueries},
		{"SELECT COUNT(*) FROM documents", &s.TotalDocuments},
		{"SELECT COUNT(*) FROM accounts", &s.TotalAccounts},
	}

	for _, q := range queries {
		if err := db.conn.QueryRow(q.sql).Scan(q.dest); err != nil {
			return nil, err
		}
	}
	return s, nil
}
