package store

// ensureFTS creates the full-text index over archived messages and the
// three triggers (insert, update, delete) that keep it synchronized
// with archived_message_rows. The trigger count is load-bearing for
// the self-check operation: exactly three, no more, no fewer.
func (s *Store) ensureFTS() error {
	stmts := []string{
		`CREATE VIRTUAL TABLE IF NOT EXISTS archived_messages_fts USING fts5(
			content, content='archived_message_rows', content_rowid='id'
		)`,
		`CREATE TRIGGER IF NOT EXISTS archived_messages_fts_ai AFTER INSERT ON archived_message_rows BEGIN
			INSERT INTO archived_messages_fts(rowid, content) VALUES (new.id, new.content);
		END`,
		`CREATE TRIGGER IF NOT EXISTS archived_messages_fts_au AFTER UPDATE ON archived_message_rows BEGIN
			INSERT INTO archived_messages_fts(archived_messages_fts, rowid, content) VALUES('delete', old.id, old.content);
			INSERT INTO archived_messages_fts(rowid, content) VALUES (new.id, new.content);
		END`,
		`CREATE TRIGGER IF NOT EXISTS archived_messages_fts_ad AFTER DELETE ON archived_message_rows BEGIN
			INSERT INTO archived_messages_fts(archived_messages_fts, rowid, content) VALUES('delete', old.id, old.content);
		END`,
	}
	for _, stmt := range stmts {
		if err := s.DB.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

// SearchArchivedMessages runs a full-text query over archived message
// content, returning matching message ids ordered by relevance.
func (s *Store) SearchArchivedMessages(query string, limit int) ([]string, error) {
	var ids []string
	err := s.DB.Raw(
		`SELECT m.message_id FROM archived_messages_fts f
		 JOIN archived_message_rows m ON m.id = f.rowid
		 WHERE archived_messages_fts MATCH ?
		 ORDER BY rank LIMIT ?`, query, limit).Scan(&ids).Error
	return ids, err
}
