package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/oldnordic/LTMC-sub008/internal/coordination"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
	key             TEXT NOT NULL,
	conversation_id TEXT NOT NULL,
	content         TEXT NOT NULL,
	created_at      TEXT NOT NULL,
	PRIMARY KEY (key, conversation_id)
);

CREATE TABLE IF NOT EXISTS document_tags (
	key             TEXT NOT NULL,
	conversation_id TEXT NOT NULL,
	tag             TEXT NOT NULL,
	PRIMARY KEY (key, conversation_id, tag)
);

CREATE INDEX IF NOT EXISTS idx_document_tags_tag
	ON document_tags (conversation_id, tag);

CREATE TABLE IF NOT EXISTS links (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	source       TEXT NOT NULL,
	target       TEXT NOT NULL,
	relationship TEXT NOT NULL,
	properties   TEXT NOT NULL,
	created_at   TEXT NOT NULL
);
`

// SQLiteStore implements coordination.MemoryStore and
// coordination.GraphStore on a local SQLite database, letting a single-host
// deployment run without Redis and interoperate with history written by
// other tools sharing the same database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path and applies
// the schema. WAL mode and a busy timeout keep concurrent tool processes
// from tripping over each other.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Store persists content under key, replacing any previous version and its
// tag index entries.
func (s *SQLiteStore) Store(ctx context.Context, key, content string, tags []string, conversationID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO documents (key, conversation_id, content, created_at) VALUES (?, ?, ?, ?)`,
		key, conversationID, content, coordination.NowTimestamp(),
	)
	if err != nil {
		return fmt.Errorf("failed to store document %s: %w", key, err)
	}

	_, err = tx.ExecContext(ctx,
		`DELETE FROM document_tags WHERE key = ? AND conversation_id = ?`,
		key, conversationID,
	)
	if err != nil {
		return fmt.Errorf("failed to clear tags for %s: %w", key, err)
	}

	for _, tag := range tags {
		_, err = tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO document_tags (key, conversation_id, tag) VALUES (?, ?, ?)`,
			key, conversationID, tag,
		)
		if err != nil {
			return fmt.Errorf("failed to tag document %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit document %s: %w", key, err)
	}
	return nil
}

// Retrieve returns every document carrying all of the query's tags, in
// insertion order.
func (s *SQLiteStore) Retrieve(ctx context.Context, query, conversationID string) ([]coordination.Document, error) {
	terms := strings.Fields(query)
	if len(terms) == 0 {
		return nil, fmt.Errorf("empty query")
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(terms)), ",")
	stmt := fmt.Sprintf(`
		SELECT d.key, d.content
		FROM documents d
		WHERE d.conversation_id = ?
		  AND (
			SELECT COUNT(DISTINCT t.tag)
			FROM document_tags t
			WHERE t.key = d.key
			  AND t.conversation_id = d.conversation_id
			  AND t.tag IN (%s)
		  ) = ?
		ORDER BY d.created_at, d.key`, placeholders)

	args := make([]any, 0, len(terms)+2)
	args = append(args, conversationID)
	for _, term := range terms {
		args = append(args, term)
	}
	args = append(args, len(terms))

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []coordination.Document
	for rows.Next() {
		var doc coordination.Document
		if err := rows.Scan(&doc.Key, &doc.Content); err != nil {
			return nil, fmt.Errorf("failed to scan document row: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}
	return docs, nil
}

// Link inserts a directed edge row with its properties as JSON.
func (s *SQLiteStore) Link(ctx context.Context, source, target, relationship string, properties map[string]any) error {
	props, err := json.Marshal(properties)
	if err != nil {
		return fmt.Errorf("failed to marshal link properties: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO links (source, target, relationship, properties, created_at) VALUES (?, ?, ?, ?, ?)`,
		source, target, relationship, string(props), coordination.NowTimestamp(),
	)
	if err != nil {
		return fmt.Errorf("failed to store link %s -> %s: %w", source, target, err)
	}
	return nil
}

// Ping verifies the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
