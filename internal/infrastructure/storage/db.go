package storage

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS category (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	archive TEXT NOT NULL,
	subcategory TEXT NOT NULL DEFAULT '',
	archive_name TEXT,
	category_name TEXT,
	description TEXT,
	UNIQUE (archive, subcategory)
);

CREATE TABLE IF NOT EXISTS paper (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	arxiv_id TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL,
	abstract TEXT NOT NULL,
	published_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS paper_category (
	paper_id INTEGER NOT NULL REFERENCES paper(id) ON DELETE CASCADE,
	category_id INTEGER NOT NULL REFERENCES category(id) ON DELETE CASCADE,
	PRIMARY KEY (paper_id, category_id)
);
`

// Open opens (or creates) the SQLite database at path and ensures the
// schema exists. The special path ":memory:" opens a private in-memory
// database pinned to a single connection.
func Open(path string) (*sql.DB, error) {
	memory := path == ":memory:"

	dsn := "file:" + path + "?_pragma=foreign_keys(1)"
	if !memory {
		dsn += "&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if memory {
		// Each pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return db, nil
}
