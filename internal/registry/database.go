package registry

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// NewDB opens a SQLite database connection at the given path.
// It enables foreign keys and sets connection pool settings.
func NewDB(path string) (*sql.DB, error) {
	// Foreign keys are off by default in SQLite; the DSN option applies the
	// pragma to every pooled connection.
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// Migrate runs database migrations to create the required tables.
// It is idempotent and can be run multiple times safely.
func Migrate(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			document_id TEXT NOT NULL,
			version INTEGER NOT NULL,
			checksum TEXT NOT NULL,
			status TEXT NOT NULL,
			chunk_count INTEGER NOT NULL DEFAULT 0,
			source_format TEXT NOT NULL,
			filename TEXT NOT NULL,
			failure_reason TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (document_id, version)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_documents_checksum ON documents(checksum);`,
		`CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);`,
		`CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			version INTEGER NOT NULL,
			ordinal INTEGER NOT NULL,
			text TEXT NOT NULL,
			char_start INTEGER NOT NULL,
			char_end INTEGER NOT NULL,
			FOREIGN KEY (document_id, version) REFERENCES documents(document_id, version) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id, version, ordinal);`,
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}
