// internal/database/schema.go
// Database schema and migration logic for the paperstream pipeline
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const Schema = `
-- Settings table
CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT,
    type TEXT,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Journals table
CREATE TABLE IF NOT EXISTS journals (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL DEFAULT 0,
    name TEXT NOT NULL,
    rss_url TEXT,
    source_type TEXT NOT NULL DEFAULT 'rss' CHECK(source_type IN ('rss', 'ai_generated')),
    is_active BOOLEAN NOT NULL DEFAULT 1,
    last_fetched_at TIMESTAMP,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Generated feeds table (one row per ai_generated journal)
CREATE TABLE IF NOT EXISTS generated_feeds (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    journal_id INTEGER NOT NULL UNIQUE,
    prompt TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (journal_id) REFERENCES journals(id) ON DELETE CASCADE
);

-- Papers table
CREATE TABLE IF NOT EXISTS papers (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    journal_id INTEGER NOT NULL,
    title TEXT NOT NULL,
    title_prefix TEXT NOT NULL,
    authors TEXT NOT NULL DEFAULT '[]',
    abstract TEXT,
    url TEXT,
    doi TEXT,
    external_id TEXT,
    published_date TEXT,
    full_text TEXT,
    full_text_source TEXT NOT NULL DEFAULT 'none' CHECK(full_text_source IN ('none', 'unpaywall', 'pdf_extracted')),
    pdf_path TEXT,
    full_text_fetched_at TIMESTAMP,
    fetched_at TIMESTAMP,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (journal_id) REFERENCES journals(id) ON DELETE CASCADE,
    UNIQUE(journal_id, title_prefix)
);

-- Fetch logs table (append-only run history)
CREATE TABLE IF NOT EXISTS fetch_logs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    journal_id INTEGER,
    status TEXT NOT NULL CHECK(status IN ('success', 'error', 'partial')),
    papers_fetched INTEGER NOT NULL DEFAULT 0,
    new_papers INTEGER NOT NULL DEFAULT 0,
    error_message TEXT,
    execution_time_ms INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (journal_id) REFERENCES journals(id) ON DELETE SET NULL
);

-- Summaries table (append-only, multiple per paper)
CREATE TABLE IF NOT EXISTS summaries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    paper_id INTEGER NOT NULL,
    provider TEXT NOT NULL,
    model TEXT NOT NULL,
    summary_text TEXT NOT NULL,
    purpose TEXT,
    methodology TEXT,
    findings TEXT,
    implications TEXT,
    tokens_used INTEGER,
    generation_time_ms INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (paper_id) REFERENCES papers(id) ON DELETE CASCADE
);

-- Tags table for paper taxonomy
CREATE TABLE IF NOT EXISTS tags (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT UNIQUE NOT NULL COLLATE NOCASE,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Paper tags junction table for many-to-many relationship
CREATE TABLE IF NOT EXISTS paper_tags (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    paper_id INTEGER NOT NULL,
    tag_id INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (paper_id) REFERENCES papers(id) ON DELETE CASCADE,
    FOREIGN KEY (tag_id) REFERENCES tags(id) ON DELETE CASCADE,
    UNIQUE(paper_id, tag_id)
);

-- Tag summaries table (append-only digests across a tag)
CREATE TABLE IF NOT EXISTS tag_summaries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    tag_id INTEGER NOT NULL,
    provider TEXT NOT NULL,
    model TEXT NOT NULL,
    summary_text TEXT NOT NULL,
    purpose TEXT,
    methodology TEXT,
    findings TEXT,
    implications TEXT,
    paper_count INTEGER NOT NULL DEFAULT 0,
    tokens_used INTEGER,
    generation_time_ms INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (tag_id) REFERENCES tags(id) ON DELETE CASCADE
);

-- Trend summaries table (append-only, over a date window)
CREATE TABLE IF NOT EXISTS trend_summaries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    period_start TEXT NOT NULL,
    period_end TEXT NOT NULL,
    tag_id INTEGER,
    provider TEXT NOT NULL,
    model TEXT NOT NULL,
    summary_text TEXT NOT NULL,
    purpose TEXT,
    methodology TEXT,
    findings TEXT,
    implications TEXT,
    paper_count INTEGER NOT NULL DEFAULT 0,
    tokens_used INTEGER,
    generation_time_ms INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (tag_id) REFERENCES tags(id) ON DELETE SET NULL
);`

const Indexes = `
-- Journal indexes
CREATE INDEX IF NOT EXISTS idx_journals_active ON journals(is_active, source_type);
CREATE INDEX IF NOT EXISTS idx_journals_user ON journals(user_id);

-- Paper indexes
CREATE INDEX IF NOT EXISTS idx_papers_journal_date ON papers(journal_id, published_date DESC);
CREATE INDEX IF NOT EXISTS idx_papers_doi ON papers(doi) WHERE doi IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_papers_external ON papers(journal_id, external_id) WHERE external_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_papers_fulltext_pending ON papers(full_text_fetched_at) WHERE full_text_fetched_at IS NULL;

-- Fetch log indexes
CREATE INDEX IF NOT EXISTS idx_fetch_logs_journal ON fetch_logs(journal_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_fetch_logs_created ON fetch_logs(created_at DESC);

-- Summary indexes
CREATE INDEX IF NOT EXISTS idx_summaries_paper ON summaries(paper_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_tag_summaries_tag ON tag_summaries(tag_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_trend_summaries_period ON trend_summaries(period_start, period_end);

-- Tag indexes
CREATE INDEX IF NOT EXISTS idx_tags_name ON tags(name COLLATE NOCASE);
CREATE INDEX IF NOT EXISTS idx_paper_tags_paper ON paper_tags(paper_id);
CREATE INDEX IF NOT EXISTS idx_paper_tags_tag ON paper_tags(tag_id);`

// DB represents our database connection and operations
type DB struct {
	*sql.DB
}

// Configuration for the database
type Config struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultConfig returns the default database configuration
func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    25,
		MaxIdleConns:    10,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}

// NewDB creates a new database connection with optimized settings
func NewDB(dbPath string, cfg Config) (*DB, error) {
	// Add query parameters to optimize SQLite performance
	dsn := fmt.Sprintf("%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=ON&_synchronous=NORMAL",
		dbPath)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	// Create schema
	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating schema: %w", err)
	}

	return &DB{db}, nil
}

func createSchema(db *sql.DB) error {
	if _, err := db.Exec(`
        PRAGMA journal_mode=WAL;
        PRAGMA foreign_keys=ON;
        PRAGMA synchronous=NORMAL;
        PRAGMA cache_size=10000;
        PRAGMA temp_store=MEMORY;
    `); err != nil {
		return fmt.Errorf("error setting pragmas: %w", err)
	}

	// Start transaction for table creation
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(Schema); err != nil {
		return fmt.Errorf("error executing schema: %w", err)
	}

	// Commit transaction to ensure tables are created
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing schema: %w", err)
	}

	// Check and add columns if missing (older installs)
	columnUpdates := []struct {
		table, column, definition string
	}{
		{"journals", "user_id", "INTEGER NOT NULL DEFAULT 0"},
		{"journals", "last_fetched_at", "TIMESTAMP"},
		{"papers", "external_id", "TEXT"},
		{"papers", "pdf_path", "TEXT"},
		{"papers", "full_text_fetched_at", "TIMESTAMP"},
		{"trend_summaries", "tag_id", "INTEGER"},
	}

	for _, col := range columnUpdates {
		exists, err := columnExists(db, col.table, col.column)
		if err != nil {
			return fmt.Errorf("error checking column %s.%s: %w", col.table, col.column, err)
		}
		if !exists {
			_, err := db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
				col.table, col.column, col.definition))
			if err != nil {
				return fmt.Errorf("error adding column %s.%s: %w", col.table, col.column, err)
			}
		}
	}

	if err := migrateJournalsTable(db); err != nil {
		return fmt.Errorf("error migrating journals table: %w", err)
	}

	// Create indexes after tables are committed
	if _, err := db.Exec(Indexes); err != nil {
		return fmt.Errorf("error creating indexes: %w", err)
	}

	// Initialize default settings
	if err := insertDefaultSettings(db); err != nil {
		return fmt.Errorf("error inserting default settings: %w", err)
	}

	return nil
}

// migrateJournalsTable keeps updated_at current on journal updates.
func migrateJournalsTable(db *sql.DB) error {
	triggerStmt := `
    CREATE TRIGGER IF NOT EXISTS journals_updated_at_trigger
    AFTER UPDATE ON journals
    FOR EACH ROW
    BEGIN
        UPDATE journals SET updated_at = CURRENT_TIMESTAMP WHERE id = NEW.id;
    END;`
	if _, err := db.Exec(triggerStmt); err != nil {
		return fmt.Errorf("error creating trigger for 'updated_at': %w", err)
	}
	return nil
}

func columnExists(db *sql.DB, tableName, columnName string) (bool, error) {
	query := fmt.Sprintf("PRAGMA table_info(%s);", tableName)
	rows, err := db.Query(query)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dflt_value sql.NullString
		var pk int

		err = rows.Scan(&cid, &name, &ctype, &notnull, &dflt_value, &pk)
		if err != nil {
			return false, err
		}
		if name == columnName {
			return true, nil
		}
	}

	return false, nil
}

func insertDefaultSettings(db *sql.DB) error {
	defaultSettings := map[string]string{
		"fetch_delay_seconds":   "5",
		"fetch_hour":            "6",
		"fetch_minute":          "0",
		"dedupe_by_external_id": "false",
		"timezone":              "UTC",
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	// Check if settings table is empty
	var count int
	err = tx.QueryRow("SELECT COUNT(*) FROM settings").Scan(&count)
	if err != nil {
		return fmt.Errorf("error checking settings count: %w", err)
	}

	if count == 0 {
		// Insert default settings
		stmt, err := tx.Prepare("INSERT INTO settings (key, value) VALUES (?, ?)")
		if err != nil {
			return fmt.Errorf("error preparing statement: %w", err)
		}
		defer stmt.Close()

		for key, value := range defaultSettings {
			_, err = stmt.Exec(key, value)
			if err != nil {
				return fmt.Errorf("error inserting default setting %s: %w", key, err)
			}
		}
	} else {
		// Update existing settings with new defaults if they don't exist
		stmt, err := tx.Prepare(`INSERT INTO settings (key, value)
            SELECT ?, ? WHERE NOT EXISTS (SELECT 1 FROM settings WHERE key = ?)`)
		if err != nil {
			return fmt.Errorf("error preparing update statement: %w", err)
		}
		defer stmt.Close()

		for key, value := range defaultSettings {
			_, err = stmt.Exec(key, value, key)
			if err != nil {
				return fmt.Errorf("error updating setting %s: %w", key, err)
			}
		}
	}

	return tx.Commit()
}
