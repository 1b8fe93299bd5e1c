// internal/database/queries.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Error definitions
var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// FetchLog represents one journal's outcome within a fetch run
type FetchLog struct {
	ID              int64
	JournalID       sql.NullInt64
	Status          string
	PapersFetched   int
	NewPapers       int
	ErrorMessage    sql.NullString
	ExecutionTimeMs int64
	CreatedAt       time.Time
}

// Fetch log status values
const (
	FetchStatusSuccess = "success"
	FetchStatusError   = "error"
	FetchStatusPartial = "partial"
)

// Tag represents a taxonomy label attached to papers
type Tag struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

// GetSetting retrieves a setting value with type checking
func (db *DB) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := db.QueryRowContext(ctx,
		"SELECT value FROM settings WHERE key = ?",
		key,
	).Scan(&value)

	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return value, err
}

// GetSettingInt retrieves and parses an integer setting
func (db *DB) GetSettingInt(ctx context.Context, key string) (int, error) {
	var value string
	var valueType string
	err := db.QueryRowContext(ctx,
		"SELECT value, type FROM settings WHERE key = ?",
		key,
	).Scan(&value, &valueType)

	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}

	if valueType != "int" {
		return 0, ErrInvalidInput
	}

	var intValue int
	_, err = fmt.Sscanf(value, "%d", &intValue)
	return intValue, err
}

// UpdateSetting updates a setting with optimistic locking
func (db *DB) UpdateSetting(ctx context.Context, key, value, valueType string) error {
	result, err := db.ExecContext(ctx,
		`INSERT INTO settings (key, value, type, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
		value = excluded.value,
		type = excluded.type,
		updated_at = CURRENT_TIMESTAMP`,
		key, value, valueType,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertFetchLog appends one run record. A nil journalID records a
// run-level failure not attributable to a single journal.
func (db *DB) InsertFetchLog(ctx context.Context, entry FetchLog) (int64, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO fetch_logs (journal_id, status, papers_fetched, new_papers, error_message, execution_time_ms)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.JournalID, entry.Status, entry.PapersFetched, entry.NewPapers,
		entry.ErrorMessage, entry.ExecutionTimeMs,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// RecentFetchLogs retrieves the newest run records
func (db *DB) RecentFetchLogs(ctx context.Context, limit int) ([]FetchLog, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, journal_id, status, papers_fetched, new_papers, error_message, execution_time_ms, created_at
		FROM fetch_logs
		ORDER BY created_at DESC, id DESC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []FetchLog
	for rows.Next() {
		var l FetchLog
		err := rows.Scan(
			&l.ID, &l.JournalID, &l.Status, &l.PapersFetched,
			&l.NewPapers, &l.ErrorMessage, &l.ExecutionTimeMs, &l.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}

	return logs, rows.Err()
}

// FetchLogsForJournal retrieves run history for one journal
func (db *DB) FetchLogsForJournal(ctx context.Context, journalID int64, limit int) ([]FetchLog, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, journal_id, status, papers_fetched, new_papers, error_message, execution_time_ms, created_at
		FROM fetch_logs
		WHERE journal_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`,
		journalID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []FetchLog
	for rows.Next() {
		var l FetchLog
		err := rows.Scan(
			&l.ID, &l.JournalID, &l.Status, &l.PapersFetched,
			&l.NewPapers, &l.ErrorMessage, &l.ExecutionTimeMs, &l.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}

	return logs, rows.Err()
}

// GetOrCreateTag returns the tag with the given name, creating it if needed.
// Name matching is case-insensitive.
func (db *DB) GetOrCreateTag(ctx context.Context, name string) (Tag, error) {
	if name == "" {
		return Tag{}, ErrInvalidInput
	}

	_, err := db.ExecContext(ctx,
		"INSERT INTO tags (name) VALUES (?) ON CONFLICT(name) DO NOTHING",
		name,
	)
	if err != nil {
		return Tag{}, err
	}

	return db.GetTagByName(ctx, name)
}

// GetTagByName looks up a tag case-insensitively
func (db *DB) GetTagByName(ctx context.Context, name string) (Tag, error) {
	var t Tag
	err := db.QueryRowContext(ctx,
		"SELECT id, name, created_at FROM tags WHERE name = ? COLLATE NOCASE",
		name,
	).Scan(&t.ID, &t.Name, &t.CreatedAt)

	if err == sql.ErrNoRows {
		return Tag{}, ErrNotFound
	}
	return t, err
}

// AssignTag links a tag to a paper. Re-assigning is a no-op.
func (db *DB) AssignTag(ctx context.Context, paperID, tagID int64) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO paper_tags (paper_id, tag_id) VALUES (?, ?)
		ON CONFLICT(paper_id, tag_id) DO NOTHING`,
		paperID, tagID,
	)
	return err
}

// TagsForPaper retrieves all tags on a paper, sorted by name
func (db *DB) TagsForPaper(ctx context.Context, paperID int64) ([]Tag, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT t.id, t.name, t.created_at
		FROM tags t
		JOIN paper_tags pt ON pt.tag_id = t.id
		WHERE pt.paper_id = ?
		ORDER BY t.name COLLATE NOCASE`,
		paperID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tags []Tag
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.CreatedAt); err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}

	return tags, rows.Err()
}
