// internal/database/journals.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Journal source types
const (
	SourceRSS         = "rss"
	SourceAIGenerated = "ai_generated"
)

// Journal represents a paper source owned by a user
type Journal struct {
	ID            int64
	UserID        int64
	Name          string
	RSSURL        sql.NullString
	SourceType    string
	IsActive      bool
	LastFetchedAt sql.NullTime
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// GeneratedFeed holds the prompt behind an ai_generated journal
type GeneratedFeed struct {
	ID        int64
	JournalID int64
	Prompt    string
	CreatedAt time.Time
}

// JournalInput carries the fields needed to create a journal
type JournalInput struct {
	UserID     int64
	Name       string
	RSSURL     string
	SourceType string
	Prompt     string // required for ai_generated, forbidden otherwise
}

// CreateJournal inserts a journal. For ai_generated journals the backing
// generated_feeds row is created in the same transaction so the one-to-one
// pairing can never be observed half-built.
func (db *DB) CreateJournal(ctx context.Context, in JournalInput) (Journal, error) {
	if in.Name == "" {
		return Journal{}, fmt.Errorf("%w: journal name is required", ErrInvalidInput)
	}

	sourceType := in.SourceType
	if sourceType == "" {
		sourceType = SourceRSS
	}

	switch sourceType {
	case SourceRSS:
		if in.RSSURL == "" {
			return Journal{}, fmt.Errorf("%w: rss journals require a feed URL", ErrInvalidInput)
		}
		if in.Prompt != "" {
			return Journal{}, fmt.Errorf("%w: rss journals cannot carry a prompt", ErrInvalidInput)
		}
	case SourceAIGenerated:
		if in.Prompt == "" {
			return Journal{}, fmt.Errorf("%w: ai_generated journals require a prompt", ErrInvalidInput)
		}
	default:
		return Journal{}, fmt.Errorf("%w: unknown source type %q", ErrInvalidInput, sourceType)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return Journal{}, err
	}
	defer tx.Rollback()

	var rssURL sql.NullString
	if in.RSSURL != "" {
		rssURL = sql.NullString{String: in.RSSURL, Valid: true}
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO journals (user_id, name, rss_url, source_type, is_active)
		VALUES (?, ?, ?, ?, 1)`,
		in.UserID, in.Name, rssURL, sourceType,
	)
	if err != nil {
		return Journal{}, fmt.Errorf("error inserting journal: %w", err)
	}

	journalID, err := result.LastInsertId()
	if err != nil {
		return Journal{}, err
	}

	if sourceType == SourceAIGenerated {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO generated_feeds (journal_id, prompt) VALUES (?, ?)",
			journalID, in.Prompt,
		)
		if err != nil {
			return Journal{}, fmt.Errorf("error inserting generated feed: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Journal{}, err
	}

	return db.GetJournal(ctx, journalID)
}

// EnsureJournal creates an rss journal when no journal with the same feed
// URL exists yet. Used to seed configured journals on startup.
func (db *DB) EnsureJournal(ctx context.Context, userID int64, name, rssURL string) (Journal, bool, error) {
	if rssURL == "" {
		return Journal{}, false, fmt.Errorf("%w: feed URL is required", ErrInvalidInput)
	}

	var existingID int64
	err := db.QueryRowContext(ctx,
		"SELECT id FROM journals WHERE rss_url = ?",
		rssURL,
	).Scan(&existingID)
	if err == nil {
		j, err := db.GetJournal(ctx, existingID)
		return j, false, err
	}
	if err != sql.ErrNoRows {
		return Journal{}, false, err
	}

	j, err := db.CreateJournal(ctx, JournalInput{
		UserID:     userID,
		Name:       name,
		RSSURL:     rssURL,
		SourceType: SourceRSS,
	})
	return j, err == nil, err
}

// GetJournal retrieves one journal by id
func (db *DB) GetJournal(ctx context.Context, id int64) (Journal, error) {
	var j Journal
	err := db.QueryRowContext(ctx,
		`SELECT id, user_id, name, rss_url, source_type, is_active, last_fetched_at, created_at, updated_at
		FROM journals
		WHERE id = ?`,
		id,
	).Scan(
		&j.ID, &j.UserID, &j.Name, &j.RSSURL, &j.SourceType,
		&j.IsActive, &j.LastFetchedAt, &j.CreatedAt, &j.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return Journal{}, ErrNotFound
	}
	return j, err
}

// ListJournals retrieves all journals sorted by name
func (db *DB) ListJournals(ctx context.Context) ([]Journal, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, user_id, name, rss_url, source_type, is_active, last_fetched_at, created_at, updated_at
		FROM journals
		ORDER BY name COLLATE NOCASE`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanJournals(rows)
}

// ActiveRSSJournals retrieves the journals a fetch run iterates:
// active, rss-sourced, sorted by name for a stable run order.
func (db *DB) ActiveRSSJournals(ctx context.Context) ([]Journal, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, user_id, name, rss_url, source_type, is_active, last_fetched_at, created_at, updated_at
		FROM journals
		WHERE is_active = 1 AND source_type = 'rss'
		ORDER BY name COLLATE NOCASE`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanJournals(rows)
}

func scanJournals(rows *sql.Rows) ([]Journal, error) {
	var journals []Journal
	for rows.Next() {
		var j Journal
		err := rows.Scan(
			&j.ID, &j.UserID, &j.Name, &j.RSSURL, &j.SourceType,
			&j.IsActive, &j.LastFetchedAt, &j.CreatedAt, &j.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		journals = append(journals, j)
	}
	return journals, rows.Err()
}

// DeactivateJournal soft-disables a journal. Its papers stay queryable
// and the orchestrator stops polling it.
func (db *DB) DeactivateJournal(ctx context.Context, id int64) error {
	result, err := db.ExecContext(ctx,
		"UPDATE journals SET is_active = 0 WHERE id = ?",
		id,
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

// ActivateJournal re-enables a deactivated journal
func (db *DB) ActivateJournal(ctx context.Context, id int64) error {
	result, err := db.ExecContext(ctx,
		"UPDATE journals SET is_active = 1 WHERE id = ?",
		id,
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

// DeleteJournal hard-deletes a journal. Papers and any generated feed go
// with it (cascade); fetch_logs rows keep their history with journal_id
// set NULL by the foreign key.
func (db *DB) DeleteJournal(ctx context.Context, id int64) error {
	result, err := db.ExecContext(ctx,
		"DELETE FROM journals WHERE id = ?",
		id,
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

// MarkJournalFetched records a successful fetch time
func (db *DB) MarkJournalFetched(ctx context.Context, id int64, fetchedAt time.Time) error {
	_, err := db.ExecContext(ctx,
		"UPDATE journals SET last_fetched_at = ? WHERE id = ?",
		fetchedAt, id,
	)
	return err
}

// GetGeneratedFeed retrieves the prompt row behind an ai_generated journal
func (db *DB) GetGeneratedFeed(ctx context.Context, journalID int64) (GeneratedFeed, error) {
	var g GeneratedFeed
	err := db.QueryRowContext(ctx,
		"SELECT id, journal_id, prompt, created_at FROM generated_feeds WHERE journal_id = ?",
		journalID,
	).Scan(&g.ID, &g.JournalID, &g.Prompt, &g.CreatedAt)

	if err == sql.ErrNoRows {
		return GeneratedFeed{}, ErrNotFound
	}
	return g, err
}
