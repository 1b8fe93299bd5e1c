// internal/database/summaries.go
package database

import (
	"context"
	"database/sql"
	"time"
)

// Summary is one generated summary of a single paper. Rows are
// append-only; regenerating adds a new row rather than replacing.
type Summary struct {
	ID               int64
	PaperID          int64
	Provider         string
	Model            string
	SummaryText      string
	Purpose          sql.NullString
	Methodology      sql.NullString
	Findings         sql.NullString
	Implications     sql.NullString
	TokensUsed       sql.NullInt64
	GenerationTimeMs int64
	CreatedAt        time.Time
}

// TagSummary is a digest generated across all papers under one tag
type TagSummary struct {
	ID               int64
	TagID            int64
	Provider         string
	Model            string
	SummaryText      string
	Purpose          sql.NullString
	Methodology      sql.NullString
	Findings         sql.NullString
	Implications     sql.NullString
	PaperCount       int
	TokensUsed       sql.NullInt64
	GenerationTimeMs int64
	CreatedAt        time.Time
}

// TrendSummary is a digest over a publication date window, optionally
// restricted to one tag.
type TrendSummary struct {
	ID               int64
	PeriodStart      string
	PeriodEnd        string
	TagID            sql.NullInt64
	Provider         string
	Model            string
	SummaryText      string
	Purpose          sql.NullString
	Methodology      sql.NullString
	Findings         sql.NullString
	Implications     sql.NullString
	PaperCount       int
	TokensUsed       sql.NullInt64
	GenerationTimeMs int64
	CreatedAt        time.Time
}

// InsertSummary appends a paper summary and returns its id
func (db *DB) InsertSummary(ctx context.Context, s Summary) (int64, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO summaries (paper_id, provider, model, summary_text, purpose, methodology, findings, implications, tokens_used, generation_time_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.PaperID, s.Provider, s.Model, s.SummaryText,
		s.Purpose, s.Methodology, s.Findings, s.Implications,
		s.TokensUsed, s.GenerationTimeMs,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// SummariesForPaper retrieves a paper's summary history, newest first
func (db *DB) SummariesForPaper(ctx context.Context, paperID int64) ([]Summary, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, paper_id, provider, model, summary_text, purpose, methodology, findings, implications, tokens_used, generation_time_ms, created_at
		FROM summaries
		WHERE paper_id = ?
		ORDER BY created_at DESC, id DESC`,
		paperID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		var s Summary
		err := rows.Scan(
			&s.ID, &s.PaperID, &s.Provider, &s.Model, &s.SummaryText,
			&s.Purpose, &s.Methodology, &s.Findings, &s.Implications,
			&s.TokensUsed, &s.GenerationTimeMs, &s.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}

	return summaries, rows.Err()
}

// LatestSummary retrieves the newest summary for a paper
func (db *DB) LatestSummary(ctx context.Context, paperID int64) (Summary, error) {
	var s Summary
	err := db.QueryRowContext(ctx,
		`SELECT id, paper_id, provider, model, summary_text, purpose, methodology, findings, implications, tokens_used, generation_time_ms, created_at
		FROM summaries
		WHERE paper_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1`,
		paperID,
	).Scan(
		&s.ID, &s.PaperID, &s.Provider, &s.Model, &s.SummaryText,
		&s.Purpose, &s.Methodology, &s.Findings, &s.Implications,
		&s.TokensUsed, &s.GenerationTimeMs, &s.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return Summary{}, ErrNotFound
	}
	return s, err
}

// InsertTagSummary appends a tag digest and returns its id
func (db *DB) InsertTagSummary(ctx context.Context, s TagSummary) (int64, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO tag_summaries (tag_id, provider, model, summary_text, purpose, methodology, findings, implications, paper_count, tokens_used, generation_time_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.TagID, s.Provider, s.Model, s.SummaryText,
		s.Purpose, s.Methodology, s.Findings, s.Implications,
		s.PaperCount, s.TokensUsed, s.GenerationTimeMs,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// TagSummariesForTag retrieves a tag's digest history, newest first
func (db *DB) TagSummariesForTag(ctx context.Context, tagID int64, limit int) ([]TagSummary, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, tag_id, provider, model, summary_text, purpose, methodology, findings, implications, paper_count, tokens_used, generation_time_ms, created_at
		FROM tag_summaries
		WHERE tag_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`,
		tagID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []TagSummary
	for rows.Next() {
		var s TagSummary
		err := rows.Scan(
			&s.ID, &s.TagID, &s.Provider, &s.Model, &s.SummaryText,
			&s.Purpose, &s.Methodology, &s.Findings, &s.Implications,
			&s.PaperCount, &s.TokensUsed, &s.GenerationTimeMs, &s.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}

	return summaries, rows.Err()
}

// InsertTrendSummary appends a trend digest and returns its id
func (db *DB) InsertTrendSummary(ctx context.Context, s TrendSummary) (int64, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO trend_summaries (period_start, period_end, tag_id, provider, model, summary_text, purpose, methodology, findings, implications, paper_count, tokens_used, generation_time_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.PeriodStart, s.PeriodEnd, s.TagID, s.Provider, s.Model, s.SummaryText,
		s.Purpose, s.Methodology, s.Findings, s.Implications,
		s.PaperCount, s.TokensUsed, s.GenerationTimeMs,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// RecentTrendSummaries retrieves the newest trend digests
func (db *DB) RecentTrendSummaries(ctx context.Context, limit int) ([]TrendSummary, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, period_start, period_end, tag_id, provider, model, summary_text, purpose, methodology, findings, implications, paper_count, tokens_used, generation_time_ms, created_at
		FROM trend_summaries
		ORDER BY created_at DESC, id DESC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []TrendSummary
	for rows.Next() {
		var s TrendSummary
		err := rows.Scan(
			&s.ID, &s.PeriodStart, &s.PeriodEnd, &s.TagID, &s.Provider, &s.Model,
			&s.SummaryText, &s.Purpose, &s.Methodology, &s.Findings, &s.Implications,
			&s.PaperCount, &s.TokensUsed, &s.GenerationTimeMs, &s.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}

	return summaries, rows.Err()
}
