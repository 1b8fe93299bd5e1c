// internal/database/papers.go
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/mattn/go-sqlite3"
)

// Full text source values
const (
	FullTextNone         = "none"
	FullTextUnpaywall    = "unpaywall"
	FullTextPDFExtracted = "pdf_extracted"
)

// titlePrefixLen is the number of characters of the title used as the
// per-journal dedup key.
const titlePrefixLen = 255

// Paper represents one ingested item
type Paper struct {
	ID                int64
	JournalID         int64
	Title             string
	TitlePrefix       string
	Authors           string // JSON array, order preserved
	Abstract          sql.NullString
	URL               sql.NullString
	DOI               sql.NullString
	ExternalID        sql.NullString
	PublishedDate     sql.NullString // YYYY-MM-DD
	FullText          sql.NullString
	FullTextSource    string
	PDFPath           sql.NullString
	FullTextFetchedAt sql.NullTime
	FetchedAt         sql.NullTime
	CreatedAt         time.Time
}

// AuthorList decodes the stored authors JSON
func (p Paper) AuthorList() []string {
	var authors []string
	if err := json.Unmarshal([]byte(p.Authors), &authors); err != nil {
		return nil
	}
	return authors
}

// PaperInput carries the candidate fields from a parsed feed item.
// Nil pointers mean the feed did not provide the field.
type PaperInput struct {
	Title         string
	Authors       []string
	Abstract      *string
	URL           *string
	DOI           *string
	ExternalID    *string
	PublishedDate *string
}

// Upsert outcome statuses
const (
	UpsertCreated = "created"
	UpsertUpdated = "updated"
	UpsertSkipped = "skipped"
)

// UpsertOutcome reports what UpsertPaper did with one candidate
type UpsertOutcome struct {
	Status  string
	PaperID int64
	Reason  string // set when Status is skipped
}

// UpsertPaper inserts or refreshes one candidate inside a single
// transaction. Existing rows are matched per journal on the first 255
// characters of the title, or on external_id when the
// dedupe_by_external_id setting is on and the candidate carries one.
// Refreshes only overwrite abstract, url and doi, and only with non-null
// incoming values. An insert that loses a race to a concurrent writer
// surfaces as a unique constraint violation and is reported as skipped,
// never as an error.
func (db *DB) UpsertPaper(ctx context.Context, journalID int64, in PaperInput) (UpsertOutcome, error) {
	if in.Title == "" {
		return UpsertOutcome{}, ErrInvalidInput
	}

	prefix := titlePrefix(in.Title)
	authors := in.Authors
	if authors == nil {
		authors = []string{}
	}
	authorsJSON, err := json.Marshal(authors)
	if err != nil {
		return UpsertOutcome{}, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return UpsertOutcome{}, err
	}
	defer tx.Rollback()

	byExternalID := false
	if in.ExternalID != nil && *in.ExternalID != "" {
		var v string
		err := tx.QueryRowContext(ctx,
			"SELECT value FROM settings WHERE key = 'dedupe_by_external_id'",
		).Scan(&v)
		if err != nil && err != sql.ErrNoRows {
			return UpsertOutcome{}, err
		}
		byExternalID = v == "true"
	}

	var existingID int64
	if byExternalID {
		err = tx.QueryRowContext(ctx,
			"SELECT id FROM papers WHERE journal_id = ? AND external_id = ?",
			journalID, *in.ExternalID,
		).Scan(&existingID)
	} else {
		err = tx.QueryRowContext(ctx,
			"SELECT id FROM papers WHERE journal_id = ? AND title_prefix = ?",
			journalID, prefix,
		).Scan(&existingID)
	}

	switch {
	case err == nil:
		// Refresh: non-null incoming fields win, everything else is kept.
		_, err = tx.ExecContext(ctx,
			`UPDATE papers SET
			abstract = COALESCE(?, abstract),
			url = COALESCE(?, url),
			doi = COALESCE(?, doi),
			fetched_at = CURRENT_TIMESTAMP
			WHERE id = ?`,
			nullString(in.Abstract), nullString(in.URL), nullString(in.DOI),
			existingID,
		)
		if err != nil {
			return UpsertOutcome{}, err
		}
		if err := tx.Commit(); err != nil {
			return UpsertOutcome{}, err
		}
		return UpsertOutcome{Status: UpsertUpdated, PaperID: existingID}, nil

	case err == sql.ErrNoRows:
		result, err := tx.ExecContext(ctx,
			`INSERT INTO papers (journal_id, title, title_prefix, authors, abstract, url, doi, external_id, published_date, fetched_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)`,
			journalID, in.Title, prefix, string(authorsJSON),
			nullString(in.Abstract), nullString(in.URL), nullString(in.DOI),
			nullString(in.ExternalID), nullString(in.PublishedDate),
		)
		if err != nil {
			if isConstraintErr(err) {
				return UpsertOutcome{Status: UpsertSkipped, Reason: "lost insert race to concurrent writer"}, nil
			}
			return UpsertOutcome{}, err
		}
		paperID, err := result.LastInsertId()
		if err != nil {
			return UpsertOutcome{}, err
		}
		if err := tx.Commit(); err != nil {
			return UpsertOutcome{}, err
		}
		return UpsertOutcome{Status: UpsertCreated, PaperID: paperID}, nil

	default:
		return UpsertOutcome{}, err
	}
}

func titlePrefix(title string) string {
	runes := []rune(title)
	if len(runes) <= titlePrefixLen {
		return title
	}
	return string(runes[:titlePrefixLen])
}

func nullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func isConstraintErr(err error) bool {
	if sqliteErr, ok := err.(sqlite3.Error); ok {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}

// GetPaper retrieves one paper by id
func (db *DB) GetPaper(ctx context.Context, id int64) (Paper, error) {
	var p Paper
	err := db.QueryRowContext(ctx,
		`SELECT id, journal_id, title, title_prefix, authors, abstract, url, doi, external_id,
		        published_date, full_text, full_text_source, pdf_path, full_text_fetched_at,
		        fetched_at, created_at
		FROM papers
		WHERE id = ?`,
		id,
	).Scan(
		&p.ID, &p.JournalID, &p.Title, &p.TitlePrefix, &p.Authors, &p.Abstract,
		&p.URL, &p.DOI, &p.ExternalID, &p.PublishedDate, &p.FullText,
		&p.FullTextSource, &p.PDFPath, &p.FullTextFetchedAt, &p.FetchedAt, &p.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return Paper{}, ErrNotFound
	}
	return p, err
}

// PapersByJournal retrieves a journal's papers, newest publication first
func (db *DB) PapersByJournal(ctx context.Context, journalID int64, limit int) ([]Paper, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, journal_id, title, title_prefix, authors, abstract, url, doi, external_id,
		        published_date, full_text, full_text_source, pdf_path, full_text_fetched_at,
		        fetched_at, created_at
		FROM papers
		WHERE journal_id = ?
		ORDER BY published_date DESC, id DESC
		LIMIT ?`,
		journalID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPapers(rows)
}

// PapersForTag retrieves the papers carrying a tag, newest first
func (db *DB) PapersForTag(ctx context.Context, tagID int64, limit int) ([]Paper, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT p.id, p.journal_id, p.title, p.title_prefix, p.authors, p.abstract, p.url, p.doi,
		        p.external_id, p.published_date, p.full_text, p.full_text_source, p.pdf_path,
		        p.full_text_fetched_at, p.fetched_at, p.created_at
		FROM papers p
		JOIN paper_tags pt ON pt.paper_id = p.id
		WHERE pt.tag_id = ?
		ORDER BY p.published_date DESC, p.id DESC
		LIMIT ?`,
		tagID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPapers(rows)
}

// PapersInPeriod retrieves papers published inside [start, end], both
// YYYY-MM-DD inclusive, optionally restricted to one tag.
func (db *DB) PapersInPeriod(ctx context.Context, start, end string, tagID *int64, limit int) ([]Paper, error) {
	var rows *sql.Rows
	var err error

	if tagID != nil {
		rows, err = db.QueryContext(ctx,
			`SELECT p.id, p.journal_id, p.title, p.title_prefix, p.authors, p.abstract, p.url, p.doi,
			        p.external_id, p.published_date, p.full_text, p.full_text_source, p.pdf_path,
			        p.full_text_fetched_at, p.fetched_at, p.created_at
			FROM papers p
			JOIN paper_tags pt ON pt.paper_id = p.id
			WHERE pt.tag_id = ? AND p.published_date >= ? AND p.published_date <= ?
			ORDER BY p.published_date DESC, p.id DESC
			LIMIT ?`,
			*tagID, start, end, limit,
		)
	} else {
		rows, err = db.QueryContext(ctx,
			`SELECT id, journal_id, title, title_prefix, authors, abstract, url, doi, external_id,
			        published_date, full_text, full_text_source, pdf_path, full_text_fetched_at,
			        fetched_at, created_at
			FROM papers
			WHERE published_date >= ? AND published_date <= ?
			ORDER BY published_date DESC, id DESC
			LIMIT ?`,
			start, end, limit,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPapers(rows)
}

// PapersNeedingFullText retrieves papers that have never been through
// full-text resolution. With retry, papers whose previous attempt failed
// (attempted but still without text) are included again.
func (db *DB) PapersNeedingFullText(ctx context.Context, retry bool, limit int) ([]Paper, error) {
	query := `SELECT id, journal_id, title, title_prefix, authors, abstract, url, doi, external_id,
	          published_date, full_text, full_text_source, pdf_path, full_text_fetched_at,
	          fetched_at, created_at
	FROM papers
	WHERE full_text_fetched_at IS NULL
	ORDER BY id
	LIMIT ?`
	if retry {
		query = `SELECT id, journal_id, title, title_prefix, authors, abstract, url, doi, external_id,
		          published_date, full_text, full_text_source, pdf_path, full_text_fetched_at,
		          fetched_at, created_at
		FROM papers
		WHERE full_text_fetched_at IS NULL
		   OR (full_text IS NULL AND full_text_source = 'none')
		ORDER BY id
		LIMIT ?`
	}

	rows, err := db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPapers(rows)
}

// MarkFullTextAttempt records that resolution ran for a paper, whatever
// the outcome. Papers with a recorded attempt are not retried by default.
func (db *DB) MarkFullTextAttempt(ctx context.Context, paperID int64, at time.Time) error {
	result, err := db.ExecContext(ctx,
		"UPDATE papers SET full_text_fetched_at = ? WHERE id = ?",
		at, paperID,
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

// SaveFullText stores extracted text and its provenance for a paper
func (db *DB) SaveFullText(ctx context.Context, paperID int64, text, source, pdfPath string, at time.Time) error {
	var path sql.NullString
	if pdfPath != "" {
		path = sql.NullString{String: pdfPath, Valid: true}
	}

	result, err := db.ExecContext(ctx,
		`UPDATE papers SET
		full_text = ?,
		full_text_source = ?,
		pdf_path = ?,
		full_text_fetched_at = ?
		WHERE id = ?`,
		text, source, path, at, paperID,
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

// CountPapers reports total papers for one journal
func (db *DB) CountPapers(ctx context.Context, journalID int64) (int, error) {
	var count int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM papers WHERE journal_id = ?",
		journalID,
	).Scan(&count)
	return count, err
}

func scanPapers(rows *sql.Rows) ([]Paper, error) {
	var papers []Paper
	for rows.Next() {
		var p Paper
		err := rows.Scan(
			&p.ID, &p.JournalID, &p.Title, &p.TitlePrefix, &p.Authors, &p.Abstract,
			&p.URL, &p.DOI, &p.ExternalID, &p.PublishedDate, &p.FullText,
			&p.FullTextSource, &p.PDFPath, &p.FullTextFetchedAt, &p.FetchedAt, &p.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		papers = append(papers, p)
	}
	return papers, rows.Err()
}
