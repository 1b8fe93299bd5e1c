package database

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func createTestJournal(t *testing.T, db *DB, name string) Journal {
	t.Helper()
	journal, err := db.CreateJournal(context.Background(), JournalInput{
		Name:   name,
		RSSURL: "https://example.org/" + strings.ReplaceAll(name, " ", "-") + "/feed.xml",
	})
	if err != nil {
		t.Fatalf("creating journal %q: %v", name, err)
	}
	return journal
}

func strPtr(s string) *string { return &s }

func TestUpsertPaperCreated(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	journal := createTestJournal(t, db, "Journal A")

	outcome, err := db.UpsertPaper(ctx, journal.ID, PaperInput{
		Title:         "Attention Is All You Need",
		Authors:       []string{"A. Vaswani", "N. Shazeer"},
		Abstract:      strPtr("We propose the Transformer."),
		URL:           strPtr("https://example.org/paper/1"),
		DOI:           strPtr("10.5555/3295222"),
		ExternalID:    strPtr("10.5555/3295222"),
		PublishedDate: strPtr("2017-06-12"),
	})
	if err != nil {
		t.Fatalf("UpsertPaper() error = %v", err)
	}
	if outcome.Status != UpsertCreated {
		t.Fatalf("Status = %s, want created", outcome.Status)
	}

	paper, err := db.GetPaper(ctx, outcome.PaperID)
	if err != nil {
		t.Fatalf("GetPaper() error = %v", err)
	}
	if paper.Title != "Attention Is All You Need" {
		t.Errorf("Title = %q", paper.Title)
	}
	if got := paper.AuthorList(); len(got) != 2 || got[0] != "A. Vaswani" || got[1] != "N. Shazeer" {
		t.Errorf("AuthorList() = %v, want order preserved", got)
	}
	if !paper.DOI.Valid || paper.DOI.String != "10.5555/3295222" {
		t.Errorf("DOI = %+v", paper.DOI)
	}
	if !paper.PublishedDate.Valid || paper.PublishedDate.String != "2017-06-12" {
		t.Errorf("PublishedDate = %+v", paper.PublishedDate)
	}
	if paper.FullTextSource != FullTextNone {
		t.Errorf("FullTextSource = %q, want none", paper.FullTextSource)
	}
}

func TestUpsertPaperIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	journal := createTestJournal(t, db, "Journal A")

	in := PaperInput{
		Title:    "A Perfectly Ordinary Paper",
		Abstract: strPtr("Nothing changes between fetches."),
		URL:      strPtr("https://example.org/paper/2"),
	}

	first, err := db.UpsertPaper(ctx, journal.ID, in)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	second, err := db.UpsertPaper(ctx, journal.ID, in)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	if first.Status != UpsertCreated {
		t.Errorf("first Status = %s, want created", first.Status)
	}
	if second.Status != UpsertUpdated {
		t.Errorf("second Status = %s, want updated", second.Status)
	}
	if first.PaperID != second.PaperID {
		t.Errorf("paper ids differ: %d vs %d", first.PaperID, second.PaperID)
	}

	count, err := db.CountPapers(ctx, journal.ID)
	if err != nil {
		t.Fatalf("CountPapers() error = %v", err)
	}
	if count != 1 {
		t.Errorf("paper count = %d, want 1", count)
	}
}

// Two titles agreeing on their first 255 characters collapse into one
// row. This is the deliberate dedup policy, not an accident.
func TestUpsertPaperTitlePrefixDedup(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	journal := createTestJournal(t, db, "Journal A")

	prefix := "Deep Learning for X" + strings.Repeat(" and More X", 30)
	if len([]rune(prefix)) <= 255 {
		t.Fatalf("test title too short to exercise the prefix cut: %d", len(prefix))
	}

	first, err := db.UpsertPaper(ctx, journal.ID, PaperInput{Title: prefix[:300] + " part one"})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	second, err := db.UpsertPaper(ctx, journal.ID, PaperInput{Title: prefix[:300] + " part two"})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	if first.Status != UpsertCreated || second.Status != UpsertUpdated {
		t.Errorf("statuses = %s/%s, want created/updated", first.Status, second.Status)
	}

	count, err := db.CountPapers(ctx, journal.ID)
	if err != nil {
		t.Fatalf("CountPapers() error = %v", err)
	}
	if count != 1 {
		t.Errorf("paper count = %d, want the two titles collapsed into 1", count)
	}

	paper, err := db.GetPaper(ctx, first.PaperID)
	if err != nil {
		t.Fatalf("GetPaper() error = %v", err)
	}
	if got := len([]rune(paper.TitlePrefix)); got != 255 {
		t.Errorf("TitlePrefix length = %d, want 255", got)
	}
}

// The same title in different journals stays two separate papers.
func TestUpsertPaperScopedPerJournal(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	a := createTestJournal(t, db, "Journal A")
	b := createTestJournal(t, db, "Journal B")

	in := PaperInput{Title: "Shared Title"}
	first, err := db.UpsertPaper(ctx, a.ID, in)
	if err != nil {
		t.Fatalf("upsert into A: %v", err)
	}
	second, err := db.UpsertPaper(ctx, b.ID, in)
	if err != nil {
		t.Fatalf("upsert into B: %v", err)
	}

	if first.Status != UpsertCreated || second.Status != UpsertCreated {
		t.Errorf("statuses = %s/%s, want both created", first.Status, second.Status)
	}
}

func TestUpsertPaperNeverOverwritesWithNull(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	journal := createTestJournal(t, db, "Journal A")

	created, err := db.UpsertPaper(ctx, journal.ID, PaperInput{
		Title:    "Fields That Must Survive",
		Abstract: strPtr("Original abstract."),
		URL:      strPtr("https://example.org/v1"),
		DOI:      strPtr("10.1000/original"),
	})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	// Re-fetch where the feed dropped abstract and doi but moved the URL.
	_, err = db.UpsertPaper(ctx, journal.ID, PaperInput{
		Title: "Fields That Must Survive",
		URL:   strPtr("https://example.org/v2"),
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	paper, err := db.GetPaper(ctx, created.PaperID)
	if err != nil {
		t.Fatalf("GetPaper() error = %v", err)
	}
	if !paper.Abstract.Valid || paper.Abstract.String != "Original abstract." {
		t.Errorf("Abstract = %+v, want the original kept", paper.Abstract)
	}
	if !paper.DOI.Valid || paper.DOI.String != "10.1000/original" {
		t.Errorf("DOI = %+v, want the original kept", paper.DOI)
	}
	if !paper.URL.Valid || paper.URL.String != "https://example.org/v2" {
		t.Errorf("URL = %+v, want the non-null incoming value", paper.URL)
	}
}

func TestUpsertPaperDedupeByExternalIDSetting(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	journal := createTestJournal(t, db, "Journal A")

	first, err := db.UpsertPaper(ctx, journal.ID, PaperInput{
		Title:      "Preprint Title",
		ExternalID: strPtr("10.1000/stable-id"),
	})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	// Default policy: a retitled item with the same external id is new.
	renamed := PaperInput{
		Title:      "Published Title After Review",
		ExternalID: strPtr("10.1000/stable-id"),
	}
	second, err := db.UpsertPaper(ctx, journal.ID, renamed)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.Status != UpsertCreated {
		t.Errorf("Status with setting off = %s, want created", second.Status)
	}

	if err := db.UpdateSetting(ctx, "dedupe_by_external_id", "true", "bool"); err != nil {
		t.Fatalf("UpdateSetting() error = %v", err)
	}

	third, err := db.UpsertPaper(ctx, journal.ID, PaperInput{
		Title:      "Yet Another Title",
		ExternalID: strPtr("10.1000/stable-id"),
	})
	if err != nil {
		t.Fatalf("third upsert: %v", err)
	}
	if third.Status != UpsertUpdated {
		t.Errorf("Status with setting on = %s, want updated", third.Status)
	}
	if third.PaperID != first.PaperID && third.PaperID != second.PaperID {
		t.Errorf("PaperID = %d, want a match against an existing row", third.PaperID)
	}
}

func TestUpsertPaperEmptyTitle(t *testing.T) {
	db := newTestDB(t)
	journal := createTestJournal(t, db, "Journal A")

	_, err := db.UpsertPaper(context.Background(), journal.ID, PaperInput{})
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("error = %v, want ErrInvalidInput", err)
	}
}

func TestFullTextLifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	journal := createTestJournal(t, db, "Journal A")

	withText, err := db.UpsertPaper(ctx, journal.ID, PaperInput{Title: "Resolved"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	failed, err := db.UpsertPaper(ctx, journal.ID, PaperInput{Title: "Attempted But Failed"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	untouched, err := db.UpsertPaper(ctx, journal.ID, PaperInput{Title: "Never Attempted"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	now := time.Now().UTC()
	if err := db.SaveFullText(ctx, withText.PaperID, "body text", FullTextUnpaywall, "", now); err != nil {
		t.Fatalf("SaveFullText() error = %v", err)
	}
	if err := db.MarkFullTextAttempt(ctx, failed.PaperID, now); err != nil {
		t.Fatalf("MarkFullTextAttempt() error = %v", err)
	}

	// Default sweep sees only the paper with no recorded attempt.
	pending, err := db.PapersNeedingFullText(ctx, false, 10)
	if err != nil {
		t.Fatalf("PapersNeedingFullText() error = %v", err)
	}
	if len(pending) != 1 || pending[0].ID != untouched.PaperID {
		t.Errorf("pending = %v, want only the never-attempted paper", paperIDs(pending))
	}

	// Retry sweep adds the failed attempt back but not the resolved one.
	retry, err := db.PapersNeedingFullText(ctx, true, 10)
	if err != nil {
		t.Fatalf("PapersNeedingFullText(retry) error = %v", err)
	}
	if len(retry) != 2 {
		t.Fatalf("retry sweep = %v, want failed and never-attempted", paperIDs(retry))
	}
	for _, p := range retry {
		if p.ID == withText.PaperID {
			t.Error("retry sweep includes a paper that already has text")
		}
	}

	paper, err := db.GetPaper(ctx, withText.PaperID)
	if err != nil {
		t.Fatalf("GetPaper() error = %v", err)
	}
	if !paper.FullText.Valid || paper.FullText.String != "body text" {
		t.Errorf("FullText = %+v", paper.FullText)
	}
	if paper.FullTextSource != FullTextUnpaywall {
		t.Errorf("FullTextSource = %q, want unpaywall", paper.FullTextSource)
	}
	if !paper.FullTextFetchedAt.Valid {
		t.Error("FullTextFetchedAt not recorded on success")
	}
}

func TestPapersInPeriod(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	journal := createTestJournal(t, db, "Journal A")

	dates := map[string]string{
		"Inside Early": "2026-01-05",
		"Inside Late":  "2026-01-25",
		"Before":       "2025-12-31",
		"After":        "2026-02-01",
	}
	for title, date := range dates {
		if _, err := db.UpsertPaper(ctx, journal.ID, PaperInput{Title: title, PublishedDate: strPtr(date)}); err != nil {
			t.Fatalf("upsert %q: %v", title, err)
		}
	}

	papers, err := db.PapersInPeriod(ctx, "2026-01-01", "2026-01-31", nil, 10)
	if err != nil {
		t.Fatalf("PapersInPeriod() error = %v", err)
	}
	if len(papers) != 2 {
		t.Fatalf("papers in window = %d, want 2", len(papers))
	}
	// Newest publication first.
	if papers[0].Title != "Inside Late" || papers[1].Title != "Inside Early" {
		t.Errorf("order = %q, %q", papers[0].Title, papers[1].Title)
	}
}

func paperIDs(papers []Paper) []int64 {
	ids := make([]int64, len(papers))
	for i, p := range papers {
		ids[i] = p.ID
	}
	return ids
}
