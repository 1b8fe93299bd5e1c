package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"
)

func TestSettingsRoundtrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.UpdateSetting(ctx, "items_per_digest", "25", "int"); err != nil {
		t.Fatalf("UpdateSetting() error = %v", err)
	}

	got, err := db.GetSetting(ctx, "items_per_digest")
	if err != nil {
		t.Fatalf("GetSetting() error = %v", err)
	}
	if got != "25" {
		t.Errorf("GetSetting() = %q, want 25", got)
	}

	n, err := db.GetSettingInt(ctx, "items_per_digest")
	if err != nil {
		t.Fatalf("GetSettingInt() error = %v", err)
	}
	if n != 25 {
		t.Errorf("GetSettingInt() = %d, want 25", n)
	}

	// Updating in place.
	if err := db.UpdateSetting(ctx, "items_per_digest", "50", "int"); err != nil {
		t.Fatalf("UpdateSetting() second error = %v", err)
	}
	if n, _ := db.GetSettingInt(ctx, "items_per_digest"); n != 50 {
		t.Errorf("GetSettingInt() after update = %d, want 50", n)
	}

	if _, err := db.GetSetting(ctx, "never_set"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing key error = %v, want ErrNotFound", err)
	}
}

func TestGetSettingIntTypeMismatch(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.UpdateSetting(ctx, "site_motto", "onward", "string"); err != nil {
		t.Fatalf("UpdateSetting() error = %v", err)
	}
	if _, err := db.GetSettingInt(ctx, "site_motto"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("error = %v, want ErrInvalidInput for a string setting", err)
	}
}

func TestFetchLogHistory(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	journal := createTestJournal(t, db, "Logged")

	entries := []FetchLog{
		{JournalID: sql.NullInt64{Int64: journal.ID, Valid: true}, Status: FetchStatusSuccess, PapersFetched: 5, NewPapers: 5, ExecutionTimeMs: 120},
		{JournalID: sql.NullInt64{Int64: journal.ID, Valid: true}, Status: FetchStatusError, ErrorMessage: sql.NullString{String: "connection refused", Valid: true}, ExecutionTimeMs: 30},
		{JournalID: sql.NullInt64{Int64: journal.ID, Valid: true}, Status: FetchStatusPartial, PapersFetched: 4, NewPapers: 2, ErrorMessage: sql.NullString{String: "2 of 4 papers failed to store", Valid: true}, ExecutionTimeMs: 210},
	}
	for _, e := range entries {
		if _, err := db.InsertFetchLog(ctx, e); err != nil {
			t.Fatalf("InsertFetchLog(%s) error = %v", e.Status, err)
		}
	}

	logs, err := db.FetchLogsForJournal(ctx, journal.ID, 10)
	if err != nil {
		t.Fatalf("FetchLogsForJournal() error = %v", err)
	}
	if len(logs) != 3 {
		t.Fatalf("logs = %d, want 3", len(logs))
	}
	// Newest first.
	if logs[0].Status != FetchStatusPartial || logs[2].Status != FetchStatusSuccess {
		t.Errorf("order = %s..%s, want partial first, success last", logs[0].Status, logs[2].Status)
	}
	if !logs[1].ErrorMessage.Valid || logs[1].ErrorMessage.String != "connection refused" {
		t.Errorf("ErrorMessage = %+v", logs[1].ErrorMessage)
	}

	recent, err := db.RecentFetchLogs(ctx, 2)
	if err != nil {
		t.Fatalf("RecentFetchLogs() error = %v", err)
	}
	if len(recent) != 2 {
		t.Errorf("RecentFetchLogs(2) = %d rows, want the limit honored", len(recent))
	}
}

func TestTagsCaseInsensitive(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	created, err := db.GetOrCreateTag(ctx, "Machine Learning")
	if err != nil {
		t.Fatalf("GetOrCreateTag() error = %v", err)
	}

	same, err := db.GetOrCreateTag(ctx, "machine learning")
	if err != nil {
		t.Fatalf("GetOrCreateTag() lowercase error = %v", err)
	}
	if created.ID != same.ID {
		t.Errorf("ids differ (%d vs %d), want case-insensitive match", created.ID, same.ID)
	}

	if _, err := db.GetOrCreateTag(ctx, ""); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("empty name error = %v, want ErrInvalidInput", err)
	}
}

func TestAssignAndListTags(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	journal := createTestJournal(t, db, "Tagged")

	outcome, err := db.UpsertPaper(ctx, journal.ID, PaperInput{Title: "A Tagged Paper"})
	if err != nil {
		t.Fatalf("UpsertPaper() error = %v", err)
	}

	for _, name := range []string{"nlp", "transformers"} {
		tag, err := db.GetOrCreateTag(ctx, name)
		if err != nil {
			t.Fatalf("GetOrCreateTag(%q) error = %v", name, err)
		}
		if err := db.AssignTag(ctx, outcome.PaperID, tag.ID); err != nil {
			t.Fatalf("AssignTag(%q) error = %v", name, err)
		}
		// Re-assigning is a no-op, not an error.
		if err := db.AssignTag(ctx, outcome.PaperID, tag.ID); err != nil {
			t.Fatalf("AssignTag(%q) repeat error = %v", name, err)
		}
	}

	tags, err := db.TagsForPaper(ctx, outcome.PaperID)
	if err != nil {
		t.Fatalf("TagsForPaper() error = %v", err)
	}
	if len(tags) != 2 || tags[0].Name != "nlp" || tags[1].Name != "transformers" {
		t.Errorf("TagsForPaper() = %v, want nlp and transformers once each", tags)
	}

	papers, err := db.PapersForTag(ctx, tags[0].ID, 10)
	if err != nil {
		t.Fatalf("PapersForTag() error = %v", err)
	}
	if len(papers) != 1 || papers[0].ID != outcome.PaperID {
		t.Errorf("PapersForTag() = %v, want the tagged paper", paperIDs(papers))
	}
}
