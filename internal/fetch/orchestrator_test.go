package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"paperstream/internal/database"
)

func newFetchDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"), database.DefaultConfig())
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	// No politeness pause between journals in tests.
	if err := db.UpdateSetting(context.Background(), "fetch_delay_seconds", "0", "int"); err != nil {
		t.Fatalf("setting fetch delay: %v", err)
	}
	return db
}

func testOrchestrator(db *database.DB) *Orchestrator {
	return NewOrchestrator(db, log.New(io.Discard, "", 0), Options{
		Delay:   time.Millisecond,
		Timeout: 5 * time.Second,
	})
}

func feedServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func feedWithItems(titles ...string) string {
	var items strings.Builder
	for i, title := range titles {
		fmt.Fprintf(&items, `<item><title>%s</title><link>https://example.org/p/%d</link></item>`, title, i)
	}
	return `<?xml version="1.0"?><rss version="2.0"><channel><title>Test Feed</title>` +
		items.String() + `</channel></rss>`
}

func addJournal(t *testing.T, db *database.DB, name, url string) database.Journal {
	t.Helper()
	journal, err := db.CreateJournal(context.Background(), database.JournalInput{
		Name:   name,
		RSSURL: url,
	})
	if err != nil {
		t.Fatalf("creating journal %q: %v", name, err)
	}
	return journal
}

// First run against a five item feed stores five papers; a second run
// against the identical feed stores none.
func TestRunAllIdempotent(t *testing.T) {
	db := newFetchDB(t)
	srv := feedServer(t, feedWithItems("One", "Two", "Three", "Four", "Five"))
	addJournal(t, db, "Journal A", srv.URL+"/feed.xml")

	orchestrator := testOrchestrator(db)
	ctx := context.Background()

	first, err := orchestrator.RunAll(ctx)
	if err != nil {
		t.Fatalf("first RunAll() error = %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("results = %d, want 1", len(first))
	}
	if first[0].PapersFetched != 5 || first[0].NewPapers != 5 {
		t.Errorf("first run = %d fetched / %d new, want 5/5", first[0].PapersFetched, first[0].NewPapers)
	}
	if first[0].Status != database.FetchStatusSuccess {
		t.Errorf("first run status = %s", first[0].Status)
	}

	second, err := orchestrator.RunAll(ctx)
	if err != nil {
		t.Fatalf("second RunAll() error = %v", err)
	}
	if second[0].NewPapers != 0 {
		t.Errorf("second run new papers = %d, want 0", second[0].NewPapers)
	}

	count, err := db.CountPapers(ctx, first[0].JournalID)
	if err != nil {
		t.Fatalf("CountPapers() error = %v", err)
	}
	if count != 5 {
		t.Errorf("paper count after two runs = %d, want no duplicates", count)
	}
}

// One journal's failure never aborts its siblings: all three journals
// get a fetch log row, and the healthy two advance last_fetched_at.
func TestRunAllBatchIsolation(t *testing.T) {
	db := newFetchDB(t)
	good1 := feedServer(t, feedWithItems("Alpha"))
	broken := feedServer(t, "definitely not a feed document")
	good2 := feedServer(t, feedWithItems("Beta"))

	jA := addJournal(t, db, "A Journal", good1.URL)
	jB := addJournal(t, db, "B Journal", broken.URL)
	jC := addJournal(t, db, "C Journal", good2.URL)

	results, err := testOrchestrator(db).RunAll(context.Background())
	if err != nil {
		t.Fatalf("RunAll() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("results = %d, want all three journals processed", len(results))
	}

	byID := map[int64]Result{}
	for _, r := range results {
		byID[r.JournalID] = r
	}
	if byID[jA.ID].Status != database.FetchStatusSuccess {
		t.Errorf("journal A status = %s, want success", byID[jA.ID].Status)
	}
	if byID[jB.ID].Status != database.FetchStatusError {
		t.Errorf("journal B status = %s, want error", byID[jB.ID].Status)
	}
	var feedErr *FeedFetchError
	if !errors.As(byID[jB.ID].Err, &feedErr) {
		t.Errorf("journal B error = %v, want *FeedFetchError", byID[jB.ID].Err)
	}
	if byID[jC.ID].Status != database.FetchStatusSuccess {
		t.Errorf("journal C status = %s, want success", byID[jC.ID].Status)
	}

	// One log row per journal, written in processing order.
	logs, err := db.RecentFetchLogs(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentFetchLogs() error = %v", err)
	}
	if len(logs) != 3 {
		t.Fatalf("fetch logs = %d, want one per journal", len(logs))
	}
	// Newest first, so processing order is reversed.
	if logs[2].JournalID.Int64 != jA.ID || logs[1].JournalID.Int64 != jB.ID || logs[0].JournalID.Int64 != jC.ID {
		t.Errorf("log order = %d,%d,%d, want journal processing order",
			logs[2].JournalID.Int64, logs[1].JournalID.Int64, logs[0].JournalID.Int64)
	}
	if !logs[1].ErrorMessage.Valid {
		t.Error("failed journal's log row carries no error message")
	}

	// last_fetched_at moves only on success.
	for _, tc := range []struct {
		id   int64
		want bool
	}{{jA.ID, true}, {jB.ID, false}, {jC.ID, true}} {
		journal, err := db.GetJournal(context.Background(), tc.id)
		if err != nil {
			t.Fatalf("GetJournal(%d) error = %v", tc.id, err)
		}
		if journal.LastFetchedAt.Valid != tc.want {
			t.Errorf("journal %d LastFetchedAt.Valid = %v, want %v", tc.id, journal.LastFetchedAt.Valid, tc.want)
		}
	}
}

// Two items whose titles agree for 255+ characters collapse into one
// paper; the run still reports both items as fetched.
func TestRunAllTitlePrefixCollapse(t *testing.T) {
	db := newFetchDB(t)

	base := "Deep Learning for X" + strings.Repeat(" with extended methodology", 10)
	srv := feedServer(t, feedWithItems(base+" part one", base+" part two"))
	journal := addJournal(t, db, "j1", srv.URL)

	results, err := testOrchestrator(db).RunAll(context.Background())
	if err != nil {
		t.Fatalf("RunAll() error = %v", err)
	}

	r := results[0]
	if r.PapersFetched != 2 || r.NewPapers != 1 {
		t.Errorf("run = %d fetched / %d new, want 2/1", r.PapersFetched, r.NewPapers)
	}

	count, err := db.CountPapers(context.Background(), journal.ID)
	if err != nil {
		t.Fatalf("CountPapers() error = %v", err)
	}
	if count != 1 {
		t.Errorf("papers stored = %d, want the prefix twins collapsed into 1", count)
	}

	logs, err := db.FetchLogsForJournal(context.Background(), journal.ID, 1)
	if err != nil {
		t.Fatalf("FetchLogsForJournal() error = %v", err)
	}
	if logs[0].PapersFetched != 2 || logs[0].NewPapers != 1 {
		t.Errorf("log = %d fetched / %d new, want 2/1", logs[0].PapersFetched, logs[0].NewPapers)
	}
}

// A concurrent RunAll is told "already running" with no side effects.
func TestRunAllSingleFlight(t *testing.T) {
	db := newFetchDB(t)

	var once sync.Once
	started := make(chan struct{})
	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() { close(started) })
		<-release
		io.WriteString(w, feedWithItems("Slow Item"))
	}))
	defer slow.Close()

	addJournal(t, db, "Slow Journal", slow.URL)
	orchestrator := testOrchestrator(db)

	done := make(chan error, 1)
	go func() {
		_, err := orchestrator.RunAll(context.Background())
		done <- err
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("first run never reached the feed server")
	}

	if _, err := orchestrator.RunAll(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("concurrent RunAll() error = %v, want ErrAlreadyRunning", err)
	}
	if _, err := orchestrator.RunOne(context.Background(), 1); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("concurrent RunOne() error = %v, want ErrAlreadyRunning", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first RunAll() error = %v", err)
	}

	// The guard resets once the run finishes.
	if _, err := orchestrator.RunAll(context.Background()); err != nil {
		t.Errorf("RunAll() after completion error = %v", err)
	}
}

func TestRunOneRejectsUnfetchableJournals(t *testing.T) {
	db := newFetchDB(t)
	ctx := context.Background()
	orchestrator := testOrchestrator(db)

	srv := feedServer(t, feedWithItems("Item"))
	inactive := addJournal(t, db, "Inactive", srv.URL)
	if err := db.DeactivateJournal(ctx, inactive.ID); err != nil {
		t.Fatalf("DeactivateJournal() error = %v", err)
	}
	if _, err := orchestrator.RunOne(ctx, inactive.ID); !errors.Is(err, ErrJournalInactive) {
		t.Errorf("inactive journal error = %v, want ErrJournalInactive", err)
	}

	generated, err := db.CreateJournal(ctx, database.JournalInput{
		Name:       "Generated",
		SourceType: database.SourceAIGenerated,
		Prompt:     "whatever is new",
	})
	if err != nil {
		t.Fatalf("CreateJournal() error = %v", err)
	}
	if _, err := orchestrator.RunOne(ctx, generated.ID); !errors.Is(err, ErrNotRSSJournal) {
		t.Errorf("ai_generated journal error = %v, want ErrNotRSSJournal", err)
	}

	if _, err := orchestrator.RunOne(ctx, 9999); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("unknown journal error = %v, want database.ErrNotFound", err)
	}
}

func TestRunOneFetchesOnDemand(t *testing.T) {
	db := newFetchDB(t)
	srv := feedServer(t, feedWithItems("Solo"))
	journal := addJournal(t, db, "On Demand", srv.URL)

	result, err := testOrchestrator(db).RunOne(context.Background(), journal.ID)
	if err != nil {
		t.Fatalf("RunOne() error = %v", err)
	}
	if result.NewPapers != 1 || result.Status != database.FetchStatusSuccess {
		t.Errorf("result = %+v, want one new paper and success", result)
	}

	logs, err := db.FetchLogsForJournal(context.Background(), journal.ID, 1)
	if err != nil {
		t.Fatalf("FetchLogsForJournal() error = %v", err)
	}
	if len(logs) != 1 {
		t.Error("manual run wrote no fetch log")
	}
}
