// internal/fetch/orchestrator.go
package fetch

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"paperstream/internal/database"
)

// Options tunes one orchestrator instance
type Options struct {
	Delay   time.Duration // pause between journals, contractual politeness
	Timeout time.Duration // per-feed HTTP timeout
}

// Orchestrator walks all active rss journals strictly in sequence,
// isolating each journal's failures from the rest of the run. The
// single-flight guard is owned by the instance, not the process.
type Orchestrator struct {
	db      *database.DB
	logger  *log.Logger
	client  *Client
	parser  *Parser
	delay   time.Duration
	running atomic.Bool
}

func NewOrchestrator(db *database.DB, logger *log.Logger, opts Options) *Orchestrator {
	if opts.Delay <= 0 {
		opts.Delay = 5 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Orchestrator{
		db:     db,
		logger: logger,
		client: NewClient(logger, opts.Timeout),
		parser: NewParser(),
		delay:  opts.Delay,
	}
}

// RunAll fetches every active rss journal once. A second call while a
// run is active returns ErrAlreadyRunning without side effects. One
// fetch_logs row is written per journal whatever its outcome.
func (o *Orchestrator) RunAll(ctx context.Context) ([]Result, error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer o.running.Store(false)

	journals, err := o.db.ActiveRSSJournals(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing journals: %w", err)
	}

	o.logger.Printf("Starting fetch run for %d journals", len(journals))

	results := make([]Result, 0, len(journals))
	for i, journal := range journals {
		if i > 0 {
			select {
			case <-time.After(o.journalDelay(ctx)):
			case <-ctx.Done():
				return results, ctx.Err()
			}
		}

		result := o.fetchJournal(ctx, journal)
		o.record(ctx, result)
		results = append(results, result)

		if result.Err != nil {
			o.logger.Printf("Error fetching journal %s: %v", journal.Name, result.Err)
		} else {
			o.logger.Printf("Fetched journal %s: %d papers, %d new",
				journal.Name, result.PapersFetched, result.NewPapers)
		}
	}

	o.logger.Printf("Fetch run completed: %d journals", len(results))
	return results, nil
}

// RunOne fetches a single journal on demand. It shares the run guard
// with RunAll so manual and scheduled runs never interleave.
func (o *Orchestrator) RunOne(ctx context.Context, journalID int64) (Result, error) {
	if !o.running.CompareAndSwap(false, true) {
		return Result{}, ErrAlreadyRunning
	}
	defer o.running.Store(false)

	journal, err := o.db.GetJournal(ctx, journalID)
	if err != nil {
		return Result{}, err
	}
	if journal.SourceType != database.SourceRSS {
		return Result{}, ErrNotRSSJournal
	}
	if !journal.IsActive {
		return Result{}, ErrJournalInactive
	}

	result := o.fetchJournal(ctx, journal)
	o.record(ctx, result)
	return result, nil
}

// fetchJournal downloads, parses and stores one journal's feed. All
// failures are folded into the Result; nothing escapes to abort a run.
func (o *Orchestrator) fetchJournal(ctx context.Context, journal database.Journal) Result {
	start := time.Now()
	result := Result{JournalID: journal.ID, JournalName: journal.Name}

	if !journal.RSSURL.Valid || journal.RSSURL.String == "" {
		result.Status = database.FetchStatusError
		result.Err = ErrNotRSSJournal
		result.Elapsed = time.Since(start)
		return result
	}

	body, notModified, err := o.client.Download(ctx, journal.ID, journal.RSSURL.String)
	if err != nil {
		result.Status = database.FetchStatusError
		result.Err = err
		result.Elapsed = time.Since(start)
		return result
	}

	if notModified {
		result.Status = database.FetchStatusSuccess
		result.Elapsed = time.Since(start)
		return result
	}

	candidates, err := o.parser.Parse(journal.RSSURL.String, body)
	if err != nil {
		result.Status = database.FetchStatusError
		result.Err = err
		result.Elapsed = time.Since(start)
		return result
	}

	result.PapersFetched = len(candidates)

	errored := 0
	for _, candidate := range candidates {
		outcome, err := o.db.UpsertPaper(ctx, journal.ID, database.PaperInput{
			Title:         candidate.Title,
			Authors:       candidate.Authors,
			Abstract:      candidate.Abstract,
			URL:           candidate.URL,
			DOI:           candidate.DOI,
			ExternalID:    candidate.ExternalID,
			PublishedDate: candidate.PublishedDate,
		})
		if err != nil {
			errored++
			o.logger.Printf("Error storing paper %q for journal %s: %v",
				candidate.Title, journal.Name, err)
			continue
		}
		if outcome.Status == database.UpsertCreated {
			result.NewPapers++
		}
	}

	if errored > 0 {
		result.Status = database.FetchStatusPartial
		result.Err = fmt.Errorf("%d of %d papers failed to store", errored, len(candidates))
	} else {
		result.Status = database.FetchStatusSuccess
	}
	result.Elapsed = time.Since(start)
	return result
}

// record appends the fetch log row and, on success, advances the
// journal's last fetched marker.
func (o *Orchestrator) record(ctx context.Context, result Result) {
	entry := database.FetchLog{
		JournalID:       sql.NullInt64{Int64: result.JournalID, Valid: true},
		Status:          result.Status,
		PapersFetched:   result.PapersFetched,
		NewPapers:       result.NewPapers,
		ExecutionTimeMs: result.Elapsed.Milliseconds(),
	}
	if result.Err != nil {
		entry.ErrorMessage = sql.NullString{String: result.Err.Error(), Valid: true}
	}

	if _, err := o.db.InsertFetchLog(ctx, entry); err != nil {
		o.logger.Printf("Error recording fetch log for journal %d: %v", result.JournalID, err)
	}

	if result.Status == database.FetchStatusSuccess {
		if err := o.db.MarkJournalFetched(ctx, result.JournalID, time.Now().UTC()); err != nil {
			o.logger.Printf("Error updating last fetched time for journal %d: %v", result.JournalID, err)
		}
	}
}

// journalDelay consults the settings table so the politeness pause can
// be tuned at runtime, falling back to the configured delay.
func (o *Orchestrator) journalDelay(ctx context.Context) time.Duration {
	value, err := o.db.GetSetting(ctx, "fetch_delay_seconds")
	if err != nil {
		return o.delay
	}
	secs, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || secs < 0 {
		return o.delay
	}
	return time.Duration(secs) * time.Second
}
