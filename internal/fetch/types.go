// internal/fetch/types.go
package fetch

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrAlreadyRunning is returned when a fetch run is requested while
	// another run owned by the same orchestrator is still active.
	ErrAlreadyRunning = errors.New("fetch run already in progress")
	// ErrJournalInactive is returned for manual fetches of deactivated journals
	ErrJournalInactive = errors.New("journal is deactivated")
	// ErrNotRSSJournal is returned for journals without a polled feed
	ErrNotRSSJournal = errors.New("journal has no RSS source")
)

// CandidatePaper is one feed item normalized for the paper store.
// Nil pointers mean the feed did not provide the field.
type CandidatePaper struct {
	Title         string
	Authors       []string
	Abstract      *string
	URL           *string
	DOI           *string
	ExternalID    *string
	PublishedDate *string // YYYY-MM-DD
}

// FeedFetchError wraps a transport or parse failure for one feed
type FeedFetchError struct {
	URL string
	Op  string // "download" or "parse"
	Err error
}

func (e *FeedFetchError) Error() string {
	return fmt.Sprintf("feed %s failed for %s: %v", e.Op, e.URL, e.Err)
}

func (e *FeedFetchError) Unwrap() error { return e.Err }

// Result is the outcome of fetching one journal
type Result struct {
	JournalID     int64
	JournalName   string
	Status        string // success, error or partial
	PapersFetched int
	NewPapers     int
	Err           error
	Elapsed       time.Duration
}
