// internal/fetch/validation.go
package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	securitynet "paperstream/internal/security/netutil"

	"github.com/mmcdole/gofeed"
)

var (
	ErrInvalidURL = errors.New("invalid feed URL")
	ErrTimeout    = errors.New("feed fetch timeout")
	ErrNotAFeed   = errors.New("URL does not point to a valid feed")
)

// FeedValidationResult describes a feed checked before journal creation
type FeedValidationResult struct {
	Title       string
	Description string
	ItemCount   int
	FeedType    string // RSS, Atom, etc.
}

// ValidateFeedURL fetches and parses a candidate feed URL so broken
// journals are rejected at creation time rather than at the first run.
func ValidateFeedURL(feedURL string) (*FeedValidationResult, error) {
	if err := securitynet.CheckURL(feedURL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	fp := gofeed.NewParser()
	feed, err := fp.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrNotAFeed, err)
	}

	return &FeedValidationResult{
		Title:       feed.Title,
		Description: feed.Description,
		ItemCount:   len(feed.Items),
		FeedType:    feed.FeedType,
	}, nil
}
