// internal/fetch/client.go
package fetch

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	securitynet "paperstream/internal/security/netutil"
)

// userAgent identifies our client to feed hosts.
const userAgent = "paperstream/0.1"

// maxFeedBytes caps a single feed download (5MB) to avoid huge documents.
const maxFeedBytes = 5 << 20

// Client downloads feed documents with conditional GET support
type Client struct {
	logger *log.Logger
	http   *http.Client
	cache  *sync.Map
}

type cacheEntry struct {
	lastModified string
	etag         string
	timestamp    time.Time
}

func NewClient(logger *log.Logger, timeout time.Duration) *Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &Client{
		logger: logger,
		http: &http.Client{Timeout: timeout, Transport: transport, CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("stopped after 5 redirects")
			}
			return nil
		}},
		cache: &sync.Map{},
	}
}

// Download retrieves a feed document. Validator headers from previous
// responses are replayed per journal; an unchanged feed (304) returns
// notModified true with no body.
func (c *Client) Download(ctx context.Context, journalID int64, feedURL string) (body []byte, notModified bool, err error) {
	if err := securitynet.CheckURL(feedURL); err != nil {
		return nil, false, &FeedFetchError{URL: feedURL, Op: "download", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, "GET", feedURL, nil)
	if err != nil {
		return nil, false, &FeedFetchError{URL: feedURL, Op: "download", Err: err}
	}
	req.Header.Set("User-Agent", userAgent)

	cacheKey := fmt.Sprintf("journal_%d", journalID)
	if cached, exists := c.cache.Load(cacheKey); exists {
		entry := cached.(cacheEntry)
		if entry.lastModified != "" {
			req.Header.Set("If-Modified-Since", entry.lastModified)
		}
		if entry.etag != "" {
			req.Header.Set("If-None-Match", entry.etag)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, false, &FeedFetchError{URL: feedURL, Op: "download", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		c.logger.Printf("Feed %s not modified since last fetch", feedURL)
		return nil, true, nil
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 400 {
		return nil, false, &FeedFetchError{URL: feedURL, Op: "download",
			Err: fmt.Errorf("unexpected response status %d", resp.StatusCode)}
	}

	c.cache.Store(cacheKey, cacheEntry{
		lastModified: resp.Header.Get("Last-Modified"),
		etag:         resp.Header.Get("ETag"),
		timestamp:    time.Now(),
	})

	limited := io.LimitReader(resp.Body, maxFeedBytes)
	body, err = io.ReadAll(limited)
	if err != nil {
		return nil, false, &FeedFetchError{URL: feedURL, Op: "download", Err: err}
	}

	return body, false, nil
}

// Forget drops cached validators for a journal, forcing a full download
// on the next fetch.
func (c *Client) Forget(journalID int64) {
	c.cache.Delete(fmt.Sprintf("journal_%d", journalID))
}
