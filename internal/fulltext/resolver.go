// internal/fulltext/resolver.go
package fulltext

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"paperstream/internal/database"
	securitynet "paperstream/internal/security/netutil"
)

// userAgent identifies our client to publisher hosts.
const userAgent = "paperstream/0.1"

// batchLimit bounds one ResolveBatch sweep
const batchLimit = 500

// Options configures a Resolver. Zero values fall back to defaults.
type Options struct {
	UnpaywallURL     string
	Email            string
	Timeout          time.Duration
	MaxDownloadBytes int64
	MaxTextChars     int
	PDFDir           string
}

// Result reports one resolution attempt. Source is one of the
// database.FullText* values and stays "none" on failure.
type Result struct {
	Success bool
	Text    string
	Source  string
	PDFURL  string
	PDFPath string
	Err     error
}

// BatchResult summarizes one ResolveBatch sweep
type BatchResult struct {
	Attempted int
	Succeeded int
	Failed    int
}

// Resolver locates and extracts full text for papers that carry a DOI.
// It makes one request chain per paper and never retries on its own;
// retries happen only through a later ResolveBatch with retry set.
type Resolver struct {
	db        *database.DB
	logger    *log.Logger
	unpaywall *UnpaywallClient
	client    *http.Client
	maxBytes  int64
	maxChars  int
	pdfDir    string
}

func NewResolver(db *database.DB, logger *log.Logger, opts Options) (*Resolver, error) {
	if opts.UnpaywallURL == "" {
		opts.UnpaywallURL = "https://api.unpaywall.org"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxDownloadBytes <= 0 {
		opts.MaxDownloadBytes = 20 << 20
	}
	if opts.MaxTextChars <= 0 {
		opts.MaxTextChars = 500_000
	}
	if opts.PDFDir == "" {
		opts.PDFDir = "data/pdfs"
	}

	if err := os.MkdirAll(opts.PDFDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create pdf storage directory: %w", err)
	}

	return &Resolver{
		db:        db,
		logger:    logger,
		unpaywall: NewUnpaywallClient(opts.UnpaywallURL, opts.Email, opts.Timeout),
		client:    &http.Client{Timeout: opts.Timeout},
		maxBytes:  opts.MaxDownloadBytes,
		maxChars:  opts.MaxTextChars,
		pdfDir:    opts.PDFDir,
	}, nil
}

// Resolve runs the lookup-download-extract chain for one paper.
// Papers without a DOI fail immediately without any network traffic.
func (r *Resolver) Resolve(ctx context.Context, paper *database.Paper) Result {
	if !paper.DOI.Valid || strings.TrimSpace(paper.DOI.String) == "" {
		return Result{Source: database.FullTextNone}
	}

	loc, err := r.unpaywall.BestLocation(ctx, paper.DOI.String)
	if err != nil {
		return Result{Source: database.FullTextNone, Err: err}
	}

	data, contentType, err := r.download(ctx, loc.URL)
	if err != nil {
		return Result{Source: database.FullTextNone, PDFURL: loc.URL, Err: err}
	}

	if isPDF(data, contentType) {
		text, err := ExtractPDFText(data)
		if err != nil {
			return Result{Source: database.FullTextNone, PDFURL: loc.URL, Err: err}
		}

		pdfPath, err := r.storePDF(data)
		if err != nil {
			// Extracted text survives even when the PDF copy does not.
			r.logger.Printf("Failed to store pdf for paper %d: %v", paper.ID, err)
			pdfPath = ""
		}

		return Result{
			Success: true,
			Text:    truncateText(text, r.maxChars),
			Source:  database.FullTextPDFExtracted,
			PDFURL:  loc.URL,
			PDFPath: pdfPath,
		}
	}

	text := ExtractHTMLText(string(data))
	if text == "" {
		return Result{Source: database.FullTextNone, PDFURL: loc.URL, Err: ErrEmptyExtraction}
	}

	return Result{
		Success: true,
		Text:    truncateText(text, r.maxChars),
		Source:  database.FullTextUnpaywall,
		PDFURL:  loc.URL,
	}
}

// ResolveBatch sweeps papers that never went through resolution, or all
// previously failed ones when retry is set. Every attempt is recorded so
// the default sweep never revisits a paper, success or not.
func (r *Resolver) ResolveBatch(ctx context.Context, retry bool) (BatchResult, error) {
	var batch BatchResult

	papers, err := r.db.PapersNeedingFullText(ctx, retry, batchLimit)
	if err != nil {
		return batch, fmt.Errorf("error listing papers for full text: %w", err)
	}

	for i := range papers {
		if err := ctx.Err(); err != nil {
			return batch, err
		}

		paper := &papers[i]
		batch.Attempted++

		outcome := r.Resolve(ctx, paper)
		now := time.Now().UTC()

		if outcome.Success {
			if err := r.db.SaveFullText(ctx, paper.ID, outcome.Text, outcome.Source, outcome.PDFPath, now); err != nil {
				r.logger.Printf("Failed to save full text for paper %d: %v", paper.ID, err)
				batch.Failed++
				continue
			}
			r.logger.Printf("Resolved full text for paper %d (%s, %d chars)", paper.ID, outcome.Source, len(outcome.Text))
			batch.Succeeded++
			continue
		}

		batch.Failed++
		if outcome.Err != nil {
			r.logger.Printf("Full text resolution failed for paper %d: %v", paper.ID, outcome.Err)
		}
		if err := r.db.MarkFullTextAttempt(ctx, paper.ID, now); err != nil {
			r.logger.Printf("Failed to record full text attempt for paper %d: %v", paper.ID, err)
		}
	}

	return batch, nil
}

// download fetches one location with the byte ceiling enforced. Going
// over the ceiling aborts this attempt, not the process.
func (r *Resolver) download(ctx context.Context, rawURL string) ([]byte, string, error) {
	if err := securitynet.CheckURL(rawURL); err != nil {
		return nil, "", err
	}

	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("error creating download request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("error downloading %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download of %s returned status %d", rawURL, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("error reading download body: %w", err)
	}
	if int64(len(data)) > r.maxBytes {
		return nil, "", fmt.Errorf("download of %s exceeded %d byte limit", rawURL, r.maxBytes)
	}

	return data, resp.Header.Get("Content-Type"), nil
}

// storePDF writes the document under a content-addressed name so the
// same PDF downloaded twice occupies one file.
func (r *Resolver) storePDF(data []byte) (string, error) {
	hash := sha256.Sum256(data)
	filename := hex.EncodeToString(hash[:]) + ".pdf"
	path := filepath.Join(r.pdfDir, filename)

	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to save pdf: %w", err)
	}
	return path, nil
}

func isPDF(data []byte, contentType string) bool {
	return bytes.HasPrefix(data, []byte("%PDF")) || strings.Contains(contentType, "application/pdf")
}

func truncateText(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
