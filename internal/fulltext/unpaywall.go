// internal/fulltext/unpaywall.go
package fulltext

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ErrNoLocation means the DOI resolved but has no open-access copy.
var ErrNoLocation = errors.New("no open access location")

// Location is the download target chosen from an Unpaywall response.
type Location struct {
	URL    string
	HasPDF bool // URL came from url_for_pdf
}

// UnpaywallClient queries the Unpaywall v2 REST API. Unpaywall requires
// a contact email on every request.
type UnpaywallClient struct {
	httpClient *http.Client
	baseURL    string
	email      string
}

func NewUnpaywallClient(baseURL, email string, timeout time.Duration) *UnpaywallClient {
	return &UnpaywallClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		email:      email,
	}
}

// unpaywallResponse is the subset of the v2 response we consume.
type unpaywallResponse struct {
	DOI            string       `json:"doi"`
	IsOA           bool         `json:"is_oa"`
	BestOALocation *oaLocation  `json:"best_oa_location"`
	OALocations    []oaLocation `json:"oa_locations"`
}

type oaLocation struct {
	URL       string `json:"url"`
	URLForPDF string `json:"url_for_pdf"`
	HostType  string `json:"host_type"`
	Version   string `json:"version"`
}

// BestLocation resolves a DOI to its best open-access location.
// url_for_pdf is preferred over the generic url. Returns ErrNoLocation
// when the work has no open-access copy.
func (c *UnpaywallClient) BestLocation(ctx context.Context, doi string) (*Location, error) {
	endpoint := fmt.Sprintf("%s/v2/%s?email=%s", c.baseURL, url.PathEscape(doi), url.QueryEscape(c.email))

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating unpaywall request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error querying unpaywall: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		// DOI unknown to Unpaywall
		return nil, ErrNoLocation
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unpaywall returned status %d for doi %s", resp.StatusCode, doi)
	}

	var payload unpaywallResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("error decoding unpaywall response: %w", err)
	}

	loc := payload.BestOALocation
	if loc == nil && len(payload.OALocations) > 0 {
		loc = &payload.OALocations[0]
	}
	if !payload.IsOA || loc == nil {
		return nil, ErrNoLocation
	}

	if loc.URLForPDF != "" {
		return &Location{URL: loc.URLForPDF, HasPDF: true}, nil
	}
	if loc.URL != "" {
		return &Location{URL: loc.URL}, nil
	}
	return nil, ErrNoLocation
}
