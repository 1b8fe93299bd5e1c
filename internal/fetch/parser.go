// internal/fetch/parser.go
package fetch

import (
	"bytes"
	"regexp"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	htmlparser "golang.org/x/net/html"
)

// doiPattern matches a Crossref-style DOI anywhere inside an item link.
var doiPattern = regexp.MustCompile(`10\.\d{4,}/\S+`)

// Parser normalizes RSS and Atom documents into candidate papers
type Parser struct {
	parser *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{parser: gofeed.NewParser()}
}

// Parse converts one feed document into candidate papers. Items without
// a title are dropped silently; every other missing field degrades to
// nil. A document gofeed cannot make sense of is the only error case.
func (p *Parser) Parse(feedURL string, raw []byte) ([]CandidatePaper, error) {
	parsed, err := p.parser.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, &FeedFetchError{URL: feedURL, Op: "parse", Err: err}
	}

	candidates := make([]CandidatePaper, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		title := strings.TrimSpace(item.Title)
		if title == "" {
			continue
		}

		c := CandidatePaper{Title: title}

		for _, author := range item.Authors {
			if author == nil {
				continue
			}
			if name := strings.TrimSpace(author.Name); name != "" {
				c.Authors = append(c.Authors, name)
			}
		}

		// Content is the richer field when feeds carry both.
		body := item.Content
		if body == "" {
			body = item.Description
		}
		if abstract := stripMarkup(body); abstract != "" {
			c.Abstract = &abstract
		}

		link := strings.TrimSpace(item.Link)
		if link != "" {
			c.URL = &link
		}

		if doi := doiPattern.FindString(link); doi != "" {
			c.DOI = &doi
		}

		pubDate := item.PublishedParsed
		if pubDate == nil {
			pubDate = item.UpdatedParsed
		}
		if pubDate != nil {
			formatted := pubDate.UTC().Format(time.DateOnly)
			c.PublishedDate = &formatted
		}

		c.ExternalID = externalID(c.DOI, item.GUID, link)

		candidates = append(candidates, c)
	}

	return candidates, nil
}

// externalID picks the most stable identifier available: DOI first, then
// the feed's GUID, then the item link.
func externalID(doi *string, guid, link string) *string {
	if doi != nil {
		return doi
	}
	if g := strings.TrimSpace(guid); g != "" {
		return &g
	}
	if link != "" {
		return &link
	}
	return nil
}

// stripMarkup extracts the text of an HTML fragment, skipping script and
// style bodies and collapsing whitespace. Plain text passes through with
// entities decoded.
func stripMarkup(fragment string) string {
	if fragment == "" {
		return ""
	}

	tokenizer := htmlparser.NewTokenizer(strings.NewReader(fragment))
	var b strings.Builder
	skipDepth := 0

	for {
		switch tokenizer.Next() {
		case htmlparser.ErrorToken:
			// Tokenizer signals EOF through an error token.
			return strings.Join(strings.Fields(b.String()), " ")
		case htmlparser.StartTagToken:
			name, _ := tokenizer.TagName()
			if tag := string(name); tag == "script" || tag == "style" {
				skipDepth++
			}
		case htmlparser.EndTagToken:
			name, _ := tokenizer.TagName()
			if tag := string(name); (tag == "script" || tag == "style") && skipDepth > 0 {
				skipDepth--
			}
		case htmlparser.TextToken:
			if skipDepth == 0 {
				b.Write(tokenizer.Text())
				b.WriteByte(' ')
			}
		}
	}
}
