package scraper

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ContentKind is how a fetched body should be parsed.
type ContentKind int

const (
	ContentUnknown ContentKind = iota
	ContentHTML
	ContentJSON
)

func (k ContentKind) String() string {
	switch k {
	case ContentHTML:
		return "html"
	case ContentJSON:
		return "json"
	default:
		return "unknown"
	}
}

// Page is one successfully fetched response.
type Page struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
}

// Kind classifies the body by its Content-Type header. Marketplaces serve
// vendor JSON types such as application/vnd.x+json from their search APIs, so
// any +json suffix counts as JSON.
func (p *Page) Kind() ContentKind {
	ct := strings.ToLower(p.ContentType)
	switch {
	case strings.Contains(ct, "application/json"), strings.Contains(ct, "+json"):
		return ContentJSON
	case strings.Contains(ct, "text/html"), strings.Contains(ct, "application/xhtml"):
		return ContentHTML
	default:
		return ContentUnknown
	}
}

// Document parses the body as HTML. The document's URL is set to the page
// URL so relative links can be resolved against it.
func (p *Page) Document() (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(p.Body))
	if err != nil {
		return nil, fmt.Errorf("%w: read html from %s: %v", ErrParse, p.URL, err)
	}
	if u, err := url.Parse(p.URL); err == nil {
		doc.Url = u
	}
	return doc, nil
}

func (p *Page) DecodeJSON(v any) error {
	if err := json.Unmarshal(p.Body, v); err != nil {
		return fmt.Errorf("%w: decode json from %s: %v", ErrParse, p.URL, err)
	}
	return nil
}
