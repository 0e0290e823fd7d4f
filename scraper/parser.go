package scraper

import (
	"fmt"
	"net/url"
	"shop-scraper/models"
	"shop-scraper/utils"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// PageParser extracts items from one result page. Implementations keep all
// selector knowledge for their marketplace and hold no mutable state.
type PageParser interface {
	ParseHTML(doc *goquery.Document) []models.Item
}

// JSONParser is implemented by sources whose endpoints may answer with JSON.
type JSONParser interface {
	ParseJSON(page *Page) ([]models.Item, error)
}

// Source is one marketplace: how to address its search and how to read it.
type Source interface {
	Name() string
	SearchURL(req models.SearchRequest, page int) string
	PageParser
}

// ItemKeyer is implemented by sources that can derive a stable product id from
// a link. Without it the link itself is the identity.
type ItemKeyer interface {
	ItemKey(link string) string
}

// ParsePage dispatches on the content type. Unknown content yields no items.
func ParsePage(p PageParser, page *Page) ([]models.Item, error) {
	switch page.Kind() {
	case ContentHTML:
		doc, err := page.Document()
		if err != nil {
			return nil, err
		}
		return p.ParseHTML(doc), nil
	case ContentJSON:
		jp, ok := p.(JSONParser)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected json from %s", ErrParse, page.URL)
		}
		return jp.ParseJSON(page)
	default:
		return nil, nil
	}
}

// NewItem validates and assembles an item. A missing title or link is a
// ParseError; missing optional fields get their sentinels.
func NewItem(source, title, price, link, shipping, location string) (models.Item, error) {
	title = CleanText(title)
	link = strings.TrimSpace(link)
	if title == "" {
		return models.Item{}, fmt.Errorf("%w: listing without title", ErrParse)
	}
	if link == "" {
		return models.Item{}, fmt.Errorf("%w: listing %q without link", ErrParse, title)
	}
	if price == "" {
		price = models.PriceNotAvailable
	}
	if shipping = CleanText(shipping); shipping == "" {
		shipping = models.ShippingSeeSite
	}
	if location = CleanText(location); location == "" {
		location = source
	}
	return models.Item{
		Title:     title,
		Price:     price,
		Link:      link,
		Shipping:  shipping,
		Location:  location,
		Source:    source,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// CleanText collapses whitespace runs.
func CleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// First returns the first element matched by the first selector that matches
// anything below s. The result is empty when none match.
func First(s *goquery.Selection, selectors ...string) *goquery.Selection {
	for _, sel := range selectors {
		if m := s.Find(sel); m.Length() > 0 {
			return m.First()
		}
	}
	return s.Slice(0, 0)
}

// Containers returns every element matched by the first selector strategy
// that matches anything, together with that selector.
func Containers(doc *goquery.Document, selectors ...string) (*goquery.Selection, string) {
	for _, sel := range selectors {
		if m := doc.Find(sel); m.Length() > 0 {
			return m, sel
		}
	}
	return doc.Selection.Slice(0, 0), ""
}

// ResolveURL makes href absolute against base. It returns "" for unusable input.
func ResolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "javascript:") || href == "#" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if ref.IsAbs() {
		return ref.String()
	}
	b, err := url.Parse(base)
	if err != nil {
		return ""
	}
	return b.ResolveReference(ref).String()
}

var blockMarkers = []string{"captcha", "access denied", "zugriff verweigert", "robot check", "are you a human", "ungewöhnlichen datenverkehr"}

// LooksBlocked reports whether a page reads like an anti-bot wall.
func LooksBlocked(doc *goquery.Document) bool {
	text := strings.ToLower(doc.Find("title").Text() + " " + doc.Find("body").Text())
	for _, marker := range blockMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// CanonicalLink drops query and fragment, which marketplaces use for tracking.
func CanonicalLink(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return link
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

// MissingPrice is the reason a listing without any price is dropped. listing
// names it in the log, usually by title or link.
func MissingPrice(listing string) error {
	return fmt.Errorf("%w: listing %q without price", ErrParse, listing)
}

// LogDropped records a listing skipped during parsing.
func LogDropped(source string, err error) {
	utils.Logger().Debug("listing dropped", "source", source, "err", err)
}
