package kleinanzeigen

import (
	"fmt"
	"net/url"
	"regexp"
	"shop-scraper/models"
	"shop-scraper/scraper"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Kleinanzeigen serves its ad list behind a JS challenge; fetch it with a browser.
const (
	Name    = "kleinanzeigen"
	baseURL = "https://www.kleinanzeigen.de"
)

var adID = regexp.MustCompile(`/s-anzeige/[^/]+/(\d+)`)

type Source struct{}

func New() *Source {
	return &Source{}
}

func (s *Source) Name() string { return Name }

// SearchURL encodes everything in the path: keyword lowercased, each word
// path-escaped and joined by dashes, optional preis:<min>:<max> with open
// ends left empty, then seite:<n>.
func (s *Source) SearchURL(req models.SearchRequest, page int) string {
	words := strings.Fields(cases.Lower(language.German).String(req.Keyword))
	for i, w := range words {
		words[i] = url.PathEscape(w)
	}
	u := baseURL + "/s-suche/" + strings.Join(words, "-")
	if req.MinPrice != nil || req.MaxPrice != nil {
		var lo, hi string
		if req.MinPrice != nil {
			lo = scraper.FilterPrice(*req.MinPrice)
		}
		if req.MaxPrice != nil {
			hi = scraper.FilterPrice(*req.MaxPrice)
		}
		u += fmt.Sprintf("/preis:%s:%s", lo, hi)
	}
	return fmt.Sprintf("%s/seite:%d", u, page)
}

func (s *Source) ParseHTML(doc *goquery.Document) []models.Item {
	var items []models.Item
	doc.Find("article.aditem").Each(func(_ int, ad *goquery.Selection) {
		titleEl := ad.Find("a.ellipsis").First()
		href := titleEl.AttrOr("href", "")
		if href == "" {
			href = ad.Find("a[href]").First().AttrOr("href", "")
		}

		// "VB" without an amount is kept with the sentinel price; an ad
		// without any price line is not.
		priceEl := ad.Find("p.aditem-main--price").First()
		if priceEl.Length() == 0 {
			scraper.LogDropped(Name, scraper.MissingPrice(scraper.CleanText(titleEl.Text())))
			return
		}

		item, err := scraper.NewItem(Name,
			titleEl.Text(),
			scraper.NormalizePrice(priceEl.Text()),
			scraper.ResolveURL(baseURL, href),
			ad.Find(".aditem-main--middle--tags, .simpletag").First().Text(),
			ad.Find("div.aditem-main--top--left").First().Text(),
		)
		if err != nil {
			scraper.LogDropped(Name, err)
			return
		}
		items = append(items, item)
	})
	return items
}

func (s *Source) ItemKey(link string) string {
	if m := adID.FindStringSubmatch(link); m != nil {
		return m[1]
	}
	return ""
}
