package amazon

import (
	"net/url"
	"regexp"
	"shop-scraper/models"
	"shop-scraper/scraper"
	"strconv"

	"github.com/PuerkitoBio/goquery"
)

const (
	Name     = "amazon"
	baseURL  = "https://www.amazon.de"
	location = "Amazon.de"
)

var asin = regexp.MustCompile(`/(?:dp|gp/product)/([A-Z0-9]{10})`)

type Source struct{}

func New() *Source {
	return &Source{}
}

func (s *Source) Name() string { return Name }

func (s *Source) SearchURL(req models.SearchRequest, page int) string {
	q := url.Values{}
	q.Set("k", req.Keyword)
	if page > 1 {
		q.Set("page", strconv.Itoa(page))
	}
	if req.MinPrice != nil {
		q.Set("low-price", scraper.FilterPrice(*req.MinPrice))
	}
	if req.MaxPrice != nil {
		q.Set("high-price", scraper.FilterPrice(*req.MaxPrice))
	}
	if req.Condition != models.ConditionAny {
		q.Set("condition", string(req.Condition))
	}
	return baseURL + "/s?" + q.Encode()
}

func (s *Source) ParseHTML(doc *goquery.Document) []models.Item {
	var items []models.Item
	doc.Find(`div[data-component-type="s-search-result"]`).Each(func(_ int, result *goquery.Selection) {
		heading := result.Find("h2").First()
		if heading.Length() == 0 {
			return
		}
		href, ok := heading.Find("a").First().Attr("href")
		if !ok {
			href, _ = result.Find("a.a-link-normal[href]").First().Attr("href")
		}

		// a-offscreen carries the full price; the visible span splits whole and fraction.
		priceEl := scraper.First(result, "span.a-price span.a-offscreen", "span.a-price")
		if priceEl.Length() == 0 {
			scraper.LogDropped(Name, scraper.MissingPrice(scraper.CleanText(heading.Text())))
			return
		}

		item, err := scraper.NewItem(Name,
			heading.Text(),
			scraper.NormalizePrice(priceEl.Text()),
			scraper.ResolveURL(baseURL, href),
			result.Find("div.a-row.a-size-base.a-color-secondary").First().Text(),
			location,
		)
		if err != nil {
			scraper.LogDropped(Name, err)
			return
		}
		items = append(items, item)
	})
	return items
}

// ItemKey returns the ASIN of a product link.
func (s *Source) ItemKey(link string) string {
	if m := asin.FindStringSubmatch(link); m != nil {
		return m[1]
	}
	return ""
}
