package kaufland

import (
	"net/url"
	"regexp"
	"shop-scraper/models"
	"shop-scraper/scraper"
	"strconv"

	"github.com/PuerkitoBio/goquery"
)

// Kaufland renders its result grid client-side; fetch it with a browser.
const (
	Name     = "kaufland"
	baseURL  = "https://www.kaufland.de"
	location = "Kaufland.de"
)

var productID = regexp.MustCompile(`/product/(\d+)`)

type Source struct{}

func New() *Source {
	return &Source{}
}

func (s *Source) Name() string { return Name }

// SearchURL supports paging only; price and condition are not filterable.
func (s *Source) SearchURL(req models.SearchRequest, page int) string {
	u := baseURL + "/suche/?q=" + url.QueryEscape(req.Keyword)
	if page > 1 {
		u += "&page=" + strconv.Itoa(page)
	}
	return u
}

func (s *Source) ParseHTML(doc *goquery.Document) []models.Item {
	var items []models.Item
	doc.Find(".product-tile").Each(func(_ int, tile *goquery.Selection) {
		titleEl := tile.Find(".product-title").First()
		href := titleEl.AttrOr("href", "")
		if href == "" {
			href = tile.Find("a[href]").First().AttrOr("href", "")
		}
		priceEl := tile.Find(".product-price, .special-price").First()
		if priceEl.Length() == 0 {
			scraper.LogDropped(Name, scraper.MissingPrice(scraper.CleanText(titleEl.Text())))
			return
		}

		item, err := scraper.NewItem(Name,
			titleEl.Text(),
			scraper.NormalizePrice(priceEl.Text()),
			scraper.ResolveURL(baseURL, href),
			tile.Find(".product-delivery").First().Text(),
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

func (s *Source) ItemKey(link string) string {
	if m := productID.FindStringSubmatch(link); m != nil {
		return m[1]
	}
	return ""
}
