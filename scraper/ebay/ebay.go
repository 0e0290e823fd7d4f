package ebay

import (
	"net/url"
	"regexp"
	"shop-scraper/models"
	"shop-scraper/scraper"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	Name    = "ebay"
	baseURL = "https://www.ebay.de"
)

var itemID = regexp.MustCompile(`/itm/(?:[^/]+/)?(\d+)`)

var conditionIDs = map[models.Condition]string{
	models.ConditionNew:  "1000",
	models.ConditionUsed: "3000",
}

type Source struct{}

func New() *Source {
	return &Source{}
}

func (s *Source) Name() string { return Name }

func (s *Source) SearchURL(req models.SearchRequest, page int) string {
	q := url.Values{}
	q.Set("_nkw", req.Keyword)
	if page > 1 {
		q.Set("_pgn", strconv.Itoa(page))
	}
	if req.MinPrice != nil {
		q.Set("_udlo", scraper.FilterPrice(*req.MinPrice))
	}
	if req.MaxPrice != nil {
		q.Set("_udhi", scraper.FilterPrice(*req.MaxPrice))
	}
	if id, ok := conditionIDs[req.Condition]; ok {
		q.Set("LH_ItemCondition", id)
	}
	return baseURL + "/sch/i.html?" + q.Encode()
}

func (s *Source) ParseHTML(doc *goquery.Document) []models.Item {
	listings, _ := scraper.Containers(doc, "div.s-item__wrapper", "li.s-item")

	var items []models.Item
	listings.Each(func(_ int, listing *goquery.Selection) {
		title := scraper.CleanText(listing.Find(".s-item__title").First().Text())
		// The first tile is an ad for eBay's own shop.
		if title == "" || strings.Contains(title, "Shop on eBay") {
			return
		}
		priceEl := listing.Find(".s-item__price").First()
		if priceEl.Length() == 0 {
			scraper.LogDropped(Name, scraper.MissingPrice(title))
			return
		}
		href, _ := listing.Find("a.s-item__link").First().Attr("href")

		item, err := scraper.NewItem(Name,
			title,
			scraper.NormalizePrice(priceEl.Text()),
			scraper.ResolveURL(baseURL, href),
			listing.Find(".s-item__shipping").First().Text(),
			listing.Find(".s-item__location").First().Text(),
		)
		if err != nil {
			scraper.LogDropped(Name, err)
			return
		}
		items = append(items, item)
	})
	return items
}

// ItemKey returns the numeric listing id of an /itm/ link.
func (s *Source) ItemKey(link string) string {
	if m := itemID.FindStringSubmatch(link); m != nil {
		return m[1]
	}
	return ""
}
