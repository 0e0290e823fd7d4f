package idealo

import (
	"net/url"
	"regexp"
	"shop-scraper/models"
	"shop-scraper/scraper"
	"strconv"

	"github.com/PuerkitoBio/goquery"
)

const (
	Name     = "idealo"
	baseURL  = "https://www.idealo.de"
	location = "Idealo.de"
)

var productID = regexp.MustCompile(`/([\w-]+)\.html`)

type Source struct{}

func New() *Source {
	return &Source{}
}

func (s *Source) Name() string { return Name }

// SearchURL pages through p, which counts from zero and is omitted on page 1.
func (s *Source) SearchURL(req models.SearchRequest, page int) string {
	q := url.Values{}
	q.Set("q", req.Keyword)
	if page > 1 {
		q.Set("p", strconv.Itoa(page-1))
	}
	if req.MinPrice != nil {
		q.Set("price_min", scraper.FilterPrice(*req.MinPrice))
	}
	if req.MaxPrice != nil {
		q.Set("price_max", scraper.FilterPrice(*req.MaxPrice))
	}
	if req.Condition != models.ConditionAny {
		q.Set("condition", string(req.Condition))
	}
	return baseURL + "/preisvergleich/MainSearchProductCategory.html?" + q.Encode()
}

func (s *Source) ParseHTML(doc *goquery.Document) []models.Item {
	products, _ := scraper.Containers(doc, "div.offerList-item", "article.productList-box", `[data-test="product-row"]`)

	var items []models.Item
	products.Each(func(_ int, product *goquery.Selection) {
		linkEl := product.Find(`a.offerList-item-description-title, [data-test="product-link"]`).First()
		link := scraper.ResolveURL(baseURL, linkEl.AttrOr("href", ""))
		if s.ItemKey(link) == "" {
			return
		}

		price := scraper.NormalizePrice(product.Find(`.offerList-item-priceMin, [data-test="price"]`).First().Text())
		if price == models.PriceNotAvailable {
			scraper.LogDropped(Name, scraper.MissingPrice(link))
			return
		}

		item, err := scraper.NewItem(Name,
			linkEl.Text(),
			price,
			link,
			scraper.First(product, ".offerList-item-shipment", ".delivery-info", `[data-test="shipping-cost"]`).Text(),
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

// ItemKey returns the product id from a .../<id>.html link.
func (s *Source) ItemKey(link string) string {
	if m := productID.FindStringSubmatch(link); m != nil {
		return m[1]
	}
	return ""
}
