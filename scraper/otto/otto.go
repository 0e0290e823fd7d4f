package otto

import (
	"encoding/json"
	"net/url"
	"shop-scraper/models"
	"shop-scraper/scraper"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	Name     = "otto"
	baseURL  = "https://www.otto.de"
	location = "Otto.de"
)

var (
	containerSelectors = []string{"article", "[class*=product]", "div[data-testid=grid-container] > div"}
	titleSelectors     = []string{"h2", "h3", "[class*=title]", "[data-testid*=title]", "[data-qa*=title]", "a[class*=product]"}
	priceSelectors     = []string{"[class*=price]", "[data-testid*=price]", "[data-qa*=price]"}
	shippingSelectors  = []string{"[class*=shipping]", "[class*=delivery]", "[data-testid*=shipping]", "[data-qa*=shipping]"}
)

type Source struct{}

func New() *Source {
	return &Source{}
}

func (s *Source) Name() string { return Name }

// SearchURL puts the keyword into the path, lowercased and joined by '+'.
// Otto has no condition filter.
func (s *Source) SearchURL(req models.SearchRequest, page int) string {
	// Casers hold state, so each call gets its own.
	words := strings.Fields(cases.Lower(language.German).String(req.Keyword))
	for i, w := range words {
		words[i] = url.PathEscape(w)
	}

	q := url.Values{}
	if page > 1 {
		q.Set("page", strconv.Itoa(page))
	}
	if req.MinPrice != nil {
		q.Set("priceMin", scraper.FilterPrice(*req.MinPrice))
	}
	if req.MaxPrice != nil {
		q.Set("priceMax", scraper.FilterPrice(*req.MaxPrice))
	}

	u := baseURL + "/suche/" + strings.Join(words, "+") + "/"
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func (s *Source) ParseHTML(doc *goquery.Document) []models.Item {
	products, _ := scraper.Containers(doc, containerSelectors...)

	var items []models.Item
	products.Each(func(_ int, product *goquery.Selection) {
		href, _ := scraper.First(product, "a[href]", "[data-testid*=link]").Attr("href")

		price := models.PriceNotAvailable
		for _, sel := range priceSelectors {
			if el := product.Find(sel).First(); el.Length() > 0 {
				if price = scraper.NormalizePrice(el.Text()); price != models.PriceNotAvailable {
					break
				}
			}
		}
		if price == models.PriceNotAvailable {
			scraper.LogDropped(Name, scraper.MissingPrice(href))
			return
		}

		item, err := scraper.NewItem(Name,
			scraper.First(product, titleSelectors...).Text(),
			price,
			scraper.ResolveURL(baseURL, href),
			scraper.First(product, shippingSelectors...).Text(),
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

type searchResponse struct {
	Products []product `json:"products"`
}

type product struct {
	Name     string          `json:"name"`
	Title    string          `json:"title"`
	URL      string          `json:"url"`
	Price    json.RawMessage `json:"price"`
	Delivery string          `json:"deliveryInfo"`
}

// ParseJSON reads the search API shape: {"products": [...]}.
func (s *Source) ParseJSON(page *scraper.Page) ([]models.Item, error) {
	var resp searchResponse
	if err := page.DecodeJSON(&resp); err != nil {
		return nil, err
	}

	var items []models.Item
	for _, p := range resp.Products {
		price := jsonPrice(p.Price)
		if price == models.PriceNotAvailable {
			continue
		}
		title := p.Name
		if title == "" {
			title = p.Title
		}
		item, err := scraper.NewItem(Name, title, price, scraper.ResolveURL(baseURL, p.URL), p.Delivery, location)
		if err != nil {
			scraper.LogDropped(Name, err)
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// jsonPrice accepts a number, a display string or an object with a value field.
func jsonPrice(raw json.RawMessage) string {
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return scraper.FormatPriceValue(n)
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return scraper.NormalizePrice(text)
	}
	var obj struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && len(obj.Value) > 0 {
		return jsonPrice(obj.Value)
	}
	return models.PriceNotAvailable
}

func (s *Source) ItemKey(link string) string {
	return scraper.CanonicalLink(link)
}
