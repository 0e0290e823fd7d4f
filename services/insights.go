package services

import (
	"fmt"
	"io"
	"math"
	"shop-scraper/models"
	"shop-scraper/scraper"
	"sort"
	"strings"
	"time"
)

// Report is the printable summary of one search.
//
// TotalItems counts the items left after CleanItems; PricedItems is the
// subset whose price could be read as a number, and only those feed the
// average, the spread and CheapestOffers (at most five, cheapest first).
// Errors holds the message and ErrorKinds the short kind label per failed
// source.
type Report struct {
	Keyword        string
	Status         models.SearchStatus
	TotalItems     int
	PricedItems    int
	AveragePrice   float64
	MinPrice       float64
	MaxPrice       float64
	Cheapest       models.Item
	CheapestOffers []models.Item
	PerSource      map[string]int
	Errors         map[string]string
	ErrorKinds     map[string]string
	Elapsed        time.Duration
}

// GenerateReport summarizes a finished search: counts per source, the
// error manifest and the price spread of the offers found.
func GenerateReport(result models.SearchResult) Report {
	cleaned := CleanItems(result.Items)

	report := Report{
		Keyword:    result.Keyword,
		Status:     result.Status,
		TotalItems: len(cleaned),
		PerSource:  make(map[string]int, len(result.PerSource)),
		Errors:     result.ErrorManifest(),
		ErrorKinds: make(map[string]string, len(result.Errors)),
	}
	if !result.FinishedAt.IsZero() {
		report.Elapsed = result.FinishedAt.Sub(result.StartedAt)
	}
	for source, n := range result.PerSource {
		report.PerSource[source] = n
	}
	for source, err := range result.Errors {
		report.ErrorKinds[source] = scraper.Kind(err)
	}

	if len(cleaned) == 0 {
		return report
	}

	type priced struct {
		item  models.Item
		value float64
	}
	var (
		offers   []priced
		priceSum float64
		minPrice = math.MaxFloat64
		maxPrice = -1.0
	)

	for _, item := range cleaned {
		v, ok := scraper.PriceValue(item.Price)
		if !ok {
			continue
		}
		offers = append(offers, priced{item: item, value: v})
		priceSum += v
		if v < minPrice {
			minPrice = v
			report.Cheapest = item
		}
		if v > maxPrice {
			maxPrice = v
		}
	}

	if len(offers) > 0 {
		report.PricedItems = len(offers)
		report.AveragePrice = priceSum / float64(len(offers))
		report.MinPrice = minPrice
		report.MaxPrice = maxPrice
	}

	sort.SliceStable(offers, func(i, j int) bool {
		return offers[i].value < offers[j].value
	})
	for i := 0; i < len(offers) && i < 5; i++ {
		report.CheapestOffers = append(report.CheapestOffers, offers[i].item)
	}

	return report
}

// PrintReport writes report to w as a boxed table.
func PrintReport(w io.Writer, report Report) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "┌──────────────────────────────────────────────────────────────┐")
	fmt.Fprintf(w, "│ %-60s │\n", truncateText("Search: "+report.Keyword, 60))
	fmt.Fprintln(w, "├───────────────────────────────┬──────────────────────────────┤")
	fmt.Fprintf(w, "│ %-29s │ %-28s │\n", "Status", report.Status)
	fmt.Fprintf(w, "│ %-29s │ %-28d │\n", "Items Found", report.TotalItems)
	fmt.Fprintf(w, "│ %-29s │ %-28d │\n", "Items With Price", report.PricedItems)
	fmt.Fprintf(w, "│ %-29s │ %-28s │\n", "Average Price", scraper.FormatPriceValue(report.AveragePrice))
	fmt.Fprintf(w, "│ %-29s │ %-28s │\n", "Minimum Price", scraper.FormatPriceValue(report.MinPrice))
	fmt.Fprintf(w, "│ %-29s │ %-28s │\n", "Maximum Price", scraper.FormatPriceValue(report.MaxPrice))
	fmt.Fprintf(w, "│ %-29s │ %-28s │\n", "Elapsed", report.Elapsed.Round(time.Millisecond))
	fmt.Fprintln(w, "└───────────────────────────────┴──────────────────────────────┘")

	fmt.Fprintln(w)
	fmt.Fprintln(w, "┌──────────────────────────────┬────────┬──────────────────────┐")
	fmt.Fprintln(w, "│ Source                       │ Items  │ Error                │")
	fmt.Fprintln(w, "├──────────────────────────────┼────────┼──────────────────────┤")
	for _, source := range sortedSources(report.PerSource) {
		kind := report.ErrorKinds[source]
		if kind == "" {
			kind = "-"
		}
		fmt.Fprintf(w, "│ %-28s │ %-6d │ %-20s │\n", source, report.PerSource[source], kind)
	}
	fmt.Fprintln(w, "└──────────────────────────────┴────────┴──────────────────────┘")

	if len(report.Errors) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Errors:")
		for _, source := range sortedSources(report.Errors) {
			fmt.Fprintf(w, "  %s: %s\n", source, report.Errors[source])
		}
	}

	if len(report.CheapestOffers) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "┌─────┬──────────────────────────────────────────────┬──────────────┐")
	fmt.Fprintln(w, "│ #   │ Cheapest Offers                              │ Price        │")
	fmt.Fprintln(w, "├─────┼──────────────────────────────────────────────┼──────────────┤")
	for i, item := range report.CheapestOffers {
		fmt.Fprintf(w, "│ %-3d │ %-44s │ %-12s │\n", i+1, truncateText(item.Source+": "+item.Title, 44), item.Price)
	}
	fmt.Fprintln(w, "└─────┴──────────────────────────────────────────────┴──────────────┘")
	fmt.Fprintf(w, "Cheapest: %s\n", report.Cheapest.Link)
}

// CleanItems drops incomplete records and repeated links across sources.
//
// Titles and links are trimmed first. An item without either is dropped, and
// of several items with the same link only the first one is kept, so the
// order of items is preserved.
func CleanItems(items []models.Item) []models.Item {
	seen := make(map[string]bool)
	cleaned := make([]models.Item, 0, len(items))

	for _, item := range items {
		item.Title = strings.TrimSpace(item.Title)
		item.Link = strings.TrimSpace(item.Link)
		if item.Title == "" || item.Link == "" {
			continue
		}
		if seen[item.Link] {
			continue
		}
		seen[item.Link] = true
		cleaned = append(cleaned, item)
	}

	return cleaned
}

func sortedSources[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// truncateText cuts s to max runes.
func truncateText(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
