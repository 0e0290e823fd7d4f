package services

import (
	"bytes"
	"fmt"
	"shop-scraper/models"
	"shop-scraper/scraper"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateReport(t *testing.T) {
	t.Parallel()
	start := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	result := models.SearchResult{
		Keyword: "laptop",
		Status:  models.StatusCompletedWithErrors,
		Items: []models.Item{
			{Title: "ThinkPad", Price: "649,00€", Link: "https://ebay/1", Source: "ebay"},
			{Title: "ThinkPad dup", Price: "649,00€", Link: "https://ebay/1", Source: "ebay"},
			{Title: "XPS", Price: "1099,00€", Link: "https://ebay/2", Source: "ebay"},
			{Title: "Aspire", Price: "499,50€", Link: "https://otto/3", Source: "otto"},
			{Title: "Ohne Preis", Price: models.PriceNotAvailable, Link: "https://otto/4", Source: "otto"},
			{Title: "", Price: "1,00€", Link: "https://otto/5", Source: "otto"},
		},
		PerSource:  map[string]int{"ebay": 3, "otto": 3, "amazon": 0},
		Errors:     map[string]error{"amazon": fmt.Errorf("amazon: %w", scraper.ErrSoftBlock)},
		StartedAt:  start,
		FinishedAt: start.Add(4 * time.Second),
	}

	report := GenerateReport(result)
	assert.Equal(t, 4, report.TotalItems)
	assert.Equal(t, 3, report.PricedItems)
	assert.InDelta(t, 749.5, report.AveragePrice, 0.001)
	assert.InDelta(t, 499.5, report.MinPrice, 0.001)
	assert.InDelta(t, 1099.0, report.MaxPrice, 0.001)
	assert.Equal(t, "Aspire", report.Cheapest.Title)
	require.Len(t, report.CheapestOffers, 3)
	assert.Equal(t, "XPS", report.CheapestOffers[2].Title)
	assert.Equal(t, "soft_block", report.ErrorKinds["amazon"])
	assert.Equal(t, "amazon: soft block", report.Errors["amazon"])
	assert.Equal(t, 4*time.Second, report.Elapsed)
}

func TestGenerateReportEmpty(t *testing.T) {
	t.Parallel()
	report := GenerateReport(models.SearchResult{Keyword: "nothing", Status: models.StatusFailed})
	assert.Zero(t, report.TotalItems)
	assert.Empty(t, report.CheapestOffers)
	assert.Zero(t, report.Elapsed)
}

func TestPrintReport(t *testing.T) {
	t.Parallel()
	report := GenerateReport(models.SearchResult{
		Keyword:   "kühlschrank",
		Status:    models.StatusCompleted,
		Items:     []models.Item{{Title: "Bosch KGN39", Price: "599,00€", Link: "https://idealo/1", Source: "idealo"}},
		PerSource: map[string]int{"idealo": 1},
	})

	var buf bytes.Buffer
	PrintReport(&buf, report)
	out := buf.String()
	assert.Contains(t, out, "Search: kühlschrank")
	assert.Contains(t, out, "idealo: Bosch KGN39")
	assert.Contains(t, out, "599,00€")
	assert.Contains(t, out, "Cheapest: https://idealo/1")
	assert.NotContains(t, out, "Errors:")
}

func TestTruncateText(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "Kühl...", truncateText("Kühlschrank", 7))
	assert.Equal(t, "kurz", truncateText("kurz", 7))
}
