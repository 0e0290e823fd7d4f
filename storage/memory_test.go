package storage

import (
	"context"
	"shop-scraper/models"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func item(title, link, price string) models.Item {
	return models.Item{Title: title, Link: link, Price: price, Shipping: models.ShippingSeeSite, Location: "ebay", Timestamp: time.Now().UTC().Format(time.RFC3339)}
}

func TestKeywordKey(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "kühlschrank a++", KeywordKey("  KÜHLSCHRANK   A++ "))
	assert.Empty(t, KeywordKey("   "))
}

func TestMemoryStoreSearchResults(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.SaveSearchResults(ctx, "ebay", "Laptop", []models.Item{
		item("ThinkPad", "https://ebay/1", "649,00€"),
		item("XPS", "https://ebay/2", "999,00€"),
	}))
	require.NoError(t, s.SaveSearchResults(ctx, "ebay", "laptop", []models.Item{item("ThinkPad", "https://ebay/1", "599,00€")}))
	require.NoError(t, s.SaveSearchResults(ctx, "otto", "laptop", []models.Item{item("Aspire", "https://otto/1", "499,00€")}))
	require.NoError(t, s.SaveSearchResults(ctx, "ebay", "tv", []models.Item{item("OLED", "https://ebay/9", "1299,00€")}))

	got, err := s.GetSearchResults(ctx, "ebay", " LAPTOP")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "599,00€", got[0].Price)
	assert.Equal(t, "ebay", got[0].Source)

	all, err := s.ListSearchResults(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 4)

	laptops, err := s.ListSearchResults(ctx, "laptop")
	require.NoError(t, err)
	assert.Len(t, laptops, 3)
	assert.Equal(t, "laptop", laptops[0].Keyword)

	n, err := s.ClearSearchResults(ctx, "Laptop")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	n, err = s.ClearSearchResults(ctx, "")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestMemoryStorePrune(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore()

	old := item("Alt", "https://ebay/old", "1,00€")
	old.Timestamp = time.Now().AddDate(0, 0, -40).UTC().Format(time.RFC3339)
	require.NoError(t, s.SaveSearchResults(ctx, "ebay", "x", []models.Item{old, item("Neu", "https://ebay/new", "2,00€")}))

	n, err := s.PruneSearchResults(ctx, time.Now().AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	left, err := s.GetSearchResults(ctx, "ebay", "x")
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "Neu", left[0].Title)
}

func TestMemoryStoreFavorites(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.SaveFavorites(ctx, []models.Item{item("A", "https://a", "1,00€"), item("B", "https://b", "2,00€")}))
	require.NoError(t, s.SaveFavorites(ctx, []models.Item{item("A again", "https://a", "0,90€")}))

	favs, err := s.GetFavorites(ctx)
	require.NoError(t, err)
	require.Len(t, favs, 2)
	assert.Equal(t, "A again", favs[0].Title)

	require.NoError(t, s.DeleteFavorite(ctx, "https://b"))
	assert.ErrorIs(t, s.DeleteFavorite(ctx, "https://b"), ErrFavoriteNotFound)

	require.NoError(t, s.ClearFavorites(ctx))
	favs, err = s.GetFavorites(ctx)
	require.NoError(t, err)
	assert.Empty(t, favs)
}

func TestMemoryStoreSettings(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore()

	got, err := s.GetSettings(ctx)
	require.NoError(t, err)
	assert.Zero(t, got)

	want := models.Settings{MaxPages: 5, DefaultSearchPeriod: 14}
	require.NoError(t, s.SaveSettings(ctx, want))
	got, err = s.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
