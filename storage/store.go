package storage

import (
	"context"
	"errors"
	"shop-scraper/models"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var ErrFavoriteNotFound = errors.New("favorite not found")

// StoredResult is one persisted search result row.
type StoredResult struct {
	Keyword string
	models.Item
}

// ResultStore persists search results and favorites.
type ResultStore interface {
	SaveSearchResults(ctx context.Context, source, keyword string, items []models.Item) error
	GetSearchResults(ctx context.Context, source, keyword string) ([]models.Item, error)
	// ListSearchResults returns every stored row, or only those of keyword when it is set.
	ListSearchResults(ctx context.Context, keyword string) ([]StoredResult, error)
	ClearSearchResults(ctx context.Context, keyword string) (int64, error)
	PruneSearchResults(ctx context.Context, olderThan time.Time) (int64, error)

	SaveFavorites(ctx context.Context, items []models.Item) error
	GetFavorites(ctx context.Context) ([]models.Item, error)
	DeleteFavorite(ctx context.Context, link string) error
	ClearFavorites(ctx context.Context) error
}

// SettingsStore keeps the single settings record. A store without one
// returns the zero Settings.
type SettingsStore interface {
	GetSettings(ctx context.Context) (models.Settings, error)
	SaveSettings(ctx context.Context, s models.Settings) error
}

type Store interface {
	ResultStore
	SettingsStore
	Close()
}

// KeywordKey is the form keywords are stored under, so "Kühlschrank" and
// " kühlschrank " share their results.
func KeywordKey(keyword string) string {
	return strings.Join(strings.Fields(cases.Lower(language.German).String(keyword)), " ")
}

// scrapedAt reads an item timestamp, falling back to now.
func scrapedAt(item models.Item) time.Time {
	if t, err := time.Parse(time.RFC3339, item.Timestamp); err == nil {
		return t
	}
	return time.Now().UTC()
}
