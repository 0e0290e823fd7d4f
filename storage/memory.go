package storage

import (
	"context"
	"shop-scraper/models"
	"slices"
	"sync"
	"time"
)

// MemoryStore keeps everything in process memory. It backs runs without a
// database and the tests.
type MemoryStore struct {
	mu        sync.RWMutex
	results   []memoryRow
	favorites []models.Item
	settings  models.Settings
}

type memoryRow struct {
	keyword   string
	item      models.Item
	scrapedAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Close() {}

// SaveSearchResults upserts by (source, keyword, link).
func (m *MemoryStore) SaveSearchResults(_ context.Context, source, keyword string, items []models.Item) error {
	key := KeywordKey(keyword)
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, item := range items {
		item.Source = source
		row := memoryRow{keyword: key, item: item, scrapedAt: scrapedAt(item)}
		i := slices.IndexFunc(m.results, func(r memoryRow) bool {
			return r.keyword == key && r.item.Source == source && r.item.Link == item.Link
		})
		if i >= 0 {
			m.results[i] = row
		} else {
			m.results = append(m.results, row)
		}
	}
	return nil
}

func (m *MemoryStore) GetSearchResults(_ context.Context, source, keyword string) ([]models.Item, error) {
	key := KeywordKey(keyword)
	m.mu.RLock()
	defer m.mu.RUnlock()

	var items []models.Item
	for _, r := range m.results {
		if r.keyword == key && r.item.Source == source {
			items = append(items, r.item)
		}
	}
	return items, nil
}

func (m *MemoryStore) ListSearchResults(_ context.Context, keyword string) ([]StoredResult, error) {
	key := KeywordKey(keyword)
	m.mu.RLock()
	defer m.mu.RUnlock()

	var rows []StoredResult
	for _, r := range m.results {
		if key == "" || r.keyword == key {
			rows = append(rows, StoredResult{Keyword: r.keyword, Item: r.item})
		}
	}
	return rows, nil
}

// ClearSearchResults removes the rows of keyword, or all rows when it is empty.
func (m *MemoryStore) ClearSearchResults(_ context.Context, keyword string) (int64, error) {
	key := KeywordKey(keyword)
	return m.deleteWhere(func(r memoryRow) bool { return key == "" || r.keyword == key }), nil
}

func (m *MemoryStore) PruneSearchResults(_ context.Context, olderThan time.Time) (int64, error) {
	return m.deleteWhere(func(r memoryRow) bool { return r.scrapedAt.Before(olderThan) }), nil
}

func (m *MemoryStore) deleteWhere(match func(memoryRow) bool) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	before := len(m.results)
	m.results = slices.DeleteFunc(m.results, match)
	return int64(before - len(m.results))
}

func (m *MemoryStore) SaveFavorites(_ context.Context, items []models.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, item := range items {
		if i := slices.IndexFunc(m.favorites, func(f models.Item) bool { return f.Link == item.Link }); i >= 0 {
			m.favorites = slices.Delete(m.favorites, i, i+1)
		}
		m.favorites = append(m.favorites, item)
	}
	return nil
}

// GetFavorites returns the newest favorite first.
func (m *MemoryStore) GetFavorites(_ context.Context) ([]models.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	favorites := slices.Clone(m.favorites)
	slices.Reverse(favorites)
	return favorites, nil
}

func (m *MemoryStore) DeleteFavorite(_ context.Context, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := slices.IndexFunc(m.favorites, func(f models.Item) bool { return f.Link == link })
	if i < 0 {
		return ErrFavoriteNotFound
	}
	m.favorites = slices.Delete(m.favorites, i, i+1)
	return nil
}

func (m *MemoryStore) ClearFavorites(_ context.Context) error {
	m.mu.Lock()
	m.favorites = nil
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) GetSettings(_ context.Context) (models.Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings, nil
}

func (m *MemoryStore) SaveSettings(_ context.Context, s models.Settings) error {
	m.mu.Lock()
	m.settings = s
	m.mu.Unlock()
	return nil
}
