package storage

import (
	"context"
	"errors"
	"fmt"
	"shop-scraper/models"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const queryTimeout = 30 * time.Second

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	poolCfg.MaxConns = 8
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	sql := `
	CREATE TABLE IF NOT EXISTS search_results (
		id BIGSERIAL PRIMARY KEY,
		source TEXT NOT NULL,
		keyword TEXT NOT NULL,
		title TEXT NOT NULL,
		price TEXT NOT NULL,
		link TEXT NOT NULL,
		shipping TEXT,
		location TEXT,
		scraped_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (source, keyword, link)
	);

	CREATE INDEX IF NOT EXISTS idx_search_results_keyword ON search_results(keyword);
	CREATE INDEX IF NOT EXISTS idx_search_results_scraped_at ON search_results(scraped_at);

	CREATE TABLE IF NOT EXISTS favorites (
		link TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		price TEXT NOT NULL,
		shipping TEXT,
		location TEXT,
		source TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS settings (
		id SMALLINT PRIMARY KEY CHECK (id = 1),
		max_pages INTEGER NOT NULL,
		default_search_period INTEGER NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	`

	if _, err := s.pool.Exec(ctx, sql); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}

	return nil
}

// SaveSearchResults upserts the items in one batch; a repeated link for the
// same source and keyword refreshes the stored price.
func (s *PostgresStore) SaveSearchResults(ctx context.Context, source, keyword string, items []models.Item) error {
	if len(items) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	batch := &pgx.Batch{}
	insertSQL := `
	INSERT INTO search_results (source, keyword, title, price, link, shipping, location, scraped_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (source, keyword, link) DO UPDATE
	SET title = EXCLUDED.title, price = EXCLUDED.price, shipping = EXCLUDED.shipping,
		location = EXCLUDED.location, scraped_at = EXCLUDED.scraped_at;
	`

	key := KeywordKey(keyword)
	enqueued := 0
	for _, item := range items {
		title := strings.TrimSpace(item.Title)
		link := strings.TrimSpace(item.Link)
		if title == "" || link == "" {
			continue
		}

		batch.Queue(insertSQL, source, key, title, item.Price, link, item.Shipping, item.Location, scrapedAt(item))
		enqueued++
	}

	if enqueued == 0 {
		return nil
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < enqueued; i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch insert failed at row %d: %w", i, err)
		}
	}

	return nil
}

func (s *PostgresStore) GetSearchResults(ctx context.Context, source, keyword string) ([]models.Item, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
	SELECT keyword, source, title, price, link, shipping, location, scraped_at
	FROM search_results WHERE source = $1 AND keyword = $2 ORDER BY id`, source, KeywordKey(keyword))
	if err != nil {
		return nil, fmt.Errorf("failed to query search results: %w", err)
	}

	stored, err := pgx.CollectRows(rows, scanStoredResult)
	if err != nil {
		return nil, fmt.Errorf("failed to read search results: %w", err)
	}
	items := make([]models.Item, len(stored))
	for i, r := range stored {
		items[i] = r.Item
	}
	return items, nil
}

func (s *PostgresStore) ListSearchResults(ctx context.Context, keyword string) ([]StoredResult, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `SELECT keyword, source, title, price, link, shipping, location, scraped_at FROM search_results`
	var args []any
	if key := KeywordKey(keyword); key != "" {
		query += ` WHERE keyword = $1`
		args = append(args, key)
	}
	query += ` ORDER BY id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query search results: %w", err)
	}
	stored, err := pgx.CollectRows(rows, scanStoredResult)
	if err != nil {
		return nil, fmt.Errorf("failed to read search results: %w", err)
	}
	return stored, nil
}

func scanStoredResult(row pgx.CollectableRow) (StoredResult, error) {
	var (
		r                  StoredResult
		shipping, location *string
		at                 time.Time
	)
	err := row.Scan(&r.Keyword, &r.Source, &r.Title, &r.Price, &r.Link, &shipping, &location, &at)
	if err != nil {
		return r, err
	}
	r.Shipping = deref(shipping, models.ShippingSeeSite)
	r.Location = deref(location, r.Source)
	r.Timestamp = at.UTC().Format(time.RFC3339)
	return r, nil
}

// ClearSearchResults removes the rows of keyword, or all rows when it is empty.
func (s *PostgresStore) ClearSearchResults(ctx context.Context, keyword string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `DELETE FROM search_results`
	var args []any
	if key := KeywordKey(keyword); key != "" {
		query += ` WHERE keyword = $1`
		args = append(args, key)
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to clear search results: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) PruneSearchResults(ctx context.Context, olderThan time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `DELETE FROM search_results WHERE scraped_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to prune search results: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) SaveFavorites(ctx context.Context, items []models.Item) error {
	if len(items) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	batch := &pgx.Batch{}
	for _, item := range items {
		batch.Queue(`
		INSERT INTO favorites (link, title, price, shipping, location, source)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (link) DO UPDATE
		SET title = EXCLUDED.title, price = EXCLUDED.price, shipping = EXCLUDED.shipping,
			location = EXCLUDED.location, source = EXCLUDED.source, created_at = NOW()`,
			item.Link, item.Title, item.Price, item.Shipping, item.Location, item.Source)
	}

	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to save favorites: %w", err)
	}
	return nil
}

// GetFavorites returns the newest favorite first.
func (s *PostgresStore) GetFavorites(ctx context.Context) ([]models.Item, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
	SELECT link, title, price, shipping, location, source, created_at
	FROM favorites ORDER BY created_at DESC, link`)
	if err != nil {
		return nil, fmt.Errorf("failed to query favorites: %w", err)
	}

	favorites, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Item, error) {
		var (
			item                       models.Item
			shipping, location, source *string
			at                         time.Time
		)
		if err := row.Scan(&item.Link, &item.Title, &item.Price, &shipping, &location, &source, &at); err != nil {
			return item, err
		}
		item.Source = deref(source, "")
		item.Shipping = deref(shipping, models.ShippingSeeSite)
		item.Location = deref(location, item.Source)
		item.Timestamp = at.UTC().Format(time.RFC3339)
		return item, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read favorites: %w", err)
	}
	return favorites, nil
}

func (s *PostgresStore) DeleteFavorite(ctx context.Context, link string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `DELETE FROM favorites WHERE link = $1`, link)
	if err != nil {
		return fmt.Errorf("failed to delete favorite: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrFavoriteNotFound
	}
	return nil
}

func (s *PostgresStore) ClearFavorites(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if _, err := s.pool.Exec(ctx, `DELETE FROM favorites`); err != nil {
		return fmt.Errorf("failed to clear favorites: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSettings(ctx context.Context) (models.Settings, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var settings models.Settings
	err := s.pool.QueryRow(ctx, `SELECT max_pages, default_search_period FROM settings WHERE id = 1`).
		Scan(&settings.MaxPages, &settings.DefaultSearchPeriod)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Settings{}, nil
	}
	if err != nil {
		return models.Settings{}, fmt.Errorf("failed to read settings: %w", err)
	}
	return settings, nil
}

func (s *PostgresStore) SaveSettings(ctx context.Context, settings models.Settings) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
	INSERT INTO settings (id, max_pages, default_search_period, updated_at)
	VALUES (1, $1, $2, NOW())
	ON CONFLICT (id) DO UPDATE
	SET max_pages = EXCLUDED.max_pages, default_search_period = EXCLUDED.default_search_period, updated_at = NOW()`,
		settings.MaxPages, settings.DefaultSearchPeriod)
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

func deref(s *string, fallback string) string {
	if s == nil || *s == "" {
		return fallback
	}
	return *s
}
