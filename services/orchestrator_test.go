package services

import (
	"context"
	"errors"
	"fmt"
	"shop-scraper/models"
	"shop-scraper/scraper"
	"shop-scraper/storage"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubSource reads <li data-price> entries.
type stubSource struct{ name string }

func (s stubSource) Name() string { return s.name }

func (s stubSource) SearchURL(req models.SearchRequest, page int) string {
	return fmt.Sprintf("https://%s.example/s?q=%s&p=%d", s.name, req.Keyword, page)
}

func (s stubSource) ParseHTML(doc *goquery.Document) []models.Item {
	var items []models.Item
	doc.Find("li").Each(func(_ int, li *goquery.Selection) {
		item, err := scraper.NewItem(s.name, li.Text(), scraper.NormalizePrice(li.AttrOr("data-price", "")), li.AttrOr("data-link", ""), "", "")
		if err == nil {
			items = append(items, item)
		}
	})
	return items
}

type stubFetcher struct {
	fetch func(ctx context.Context, target string) (*scraper.Page, error)
}

func (f stubFetcher) Fetch(ctx context.Context, target string) (*scraper.Page, error) {
	return f.fetch(ctx, target)
}

func servingListings(source string, n int) stubFetcher {
	return stubFetcher{fetch: func(_ context.Context, target string) (*scraper.Page, error) {
		var b strings.Builder
		for i := range n {
			fmt.Fprintf(&b, `<li data-price="%d,00" data-link="https://%s.example/p/%d">%s item %d</li>`, 10+i, source, i, source, i)
		}
		return &scraper.Page{URL: target, StatusCode: 200, ContentType: "text/html", Body: []byte("<ul>" + b.String() + "</ul>")}, nil
	}}
}

func softBlocking() stubFetcher {
	return stubFetcher{fetch: func(_ context.Context, target string) (*scraper.Page, error) {
		return nil, &scraper.FetchError{URL: target, StatusCode: 503, Kind: scraper.ErrSoftBlock}
	}}
}

func sourceScraper(name string, f scraper.Fetcher) *scraper.SourceScraper {
	return scraper.NewSourceScraper(stubSource{name: name}, f, nil, nil, scraper.SourceScraperConfig{PageWorkers: 2})
}

// fakeScraper implements Scraper directly.
type fakeScraper struct {
	name   string
	search func(ctx context.Context, req models.SearchRequest) ([]models.Item, error)
}

func (f *fakeScraper) Name() string { return f.name }

func (f *fakeScraper) Search(ctx context.Context, req models.SearchRequest) ([]models.Item, error) {
	return f.search(ctx, req)
}

func noResults(context.Context, models.SearchRequest) ([]models.Item, error) {
	return nil, nil
}

func TestOrchestratorPartialFailure(t *testing.T) {
	t.Parallel()
	o := NewOrchestrator([]Scraper{
		sourceScraper("ebay", servingListings("ebay", 2)),
		sourceScraper("amazon", softBlocking()),
		sourceScraper("otto", servingListings("otto", 3)),
	}, OrchestratorConfig{SourceTimeout: 5 * time.Second})

	res, err := o.Search(context.Background(), models.SearchRequest{Keyword: "laptop", MaxPages: 1}, nil)
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompletedWithErrors, res.Status)
	assert.Len(t, res.Items, 5)
	assert.Equal(t, map[string]int{"ebay": 2, "amazon": 0, "otto": 3}, res.PerSource)
	require.Len(t, res.Errors, 1)
	assert.ErrorIs(t, res.Errors["amazon"], scraper.ErrSoftBlock)
	assert.Equal(t, "soft_block", scraper.Kind(res.Errors["amazon"]))
	assert.Contains(t, res.ErrorManifest()["amazon"], "503")
}

func TestOrchestratorAllSucceed(t *testing.T) {
	t.Parallel()
	o := NewOrchestrator([]Scraper{
		sourceScraper("ebay", servingListings("ebay", 1)),
		sourceScraper("idealo", servingListings("idealo", 1)),
	}, OrchestratorConfig{})

	res, err := o.Search(context.Background(), models.SearchRequest{Keyword: "tv", MaxPages: 2}, []string{"idealo"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, res.Status)
	assert.Equal(t, map[string]int{"idealo": 1}, res.PerSource)
	assert.Empty(t, res.Errors)
	assert.False(t, res.FinishedAt.Before(res.StartedAt))
}

func TestOrchestratorAllSourcesFail(t *testing.T) {
	t.Parallel()
	o := NewOrchestrator([]Scraper{
		sourceScraper("ebay", softBlocking()),
		sourceScraper("amazon", softBlocking()),
	}, OrchestratorConfig{})

	res, err := o.Search(context.Background(), models.SearchRequest{Keyword: "tv", MaxPages: 1}, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, res.Status)
	assert.Empty(t, res.Items)
	assert.Len(t, res.Errors, 2)
}

func TestOrchestratorPersistenceErrorKeepsItems(t *testing.T) {
	t.Parallel()
	o := NewOrchestrator([]Scraper{
		&fakeScraper{name: "ebay", search: func(context.Context, models.SearchRequest) ([]models.Item, error) {
			return []models.Item{{Title: "a", Link: "b"}}, fmt.Errorf("%w: save ebay results: disk full", scraper.ErrPersistence)
		}},
	}, OrchestratorConfig{})

	res, err := o.Search(context.Background(), models.SearchRequest{Keyword: "tv", MaxPages: 1}, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompletedWithErrors, res.Status)
	assert.Len(t, res.Items, 1)
	assert.Equal(t, "persistence", scraper.Kind(res.Errors["ebay"]))
}

func TestOrchestratorTimesOutHangingSource(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	const timeout = 150 * time.Millisecond
	o := NewOrchestrator([]Scraper{
		sourceScraper("ebay", servingListings("ebay", 2)),
		// Ignores its context entirely.
		&fakeScraper{name: "kaufland", search: func(context.Context, models.SearchRequest) ([]models.Item, error) {
			<-release
			return nil, nil
		}},
	}, OrchestratorConfig{SourceTimeout: timeout})

	start := time.Now()
	res, err := o.Search(context.Background(), models.SearchRequest{Keyword: "laptop", MaxPages: 1}, nil)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Less(t, elapsed, timeout+time.Second)
	assert.Equal(t, models.StatusCompletedWithErrors, res.Status)
	assert.Len(t, res.Items, 2)
	assert.ErrorIs(t, res.Errors["kaufland"], scraper.ErrTimeout)
	assert.Equal(t, "timeout", scraper.Kind(res.Errors["kaufland"]))
}

func TestOrchestratorPropagatesCancellationToSource(t *testing.T) {
	t.Parallel()
	cancelled := make(chan struct{})
	o := NewOrchestrator([]Scraper{
		&fakeScraper{name: "otto", search: func(ctx context.Context, _ models.SearchRequest) ([]models.Item, error) {
			<-ctx.Done()
			close(cancelled)
			return nil, ctx.Err()
		}},
	}, OrchestratorConfig{SourceTimeout: 50 * time.Millisecond})

	res, err := o.Search(context.Background(), models.SearchRequest{Keyword: "sofa", MaxPages: 1}, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, res.Status)
	assert.ErrorIs(t, res.Errors["otto"], scraper.ErrTimeout)

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("source context was not cancelled")
	}
}

func TestOrchestratorRecoversSourcePanic(t *testing.T) {
	t.Parallel()
	o := NewOrchestrator([]Scraper{
		&fakeScraper{name: "idealo", search: func(context.Context, models.SearchRequest) ([]models.Item, error) {
			panic("nil map")
		}},
		sourceScraper("ebay", servingListings("ebay", 1)),
	}, OrchestratorConfig{})

	res, err := o.Search(context.Background(), models.SearchRequest{Keyword: "tv", MaxPages: 1}, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompletedWithErrors, res.Status)
	assert.ErrorContains(t, res.Errors["idealo"], "panicked")
}

func TestOrchestratorSuspendsBlockedSource(t *testing.T) {
	t.Parallel()
	o := NewOrchestrator([]Scraper{
		sourceScraper("amazon", softBlocking()),
		sourceScraper("ebay", servingListings("ebay", 1)),
	}, OrchestratorConfig{Breaker: NewBreaker(1, time.Hour)})
	req := models.SearchRequest{Keyword: "tv", MaxPages: 1}

	first, err := o.Search(context.Background(), req, nil)
	require.NoError(t, err)
	assert.Equal(t, "soft_block", scraper.Kind(first.Errors["amazon"]))

	second, err := o.Search(context.Background(), req, nil)
	require.NoError(t, err)
	assert.Equal(t, "suspended", scraper.Kind(second.Errors["amazon"]))
	assert.Equal(t, 1, second.PerSource["ebay"])
	assert.False(t, o.SuspendedUntil("amazon").IsZero())
}

type fakeSettings struct {
	settings models.Settings
	err      error
	calls    int
}

func (f *fakeSettings) GetSettings(context.Context) (models.Settings, error) {
	f.calls++
	return f.settings, f.err
}

type fakePruner struct {
	mu     sync.Mutex
	cutoff time.Time
}

func (f *fakePruner) PruneSearchResults(_ context.Context, olderThan time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoff = olderThan
	return 4, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	ids    []string
	result models.SearchResult
}

func (f *fakeNotifier) SearchCompleted(_ context.Context, id string, result models.SearchResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, id)
	f.result = result
	return errors.New("broker down")
}

func TestOrchestratorUsesSettingsOncePerSearch(t *testing.T) {
	t.Parallel()
	var pagesSeen int
	settings := &fakeSettings{settings: models.Settings{MaxPages: 4, DefaultSearchPeriod: 7}}
	pruner := &fakePruner{}
	o := NewOrchestrator([]Scraper{
		&fakeScraper{name: "ebay", search: func(_ context.Context, req models.SearchRequest) ([]models.Item, error) {
			pagesSeen = req.MaxPages
			return nil, nil
		}},
	}, OrchestratorConfig{Settings: settings, Pruner: pruner})

	_, err := o.Search(context.Background(), models.SearchRequest{Keyword: "tv"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, pagesSeen)
	assert.Equal(t, 1, settings.calls)

	pruner.mu.Lock()
	defer pruner.mu.Unlock()
	assert.WithinDuration(t, time.Now().AddDate(0, 0, -7), pruner.cutoff, time.Minute)
}

func TestOrchestratorPrunesWithDefaultPeriodWhenUnset(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := storage.NewMemoryStore()
	old := time.Now().AddDate(0, 0, -90).UTC().Format(time.RFC3339)
	recent := time.Now().AddDate(0, 0, -2).UTC().Format(time.RFC3339)
	require.NoError(t, store.SaveSearchResults(ctx, "ebay", "tv", []models.Item{
		{Title: "CRT", Price: "20,00€", Link: "https://ebay/old", Timestamp: old},
		{Title: "OLED", Price: "999,00€", Link: "https://ebay/new", Timestamp: recent},
	}))

	o := NewOrchestrator([]Scraper{&fakeScraper{name: "ebay", search: noResults}}, OrchestratorConfig{
		DefaultMaxPages:     1,
		DefaultSearchPeriod: 30,
		Settings:            store,
		Pruner:              store,
	})
	assert.Equal(t, models.Settings{MaxPages: 1, DefaultSearchPeriod: 30}, o.DefaultSettings())

	_, err := o.Search(ctx, models.SearchRequest{Keyword: "radio"}, nil)
	require.NoError(t, err)

	left, err := store.GetSearchResults(ctx, "ebay", "tv")
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "OLED", left[0].Title)
}

func TestOrchestratorStoredPeriodOverridesDefault(t *testing.T) {
	t.Parallel()
	pruner := &fakePruner{}
	o := NewOrchestrator([]Scraper{&fakeScraper{name: "ebay", search: noResults}}, OrchestratorConfig{
		DefaultSearchPeriod: 30,
		Settings:            &fakeSettings{settings: models.Settings{DefaultSearchPeriod: 5}},
		Pruner:              pruner,
	})

	_, err := o.Search(context.Background(), models.SearchRequest{Keyword: "tv", MaxPages: 1}, nil)
	require.NoError(t, err)

	pruner.mu.Lock()
	defer pruner.mu.Unlock()
	assert.WithinDuration(t, time.Now().AddDate(0, 0, -5), pruner.cutoff, time.Minute)
}

func TestOrchestratorFallsBackWhenSettingsFail(t *testing.T) {
	t.Parallel()
	var pagesSeen int
	o := NewOrchestrator([]Scraper{
		&fakeScraper{name: "ebay", search: func(_ context.Context, req models.SearchRequest) ([]models.Item, error) {
			pagesSeen = req.MaxPages
			return nil, nil
		}},
	}, OrchestratorConfig{DefaultMaxPages: 2, Settings: &fakeSettings{err: errors.New("no db")}})

	_, err := o.Search(context.Background(), models.SearchRequest{Keyword: "tv"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, pagesSeen)
}

func TestOrchestratorNotifiesAndTracksSearch(t *testing.T) {
	t.Parallel()
	notifier := &fakeNotifier{}
	o := NewOrchestrator([]Scraper{sourceScraper("ebay", servingListings("ebay", 2))}, OrchestratorConfig{Notifier: notifier})

	s, err := o.StartSearch(context.Background(), models.SearchRequest{Keyword: "drone", MaxPages: 1}, []string{"ebay"})
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, []string{"ebay"}, s.Sources)

	got, ok := o.Lookup(s.ID)
	require.True(t, ok)
	assert.Same(t, s, got)

	res, err := s.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, s.Status())
	o.Wait()

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	assert.Equal(t, []string{s.ID}, notifier.ids)
	assert.Equal(t, res.Keyword, notifier.result.Keyword)
	assert.Len(t, notifier.result.Items, 2)
}

func TestOrchestratorCancelFinishesSearch(t *testing.T) {
	t.Parallel()
	o := NewOrchestrator([]Scraper{
		&fakeScraper{name: "kleinanzeigen", search: func(ctx context.Context, _ models.SearchRequest) ([]models.Item, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}},
	}, OrchestratorConfig{SourceTimeout: time.Minute})

	s, err := o.StartSearch(context.Background(), models.SearchRequest{Keyword: "sofa", MaxPages: 1}, nil)
	require.NoError(t, err)
	s.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := s.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, res.Status)
	assert.Equal(t, "canceled", scraper.Kind(res.Errors["kleinanzeigen"]))
}

func TestOrchestratorRejectsBadInput(t *testing.T) {
	t.Parallel()
	o := NewOrchestrator([]Scraper{sourceScraper("ebay", servingListings("ebay", 1))}, OrchestratorConfig{})

	_, err := o.StartSearch(context.Background(), models.SearchRequest{Keyword: "tv", MaxPages: 1}, []string{"zalando"})
	assert.ErrorIs(t, err, ErrUnknownSource)

	_, err = o.StartSearch(context.Background(), models.SearchRequest{Keyword: "", MaxPages: 1}, nil)
	assert.ErrorIs(t, err, scraper.ErrInvalidRequest)

	empty := NewOrchestrator(nil, OrchestratorConfig{})
	_, err = empty.StartSearch(context.Background(), models.SearchRequest{Keyword: "tv", MaxPages: 1}, nil)
	assert.ErrorIs(t, err, ErrUnknownSource)

	assert.Equal(t, []string{"ebay"}, o.Sources())
}
