package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"shop-scraper/models"
	"shop-scraper/utils"
	"time"

	"golang.org/x/sync/errgroup"
)

// ResultSaver persists the items one source found for a keyword.
type ResultSaver interface {
	SaveSearchResults(ctx context.Context, source, keyword string, items []models.Item) error
}

type SourceScraperConfig struct {
	// PageWorkers bounds how many pages of one search are fetched at once.
	// Values below 1 mean 3.
	PageWorkers int
	// Proxies seeds the scraper's proxy list. The scraper works on its own
	// copy, so AddProxy and ClearProxies never reach other scrapers.
	Proxies *ProxyPool
}

// ProxyBinder is implemented by fetchers that can route through a given
// proxy pool. A SourceScraper binds such a fetcher to its own pool.
type ProxyBinder interface {
	WithProxies(proxies *ProxyPool) Fetcher
}

// SourceScraper runs a keyword search against one source: it builds the page
// URLs, fetches them with bounded concurrency under the rate limiter, parses,
// de-duplicates and persists.
type SourceScraper struct {
	source      Source
	fetcher     Fetcher
	limiter     *RateLimiter
	store       ResultSaver
	pageWorkers int
	proxies     *ProxyPool
	log         *slog.Logger
}

func NewSourceScraper(source Source, fetcher Fetcher, limiter *RateLimiter, store ResultSaver, cfg SourceScraperConfig) *SourceScraper {
	if cfg.PageWorkers < 1 {
		cfg.PageWorkers = 3
	}
	proxies := cfg.Proxies.Clone()
	if binder, ok := fetcher.(ProxyBinder); ok {
		fetcher = binder.WithProxies(proxies)
	}
	return &SourceScraper{
		source:      source,
		fetcher:     fetcher,
		limiter:     limiter,
		store:       store,
		pageWorkers: cfg.PageWorkers,
		proxies:     proxies,
		log:         utils.Logger().With("source", source.Name()),
	}
}

func (s *SourceScraper) Name() string {
	return s.source.Name()
}

// AddProxy validates proxy and adds it to this scraper's list. Fetches started
// afterwards may route through it.
func (s *SourceScraper) AddProxy(proxy string) error {
	if err := s.proxies.Add(proxy); err != nil {
		return err
	}
	s.log.Debug("proxy added", "proxy", proxy)
	return nil
}

// ClearProxies empties the list; later fetches go out directly.
func (s *SourceScraper) ClearProxies() {
	s.proxies.Clear()
	s.log.Debug("proxy list cleared")
}

func (s *SourceScraper) ProxyCount() int {
	return s.proxies.Count()
}

// Search scrapes pages 1..MaxPages. It returns every item it could gather.
// The error is non-nil when all pages failed, in which case there are no
// items, or when persisting failed, in which case the items are still returned.
// A failing page never aborts the other pages.
func (s *SourceScraper) Search(ctx context.Context, req models.SearchRequest) (items []models.Item, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("search panicked", "panic", r)
			items, err = nil, fmt.Errorf("%s: search panicked: %v", s.Name(), r)
		}
	}()

	req, err = NormalizeRequest(req)
	if err != nil {
		return nil, err
	}

	log := s.log.With("keyword", req.Keyword)
	log.Info("search started", "pages", req.MaxPages)
	start := time.Now()

	pages := make([][]models.Item, req.MaxPages)
	pageErrs := make([]error, req.MaxPages)

	g := new(errgroup.Group)
	g.SetLimit(min(s.pageWorkers, req.MaxPages))
	for page := 1; page <= req.MaxPages; page++ {
		g.Go(func() error {
			pages[page-1], pageErrs[page-1] = s.scrapePage(ctx, log, req, page)
			return nil
		})
	}
	_ = g.Wait()

	seen := make(map[string]struct{})
	var failed []error
	for i, pageItems := range pages {
		if pageErrs[i] != nil {
			failed = append(failed, pageErrs[i])
			continue
		}
		for _, item := range pageItems {
			key := s.itemKey(item.Link)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			items = append(items, item)
		}
	}

	if len(failed) == req.MaxPages {
		err := fmt.Errorf("%s: all %d pages failed: %w", s.Name(), len(failed), errors.Join(failed...))
		log.Error("search failed", "err", err, "elapsed", utils.Elapsed(start))
		return nil, err
	}

	log.Info("search finished", "items", len(items), "failed_pages", len(failed), "elapsed", utils.Elapsed(start))

	if len(items) > 0 && s.store != nil {
		if err := s.store.SaveSearchResults(ctx, s.Name(), req.Keyword, items); err != nil {
			err = fmt.Errorf("%w: save %s results: %w", ErrPersistence, s.Name(), err)
			log.Error("persisting results failed", "err", err)
			return items, err
		}
	}
	return items, nil
}

func (s *SourceScraper) scrapePage(ctx context.Context, log *slog.Logger, req models.SearchRequest, page int) (items []models.Item, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("page %d panicked: %v", page, r)
			log.Error("page panicked", "page", page, "panic", r)
		}
	}()

	target := s.source.SearchURL(req, page)
	log = log.With("page", page)

	if s.limiter != nil {
		if err := s.limiter.WaitTurn(ctx, s.Name()); err != nil {
			return nil, err
		}
	}

	p, err := s.fetcher.Fetch(ctx, target)
	if err != nil {
		if errors.Is(err, ErrSoftBlock) {
			log.Warn("source rejected the request", "url", target, "err", err)
		} else {
			log.Error("page fetch failed", "url", target, "err", err)
		}
		return nil, err
	}

	kind := p.Kind()
	if kind == ContentUnknown {
		log.Warn("unparseable content type, skipping page", "url", target, "content_type", p.ContentType)
		return nil, nil
	}

	items, err = ParsePage(s.source, p)
	if err != nil {
		log.Error("page parse failed", "url", target, "err", err)
		return nil, err
	}

	if len(items) == 0 {
		blocked := false
		if kind == ContentHTML {
			if doc, err := p.Document(); err == nil {
				blocked = LooksBlocked(doc)
			}
		}
		log.Warn("page yielded no listings, possible anti-bot block", "url", target, "err", ErrZeroResults, "block_markers", blocked)
	}

	log.Debug("page parsed", "items", len(items), "format", kind.String())
	return items, nil
}

func (s *SourceScraper) itemKey(link string) string {
	if keyer, ok := s.source.(ItemKeyer); ok {
		if key := keyer.ItemKey(link); key != "" {
			return key
		}
	}
	return link
}
