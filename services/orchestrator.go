package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"shop-scraper/models"
	"shop-scraper/scraper"
	"shop-scraper/utils"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultSourceTimeout = 30 * time.Second
	notifyTimeout        = 5 * time.Second
	maxTrackedSearches   = 256
)

var ErrUnknownSource = errors.New("unknown source")

// Scraper is one source's keyword search, as provided by scraper.SourceScraper.
type Scraper interface {
	Name() string
	Search(ctx context.Context, req models.SearchRequest) ([]models.Item, error)
}

// SettingsReader supplies the user settings read once per search.
type SettingsReader interface {
	GetSettings(ctx context.Context) (models.Settings, error)
}

// Pruner drops stored results older than a cutoff.
type Pruner interface {
	PruneSearchResults(ctx context.Context, olderThan time.Time) (int64, error)
}

// Notifier is told about every finished search.
type Notifier interface {
	SearchCompleted(ctx context.Context, id string, result models.SearchResult) error
}

type OrchestratorConfig struct {
	SourceTimeout   time.Duration
	DefaultMaxPages int

	// DefaultSearchPeriod is the pruning age in days used while the stored
	// settings leave it unset; 0 disables pruning in that case.
	DefaultSearchPeriod int

	Settings SettingsReader
	Pruner   Pruner
	Notifier Notifier
	Breaker  *Breaker
}

// Orchestrator fans a search out over the active sources and collects what
// each of them found.
type Orchestrator struct {
	scrapers map[string]Scraper
	order    []string
	cfg      OrchestratorConfig
	log      *slog.Logger

	mu       sync.RWMutex
	searches map[string]*Search
	tracked  []string
	running  sync.WaitGroup
}

func NewOrchestrator(scrapers []Scraper, cfg OrchestratorConfig) *Orchestrator {
	if cfg.SourceTimeout <= 0 {
		cfg.SourceTimeout = defaultSourceTimeout
	}
	if cfg.DefaultMaxPages < 1 {
		cfg.DefaultMaxPages = 3
	}
	o := &Orchestrator{
		scrapers: make(map[string]Scraper, len(scrapers)),
		cfg:      cfg,
		log:      utils.Logger().With("component", "orchestrator"),
		searches: make(map[string]*Search),
	}
	for _, s := range scrapers {
		if _, dup := o.scrapers[s.Name()]; dup {
			continue
		}
		o.scrapers[s.Name()] = s
		o.order = append(o.order, s.Name())
	}
	return o
}

// Sources lists the configured sources in registration order.
func (o *Orchestrator) Sources() []string {
	return slices.Clone(o.order)
}

// SuspendedUntil reports when a suspended source becomes available again.
func (o *Orchestrator) SuspendedUntil(source string) time.Time {
	return o.cfg.Breaker.SuspendedUntil(source)
}

// StartSearch validates req, registers a search and runs it in the
// background. An empty source list selects every configured source. ctx
// bounds the whole search and must outlive this call.
func (o *Orchestrator) StartSearch(ctx context.Context, req models.SearchRequest, sources []string) (*Search, error) {
	active, err := o.activeScrapers(sources)
	if err != nil {
		return nil, err
	}

	settings := o.readSettings(ctx)
	if req.MaxPages == 0 {
		req.MaxPages = settings.MaxPages
	}
	req, err = scraper.NormalizeRequest(req)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	s := newSearch(uuid.NewString(), req, active, cancel)
	o.track(s)

	o.running.Add(1)
	go func() {
		defer o.running.Done()
		defer cancel()
		o.run(runCtx, s, active, settings)
	}()
	return s, nil
}

// Search runs a search and waits for its result.
func (o *Orchestrator) Search(ctx context.Context, req models.SearchRequest, sources []string) (models.SearchResult, error) {
	s, err := o.StartSearch(ctx, req, sources)
	if err != nil {
		return models.SearchResult{}, err
	}
	return s.Wait(ctx)
}

func (o *Orchestrator) Lookup(id string) (*Search, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	s, ok := o.searches[id]
	return s, ok
}

// Wait blocks until every background search has finished.
func (o *Orchestrator) Wait() {
	o.running.Wait()
}

func (o *Orchestrator) activeScrapers(names []string) ([]Scraper, error) {
	if len(names) == 0 {
		names = o.order
	}
	var active []Scraper
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		s, ok := o.scrapers[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownSource, name)
		}
		if !seen[name] {
			seen[name] = true
			active = append(active, s)
		}
	}
	if len(active) == 0 {
		return nil, fmt.Errorf("%w: no sources configured", ErrUnknownSource)
	}
	return active, nil
}

// DefaultSettings are the settings a search uses where the stored ones are unset.
func (o *Orchestrator) DefaultSettings() models.Settings {
	return models.Settings{
		MaxPages:            o.cfg.DefaultMaxPages,
		DefaultSearchPeriod: o.cfg.DefaultSearchPeriod,
	}
}

func (o *Orchestrator) readSettings(ctx context.Context) models.Settings {
	defaults := o.DefaultSettings()
	if o.cfg.Settings == nil {
		return defaults
	}
	stored, err := o.cfg.Settings.GetSettings(ctx)
	if err != nil {
		o.log.Warn("reading settings failed, using defaults", "err", err)
		return defaults
	}
	return stored.WithDefaults(defaults)
}

func (o *Orchestrator) track(s *Search) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.searches[s.ID] = s
	o.tracked = append(o.tracked, s.ID)

	for len(o.tracked) > maxTrackedSearches {
		oldest, ok := o.searches[o.tracked[0]]
		if ok && oldest.Status() == models.StatusRunning {
			break
		}
		delete(o.searches, o.tracked[0])
		o.tracked = o.tracked[1:]
	}
}

func (o *Orchestrator) run(ctx context.Context, s *Search, active []Scraper, settings models.Settings) {
	log := o.log.With("search", s.ID, "keyword", s.Request.Keyword)
	log.Info("search started", "sources", len(active), "pages", s.Request.MaxPages)

	o.prune(ctx, log, settings.DefaultSearchPeriod)

	result := models.SearchResult{
		Keyword:   s.Request.Keyword,
		PerSource: make(map[string]int, len(active)),
		Errors:    make(map[string]error),
		StartedAt: s.startedAt,
	}

	outcomes := o.fanOut(ctx, s.Request, active)

	failed := 0
	for _, out := range outcomes {
		result.PerSource[out.Source] = len(out.Items)
		result.Items = append(result.Items, out.Items...)
		if out.Err != nil {
			result.Errors[out.Source] = out.Err
		}
		if out.Failed() {
			failed++
		}
	}

	switch {
	case failed == len(outcomes):
		result.Status = models.StatusFailed
	case len(result.Errors) > 0:
		result.Status = models.StatusCompletedWithErrors
	default:
		result.Status = models.StatusCompleted
	}
	result.FinishedAt = time.Now()
	s.finish(result)

	log.Info("search finished",
		"status", result.Status,
		"items", len(result.Items),
		"failed_sources", failed,
		"elapsed", utils.Elapsed(result.StartedAt))

	o.notify(ctx, log, s.ID, result)
}

type sourceJob struct {
	index   int
	scraper Scraper
}

type sourceResult struct {
	index   int
	outcome models.SourceOutcome
}

// fanOut searches every source on its own worker and returns the outcomes
// in the order of active. Results pass through one channel drained here.
func (o *Orchestrator) fanOut(ctx context.Context, req models.SearchRequest, active []Scraper) []models.SourceOutcome {
	jobs := make(chan sourceJob, len(active))
	results := make(chan sourceResult, len(active))

	var wg sync.WaitGroup
	wg.Add(len(active))
	for range active {
		go func() {
			defer wg.Done()
			for job := range jobs {
				results <- sourceResult{index: job.index, outcome: o.searchSource(ctx, req, job.scraper)}
			}
		}()
	}

	for i, s := range active {
		jobs <- sourceJob{index: i, scraper: s}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	outcomes := make([]models.SourceOutcome, len(active))
	for r := range results {
		outcomes[r.index] = r.outcome
	}
	return outcomes
}

// searchSource runs one source under the per-source timeout. A source that
// does not return in time is abandoned; its context is cancelled so the
// in-flight fetches stop.
func (o *Orchestrator) searchSource(ctx context.Context, req models.SearchRequest, s Scraper) models.SourceOutcome {
	name := s.Name()
	if !o.cfg.Breaker.Allow(name) {
		until := o.cfg.Breaker.SuspendedUntil(name)
		o.log.Warn("skipping suspended source", "source", name, "until", until.Format(time.TimeOnly))
		return models.SourceOutcome{Source: name, Err: fmt.Errorf("%w: %s until %s", scraper.ErrSuspended, name, until.Format(time.TimeOnly))}
	}

	sctx, cancel := context.WithTimeout(ctx, o.cfg.SourceTimeout)
	defer cancel()

	done := make(chan models.SourceOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				o.log.Error("source panicked", "source", name, "panic", r)
				done <- models.SourceOutcome{Source: name, Err: fmt.Errorf("%s: panicked: %v", name, r)}
			}
		}()
		items, err := s.Search(sctx, req)
		done <- models.SourceOutcome{Source: name, Items: items, Err: err}
	}()

	var out models.SourceOutcome
	select {
	case out = <-done:
	case <-sctx.Done():
		if ctx.Err() != nil {
			out = models.SourceOutcome{Source: name, Err: ctx.Err()}
		} else {
			out = models.SourceOutcome{Source: name, Err: fmt.Errorf("%w: %s after %s", scraper.ErrTimeout, name, o.cfg.SourceTimeout)}
		}
	}

	// A search that ran into its deadline reports that as a timeout too.
	if out.Failed() && errors.Is(out.Err, context.DeadlineExceeded) && !errors.Is(out.Err, scraper.ErrTimeout) {
		out.Err = fmt.Errorf("%w: %s after %s: %w", scraper.ErrTimeout, name, o.cfg.SourceTimeout, out.Err)
	}

	if out.Failed() {
		o.log.Error("source failed", "source", name, "kind", scraper.Kind(out.Err), "err", out.Err)
	} else if out.Err != nil {
		o.log.Warn("source finished with errors", "source", name, "items", len(out.Items), "err", out.Err)
	}
	o.cfg.Breaker.Record(out)
	return out
}

func (o *Orchestrator) prune(ctx context.Context, log *slog.Logger, days int) {
	if o.cfg.Pruner == nil || days <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -days)
	n, err := o.cfg.Pruner.PruneSearchResults(ctx, cutoff)
	if err != nil {
		log.Warn("pruning old results failed", "err", err)
		return
	}
	if n > 0 {
		log.Debug("pruned old results", "rows", n, "older_than", cutoff.Format(time.DateOnly))
	}
}

func (o *Orchestrator) notify(ctx context.Context, log *slog.Logger, id string, result models.SearchResult) {
	if o.cfg.Notifier == nil {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := o.cfg.Notifier.SearchCompleted(nctx, id, result); err != nil {
		log.Warn("publishing search event failed", "err", err)
	}
}
