package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"shop-scraper/api"
	"shop-scraper/config"
	"shop-scraper/events"
	"shop-scraper/models"
	"shop-scraper/scraper"
	"shop-scraper/scraper/sources"
	"shop-scraper/services"
	"shop-scraper/storage"
	"shop-scraper/utils"
	"strings"
	"syscall"
	"time"
)

type options struct {
	keyword   string
	pages     int
	sources   string
	minPrice  float64
	maxPrice  float64
	condition string
	serve     bool
	export    string
}

func parseFlags() options {
	var opts options
	flag.StringVar(&opts.keyword, "keyword", "", "search keyword")
	flag.IntVar(&opts.pages, "pages", 0, "result pages per source (default: stored setting or MAX_PAGES)")
	flag.StringVar(&opts.sources, "sources", "", "comma-separated sources (default: all configured)")
	flag.Float64Var(&opts.minPrice, "min", -1, "minimum price in EUR")
	flag.Float64Var(&opts.maxPrice, "max", -1, "maximum price in EUR")
	flag.StringVar(&opts.condition, "condition", "", "item condition: new or used")
	flag.BoolVar(&opts.serve, "serve", false, "run the HTTP API instead of a single search")
	flag.StringVar(&opts.export, "export", "", "write stored results for -keyword (all when empty) to this CSV file")
	flag.Parse()
	return opts
}

func main() {
	os.Exit(run(parseFlags()))
}

// run returns the process exit code: 0 on success, 1 when the search failed
// on every source or a dependency could not be set up, 2 on bad usage.
func run(opts options) int {
	cfg, err := config.Load()
	if err != nil {
		utils.Error("Invalid configuration: %v", err)
		return 1
	}

	closeLogger, err := utils.InitLogger(utils.LogOptions{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		FluentHost: cfg.FluentHost,
		FluentPort: cfg.FluentPort,
		FluentTag:  cfg.FluentTag,
	})
	if err != nil {
		utils.Warn("Fluentd logging disabled: %v", err)
	}
	defer closeLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		utils.Error("Could not open storage: %v", err)
		return 1
	}
	defer store.Close()

	if opts.export != "" && !opts.serve && opts.keyword == "" {
		return exportResults(ctx, store, "", opts.export)
	}

	scrapers, closeBrowser, err := buildScrapers(cfg, store)
	if err != nil {
		utils.Error("Could not set up sources: %v", err)
		return 1
	}
	defer closeBrowser()

	orchestratorCfg := services.OrchestratorConfig{
		SourceTimeout:       cfg.SourceTimeout,
		DefaultMaxPages:     cfg.MaxPages,
		DefaultSearchPeriod: cfg.DefaultSearchPeriod,
		Settings:            store,
		Pruner:              store,
		Breaker:             services.NewBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown),
	}
	if cfg.AMQPURL != "" {
		publisher, err := events.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			utils.Warn("Search events disabled: %v", err)
		} else {
			defer publisher.Close()
			orchestratorCfg.Notifier = publisher
		}
	}
	orchestrator := services.NewOrchestrator(scrapers, orchestratorCfg)

	utils.Info("Scraper starting | sources=%s pages=%d workers=%d delay=%v timeout=%v",
		strings.Join(orchestrator.Sources(), ","), cfg.MaxPages, cfg.PageWorkers, cfg.MinDelay, cfg.SourceTimeout)

	if opts.serve {
		return serve(ctx, cfg, orchestrator, store)
	}
	return runSearch(ctx, orchestrator, store, opts)
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	dsn := cfg.DSN()
	if dsn == "" {
		utils.Warn("No database configured, results are kept in memory only")
		return storage.NewMemoryStore(), nil
	}

	pg, err := storage.NewPostgresStore(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		pg.Close()
		return nil, err
	}
	utils.Success("Connected to PostgreSQL")
	return pg, nil
}

// buildScrapers wires one SourceScraper per configured source. Every scraper
// starts from PROXIES and owns its copy; the fetchers built here are templates
// that each scraper binds to that copy. Sources that need JavaScript share a
// single browser, which only launches on first use.
func buildScrapers(cfg *config.Config, store storage.Store) ([]services.Scraper, func(), error) {
	entries, err := sources.Select(cfg.Sources)
	if err != nil {
		return nil, nil, err
	}

	proxies, err := scraper.NewProxyPool(cfg.Proxies...)
	if err != nil {
		return nil, nil, err
	}
	agents := utils.NewUserAgentManager(utils.GenerateUserAgent)
	limiter := scraper.NewRateLimiterWithJitter(cfg.MinDelay, cfg.JitterMin, cfg.JitterMax)

	httpFetcher := scraper.NewHTTPFetcher(scraper.HTTPFetcherConfig{
		Timeout:           cfg.RequestTimeout,
		MaxAttempts:       cfg.MaxRetries,
		Backoff:           cfg.RetryBackoff,
		RequestsPerSecond: cfg.GlobalRPS,
	}, agents, nil)

	var browser *scraper.BrowserFetcher
	closeBrowser := func() {
		if browser != nil {
			browser.Close()
		}
	}

	scrapers := make([]services.Scraper, 0, len(entries))
	for _, entry := range entries {
		var fetcher scraper.Fetcher = httpFetcher
		if entry.Browser {
			if browser == nil {
				browser = scraper.NewBrowserFetcher(scraper.BrowserFetcherConfig{
					Headless:    cfg.Headless,
					Timeout:     cfg.RequestTimeout,
					Settle:      cfg.BrowserSettle,
					MaxAttempts: cfg.MaxRetries,
					Backoff:     cfg.RetryBackoff,
				}, agents, nil)
			}
			fetcher = browser
		}
		scrapers = append(scrapers, scraper.NewSourceScraper(entry.New(), fetcher, limiter, store, scraper.SourceScraperConfig{
			PageWorkers: cfg.PageWorkers,
			Proxies:     proxies,
		}))
	}

	if agents.Degraded() {
		utils.Warn("User-Agent generation failed, using the static fallback")
	}
	return scrapers, closeBrowser, nil
}

func runSearch(ctx context.Context, orchestrator *services.Orchestrator, store storage.Store, opts options) int {
	if strings.TrimSpace(opts.keyword) == "" {
		utils.Error("A -keyword is required unless -serve is set")
		flag.Usage()
		return 2
	}

	req := models.SearchRequest{
		Keyword:   opts.keyword,
		MaxPages:  opts.pages,
		Condition: models.Condition(strings.ToLower(strings.TrimSpace(opts.condition))),
	}
	if opts.minPrice >= 0 {
		req.MinPrice = &opts.minPrice
	}
	if opts.maxPrice >= 0 {
		req.MaxPrice = &opts.maxPrice
	}

	utils.Section("Searching for " + req.Keyword)
	start := time.Now()
	search, err := orchestrator.StartSearch(ctx, req, splitList(opts.sources))
	if err != nil {
		utils.Error("Search could not run: %v", err)
		return 2
	}
	// an interrupt cancels the sources; the search still finishes with what it gathered
	<-search.Done()
	result, _ := search.Result()
	orchestrator.Wait()

	printSummary(result, utils.Elapsed(start))
	services.PrintReport(os.Stdout, services.GenerateReport(result))

	if opts.export != "" {
		if code := exportResults(ctx, store, result.Keyword, opts.export); code != 0 {
			return code
		}
	}

	if result.Status == models.StatusFailed {
		return 1
	}
	return 0
}

func exportResults(ctx context.Context, store storage.Store, keyword, path string) int {
	rows, err := store.ListSearchResults(ctx, keyword)
	if err != nil {
		utils.Error("Failed to read stored results: %v", err)
		return 1
	}
	if len(rows) == 0 {
		utils.Warn("No stored results to export.")
		return 0
	}
	if err := storage.NewCSVWriter(path).Write(rows); err != nil {
		utils.Error("Failed to save CSV: %v", err)
		return 1
	}
	utils.Success("Exported %d results to %s", len(rows), path)
	return 0
}

func serve(ctx context.Context, cfg *config.Config, orchestrator *services.Orchestrator, store storage.Store) int {
	server := api.NewServer(cfg.HTTPAddr, api.NewRouter(api.NewHandlers(ctx, orchestrator, store)))

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	code := 0
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.Error("HTTP server failed: %v", err)
			code = 1
		}
	case <-ctx.Done():
		utils.Info("Shutting down...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		utils.Warn("HTTP shutdown: %v", err)
	}
	orchestrator.Wait()
	return code
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func printSummary(result models.SearchResult, elapsed string) {
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════════╗")
	fmt.Println("║                SEARCH COMPLETE               ║")
	fmt.Println("╠══════════════════════════════════════════════╣")
	fmt.Printf("║  Keyword        : %-26s║\n", truncate(result.Keyword, 26))
	fmt.Printf("║  Total items    : %-26d║\n", len(result.Items))
	fmt.Printf("║  Failed sources : %-26d║\n", len(result.Errors))
	fmt.Printf("║  Elapsed        : %-26s║\n", elapsed)
	fmt.Println("╚══════════════════════════════════════════════╝")
	fmt.Println()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
