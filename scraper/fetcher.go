package scraper

import (
	"context"
	"errors"
	"net/http"
	"shop-scraper/utils"
	"time"

	"github.com/gocolly/colly/v2"
	"golang.org/x/time/rate"
)

// Fetcher retrieves one result page.
type Fetcher interface {
	Fetch(ctx context.Context, target string) (*Page, error)
}

// requestHeaders are sent with every request next to a rotating User-Agent.
var requestHeaders = map[string]string{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
	"Accept-Language":           "de,en-US;q=0.7,en;q=0.3",
	"DNT":                       "1",
	"Connection":                "keep-alive",
	"Upgrade-Insecure-Requests": "1",
	"Sec-Fetch-Dest":            "document",
	"Sec-Fetch-Mode":            "navigate",
	"Sec-Fetch-Site":            "none",
	"Sec-Fetch-User":            "?1",
	"Cache-Control":             "max-age=0",
	"Referer":                   "https://www.google.com/",
}

// HTTPFetcherConfig sets the per-request timeout and the retry policy for
// network failures.
type HTTPFetcherConfig struct {
	Timeout     time.Duration
	MaxAttempts int
	Backoff     time.Duration
	// RequestsPerSecond caps all outgoing requests of this fetcher and of
	// every fetcher derived from it through WithProxies; 0 disables the cap.
	RequestsPerSecond float64
}

// HTTPFetcher performs plain GET requests through a colly collector. The base
// collector is configured once and cloned per fetch, so callbacks never leak
// between concurrent fetches while the HTTP client is shared.
//
// Clones share the collector's transport, and with it the proxy func. A
// scraper that manages its own proxy list therefore gets its own collector
// from WithProxies rather than a clone.
type HTTPFetcher struct {
	cfg         HTTPFetcherConfig
	collector   *colly.Collector
	agents      *utils.UserAgentManager
	limiter     *rate.Limiter
	maxAttempts int
	backoff     time.Duration
}

func NewHTTPFetcher(cfg HTTPFetcherConfig, agents *utils.UserAgentManager, proxies *ProxyPool) *HTTPFetcher {
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return newHTTPFetcher(cfg, agents, proxies, limiter)
}

func newHTTPFetcher(cfg HTTPFetcherConfig, agents *utils.UserAgentManager, proxies *ProxyPool, limiter *rate.Limiter) *HTTPFetcher {
	c := colly.NewCollector(colly.AllowURLRevisit())
	if cfg.Timeout > 0 {
		c.SetRequestTimeout(cfg.Timeout)
	}
	if proxies != nil {
		c.SetProxyFunc(proxies.ProxyFunc())
	}

	f := &HTTPFetcher{
		cfg:         cfg,
		collector:   c,
		agents:      agents,
		limiter:     limiter,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.Backoff,
	}
	if f.maxAttempts < 1 {
		f.maxAttempts = 3
	}
	return f
}

// WithProxies returns a fetcher that routes every request through proxies.
// It keeps the timeout, retry policy, User-Agent source and global rate cap
// of f.
func (f *HTTPFetcher) WithProxies(proxies *ProxyPool) Fetcher {
	return newHTTPFetcher(f.cfg, f.agents, proxies, f.limiter)
}

// Fetch GETs target. Network failures are retried with backoff; 403 and 503
// return a soft block at once; any other non-200 status is ErrUnexpectedStatus.
func (f *HTTPFetcher) Fetch(ctx context.Context, target string) (*Page, error) {
	var page *Page
	err := utils.Retry(ctx, f.maxAttempts, f.backoff, IsRetryable, func(attempt int) error {
		p, err := f.fetchOnce(ctx, target)
		if err != nil {
			return err
		}
		page = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, target string) (*Page, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	c := f.collector.Clone()
	c.Context = ctx

	var (
		page   *Page
		status int
	)
	c.OnRequest(func(r *colly.Request) {
		for k, v := range requestHeaders {
			r.Headers.Set(k, v)
		}
		if f.agents != nil {
			r.Headers.Set("User-Agent", f.agents.GetUserAgent())
		}
	})
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		page = &Page{
			URL:         target,
			StatusCode:  r.StatusCode,
			ContentType: r.Headers.Get("Content-Type"),
			Body:        r.Body,
		}
	})
	c.OnError(func(r *colly.Response, _ error) {
		if r != nil {
			status = r.StatusCode
		}
	})

	err := c.Visit(target)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	return classifyResponse(target, status, page, err)
}

func classifyResponse(target string, status int, page *Page, err error) (*Page, error) {
	switch {
	case status == http.StatusOK && page != nil:
		return page, nil
	case status == http.StatusForbidden || status == http.StatusServiceUnavailable:
		return nil, &FetchError{URL: target, StatusCode: status, Kind: ErrSoftBlock}
	case status != 0:
		return nil, &FetchError{URL: target, StatusCode: status, Kind: ErrUnexpectedStatus}
	case err != nil:
		return nil, &FetchError{URL: target, Kind: ErrNetwork, Err: err}
	default:
		return nil, &FetchError{URL: target, Kind: ErrNetwork, Err: errors.New("no response")}
	}
}
