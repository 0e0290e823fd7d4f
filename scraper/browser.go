package scraper

import (
	"context"
	"fmt"
	"net/http"
	"shop-scraper/utils"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
)

// BrowserFetcherConfig tunes the headless browser. Settle is the extra wait
// after the page reports ready, for listings that are filled in by scripts.
type BrowserFetcherConfig struct {
	Headless    bool
	Timeout     time.Duration
	Settle      time.Duration
	MaxAttempts int
	Backoff     time.Duration
}

// BrowserFetcher renders pages in headless Chrome for sources whose listings
// are built client-side. One browser is shared, each fetch gets its own tab.
//
// Chrome takes its proxy per process, so the allocator starts without one.
// A fetch that has a proxy instead opens its tab in a fresh browser context
// bound to the proxy picked for it. Fetchers derived with WithProxies share
// the browser and differ only in the pool they pick from.
type BrowserFetcher struct {
	cfg     BrowserFetcherConfig
	session *browserSession
	proxies *ProxyPool
}

type browserSession struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc

	startOnce     sync.Once
	startErr      error
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

func NewBrowserFetcher(cfg BrowserFetcherConfig, agents *utils.UserAgentManager, proxies *ProxyPool) *BrowserFetcher {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(
		context.Background(),
		utils.StealthOpts(cfg.Headless, agents.GetUserAgent())...,
	)
	return &BrowserFetcher{
		cfg:     cfg,
		session: &browserSession{allocCtx: allocCtx, allocCancel: allocCancel},
		proxies: proxies,
	}
}

// WithProxies returns a fetcher on the same browser that picks its proxy
// from proxies.
func (b *BrowserFetcher) WithProxies(proxies *ProxyPool) Fetcher {
	return &BrowserFetcher{cfg: b.cfg, session: b.session, proxies: proxies}
}

func (s *browserSession) start() error {
	s.startOnce.Do(func() {
		utils.Info("Launching Chrome browser...")
		s.browserCtx, s.browserCancel = chromedp.NewContext(s.allocCtx)
		if err := chromedp.Run(s.browserCtx); err != nil {
			s.startErr = fmt.Errorf("launch browser: %w", err)
			return
		}
		utils.Success("Browser ready")
	})
	return s.startErr
}

// Close shuts the shared browser down for every derived fetcher.
func (b *BrowserFetcher) Close() {
	if b.session.browserCancel != nil {
		utils.Info("Closing browser...")
		b.session.browserCancel()
	}
	b.session.allocCancel()
}

func (b *BrowserFetcher) Fetch(ctx context.Context, target string) (*Page, error) {
	if err := b.session.start(); err != nil {
		return nil, &FetchError{URL: target, Kind: ErrNetwork, Err: err}
	}

	var page *Page
	err := utils.Retry(ctx, b.cfg.MaxAttempts, b.cfg.Backoff, IsRetryable, func(attempt int) error {
		p, err := b.render(ctx, target)
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

func (b *BrowserFetcher) render(ctx context.Context, target string) (*Page, error) {
	tabCtx, tabCancel := chromedp.NewContext(b.session.browserCtx, tabOptions(b.proxies.Pick())...)
	defer tabCancel()
	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()

	runCtx, cancel := context.WithTimeout(tabCtx, b.cfg.Timeout)
	defer cancel()

	var (
		mu     sync.Mutex
		status int
	)
	chromedp.ListenTarget(runCtx, func(ev any) {
		if e, ok := ev.(*network.EventResponseReceived); ok && e.Type == network.ResourceTypeDocument {
			mu.Lock()
			if status == 0 {
				status = int(e.Response.Status)
			}
			mu.Unlock()
		}
	})

	var html string
	err := chromedp.Run(runCtx,
		chromedp.Navigate(target),
		utils.HideWebDriver(),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight * 0.5)`, nil),
		chromedp.Sleep(b.cfg.Settle),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	mu.Lock()
	code := status
	mu.Unlock()

	if code != 0 && code != http.StatusOK {
		return classifyResponse(target, code, nil, nil)
	}
	if err != nil {
		return nil, &FetchError{URL: target, Kind: ErrNetwork, Err: err}
	}
	return &Page{
		URL:         target,
		StatusCode:  http.StatusOK,
		ContentType: "text/html; charset=utf-8",
		Body:        []byte(html),
	}, nil
}

// tabOptions opens the tab in its own browser context when it must use proxy.
func tabOptions(proxy string) []chromedp.ContextOption {
	if proxy == "" {
		return nil
	}
	return []chromedp.ContextOption{
		chromedp.WithNewBrowserContext(func(p *target.CreateBrowserContextParams) *target.CreateBrowserContextParams {
			return p.WithProxyServer(proxy)
		}),
	}
}
