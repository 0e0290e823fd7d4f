package utils

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/chromedp/chromedp"
)

// fallbackUserAgents is used once the generator has failed.
var fallbackUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 OPR/106.0.0.0",
}

var ErrNoUserAgent = errors.New("user agent generator returned an empty string")

// UserAgentGenerator produces a fresh browser identity per call.
type UserAgentGenerator func() (string, error)

// UserAgentManager hands out a user agent per request. It asks the generator
// until the generator fails once, then serves the static pool for the rest of
// the process lifetime.
type UserAgentManager struct {
	generator UserAgentGenerator
	degraded  atomic.Bool
	once      sync.Once
}

// NewUserAgentManager with a nil generator starts degraded.
func NewUserAgentManager(generator UserAgentGenerator) *UserAgentManager {
	m := &UserAgentManager{generator: generator}
	if generator == nil {
		m.downgrade(errors.New("no generator configured"))
	}
	return m
}

// GetUserAgent returns the User-Agent for the next request.
//
// While the generator works every call gets a fresh identity. The first
// failure, an empty result or a panic inside the generator, switches the
// manager to the static pool for good and logs one warning; later calls never
// try the generator again.
func (m *UserAgentManager) GetUserAgent() string {
	if !m.degraded.Load() {
		ua, err := m.generate()
		if err == nil {
			return ua
		}
		m.downgrade(err)
	}
	return fallbackUserAgents[rand.Intn(len(fallbackUserAgents))]
}

// Degraded reports whether the manager fell back to the static pool.
func (m *UserAgentManager) Degraded() bool {
	return m.degraded.Load()
}

func (m *UserAgentManager) generate() (ua string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("user agent generator panicked: %v", r)
		}
	}()
	ua, err = m.generator()
	if err == nil && ua == "" {
		err = ErrNoUserAgent
	}
	return ua, err
}

func (m *UserAgentManager) downgrade(cause error) {
	m.degraded.Store(true)
	m.once.Do(func() {
		Warn("User agent generator unavailable (%v), using static pool of %d", cause, len(fallbackUserAgents))
	})
}

var (
	uaPlatforms = []string{
		"Windows NT 10.0; Win64; x64",
		"Macintosh; Intel Mac OS X 10_15_7",
		"X11; Linux x86_64",
	}
	firefoxPlatforms = []string{
		"Windows NT 10.0; Win64; x64",
		"Macintosh; Intel Mac OS X 10.15",
		"X11; Linux x86_64",
	}
)

// GenerateUserAgent builds a current-looking Chrome or Firefox identity with a
// randomized major version.
func GenerateUserAgent() (string, error) {
	if rand.Intn(3) == 0 {
		version := 118 + rand.Intn(8)
		platform := firefoxPlatforms[rand.Intn(len(firefoxPlatforms))]
		return fmt.Sprintf("Mozilla/5.0 (%s; rv:%d.0) Gecko/20100101 Firefox/%d.0", platform, version, version), nil
	}
	version := 118 + rand.Intn(10)
	platform := uaPlatforms[rand.Intn(len(uaPlatforms))]
	return fmt.Sprintf("Mozilla/5.0 (%s) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%d.0.0.0 Safari/537.36", platform, version), nil
}

// StealthOpts returns chromedp launch options that hide automation.
//
// Chrome announces remote control in several places: the webdriver flag, the
// "controlled by automated software" infobar and the automation extension.
// The flags below switch those off and give the browser a German desktop
// profile that matches the marketplaces it visits.
//
//   - disable-blink-features=AutomationControlled removes navigator.webdriver
//   - headless=new uses Chrome's newer headless mode
//   - WindowSize sets a normal desktop viewport
//
// No proxy is set here: proxies are chosen per tab by the browser fetcher.
func StealthOpts(headless bool, userAgent string) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("excludeSwitches", "enable-automation"),
		chromedp.Flag("useAutomationExtension", false),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("lang", "de-DE"),
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(userAgent),
	}

	if headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	}

	return opts
}

// HideWebDriver patches the page's navigator properties that bot checks read.
func HideWebDriver() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		return chromedp.Evaluate(`
			Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
			Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5] });
			Object.defineProperty(navigator, 'languages', { get: () => ['de-DE', 'de', 'en-US', 'en'] });
		`, nil).Do(ctx)
	})
}
