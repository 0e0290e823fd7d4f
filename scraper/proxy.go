package scraper

import (
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
)

// ProxyPool is the proxy list of one scraper instance.
type ProxyPool struct {
	mu      sync.RWMutex
	proxies []string
}

// NewProxyPool validates and adds every proxy; the first invalid one fails
// the whole call.
func NewProxyPool(proxies ...string) (*ProxyPool, error) {
	p := &ProxyPool{}
	for _, proxy := range proxies {
		if err := p.Add(proxy); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Add appends proxy unless it is already present.
func (p *ProxyPool) Add(proxy string) error {
	proxy = strings.TrimSpace(proxy)
	u, err := url.Parse(proxy)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid proxy url %q", proxy)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !slices.Contains(p.proxies, proxy) {
		p.proxies = append(p.proxies, proxy)
	}
	return nil
}

// Clone returns an independent pool with the same proxies. Cloning nil
// yields an empty pool.
func (p *ProxyPool) Clone() *ProxyPool {
	if p == nil {
		return &ProxyPool{}
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return &ProxyPool{proxies: slices.Clone(p.proxies)}
}

func (p *ProxyPool) Clear() {
	p.mu.Lock()
	p.proxies = nil
	p.mu.Unlock()
}

func (p *ProxyPool) Count() int {
	if p == nil {
		return 0
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.proxies)
}

// Pick returns a random proxy, or "" when the pool is empty or nil.
func (p *ProxyPool) Pick() string {
	if p == nil {
		return ""
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.proxies) == 0 {
		return ""
	}
	return p.proxies[rand.Intn(len(p.proxies))]
}

// ProxyFunc picks a proxy per outgoing request; an empty pool connects directly.
func (p *ProxyPool) ProxyFunc() func(*http.Request) (*url.URL, error) {
	return func(*http.Request) (*url.URL, error) {
		raw := p.Pick()
		if raw == "" {
			return nil, nil
		}
		return url.Parse(raw)
	}
}
