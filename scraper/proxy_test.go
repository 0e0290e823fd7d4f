package scraper

import (
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProxyPoolAddClearCount(t *testing.T) {
	t.Parallel()
	p, err := NewProxyPool("http://10.0.0.1:8080")
	require.NoError(t, err)

	require.NoError(t, p.Add("http://10.0.0.2:8080"))
	require.NoError(t, p.Add("http://10.0.0.1:8080"))
	assert.Equal(t, 2, p.Count(), "duplicates are ignored")

	assert.Error(t, p.Add("not a proxy"))
	assert.Error(t, p.Add(""))
	assert.Equal(t, 2, p.Count())

	p.Clear()
	assert.Zero(t, p.Count())
	assert.Empty(t, p.Pick())
}

func TestProxyFuncPicksFromPool(t *testing.T) {
	t.Parallel()
	p := &ProxyPool{}
	fn := p.ProxyFunc()
	req, _ := http.NewRequest(http.MethodGet, "http://shop.example/", nil)

	u, err := fn(req)
	require.NoError(t, err)
	assert.Nil(t, u, "empty pool connects directly")

	require.NoError(t, p.Add("http://proxy.local:3128"))
	u, err = fn(req)
	require.NoError(t, err)
	assert.Equal(t, "proxy.local:3128", u.Host)
}

func TestProxyPoolConcurrentUse(t *testing.T) {
	t.Parallel()
	p := &ProxyPool{}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = p.Add("http://proxy.local:3128")
				_ = p.Pick()
				_ = p.Count()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, p.Count())
}
