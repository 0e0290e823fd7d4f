package utils

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserAgentManagerUsesGenerator(t *testing.T) {
	t.Parallel()
	m := NewUserAgentManager(func() (string, error) { return "Mozilla/5.0 test", nil })

	assert.Equal(t, "Mozilla/5.0 test", m.GetUserAgent())
	assert.False(t, m.Degraded())
}

func TestUserAgentManagerDowngradesPermanently(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	m := NewUserAgentManager(func() (string, error) {
		if calls.Add(1) == 1 {
			return "", errors.New("generator offline")
		}
		return "should never be used", nil
	})

	for i := 0; i < 20; i++ {
		ua := m.GetUserAgent()
		assert.Contains(t, fallbackUserAgents, ua)
	}
	assert.True(t, m.Degraded())
	assert.Equal(t, int32(1), calls.Load(), "generator is not consulted after the first failure")
}

func TestUserAgentManagerTreatsEmptyAndPanicAsFailure(t *testing.T) {
	t.Parallel()
	empty := NewUserAgentManager(func() (string, error) { return "", nil })
	assert.Contains(t, fallbackUserAgents, empty.GetUserAgent())

	panicky := NewUserAgentManager(func() (string, error) { panic("boom") })
	assert.Contains(t, fallbackUserAgents, panicky.GetUserAgent())
	assert.True(t, panicky.Degraded())
}

func TestUserAgentManagerNilGenerator(t *testing.T) {
	t.Parallel()
	m := NewUserAgentManager(nil)
	assert.True(t, m.Degraded())
	assert.NotEmpty(t, m.GetUserAgent())
}

func TestUserAgentManagerConcurrentUse(t *testing.T) {
	t.Parallel()
	m := NewUserAgentManager(GenerateUserAgent)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				assert.NotEmpty(t, m.GetUserAgent())
			}
		}()
	}
	wg.Wait()
}

func TestGenerateUserAgentLooksLikeBrowser(t *testing.T) {
	t.Parallel()
	for i := 0; i < 50; i++ {
		ua, err := GenerateUserAgent()
		assert.NoError(t, err)
		assert.True(t, strings.HasPrefix(ua, "Mozilla/5.0 ("), ua)
		assert.True(t, strings.Contains(ua, "Chrome/") || strings.Contains(ua, "Firefox/"), ua)
	}
}
