package sources

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryNamesMatchSources(t *testing.T) {
	t.Parallel()
	for _, e := range All() {
		assert.Equal(t, e.Name, e.New().Name())
	}
	assert.Equal(t, []string{"ebay", "amazon", "otto", "idealo", "kaufland", "kleinanzeigen"}, Names())
}

func TestSelect(t *testing.T) {
	t.Parallel()
	all, err := Select(nil)
	require.NoError(t, err)
	assert.Len(t, all, 6)

	picked, err := Select([]string{" Ebay", "kaufland", "ebay"})
	require.NoError(t, err)
	require.Len(t, picked, 2)
	assert.Equal(t, "ebay", picked[0].Name)
	assert.False(t, picked[0].Browser)
	assert.True(t, picked[1].Browser)

	_, err = Select([]string{"zalando"})
	assert.ErrorContains(t, err, `unknown source "zalando"`)
}
