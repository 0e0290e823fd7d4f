package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"shop-scraper/models"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteCSV(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	err := WriteCSV(&buf, []StoredResult{{
		Keyword: "laptop",
		Item:    models.Item{Source: "ebay", Title: `ThinkPad 14", gebraucht`, Price: "649,00€", Link: "https://ebay/1", Shipping: "kostenlos", Location: "Berlin", Timestamp: "2026-05-04T10:00:00Z"},
	}})
	require.NoError(t, err)

	assert.Equal(t,
		"source,keyword,title,price,link,shipping,location,timestamp\n"+
			`ebay,laptop,"ThinkPad 14"", gebraucht","649,00€",https://ebay/1,kostenlos,Berlin,2026-05-04T10:00:00Z`+"\n",
		buf.String())
}

func TestCSVWriterCreatesDirectory(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "export", "results.csv")

	require.NoError(t, NewCSVWriter(path).Write([]StoredResult{{Keyword: "tv", Item: models.Item{Source: "otto", Title: "OLED", Link: "https://otto/1"}}}))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "otto,tv,OLED")
}

func TestCSVWriterSkipsEmptyExport(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "none.csv")
	require.NoError(t, NewCSVWriter(path).Write(nil))
	assert.NoFileExists(t, path)
}
