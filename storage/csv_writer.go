package storage

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"shop-scraper/utils"
)

// CSVWriter exports stored search results to a CSV file.
type CSVWriter struct {
	path string
}

func NewCSVWriter(path string) *CSVWriter {
	return &CSVWriter{path: path}
}

// Write saves rows to the CSV file, creating its directory if needed.
//
// CSV columns: source, keyword, title, price, link, shipping, location, timestamp
func (w *CSVWriter) Write(rows []StoredResult) error {
	if len(rows) == 0 {
		utils.Warn("No search results to export")
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(w.path), 0755); err != nil {
		return fmt.Errorf("could not create output dir: %w", err)
	}

	file, err := os.Create(w.path)
	if err != nil {
		return fmt.Errorf("could not create file: %w", err)
	}
	defer file.Close()

	if err := WriteCSV(file, rows); err != nil {
		return err
	}

	utils.Success("Exported %d search results → %s", len(rows), w.path)
	return nil
}

func WriteCSV(out io.Writer, rows []StoredResult) error {
	writer := csv.NewWriter(out)

	writer.Write([]string{"source", "keyword", "title", "price", "link", "shipping", "location", "timestamp"})
	for _, r := range rows {
		writer.Write([]string{r.Source, r.Keyword, r.Title, r.Price, r.Link, r.Shipping, r.Location, r.Timestamp})
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("csv write error: %w", err)
	}
	return nil
}
