package sources

import (
	"fmt"
	"shop-scraper/scraper"
	"shop-scraper/scraper/amazon"
	"shop-scraper/scraper/ebay"
	"shop-scraper/scraper/idealo"
	"shop-scraper/scraper/kaufland"
	"shop-scraper/scraper/kleinanzeigen"
	"shop-scraper/scraper/otto"
	"strings"
)

// Entry describes a marketplace known to the scraper.
type Entry struct {
	Name string
	// Browser marks sources whose result pages only render with JavaScript.
	Browser bool
	New     func() scraper.Source
}

var registry = []Entry{
	{Name: ebay.Name, New: func() scraper.Source { return ebay.New() }},
	{Name: amazon.Name, New: func() scraper.Source { return amazon.New() }},
	{Name: otto.Name, New: func() scraper.Source { return otto.New() }},
	{Name: idealo.Name, New: func() scraper.Source { return idealo.New() }},
	{Name: kaufland.Name, Browser: true, New: func() scraper.Source { return kaufland.New() }},
	{Name: kleinanzeigen.Name, Browser: true, New: func() scraper.Source { return kleinanzeigen.New() }},
}

func All() []Entry {
	return append([]Entry(nil), registry...)
}

func Names() []string {
	names := make([]string, len(registry))
	for i, e := range registry {
		names[i] = e.Name
	}
	return names
}

func Lookup(name string) (Entry, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, e := range registry {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}

// Select resolves a list of names; an empty list selects every source.
func Select(names []string) ([]Entry, error) {
	if len(names) == 0 {
		return All(), nil
	}
	var selected []Entry
	seen := make(map[string]bool)
	for _, name := range names {
		e, ok := Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown source %q (known: %s)", name, strings.Join(Names(), ", "))
		}
		if !seen[e.Name] {
			seen[e.Name] = true
			selected = append(selected, e)
		}
	}
	return selected, nil
}
