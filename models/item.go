package models

import "time"

const (
	PriceNotAvailable = "Nicht verfügbar"
	ShippingSeeSite   = "Versand: siehe Website"
)

type Item struct {
	Title     string `json:"title"`
	Price     string `json:"price"`
	Link      string `json:"link"`
	Shipping  string `json:"shipping"`
	Location  string `json:"location"`
	Source    string `json:"source"`
	Timestamp string `json:"timestamp"`
}

type Condition string

const (
	ConditionAny  Condition = ""
	ConditionNew  Condition = "new"
	ConditionUsed Condition = "used"
)

func (c Condition) Valid() bool {
	return c == ConditionAny || c == ConditionNew || c == ConditionUsed
}

// SearchRequest describes one keyword search. A nil MinPrice or MaxPrice means no bound.
type SearchRequest struct {
	Keyword   string    `json:"keyword"`
	MaxPages  int       `json:"maxPages"`
	MinPrice  *float64  `json:"minPrice,omitempty"`
	MaxPrice  *float64  `json:"maxPrice,omitempty"`
	Condition Condition `json:"condition,omitempty"`
}

// Settings are the user-editable search defaults. DefaultSearchPeriod is the
// age in days after which stored results are pruned. A zero field means unset.
type Settings struct {
	MaxPages            int `json:"maxPages"`
	DefaultSearchPeriod int `json:"defaultSearchPeriod"`
}

// WithDefaults fills every unset field of s from defaults.
func (s Settings) WithDefaults(defaults Settings) Settings {
	if s.MaxPages < 1 {
		s.MaxPages = defaults.MaxPages
	}
	if s.DefaultSearchPeriod < 1 {
		s.DefaultSearchPeriod = defaults.DefaultSearchPeriod
	}
	return s
}

type SearchStatus string

const (
	StatusIdle                SearchStatus = "idle"
	StatusRunning             SearchStatus = "running"
	StatusCompleted           SearchStatus = "completed"
	StatusCompletedWithErrors SearchStatus = "completed_with_errors"
	StatusFailed              SearchStatus = "failed"
)

// SourceOutcome is what one source contributed to a search.
type SourceOutcome struct {
	Source string
	Items  []Item
	Err    error
}

func (o SourceOutcome) Failed() bool {
	return o.Err != nil && len(o.Items) == 0
}

type SearchResult struct {
	Keyword    string
	Status     SearchStatus
	Items      []Item
	PerSource  map[string]int
	Errors     map[string]error
	StartedAt  time.Time
	FinishedAt time.Time
}

// ErrorManifest flattens per-source errors into display strings.
func (r *SearchResult) ErrorManifest() map[string]string {
	manifest := make(map[string]string, len(r.Errors))
	for source, err := range r.Errors {
		manifest[source] = err.Error()
	}
	return manifest
}
