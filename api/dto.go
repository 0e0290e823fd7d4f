package api

import (
	"shop-scraper/models"
	"shop-scraper/scraper"
	"shop-scraper/services"
	"time"
)

type SearchRequestDTO struct {
	Keyword   string           `json:"keyword"`
	MaxPages  int              `json:"maxPages"`
	MinPrice  *float64         `json:"minPrice"`
	MaxPrice  *float64         `json:"maxPrice"`
	Condition models.Condition `json:"condition"`
	Sources   []string         `json:"sources"`
}

func (d SearchRequestDTO) toModel() models.SearchRequest {
	return models.SearchRequest{
		Keyword:   d.Keyword,
		MaxPages:  d.MaxPages,
		MinPrice:  d.MinPrice,
		MaxPrice:  d.MaxPrice,
		Condition: d.Condition,
	}
}

type SearchStartedDTO struct {
	ID     string              `json:"id"`
	Status models.SearchStatus `json:"status"`
}

type SourceErrorDTO struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type SearchDTO struct {
	ID         string                    `json:"id"`
	Keyword    string                    `json:"keyword"`
	Status     models.SearchStatus       `json:"status"`
	Sources    []string                  `json:"sources"`
	Items      []models.Item             `json:"items"`
	PerSource  map[string]int            `json:"perSource,omitempty"`
	Errors     map[string]SourceErrorDTO `json:"errors,omitempty"`
	StartedAt  *time.Time                `json:"startedAt,omitempty"`
	FinishedAt *time.Time                `json:"finishedAt,omitempty"`
}

func newSearchDTO(s *services.Search) SearchDTO {
	dto := SearchDTO{
		ID:      s.ID,
		Keyword: s.Request.Keyword,
		Status:  s.Status(),
		Sources: s.Sources,
		Items:   []models.Item{},
	}
	res, finished := s.Result()
	if !finished {
		return dto
	}

	if res.Items != nil {
		dto.Items = res.Items
	}
	dto.PerSource = res.PerSource
	dto.StartedAt = &res.StartedAt
	dto.FinishedAt = &res.FinishedAt
	if len(res.Errors) > 0 {
		dto.Errors = make(map[string]SourceErrorDTO, len(res.Errors))
		for source, err := range res.Errors {
			dto.Errors[source] = SourceErrorDTO{Kind: scraper.Kind(err), Message: err.Error()}
		}
	}
	return dto
}

type SourceDTO struct {
	Name           string     `json:"name"`
	Suspended      bool       `json:"suspended"`
	SuspendedUntil *time.Time `json:"suspendedUntil,omitempty"`
}

type DeletedDTO struct {
	Deleted int64 `json:"deleted"`
}
