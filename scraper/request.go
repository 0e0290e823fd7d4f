package scraper

import (
	"errors"
	"fmt"
	"shop-scraper/models"
	"strconv"
	"strings"
)

var ErrInvalidRequest = errors.New("invalid search request")

// NormalizeRequest trims the keyword and checks the request bounds.
func NormalizeRequest(req models.SearchRequest) (models.SearchRequest, error) {
	req.Keyword = strings.TrimSpace(req.Keyword)
	switch {
	case req.Keyword == "":
		return req, fmt.Errorf("%w: keyword is empty", ErrInvalidRequest)
	case req.MaxPages < 1:
		return req, fmt.Errorf("%w: max pages must be >= 1, got %d", ErrInvalidRequest, req.MaxPages)
	case !req.Condition.Valid():
		return req, fmt.Errorf("%w: unknown condition %q", ErrInvalidRequest, req.Condition)
	case req.MinPrice != nil && *req.MinPrice < 0, req.MaxPrice != nil && *req.MaxPrice < 0:
		return req, fmt.Errorf("%w: negative price bound", ErrInvalidRequest)
	case req.MinPrice != nil && req.MaxPrice != nil && *req.MinPrice > *req.MaxPrice:
		return req, fmt.Errorf("%w: min price %v above max price %v", ErrInvalidRequest, *req.MinPrice, *req.MaxPrice)
	}
	return req, nil
}

// FilterPrice renders a price bound for a query string.
func FilterPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
