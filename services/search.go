package services

import (
	"context"
	"shop-scraper/models"
	"sync"
	"time"
)

// Search is the handle of one running or finished search.
type Search struct {
	ID      string
	Request models.SearchRequest
	Sources []string

	startedAt time.Time
	cancel    context.CancelFunc
	done      chan struct{}

	mu     sync.RWMutex
	status models.SearchStatus
	result models.SearchResult
}

func newSearch(id string, req models.SearchRequest, active []Scraper, cancel context.CancelFunc) *Search {
	names := make([]string, len(active))
	for i, s := range active {
		names[i] = s.Name()
	}
	return &Search{
		ID:        id,
		Request:   req,
		Sources:   names,
		startedAt: time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
		status:    models.StatusRunning,
	}
}

func (s *Search) Status() models.SearchStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Done is closed once the result is available.
func (s *Search) Done() <-chan struct{} {
	return s.done
}

// Result returns the final result and whether the search has finished.
func (s *Search) Result() (models.SearchResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.result, s.status != models.StatusRunning
}

// Wait blocks until the search finishes or ctx is done.
func (s *Search) Wait(ctx context.Context) (models.SearchResult, error) {
	select {
	case <-s.done:
		res, _ := s.Result()
		return res, nil
	case <-ctx.Done():
		return models.SearchResult{}, ctx.Err()
	}
}

// Cancel stops every source still running. The search then finishes with
// whatever was gathered so far.
func (s *Search) Cancel() {
	s.cancel()
}

func (s *Search) finish(result models.SearchResult) {
	s.mu.Lock()
	s.status = result.Status
	s.result = result
	s.mu.Unlock()
	close(s.done)
}
