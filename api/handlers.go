package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"shop-scraper/models"
	"shop-scraper/scraper"
	"shop-scraper/services"
	"shop-scraper/storage"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

// SearchService is the part of services.Orchestrator the API drives.
type SearchService interface {
	StartSearch(ctx context.Context, req models.SearchRequest, sources []string) (*services.Search, error)
	Lookup(id string) (*services.Search, bool)
	Sources() []string
	SuspendedUntil(source string) time.Time
	DefaultSettings() models.Settings
}

type Handlers struct {
	// searches started over HTTP outlive the request and run under this context
	baseCtx  context.Context
	searches SearchService
	store    storage.Store
}

func NewHandlers(baseCtx context.Context, searches SearchService, store storage.Store) *Handlers {
	return &Handlers{baseCtx: baseCtx, searches: searches, store: store}
}

// ListSources handles GET /api/v1/sources
func (h *Handlers) ListSources(w http.ResponseWriter, r *http.Request) {
	names := h.searches.Sources()
	sources := make([]SourceDTO, 0, len(names))
	for _, name := range names {
		dto := SourceDTO{Name: name}
		if until := h.searches.SuspendedUntil(name); !until.IsZero() {
			dto.Suspended = true
			dto.SuspendedUntil = &until
		}
		sources = append(sources, dto)
	}
	RespondWithJSON(w, http.StatusOK, sources)
}

// StartSearch handles POST /api/v1/searches
func (h *Handlers) StartSearch(w http.ResponseWriter, r *http.Request) {
	log := requestLogger(r)

	var req SearchRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			WriteJSONError(w, http.StatusBadRequest, "Request body is empty")
			return
		}
		WriteJSONError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	search, err := h.searches.StartSearch(h.baseCtx, req.toModel(), req.Sources)
	switch {
	case errors.Is(err, scraper.ErrInvalidRequest), errors.Is(err, services.ErrUnknownSource):
		WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		log.Error("starting search failed", "err", err)
		WriteJSONError(w, http.StatusInternalServerError, "Could not start search")
		return
	}

	log.Info("search accepted", "search", search.ID, "keyword", search.Request.Keyword, "sources", search.Sources)
	w.Header().Set("Location", "/api/v1/searches/"+search.ID)
	RespondWithJSON(w, http.StatusAccepted, SearchStartedDTO{ID: search.ID, Status: search.Status()})
}

// GetSearch handles GET /api/v1/searches/{id}
func (h *Handlers) GetSearch(w http.ResponseWriter, r *http.Request) {
	search, ok := h.searches.Lookup(chi.URLParam(r, "id"))
	if !ok {
		WriteJSONError(w, http.StatusNotFound, "Search not found")
		return
	}
	RespondWithJSON(w, http.StatusOK, newSearchDTO(search))
}

// GetResults handles GET /api/v1/results?source=&keyword=
func (h *Handlers) GetResults(w http.ResponseWriter, r *http.Request) {
	source := strings.TrimSpace(r.URL.Query().Get("source"))
	keyword := strings.TrimSpace(r.URL.Query().Get("keyword"))
	if source == "" || keyword == "" {
		WriteJSONError(w, http.StatusBadRequest, "Query parameters 'source' and 'keyword' are required")
		return
	}

	items, err := h.store.GetSearchResults(r.Context(), source, keyword)
	if err != nil {
		h.storeFailed(w, r, "reading results", err)
		return
	}
	if items == nil {
		items = []models.Item{}
	}
	RespondWithJSON(w, http.StatusOK, items)
}

// ClearResults handles DELETE /api/v1/results?keyword=
func (h *Handlers) ClearResults(w http.ResponseWriter, r *http.Request) {
	n, err := h.store.ClearSearchResults(r.Context(), r.URL.Query().Get("keyword"))
	if err != nil {
		h.storeFailed(w, r, "clearing results", err)
		return
	}
	RespondWithJSON(w, http.StatusOK, DeletedDTO{Deleted: n})
}

// GetFavorites handles GET /api/v1/favorites
func (h *Handlers) GetFavorites(w http.ResponseWriter, r *http.Request) {
	favorites, err := h.store.GetFavorites(r.Context())
	if err != nil {
		h.storeFailed(w, r, "reading favorites", err)
		return
	}
	if favorites == nil {
		favorites = []models.Item{}
	}
	RespondWithJSON(w, http.StatusOK, favorites)
}

// AddFavorites handles POST /api/v1/favorites
func (h *Handlers) AddFavorites(w http.ResponseWriter, r *http.Request) {
	var items []models.Item
	if err := json.NewDecoder(r.Body).Decode(&items); err != nil {
		WriteJSONError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if len(items) == 0 {
		WriteJSONError(w, http.StatusBadRequest, "At least one item is required")
		return
	}
	for i, item := range items {
		if strings.TrimSpace(item.Title) == "" || strings.TrimSpace(item.Link) == "" {
			WriteJSONError(w, http.StatusBadRequest, fmt.Sprintf("Item %d needs a title and a link", i))
			return
		}
	}

	if err := h.store.SaveFavorites(r.Context(), items); err != nil {
		h.storeFailed(w, r, "saving favorites", err)
		return
	}
	RespondWithJSON(w, http.StatusCreated, items)
}

// DeleteFavorite handles DELETE /api/v1/favorites?link=
func (h *Handlers) DeleteFavorite(w http.ResponseWriter, r *http.Request) {
	link := r.URL.Query().Get("link")
	if link == "" {
		WriteJSONError(w, http.StatusBadRequest, "Query parameter 'link' is required")
		return
	}

	err := h.store.DeleteFavorite(r.Context(), link)
	if errors.Is(err, storage.ErrFavoriteNotFound) {
		WriteJSONError(w, http.StatusNotFound, "Favorite not found")
		return
	}
	if err != nil {
		h.storeFailed(w, r, "deleting favorite", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearFavorites handles DELETE /api/v1/favorites/all
func (h *Handlers) ClearFavorites(w http.ResponseWriter, r *http.Request) {
	if err := h.store.ClearFavorites(r.Context()); err != nil {
		h.storeFailed(w, r, "clearing favorites", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetSettings handles GET /api/v1/settings
// Unset stored fields are reported with the values a search would use.
func (h *Handlers) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.store.GetSettings(r.Context())
	if err != nil {
		h.storeFailed(w, r, "reading settings", err)
		return
	}
	RespondWithJSON(w, http.StatusOK, settings.WithDefaults(h.searches.DefaultSettings()))
}

// SaveSettings handles PUT /api/v1/settings
func (h *Handlers) SaveSettings(w http.ResponseWriter, r *http.Request) {
	var settings models.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		WriteJSONError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if settings.MaxPages < 1 {
		WriteJSONError(w, http.StatusBadRequest, "Field 'maxPages' must be at least 1")
		return
	}
	if settings.DefaultSearchPeriod < 0 {
		WriteJSONError(w, http.StatusBadRequest, "Field 'defaultSearchPeriod' must not be negative")
		return
	}

	if err := h.store.SaveSettings(r.Context(), settings); err != nil {
		h.storeFailed(w, r, "saving settings", err)
		return
	}
	RespondWithJSON(w, http.StatusOK, settings)
}

func (h *Handlers) storeFailed(w http.ResponseWriter, r *http.Request, action string, err error) {
	requestLogger(r).Error(action+" failed", "err", err)
	WriteJSONError(w, http.StatusInternalServerError, "Storage is unavailable")
}
