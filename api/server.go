package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"shop-scraper/utils"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type ctxKey struct{}

// NewRouter wires every route of the API.
func NewRouter(h *Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(LoggerMiddleware(utils.Logger()))
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/sources", h.ListSources)

		r.Post("/searches", h.StartSearch)
		r.Get("/searches/{id}", h.GetSearch)

		r.Get("/results", h.GetResults)
		r.Delete("/results", h.ClearResults)

		r.Get("/favorites", h.GetFavorites)
		r.Post("/favorites", h.AddFavorites)
		r.Delete("/favorites", h.DeleteFavorite)
		r.Delete("/favorites/all", h.ClearFavorites)

		r.Get("/settings", h.GetSettings)
		r.Put("/settings", h.SaveSettings)
	})

	return r
}

// LoggerMiddleware attaches a request-scoped logger and logs each request.
func LoggerMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if _, err := uuid.Parse(requestID); err != nil {
				requestID = uuid.NewString()
			}

			reqLogger := logger.With("request_id", requestID)
			ctx := context.WithValue(r.Context(), ctxKey{}, reqLogger)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Header().Set("X-Request-ID", requestID)
			start := time.Now()

			next.ServeHTTP(ww, r.WithContext(ctx))

			reqLogger.Info("request finished",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds())
		})
	}
}

func requestLogger(r *http.Request) *slog.Logger {
	if l, ok := r.Context().Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	return utils.Logger()
}

type Server struct {
	httpServer *http.Server
}

func NewServer(addr string, handler http.Handler) *Server {
	return &Server{httpServer: &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}}
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	utils.Info("Starting HTTP API on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("could not start server: %w", err)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	utils.Info("Stopping HTTP API...")
	return s.httpServer.Shutdown(ctx)
}
