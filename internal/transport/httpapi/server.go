package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"housing_search/internal/config"
	"housing_search/internal/domain"
	"housing_search/internal/lib/jsonld"
	"housing_search/internal/services/maintenance"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
)

// SearchService описывает гибридный поиск.
type SearchService interface {
	Search(ctx context.Context, params domain.SearchParams) (*domain.SearchResponse, error)
}

// ListingService описывает чтение и переиндексацию объявлений.
type ListingService interface {
	GetListing(ctx context.Context, id int64) (domain.Listing, error)
	ListListings(ctx context.Context, filter domain.ListingFilter) (*domain.PaginatedResult[domain.Listing], error)
	ReindexListing(ctx context.Context, id int64) error
}

// Backfiller — фоновая догрузка эмбеддингов.
type Backfiller interface {
	StartBackfill() (string, error)
	LastReport() (maintenance.Report, bool)
}

type handler struct {
	log        *slog.Logger
	search     SearchService
	listings   ListingService
	backfiller Backfiller
	searchCfg  config.SearchConfig
	jsonld     *jsonld.Generator
}

// NewRouter собирает HTTP API: /api/v1, /healthz и /metrics.
func NewRouter(
	log *slog.Logger,
	cfg *config.Config,
	search SearchService,
	listings ListingService,
	backfiller Backfiller,
	metricsHandler http.Handler,
) http.Handler {
	h := &handler{
		log:        log,
		search:     search,
		listings:   listings,
		backfiller: backfiller,
		searchCfg:  cfg.Search,
		jsonld:     jsonld.NewGenerator(cfg.HTTP.PublicURL),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	if cfg.HTTP.Timeout > 0 {
		r.Use(middleware.Timeout(cfg.HTTP.Timeout))
	}
	r.Use(cors.New(cors.Options{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}).Handler)

	r.Get("/healthz", h.healthz)
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/search", h.handleSearch)

		r.Route("/listings", func(r chi.Router) {
			r.Get("/", h.listListings)
			r.Get("/{id}", h.getListing)
			r.Get("/{id}/jsonld", h.getListingJSONLD)
			r.Post("/{id}/reindex", h.reindexListing)
		})

		r.Route("/admin/embeddings", func(r chi.Router) {
			r.Post("/backfill", h.startBackfill)
			r.Get("/backfill", h.backfillStatus)
		})
	})

	return r
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			log.Info("request completed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				slog.String("request_id", middleware.GetReqID(r.Context())),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}
