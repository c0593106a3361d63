package app

import (
	"fmt"
	"log/slog"

	"housing_search/internal/config"
	"housing_search/internal/lib/metrics"
	"housing_search/internal/repository/embedding_repository"
	"housing_search/internal/repository/listing_repository"
	"housing_search/internal/services/embedding"
	"housing_search/internal/services/lexical"
	"housing_search/internal/services/listing"
	"housing_search/internal/services/maintenance"
	"housing_search/internal/services/search"
	"housing_search/internal/transport/httpapi"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpapp "housing_search/internal/app/http"
)

type App struct {
	HTTPServer  *httpapp.App
	Search      *search.Service
	Maintenance *maintenance.Job
	Store       *embedding.Store
	Metrics     *metrics.SearchMetrics

	// MaintenanceEnabled — запускать ли периодическую догрузку эмбеддингов
	MaintenanceEnabled bool
}

// New собирает все компоненты поверх пула соединений.
func New(log *slog.Logger, pool *pgxpool.Pool, cfg *config.Config) (*App, error) {
	const op = "app.New"

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	searchMetrics := metrics.NewSearchMetrics(registry, log)

	listingRepository := listing_repository.NewListingRepository(pool, log)
	embeddingRepository := embedding_repository.NewEmbeddingRepository(pool, log)

	// Модель загружается лениво, при первом кодировании
	encoder, err := embedding.NewEncoder(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	model := embedding.NewModel(cfg.Embedding.ModelName, encoder, log)
	store := embedding.NewStore(model, embeddingRepository, cfg.Embedding.QueryCacheSize, searchMetrics, log)

	job, err := maintenance.NewJob(listingRepository, store, cfg.Maintenance, searchMetrics, log)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ranker := lexical.NewRanker(listingRepository, searchMetrics, log)
	retriever := search.NewRetriever(ranker, listingRepository, store, searchMetrics, log)
	retriever.OnMissingEmbeddings(func(ids []int64) { job.Enqueue(ids...) })

	searchService := search.NewService(retriever, listingRepository, cfg.Search, searchMetrics, log)
	listingService := listing.New(log, listingRepository, job)

	log.Info("search services initialized",
		slog.String("embedding_provider", cfg.Embedding.Provider),
		slog.String("embedding_model", cfg.Embedding.ModelName),
		slog.String("text_search_config", listing_repository.TextSearchConfig),
		slog.Int("fusion_k", cfg.Search.FusionK),
		slog.Bool("maintenance_enabled", cfg.Maintenance.Enabled),
	)

	router := httpapi.NewRouter(
		log,
		cfg,
		searchService,
		listingService,
		job,
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	)

	return &App{
		HTTPServer:  httpapp.New(log, router, cfg.HTTP),
		Search:      searchService,
		Maintenance: job,
		Store:       store,
		Metrics:     searchMetrics,

		MaintenanceEnabled: cfg.Maintenance.Enabled,
	}, nil
}
