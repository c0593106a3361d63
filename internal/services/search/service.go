package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"reflect"
	"strings"
	"time"

	"housing_search/internal/config"
	"housing_search/internal/domain"
	"housing_search/internal/lib/logger/sl"
	"housing_search/internal/lib/metrics"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

// ErrInvalidParams — некорректные параметры поиска.
var ErrInvalidParams = errors.New("invalid search params")

// Service — гибридный поиск объявлений.
type Service struct {
	retriever *Retriever
	listings  ListingReader
	cfg       config.SearchConfig
	metrics   *metrics.SearchMetrics
	validate  *validator.Validate
	log       *slog.Logger
}

func NewService(
	retriever *Retriever,
	listings ListingReader,
	cfg config.SearchConfig,
	m *metrics.SearchMetrics,
	log *slog.Logger,
) *Service {
	if cfg.RerankMultiplier <= 0 {
		cfg.RerankMultiplier = 3
	}
	return &Service{
		retriever: retriever,
		listings:  listings,
		cfg:       cfg,
		metrics:   m,
		validate:  newParamsValidator(),
		log:       log,
	}
}

// SearchDefault — поиск с литеральными значениями по умолчанию для размеров пулов, k и минимального ts_rank.
func (s *Service) SearchDefault(ctx context.Context, query string, limit int, targetPrice, priceWeight *float64) (*domain.SearchResponse, error) {
	params := domain.DefaultSearchParams(query, limit)
	params.TargetPrice = targetPrice
	params.PriceWeight = priceWeight
	return s.Search(ctx, params)
}

// Search возвращает до Limit объявлений, ранжированных по обоим сигналам и, при необходимости, по цене.
func (s *Service) Search(ctx context.Context, params domain.SearchParams) (*domain.SearchResponse, error) {
	const op = "search.Service.Search"
	start := time.Now()

	log := s.log.With(slog.String("op", op))

	if err := s.validateParams(params); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	params = params.Normalize()
	params.Query = strings.TrimSpace(params.Query)
	if params.Query == "" {
		return &domain.SearchResponse{Results: []domain.SearchResult{}, TookMs: time.Since(start).Milliseconds()}, nil
	}

	timer := s.metrics.StartTimer(metrics.StageSearch)

	cands, err := s.retriever.Retrieve(ctx, params)
	if err != nil {
		timer.Stop(err)
		log.Error("failed to retrieve candidates", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if cands.Degraded && len(cands.Lexical) == 0 {
		timer.Stop(cands.VectorErr)
		return nil, fmt.Errorf("%s: %w", op, cands.VectorErr)
	}

	fused := Fuse([][]domain.RankedItem{cands.Lexical, cands.Vector}, params.FusionK)

	listings, err := s.hydrate(ctx, fused, cands.Listings)
	if err != nil {
		timer.Stop(err)
		log.Error("failed to hydrate listings", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	fused = lo.Filter(fused, func(item domain.RankedItem, _ int) bool {
		l, ok := listings[item.ID]
		return ok && l.Active
	})

	prices := make(map[int64]float64, len(fused))
	for _, item := range fused {
		if p := listings[item.ID].Price; p != nil && *p > 0 {
			prices[item.ID] = *p
		}
	}

	ranked := Rerank(fused, prices, RerankOptions{
		TargetPrice: params.TargetPrice,
		PriceWeight: s.priceWeight(params),
		TopN:        params.Limit * s.cfg.RerankMultiplier,
	})

	if len(ranked) > params.Limit {
		ranked = ranked[:params.Limit]
	}

	lexScores := scoreMap(cands.Lexical)
	vecScores := scoreMap(cands.Vector)

	results := make([]domain.SearchResult, 0, len(ranked))
	for _, item := range ranked {
		l := listings[item.ID]
		results = append(results, domain.SearchResult{
			ListingID:    l.ID,
			Title:        l.Title,
			Price:        l.Price,
			Address:      l.Address,
			City:         l.City,
			Latitude:     l.Latitude,
			Longitude:    l.Longitude,
			Bedrooms:     l.Bedrooms,
			Bathrooms:    l.Bathrooms,
			PropertyType: l.PropertyType,
			Area:         l.Area,
			Scores: domain.SignalScores{
				Hybrid:  item.Score,
				Lexical: lexScores[item.ID],
				Vector:  vecScores[item.ID],
			},
		})
	}

	timer.Stop(nil)
	s.metrics.RecordSearch(len(results), cands.Degraded, cands.LexicalFallback)

	log.Debug("search completed",
		slog.String("query", params.Query),
		slog.Int("lexical", len(cands.Lexical)),
		slog.Int("vector", len(cands.Vector)),
		slog.Int("results", len(results)),
		slog.Bool("degraded", cands.Degraded),
	)

	return &domain.SearchResponse{
		Results:         results,
		Degraded:        cands.Degraded,
		LexicalFallback: cands.LexicalFallback,
		TookMs:          time.Since(start).Milliseconds(),
	}, nil
}

// priceWeight: явный вес клиента; без него вес из конфигурации, только если задана целевая цена.
func (s *Service) priceWeight(params domain.SearchParams) float64 {
	if params.PriceWeight != nil {
		return *params.PriceWeight
	}
	if params.TargetPrice != nil {
		return s.cfg.PriceWeight
	}
	return 0
}

// hydrate догружает объявления, которых нет среди уже загруженных лексических кандидатов.
func (s *Service) hydrate(ctx context.Context, fused []domain.RankedItem, known map[int64]domain.Listing) (map[int64]domain.Listing, error) {
	timer := s.metrics.StartTimer(metrics.StageHydrate)

	result := make(map[int64]domain.Listing, len(fused))
	var missing []int64
	for _, item := range fused {
		if l, ok := known[item.ID]; ok {
			result[item.ID] = l
		} else {
			missing = append(missing, item.ID)
		}
	}

	if len(missing) > 0 {
		loaded, err := s.listings.GetMany(ctx, missing)
		if err != nil {
			timer.Stop(err)
			return nil, err
		}
		for id, l := range loaded {
			result[id] = l
		}
	}

	timer.Stop(nil)
	return result, nil
}

func newParamsValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("finite", validateFinite); err != nil {
		panic(fmt.Sprintf("failed to register finite validator: %v", err))
	}
	return v
}

// validateFinite отсекает NaN и ±Inf: gte на них не срабатывает.
func validateFinite(fl validator.FieldLevel) bool {
	field := fl.Field()
	switch field.Kind() {
	case reflect.Float32, reflect.Float64:
		f := field.Float()
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	default:
		return true
	}
}

func (s *Service) validateParams(params domain.SearchParams) error {
	err := s.validate.Struct(params)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidParams, strings.Join(msgs, "; "))
}

func scoreMap(items []domain.RankedItem) map[int64]float64 {
	return lo.SliceToMap(items, func(item domain.RankedItem) (int64, float64) {
		return item.ID, item.Score
	})
}
