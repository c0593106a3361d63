package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"

	"housing_search/internal/domain"
	"housing_search/internal/lib/metrics"
	"housing_search/internal/repository"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Repository — хранилище эмбеддингов.
type Repository interface {
	Upsert(ctx context.Context, listingID int64, modelName string, vector []float32) error
	Get(ctx context.Context, listingID int64, modelName string) (domain.EmbeddingRecord, error)
	GetMany(ctx context.Context, modelName string, ids []int64) (map[int64][]float32, error)
	Count(ctx context.Context, modelName string) (int64, error)
}

const defaultQueryCacheSize = 1024

// Store — кодирование, хранение и поиск по эмбеддингам объявлений.
type Store struct {
	model   *Model
	repo    Repository
	cache   *lru.Cache[string, []float32]
	metrics *metrics.SearchMetrics
	log     *slog.Logger
}

func NewStore(model *Model, repo Repository, cacheSize int, m *metrics.SearchMetrics, log *slog.Logger) *Store {
	if cacheSize <= 0 {
		cacheSize = defaultQueryCacheSize
	}
	cache, err := lru.New[string, []float32](cacheSize)
	if err != nil {
		cache, _ = lru.New[string, []float32](defaultQueryCacheSize)
	}
	return &Store{
		model:   model,
		repo:    repo,
		cache:   cache,
		metrics: m,
		log:     log,
	}
}

// ModelName — имя текущей модели.
func (s *Store) ModelName() string {
	return s.model.Name()
}

// Ready загружает модель, если она ещё не загружена.
func (s *Store) Ready(ctx context.Context) error {
	_, err := s.model.Dimensions(ctx)
	return err
}

// Encode кодирует текст запроса. Результаты кэшируются по тексту.
func (s *Store) Encode(ctx context.Context, text string) ([]float32, error) {
	const op = "embedding.Store.Encode"

	key := strings.TrimSpace(text)
	if vec, ok := s.cache.Get(key); ok {
		s.metrics.RecordQueryCache(true)
		return slices.Clone(vec), nil
	}
	s.metrics.RecordQueryCache(false)

	timer := s.metrics.StartTimer(metrics.StageEncode)
	vec, err := s.model.Encode(ctx, key)
	timer.Stop(err)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.cache.Add(key, slices.Clone(vec))
	return vec, nil
}

// EncodeDocuments кодирует тексты документов без кэширования.
func (s *Store) EncodeDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	const op = "embedding.Store.EncodeDocuments"

	timer := s.metrics.StartTimer(metrics.StageEmbedding)
	vecs, err := s.model.EncodeBatch(ctx, texts)
	timer.Stop(err)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return vecs, nil
}

// Save сохраняет эмбеддинг объявления. Повторный вызов перезаписывает вектор.
func (s *Store) Save(ctx context.Context, listingID int64, vector []float32) error {
	const op = "embedding.Store.Save"

	dim, err := s.model.Dimensions(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if len(vector) != dim {
		return fmt.Errorf("%s: %w: got %d, want %d", op, ErrDimensionMismatch, len(vector), dim)
	}

	if err := s.repo.Upsert(ctx, listingID, s.model.Name(), vector); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Get возвращает вектор объявления; ok == false, если его нет или он битый.
func (s *Store) Get(ctx context.Context, listingID int64) ([]float32, bool, error) {
	const op = "embedding.Store.Get"

	rec, err := s.repo.Get(ctx, listingID, s.model.Name())
	if err != nil {
		if errors.Is(err, repository.ErrEmbeddingNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	dim, err := s.model.Dimensions(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	if len(rec.Vector) != dim {
		s.log.Warn("stored embedding has wrong dimensions",
			slog.Int64("listing_id", listingID),
			slog.Int("got", len(rec.Vector)),
			slog.Int("want", dim),
		)
		return nil, false, nil
	}

	return rec.Vector, true, nil
}

// GetMany загружает векторы; ids == nil — все векторы модели.
// Векторы неверной размерности считаются отсутствующими.
func (s *Store) GetMany(ctx context.Context, ids []int64) (map[int64][]float32, error) {
	const op = "embedding.Store.GetMany"

	vectors, err := s.repo.GetMany(ctx, s.model.Name(), ids)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	dim, err := s.model.Dimensions(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	dropped := 0
	for id, vec := range vectors {
		if len(vec) != dim {
			delete(vectors, id)
			dropped++
		}
	}
	if dropped > 0 {
		s.log.Warn("dropped embeddings with wrong dimensions",
			slog.String("op", op),
			slog.Int("dropped", dropped),
			slog.Int("want", dim),
		)
	}

	return vectors, nil
}

// Count — количество сохранённых эмбеддингов текущей модели.
func (s *Store) Count(ctx context.Context) (int64, error) {
	return s.repo.Count(ctx, s.model.Name())
}

// VectorSearch кодирует запрос и ищет ближайшие объявления.
// candidateIDs == nil — поиск по всем эмбеддингам.
func (s *Store) VectorSearch(ctx context.Context, queryText string, limit int, candidateIDs []int64) ([]domain.RankedItem, error) {
	const op = "embedding.Store.VectorSearch"

	vec, err := s.Encode(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	items, err := s.SearchByVector(ctx, vec, limit, candidateIDs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return items, nil
}

// SearchByVector ранжирует объявления по косинусной близости к vec.
func (s *Store) SearchByVector(ctx context.Context, vec []float32, limit int, candidateIDs []int64) ([]domain.RankedItem, error) {
	const op = "embedding.Store.SearchByVector"

	if limit <= 0 || (candidateIDs != nil && len(candidateIDs) == 0) {
		return []domain.RankedItem{}, nil
	}

	vectors, err := s.GetMany(ctx, candidateIDs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return RankBySimilarity(vec, vectors, limit), nil
}

// RankBySimilarity сортирует векторы по близости к query: по убыванию score, при равенстве по id.
func RankBySimilarity(query []float32, vectors map[int64][]float32, limit int) []domain.RankedItem {
	items := make([]domain.RankedItem, 0, len(vectors))
	for id, vec := range vectors {
		items = append(items, domain.RankedItem{ID: id, Score: CosineSimilarity(query, vec)})
	}

	SortRanked(items)

	if limit >= 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

// SortRanked — порядок выдачи: score по убыванию, id по возрастанию.
func SortRanked(items []domain.RankedItem) {
	slices.SortFunc(items, func(a, b domain.RankedItem) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}

// CosineSimilarity возвращает косинус угла между векторами в [-1, 1].
// 0, если длины различаются или одна из норм нулевая.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if math.IsNaN(sim) {
		return 0
	}
	return math.Max(-1, math.Min(1, sim))
}
