package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"housing_search/internal/domain"
	"housing_search/internal/lib/logger/sl"
	"housing_search/internal/lib/metrics"
	"housing_search/internal/services/embedding"
	"housing_search/internal/services/lexical"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// LexicalSearcher — лексическое ранжирование.
type LexicalSearcher interface {
	Search(ctx context.Context, query string, limit int, minScore float64) (lexical.Result, error)
}

// ListingReader — чтение объявлений пачкой.
type ListingReader interface {
	GetMany(ctx context.Context, ids []int64) (map[int64]domain.Listing, error)
}

// VectorIndex — кодирование запроса и поиск по сохранённым эмбеддингам.
type VectorIndex interface {
	Encode(ctx context.Context, text string) ([]float32, error)
	SearchByVector(ctx context.Context, vec []float32, limit int, candidateIDs []int64) ([]domain.RankedItem, error)
}

// MissingEmbeddingsFunc получает id лексических кандидатов, у которых нет эмбеддинга.
type MissingEmbeddingsFunc func(ids []int64)

// Candidates — кандидаты обоих сигналов для одного запроса.
type Candidates struct {
	// Lexical — лексические кандидаты после фильтра полноты, в порядке ts_rank
	Lexical []domain.RankedItem
	// Vector — объединение локального и глобального векторного поиска
	Vector []domain.RankedItem
	// Listings — загруженные объявления лексических кандидатов
	Listings        map[int64]domain.Listing
	LexicalFallback bool
	// Degraded — модель недоступна, векторный сигнал пуст; причина в VectorErr
	Degraded  bool
	VectorErr error
}

// Retriever собирает кандидатов из лексического и векторного индексов.
type Retriever struct {
	lexical  LexicalSearcher
	listings ListingReader
	vectors  VectorIndex
	onMiss   MissingEmbeddingsFunc
	metrics  *metrics.SearchMetrics
	log      *slog.Logger
}

func NewRetriever(
	lex LexicalSearcher,
	listings ListingReader,
	vectors VectorIndex,
	m *metrics.SearchMetrics,
	log *slog.Logger,
) *Retriever {
	return &Retriever{
		lexical:  lex,
		listings: listings,
		vectors:  vectors,
		metrics:  m,
		log:      log,
	}
}

// OnMissingEmbeddings регистрирует обработчик кандидатов без эмбеддинга.
func (r *Retriever) OnMissingEmbeddings(fn MissingEmbeddingsFunc) {
	r.onMiss = fn
}

// Retrieve выполняет лексический и глобальный векторный поиск параллельно,
// затем локальный векторный поиск по отфильтрованным лексическим кандидатам.
func (r *Retriever) Retrieve(ctx context.Context, params domain.SearchParams) (*Candidates, error) {
	const op = "search.Retriever.Retrieve"
	log := r.log.With(slog.String("op", op))

	var (
		lexItems  []domain.RankedItem
		fallback  bool
		listings  map[int64]domain.Listing
		queryVec  []float32
		global    []domain.RankedItem
		vectorErr error
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		res, err := r.lexical.Search(gctx, params.Query, params.BM25PoolSize, params.MinLexicalScore)
		if err != nil {
			return err
		}
		fallback = res.Fallback
		if len(res.Items) == 0 {
			return nil
		}

		ids := lo.Map(res.Items, func(item domain.RankedItem, _ int) int64 { return item.ID })
		listings, err = r.listings.GetMany(gctx, ids)
		if err != nil {
			return err
		}

		lexItems = lo.Filter(res.Items, func(item domain.RankedItem, _ int) bool {
			l, ok := listings[item.ID]
			return ok && l.IsComplete()
		})
		return nil
	})

	g.Go(func() error {
		vec, err := r.vectors.Encode(gctx, params.Query)
		if err != nil {
			if errors.Is(err, embedding.ErrModelUnavailable) {
				vectorErr = err
				return nil
			}
			return err
		}
		queryVec = vec

		timer := r.metrics.StartTimer(metrics.StageVector)
		global, err = r.vectors.SearchByVector(gctx, vec, params.VectorPoolSize, nil)
		timer.Stop(err)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	c := &Candidates{
		Lexical:         lexItems,
		Listings:        listings,
		LexicalFallback: fallback,
	}
	if c.Lexical == nil {
		c.Lexical = []domain.RankedItem{}
	}
	if c.Listings == nil {
		c.Listings = map[int64]domain.Listing{}
	}

	if vectorErr != nil {
		log.Warn("embedding model unavailable, serving lexical only", sl.Err(vectorErr))
		c.Degraded = true
		c.VectorErr = vectorErr
		c.Vector = []domain.RankedItem{}
		return c, nil
	}

	var local []domain.RankedItem
	if len(lexItems) > 0 {
		ids := lo.Map(lexItems, func(item domain.RankedItem, _ int) int64 { return item.ID })

		var err error
		local, err = r.vectors.SearchByVector(ctx, queryVec, len(ids), ids)
		if err != nil {
			return nil, fmt.Errorf("%s: local vector search: %w", op, err)
		}

		r.reportMissing(ids, local)
	}

	if len(global) == 0 && len(local) == 0 {
		log.Warn("no embeddings available, vector signal is empty")
	}

	c.Vector = mergeVector(local, global)
	return c, nil
}

func (r *Retriever) reportMissing(ids []int64, local []domain.RankedItem) {
	if r.onMiss == nil || len(local) == len(ids) {
		return
	}
	found := lo.SliceToMap(local, func(item domain.RankedItem) (int64, struct{}) {
		return item.ID, struct{}{}
	})
	missing := lo.Filter(ids, func(id int64, _ int) bool {
		_, ok := found[id]
		return !ok
	})
	if len(missing) > 0 {
		r.onMiss(missing)
	}
}

// mergeVector объединяет локальную и глобальную векторные выдачи, при повторе побеждает локальная.
func mergeVector(local, global []domain.RankedItem) []domain.RankedItem {
	merged := make([]domain.RankedItem, 0, len(local)+len(global))
	seen := make(map[int64]struct{}, len(local)+len(global))

	for _, list := range [][]domain.RankedItem{local, global} {
		for _, item := range list {
			if _, ok := seen[item.ID]; ok {
				continue
			}
			seen[item.ID] = struct{}{}
			merged = append(merged, item)
		}
	}

	embedding.SortRanked(merged)
	return merged
}
