package lexical

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"housing_search/internal/domain"
	"housing_search/internal/lib/metrics"
	"housing_search/internal/lib/tokenize"
)

// Index — полнотекстовый индекс объявлений.
type Index interface {
	LexicalPrimary(ctx context.Context, query string, limit int, minScore float64) ([]domain.RankedItem, error)
	LexicalFallback(ctx context.Context, tsQuery string, limit int, minScore float64) ([]domain.RankedItem, error)
}

// Result — лексическая выдача и признак того, что сработал широкий запрос.
type Result struct {
	Items    []domain.RankedItem
	Fallback bool
}

// strategy — один способ превратить запрос в выборку из индекса.
type strategy struct {
	name     string
	fallback bool
	// prepare возвращает выражение для индекса; пустая строка — стратегия не применима
	prepare func(query string) string
	run     func(ctx context.Context, q string, limit int, minScore float64) ([]domain.RankedItem, error)
}

// Ranker — лексическое ранжирование: сначала точный запрос, при пустом ответе широкий префиксный.
type Ranker struct {
	index      Index
	log        *slog.Logger
	metrics    *metrics.SearchMetrics
	strategies []strategy
}

func NewRanker(index Index, m *metrics.SearchMetrics, log *slog.Logger) *Ranker {
	r := &Ranker{index: index, log: log, metrics: m}
	r.strategies = []strategy{
		{
			name:    "websearch",
			prepare: func(q string) string { return q },
			run:     index.LexicalPrimary,
		},
		{
			name:     "prefix_or",
			fallback: true,
			prepare:  PrefixQuery,
			run:      index.LexicalFallback,
		},
	}
	return r
}

// Search возвращает кандидатов по убыванию ts_rank. Пустой запрос даёт пустую выдачу.
func (r *Ranker) Search(ctx context.Context, query string, limit int, minScore float64) (Result, error) {
	const op = "lexical.Ranker.Search"

	query = strings.TrimSpace(query)
	if query == "" || limit <= 0 {
		return Result{Items: []domain.RankedItem{}}, nil
	}

	timer := r.metrics.StartTimer(metrics.StageLexical)

	for _, s := range r.strategies {
		q := s.prepare(query)
		if q == "" {
			continue
		}

		items, err := s.run(ctx, q, limit, minScore)
		if err != nil {
			timer.Stop(err)
			return Result{}, fmt.Errorf("%s: %s: %w", op, s.name, err)
		}

		if len(items) > 0 {
			timer.Stop(nil)
			if s.fallback {
				r.log.Debug("lexical fallback used",
					slog.String("op", op),
					slog.String("strategy", s.name),
					slog.Int("results", len(items)),
				)
			}
			return Result{Items: items, Fallback: s.fallback}, nil
		}
	}

	timer.Stop(nil)
	return Result{Items: []domain.RankedItem{}}, nil
}

// PrefixQuery строит выражение to_tsquery вида 't1:* | t2:*'.
// Термы содержат только буквы и цифры, поэтому экранирование не требуется.
func PrefixQuery(query string) string {
	terms := tokenize.UniqueTerms(query)
	if len(terms) == 0 {
		return ""
	}
	parts := make([]string, len(terms))
	for i, t := range terms {
		parts[i] = t + ":*"
	}
	return strings.Join(parts, " | ")
}
