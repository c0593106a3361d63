package search

import (
	"math"
	"slices"

	"housing_search/internal/domain"
	"housing_search/internal/services/embedding"
)

const (
	// priceRangeRatio — доля целевой цены, внутри которой score убывает линейно
	priceRangeRatio = 0.5
	// outOfRangeScore — score на границе диапазона, дальше убывает как r/d
	outOfRangeScore = 0.5
)

// RerankOptions — параметры ценового переранжирования.
type RerankOptions struct {
	// TargetPrice — nil означает медиану цен кандидатов
	TargetPrice *float64
	PriceWeight float64
	// TopN — сколько первых кандидатов переранжировать; <= 0 — все
	TopN int
}

// Rerank смещает выдачу к целевой цене. Входные срезы не изменяются.
// Все возвращаемые score лежат на шкале combined: кандидаты без цены получают price score 0,
// хвост за пределами TopN получает 0 и сохраняет порядок слияния.
func Rerank(fused []domain.RankedItem, prices map[int64]float64, opts RerankOptions) []domain.RankedItem {
	out := slices.Clone(fused)
	if out == nil {
		out = []domain.RankedItem{}
	}

	w := math.Max(0, math.Min(1, opts.PriceWeight))
	if math.IsNaN(opts.PriceWeight) {
		w = 0
	}
	if w == 0 && opts.TargetPrice == nil {
		return out
	}

	topN := opts.TopN
	if topN <= 0 || topN > len(out) {
		topN = len(out)
	}
	head, tail := out[:topN], out[topN:]

	var pricedValues []float64
	for _, item := range head {
		if p, ok := prices[item.ID]; ok && p > 0 {
			pricedValues = append(pricedValues, p)
		}
	}
	if len(pricedValues) == 0 {
		return out
	}

	target := median(pricedValues)
	if opts.TargetPrice != nil {
		target = *opts.TargetPrice
	}

	minScore, maxScore := head[0].Score, head[0].Score
	for _, item := range head[1:] {
		minScore = math.Min(minScore, item.Score)
		maxScore = math.Max(maxScore, item.Score)
	}

	result := make([]domain.RankedItem, len(out))
	for i, item := range head {
		norm := 0.5
		if maxScore > minScore {
			norm = (item.Score - minScore) / (maxScore - minScore)
		}
		var priceScore float64
		if p, ok := prices[item.ID]; ok && p > 0 {
			priceScore = PriceScore(p, target)
		}
		result[i] = domain.RankedItem{ID: item.ID, Score: (1-w)*norm + w*priceScore}
	}
	embedding.SortRanked(result[:topN])

	for i, item := range tail {
		result[topN+i] = domain.RankedItem{ID: item.ID, Score: 0}
	}
	return result
}

// PriceScore оценивает близость цены к целевой в [0, 1].
// Внутри диапазона r = target*0.5 убывает линейно от 1, за его пределами как 0.5*r/d.
func PriceScore(price, target float64) float64 {
	r := math.Abs(target) * priceRangeRatio
	d := math.Abs(price - target)

	if r == 0 {
		if d == 0 {
			return 1
		}
		return 0
	}

	var score float64
	if d <= r {
		score = 1 - d/r
	} else {
		score = outOfRangeScore * r / d
	}
	return math.Max(0, score)
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
