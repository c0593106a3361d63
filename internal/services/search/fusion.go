package search

import (
	"housing_search/internal/domain"
	"housing_search/internal/services/embedding"
)

// Fuse объединяет ранжирования методом Reciprocal Rank Fusion: score = Σ 1/(k + rank + 1), rank с нуля.
// Учитывается только порядок, сами score входных списков игнорируются.
// Повтор id внутри одного списка засчитывается по первой позиции.
func Fuse(rankings [][]domain.RankedItem, k int) []domain.RankedItem {
	if k <= 0 {
		k = domain.DefaultFusionK
	}

	scores := make(map[int64]float64)
	for _, ranking := range rankings {
		seen := make(map[int64]struct{}, len(ranking))
		for rank, item := range ranking {
			if _, ok := seen[item.ID]; ok {
				continue
			}
			seen[item.ID] = struct{}{}
			scores[item.ID] += 1.0 / float64(k+rank+1)
		}
	}

	fused := make([]domain.RankedItem, 0, len(scores))
	for id, score := range scores {
		fused = append(fused, domain.RankedItem{ID: id, Score: score})
	}
	embedding.SortRanked(fused)

	return fused
}
