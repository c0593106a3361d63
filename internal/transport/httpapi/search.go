package httpapi

import (
	"net/http"
	"strings"

	"housing_search/internal/domain"
)

type searchResponse struct {
	Query           string                `json:"query"`
	Results         []domain.SearchResult `json:"results"`
	Count           int                   `json:"count"`
	Degraded        bool                  `json:"degraded"`
	LexicalFallback bool                  `json:"lexical_fallback"`
	TookMs          int64                 `json:"took_ms"`
}

// handleSearch — GET /api/v1/search.
func (h *handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	params := domain.SearchParams{
		Query:           strings.TrimSpace(q.Get("q")),
		BM25PoolSize:    h.searchCfg.BM25PoolSize,
		VectorPoolSize:  h.searchCfg.VectorPoolSize,
		FusionK:         h.searchCfg.FusionK,
		MinLexicalScore: h.searchCfg.MinLexicalScore,
	}

	p := queryParser{values: q}
	p.intVar("limit", &params.Limit)
	p.intVar("bm25_pool_size", &params.BM25PoolSize)
	p.intVar("vector_pool_size", &params.VectorPoolSize)
	p.intVar("fusion_k", &params.FusionK)
	p.floatVar("min_lexical_score", &params.MinLexicalScore)
	params.TargetPrice = p.floatPtr("target_price")
	params.PriceWeight = p.floatPtr("price_weight")

	if err := p.err(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.search.Search(r.Context(), params)
	if err != nil {
		h.handleError(w, err, "search failed")
		return
	}

	results := resp.Results
	if results == nil {
		results = []domain.SearchResult{}
	}

	writeJSON(w, http.StatusOK, searchResponse{
		Query:           params.Query,
		Results:         results,
		Count:           len(results),
		Degraded:        resp.Degraded,
		LexicalFallback: resp.LexicalFallback,
		TookMs:          resp.TookMs,
	})
}
