package domain

import "time"

// Литеральные значения по умолчанию для поиска.
const (
	DefaultSearchLimit     = 10
	MaxSearchLimit         = 100
	DefaultBM25PoolSize    = 200
	DefaultVectorPoolSize  = 50
	DefaultFusionK         = 60
	DefaultMinLexicalScore = 0.0
)

// RankedItem — элемент ранжированного списка: id объявления и его score.
type RankedItem struct {
	ID    int64
	Score float64
}

// SearchParams — параметры гибридного поиска.
type SearchParams struct {
	Query           string
	Limit           int
	BM25PoolSize    int     `validate:"gte=0"`
	VectorPoolSize  int     `validate:"gte=0"`
	FusionK         int
	MinLexicalScore float64 `validate:"finite,gte=0"`
	// TargetPrice — желаемая цена, nil означает медиану по кандидатам
	TargetPrice *float64 `validate:"omitempty,finite,gte=0"`
	// PriceWeight — вес близости к цене (0-1); nil — решает сервис
	PriceWeight *float64 `validate:"omitempty,finite"`
}

// DefaultSearchParams возвращает параметры с литеральными значениями по умолчанию.
func DefaultSearchParams(query string, limit int) SearchParams {
	return SearchParams{
		Query:           query,
		Limit:           limit,
		BM25PoolSize:    DefaultBM25PoolSize,
		VectorPoolSize:  DefaultVectorPoolSize,
		FusionK:         DefaultFusionK,
		MinLexicalScore: DefaultMinLexicalScore,
	}
}

// Normalize подставляет значения по умолчанию вместо нулевых и ограничивает лимит.
func (p SearchParams) Normalize() SearchParams {
	if p.Limit <= 0 {
		p.Limit = DefaultSearchLimit
	}
	if p.Limit > MaxSearchLimit {
		p.Limit = MaxSearchLimit
	}
	if p.BM25PoolSize <= 0 {
		p.BM25PoolSize = DefaultBM25PoolSize
	}
	if p.VectorPoolSize <= 0 {
		p.VectorPoolSize = DefaultVectorPoolSize
	}
	if p.FusionK <= 0 {
		p.FusionK = DefaultFusionK
	}
	if p.PriceWeight != nil {
		w := min(max(*p.PriceWeight, 0), 1)
		p.PriceWeight = &w
	}
	return p
}

// SignalScores — scores по отдельным сигналам.
type SignalScores struct {
	Hybrid  float64 `json:"hybrid"`
	Lexical float64 `json:"lexical"`
	Vector  float64 `json:"vector"`
}

// SearchResult — объявление в выдаче поиска.
type SearchResult struct {
	ListingID    int64        `json:"listing_id"`
	Title        string       `json:"title"`
	Price        *float64     `json:"price"`
	Address      string       `json:"address"`
	City         string       `json:"city"`
	Latitude     *float64     `json:"latitude"`
	Longitude    *float64     `json:"longitude"`
	Bedrooms     *float64     `json:"bedrooms"`
	Bathrooms    *float64     `json:"bathrooms"`
	PropertyType PropertyType `json:"property_type"`
	Area         *float64     `json:"area"`
	Scores       SignalScores `json:"scores"`
}

// SearchResponse — ответ поиска.
type SearchResponse struct {
	Results []SearchResult `json:"results"`
	// Degraded — векторная часть недоступна, выдача только лексическая
	Degraded bool `json:"degraded"`
	// LexicalFallback — сработал широкий префиксный запрос
	LexicalFallback bool  `json:"lexical_fallback"`
	TookMs          int64 `json:"took_ms"`
}

// EmbeddingRecord — сохранённый эмбеддинг объявления для конкретной модели.
type EmbeddingRecord struct {
	ListingID int64
	ModelName string
	Vector    []float32
	CreatedAt time.Time
	UpdatedAt time.Time
}
