package metrics

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "housing_search"

// Stage — этап поискового конвейера.
type Stage string

const (
	StageLexical   Stage = "lexical"
	StageVector    Stage = "vector"
	StageEncode    Stage = "encode"
	StageFusion    Stage = "fusion"
	StageRerank    Stage = "rerank"
	StageHydrate   Stage = "hydrate"
	StageSearch    Stage = "search"
	StageEmbedding Stage = "embedding"
)

// SearchMetrics — метрики поиска и фоновой догрузки эмбеддингов.
type SearchMetrics struct {
	log *slog.Logger

	StageDuration   *prometheus.HistogramVec
	StageCalls      *prometheus.CounterVec
	DegradedTotal   prometheus.Counter
	FallbackTotal   prometheus.Counter
	ResultsReturned prometheus.Histogram
	EmbeddingsSaved *prometheus.CounterVec
	QueryCacheHits  *prometheus.CounterVec
}

// NewSearchMetrics создаёт метрики и регистрирует их в reg. reg == nil — без регистрации.
func NewSearchMetrics(reg prometheus.Registerer, log *slog.Logger) *SearchMetrics {
	m := &SearchMetrics{
		log: log,
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of search pipeline stages in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"stage", "status"}),
		StageCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_calls_total",
			Help:      "Total number of search pipeline stage calls",
		}, []string{"stage", "status"}),
		DegradedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degraded_searches_total",
			Help:      "Searches served lexical-only because the embedding model was unavailable",
		}),
		FallbackTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lexical_fallback_total",
			Help:      "Searches where the broad prefix query was used",
		}),
		ResultsReturned: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "results_returned",
			Help:      "Number of results returned per search",
			Buckets:   []float64{0, 1, 5, 10, 20, 50, 100},
		}),
		EmbeddingsSaved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embeddings_saved_total",
			Help:      "Listing embeddings written by maintenance",
		}, []string{"status"}),
		QueryCacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_cache_total",
			Help:      "Query embedding cache lookups",
		}, []string{"result"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.StageDuration,
			m.StageCalls,
			m.DegradedTotal,
			m.FallbackTotal,
			m.ResultsReturned,
			m.EmbeddingsSaved,
			m.QueryCacheHits,
		)
	}

	return m
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordStage записывает вызов этапа.
func (m *SearchMetrics) RecordStage(stage Stage, latency time.Duration, err error) {
	if m == nil {
		return
	}
	status := statusOf(err)
	m.StageDuration.WithLabelValues(string(stage), status).Observe(latency.Seconds())
	m.StageCalls.WithLabelValues(string(stage), status).Inc()

	if m.log == nil {
		return
	}
	if err != nil {
		m.log.Warn("search stage failed",
			slog.String("stage", string(stage)),
			slog.Int64("latency_ms", latency.Milliseconds()),
			slog.String("error", err.Error()),
		)
	} else {
		m.log.Debug("search stage completed",
			slog.String("stage", string(stage)),
			slog.Int64("latency_ms", latency.Milliseconds()),
		)
	}
}

// StageTimer помогает измерять время этапов.
type StageTimer struct {
	metrics   *SearchMetrics
	stage     Stage
	startTime time.Time
}

// StartTimer начинает измерение времени этапа.
func (m *SearchMetrics) StartTimer(stage Stage) *StageTimer {
	return &StageTimer{
		metrics:   m,
		stage:     stage,
		startTime: time.Now(),
	}
}

// Stop останавливает таймер и записывает метрики.
func (t *StageTimer) Stop(err error) {
	t.metrics.RecordStage(t.stage, time.Since(t.startTime), err)
}

// RecordSearch фиксирует итог поиска.
func (m *SearchMetrics) RecordSearch(results int, degraded, fallback bool) {
	if m == nil {
		return
	}
	m.ResultsReturned.Observe(float64(results))
	if degraded {
		m.DegradedTotal.Inc()
	}
	if fallback {
		m.FallbackTotal.Inc()
	}
}

// RecordEmbeddingSaved фиксирует результат сохранения эмбеддинга.
func (m *SearchMetrics) RecordEmbeddingSaved(err error) {
	if m == nil {
		return
	}
	m.EmbeddingsSaved.WithLabelValues(statusOf(err)).Inc()
}

// RecordQueryCache фиксирует попадание или промах кэша векторов запросов.
func (m *SearchMetrics) RecordQueryCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.QueryCacheHits.WithLabelValues(result).Inc()
}
