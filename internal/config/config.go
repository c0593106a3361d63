package config

import (
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env         string `env:"ENV" env-default:"local"`
	DatabaseURL string `env:"DATABASE_URL" env-required:"true"`
	HTTP        HTTPConfig
	Embedding   EmbeddingConfig
	ML          MLConfig
	OpenAI      OpenAIConfig
	Search      SearchConfig
	Maintenance MaintenanceConfig
}

type HTTPConfig struct {
	Port        int           `env:"HTTP_PORT" env-default:"8080"`
	Timeout     time.Duration `env:"HTTP_TIMEOUT" env-default:"5s"`
	IdleTimeout time.Duration `env:"HTTP_IDLE_TIMEOUT" env-default:"60s"`
	// AllowedOrigins — список origin'ов для CORS
	AllowedOrigins []string `env:"HTTP_ALLOWED_ORIGINS" env-separator:"," env-default:"*"`
	// PublicURL — внешний адрес API для ссылок в JSON-LD
	PublicURL string `env:"HTTP_PUBLIC_URL" env-default:"http://localhost:8080"`
}

// EmbeddingConfig — конфигурация модели эмбеддингов.
type EmbeddingConfig struct {
	// Provider — источник эмбеддингов: ml, openai или hash
	Provider string `env:"EMBEDDING_PROVIDER" env-default:"ml"`
	// ModelName — имя модели, под которым хранятся векторы в listing_embeddings
	ModelName string `env:"EMBEDDING_MODEL_NAME" env-default:"all-MiniLM-L6-v2"`
	// Dimensions — размерность для hash-провайдера (для остальных берётся из модели)
	Dimensions int `env:"EMBEDDING_DIMENSIONS" env-default:"384"`
	// QueryCacheSize — размер LRU-кэша векторов запросов
	QueryCacheSize int `env:"EMBEDDING_QUERY_CACHE_SIZE" env-default:"1024"`
}

type MLConfig struct {
	BaseURL string        `env:"ML_BASE_URL" env-default:"https://calcifer0323-matching.hf.space"`
	Timeout time.Duration `env:"ML_TIMEOUT" env-default:"30s"`
}

// OpenAIConfig — конфигурация для OpenAI-совместимого API эмбеддингов.
type OpenAIConfig struct {
	BaseURL string `env:"OPENAI_BASE_URL" env-default:"https://api.openai.com/v1"`
	APIKey  string `env:"OPENAI_API_KEY"`
	Model   string `env:"OPENAI_EMBEDDING_MODEL" env-default:"text-embedding-3-small"`
	// Dimensions — 0 означает размерность модели по умолчанию
	Dimensions int `env:"OPENAI_EMBEDDING_DIMENSIONS" env-default:"0"`
}

// SearchConfig — параметры гибридного поиска.
type SearchConfig struct {
	// BM25PoolSize — размер пула лексических кандидатов
	BM25PoolSize int `env:"SEARCH_BM25_POOL_SIZE" env-default:"200"`
	// VectorPoolSize — лимит глобального векторного поиска
	VectorPoolSize int `env:"SEARCH_VECTOR_POOL_SIZE" env-default:"50"`
	// FusionK — константа RRF
	FusionK int `env:"SEARCH_FUSION_K" env-default:"60"`
	// MinLexicalScore — минимальный ts_rank лексического кандидата
	MinLexicalScore float64 `env:"SEARCH_MIN_LEXICAL_SCORE" env-default:"0"`
	// PriceWeight — вес цены, если клиент передал target_price без price_weight
	PriceWeight float64 `env:"SEARCH_PRICE_WEIGHT" env-default:"0.3"`
	// RerankMultiplier — сколько лимитов кандидатов переранжируется по цене
	RerankMultiplier int `env:"SEARCH_RERANK_MULTIPLIER" env-default:"3"`
}

// MaintenanceConfig — фоновая догрузка эмбеддингов.
type MaintenanceConfig struct {
	Enabled    bool          `env:"MAINTENANCE_ENABLE" env-default:"true"`
	Interval   time.Duration `env:"MAINTENANCE_INTERVAL" env-default:"10m"`
	BatchSize  int           `env:"MAINTENANCE_BATCH_SIZE" env-default:"64"`
	Workers    int           `env:"MAINTENANCE_WORKERS" env-default:"4"`
	MaxRetries uint64        `env:"MAINTENANCE_MAX_RETRIES" env-default:"3"`
	QueueSize  int           `env:"MAINTENANCE_QUEUE_SIZE" env-default:"1024"`
}

func MustLoad() *Config {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		panic("cannot read config from environment: " + err.Error())
	}
	return &cfg
}
