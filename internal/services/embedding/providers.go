package embedding

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"strconv"

	"housing_search/internal/config"
	"housing_search/internal/lib/ml"
	"housing_search/internal/lib/tokenize"

	openai "github.com/sashabaranov/go-openai"
)

const (
	ProviderML     = "ml"
	ProviderOpenAI = "openai"
	ProviderHash   = "hash"
)

// NewEncoder выбирает провайдера по конфигурации.
func NewEncoder(cfg *config.Config, log *slog.Logger) (Encoder, error) {
	switch cfg.Embedding.Provider {
	case ProviderML, "":
		return NewMLEncoder(ml.NewClient(cfg.ML, log)), nil
	case ProviderOpenAI:
		if cfg.OpenAI.APIKey == "" {
			return nil, errors.New("OPENAI_API_KEY is required for openai embedding provider")
		}
		return NewOpenAIEncoder(cfg.OpenAI), nil
	case ProviderHash:
		return NewHashEncoder(cfg.Embedding.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}
}

// MLEncoder — эмбеддинги через ML сервис платформы.
type MLEncoder struct {
	client ml.Client
}

func NewMLEncoder(client ml.Client) *MLEncoder {
	return &MLEncoder{client: client}
}

func (e *MLEncoder) Load(ctx context.Context) (int, error) {
	info, err := e.client.GetModelInfo(ctx)
	if err != nil {
		return 0, err
	}
	return info.Dimensions, nil
}

// EncodeBatch: один текст идёт через /prepare-and-embed, пачка через /reindex-batch,
// где порядок восстанавливается по entity_id.
func (e *MLEncoder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 1 {
		resp, err := e.client.PrepareAndEmbed(ctx, ml.PrepareAndEmbedRequest{Description: texts[0]})
		if err != nil {
			return nil, err
		}
		return [][]float32{toFloat32(resp.Embedding)}, nil
	}

	entities := make([]ml.ReindexRequest, len(texts))
	for i, text := range texts {
		entities[i] = ml.ReindexRequest{
			EntityID:    strconv.Itoa(i),
			EntityType:  ml.EntityTypeListing,
			Description: text,
		}
	}

	resp, err := e.client.ReindexBatch(ctx, ml.ReindexBatchRequest{Entities: entities})
	if err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	for _, res := range resp.Results {
		i, err := strconv.Atoi(res.EntityID)
		if err != nil || i < 0 || i >= len(texts) || len(res.Embedding) == 0 {
			continue
		}
		out[i] = toFloat32(res.Embedding)
	}
	for i, vec := range out {
		if vec == nil {
			return nil, fmt.Errorf("ml service returned no embedding for text %d of %d", i, len(texts))
		}
	}
	return out, nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}

// OpenAIEncoder — эмбеддинги через OpenAI-совместимый API.
type OpenAIEncoder struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
}

func NewOpenAIEncoder(cfg config.OpenAIConfig) *OpenAIEncoder {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL

	return &OpenAIEncoder{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      openai.EmbeddingModel(cfg.Model),
		dimensions: cfg.Dimensions,
	}
}

// Load делает пробный запрос: размерность фиксируется по ответу модели.
func (e *OpenAIEncoder) Load(ctx context.Context) (int, error) {
	vecs, err := e.EncodeBatch(ctx, []string{"dimension probe"})
	if err != nil {
		return 0, err
	}
	return len(vecs[0]), nil
}

func (e *OpenAIEncoder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	req := openai.EmbeddingRequest{
		Input:          texts,
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if e.dimensions > 0 {
		req.Dimensions = e.dimensions
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		var reqErr *openai.RequestError
		if errors.As(err, &reqErr) {
			return nil, fmt.Errorf("embedding API error %d: %w", reqErr.HTTPStatusCode, err)
		}
		return nil, err
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

// HashEncoder — детерминированный офлайн-энкодер на хэшировании признаков.
// Термы хэшируются в знаковые координаты, вектор нормируется по L2.
type HashEncoder struct {
	dim int
}

func NewHashEncoder(dim int) *HashEncoder {
	return &HashEncoder{dim: dim}
}

func (e *HashEncoder) Load(context.Context) (int, error) {
	if e.dim <= 0 {
		return 0, fmt.Errorf("invalid hash encoder dimensions %d", e.dim)
	}
	return e.dim, nil
}

func (e *HashEncoder) EncodeBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.encode(text)
	}
	return out, nil
}

func (e *HashEncoder) encode(text string) []float32 {
	vec := make([]float32, e.dim)
	for _, term := range tokenize.Terms(text) {
		h := fnv.New64a()
		h.Write([]byte(term))
		sum := h.Sum64()

		idx := int(sum % uint64(e.dim))
		if sum>>63 == 1 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}
