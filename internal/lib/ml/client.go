package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"housing_search/internal/config"
	"log/slog"
)

// EntityTypeListing — тип сущности объявления в ML сервисе.
const EntityTypeListing = "property"

// Client — клиент для взаимодействия с ML сервисом генерации эмбеддингов.
type Client interface {
	PrepareAndEmbed(ctx context.Context, req PrepareAndEmbedRequest) (*PrepareAndEmbedResponse, error)
	ReindexBatch(ctx context.Context, req ReindexBatchRequest) (*ReindexBatchResponse, error)
	GetModelInfo(ctx context.Context) (*ModelInfo, error)
}

type client struct {
	httpClient *http.Client
	baseURL    string
	log        *slog.Logger
}

// NewClient создаёт новый клиент для ML сервиса.
func NewClient(cfg config.MLConfig, log *slog.Logger) Client {
	return &client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: cfg.BaseURL,
		log:     log,
	}
}

// PrepareAndEmbedRequest — запрос на подготовку текста и генерацию эмбеддинга.
type PrepareAndEmbedRequest struct {
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Price       *int64   `json:"price,omitempty"`
	Rooms       *int32   `json:"rooms,omitempty"`
	Area        *float64 `json:"area,omitempty"`
	Address     *string  `json:"address,omitempty"`
}

// PrepareAndEmbedResponse — ответ с эмбеддингом.
type PrepareAndEmbedResponse struct {
	Embedding    []float64 `json:"embedding"`
	Dimensions   int       `json:"dimensions"`
	PreparedText string    `json:"prepared_text"`
}

// ModelInfo — информация о модели.
type ModelInfo struct {
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
}

// ReindexRequest — одна сущность пакетной переиндексации.
type ReindexRequest struct {
	EntityID    string `json:"entity_id"`
	EntityType  string `json:"entity_type"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

// ReindexResponse — результат по одной сущности.
type ReindexResponse struct {
	EntityID     string    `json:"entity_id"`
	EntityType   string    `json:"entity_type"`
	Embedding    []float64 `json:"embedding"`
	PreparedText string    `json:"prepared_text"`
	Message      string    `json:"message"`
}

// ReindexBatchRequest — запрос на пакетную переиндексацию.
type ReindexBatchRequest struct {
	Entities []ReindexRequest `json:"entities"`
}

// ReindexBatchResponse — ответ на пакетную переиндексацию.
type ReindexBatchResponse struct {
	Results []ReindexResponse `json:"results"`
	Total   int               `json:"total"`
	Success int               `json:"success"`
	Failed  int               `json:"failed"`
}

// PrepareAndEmbed отправляет текст на подготовку и векторизацию.
func (c *client) PrepareAndEmbed(ctx context.Context, req PrepareAndEmbedRequest) (*PrepareAndEmbedResponse, error) {
	const op = "ml.Client.PrepareAndEmbed"

	var result PrepareAndEmbedResponse
	if err := c.do(ctx, http.MethodPost, "/prepare-and-embed", req, &result); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if len(result.Embedding) == 0 {
		return nil, fmt.Errorf("%s: empty embedding in response", op)
	}

	return &result, nil
}

// ReindexBatch векторизует пачку сущностей одним запросом.
func (c *client) ReindexBatch(ctx context.Context, req ReindexBatchRequest) (*ReindexBatchResponse, error) {
	const op = "ml.Client.ReindexBatch"

	var result ReindexBatchResponse
	if err := c.do(ctx, http.MethodPost, "/reindex-batch", req, &result); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	c.log.Debug("batch reindexed",
		slog.Int("total", result.Total),
		slog.Int("success", result.Success),
		slog.Int("failed", result.Failed),
	)

	return &result, nil
}

// GetModelInfo получает информацию о модели.
func (c *client) GetModelInfo(ctx context.Context) (*ModelInfo, error) {
	const op = "ml.Client.GetModelInfo"

	var result ModelInfo
	if err := c.do(ctx, http.MethodGet, "/model-info", nil, &result); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &result, nil
}

func (c *client) do(ctx context.Context, method, path string, body any, out any) error {
	url := fmt.Sprintf("%s%s", c.baseURL, path)

	var reader io.Reader
	if body != nil {
		reqBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewBuffer(reqBody)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
