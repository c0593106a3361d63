package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"housing_search/internal/lib/logger/sl"
)

var (
	// ErrModelUnavailable — модель не загрузилась или не отвечает. Отличается от пустой выдачи.
	ErrModelUnavailable = errors.New("embedding model unavailable")
	// ErrDimensionMismatch — длина вектора не совпадает с размерностью модели.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Encoder — провайдер эмбеддингов.
type Encoder interface {
	// Load подготавливает провайдер и возвращает размерность векторов.
	Load(ctx context.Context) (int, error)
	// EncodeBatch кодирует непустые тексты, порядок ответа совпадает с порядком входа.
	EncodeBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Model — общий для всех компонентов объект модели.
// Загружается лениво ровно один раз, ошибка загрузки запоминается.
type Model struct {
	name    string
	encoder Encoder
	log     *slog.Logger

	once    sync.Once
	dim     int
	loadErr error
}

func NewModel(name string, encoder Encoder, log *slog.Logger) *Model {
	return &Model{name: name, encoder: encoder, log: log}
}

// Name — имя модели, под которым хранятся векторы.
func (m *Model) Name() string {
	return m.name
}

func (m *Model) load(ctx context.Context) error {
	m.once.Do(func() {
		const op = "embedding.Model.load"
		log := m.log.With(slog.String("op", op), slog.String("model", m.name))

		// загрузка не должна зависеть от отмены первого запроса
		dim, err := m.encoder.Load(context.WithoutCancel(ctx))
		if err != nil {
			m.loadErr = fmt.Errorf("%w: %v", ErrModelUnavailable, err)
			log.Error("failed to load embedding model", sl.Err(err))
			return
		}
		if dim <= 0 {
			m.loadErr = fmt.Errorf("%w: invalid dimensions %d", ErrModelUnavailable, dim)
			log.Error("embedding model reported invalid dimensions", slog.Int("dimensions", dim))
			return
		}
		m.dim = dim
		log.Info("embedding model loaded", slog.Int("dimensions", dim))
	})
	return m.loadErr
}

// Dimensions возвращает размерность модели, при необходимости загружая её.
func (m *Model) Dimensions(ctx context.Context) (int, error) {
	if err := m.load(ctx); err != nil {
		return 0, err
	}
	return m.dim, nil
}

// Encode кодирует один текст. Пустой текст даёт нулевой вектор.
func (m *Model) Encode(ctx context.Context, text string) ([]float32, error) {
	vecs, err := m.EncodeBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EncodeBatch кодирует пачку текстов.
func (m *Model) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	const op = "embedding.Model.EncodeBatch"

	if err := m.load(ctx); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	result := make([][]float32, len(texts))
	var (
		pending []string
		index   []int
	)
	for i, text := range texts {
		text = strings.TrimSpace(text)
		if text == "" {
			result[i] = make([]float32, m.dim)
			continue
		}
		pending = append(pending, text)
		index = append(index, i)
	}

	if len(pending) == 0 {
		return result, nil
	}

	vecs, err := m.encoder.EncodeBatch(ctx, pending)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s: %w", op, ctxErr)
		}
		return nil, fmt.Errorf("%s: %w: %v", op, ErrModelUnavailable, err)
	}
	if len(vecs) != len(pending) {
		return nil, fmt.Errorf("%s: %w: expected %d vectors, got %d", op, ErrModelUnavailable, len(pending), len(vecs))
	}

	for j, vec := range vecs {
		if len(vec) != m.dim {
			return nil, fmt.Errorf("%s: %w: got %d, want %d", op, ErrDimensionMismatch, len(vec), m.dim)
		}
		result[index[j]] = vec
	}

	return result, nil
}
