package embedding_repository

import (
	"context"
	"errors"
	"fmt"
	"housing_search/internal/domain"
	"housing_search/internal/lib/logger/sl"
	"housing_search/internal/repository"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type EmbeddingRepository struct {
	db  *pgxpool.Pool
	log *slog.Logger
}

func NewEmbeddingRepository(db *pgxpool.Pool, log *slog.Logger) *EmbeddingRepository {
	return &EmbeddingRepository{db: db, log: log}
}

// Upsert сохраняет эмбеддинг одним выражением: либо весь вектор, либо ничего.
func (r *EmbeddingRepository) Upsert(ctx context.Context, listingID int64, modelName string, vector []float32) error {
	const op = "EmbeddingRepository.Upsert"

	query := `
		INSERT INTO listing_embeddings (listing_id, model_name, embedding, created_at, updated_at)
		VALUES ($1, $2, $3::vector, NOW(), NOW())
		ON CONFLICT (listing_id, model_name)
		DO UPDATE SET embedding = EXCLUDED.embedding, updated_at = NOW()
	`

	if _, err := r.db.Exec(ctx, query, listingID, modelName, repository.VectorToString(vector)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Get возвращает запись эмбеддинга. Битый вектор считается отсутствующим.
func (r *EmbeddingRepository) Get(ctx context.Context, listingID int64, modelName string) (domain.EmbeddingRecord, error) {
	const op = "EmbeddingRepository.Get"

	query := `
		SELECT listing_id, model_name, embedding::text, created_at, updated_at
		FROM listing_embeddings
		WHERE listing_id = $1 AND model_name = $2
	`

	var rec domain.EmbeddingRecord
	var embeddingStr string
	err := r.db.QueryRow(ctx, query, listingID, modelName).Scan(
		&rec.ListingID,
		&rec.ModelName,
		&embeddingStr,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.EmbeddingRecord{}, fmt.Errorf("%s: %w", op, repository.ErrEmbeddingNotFound)
		}
		return domain.EmbeddingRecord{}, fmt.Errorf("%s: %w", op, err)
	}

	vec, err := repository.StringToVector(embeddingStr)
	if err != nil {
		r.log.Warn("failed to parse embedding", slog.Int64("listing_id", listingID), sl.Err(err))
		return domain.EmbeddingRecord{}, fmt.Errorf("%s: %w", op, repository.ErrEmbeddingNotFound)
	}
	rec.Vector = vec

	return rec, nil
}

// GetMany загружает векторы модели для указанных объявлений; ids == nil — для всех.
// Записи, которые не удалось разобрать, пропускаются.
func (r *EmbeddingRepository) GetMany(ctx context.Context, modelName string, ids []int64) (map[int64][]float32, error) {
	const op = "EmbeddingRepository.GetMany"

	var (
		rows pgx.Rows
		err  error
	)
	if ids == nil {
		rows, err = r.db.Query(ctx,
			`SELECT listing_id, embedding::text FROM listing_embeddings WHERE model_name = $1`,
			modelName)
	} else {
		if len(ids) == 0 {
			return map[int64][]float32{}, nil
		}
		rows, err = r.db.Query(ctx,
			`SELECT listing_id, embedding::text FROM listing_embeddings WHERE model_name = $1 AND listing_id = ANY($2)`,
			modelName, ids)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	result := make(map[int64][]float32, len(ids))
	skipped := 0
	for rows.Next() {
		var id int64
		var embeddingStr *string
		if err := rows.Scan(&id, &embeddingStr); err != nil {
			return nil, fmt.Errorf("%s: scan failed: %w", op, err)
		}
		if embeddingStr == nil {
			skipped++
			continue
		}
		vec, err := repository.StringToVector(*embeddingStr)
		if err != nil {
			skipped++
			continue
		}
		result[id] = vec
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows error: %w", op, err)
	}

	if skipped > 0 {
		r.log.Warn("skipped malformed embeddings",
			slog.String("op", op),
			slog.String("model_name", modelName),
			slog.Int("skipped", skipped),
		)
	}

	return result, nil
}

// Count возвращает количество эмбеддингов модели.
func (r *EmbeddingRepository) Count(ctx context.Context, modelName string) (int64, error) {
	const op = "EmbeddingRepository.Count"

	var count int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM listing_embeddings WHERE model_name = $1`, modelName).Scan(&count); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return count, nil
}
