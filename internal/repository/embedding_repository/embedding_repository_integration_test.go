//go:build integration

package embedding_repository

import (
	"context"
	"testing"

	"housing_search/internal/lib/logger/handlers/slogdiscard"
	"housing_search/internal/repository"
	"housing_search/internal/repository/pgtest"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*EmbeddingRepository, *pgxpool.Pool, []int64) {
	t.Helper()

	pool := pgtest.New(t)
	ids := make([]int64, 0, 3)
	for _, title := range []string{"Oakland loft", "Shadyside house", "Downtown studio"} {
		var id int64
		err := pool.QueryRow(context.Background(),
			`INSERT INTO listings (title, price) VALUES ($1, 1000) RETURNING listing_id`, title).Scan(&id)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	return NewEmbeddingRepository(pool, slogdiscard.NewDiscardLogger()), pool, ids
}

func TestEmbeddingRepository_UpsertAndGet(t *testing.T) {
	repo, _, ids := setup(t)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, ids[0], "m", []float32{0.5, -0.25, 1}))

	rec, err := repo.Get(ctx, ids[0], "m")
	require.NoError(t, err)
	assert.Equal(t, ids[0], rec.ListingID)
	assert.Equal(t, "m", rec.ModelName)
	assert.Equal(t, []float32{0.5, -0.25, 1}, rec.Vector)

	// повторная запись заменяет вектор, а не добавляет строку
	require.NoError(t, repo.Upsert(ctx, ids[0], "m", []float32{1, 0, 0}))
	rec, err = repo.Get(ctx, ids[0], "m")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0}, rec.Vector)

	count, err := repo.Count(ctx, "m")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	_, err = repo.Get(ctx, ids[0], "other-model")
	assert.ErrorIs(t, err, repository.ErrEmbeddingNotFound)
}

func TestEmbeddingRepository_GetMany(t *testing.T) {
	repo, _, ids := setup(t)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, ids[0], "m", []float32{1, 0}))
	require.NoError(t, repo.Upsert(ctx, ids[1], "m", []float32{0, 1}))
	require.NoError(t, repo.Upsert(ctx, ids[2], "other", []float32{1, 1}))

	all, err := repo.GetMany(ctx, "m", nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	some, err := repo.GetMany(ctx, "m", []int64{ids[1], ids[2]})
	require.NoError(t, err)
	require.Len(t, some, 1)
	assert.Equal(t, []float32{0, 1}, some[ids[1]])

	none, err := repo.GetMany(ctx, "m", []int64{})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestEmbeddingRepository_CascadeOnListingDelete(t *testing.T) {
	repo, pool, ids := setup(t)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, ids[0], "m", []float32{1, 0}))
	_, err := pool.Exec(ctx, `DELETE FROM listings WHERE listing_id = $1`, ids[0])
	require.NoError(t, err)

	_, err = repo.Get(ctx, ids[0], "m")
	assert.ErrorIs(t, err, repository.ErrEmbeddingNotFound)
}
