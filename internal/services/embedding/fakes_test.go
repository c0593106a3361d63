package embedding

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"housing_search/internal/domain"
	"housing_search/internal/repository"
)

type fakeEncoder struct {
	dim       int
	loadErr   error
	encodeErr error
	loadDelay time.Duration

	loads   atomic.Int32
	encodes atomic.Int32
}

func (e *fakeEncoder) Load(ctx context.Context) (int, error) {
	e.loads.Add(1)
	if e.loadDelay > 0 {
		time.Sleep(e.loadDelay)
	}
	if e.loadErr != nil {
		return 0, e.loadErr
	}
	return e.dim, nil
}

func (e *fakeEncoder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.encodes.Add(1)
	if e.encodeErr != nil {
		return nil, e.encodeErr
	}
	return NewHashEncoder(e.dim).EncodeBatch(ctx, texts)
}

type fakeRepo struct {
	mu      sync.Mutex
	vectors map[int64][]float32
	updates map[int64]int
	err     error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{vectors: map[int64][]float32{}, updates: map[int64]int{}}
}

func (r *fakeRepo) Upsert(ctx context.Context, listingID int64, modelName string, vector []float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.vectors[listingID] = slices.Clone(vector)
	r.updates[listingID]++
	return nil
}

func (r *fakeRepo) Get(ctx context.Context, listingID int64, modelName string) (domain.EmbeddingRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	vec, ok := r.vectors[listingID]
	if !ok {
		return domain.EmbeddingRecord{}, fmt.Errorf("fakeRepo.Get: %w", repository.ErrEmbeddingNotFound)
	}
	return domain.EmbeddingRecord{ListingID: listingID, ModelName: modelName, Vector: slices.Clone(vec)}, nil
}

func (r *fakeRepo) GetMany(ctx context.Context, modelName string, ids []int64) (map[int64][]float32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	out := map[int64][]float32{}
	if ids == nil {
		for id, v := range r.vectors {
			out[id] = slices.Clone(v)
		}
		return out, nil
	}
	for _, id := range ids {
		if v, ok := r.vectors[id]; ok {
			out[id] = slices.Clone(v)
		}
	}
	return out, nil
}

func (r *fakeRepo) Count(ctx context.Context, modelName string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.vectors)), nil
}

var errBoom = errors.New("boom")
