package search

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"

	"housing_search/internal/config"
	"housing_search/internal/domain"
	"housing_search/internal/lib/logger/handlers/slogdiscard"
	"housing_search/internal/lib/tokenize"
	"housing_search/internal/repository"
	"housing_search/internal/services/embedding"
	"housing_search/internal/services/lexical"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

// fakeIndex — упрощённый полнотекстовый индекс: primary требует все термы, fallback любой префикс.
type fakeIndex struct {
	listings []domain.Listing
}

func (f *fakeIndex) docTerms(l domain.Listing) []string {
	return tokenize.Terms(l.Title + " " + l.Description)
}

func (f *fakeIndex) LexicalPrimary(_ context.Context, query string, limit int, minScore float64) ([]domain.RankedItem, error) {
	terms := tokenize.UniqueTerms(query)
	if len(terms) == 0 {
		return nil, nil
	}
	var items []domain.RankedItem
	for _, l := range f.listings {
		doc := f.docTerms(l)
		if !lo.Every(doc, terms) {
			continue
		}
		score := float64(len(terms)) / float64(len(doc))
		if score >= minScore {
			items = append(items, domain.RankedItem{ID: l.ID, Score: score})
		}
	}
	embedding.SortRanked(items)
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (f *fakeIndex) LexicalFallback(_ context.Context, tsQuery string, limit int, minScore float64) ([]domain.RankedItem, error) {
	var prefixes []string
	for _, part := range strings.Split(tsQuery, " | ") {
		prefixes = append(prefixes, strings.TrimSuffix(part, ":*"))
	}
	var items []domain.RankedItem
	for _, l := range f.listings {
		matched := 0
		for _, term := range f.docTerms(l) {
			if lo.SomeBy(prefixes, func(p string) bool { return strings.HasPrefix(term, p) }) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		items = append(items, domain.RankedItem{ID: l.ID, Score: float64(matched) / 100})
	}
	embedding.SortRanked(items)
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

type fakeListings struct {
	mu       sync.Mutex
	listings map[int64]domain.Listing
	calls    int
}

func (f *fakeListings) GetMany(_ context.Context, ids []int64) (map[int64]domain.Listing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	out := make(map[int64]domain.Listing, len(ids))
	for _, id := range ids {
		if l, ok := f.listings[id]; ok {
			out[id] = l
		}
	}
	return out, nil
}

type fakeEmbeddingRepo struct {
	mu      sync.Mutex
	vectors map[int64][]float32
}

func (r *fakeEmbeddingRepo) Upsert(_ context.Context, listingID int64, _ string, vector []float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vectors[listingID] = slices.Clone(vector)
	return nil
}

func (r *fakeEmbeddingRepo) Get(_ context.Context, listingID int64, modelName string) (domain.EmbeddingRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.vectors[listingID]
	if !ok {
		return domain.EmbeddingRecord{}, fmt.Errorf("fake: %w", repository.ErrEmbeddingNotFound)
	}
	return domain.EmbeddingRecord{ListingID: listingID, ModelName: modelName, Vector: slices.Clone(v)}, nil
}

func (r *fakeEmbeddingRepo) GetMany(_ context.Context, _ string, ids []int64) (map[int64][]float32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[int64][]float32{}
	for id, v := range r.vectors {
		if ids == nil || slices.Contains(ids, id) {
			out[id] = slices.Clone(v)
		}
	}
	return out, nil
}

func (r *fakeEmbeddingRepo) Count(_ context.Context, _ string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.vectors)), nil
}

type failingEncoder struct{}

func (failingEncoder) Load(context.Context) (int, error) {
	return 0, errors.New("model weights not found")
}

func (failingEncoder) EncodeBatch(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("not loaded")
}

type fixture struct {
	svc       *Service
	retriever *Retriever
	listings  *fakeListings
	vectors   *fakeEmbeddingRepo
	store     *embedding.Store
}

type fixtureOptions struct {
	encoder embedding.Encoder
	// embed — id объявлений, для которых сохраняются эмбеддинги; nil — для всех
	embed []int64
}

func newFixture(t *testing.T, listings []domain.Listing, opts fixtureOptions) *fixture {
	t.Helper()
	log := slogdiscard.NewDiscardLogger()

	enc := opts.encoder
	if enc == nil {
		enc = embedding.NewHashEncoder(256)
	}

	listingRepo := &fakeListings{listings: lo.SliceToMap(listings, func(l domain.Listing) (int64, domain.Listing) {
		return l.ID, l
	})}
	vectorRepo := &fakeEmbeddingRepo{vectors: map[int64][]float32{}}
	store := embedding.NewStore(embedding.NewModel("test-model", enc, log), vectorRepo, 64, nil, log)

	if _, failing := enc.(failingEncoder); !failing {
		ctx := context.Background()
		for _, l := range listings {
			if opts.embed != nil && !slices.Contains(opts.embed, l.ID) {
				continue
			}
			vecs, err := store.EncodeDocuments(ctx, []string{l.EmbeddingText()})
			require.NoError(t, err)
			require.NoError(t, store.Save(ctx, l.ID, vecs[0]))
		}
	}

	ranker := lexical.NewRanker(&fakeIndex{listings: listings}, nil, log)
	retriever := NewRetriever(ranker, listingRepo, store, nil, log)
	svc := NewService(retriever, listingRepo, config.SearchConfig{PriceWeight: 0.3, RerankMultiplier: 3}, nil, log)

	return &fixture{svc: svc, retriever: retriever, listings: listingRepo, vectors: vectorRepo, store: store}
}

func listing(id int64, title string, price float64) domain.Listing {
	return domain.Listing{
		ID:           id,
		Title:        title,
		City:         "Pittsburgh",
		PropertyType: domain.PropertyTypeApartment,
		Price:        lo.ToPtr(price),
		Latitude:     lo.ToPtr(40.44),
		Longitude:    lo.ToPtr(-79.95),
		Active:       true,
	}
}

func resultIDs(resp *domain.SearchResponse) []int64 {
	return lo.Map(resp.Results, func(r domain.SearchResult, _ int) int64 { return r.ListingID })
}
