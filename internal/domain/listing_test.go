package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestListing_HasValidCoordinates(t *testing.T) {
	tests := []struct {
		name     string
		lat, lon *float64
		want     bool
	}{
		{name: "valid", lat: ptr(40.44), lon: ptr(-79.95), want: true},
		{name: "missing latitude", lat: nil, lon: ptr(-79.95), want: false},
		{name: "missing longitude", lat: ptr(40.44), lon: nil, want: false},
		{name: "null island", lat: ptr(0.0), lon: ptr(0.0), want: false},
		{name: "equator is fine", lat: ptr(0.0), lon: ptr(30.0), want: true},
		{name: "latitude out of range", lat: ptr(91.0), lon: ptr(10.0), want: false},
		{name: "longitude out of range", lat: ptr(10.0), lon: ptr(-181.0), want: false},
		{name: "NaN", lat: ptr(math.NaN()), lon: ptr(10.0), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := Listing{Latitude: tt.lat, Longitude: tt.lon}
			assert.Equal(t, tt.want, l.HasValidCoordinates())
		})
	}
}

func TestListing_IsComplete(t *testing.T) {
	base := func() Listing {
		return Listing{
			ID:        1,
			Active:    true,
			Price:     ptr(1500.0),
			Latitude:  ptr(40.44),
			Longitude: ptr(-79.95),
		}
	}

	assert.True(t, base().IsComplete())

	inactive := base()
	inactive.Active = false
	assert.False(t, inactive.IsComplete())

	noPrice := base()
	noPrice.Price = nil
	assert.False(t, noPrice.IsComplete())

	zeroPrice := base()
	zeroPrice.Price = ptr(0.0)
	assert.False(t, zeroPrice.IsComplete())

	noCoords := base()
	noCoords.Latitude = nil
	assert.False(t, noCoords.IsComplete())
}

func TestListing_EmbeddingText(t *testing.T) {
	l := Listing{
		Title:       "Oakland loft",
		Description: "  exposed brick ",
		Address:     "",
		City:        "Pittsburgh",
	}
	assert.Equal(t, "Oakland loft. exposed brick. Pittsburgh", l.EmbeddingText())
	assert.Empty(t, Listing{}.EmbeddingText())
}

func TestSearchParams_Normalize(t *testing.T) {
	t.Run("zero values get defaults", func(t *testing.T) {
		p := SearchParams{Query: "loft"}.Normalize()
		assert.Equal(t, DefaultSearchLimit, p.Limit)
		assert.Equal(t, DefaultBM25PoolSize, p.BM25PoolSize)
		assert.Equal(t, DefaultVectorPoolSize, p.VectorPoolSize)
		assert.Equal(t, DefaultFusionK, p.FusionK)
		assert.Nil(t, p.PriceWeight)
	})

	t.Run("limit is capped", func(t *testing.T) {
		p := SearchParams{Limit: 10_000}.Normalize()
		assert.Equal(t, MaxSearchLimit, p.Limit)
	})

	t.Run("explicit values are kept", func(t *testing.T) {
		p := SearchParams{Limit: 5, BM25PoolSize: 20, VectorPoolSize: 7, FusionK: 10}.Normalize()
		assert.Equal(t, 5, p.Limit)
		assert.Equal(t, 20, p.BM25PoolSize)
		assert.Equal(t, 7, p.VectorPoolSize)
		assert.Equal(t, 10, p.FusionK)
	})

	t.Run("price weight is clamped", func(t *testing.T) {
		w := 1.7
		p := SearchParams{PriceWeight: &w}.Normalize()
		require.NotNil(t, p.PriceWeight)
		assert.Equal(t, 1.0, *p.PriceWeight)
		assert.Equal(t, 1.7, w, "caller's value must not be mutated")

		neg := -0.2
		p = SearchParams{PriceWeight: &neg}.Normalize()
		assert.Equal(t, 0.0, *p.PriceWeight)
	})
}

func TestPageCursor_RoundTrip(t *testing.T) {
	c := &PageCursor{LastID: 42, LastCreatedAt: time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)}

	decoded, err := DecodePageCursor(c.Encode())
	require.NoError(t, err)
	assert.Equal(t, c.LastID, decoded.LastID)
	assert.True(t, c.LastCreatedAt.Equal(decoded.LastCreatedAt))

	_, err = DecodePageCursor("not base64!")
	assert.Error(t, err)

	empty, err := DecodePageCursor("")
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestNormalizePageSize(t *testing.T) {
	assert.Equal(t, int32(DefaultPageSize), NormalizePageSize(0))
	assert.Equal(t, int32(MaxPageSize), NormalizePageSize(10_000))
	assert.Equal(t, int32(15), NormalizePageSize(15))
	assert.Equal(t, OrderAsc, NormalizeOrderDirection("ASC"))
	assert.Equal(t, OrderDesc, NormalizeOrderDirection("sideways"))
}
