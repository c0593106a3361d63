package listing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"housing_search/internal/domain"
	"housing_search/internal/lib/logger/sl"
	"housing_search/internal/repository"
)

type ListingRepository interface {
	GetByID(ctx context.Context, id int64) (domain.Listing, error)
	ListListings(ctx context.Context, filter domain.ListingFilter) (*domain.PaginatedResult[domain.Listing], error)
}

// Indexer пересчитывает эмбеддинг объявления.
type Indexer interface {
	ReindexListing(ctx context.Context, id int64) error
}

type Service struct {
	log     *slog.Logger
	repo    ListingRepository
	indexer Indexer
}

var (
	ErrListingNotFound = errors.New("listing not found")
)

func New(log *slog.Logger, repo ListingRepository, indexer Indexer) *Service {
	return &Service{
		log:     log,
		repo:    repo,
		indexer: indexer,
	}
}

// GetListing — получает объявление по ID.
func (s *Service) GetListing(ctx context.Context, id int64) (domain.Listing, error) {
	const op = "listing.Service.GetListing"

	listing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrListingNotFound) {
			s.log.Warn("listing not found", slog.Int64("listing_id", id))
			return domain.Listing{}, fmt.Errorf("%s: %w", op, ErrListingNotFound)
		}
		s.log.Error("failed to get listing", sl.Err(err))
		return domain.Listing{}, fmt.Errorf("%s: %w", op, err)
	}

	return listing, nil
}

// ListListings — возвращает объявления по фильтру.
func (s *Service) ListListings(ctx context.Context, filter domain.ListingFilter) (*domain.PaginatedResult[domain.Listing], error) {
	const op = "listing.Service.ListListings"

	result, err := s.repo.ListListings(ctx, filter)
	if err != nil {
		s.log.Error("failed to list listings", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return result, nil
}

// ReindexListing — ручной пересчёт эмбеддинга объявления.
func (s *Service) ReindexListing(ctx context.Context, id int64) error {
	const op = "listing.Service.ReindexListing"
	log := s.log.With(slog.String("op", op), slog.Int64("listing_id", id))

	if err := s.indexer.ReindexListing(ctx, id); err != nil {
		if errors.Is(err, repository.ErrListingNotFound) {
			return fmt.Errorf("%s: %w", op, ErrListingNotFound)
		}
		log.Error("failed to reindex listing", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
