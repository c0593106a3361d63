package listing_repository

import (
	"context"
	"errors"
	"fmt"
	"housing_search/internal/domain"
	"housing_search/internal/repository"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TextSearchConfig — конфигурация Postgres FTS. Запрос и генерируемая колонка
// search_vector обязаны использовать одну и ту же, иначе расходится стемминг.
const TextSearchConfig = "english"

type ListingRepository struct {
	db  *pgxpool.Pool
	log *slog.Logger
}

func NewListingRepository(db *pgxpool.Pool, log *slog.Logger) *ListingRepository {
	return &ListingRepository{db: db, log: log}
}

const listingColumns = `
	l.listing_id, l.title, COALESCE(l.description, ''), COALESCE(l.extended_description, ''),
	COALESCE(l.address, ''), COALESCE(l.city, ''), COALESCE(l.property_type, ''),
	l.price, l.bedrooms, l.bathrooms, l.area, l.latitude, l.longitude,
	l.active, l.created_at, l.updated_at`

func scanListing(row pgx.Row) (domain.Listing, error) {
	var l domain.Listing
	var propertyTypeStr string
	err := row.Scan(
		&l.ID,
		&l.Title,
		&l.Description,
		&l.ExtendedDescription,
		&l.Address,
		&l.City,
		&propertyTypeStr,
		&l.Price,
		&l.Bedrooms,
		&l.Bathrooms,
		&l.Area,
		&l.Latitude,
		&l.Longitude,
		&l.Active,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	if err != nil {
		return domain.Listing{}, err
	}
	l.PropertyType = domain.PropertyType(propertyTypeStr)
	return l, nil
}

// GetByID — получает объявление по ID.
func (r *ListingRepository) GetByID(ctx context.Context, id int64) (domain.Listing, error) {
	const op = "ListingRepository.GetByID"

	query := `SELECT ` + listingColumns + ` FROM listings l WHERE l.listing_id = $1`

	l, err := scanListing(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Listing{}, fmt.Errorf("%s: %w", op, repository.ErrListingNotFound)
		}
		return domain.Listing{}, fmt.Errorf("%s: %w", op, err)
	}

	return l, nil
}

// GetMany — получает объявления по списку ID. Отсутствующие ID просто не попадают в map.
func (r *ListingRepository) GetMany(ctx context.Context, ids []int64) (map[int64]domain.Listing, error) {
	const op = "ListingRepository.GetMany"

	result := make(map[int64]domain.Listing, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query := `SELECT ` + listingColumns + ` FROM listings l WHERE l.listing_id = ANY($1)`

	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan failed: %w", op, err)
		}
		result[l.ID] = l
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows error: %w", op, err)
	}

	return result, nil
}

// ListListings — возвращает объявления по фильтру с cursor-пагинацией (created_at, listing_id).
func (r *ListingRepository) ListListings(ctx context.Context, filter domain.ListingFilter) (*domain.PaginatedResult[domain.Listing], error) {
	const op = "ListingRepository.ListListings"

	pageSize := int(domain.DefaultPageSize)
	var cursor *domain.PageCursor
	orderDir := domain.OrderDesc

	if filter.Pagination != nil {
		pageSize = int(domain.NormalizePageSize(filter.Pagination.PageSize))
		orderDir = domain.NormalizeOrderDirection(string(filter.Pagination.OrderDirection))

		if filter.Pagination.PageToken != "" {
			var err error
			cursor, err = domain.DecodePageCursor(filter.Pagination.PageToken)
			if err != nil {
				r.log.Warn("failed to decode page cursor, starting from beginning", "error", err)
				cursor = nil
			}
		}
	}

	// Базовые WHERE условия (без cursor)
	baseWhereClauses := []string{}
	baseParams := []interface{}{}
	paramCount := 1

	if filter.Active != nil {
		baseWhereClauses = append(baseWhereClauses, fmt.Sprintf("l.active = $%d", paramCount))
		baseParams = append(baseParams, *filter.Active)
		paramCount++
	}
	if filter.City != nil {
		baseWhereClauses = append(baseWhereClauses, fmt.Sprintf("LOWER(l.city) = LOWER($%d)", paramCount))
		baseParams = append(baseParams, *filter.City)
		paramCount++
	}
	if filter.MinPrice != nil {
		baseWhereClauses = append(baseWhereClauses, fmt.Sprintf("l.price >= $%d", paramCount))
		baseParams = append(baseParams, *filter.MinPrice)
		paramCount++
	}
	if filter.MaxPrice != nil {
		baseWhereClauses = append(baseWhereClauses, fmt.Sprintf("l.price <= $%d", paramCount))
		baseParams = append(baseParams, *filter.MaxPrice)
		paramCount++
	}
	if filter.MinBedrooms != nil {
		baseWhereClauses = append(baseWhereClauses, fmt.Sprintf("l.bedrooms >= $%d", paramCount))
		baseParams = append(baseParams, *filter.MinBedrooms)
		paramCount++
	}

	// Получаем total count
	countQuery := "SELECT COUNT(*) FROM listings l"
	if len(baseWhereClauses) > 0 {
		countQuery += " WHERE " + strings.Join(baseWhereClauses, " AND ")
	}

	var totalCount int32
	if err := r.db.QueryRow(ctx, countQuery, baseParams...).Scan(&totalCount); err != nil {
		return nil, fmt.Errorf("%s: count failed: %w", op, err)
	}

	whereClauses := append([]string{}, baseWhereClauses...)
	params := append([]interface{}{}, baseParams...)

	if cursor != nil {
		cmp := "<"
		if orderDir == domain.OrderAsc {
			cmp = ">"
		}
		whereClauses = append(whereClauses,
			fmt.Sprintf("(l.created_at, l.listing_id) %s ($%d, $%d)", cmp, paramCount, paramCount+1))
		params = append(params, cursor.LastCreatedAt, cursor.LastID)
		paramCount += 2
	}

	query := `SELECT ` + listingColumns + ` FROM listings l`
	if len(whereClauses) > 0 {
		query += " WHERE " + strings.Join(whereClauses, " AND ")
	}

	dirStr := "DESC"
	if orderDir == domain.OrderAsc {
		dirStr = "ASC"
	}
	query += fmt.Sprintf(" ORDER BY l.created_at %s, l.listing_id %s", dirStr, dirStr)

	// LIMIT +1 для определения has_more
	query += fmt.Sprintf(" LIMIT $%d", paramCount)
	params = append(params, pageSize+1)

	rows, err := r.db.Query(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var listings []domain.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan failed: %w", op, err)
		}
		listings = append(listings, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows error: %w", op, err)
	}

	hasMore := len(listings) > pageSize
	if hasMore {
		listings = listings[:pageSize]
	}

	var nextPageToken string
	if hasMore && len(listings) > 0 {
		last := listings[len(listings)-1]
		nextCursor := &domain.PageCursor{
			LastID:        last.ID,
			LastCreatedAt: last.CreatedAt,
		}
		nextPageToken = nextCursor.Encode()
	}

	return &domain.PaginatedResult[domain.Listing]{
		Items:         listings,
		NextPageToken: nextPageToken,
		TotalCount:    totalCount,
		HasMore:       hasMore,
	}, nil
}

// ListMissingEmbeddings возвращает объявления без эмбеддинга для модели, по возрастанию ID после afterID.
func (r *ListingRepository) ListMissingEmbeddings(ctx context.Context, modelName string, afterID int64, limit int) ([]domain.Listing, error) {
	const op = "ListingRepository.ListMissingEmbeddings"

	query := `
		SELECT ` + listingColumns + `
		FROM listings l
		LEFT JOIN listing_embeddings e
			ON e.listing_id = l.listing_id AND e.model_name = $1
		WHERE e.listing_id IS NULL AND l.listing_id > $2
		ORDER BY l.listing_id ASC
		LIMIT $3
	`

	rows, err := r.db.Query(ctx, query, modelName, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var listings []domain.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan failed: %w", op, err)
		}
		listings = append(listings, l)
	}

	return listings, rows.Err()
}

// LexicalPrimary — полнотекстовый поиск с разбором запроса в стиле веб-поиска
// (фразы в кавычках, or, исключение через минус).
func (r *ListingRepository) LexicalPrimary(ctx context.Context, query string, limit int, minScore float64) ([]domain.RankedItem, error) {
	const op = "ListingRepository.LexicalPrimary"

	items, err := r.lexicalSearch(ctx, "websearch_to_tsquery", query, limit, minScore)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return items, nil
}

// LexicalFallback — широкий поиск по готовому выражению tsquery (префиксы, объединённые через OR).
func (r *ListingRepository) LexicalFallback(ctx context.Context, tsQuery string, limit int, minScore float64) ([]domain.RankedItem, error) {
	const op = "ListingRepository.LexicalFallback"

	items, err := r.lexicalSearch(ctx, "to_tsquery", tsQuery, limit, minScore)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return items, nil
}

// lexicalSearch ранжирует по ts_rank; веса полей (A/B/C) заложены в search_vector.
func (r *ListingRepository) lexicalSearch(ctx context.Context, parser string, query string, limit int, minScore float64) ([]domain.RankedItem, error) {
	sqlQuery := fmt.Sprintf(`
		SELECT listing_id, score
		FROM (
			SELECT l.listing_id, ts_rank(l.search_vector, q) AS score
			FROM listings l, %s($1::regconfig, $2) AS q
			WHERE l.search_vector @@ q
		) ranked
		WHERE score >= $3
		ORDER BY score DESC, listing_id ASC
		LIMIT $4
	`, parser)

	rows, err := r.db.Query(ctx, sqlQuery, TextSearchConfig, query, minScore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.RankedItem
	for rows.Next() {
		var item domain.RankedItem
		var score float32
		if err := rows.Scan(&item.ID, &score); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		item.Score = float64(score)
		items = append(items, item)
	}

	return items, rows.Err()
}
