package httpapi

import (
	"fmt"
	"net/http"
	"strconv"

	"housing_search/internal/domain"

	"github.com/go-chi/chi/v5"
)

func listingIDParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid listing id %q", raw)
	}
	return id, nil
}

// getListing — GET /api/v1/listings/{id}.
func (h *handler) getListing(w http.ResponseWriter, r *http.Request) {
	id, err := listingIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	l, err := h.listings.GetListing(r.Context(), id)
	if err != nil {
		h.handleError(w, err, "failed to get listing")
		return
	}

	writeJSON(w, http.StatusOK, listingDomainToResponse(l))
}

// getListingJSONLD — GET /api/v1/listings/{id}/jsonld, разметка schema.org.
func (h *handler) getListingJSONLD(w http.ResponseWriter, r *http.Request) {
	id, err := listingIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	l, err := h.listings.GetListing(r.Context(), id)
	if err != nil {
		h.handleError(w, err, "failed to get listing")
		return
	}

	writeBody(w, http.StatusOK, "application/ld+json", h.jsonld.Listing(l))
}

// listListings — GET /api/v1/listings.
func (h *handler) listListings(w http.ResponseWriter, r *http.Request) {
	p := queryParser{values: r.URL.Query()}

	filter := domain.ListingFilter{
		City:        p.stringPtr("city"),
		MinPrice:    p.floatPtr("min_price"),
		MaxPrice:    p.floatPtr("max_price"),
		MinBedrooms: p.floatPtr("min_bedrooms"),
		Active:      p.boolPtr("active"),
	}

	var pageSize int
	p.intVar("page_size", &pageSize)

	if err := p.err(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	filter.Pagination = &domain.PaginationParams{
		PageSize:       int32(min(max(pageSize, 0), domain.MaxPageSize)),
		PageToken:      r.URL.Query().Get("page_token"),
		OrderDirection: domain.NormalizeOrderDirection(r.URL.Query().Get("order")),
	}

	page, err := h.listings.ListListings(r.Context(), filter)
	if err != nil {
		h.handleError(w, err, "failed to list listings")
		return
	}

	writeJSON(w, http.StatusOK, listingPageToResponse(page))
}

// reindexListing — POST /api/v1/listings/{id}/reindex.
func (h *handler) reindexListing(w http.ResponseWriter, r *http.Request) {
	id, err := listingIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.listings.ReindexListing(r.Context(), id); err != nil {
		h.handleError(w, err, "failed to reindex listing")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("Listing %d reindexed successfully", id),
	})
}
