package httpapi

import (
	"time"

	"housing_search/internal/domain"

	"github.com/samber/lo"
)

type listingResponse struct {
	ListingID           int64               `json:"listing_id"`
	Title               string              `json:"title"`
	Description         string              `json:"description,omitempty"`
	ExtendedDescription string              `json:"extended_description,omitempty"`
	Address             string              `json:"address,omitempty"`
	City                string              `json:"city,omitempty"`
	PropertyType        domain.PropertyType `json:"property_type,omitempty"`
	Price               *float64            `json:"price"`
	Bedrooms            *float64            `json:"bedrooms"`
	Bathrooms           *float64            `json:"bathrooms"`
	Area                *float64            `json:"area"`
	Latitude            *float64            `json:"latitude"`
	Longitude           *float64            `json:"longitude"`
	Active              bool                `json:"active"`
	CreatedAt           string              `json:"created_at"`
	UpdatedAt           string              `json:"updated_at"`
}

type listListingsResponse struct {
	Listings      []listingResponse `json:"listings"`
	NextPageToken string            `json:"next_page_token,omitempty"`
	TotalCount    int32             `json:"total_count"`
	HasMore       bool              `json:"has_more"`
}

func listingDomainToResponse(l domain.Listing) listingResponse {
	return listingResponse{
		ListingID:           l.ID,
		Title:               l.Title,
		Description:         l.Description,
		ExtendedDescription: l.ExtendedDescription,
		Address:             l.Address,
		City:                l.City,
		PropertyType:        l.PropertyType,
		Price:               l.Price,
		Bedrooms:            l.Bedrooms,
		Bathrooms:           l.Bathrooms,
		Area:                l.Area,
		Latitude:            l.Latitude,
		Longitude:           l.Longitude,
		Active:              l.Active,
		CreatedAt:           l.CreatedAt.Format(time.RFC3339),
		UpdatedAt:           l.UpdatedAt.Format(time.RFC3339),
	}
}

func listingPageToResponse(page *domain.PaginatedResult[domain.Listing]) listListingsResponse {
	return listListingsResponse{
		Listings:      lo.Map(page.Items, func(l domain.Listing, _ int) listingResponse { return listingDomainToResponse(l) }),
		NextPageToken: page.NextPageToken,
		TotalCount:    page.TotalCount,
		HasMore:       page.HasMore,
	}
}
