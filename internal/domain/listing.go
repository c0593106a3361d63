package domain

import (
	"math"
	"strings"
	"time"
)

// Listing — объявление о сдаче/продаже жилья. Для поискового движка только на чтение.
type Listing struct {
	ID                  int64
	Title               string
	Description         string
	ExtendedDescription string
	Address             string
	City                string
	PropertyType        PropertyType
	Price               *float64
	Bedrooms            *float64
	Bathrooms           *float64
	Area                *float64
	Latitude            *float64
	Longitude           *float64
	Active              bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// PropertyType — тип недвижимости.
type PropertyType string

const (
	PropertyTypeUnspecified PropertyType = ""
	PropertyTypeApartment   PropertyType = "APARTMENT"
	PropertyTypeHouse       PropertyType = "HOUSE"
	PropertyTypeCondo       PropertyType = "CONDO"
	PropertyTypeTownhouse   PropertyType = "TOWNHOUSE"
	PropertyTypeStudio      PropertyType = "STUDIO"
	PropertyTypeRoom        PropertyType = "ROOM"
)

func (t PropertyType) String() string {
	return string(t)
}

// HasValidCoordinates проверяет, что координаты заданы и лежат в допустимых границах.
// Точка (0, 0) считается незаполненной.
func (l Listing) HasValidCoordinates() bool {
	if l.Latitude == nil || l.Longitude == nil {
		return false
	}
	lat, lon := *l.Latitude, *l.Longitude
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return false
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return false
	}
	return lat != 0 || lon != 0
}

// IsComplete — объявление пригодно для ранжирования: активно, с координатами и ценой.
func (l Listing) IsComplete() bool {
	return l.Active && l.HasValidCoordinates() && l.Price != nil && *l.Price > 0
}

// EmbeddingText собирает текст документа для модели эмбеддингов.
func (l Listing) EmbeddingText() string {
	parts := make([]string, 0, 5)
	for _, s := range []string{l.Title, l.Description, l.ExtendedDescription, l.Address, l.City} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ". ")
}

// ListingFilter — фильтр для выборок объявлений.
type ListingFilter struct {
	City        *string
	MinPrice    *float64
	MaxPrice    *float64
	MinBedrooms *float64
	Active      *bool

	// Пагинация
	Pagination *PaginationParams
}
