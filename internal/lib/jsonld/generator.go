package jsonld

import (
	"fmt"
	"strings"
	"time"

	"housing_search/internal/domain"
)

// DefaultCurrency — валюта цен объявлений.
const DefaultCurrency = "USD"

// Generator — генератор JSON-LD разметки (schema.org) для объявлений.
type Generator struct {
	baseURL  string
	currency string
}

// NewGenerator создаёт генератор; baseURL — публичный адрес API без завершающего слэша.
func NewGenerator(baseURL string) *Generator {
	return &Generator{
		baseURL:  strings.TrimRight(baseURL, "/"),
		currency: DefaultCurrency,
	}
}

// RealEstateListing — JSON-LD структура объявления.
type RealEstateListing struct {
	Context      string `json:"@context"`
	Type         string `json:"@type"`
	ID           string `json:"@id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	URL          string `json:"url"`
	DatePosted   string `json:"datePosted,omitempty"`
	DateModified string `json:"dateModified,omitempty"`

	Offers *Offer `json:"offers,omitempty"`

	Address *PostalAddress  `json:"address,omitempty"`
	Geo     *GeoCoordinates `json:"geo,omitempty"`

	FloorSize         *QuantitativeValue `json:"floorSize,omitempty"`
	NumberOfBedrooms  *float64           `json:"numberOfBedrooms,omitempty"`
	NumberOfBathrooms *float64           `json:"numberOfBathroomsTotal,omitempty"`
	PropertyType      string             `json:"propertyType,omitempty"`
}

// Offer — цена по schema.org.
type Offer struct {
	Type          string  `json:"@type"`
	Price         float64 `json:"price"`
	PriceCurrency string  `json:"priceCurrency"`
	Availability  string  `json:"availability"`
}

type PostalAddress struct {
	Type            string `json:"@type"`
	StreetAddress   string `json:"streetAddress,omitempty"`
	AddressLocality string `json:"addressLocality,omitempty"`
}

type GeoCoordinates struct {
	Type      string  `json:"@type"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type QuantitativeValue struct {
	Type     string  `json:"@type"`
	Value    float64 `json:"value"`
	UnitCode string  `json:"unitCode"`
}

// Listing генерирует разметку для объявления.
// Цена без значения и координаты вне допустимых границ в разметку не попадают.
func (g *Generator) Listing(l domain.Listing) *RealEstateListing {
	url := fmt.Sprintf("%s/api/v1/listings/%d", g.baseURL, l.ID)

	out := &RealEstateListing{
		Context:      "https://schema.org",
		Type:         schemaType(l.PropertyType),
		ID:           url,
		Name:         l.Title,
		Description:  strings.TrimSpace(l.Description),
		URL:          url,
		PropertyType: propertyTypeText(l.PropertyType),

		NumberOfBedrooms:  l.Bedrooms,
		NumberOfBathrooms: l.Bathrooms,
	}
	if !l.CreatedAt.IsZero() {
		out.DatePosted = l.CreatedAt.Format(time.RFC3339)
	}
	if !l.UpdatedAt.IsZero() {
		out.DateModified = l.UpdatedAt.Format(time.RFC3339)
	}

	if l.Price != nil && *l.Price > 0 {
		out.Offers = &Offer{
			Type:          "Offer",
			Price:         *l.Price,
			PriceCurrency: g.currency,
			Availability:  availability(l.Active),
		}
	}

	if l.Address != "" || l.City != "" {
		out.Address = &PostalAddress{
			Type:            "PostalAddress",
			StreetAddress:   l.Address,
			AddressLocality: l.City,
		}
	}

	if l.HasValidCoordinates() {
		out.Geo = &GeoCoordinates{
			Type:      "GeoCoordinates",
			Latitude:  *l.Latitude,
			Longitude: *l.Longitude,
		}
	}

	if l.Area != nil && *l.Area > 0 {
		out.FloorSize = &QuantitativeValue{
			Type:     "QuantitativeValue",
			Value:    *l.Area,
			UnitCode: "FTK", // квадратные футы
		}
	}

	return out
}

func schemaType(pt domain.PropertyType) string {
	switch pt {
	case domain.PropertyTypeApartment, domain.PropertyTypeCondo, domain.PropertyTypeStudio:
		return "Apartment"
	case domain.PropertyTypeHouse, domain.PropertyTypeTownhouse:
		return "House"
	case domain.PropertyTypeRoom:
		return "Room"
	default:
		return "Accommodation"
	}
}

func propertyTypeText(pt domain.PropertyType) string {
	if pt == domain.PropertyTypeUnspecified {
		return ""
	}
	s := strings.ToLower(pt.String())
	return strings.ToUpper(s[:1]) + s[1:]
}

func availability(active bool) string {
	if active {
		return "https://schema.org/InStock"
	}
	return "https://schema.org/SoldOut"
}
