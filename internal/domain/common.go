package domain

import (
	"encoding/base64"
	"encoding/json"
	"time"
)

const (
	// DefaultPageSize кол-во записей на странице по умолчанию
	DefaultPageSize = 20
	// MaxPageSize максимальное кол-во записей на странице
	MaxPageSize = 500
)

// OrderDirection направление сортировки
type OrderDirection string

const (
	OrderAsc  OrderDirection = "asc"
	OrderDesc OrderDirection = "desc"
)

// PaginationParams параметры пагинации для запроса
type PaginationParams struct {
	PageSize       int32
	PageToken      string // cursor для cursor-based пагинации
	OrderDirection OrderDirection
}

// PageCursor курсор для cursor-based пагинации
type PageCursor struct {
	LastID        int64     `json:"id"`
	LastCreatedAt time.Time `json:"ca"`
}

// Encode кодирует курсор в base64 строку
func (c *PageCursor) Encode() string {
	if c == nil {
		return ""
	}
	data, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return base64.URLEncoding.EncodeToString(data)
}

// DecodePageCursor декодирует курсор из base64 строки
func DecodePageCursor(token string) (*PageCursor, error) {
	if token == "" {
		return nil, nil
	}
	data, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return nil, err
	}
	var cursor PageCursor
	if err := json.Unmarshal(data, &cursor); err != nil {
		return nil, err
	}
	return &cursor, nil
}

// PaginatedResult результат пагинированного запроса
type PaginatedResult[T any] struct {
	Items         []T    `json:"items"`
	NextPageToken string `json:"next_page_token,omitempty"`
	TotalCount    int32  `json:"total_count"`
	HasMore       bool   `json:"has_more"`
}

// NormalizePageSize нормализует размер страницы
func NormalizePageSize(size int32) int32 {
	if size <= 0 {
		return DefaultPageSize
	}
	if size > MaxPageSize {
		return MaxPageSize
	}
	return size
}

// NormalizeOrderDirection нормализует направление сортировки
func NormalizeOrderDirection(dir string) OrderDirection {
	if dir == "asc" || dir == "ASC" {
		return OrderAsc
	}
	return OrderDesc
}
