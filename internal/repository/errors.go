package repository

import "errors"

var (
	ErrListingNotFound   = errors.New("listing not found")
	ErrEmbeddingNotFound = errors.New("embedding not found")
	ErrInvalidVector     = errors.New("invalid vector literal")
)
