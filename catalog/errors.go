package catalog

import "errors"

var (
	// ErrBaseURLRequired is returned when no server URI is given.
	ErrBaseURLRequired = errors.New("catalog base URL required")

	// ErrTokenStoreRequired is returned when no token store is given.
	ErrTokenStoreRequired = errors.New("token store required")

	// ErrCollectionRequired is returned when no collection is given.
	ErrCollectionRequired = errors.New("collection required")

	// ErrInvalidFilter is returned for an unknown blob filter name.
	ErrInvalidFilter = errors.New("invalid blob filter")
)
