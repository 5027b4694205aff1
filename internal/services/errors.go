package services

import "errors"

// Sentinel errors mapped to client-facing statuses by the HTTP layer.
// Anything else coming out of a service is a store or internal failure and
// surfaces as a generic server error.
var (
	// ErrNoData signals an aggregation that produced zero rows where the
	// caller semantically expects at least one (404-equivalent).
	ErrNoData = errors.New("no data found")

	// ErrNotNumberField signals sum/avg requested on a metadata field that
	// is not classified as numeric (400-equivalent). Raised before any
	// store call happens.
	ErrNotNumberField = errors.New("metric is only supported for number metadata fields")
)
