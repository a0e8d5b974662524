package catalog

import "errors"

var (
	// ErrUpstreamUnavailable is returned when the catalog cannot be fetched
	// and no previously loaded snapshot can stand in for it.
	ErrUpstreamUnavailable = errors.New("assistant catalog unavailable")

	// ErrMalformedCatalog is returned when the upstream response cannot be
	// decoded into assistant records.
	ErrMalformedCatalog = errors.New("malformed assistant catalog")

	// ErrInvalidQuery is returned for blank recommendation descriptions and
	// filter specs whose fields cannot be evaluated.
	ErrInvalidQuery = errors.New("invalid query")
)
