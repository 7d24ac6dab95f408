package solaredge

import "errors"

var (
	// ErrMissingAPIKey is returned when no API key is configured.
	ErrMissingAPIKey = errors.New("solaredge: api key is required")

	// ErrMissingSiteID is returned when no site ID is configured.
	ErrMissingSiteID = errors.New("solaredge: site id is required")

	// ErrRequestFailed is returned when the API request fails or
	// returns a non-200 status.
	ErrRequestFailed = errors.New("solaredge: request failed")
)
