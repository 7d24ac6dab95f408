package spotprice

import "errors"

var (
	// ErrRequestFailed is returned when the feed request fails or
	// returns a non-200 status.
	ErrRequestFailed = errors.New("spotprice: request failed")

	// ErrNoMatchingPeriod is returned when no price period covers the
	// requested instant.
	ErrNoMatchingPeriod = errors.New("spotprice: no price period covers the given time")
)
