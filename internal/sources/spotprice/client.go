package spotprice

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// defaultTimeout bounds a single price fetch.
const defaultTimeout = 10 * time.Second

// Entry is one price period from the day-ahead feed.
//
// The feed publishes one file per day and region, with one entry per
// settlement period. Timestamps carry their zone offset and parse as
// RFC 3339.
type Entry struct {
	SEKPerKWh float64   `json:"SEK_per_kWh"`
	EURPerKWh float64   `json:"EUR_per_kWh"`
	EXR       float64   `json:"EXR"`
	TimeStart time.Time `json:"time_start"`
	TimeEnd   time.Time `json:"time_end"`
}

// Client fetches electricity spot prices from the elprisetjustnu.se
// day-ahead feed.
//
// Thread Safety: Client is immutable after construction and safe for
// concurrent use.
type Client struct {
	baseURL    string
	region     string
	httpClient *http.Client
	now        func() time.Time
}

// New creates a spot price client.
//
// Parameters:
//   - baseURL: Feed base URL, without trailing slash
//   - region: Bidding zone code (e.g. "SE4")
//   - timeout: Per-request timeout (zero means the 10s default)
func New(baseURL, region string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    baseURL,
		region:     region,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

// FetchPrices retrieves today's full price table for the region.
//
// The feed path is {base}/{YYYY}/{MM-DD}_{REGION}.json, keyed on the
// current local date.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - []Entry: Price periods covering the day
//   - error: If the request or decoding fails
func (c *Client) FetchPrices(ctx context.Context) ([]Entry, error) {
	today := c.now()
	url := fmt.Sprintf("%s/%s/%s_%s.json",
		c.baseURL,
		today.Format("2006"),
		today.Format("01-02"),
		c.region,
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building price request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	defer resp.Body.Close() //nolint:errcheck // Best effort cleanup

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d from %s", ErrRequestFailed, resp.StatusCode, url)
	}

	var entries []Entry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decoding price response: %w", err)
	}

	return entries, nil
}

// CurrentPrice finds the price period covering the instant at.
//
// A period matches when time_start <= at < time_end.
//
// Returns:
//   - float64: Price in SEK/kWh
//   - error: ErrNoMatchingPeriod if no period covers at
func CurrentPrice(entries []Entry, at time.Time) (float64, error) {
	for _, e := range entries {
		if !at.Before(e.TimeStart) && at.Before(e.TimeEnd) {
			return e.SEKPerKWh, nil
		}
	}
	return 0, ErrNoMatchingPeriod
}

// Fetch retrieves today's table and returns the price for right now.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - float64: Current price in SEK/kWh
//   - error: If the fetch fails or no period covers the current time
func (c *Client) Fetch(ctx context.Context) (float64, error) {
	entries, err := c.FetchPrices(ctx)
	if err != nil {
		return 0, err
	}
	return CurrentPrice(entries, c.now())
}
