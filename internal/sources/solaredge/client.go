package solaredge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Conversion and timeout constants.
const (
	// wattsPerKilowatt converts the API's kW readings to watts.
	wattsPerKilowatt = 1000

	// defaultTimeout bounds a single API request.
	defaultTimeout = 10 * time.Second
)

// PowerFlow is the currentPowerFlow response envelope.
type PowerFlow struct {
	SiteCurrentPowerFlow struct {
		Unit string `json:"unit"`
		PV   struct {
			Status       string  `json:"status"`
			CurrentPower float64 `json:"currentPower"`
		} `json:"PV"`
		Load struct {
			Status       string  `json:"status"`
			CurrentPower float64 `json:"currentPower"`
		} `json:"LOAD"`
		Grid struct {
			Status       string  `json:"status"`
			CurrentPower float64 `json:"currentPower"`
		} `json:"GRID"`
	} `json:"siteCurrentPowerFlow"`
}

// Client fetches solar production from the SolarEdge monitoring API.
//
// The API enforces a daily request quota per site, which is why the
// scheduler spreads calls across the daylight window (see the daylight
// package) instead of polling on a fixed timer.
//
// Thread Safety: Client is immutable after construction and safe for
// concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	siteID     string
	httpClient *http.Client
}

// New creates a SolarEdge client.
//
// Both the API key and the site ID are mandatory; construction fails
// without them rather than failing on every poll.
//
// Parameters:
//   - baseURL: API base URL, without trailing slash
//   - apiKey: Account API key
//   - siteID: Numeric site identifier
//   - timeout: Per-request timeout (zero means the 10s default)
//
// Returns:
//   - *Client: Ready client
//   - error: ErrMissingAPIKey or ErrMissingSiteID
func New(baseURL, apiKey, siteID string, timeout time.Duration) (*Client, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if siteID == "" {
		return nil, ErrMissingSiteID
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		siteID:     siteID,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// CurrentPowerFlow fetches the site's live power flow.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - *PowerFlow: Decoded response
//   - error: If the request or decoding fails
func (c *Client) CurrentPowerFlow(ctx context.Context) (*PowerFlow, error) {
	endpoint := fmt.Sprintf("%s/site/%s/currentPowerFlow", c.baseURL, c.siteID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building power flow request: %w", err)
	}

	q := url.Values{}
	q.Set("api_key", c.apiKey)
	req.URL.RawQuery = q.Encode()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	defer resp.Body.Close() //nolint:errcheck // Best effort cleanup

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrRequestFailed, resp.StatusCode)
	}

	var flow PowerFlow
	if err := json.NewDecoder(resp.Body).Decode(&flow); err != nil {
		return nil, fmt.Errorf("decoding power flow response: %w", err)
	}

	return &flow, nil
}

// CurrentProduction returns the PV array's current output in watts.
//
// The API reports kilowatts; the value is converted before return.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - float64: Current production in watts (zero when idle)
//   - error: If the fetch fails
func (c *Client) CurrentProduction(ctx context.Context) (float64, error) {
	flow, err := c.CurrentPowerFlow(ctx)
	if err != nil {
		return 0, err
	}
	return flow.SiteCurrentPowerFlow.PV.CurrentPower * wattsPerKilowatt, nil
}
