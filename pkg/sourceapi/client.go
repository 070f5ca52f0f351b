// Package sourceapi is the shared HTTP transport used by the identity and
// repository resolvers to reach the external metadata API.
package sourceapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Timeout bounds every call made through a Client, per the resolver's 5s budget.
const Timeout = 5 * time.Second

// Client is a small bearer-token-authenticated HTTP client, optionally routed
// through a forward proxy to present a stable egress IP to the upstream
// metadata service.
type Client struct {
	baseURL    string
	bearer     string
	httpClient *http.Client
}

// New builds a Client. proxyURL may be empty, in which case requests go out
// directly.
func New(baseURL, bearer, proxyURL string) (*Client, error) {
	transport := &http.Transport{}
	if proxyURL != "" {
		parsed, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("parsing SOURCE_API_PROXY_URL: %w", err)
		}
		transport.Proxy = http.ProxyURL(parsed)
	}

	return &Client{
		baseURL: baseURL,
		bearer:  bearer,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   Timeout,
		},
	}, nil
}

// GetJSON performs a GET against baseURL+path and decodes a 200 response body
// as JSON into out. It returns (found, error): found is false on a 404,
// leaving out untouched; any other non-2xx status or transport error is
// returned as an error.
func (c *Client) GetJSON(ctx context.Context, path string, out interface{}) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bearer "+c.bearer)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return false, fmt.Errorf("decoding response from %s: %w", path, err)
		}
		return true, nil
	default:
		return false, fmt.Errorf("metadata API returned status %d for %s", resp.StatusCode, path)
	}
}
