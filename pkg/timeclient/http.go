package timeclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxBody caps how much of a response is read.
const maxBody = 64 << 10

// HTTPFetcher reads {"time": "<ISO-8601>"} from a clocksync HTTP endpoint.
type HTTPFetcher struct {
	URL    string
	Client *http.Client
}

// NewHTTPFetcher returns a fetcher for url. A nil client means
// http.DefaultClient; the Manager's timeout applies through the context.
func NewHTTPFetcher(url string, client *http.Client) *HTTPFetcher {
	if url == "" {
		url = DefaultEndpointURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{URL: url, Client: client}
}

// Fetch performs one GET.
func (f *HTTPFetcher) Fetch(ctx context.Context) (time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrClientFetchFailed, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.Client.Do(req)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrClientFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return time.Time{}, fmt.Errorf("%w: %s returned %s", ErrClientFetchFailed, f.URL, resp.Status)
	}

	var body struct {
		Time string `json:"time"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(&body); err != nil {
		return time.Time{}, fmt.Errorf("%w: decode body: %v", ErrClientFetchFailed, err)
	}
	if body.Time == "" {
		return time.Time{}, fmt.Errorf("%w: response has no time field", ErrClientFetchFailed)
	}
	t, err := time.Parse(time.RFC3339Nano, body.Time)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrClientFetchFailed, err)
	}
	return t, nil
}
