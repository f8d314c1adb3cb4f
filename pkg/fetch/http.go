package fetch

import (
	"context"
	"io"
	"net/http"
	"net/url"
)

// HTTPFetcher downloads over http and https.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher creates an HTTP fetcher. A nil client uses http.DefaultClient.
func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{client: client}
}

// Fetch issues a GET and returns the body. Any non-2xx status yields a *StatusError.
func (f *HTTPFetcher) Fetch(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &Error{Op: "request", URL: Redact(u), Err: err}
	}
	req.Header.Set("User-Agent", "fftwprov")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &Error{Op: "get", URL: Redact(u), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return nil, &StatusError{
			URL:        Redact(u),
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
		}
	}

	return resp.Body, nil
}
