package fetch

import (
	"context"
	"io"
	"net/http"

	ferrors "github.com/sambeau/flume/pkg/flume/errors"
)

type httpFetcher struct {
	client    *http.Client
	userAgent string
}

func newHTTPFetcher(opts Options) *httpFetcher {
	return &httpFetcher{
		client:    &http.Client{Timeout: opts.HTTPTimeout},
		userAgent: opts.UserAgent,
	}
}

// get issues a GET request. Any status outside 2xx is an error.
func (h *httpFetcher) get(ctx context.Context, location string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", h.userAgent)
	req.Header.Set("Accept", "text/csv, application/json, application/x-ndjson, application/yaml, text/plain;q=0.9, */*;q=0.8")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, ferrors.New("IO-0005", map[string]any{"Status": resp.Status, "Location": redact(location)})
	}
	return resp.Body, nil
}
