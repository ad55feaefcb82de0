// Package ollama implements chat and embedding backends for a local Ollama daemon.
package ollama

import (
	"context"
	"net/http"
)

type statusKey struct{}

// statusTransport records the HTTP status of the last response into the request
// context, so that errors from the client library can be classified by status.
type statusTransport struct {
	base http.RoundTripper
}

func (t statusTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err == nil {
		if dst, ok := req.Context().Value(statusKey{}).(*int); ok {
			*dst = resp.StatusCode
		}
	}
	return resp, err //nolint:wrapcheck // transparent transport
}

func withStatus(ctx context.Context) (context.Context, *int) {
	status := new(int)
	return context.WithValue(ctx, statusKey{}, status), status
}

func instrumentClient(c *http.Client) *http.Client {
	if c == nil {
		c = &http.Client{}
	}
	base := c.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	wrapped := *c
	wrapped.Transport = statusTransport{base: base}
	return &wrapped
}
