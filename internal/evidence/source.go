// Package evidence gathers literature references for patient education drafts.
// References only ever come from a live source or the cache; a source that
// fails contributes nothing.
package evidence

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/drfirst/go-draftguard/internal/content"
)

// DefaultTimeout bounds a single source request
const DefaultTimeout = 30 * time.Second

// maxBody caps how much of a source response is read
const maxBody = 4 << 20

// Source searches one literature database
type Source interface {
	Name() string
	Search(ctx context.Context, query string, limit int) ([]content.SourceReference, error)
}

// StatusError is returned when a source answers with a non-2xx status
type StatusError struct {
	Source string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.Source, e.Code)
}

func newHTTPClient(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return &http.Client{Timeout: DefaultTimeout}
}

// get issues a GET with trace headers and returns the body
func get(ctx context.Context, client *http.Client, source, endpoint string, params url.Values) ([]byte, error) {
	u := endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", source, err)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{Source: source, Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", source, err)
	}
	return body, nil
}
