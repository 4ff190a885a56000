// Package relay fetches image bytes from their origin so they can be proxied back to the client.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/vadimbarashkov/image-tracker/internal/models"
)

// ErrUpstreamFetchFailed is returned when the origin is unreachable or answers with a non-2xx status.
var ErrUpstreamFetchFailed = errors.New("upstream fetch failed")

// Relay performs outbound image fetches.
type Relay struct {
	client *http.Client
}

// New returns a Relay backed by client, or by http.DefaultClient when client is nil.
func New(client *http.Client) *Relay {
	if client == nil {
		client = http.DefaultClient
	}

	return &Relay{
		client: client,
	}
}

// Fetch retrieves url and returns its body together with the upstream content type.
// The content type defaults to image/jpeg when the origin does not send one.
func (r *Relay) Fetch(ctx context.Context, url string) (*models.ImageContent, error) {
	const op = "relay.Relay.Fetch"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to build request: %w", op, errors.Join(ErrUpstreamFetchFailed, err))
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, errors.Join(ErrUpstreamFetchFailed, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s: upstream responded %d: %w", op, resp.StatusCode, ErrUpstreamFetchFailed)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read body: %w", op, errors.Join(ErrUpstreamFetchFailed, err))
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = models.DefaultMIMEType
	}

	return &models.ImageContent{
		Data:        data,
		ContentType: contentType,
	}, nil
}
