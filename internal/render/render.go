// Package render provides a client for an external graph rendering service.
//
// The zigbee2mqtt bridge answers a network map request with a graphviz text
// description of mesh connectivity. Turning that description into an image is
// delegated to an external service (any HTTP graphviz renderer works); this
// package holds the thin client. Rendering failures propagate to the caller
// unmodified — there is no fallback rendering path.
package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Sentinel errors for render operations.
var (
	// ErrUnavailable indicates no renderer service is configured.
	ErrUnavailable = errors.New("render: no renderer configured")

	// ErrRenderFailed indicates the rendering service rejected the graph
	// or the request failed.
	ErrRenderFailed = errors.New("render: rendering failed")
)

// Defaults applied when Options fields are empty, matching the layout the
// bridge's network maps are usually rendered with.
const (
	DefaultEngine = "circo"
	DefaultFormat = "svg"
)

// maxImageSize caps the accepted response body (8MB).
// A mesh map rendered to SVG is typically well under 1MB.
const maxImageSize = 8 << 20

// Options controls how a graph description is rendered.
type Options struct {
	// Format is the output image format (svg, png, ...). Default: svg.
	Format string

	// Engine is the graphviz layout engine (circo, dot, neato, ...).
	// Default: circo.
	Engine string
}

// Renderer turns a graphviz text description into image bytes.
type Renderer interface {
	Render(ctx context.Context, graph string, opts Options) ([]byte, error)
}

// HTTPRenderer renders graphs by POSTing the description to an HTTP
// rendering service.
//
// The graph text is sent as the request body; layout engine and output
// format are passed as query parameters. The response body is the rendered
// image.
//
// Thread Safety: safe for concurrent use.
type HTTPRenderer struct {
	baseURL string
	client  *http.Client
}

// NewHTTPRenderer creates a renderer client for the service at baseURL.
//
// Parameters:
//   - baseURL: root URL of the rendering service (empty disables rendering)
//   - timeout: per-request timeout
func NewHTTPRenderer(baseURL string, timeout time.Duration) *HTTPRenderer {
	return &HTTPRenderer{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Render sends the graph description to the rendering service and returns
// the image bytes.
//
// Returns:
//   - []byte: the rendered image
//   - error: ErrUnavailable if no service is configured, ErrRenderFailed
//     (wrapped with detail) if the request or the rendering itself fails
func (r *HTTPRenderer) Render(ctx context.Context, graph string, opts Options) ([]byte, error) {
	if r.baseURL == "" {
		return nil, ErrUnavailable
	}
	if strings.TrimSpace(graph) == "" {
		return nil, fmt.Errorf("%w: empty graph description", ErrRenderFailed)
	}

	engine := opts.Engine
	if engine == "" {
		engine = DefaultEngine
	}
	format := opts.Format
	if format == "" {
		format = DefaultFormat
	}

	query := url.Values{}
	query.Set("engine", engine)
	query.Set("format", format)
	endpoint := r.baseURL + "/render?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(graph))
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %w", ErrRenderFailed, err)
	}
	req.Header.Set("Content-Type", "text/vnd.graphviz")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRenderFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %w", ErrRenderFailed, err)
	}

	if resp.StatusCode != http.StatusOK {
		detail := strings.TrimSpace(string(body))
		if len(detail) > 200 {
			detail = detail[:200]
		}
		return nil, fmt.Errorf("%w: service returned %d: %s", ErrRenderFailed, resp.StatusCode, detail)
	}

	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty response body", ErrRenderFailed)
	}

	return body, nil
}
