package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const maxDownloadBytes = 32 << 20

// Download is a fetched official artifact.
type Download struct {
	Content     []byte
	ContentType string
}

// Downloader fetches official artifacts from provider links.
type Downloader interface {
	Download(ctx context.Context, url string) (*Download, error)
}

// HTTPDownloader bounds every download with its own timeout.
type HTTPDownloader struct {
	client  *http.Client
	timeout time.Duration
}

func NewHTTPDownloader(timeout time.Duration) *HTTPDownloader {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPDownloader{
		client:  &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		timeout: timeout,
	}
}

func (d *HTTPDownloader) Download(ctx context.Context, url string) (*Download, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("download %s: unexpected status %d", url, resp.StatusCode)
	}
	content, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
	if err != nil {
		return nil, fmt.Errorf("read download %s: %w", url, err)
	}
	if len(content) == 0 {
		return nil, fmt.Errorf("download %s: empty body", url)
	}
	return &Download{Content: content, ContentType: resp.Header.Get("Content-Type")}, nil
}
