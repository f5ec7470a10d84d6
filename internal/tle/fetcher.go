package tle

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	defaultSourceURL = "https://celestrak.org/NORAD/elements/gp.php?GROUP=stations&FORMAT=tle"

	// maxBodyBytes bounds a single response so a misbehaving source cannot
	// exhaust memory.
	maxBodyBytes = 50 << 20
)

// Fetcher retrieves raw TLE text from a primary source and optional extra
// sources. Extra sources are best effort.
type Fetcher struct {
	sourceURL  string
	extraURLs  []string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewFetcher creates a Fetcher for the given source URL plus any extra URLs
// whose catalogues are appended to the primary one.
func NewFetcher(sourceURL string, logger *slog.Logger, extraURLs ...string) *Fetcher {
	if sourceURL == "" {
		sourceURL = defaultSourceURL
	}
	return &Fetcher{
		sourceURL: sourceURL,
		extraURLs: extraURLs,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// SourceURL returns the configured source URL.
func (f *Fetcher) SourceURL() string {
	return f.sourceURL
}

// Fetch retrieves the primary catalogue and appends every extra catalogue
// that could be fetched. Only a primary failure is an error.
func (f *Fetcher) Fetch(ctx context.Context) ([]byte, error) {
	body, err := f.get(ctx, f.sourceURL)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Write(body)
	for _, u := range f.extraURLs {
		extra, err := f.get(ctx, u)
		if err != nil {
			f.logger.Warn("extra TLE source failed", "url", u, "error", err)
			continue
		}
		if buf.Len() > 0 && buf.Bytes()[buf.Len()-1] != '\n' {
			buf.WriteByte('\n')
		}
		buf.Write(extra)
	}
	return buf.Bytes(), nil
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching TLE data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("response from %s exceeds %d byte limit", url, maxBodyBytes)
	}

	return body, nil
}
