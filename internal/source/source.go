// Package source reads API documents from local files or http(s) URLs.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// MaxSize bounds the size of a document.
const MaxSize = 32 << 20

// ErrTooLarge is returned for documents larger than MaxSize.
var ErrTooLarge = errors.New("source: document too large")

// Reader fetches documents. The zero value uses http.DefaultClient.
type Reader struct {
	Client *http.Client
}

// Read returns the document at location, which is an http(s) URL or a
// file path.
func (r Reader) Read(ctx context.Context, location string) ([]byte, error) {
	if IsURL(location) {
		return r.fetch(ctx, location)
	}

	f, err := os.Open(location)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	defer f.Close()

	return readAll(f, location)
}

// IsURL reports whether location is an http(s) URL.
func IsURL(location string) bool {
	lower := strings.ToLower(location)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func (r Reader) fetch(ctx context.Context, location string) ([]byte, error) {
	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	req.Header.Set("Accept", "application/json, application/yaml, application/x-yaml, text/yaml, */*")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("source: fetch %s: unexpected status %s", location, resp.Status)
	}

	return readAll(resp.Body, location)
}

func readAll(r io.Reader, location string) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxSize+1))
	if err != nil {
		return nil, fmt.Errorf("source: read %s: %w", location, err)
	}
	if len(data) > MaxSize {
		return nil, fmt.Errorf("%w: %s", ErrTooLarge, location)
	}
	return data, nil
}
