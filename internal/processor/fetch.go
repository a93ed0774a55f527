package processor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
)

// IsRemote reports whether source is an http(s) URL rather than a local path.
func IsRemote(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// Fetch downloads a remote file for import. The returned filename is the last
// URL path element, used for format detection and the suggested name.
func Fetch(ctx context.Context, client *http.Client, rawURL string, maxSize int64) (string, []byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if maxSize > 0 {
		body = io.LimitReader(resp.Body, maxSize+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", nil, err
	}
	if maxSize > 0 && int64(len(data)) > maxSize {
		return "", nil, fmt.Errorf("%s exceeds %d bytes", rawURL, maxSize)
	}

	return path.Base(u.Path), data, nil
}
