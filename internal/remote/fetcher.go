// Package remote fetches URL-sourced assets with hard connect and total
// timeouts. A failed fetch is terminal; there are no retries.
package remote

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/mediakit-go/mediakit/pkg/config"
	"github.com/mediakit-go/mediakit/pkg/errors"
)

// Fetcher downloads remote originals. Redirects are followed; a 404 fails
// before any body transfer starts.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
	total    time.Duration
}

func NewFetcher(cfg config.RemoteConfig) *Fetcher {
	connect := cfg.ConnectTimeout
	if connect <= 0 {
		connect = 5 * time.Second
	}
	total := cfg.TotalTimeout
	if total <= 0 {
		total = 5 * time.Second
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: connect,
		}).DialContext,
		TLSHandshakeTimeout: connect,
	}

	return &Fetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   total,
		},
		maxBytes: cfg.MaxBytes,
		total:    total,
	}
}

// Fetch downloads rawURL and returns the body plus a filename candidate
// taken from the URL path.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, "", errors.New(errors.CodeValidation, fmt.Sprintf("invalid remote url %q", rawURL))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", errors.Wrap(errors.CodeValidation, err, "building remote request")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, "", errors.Wrap(errors.CodeRemoteTimeout, err, fmt.Sprintf("fetching %s", rawURL))
		}
		return nil, "", errors.Wrap(errors.CodeRemoteNotFound, err, fmt.Sprintf("fetching %s", rawURL))
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, "", errors.New(errors.CodeRemoteNotFound, fmt.Sprintf("remote %s returned 404", rawURL))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, "", errors.New(errors.CodeRemoteNotFound, fmt.Sprintf("remote %s returned %s", rawURL, resp.Status))
	}

	reader := io.Reader(resp.Body)
	if f.maxBytes > 0 {
		reader = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		if isTimeout(err) {
			return nil, "", errors.Wrap(errors.CodeRemoteTimeout, err, fmt.Sprintf("reading %s", rawURL))
		}
		return nil, "", errors.Wrap(errors.CodeRemoteNotFound, err, fmt.Sprintf("reading %s", rawURL))
	}
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		return nil, "", errors.New(errors.CodeValidation, fmt.Sprintf("remote %s exceeds %d bytes", rawURL, f.maxBytes))
	}

	return data, FilenameFromURL(rawURL), nil
}

// FilenameFromURL derives a filename candidate from the URL path. Query and
// fragment are ignored.
func FilenameFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	name := path.Base(parsed.Path)
	if name == "." || name == "/" {
		return ""
	}
	return name
}

func isTimeout(err error) bool {
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "context deadline exceeded") ||
		strings.Contains(err.Error(), "Client.Timeout exceeded")
}
