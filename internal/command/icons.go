package command

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// IconSource turns an icon name such as "mdi:bell" into an inline data URI.
type IconSource interface {
	DataURI(ctx context.Context, icon string) (string, error)
}

const (
	// DefaultIconTimeout bounds a single icon download.
	DefaultIconTimeout = 8 * time.Second

	maxIconBytes   = 64 << 10
	maxCachedIcons = 256
	iconRetryAfter = 5 * time.Minute
)

// ErrIconUnavailable is returned when an icon could not be fetched.
var ErrIconUnavailable = errors.New("icon unavailable")

// IconFetcher downloads SVG icons from iconify and caches them as base64
// data URIs. Failures are remembered for a few minutes so a dead icon
// service does not stall every notification.
type IconFetcher struct {
	baseURL string
	client  *http.Client
	now     func() time.Time

	mu    sync.Mutex
	cache map[string]iconEntry
}

type iconEntry struct {
	uri      string
	failedAt time.Time
}

// NewIconFetcher creates a fetcher against the public iconify API.
// A non-positive timeout selects DefaultIconTimeout.
func NewIconFetcher(timeout time.Duration) *IconFetcher {
	return newIconFetcher(iconifyBaseURL, timeout)
}

func newIconFetcher(baseURL string, timeout time.Duration) *IconFetcher {
	if timeout <= 0 {
		timeout = DefaultIconTimeout
	}
	return &IconFetcher{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		now:     time.Now,
		cache:   make(map[string]iconEntry),
	}
}

// DataURI returns the icon as "data:image/svg+xml;base64,...".
func (f *IconFetcher) DataURI(ctx context.Context, icon string) (string, error) {
	icon = strings.TrimSpace(icon)
	if icon == "" {
		return "", fmt.Errorf("%w: empty icon name", ErrIconUnavailable)
	}

	f.mu.Lock()
	entry, ok := f.cache[icon]
	f.mu.Unlock()
	if ok {
		if entry.uri != "" {
			return entry.uri, nil
		}
		if f.now().Sub(entry.failedAt) < iconRetryAfter {
			return "", fmt.Errorf("%w: %s failed recently", ErrIconUnavailable, icon)
		}
	}

	uri, err := f.fetch(ctx, icon)
	if err != nil && ctx.Err() != nil {
		// The caller gave up; that says nothing about the icon.
		return "", err
	}

	f.mu.Lock()
	if len(f.cache) >= maxCachedIcons {
		clear(f.cache)
	}
	if err != nil {
		f.cache[icon] = iconEntry{failedAt: f.now()}
	} else {
		f.cache[icon] = iconEntry{uri: uri}
	}
	f.mu.Unlock()
	return uri, err
}

func (f *IconFetcher) fetch(ctx context.Context, icon string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, iconURLAt(f.baseURL, icon), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrIconUnavailable, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrIconUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: %s returned %d", ErrIconUnavailable, icon, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxIconBytes+1))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrIconUnavailable, err)
	}
	if len(data) > maxIconBytes {
		return "", fmt.Errorf("%w: %s exceeds %d bytes", ErrIconUnavailable, icon, maxIconBytes)
	}
	return "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString(data), nil
}
