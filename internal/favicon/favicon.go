// Package favicon downloads site icons for widgets and stores them next to
// the widget's files.
package favicon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	http "github.com/bogdanfinn/fhttp"
	tls_client "github.com/bogdanfinn/tls-client"
	"github.com/bogdanfinn/tls-client/profiles"
	"go.uber.org/zap"
)

// FileName is the icon's name inside a widget folder.
const FileName = "favicon.ico"

const (
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
	// MaxAge is how long a fetched icon is reused before fetching again.
	MaxAge  = 24 * time.Hour
	maxSize = 1 << 20
)

// ErrNoFavicon is returned when a site has no usable favicon.
var ErrNoFavicon = errors.New("favicon: not available")

// Doer sends HTTP requests. tls_client.HttpClient satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewClient returns an HTTP client with a Chrome TLS fingerprint, so sites
// behind bot protection serve their icon.
func NewClient() (tls_client.HttpClient, error) {
	options := []tls_client.HttpClientOption{
		tls_client.WithClientProfile(profiles.Chrome_131),
		tls_client.WithRandomTLSExtensionOrder(),
		tls_client.WithTimeoutSeconds(15),
	}
	return tls_client.NewHttpClient(tls_client.NewNoopLogger(), options...)
}

// Fetcher downloads favicons, consulting the cache first.
type Fetcher struct {
	client Doer
	cache  *Cache
	log    *zap.SugaredLogger
	now    func() time.Time
}

// NewFetcher creates a Fetcher. cache may be nil to always download.
func NewFetcher(client Doer, cache *Cache, log *zap.SugaredLogger) *Fetcher {
	return &Fetcher{client: client, cache: cache, log: log, now: time.Now}
}

// Path returns where the favicon for a widget folder lives.
func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// Fetch stores the favicon of pageURL's host as favicon.ico in dir and
// returns its path. A fresh cached icon is copied instead of downloaded.
func (f *Fetcher) Fetch(ctx context.Context, pageURL, dir string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(pageURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: not a web url %q", ErrNoFavicon, pageURL)
	}
	host := strings.ToLower(u.Host)
	target := Path(dir)

	if p, ok := f.cached(host); ok {
		if p == target {
			return target, nil
		}
		if data, err := os.ReadFile(p); err == nil {
			if err := writeIcon(target, data); err != nil {
				return "", err
			}
			return target, nil
		}
	}

	data, err := f.download(ctx, u.Scheme+"://"+u.Host+"/"+FileName)
	if err != nil {
		return "", err
	}
	if err := writeIcon(target, data); err != nil {
		return "", err
	}
	if f.cache != nil {
		if err := f.cache.Put(Entry{Host: host, Path: target, FetchedAt: f.now()}); err != nil {
			f.log.Warnf("Failed to cache favicon for %s: %v", host, err)
		}
	}
	f.log.Debugf("Fetched favicon for %s", host)
	return target, nil
}

func (f *Fetcher) cached(host string) (string, bool) {
	if f.cache == nil {
		return "", false
	}
	e, ok, err := f.cache.Get(host)
	if err != nil {
		f.log.Warnf("Favicon cache lookup failed: %v", err)
		return "", false
	}
	if !ok || f.now().Sub(e.FetchedAt) > MaxAge {
		return "", false
	}
	if _, err := os.Stat(e.Path); err != nil {
		return "", false
	}
	return e.Path, true
}

func (f *Fetcher) download(ctx context.Context, iconURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", iconURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header = http.Header{
		"User-Agent":      {userAgent},
		"Accept":          {"image/avif,image/webp,image/apng,image/*,*/*;q=0.8"},
		"Accept-Language": {"en-US,en;q=0.9"},
		"Sec-Fetch-Dest":  {"image"},
		"Sec-Fetch-Mode":  {"no-cors"},
		http.HeaderOrderKey: {
			"user-agent", "accept", "accept-language",
			"sec-fetch-dest", "sec-fetch-mode",
		},
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("%w: %s returned %d", ErrNoFavicon, iconURL, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 || len(data) > maxSize {
		return nil, fmt.Errorf("%w: %s returned %d bytes", ErrNoFavicon, iconURL, len(data))
	}
	return data, nil
}

func writeIcon(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
