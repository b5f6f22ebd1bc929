package agenda

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"epd2271/internal/log"
)

// Feed is a single ICS subscription.
type Feed struct {
	ID   string
	Name string
	URL  string
}

// cacheMeta holds the validators of the last successful download.
type cacheMeta struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	FetchedAt    time.Time `json:"fetched_at"`
}

// Fetcher downloads feeds with conditional requests and keeps the last good
// body on disk, so a flaky network still produces an agenda.
type Fetcher struct {
	client   *http.Client
	cacheDir string
}

// NewFetcher returns a Fetcher caching under cacheDir. An empty cacheDir
// disables the disk cache.
func NewFetcher(cacheDir string) *Fetcher {
	return &Fetcher{
		client:   &http.Client{Timeout: 15 * time.Second},
		cacheDir: cacheDir,
	}
}

// Fetch returns the body of feed. file:// URLs and plain paths are read from
// disk.
func (f *Fetcher) Fetch(ctx context.Context, feed Feed) ([]byte, error) {
	if feed.URL == "" {
		return nil, fmt.Errorf("agenda: feed %q has no URL", feed.ID)
	}
	u, err := url.Parse(feed.URL)
	if err != nil {
		return nil, fmt.Errorf("agenda: feed %q: %w", feed.ID, err)
	}
	switch u.Scheme {
	case "", "file":
		return os.ReadFile(u.Path)
	case "http", "https":
	case "webcal":
		u.Scheme = "https"
	default:
		return nil, fmt.Errorf("agenda: feed %q: unsupported scheme %q", feed.ID, u.Scheme)
	}

	meta, cached := f.loadCache(feed.URL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if cached != nil {
			log.Warn("agenda: fetch failed, using cached body", "feed", feed.ID, "url", redactURL(feed.URL), "err", err)
			return cached, nil
		}
		return nil, fmt.Errorf("agenda: fetch %q: %w", feed.ID, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("agenda: read %q: %w", feed.ID, err)
		}
		f.saveCache(cacheMeta{
			URL:          feed.URL,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
			FetchedAt:    time.Now().UTC(),
		}, body)
		log.Debug("agenda: fetched", "feed", feed.ID, "bytes", len(body))
		return body, nil
	case resp.StatusCode == http.StatusNotModified && cached != nil:
		log.Debug("agenda: not modified", "feed", feed.ID)
		return cached, nil
	case cached != nil:
		log.Warn("agenda: unexpected status, using cached body", "feed", feed.ID, "status", resp.Status)
		return cached, nil
	default:
		return nil, fmt.Errorf("agenda: fetch %q: %s", feed.ID, resp.Status)
	}
}

func (f *Fetcher) cachePaths(rawURL string) (meta, body string) {
	sum := sha256.Sum256([]byte(rawURL))
	base := filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))
	return base + ".json", base + ".ics"
}

func (f *Fetcher) loadCache(rawURL string) (cacheMeta, []byte) {
	var meta cacheMeta
	if f.cacheDir == "" {
		return meta, nil
	}
	metaPath, bodyPath := f.cachePaths(rawURL)
	body, err := os.ReadFile(bodyPath)
	if err != nil || len(body) == 0 {
		return meta, nil
	}
	if data, err := os.ReadFile(metaPath); err == nil {
		if err := json.Unmarshal(data, &meta); err != nil {
			meta = cacheMeta{}
		}
	}
	return meta, body
}

func (f *Fetcher) saveCache(meta cacheMeta, body []byte) {
	if f.cacheDir == "" {
		return
	}
	if err := os.MkdirAll(f.cacheDir, 0o700); err != nil {
		log.Error("agenda: cache dir", err, "dir", f.cacheDir)
		return
	}
	metaPath, bodyPath := f.cachePaths(meta.URL)
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err == nil {
		// Body first so the metadata never describes a missing body.
		err = errors.Join(os.WriteFile(bodyPath, body, 0o600), os.WriteFile(metaPath, data, 0o600))
	}
	if err != nil {
		log.Error("agenda: cache save failed", err, "url", redactURL(meta.URL))
	}
}

// redactURL keeps scheme and host; subscription URLs often embed secrets in
// the path or query.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "ics://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
