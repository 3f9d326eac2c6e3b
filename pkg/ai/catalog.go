package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"goon_chat/pkg/config"

	"github.com/samber/lo"
)

// DefaultCatalogTTL is how long a cached model list is trusted.
const DefaultCatalogTTL = 24 * time.Hour

const catalogCacheFile = "models_cache.json"

// ModelInfo is one entry of the OpenRouter model list.
type ModelInfo struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Description   string            `json:"description"`
	ContextLength int               `json:"context_length"`
	Pricing       map[string]string `json:"pricing"`
}

type catalogCache struct {
	UpdatedAt time.Time   `json:"updated_at"`
	Models    []ModelInfo `json:"models"`
}

// Catalog lists the models OpenRouter serves and keeps a copy on disk.
type Catalog struct {
	APIURL     string
	CachePath  string
	TTL        time.Duration
	HTTPClient *http.Client

	now func() time.Time
}

// NewCatalog returns a catalog for the OpenRouter API at apiURL cached under
// the data directory.
func NewCatalog(apiURL string) *Catalog {
	return &Catalog{
		APIURL:     apiURL,
		CachePath:  filepath.Join(config.DataDir(), catalogCacheFile),
		TTL:        DefaultCatalogTTL,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		now:        time.Now,
	}
}

// Models returns the cached list while it is fresh, otherwise it fetches and
// rewrites the cache. A stale cache still answers when the fetch fails.
// refresh skips the freshness check.
func (c *Catalog) Models(ctx context.Context, refresh bool) ([]ModelInfo, error) {
	cached, cacheErr := c.load()
	if cacheErr == nil && !refresh && c.fresh(cached) {
		slog.Debug("catalog_cache_hit", "path", c.CachePath, "models", len(cached.Models))
		return cached.Models, nil
	}

	models, err := c.Fetch(ctx)
	if err != nil {
		if cacheErr == nil && len(cached.Models) > 0 {
			slog.Warn("catalog_refresh_failed", "error", err, "stale_models", len(cached.Models))
			return cached.Models, nil
		}
		return nil, err
	}

	if err := c.save(catalogCache{UpdatedAt: c.clock().UTC(), Models: models}); err != nil {
		slog.Warn("catalog_cache_write_failed", "path", c.CachePath, "error", err)
	}
	return models, nil
}

// Fetch downloads the model list, sorted by id.
func (c *Catalog) Fetch(ctx context.Context) ([]ModelInfo, error) {
	endpoint, err := modelsEndpoint(c.APIURL)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create models request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch models: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("models request failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		Data []ModelInfo `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode models response: %w", err)
	}
	sort.Slice(payload.Data, func(i, j int) bool { return payload.Data[i].ID < payload.Data[j].ID })
	return payload.Data, nil
}

func (c *Catalog) fresh(cache catalogCache) bool {
	if len(cache.Models) == 0 || cache.UpdatedAt.IsZero() {
		return false
	}
	return c.clock().Sub(cache.UpdatedAt) < c.TTL
}

func (c *Catalog) clock() time.Time {
	if c.now == nil {
		return time.Now()
	}
	return c.now()
}

func (c *Catalog) load() (catalogCache, error) {
	var cache catalogCache
	data, err := os.ReadFile(c.CachePath)
	if err != nil {
		return cache, err
	}
	if err := json.Unmarshal(data, &cache); err != nil {
		return cache, fmt.Errorf("parse model cache: %w", err)
	}
	return cache, nil
}

func (c *Catalog) save(cache catalogCache) error {
	if c.CachePath == "" {
		return errors.New("no cache path")
	}
	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.CachePath), 0o700); err != nil {
		return err
	}
	return os.WriteFile(c.CachePath, data, 0o600)
}

// FilterModels keeps models whose id or name contains query, ignoring case.
func FilterModels(models []ModelInfo, query string) []ModelInfo {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return models
	}
	return lo.Filter(models, func(m ModelInfo, _ int) bool {
		return strings.Contains(strings.ToLower(m.ID), query) || strings.Contains(strings.ToLower(m.Name), query)
	})
}

func modelsEndpoint(apiURL string) (string, error) {
	raw := strings.TrimSpace(apiURL)
	if raw == "" {
		return "", errors.New("api_url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid api_url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", errors.New("api_url must include scheme and host")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/models"
	return u.String(), nil
}
