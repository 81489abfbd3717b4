package intel

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	json "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/obsidiansec/personaforge/api/schemas"
	"github.com/obsidiansec/personaforge/internal/config"
)

// Fetcher downloads the raw intelligence bundle and caches it on disk with a
// staleness check. It is deliberately thin: the core pipeline only ever sees
// bundles already loaded in memory.
type Fetcher struct {
	cfg     config.FetcherConfig
	client  *http.Client
	limiter *rate.Limiter
	log     *zap.Logger
}

// fetchMetadata records when and from where the cached bundle was downloaded.
type fetchMetadata struct {
	DownloadTime time.Time `json:"download_time"`
	SourceURL    string    `json:"source_url"`
	Bytes        int       `json:"bytes"`
}

// NewFetcher creates a fetcher for the configured feed URL.
func NewFetcher(cfg config.FetcherConfig, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir, err := homedir.Expand(cfg.CacheDir); err == nil {
		cfg.CacheDir = dir
	}
	return &Fetcher{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		log:     logger.Named("fetcher"),
	}
}

func (f *Fetcher) bundlePath() string {
	return filepath.Join(f.cfg.CacheDir, "bundle.json")
}

func (f *Fetcher) metadataPath() string {
	return filepath.Join(f.cfg.CacheDir, "metadata.json")
}

// Stale reports whether the on-disk cache is missing or older than the
// configured max age.
func (f *Fetcher) Stale() bool {
	raw, err := os.ReadFile(f.metadataPath())
	if err != nil {
		return true
	}
	var meta fetchMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		f.log.Warn("Could not parse cache metadata; treating cache as stale", zap.Error(err))
		return true
	}
	if _, err := os.Stat(f.bundlePath()); err != nil {
		return true
	}
	return time.Since(meta.DownloadTime) > f.cfg.MaxAge
}

// Refresh downloads the latest bundle unconditionally, writing it to a
// temporary file first and renaming it into place so a failed download never
// corrupts the cache.
func (f *Fetcher) Refresh(ctx context.Context) error {
	if err := f.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := os.MkdirAll(f.cfg.CacheDir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache dir: %w", err)
	}

	f.log.Info("Downloading intelligence bundle", zap.String("url", f.cfg.URL))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download bundle: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bundle download returned status %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(f.cfg.CacheDir, "bundle-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("failed to read bundle body: %w", err)
	}
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write bundle: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.bundlePath()); err != nil {
		return fmt.Errorf("failed to move bundle into place: %w", err)
	}

	meta := fetchMetadata{DownloadTime: time.Now().UTC(), SourceURL: f.cfg.URL, Bytes: len(body)}
	raw, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(f.metadataPath(), raw, 0o644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	f.log.Info("Bundle downloaded", zap.Int("bytes", meta.Bytes))
	return nil
}

// Ensure refreshes the cache only when it is stale, then returns the cached
// bundle path.
func (f *Fetcher) Ensure(ctx context.Context) (string, error) {
	if f.Stale() {
		if err := f.Refresh(ctx); err != nil {
			return "", err
		}
	}
	return f.bundlePath(), nil
}

// LoadBundleFile parses a bundle JSON file from disk.
func LoadBundleFile(path string) (schemas.Bundle, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return schemas.Bundle{}, fmt.Errorf("failed to read bundle file: %w", err)
	}
	var bundle schemas.Bundle
	if err := json.Unmarshal(raw, &bundle); err != nil {
		return schemas.Bundle{}, fmt.Errorf("%w: %v", ErrMalformedBundle, err)
	}
	return bundle, nil
}
