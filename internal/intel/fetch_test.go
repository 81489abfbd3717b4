package intel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/obsidiansec/personaforge/internal/config"
)

func fetchTestServer(t *testing.T, hits *int64) *httptest.Server {
	t.Helper()
	bundle := testBundle()
	raw, err := json.Marshal(bundle)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(hits, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(raw)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func fetcherConfig(url, dir string) config.FetcherConfig {
	return config.FetcherConfig{
		URL:       url,
		CacheDir:  dir,
		MaxAge:    time.Hour,
		Timeout:   5 * time.Second,
		RateLimit: 100,
	}
}

func TestFetcherRefresh(t *testing.T) {
	t.Parallel()

	var hits int64
	srv := fetchTestServer(t, &hits)
	dir := t.TempDir()
	f := NewFetcher(fetcherConfig(srv.URL, dir), zap.NewNop())

	require.True(t, f.Stale(), "empty cache dir must be stale")
	require.NoError(t, f.Refresh(context.Background()))

	// Bundle and metadata land on disk and the cache reads back fresh.
	assert.False(t, f.Stale())
	bundle, err := LoadBundleFile(filepath.Join(dir, "bundle.json"))
	require.NoError(t, err)
	assert.Len(t, bundle.Objects, len(testBundle().Objects))

	var meta fetchMetadata
	raw, err := os.ReadFile(filepath.Join(dir, "metadata.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &meta))
	assert.Equal(t, srv.URL, meta.SourceURL)
	assert.Greater(t, meta.Bytes, 0)
}

func TestFetcherEnsure(t *testing.T) {
	t.Parallel()

	var hits int64
	srv := fetchTestServer(t, &hits)
	dir := t.TempDir()
	f := NewFetcher(fetcherConfig(srv.URL, dir), zap.NewNop())

	path, err := f.Ensure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "bundle.json"), path)
	assert.EqualValues(t, 1, atomic.LoadInt64(&hits))

	// A fresh cache is not re-downloaded.
	_, err = f.Ensure(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt64(&hits))
}

func TestFetcherRefreshServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	f := NewFetcher(fetcherConfig(srv.URL, t.TempDir()), zap.NewNop())
	err := f.Refresh(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestLoadBundleFile(t *testing.T) {
	t.Parallel()

	t.Run("malformed json wraps sentinel", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "bad.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

		_, err := LoadBundleFile(path)
		assert.ErrorIs(t, err, ErrMalformedBundle)
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		_, err := LoadBundleFile(filepath.Join(t.TempDir(), "absent.json"))
		assert.Error(t, err)
	})

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()
		raw, err := json.Marshal(testBundle())
		require.NoError(t, err)
		path := filepath.Join(t.TempDir(), "bundle.json")
		require.NoError(t, os.WriteFile(path, raw, 0o644))

		bundle, err := LoadBundleFile(path)
		require.NoError(t, err)

		var ids []string
		for _, obj := range bundle.Objects {
			ids = append(ids, obj.ID)
		}
		assert.Contains(t, ids, "G0001")
	})
}
