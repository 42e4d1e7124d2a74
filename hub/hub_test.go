package hub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDownloadsAndCaches(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		assert.Equal(t, "/SmilingWolf/wd-swinv2-tagger-v3/resolve/main/selected_tags.csv", r.URL.Path)
		_, _ = w.Write([]byte("tag_id,name,category,count\n1,1girl,0,100\n"))
	}))
	defer srv.Close()

	client := New(t.TempDir())
	client.Endpoint = srv.URL

	path, err := client.Get(context.Background(), "SmilingWolf/wd-swinv2-tagger-v3", TagsFile)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "1girl")
	assert.Equal(t, 1, hits)

	// Second call is served from the cache.
	again, err := client.Get(context.Background(), "SmilingWolf/wd-swinv2-tagger-v3", TagsFile)
	require.NoError(t, err)
	assert.Equal(t, path, again)
	assert.Equal(t, 1, hits)
}

func TestGetNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	client := New(t.TempDir())
	client.Endpoint = srv.URL

	_, err := client.Get(context.Background(), "nobody/nothing", ModelFile)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")

	// A failed download must not leave a cache entry behind.
	entries, err := os.ReadDir(filepath.Join(client.CacheDir, "nobody", "nothing"))
	if err == nil {
		assert.Empty(t, entries)
	}
}

func TestModelFiles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("payload"))
	}))
	defer srv.Close()

	client := New(t.TempDir())
	client.Endpoint = srv.URL

	modelPath, tagsPath, err := client.ModelFiles(context.Background(), "SmilingWolf/wd-vit-tagger-v3")
	require.NoError(t, err)
	assert.FileExists(t, modelPath)
	assert.FileExists(t, tagsPath)
	assert.Equal(t, ModelFile, filepath.Base(modelPath))
	assert.Equal(t, TagsFile, filepath.Base(tagsPath))
}
