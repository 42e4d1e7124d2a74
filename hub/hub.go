// Package hub downloads model artifacts from HuggingFace repositories into a
// local cache directory, reusing cached files on later runs.
package hub

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
)

// Standard artifact filenames in the tagger repositories.
const (
	ModelFile  = "model.onnx"
	TagsFile   = "selected_tags.csv"
	ConfigFile = "config.json"
)

const defaultEndpoint = "https://huggingface.co"

// Client fetches repository files over HTTP with a local file cache.
type Client struct {
	// Endpoint is the hub base URL, overridable for mirrors.
	Endpoint string
	// CacheDir is the root of the local cache; files land under
	// CacheDir/<repo_id>/<filename>.
	CacheDir string
	HTTP     *http.Client
}

// New returns a client caching under dir, honoring the HF_ENDPOINT
// environment variable.
func New(dir string) *Client {
	endpoint := defaultEndpoint
	if env := os.Getenv("HF_ENDPOINT"); env != "" {
		endpoint = env
	}
	return &Client{
		Endpoint: endpoint,
		CacheDir: dir,
		HTTP:     http.DefaultClient,
	}
}

// Get returns a local path for a repository file, downloading it when it is
// not already cached.
func (c *Client) Get(ctx context.Context, repoID, filename string) (string, error) {
	local := filepath.Join(c.CacheDir, filepath.FromSlash(repoID), filename)
	if _, err := os.Stat(local); err == nil {
		return local, nil
	}

	url := fmt.Sprintf("%s/%s/resolve/main/%s", c.Endpoint, repoID, filename)
	slog.Info("downloading artifact", slog.String("url", url), slog.String("dest", local))

	if err := os.MkdirAll(filepath.Dir(local), 0755); err != nil {
		return "", fmt.Errorf("failed to create cache directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download %s: status %s", url, resp.Status)
	}

	// Write to a temp file and rename so a partial download never looks
	// like a cached artifact.
	tmp, err := os.CreateTemp(filepath.Dir(local), filename+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write %s: %w", local, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), local); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to move artifact into cache: %w", err)
	}
	return local, nil
}

// ModelFiles fetches the model graph and its matched tag table for one
// repository, returning their local paths.
func (c *Client) ModelFiles(ctx context.Context, repoID string) (modelPath, tagsPath string, err error) {
	modelPath, err = c.Get(ctx, repoID, ModelFile)
	if err != nil {
		return "", "", err
	}
	tagsPath, err = c.Get(ctx, repoID, TagsFile)
	if err != nil {
		return "", "", err
	}
	return modelPath, tagsPath, nil
}
