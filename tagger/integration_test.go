//go:build integration

package tagger

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/kotone/wdtagger/hub"
	"github.com/kotone/wdtagger/onnx"
)

// Runs the full pipeline against real vit-large weights. Needs network
// access, the ONNX Runtime shared library, and a sample image (a portrait
// shot of a single girl, e.g. a 3x1024x1024 illustration):
//
//	WDTAGGER_SAMPLE_IMAGE=assets/sample1.webp \
//	go test -tags integration -run TestRealModelVitLarge ./tagger
//
// Artifacts cache under WDTAGGER_CACHE_DIR (default "models") so repeat runs
// skip the download.
func TestRealModelVitLarge(t *testing.T) {
	samplePath := os.Getenv("WDTAGGER_SAMPLE_IMAGE")
	if samplePath == "" {
		t.Skip("WDTAGGER_SAMPLE_IMAGE not set")
	}
	if testing.Short() {
		t.Skip("skipping real-model inference in short mode")
	}

	ort.SetSharedLibraryPath(onnx.LibPath())
	if err := ort.InitializeEnvironment(); err != nil {
		t.Skipf("onnxruntime unavailable: %v", err)
	}
	defer ort.DestroyEnvironment()

	cacheDir := os.Getenv("WDTAGGER_CACHE_DIR")
	if cacheDir == "" {
		cacheDir = "models"
	}
	repoID, err := V3VitLarge.RepoID()
	require.NoError(t, err)
	modelPath, tagsPath, err := hub.New(cacheDir).ModelFiles(context.Background(), repoID)
	require.NoError(t, err)

	pipeline, err := New(V3VitLarge, PipelineConfig{
		ModelPath:  modelPath,
		LabelsPath: tagsPath,
	})
	require.NoError(t, err)
	defer pipeline.Close()

	img, err := DecodeFile(samplePath)
	require.NoError(t, err)

	// Default thresholds surface "1girl" at or above the general default.
	result, err := pipeline.Tag(img)
	require.NoError(t, err)
	found := false
	for _, item := range result.General {
		if item.Tag == "1girl" {
			found = true
			assert.GreaterOrEqual(t, item.Score, DefaultGeneralThreshold)
		}
	}
	assert.True(t, found, "expected general tag 1girl above the default threshold")

	// A stable backend yields identical results for the same image.
	again, err := pipeline.Tag(img)
	require.NoError(t, err)
	assert.Equal(t, result, again)

	// A 0.99 general threshold filters the general bucket down to nothing
	// or nearly nothing.
	strict, err := pipeline.TagWith(img, Options{
		Thresholds: map[Category]float32{CategoryGeneral: 0.99},
	})
	require.NoError(t, err)
	assert.Less(t, len(strict.General), len(result.General))
	for _, item := range strict.General {
		assert.GreaterOrEqual(t, item.Score, float32(0.99))
	}
}
