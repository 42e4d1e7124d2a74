package server

import (
	"context"
	"fmt"

	"github.com/kotone/wdtagger/config"
	"github.com/kotone/wdtagger/hub"
	"github.com/kotone/wdtagger/tagger"
)

var pipeline *tagger.Pipeline

// Init fetches the configured variant's artifacts and brings the tagging
// pipeline up. It must run after the ONNX Runtime environment is
// initialized.
func Init(ctx context.Context) error {
	cfg := config.C()

	variant := tagger.ModelVariant(cfg.Variant)
	repoID, err := variant.RepoID()
	if err != nil {
		return err
	}
	device, err := tagger.ParseDevice(cfg.Device)
	if err != nil {
		return err
	}

	client := hub.New(cfg.CacheDir)
	if cfg.HubEndpoint != "" {
		client.Endpoint = cfg.HubEndpoint
	}
	modelPath, tagsPath, err := client.ModelFiles(ctx, repoID)
	if err != nil {
		return fmt.Errorf("failed to fetch model artifacts: %w", err)
	}

	p, err := tagger.New(variant, tagger.PipelineConfig{
		ModelPath:  modelPath,
		LabelsPath: tagsPath,
		Device:     device,
		Options: tagger.Options{
			Thresholds: map[tagger.Category]float32{
				tagger.CategoryGeneral:   cfg.GeneralThreshold,
				tagger.CategoryCharacter: cfg.CharacterThreshold,
				tagger.CategoryRating:    cfg.RatingThreshold,
			},
			SortByScore: cfg.SortByScore,
			MCut:        cfg.MCut,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to load tagging pipeline: %w", err)
	}
	pipeline = p
	return nil
}

// Close releases the pipeline's backend session.
func Close() error {
	if pipeline == nil {
		return nil
	}
	return pipeline.Close()
}
