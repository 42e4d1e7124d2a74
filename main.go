package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/kotone/wdtagger/config"
	"github.com/kotone/wdtagger/hub"
	"github.com/kotone/wdtagger/onnx"
	"github.com/kotone/wdtagger/server"
	"github.com/kotone/wdtagger/tagger"
)

func main() {
	root := &cobra.Command{
		Use:           "wdtagger",
		Short:         "WaifuDiffusion tagger: score images with danbooru tags",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), tagCmd())

	if err := root.Execute(); err != nil {
		slog.Error("Command failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func initRuntime() error {
	ort.SetSharedLibraryPath(onnx.LibPath())
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX Runtime environment: %w", err)
	}
	return nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the tagging HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()
			slog.Info("Starting wdtagger server")

			if err := initRuntime(); err != nil {
				return err
			}
			defer ort.DestroyEnvironment()

			if err := server.Init(ctx); err != nil {
				return fmt.Errorf("failed to initialize server: %w", err)
			}
			defer server.Close()

			gin.SetMode(gin.ReleaseMode)
			r := gin.Default()
			r.POST("/predict", server.PredictHandler)
			r.GET("/health", server.HealthHandler)

			addr := config.C().Host + ":" + config.C().Port
			slog.Info("Listening on", slog.String("address", addr))
			go func() {
				if err := r.Run(addr); err != nil {
					slog.Error("Server error", slog.String("error", err.Error()))
					cancel()
				}
			}()

			<-ctx.Done()
			slog.Info("shutting down")
			return nil
		},
	}
}

type tagFlags struct {
	model              string
	device             string
	generalThreshold   float32
	characterThreshold float32
	mcut               bool
	sorted             bool
	asJSON             bool
}

func tagCmd() *cobra.Command {
	flags := tagFlags{}
	cmd := &cobra.Command{
		Use:   "tag <path>...",
		Short: "Tag image files or directories of images",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initRuntime(); err != nil {
				return err
			}
			defer ort.DestroyEnvironment()

			pipeline, err := loadPipeline(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer pipeline.Close()

			files, err := collectImages(args)
			if err != nil {
				return err
			}
			for _, path := range files {
				result, err := pipeline.TagFile(path)
				if err != nil {
					return fmt.Errorf("failed to tag %s: %w", path, err)
				}
				if err := printResult(path, result, flags.asJSON); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&flags.model, "model", "m", string(tagger.DefaultVariant), "model variant")
	cmd.Flags().StringVarP(&flags.device, "device", "d", config.C().Device, "inference device (cpu, cuda, tensorrt, coreml)")
	cmd.Flags().Float32VarP(&flags.generalThreshold, "threshold", "t", config.C().GeneralThreshold, "general tag threshold")
	cmd.Flags().Float32Var(&flags.characterThreshold, "character-threshold", config.C().CharacterThreshold, "character tag threshold")
	cmd.Flags().BoolVar(&flags.mcut, "mcut", false, "derive thresholds with MCut")
	cmd.Flags().BoolVar(&flags.sorted, "sorted", true, "sort tags by score")
	cmd.Flags().BoolVar(&flags.asJSON, "json", false, "print results as JSON")
	return cmd
}

func loadPipeline(ctx context.Context, flags tagFlags) (*tagger.Pipeline, error) {
	variant := tagger.ModelVariant(flags.model)
	repoID, err := variant.RepoID()
	if err != nil {
		return nil, err
	}
	device, err := tagger.ParseDevice(flags.device)
	if err != nil {
		return nil, err
	}

	client := hub.New(config.C().CacheDir)
	if config.C().HubEndpoint != "" {
		client.Endpoint = config.C().HubEndpoint
	}
	modelPath, tagsPath, err := client.ModelFiles(ctx, repoID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch model artifacts: %w", err)
	}

	return tagger.New(variant, tagger.PipelineConfig{
		ModelPath:  modelPath,
		LabelsPath: tagsPath,
		Device:     device,
		Options: tagger.Options{
			Thresholds: map[tagger.Category]float32{
				tagger.CategoryGeneral:   flags.generalThreshold,
				tagger.CategoryCharacter: flags.characterThreshold,
				tagger.CategoryRating:    config.C().RatingThreshold,
			},
			SortByScore: flags.sorted,
			MCut:        flags.mcut,
		},
	})
}

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".avif": true,
}

func isImage(path string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(path))]
}

// collectImages expands directory arguments into their image files.
func collectImages(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if !entry.IsDir() && isImage(entry.Name()) {
				files = append(files, filepath.Join(arg, entry.Name()))
			}
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no image files found")
	}
	return files, nil
}

func printResult(path string, result *tagger.Result, asJSON bool) error {
	if asJSON {
		data, err := json.Marshal(struct {
			File   string         `json:"file"`
			Result *tagger.Result `json:"result"`
		}{File: path, Result: result})
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Println(path)
	printCategory("rating", result.Rating)
	printCategory("character", result.Character)
	printCategory("general", result.General)
	return nil
}

func printCategory(name string, items []tagger.TagScore) {
	if len(items) == 0 {
		return
	}
	fmt.Printf("  %s:\n", name)
	for _, item := range items {
		fmt.Printf("    %-32s %.4f\n", item.Tag, item.Score)
	}
}
