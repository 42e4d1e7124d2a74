package tagger

import (
	"encoding/json"
	"fmt"
	"os"
)

// Layout is the dimension order of the input tensor.
type Layout int

const (
	// LayoutNHWC is [batch, height, width, channel].
	LayoutNHWC Layout = iota
	// LayoutNCHW is [batch, channel, height, width].
	LayoutNCHW
)

// ChannelOrder is the color channel order of the input tensor.
type ChannelOrder int

const (
	OrderBGR ChannelOrder = iota
	OrderRGB
)

// Normalization selects how 8-bit pixel values map into the tensor.
type Normalization int

const (
	// NormRaw keeps values in [0, 255].
	NormRaw Normalization = iota
	// NormUnit scales values to [0, 1].
	NormUnit
	// NormMeanStd scales to [0, 1] then applies per-channel mean/std, in RGB
	// order regardless of the tensor's channel order.
	NormMeanStd
)

// VariantSpec is the input/output contract of one model variant. The
// preprocessor consumes it verbatim so that per-variant differences live in
// the catalog below rather than in branching inside the pixel loop.
type VariantSpec struct {
	Channels int
	Height   int
	Width    int
	Layout   Layout
	Order    ChannelOrder
	Norm     Normalization
	Mean     [3]float32
	Std      [3]float32
	// RawLogits marks graphs whose outputs need a sigmoid before
	// thresholding. The WD taggers bake the sigmoid into the graph.
	RawLogits bool
}

// TensorLen is the element count of one input tensor.
func (s VariantSpec) TensorLen() int { return s.Channels * s.Height * s.Width }

// Shape is the tensor shape including the batch dimension.
func (s VariantSpec) Shape() []int64 {
	if s.Layout == LayoutNCHW {
		return []int64{1, int64(s.Channels), int64(s.Height), int64(s.Width)}
	}
	return []int64{1, int64(s.Height), int64(s.Width), int64(s.Channels)}
}

// ModelVariant identifies one pretrained tagger model.
type ModelVariant string

const (
	V3Vit        ModelVariant = "vit"
	V3SwinV2     ModelVariant = "swin-v2"
	V3Convnext   ModelVariant = "convnext"
	V3VitLarge   ModelVariant = "vit-large"
	V3Eva02Large ModelVariant = "eva02-large"

	V2Vit        ModelVariant = "v2-vit"
	V2Moat       ModelVariant = "v2-moat"
	V2SwinV2     ModelVariant = "v2-swin-v2"
	V2Convnext   ModelVariant = "v2-convnext"
	V2ConvnextV2 ModelVariant = "v2-convnext-v2"
)

// DefaultVariant matches the upstream default.
const DefaultVariant = V3SwinV2

// Every WD tagger takes a 448x448 NHWC BGR tensor with raw 8-bit values.
var wdSpec = VariantSpec{
	Channels: 3,
	Height:   448,
	Width:    448,
	Layout:   LayoutNHWC,
	Order:    OrderBGR,
	Norm:     NormRaw,
}

var variantRepos = map[ModelVariant]string{
	V3Vit:        "SmilingWolf/wd-vit-tagger-v3",
	V3SwinV2:     "SmilingWolf/wd-swinv2-tagger-v3",
	V3Convnext:   "SmilingWolf/wd-convnext-tagger-v3",
	V3VitLarge:   "SmilingWolf/wd-vit-large-tagger-v3",
	V3Eva02Large: "SmilingWolf/wd-eva02-large-tagger-v3",

	V2Vit:        "SmilingWolf/wd-v1-4-vit-tagger-v2",
	V2Moat:       "SmilingWolf/wd-v1-4-moat-tagger-v2",
	V2SwinV2:     "SmilingWolf/wd-v1-4-swinv2-tagger-v2",
	V2Convnext:   "SmilingWolf/wd-v1-4-convnext-tagger-v2",
	V2ConvnextV2: "SmilingWolf/wd-v1-4-convnextv2-tagger-v2",
}

// Variants lists every known model variant.
func Variants() []ModelVariant {
	out := make([]ModelVariant, 0, len(variantRepos))
	for v := range variantRepos {
		out = append(out, v)
	}
	return out
}

// RepoID returns the HuggingFace repository holding the variant's artifacts.
func (v ModelVariant) RepoID() (string, error) {
	repo, ok := variantRepos[v]
	if !ok {
		return "", fmt.Errorf("unknown model variant %q", v)
	}
	return repo, nil
}

// Spec returns the variant's input contract.
func (v ModelVariant) Spec() (VariantSpec, error) {
	if _, ok := variantRepos[v]; !ok {
		return VariantSpec{}, fmt.Errorf("unknown model variant %q", v)
	}
	return wdSpec, nil
}

type pretrainedCfg struct {
	InputSize []int `json:"input_size"`
}

type modelConfig struct {
	PretrainedCfg pretrainedCfg `json:"pretrained_cfg"`
}

// SpecFromConfigFile builds a spec for a custom model from its HuggingFace
// config.json, keeping the WD conventions for layout and channel order.
func SpecFromConfigFile(path string) (VariantSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return VariantSpec{}, fmt.Errorf("failed to read model config: %w", err)
	}
	var cfg modelConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return VariantSpec{}, fmt.Errorf("failed to parse model config: %w", err)
	}
	size := cfg.PretrainedCfg.InputSize
	if len(size) != 3 || size[1] <= 0 || size[2] <= 0 {
		return VariantSpec{}, fmt.Errorf("invalid input_size %v in model config", size)
	}
	if size[0] != 3 {
		return VariantSpec{}, fmt.Errorf("unsupported channel count %d in model config: expected 3", size[0])
	}
	spec := wdSpec
	spec.Channels = size[0]
	spec.Height = size[1]
	spec.Width = size[2]
	return spec, nil
}
