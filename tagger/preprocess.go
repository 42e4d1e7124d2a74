package tagger

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	_ "github.com/gen2brain/avif"
	_ "golang.org/x/image/webp"

	"github.com/disintegration/imaging"
)

// Decode reads an image in any registered format (jpeg, png, webp, avif).
func Decode(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	return img, nil
}

// DecodeFile reads and decodes an image from disk.
func DecodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Preprocessor converts decoded images into the tensor a model variant
// expects. One instance is built per pipeline and reused across calls.
type Preprocessor struct {
	spec VariantSpec
}

func NewPreprocessor(spec VariantSpec) *Preprocessor {
	return &Preprocessor{spec: spec}
}

// Process pads the image to a centered square on a white canvas, resizes it
// to the variant's resolution, and lays the pixels out in the variant's
// channel order, layout and value range. The same image always produces a
// bit-identical tensor.
func (p *Preprocessor) Process(img image.Image) ([]float32, error) {
	// The pixel loop works on 3-channel color; reject other contracts here
	// so a bad custom spec fails loudly instead of corrupting the layout.
	if p.spec.Channels != 3 {
		return nil, fmt.Errorf("unsupported channel count %d: input tensors must have 3 channels", p.spec.Channels)
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return nil, ErrEmptyImage
	}

	// White canvas both pads to square and flattens any alpha.
	maxDim := max(w, h)
	canvas := imaging.New(maxDim, maxDim, color.White)
	square := imaging.Paste(canvas, img, image.Pt((maxDim-w)/2, (maxDim-h)/2))
	resized := imaging.Resize(square, p.spec.Width, p.spec.Height, imaging.Lanczos)

	out := make([]float32, p.spec.TensorLen())
	for y := 0; y < p.spec.Height; y++ {
		for x := 0; x < p.spec.Width; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()
			px := p.normalize([3]float32{
				float32(r >> 8),
				float32(g >> 8),
				float32(b >> 8),
			})
			if p.spec.Order == OrderBGR {
				px[0], px[2] = px[2], px[0]
			}
			for c := 0; c < p.spec.Channels; c++ {
				out[p.offset(x, y, c)] = px[c]
			}
		}
	}
	return out, nil
}

// normalize maps 8-bit channel values into the variant's range. The input
// and any mean/std parameters are in RGB order.
func (p *Preprocessor) normalize(rgb [3]float32) [3]float32 {
	switch p.spec.Norm {
	case NormUnit:
		for i := range rgb {
			rgb[i] /= 255
		}
	case NormMeanStd:
		for i := range rgb {
			rgb[i] = (rgb[i]/255 - p.spec.Mean[i]) / p.spec.Std[i]
		}
	}
	return rgb
}

func (p *Preprocessor) offset(x, y, c int) int {
	if p.spec.Layout == LayoutNCHW {
		return c*p.spec.Height*p.spec.Width + y*p.spec.Width + x
	}
	return (y*p.spec.Width+x)*p.spec.Channels + c
}
