package tagger

import (
	"image"
	"sync"
)

type pipelineState int

const (
	stateReady pipelineState = iota
	stateClosed
)

// PipelineConfig carries everything needed to bring a pipeline up. ModelPath
// and LabelsPath must be a matched pair for the chosen variant.
type PipelineConfig struct {
	ModelPath  string
	LabelsPath string
	Device     Device
	// Backend defaults to the ONNX Runtime backend.
	Backend Backend
	// Options are the default postprocessing options for Tag calls.
	Options Options
}

// Pipeline composes preprocessing, backend execution and postprocessing
// behind a single Tag entry point. The session and label table are read-only
// after construction, so one pipeline may serve concurrent Tag calls; all
// per-call state is local. New returns a ready pipeline or an error, never a
// partially loaded instance.
type Pipeline struct {
	mu      sync.RWMutex
	state   pipelineState
	variant ModelVariant
	spec    VariantSpec
	pre     *Preprocessor
	session Session
	labels  *LabelTable
	opts    Options
}

// New loads the label table and backend session for a variant. The session's
// output width must equal the table length; a mismatched model/table pair
// fails here with LengthMismatch rather than silently mislabeling results.
func New(variant ModelVariant, cfg PipelineConfig) (*Pipeline, error) {
	spec, err := variant.Spec()
	if err != nil {
		return nil, err
	}
	return newPipeline(variant, spec, cfg)
}

// NewCustom loads a pipeline for a model outside the known catalog, with a
// caller-supplied input contract.
func NewCustom(spec VariantSpec, cfg PipelineConfig) (*Pipeline, error) {
	return newPipeline("custom", spec, cfg)
}

func newPipeline(variant ModelVariant, spec VariantSpec, cfg PipelineConfig) (*Pipeline, error) {
	labels, err := LoadLabels(cfg.LabelsPath)
	if err != nil {
		return nil, err
	}

	backend := cfg.Backend
	if backend == nil {
		backend = NewORTBackend()
	}
	session, err := backend.Load(cfg.ModelPath, spec, cfg.Device)
	if err != nil {
		return nil, err
	}
	if session.OutputLen() != labels.Len() {
		session.Close()
		return nil, &LengthMismatchError{Scores: session.OutputLen(), Labels: labels.Len()}
	}

	return &Pipeline{
		state:   stateReady,
		variant: variant,
		spec:    spec,
		pre:     NewPreprocessor(spec),
		session: session,
		labels:  labels,
		opts:    cfg.Options,
	}, nil
}

// Variant returns the variant the pipeline was loaded for.
func (p *Pipeline) Variant() ModelVariant { return p.variant }

// Labels returns the loaded label table.
func (p *Pipeline) Labels() *LabelTable { return p.labels }

// Tag runs one image through preprocess, inference and postprocess using the
// pipeline's default options.
func (p *Pipeline) Tag(img image.Image) (*Result, error) {
	return p.TagWith(img, p.opts)
}

// TagWith is Tag with per-call postprocessing options.
func (p *Pipeline) TagWith(img image.Image, opts Options) (*Result, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.state != stateReady {
		return nil, ErrPipelineNotReady
	}

	tensor, err := p.pre.Process(img)
	if err != nil {
		return nil, err
	}
	scores, err := p.session.Run(tensor)
	if err != nil {
		return nil, err
	}
	if p.spec.RawLogits {
		sigmoidAll(scores)
	}
	return Postprocess(scores, p.labels, opts)
}

// TagFile decodes an image from disk and tags it.
func (p *Pipeline) TagFile(path string) (*Result, error) {
	img, err := DecodeFile(path)
	if err != nil {
		return nil, err
	}
	return p.Tag(img)
}

// TagBatch tags a sequence of images with the pipeline's default options,
// failing fast on the first error.
func (p *Pipeline) TagBatch(imgs []image.Image) ([]*Result, error) {
	results := make([]*Result, 0, len(imgs))
	for _, img := range imgs {
		result, err := p.Tag(img)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

// Close releases the backend session. Further Tag calls fail with
// PipelineNotReady. Close is idempotent.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == stateClosed {
		return nil
	}
	p.state = stateClosed
	return p.session.Close()
}
