package tagger

import (
	"errors"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ORTBackend runs models through ONNX Runtime. The shared library path must
// be set and the environment initialized (ort.InitializeEnvironment) before
// the first Load.
type ORTBackend struct{}

func NewORTBackend() *ORTBackend { return &ORTBackend{} }

func (b *ORTBackend) Load(modelPath string, spec VariantSpec, device Device) (Session, error) {
	if !ort.IsInitialized() {
		return nil, &ModelLoadError{Path: modelPath, Device: device.String(),
			Err: errors.New("onnxruntime environment not initialized")}
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, &ModelLoadError{Path: modelPath, Device: device.String(), Err: err}
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, &ModelLoadError{Path: modelPath, Device: device.String(),
			Err: errors.New("model declares no inputs or outputs")}
	}
	outLen, err := outputWidth(outputs[0].Dimensions)
	if err != nil {
		return nil, &ModelLoadError{Path: modelPath, Device: device.String(), Err: err}
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, &ModelLoadError{Path: modelPath, Device: device.String(), Err: err}
	}
	defer opts.Destroy()
	if err := appendProvider(opts, device); err != nil {
		return nil, &ModelLoadError{Path: modelPath, Device: device.String(), Err: err}
	}

	inputTensor, err := ort.NewTensor(ort.NewShape(spec.Shape()...), make([]float32, spec.TensorLen()))
	if err != nil {
		return nil, &ModelLoadError{Path: modelPath, Device: device.String(), Err: err}
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(outLen)))
	if err != nil {
		inputTensor.Destroy()
		return nil, &ModelLoadError{Path: modelPath, Device: device.String(), Err: err}
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{inputs[0].Name},
		[]string{outputs[0].Name},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		opts,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, &ModelLoadError{Path: modelPath, Device: device.String(), Err: err}
	}

	return &ortSession{
		session: session,
		input:   inputTensor,
		output:  outputTensor,
		inLen:   spec.TensorLen(),
		outLen:  outLen,
		device:  device,
	}, nil
}

// outputWidth extracts the label count from the model's declared output
// shape, skipping the (possibly dynamic) batch dimension.
func outputWidth(dims ort.Shape) (int, error) {
	if len(dims) == 0 {
		return 0, errors.New("model output has no dimensions")
	}
	last := dims[len(dims)-1]
	if last <= 0 {
		return 0, fmt.Errorf("model output width is dynamic (%v)", dims)
	}
	return int(last), nil
}

func appendProvider(opts *ort.SessionOptions, device Device) error {
	switch device {
	case DeviceCPU:
		return nil
	case DeviceCUDA:
		cudaOpts, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return err
		}
		defer cudaOpts.Destroy()
		return opts.AppendExecutionProviderCUDA(cudaOpts)
	case DeviceTensorRT:
		trtOpts, err := ort.NewTensorRTProviderOptions()
		if err != nil {
			return err
		}
		defer trtOpts.Destroy()
		return opts.AppendExecutionProviderTensorRT(trtOpts)
	case DeviceCoreML:
		return opts.AppendExecutionProviderCoreML(0)
	default:
		return fmt.Errorf("unsupported device %q", device)
	}
}

// ortSession preallocates its input and output tensors, so Run is not
// reentrant; a mutex serializes concurrent callers.
type ortSession struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	inLen   int
	outLen  int
	device  Device
	closed  bool
}

func (s *ortSession) Run(tensor []float32) ([]float32, error) {
	if len(tensor) != s.inLen {
		return nil, &ShapeMismatchError{Expected: s.inLen, Actual: len(tensor)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, &ExecutionError{Device: s.device.String(), Err: errors.New("session is closed")}
	}

	copy(s.input.GetData(), tensor)
	if err := s.session.Run(); err != nil {
		return nil, &ExecutionError{Device: s.device.String(), Err: err}
	}

	raw := s.output.GetData()
	scores := make([]float32, len(raw))
	copy(scores, raw)
	return scores, nil
}

func (s *ortSession) OutputLen() int { return s.outLen }

func (s *ortSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if err := s.session.Destroy(); err != nil {
		errs = append(errs, err)
	}
	if err := s.input.Destroy(); err != nil {
		errs = append(errs, err)
	}
	if err := s.output.Destroy(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
