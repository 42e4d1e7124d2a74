package tagger

import "fmt"

// Device selects the execution hardware for a session. Switching devices
// requires loading a new session.
type Device int

const (
	DeviceCPU Device = iota
	DeviceCUDA
	DeviceTensorRT
	DeviceCoreML
)

func (d Device) String() string {
	switch d {
	case DeviceCPU:
		return "cpu"
	case DeviceCUDA:
		return "cuda"
	case DeviceTensorRT:
		return "tensorrt"
	case DeviceCoreML:
		return "coreml"
	default:
		return "unknown"
	}
}

// ParseDevice maps a config/CLI string to a Device.
func ParseDevice(s string) (Device, error) {
	switch s {
	case "", "cpu":
		return DeviceCPU, nil
	case "cuda":
		return DeviceCUDA, nil
	case "tensorrt":
		return DeviceTensorRT, nil
	case "coreml":
		return DeviceCoreML, nil
	default:
		return DeviceCPU, fmt.Errorf("unknown device %q", s)
	}
}

// Backend wraps an execution engine. Its only job is to turn a model file
// into a Session bound to a device.
type Backend interface {
	Load(modelPath string, spec VariantSpec, device Device) (Session, error)
}

// Session owns one loaded model graph on one device. Run must be safe for
// concurrent invocation; implementations for engines that are not reentrant
// serialize calls internally. Close releases the graph and device resources
// and must be called exactly once per session lifetime; further calls are
// no-ops.
type Session interface {
	// Run executes the graph on one input tensor and returns a copy of the
	// output scores.
	Run(tensor []float32) ([]float32, error)
	// OutputLen is the width of the model's output vector.
	OutputLen() int
	Close() error
}
