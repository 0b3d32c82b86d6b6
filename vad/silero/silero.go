// Package silero scores audio frames for speech with a local Silero VAD ONNX
// model. One Detector owns one loaded model and its recurrent state; all
// tensors are created once and reused across inference calls.
package silero

import (
	"errors"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ErrModelLoad is wrapped by every Load failure: missing resource, bad
// runtime library, or a graph incompatible with the expected tensor shapes.
var ErrModelLoad = errors.New("silero: model load failed")

// onnxEnvOnce ensures the ONNX runtime environment is initialized exactly
// once for the entire process lifetime. Repeated Init/Destroy cycles leak
// ONNX internal state because the runtime is not designed to be torn down
// and re-created.
var onnxEnvOnce sync.Once

// Version selects which Silero graph layout the detector expects.
type Version int

const (
	// V5 is the current Silero VAD release: inputs "input" (context tail
	// plus frame), "sr" and a combined "state" [2,1,128]; outputs "output"
	// and "stateN".
	V5 Version = iota
	// Legacy is the v4 graph: inputs "input" (frame only), "sr" and the LSTM
	// states "h"/"c" [2,1,64] each; outputs "output", "hn" and "cn".
	Legacy
)

// Config holds everything needed to load one model instance.
type Config struct {
	ModelPath    string  // path to the Silero ONNX model
	LibraryPath  string  // path to the ONNX runtime shared library
	Version      Version // graph layout of the model at ModelPath
	SampleRate   int64   // 8000 or 16000
	FrameSamples int     // samples per scored frame
}

// v5 state is [2, 1, 128]; legacy h and c are [2, 1, 64] each.
const (
	v5StateLen     = 2 * 1 * 128
	legacyStateLen = 2 * 1 * 64
)

// contextSize returns the v5 context tail length for a sample rate.
func contextSize(sampleRate int64) int {
	if sampleRate == 16000 {
		return 64
	}
	return 32
}

// v5FrameSamples returns the frame length the v5 graph requires.
func v5FrameSamples(sampleRate int64) (int, error) {
	switch sampleRate {
	case 8000:
		return 256, nil
	case 16000:
		return 512, nil
	default:
		return 0, fmt.Errorf("unsupported sample rate: %d (must be 8000 or 16000)", sampleRate)
	}
}

// Detector is a loaded Silero model plus its recurrent state. Not safe for
// concurrent use; the owning iterator serializes calls.
type Detector struct {
	cfg Config

	session *ort.AdvancedSession

	// Tensors are created once in Load and reused for every inference.
	inputTensor  *ort.Tensor[float32]
	srTensor     *ort.Tensor[int64]
	outputTensor *ort.Tensor[float32]

	// v5 only.
	stateTensor  *ort.Tensor[float32]
	stateNTensor *ort.Tensor[float32]
	state        []float32
	context      []float32
	fullInput    []float32 // scratch: context + frame

	// legacy only.
	hTensor  *ort.Tensor[float32]
	cTensor  *ort.Tensor[float32]
	hnTensor *ort.Tensor[float32]
	cnTensor *ort.Tensor[float32]
	hState   []float32
	cState   []float32

	closed bool
}

// Load initializes the ONNX runtime (once per process), validates the model
// resource and creates the session with all tensors bound. Every failure is
// wrapped in ErrModelLoad.
func Load(cfg Config) (*Detector, error) {
	if cfg.FrameSamples <= 0 {
		return nil, fmt.Errorf("%w: frame samples must be positive, got %d", ErrModelLoad, cfg.FrameSamples)
	}
	if cfg.Version == V5 {
		want, err := v5FrameSamples(cfg.SampleRate)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
		}
		if cfg.FrameSamples != want {
			return nil, fmt.Errorf("%w: v5 model at %d Hz requires %d-sample frames, got %d",
				ErrModelLoad, cfg.SampleRate, want, cfg.FrameSamples)
		}
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: model file %q: %v", ErrModelLoad, cfg.ModelPath, err)
	}

	// The environment is intentionally never destroyed; see onnxEnvOnce.
	var envErr error
	onnxEnvOnce.Do(func() {
		ort.SetSharedLibraryPath(cfg.LibraryPath)
		envErr = ort.InitializeEnvironment()
	})
	if envErr != nil {
		return nil, fmt.Errorf("%w: initialize ONNX environment: %v", ErrModelLoad, envErr)
	}

	d := &Detector{cfg: cfg}
	var err error
	if cfg.Version == V5 {
		err = d.createV5Session()
	} else {
		err = d.createLegacySession()
	}
	if err != nil {
		d.destroyTensors()
		return nil, err
	}
	return d, nil
}

func (d *Detector) createV5Session() error {
	ctxSize := contextSize(d.cfg.SampleRate)
	totalInput := ctxSize + d.cfg.FrameSamples

	d.state = make([]float32, v5StateLen)
	d.context = make([]float32, ctxSize)
	d.fullInput = make([]float32, totalInput)

	var err error
	d.inputTensor, err = ort.NewTensor(ort.NewShape(1, int64(totalInput)), make([]float32, totalInput))
	if err != nil {
		return fmt.Errorf("%w: create input tensor: %v", ErrModelLoad, err)
	}
	d.srTensor, err = ort.NewTensor(ort.NewShape(1), []int64{d.cfg.SampleRate})
	if err != nil {
		return fmt.Errorf("%w: create sr tensor: %v", ErrModelLoad, err)
	}
	// Uses d.state as backing memory; content is refreshed before each run.
	d.stateTensor, err = ort.NewTensor(ort.NewShape(2, 1, 128), d.state)
	if err != nil {
		return fmt.Errorf("%w: create state tensor: %v", ErrModelLoad, err)
	}
	d.outputTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		return fmt.Errorf("%w: create output tensor: %v", ErrModelLoad, err)
	}
	d.stateNTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(2, 1, 128))
	if err != nil {
		return fmt.Errorf("%w: create stateN tensor: %v", ErrModelLoad, err)
	}

	d.session, err = ort.NewAdvancedSession(
		d.cfg.ModelPath,
		[]string{"input", "sr", "state"},
		[]string{"output", "stateN"},
		[]ort.Value{d.inputTensor, d.srTensor, d.stateTensor},
		[]ort.Value{d.outputTensor, d.stateNTensor},
		nil,
	)
	if err != nil {
		return fmt.Errorf("%w: create ONNX session: %v", ErrModelLoad, err)
	}
	return nil
}

func (d *Detector) createLegacySession() error {
	d.hState = make([]float32, legacyStateLen)
	d.cState = make([]float32, legacyStateLen)

	var err error
	d.inputTensor, err = ort.NewTensor(ort.NewShape(1, int64(d.cfg.FrameSamples)), make([]float32, d.cfg.FrameSamples))
	if err != nil {
		return fmt.Errorf("%w: create input tensor: %v", ErrModelLoad, err)
	}
	d.srTensor, err = ort.NewTensor(ort.NewShape(1), []int64{d.cfg.SampleRate})
	if err != nil {
		return fmt.Errorf("%w: create sr tensor: %v", ErrModelLoad, err)
	}
	d.hTensor, err = ort.NewTensor(ort.NewShape(2, 1, 64), d.hState)
	if err != nil {
		return fmt.Errorf("%w: create h tensor: %v", ErrModelLoad, err)
	}
	d.cTensor, err = ort.NewTensor(ort.NewShape(2, 1, 64), d.cState)
	if err != nil {
		return fmt.Errorf("%w: create c tensor: %v", ErrModelLoad, err)
	}
	d.outputTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		return fmt.Errorf("%w: create output tensor: %v", ErrModelLoad, err)
	}
	d.hnTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(2, 1, 64))
	if err != nil {
		return fmt.Errorf("%w: create hn tensor: %v", ErrModelLoad, err)
	}
	d.cnTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(2, 1, 64))
	if err != nil {
		return fmt.Errorf("%w: create cn tensor: %v", ErrModelLoad, err)
	}

	d.session, err = ort.NewAdvancedSession(
		d.cfg.ModelPath,
		[]string{"input", "sr", "h", "c"},
		[]string{"output", "hn", "cn"},
		[]ort.Value{d.inputTensor, d.srTensor, d.hTensor, d.cTensor},
		[]ort.Value{d.outputTensor, d.hnTensor, d.cnTensor},
		nil,
	)
	if err != nil {
		return fmt.Errorf("%w: create ONNX session: %v", ErrModelLoad, err)
	}
	return nil
}

// Infer scores one frame. The model emits a single speech logit in [0, 1];
// the non-speech score is its complement, surfaced separately because the
// backend contract does not require the pair to be coupled.
func (d *Detector) Infer(frame []float32) (float32, float32, error) {
	if d.closed {
		return 0, 0, errors.New("silero: detector closed")
	}
	if len(frame) != d.cfg.FrameSamples {
		return 0, 0, fmt.Errorf("silero: frame length %d, want %d", len(frame), d.cfg.FrameSamples)
	}

	if d.cfg.Version == V5 {
		return d.inferV5(frame)
	}
	return d.inferLegacy(frame)
}

func (d *Detector) inferV5(frame []float32) (float32, float32, error) {
	ctxSize := len(d.context)
	copy(d.fullInput[:ctxSize], d.context)
	copy(d.fullInput[ctxSize:], frame)

	copy(d.inputTensor.GetData(), d.fullInput)
	copy(d.stateTensor.GetData(), d.state)

	if err := d.session.Run(); err != nil {
		return 0, 0, fmt.Errorf("silero: inference: %w", err)
	}

	p := d.outputTensor.GetData()[0]
	copy(d.state, d.stateNTensor.GetData())
	copy(d.context, d.fullInput[len(d.fullInput)-ctxSize:])
	return p, 1 - p, nil
}

func (d *Detector) inferLegacy(frame []float32) (float32, float32, error) {
	copy(d.inputTensor.GetData(), frame)
	copy(d.hTensor.GetData(), d.hState)
	copy(d.cTensor.GetData(), d.cState)

	if err := d.session.Run(); err != nil {
		return 0, 0, fmt.Errorf("silero: inference: %w", err)
	}

	p := d.outputTensor.GetData()[0]
	copy(d.hState, d.hnTensor.GetData())
	copy(d.cState, d.cnTensor.GetData())
	return p, 1 - p, nil
}

// ResetState zeroes the recurrent state (and the v5 context tail) so the
// next frame is scored without temporal history.
func (d *Detector) ResetState() {
	for i := range d.state {
		d.state[i] = 0
	}
	for i := range d.context {
		d.context[i] = 0
	}
	for i := range d.hState {
		d.hState[i] = 0
	}
	for i := range d.cState {
		d.cState[i] = 0
	}
}

// Close releases the session and tensors. The global ONNX runtime
// environment stays alive for subsequent detectors.
func (d *Detector) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.destroyTensors()
	return nil
}

func (d *Detector) destroyTensors() {
	if d.session != nil {
		d.session.Destroy()
		d.session = nil
	}
	for _, t := range []*ort.Tensor[float32]{
		d.inputTensor, d.outputTensor,
		d.stateTensor, d.stateNTensor,
		d.hTensor, d.cTensor, d.hnTensor, d.cnTensor,
	} {
		if t != nil {
			t.Destroy()
		}
	}
	d.inputTensor, d.outputTensor = nil, nil
	d.stateTensor, d.stateNTensor = nil, nil
	d.hTensor, d.cTensor, d.hnTensor, d.cnTensor = nil, nil, nil, nil
	if d.srTensor != nil {
		d.srTensor.Destroy()
		d.srTensor = nil
	}
}
