package vad

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/smallnest/ringbuffer"

	"voicekit/vad/silero"
)

// ringFrames is how many frames of raw bytes the reassembly ring can hold.
// Incoming chunks larger than the free space are written in pieces, draining
// completed frames between writes, so chunk size never matters.
const ringFrames = 4

// Iterator consumes a continuous 16-bit PCM byte stream, scores it frame by
// frame through an inference backend, and emits speech lifecycle events.
//
// The iterator is single-threaded with respect to its own state: the caller
// must serialize ProcessAudioData, ForceEndSpeech, Reset and Release.
type Iterator struct {
	cfg     Config
	backend Backend
	cb      EventCallback

	ring       *ringbuffer.RingBuffer // raw bytes awaiting frame assembly
	frameBytes []byte                 // scratch for one frame of raw bytes

	padBuf    [][]float32 // rolling pre-speech pad, bounded to PreSpeechPadFrames
	utterance [][]float32 // frames of the in-progress candidate utterance

	speaking   bool // ActiveSpeech when true, Idle otherwise
	confirmed  int  // speech-positive frames in the current utterance
	announced  bool // SpeechRealStartEvent already emitted for this utterance
	redemption int  // consecutive confidently-non-speech frames

	released bool
}

// NewIterator validates cfg and constructs an iterator in the Idle state.
// The inference backend is attached separately via InitModel or SetBackend.
func NewIterator(cfg Config) (*Iterator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	frameByteLen := cfg.FrameSamples * 2
	return &Iterator{
		cfg:        cfg,
		ring:       ringbuffer.New(ringFrames * frameByteLen).SetBlocking(false),
		frameBytes: make([]byte, frameByteLen),
	}, nil
}

// Config returns the iterator's immutable configuration.
func (it *Iterator) Config() Config {
	return it.cfg
}

// InitModel loads the configured Silero model variant from modelPath and
// attaches it as the inference backend. Must be called exactly once before
// ProcessAudioData.
func (it *Iterator) InitModel(modelPath string) error {
	if it.released {
		return errors.New("vad: iterator released")
	}
	if it.backend != nil {
		return errors.New("vad: model already initialized")
	}

	version := silero.V5
	if it.cfg.Model == ModelLegacy {
		version = silero.Legacy
	}
	det, err := silero.Load(silero.Config{
		ModelPath:    modelPath,
		LibraryPath:  it.cfg.OnnxRuntimePath,
		Version:      version,
		SampleRate:   int64(it.cfg.SampleRate),
		FrameSamples: it.cfg.FrameSamples,
	})
	if err != nil {
		return err
	}
	it.backend = det
	return nil
}

// SetBackend attaches a custom inference backend instead of InitModel.
func (it *Iterator) SetBackend(b Backend) error {
	if it.backend != nil {
		return errors.New("vad: backend already set")
	}
	it.backend = b
	return nil
}

// SetEventCallback registers the sink that receives every emitted event.
// The callback is invoked synchronously in emission order.
func (it *Iterator) SetEventCallback(cb EventCallback) {
	it.cb = cb
}

// ProcessAudioData appends raw little-endian 16-bit mono PCM bytes to the
// internal buffer and runs the per-frame decision algorithm for every
// completed frame. Chunk boundaries need not align with frames or even with
// sample boundaries. Zero or more events are emitted synchronously before
// the call returns.
func (it *Iterator) ProcessAudioData(data []byte) error {
	if it.released {
		return errors.New("vad: iterator released")
	}
	if it.backend == nil {
		return errors.New("vad: model not initialized")
	}

	for len(data) > 0 {
		if free := it.ring.Free(); free > 0 {
			n := min(free, len(data))
			written, err := it.ring.Write(data[:n])
			if err != nil && written == 0 {
				return fmt.Errorf("vad: buffer write: %w", err)
			}
			data = data[written:]
		}
		it.drainFrames()
	}
	it.drainFrames()
	return nil
}

// drainFrames extracts and processes every complete frame in the ring.
func (it *Iterator) drainFrames() {
	for it.ring.Length() >= len(it.frameBytes) {
		read := 0
		for read < len(it.frameBytes) {
			n, err := it.ring.Read(it.frameBytes[read:])
			if err != nil || n == 0 {
				return
			}
			read += n
		}

		frame := make([]float32, it.cfg.FrameSamples)
		for i := range frame {
			sample := int16(binary.LittleEndian.Uint16(it.frameBytes[i*2:]))
			frame[i] = float32(sample) / 32768.0
		}
		it.processFrame(frame)
	}
}

// processFrame runs the per-frame decision algorithm: score, report, then
// apply the hysteresis state machine.
func (it *Iterator) processFrame(frame []float32) {
	isSpeech, notSpeech, err := it.backend.Infer(frame)
	if err != nil {
		// Recoverable: report and keep going with the next frame.
		it.emit(ErrorEvent{Message: fmt.Sprintf("inference failed: %v", err)})
		return
	}

	it.emit(FrameProcessedEvent{IsSpeech: isSpeech, NotSpeech: notSpeech, Frame: frame})

	if !it.speaking {
		it.frameWhileIdle(frame, isSpeech)
	} else {
		it.frameWhileSpeaking(frame, isSpeech)
	}
}

func (it *Iterator) frameWhileIdle(frame []float32, isSpeech float32) {
	if isSpeech < it.cfg.PositiveSpeechThreshold {
		it.pushPad(frame)
		return
	}

	// Candidate onset: seed the utterance with the pad, then the trigger frame.
	it.speaking = true
	it.utterance = append(it.utterance[:0], it.padBuf...)
	it.padBuf = it.padBuf[:0]
	it.utterance = append(it.utterance, frame)
	it.confirmed = 1
	it.redemption = 0
	it.announced = false
	it.emit(SpeechStartEvent{})
	if it.confirmed >= it.cfg.MinSpeechFrames {
		it.announced = true
		it.emit(SpeechRealStartEvent{})
	}
}

func (it *Iterator) frameWhileSpeaking(frame []float32, isSpeech float32) {
	it.utterance = append(it.utterance, frame)

	switch {
	case isSpeech >= it.cfg.PositiveSpeechThreshold:
		it.confirmed++
		it.redemption = 0
		if !it.announced && it.confirmed >= it.cfg.MinSpeechFrames {
			it.announced = true
			it.emit(SpeechRealStartEvent{})
		}
	case isSpeech < it.cfg.NegativeSpeechThreshold:
		it.redemption++
		// The utterance ends on the frame where the redemption count
		// exceeds RedemptionFrames; that frame is part of the payload.
		if it.redemption > it.cfg.RedemptionFrames {
			if it.announced {
				it.emit(SpeechEndEvent{Audio: it.flattenUtterance()})
			} else {
				it.emit(MisfireEvent{})
			}
			it.clearUtterance()
		}
	default:
		// Hysteresis dead zone: no counter changes.
	}
}

// ForceEndSpeech finalizes the in-progress utterance immediately, emitting a
// SpeechEndEvent with whatever audio has accumulated, even if the onset was
// never confirmed. No-op while Idle.
func (it *Iterator) ForceEndSpeech() {
	if it.released || !it.speaking {
		return
	}
	it.emit(SpeechEndEvent{Audio: it.flattenUtterance()})
	it.clearUtterance()
}

// Reset discards the in-progress utterance, the pad buffer, any buffered
// bytes and the recurrent model state, returning to Idle. Unlike
// ForceEndSpeech, no end event is emitted: the data is dropped, not
// finalized.
func (it *Iterator) Reset() {
	if it.released {
		return
	}
	it.clearUtterance()
	it.padBuf = it.padBuf[:0]
	it.ring.Reset()
	if it.backend != nil {
		it.backend.ResetState()
	}
}

// Release frees the backend resources. The iterator must not be used
// afterward.
func (it *Iterator) Release() error {
	if it.released {
		return nil
	}
	it.released = true
	it.clearUtterance()
	it.padBuf = nil
	if it.backend != nil {
		err := it.backend.Close()
		it.backend = nil
		return err
	}
	return nil
}

func (it *Iterator) pushPad(frame []float32) {
	if it.cfg.PreSpeechPadFrames == 0 {
		return
	}
	if len(it.padBuf) == it.cfg.PreSpeechPadFrames {
		copy(it.padBuf, it.padBuf[1:])
		it.padBuf = it.padBuf[:len(it.padBuf)-1]
	}
	it.padBuf = append(it.padBuf, frame)
}

func (it *Iterator) flattenUtterance() []float32 {
	total := 0
	for _, f := range it.utterance {
		total += len(f)
	}
	audio := make([]float32, 0, total)
	for _, f := range it.utterance {
		audio = append(audio, f...)
	}
	return audio
}

func (it *Iterator) clearUtterance() {
	it.utterance = it.utterance[:0]
	it.speaking = false
	it.confirmed = 0
	it.redemption = 0
	it.announced = false
}

func (it *Iterator) emit(ev Event) {
	if it.cb != nil {
		it.cb(ev)
	}
}
