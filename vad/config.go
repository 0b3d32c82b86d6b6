package vad

import (
	"errors"
	"fmt"
)

// ErrConfig is wrapped by every configuration validation failure.
var ErrConfig = errors.New("vad: invalid config")

// ModelVariant selects which pretrained Silero graph the iterator loads.
// The variant is fixed for the life of one iterator.
type ModelVariant int

const (
	// ModelV5 is the Silero VAD v5 graph (single combined state tensor plus
	// a context tail carried between frames).
	ModelV5 ModelVariant = iota
	// ModelLegacy is the Silero VAD v4 graph (separate h/c LSTM states).
	ModelLegacy
)

func (v ModelVariant) String() string {
	switch v {
	case ModelV5:
		return "v5"
	case ModelLegacy:
		return "legacy"
	default:
		return fmt.Sprintf("unknown(%d)", int(v))
	}
}

// ParseModelVariant maps a settings string to a ModelVariant.
func ParseModelVariant(s string) (ModelVariant, error) {
	switch s {
	case "", "v5":
		return ModelV5, nil
	case "legacy", "v4":
		return ModelLegacy, nil
	default:
		return ModelV5, fmt.Errorf("%w: unknown model variant %q", ErrConfig, s)
	}
}

func (v ModelVariant) MarshalJSON() ([]byte, error) {
	return []byte(`"` + v.String() + `"`), nil
}

func (v *ModelVariant) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := ParseModelVariant(s)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Config holds the per-session tuning of the iterator. Immutable once the
// iterator is constructed.
type Config struct {
	// PositiveSpeechThreshold is the speech probability at or above which a
	// frame counts as speech. Higher values make triggering stricter.
	PositiveSpeechThreshold float32 `json:"positive_speech_threshold"`
	// NegativeSpeechThreshold is the probability below which a frame counts
	// as confidently non-speech. Must be strictly less than
	// PositiveSpeechThreshold; scores in between fall in the hysteresis dead
	// zone and change no counters.
	NegativeSpeechThreshold float32 `json:"negative_speech_threshold"`
	// PreSpeechPadFrames is how many frames of pre-roll audio are retained
	// while idle and prepended to an utterance when speech triggers.
	PreSpeechPadFrames int `json:"pre_speech_pad_frames"`
	// RedemptionFrames is how many consecutive confidently-non-speech frames
	// are tolerated after speech before the utterance is declared over. The
	// utterance ends on the frame where the count exceeds this value.
	RedemptionFrames int `json:"redemption_frames"`
	// FrameSamples is the frame length in samples. Silero v5 requires 512 at
	// 16 kHz and 256 at 8 kHz.
	FrameSamples int `json:"frame_samples"`
	// MinSpeechFrames is how many speech-positive frames an utterance needs
	// before its onset is confirmed; utterances ending earlier are misfires.
	MinSpeechFrames int `json:"min_speech_frames"`
	// SubmitUserSpeechOnPause controls the pause policy: finalize the
	// in-progress utterance (true) or discard it (false).
	SubmitUserSpeechOnPause bool `json:"submit_user_speech_on_pause"`
	// Model selects the acoustic model variant.
	Model ModelVariant `json:"model"`
	// SampleRate of the incoming PCM stream. 8000 or 16000.
	SampleRate int `json:"sample_rate"`
	// OnnxRuntimePath is the ONNX runtime shared library loaded by InitModel.
	OnnxRuntimePath string `json:"onnx_runtime_path"`
}

// DefaultConfig returns a Config with sensible defaults for 16 kHz speech.
func DefaultConfig() Config {
	return Config{
		PositiveSpeechThreshold: 0.5,
		NegativeSpeechThreshold: 0.35,
		PreSpeechPadFrames:      3,
		RedemptionFrames:        8,
		FrameSamples:            512,
		MinSpeechFrames:         3,
		SubmitUserSpeechOnPause: false,
		Model:                   ModelV5,
		SampleRate:              16000,
		OnnxRuntimePath:         "./external/onnx/libonnxruntime.so",
	}
}

// Validate checks Config and returns an error on invalid or missing values.
func (c Config) Validate() error {
	if c.PositiveSpeechThreshold <= 0 || c.PositiveSpeechThreshold > 1 {
		return fmt.Errorf("%w: positive_speech_threshold %v outside (0, 1]", ErrConfig, c.PositiveSpeechThreshold)
	}
	if c.NegativeSpeechThreshold < 0 || c.NegativeSpeechThreshold > 1 {
		return fmt.Errorf("%w: negative_speech_threshold %v outside [0, 1]", ErrConfig, c.NegativeSpeechThreshold)
	}
	if c.NegativeSpeechThreshold >= c.PositiveSpeechThreshold {
		return fmt.Errorf("%w: negative_speech_threshold %v must be below positive_speech_threshold %v",
			ErrConfig, c.NegativeSpeechThreshold, c.PositiveSpeechThreshold)
	}
	if c.FrameSamples <= 0 {
		return fmt.Errorf("%w: frame_samples must be positive, got %d", ErrConfig, c.FrameSamples)
	}
	if c.PreSpeechPadFrames < 0 {
		return fmt.Errorf("%w: pre_speech_pad_frames must be >= 0, got %d", ErrConfig, c.PreSpeechPadFrames)
	}
	if c.RedemptionFrames < 0 {
		return fmt.Errorf("%w: redemption_frames must be >= 0, got %d", ErrConfig, c.RedemptionFrames)
	}
	if c.MinSpeechFrames < 1 {
		return fmt.Errorf("%w: min_speech_frames must be >= 1, got %d", ErrConfig, c.MinSpeechFrames)
	}
	if c.SampleRate != 8000 && c.SampleRate != 16000 {
		return fmt.Errorf("%w: sample_rate must be 8000 or 16000, got %d", ErrConfig, c.SampleRate)
	}
	return nil
}
