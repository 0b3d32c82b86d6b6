package vad

// VADConfig configures the pipeline-facing behaviour of the VAD handler.
// Iterator tuning lives in the iterator's own config.
type VADConfig struct {
	// ModelPath is the Silero ONNX model loaded on handler init. Empty means
	// the iterator already has a backend attached (tests, custom scorers).
	ModelPath string `json:"model_path"`
	// EmitFrameEvents forwards a per-frame probability packet downstream.
	// The iterator callback still observes every frame when this is off.
	EmitFrameEvents bool `json:"emit_frame_events"`
}

// DefaultConfig returns a VADConfig with sensible defaults
func DefaultConfig() VADConfig {
	return VADConfig{
		ModelPath:       "./external/models/silero_vad.onnx",
		EmitFrameEvents: true,
	}
}
