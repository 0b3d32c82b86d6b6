package factories

import (
	"strings"
	"testing"

	"voicekit/vad"
)

func TestSettingsConfigFromJSONDefaults(t *testing.T) {
	cfg, err := SettingsConfigFromJSON([]byte(`{}`))
	if err != nil {
		t.Fatalf("SettingsConfigFromJSON: %v", err)
	}
	if cfg.Iterator != vad.DefaultConfig() {
		t.Error("iterator section did not default")
	}
	if cfg.Source.SampleRate != 16000 {
		t.Errorf("source sample rate = %d, want 16000", cfg.Source.SampleRate)
	}
	if cfg.LogDir != "" || cfg.UtteranceDir != "" {
		t.Error("output dirs should default to empty")
	}
}

func TestSettingsConfigFromJSONOverrides(t *testing.T) {
	blob := `{
		"source": {"sample_rate": 8000, "frames_per_buffer": 256, "chunk_queue": 8},
		"iterator": {
			"positive_speech_threshold": 0.6,
			"negative_speech_threshold": 0.4,
			"pre_speech_pad_frames": 1,
			"redemption_frames": 4,
			"frame_samples": 256,
			"min_speech_frames": 2,
			"model": "legacy",
			"sample_rate": 8000,
			"onnx_runtime_path": "/opt/onnx/libonnxruntime.so"
		},
		"vad_handler": {"model_path": "/opt/models/vad.onnx", "emit_frame_events": false},
		"log_dir": "/var/log/voicekit",
		"utterance_dir": "/tmp/utterances"
	}`
	cfg, err := SettingsConfigFromJSON([]byte(blob))
	if err != nil {
		t.Fatalf("SettingsConfigFromJSON: %v", err)
	}
	if cfg.Iterator.Model != vad.ModelLegacy {
		t.Errorf("model = %v, want legacy", cfg.Iterator.Model)
	}
	if cfg.Iterator.SampleRate != 8000 || cfg.Source.SampleRate != 8000 {
		t.Error("sample rate overrides not applied")
	}
	if cfg.Iterator.RedemptionFrames != 4 {
		t.Errorf("redemption_frames = %d, want 4", cfg.Iterator.RedemptionFrames)
	}
	if cfg.Handler.ModelPath != "/opt/models/vad.onnx" || cfg.Handler.EmitFrameEvents {
		t.Errorf("handler section = %+v", cfg.Handler)
	}
	if cfg.LogDir != "/var/log/voicekit" || cfg.UtteranceDir != "/tmp/utterances" {
		t.Error("output dirs not applied")
	}
}

func TestSettingsConfigFromJSONRejectsRateMismatch(t *testing.T) {
	blob := `{"source": {"sample_rate": 8000, "frames_per_buffer": 256}}`
	_, err := SettingsConfigFromJSON([]byte(blob))
	if err == nil {
		t.Fatal("mismatched source/iterator sample rates accepted")
	}
	if !strings.Contains(err.Error(), "sample_rate") {
		t.Errorf("error %q does not name the mismatch", err)
	}
}

func TestSettingsConfigFromJSONValidatesIterator(t *testing.T) {
	blob := `{"iterator": {
		"positive_speech_threshold": 0.3,
		"negative_speech_threshold": 0.5,
		"frame_samples": 512,
		"min_speech_frames": 3,
		"sample_rate": 16000
	}}`
	if _, err := SettingsConfigFromJSON([]byte(blob)); err == nil {
		t.Fatal("inverted thresholds accepted")
	}
}

func TestSettingsConfigFromJSONMalformed(t *testing.T) {
	if _, err := SettingsConfigFromJSON([]byte(`{`)); err == nil {
		t.Fatal("malformed JSON accepted")
	}
}

func TestSettingsConfigFromFileMissing(t *testing.T) {
	cfg, err := SettingsConfigFromFile("/nonexistent/settings.json")
	if err == nil {
		t.Fatal("missing file accepted")
	}
	// Defaults come back so the caller can fall back gracefully.
	if cfg.Iterator != vad.DefaultConfig() {
		t.Error("fallback config is not the default")
	}
}
