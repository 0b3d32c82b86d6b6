package factories

import (
	"encoding/json"
	"fmt"
	"os"

	vadhandler "voicekit/handlers/vad"
	"voicekit/source"
	"voicekit/vad"
)

// SettingsConfig is the top-level config loaded from settings.json. Absent
// sections fall back to their package defaults; present sections replace
// them wholesale.
type SettingsConfig struct {
	// Source configures microphone capture.
	Source source.Config `json:"source"`
	// Iterator tunes the VAD decision state machine.
	Iterator vad.Config `json:"iterator"`
	// Handler configures the pipeline-facing VAD behaviour.
	Handler vadhandler.VADConfig `json:"vad_handler"`
	// LogDir is where per-session .jsonl logs and event traces go.
	// Empty disables session logging.
	LogDir string `json:"log_dir,omitempty"`
	// UtteranceDir is where finished utterances are dumped as WAV files.
	// Empty disables the dump.
	UtteranceDir string `json:"utterance_dir,omitempty"`
}

// DefaultSettingsConfig returns a SettingsConfig pre-filled with package defaults.
func DefaultSettingsConfig() SettingsConfig {
	return SettingsConfig{
		Source:   source.DefaultConfig(),
		Iterator: vad.DefaultConfig(),
		Handler:  vadhandler.DefaultConfig(),
	}
}

// SettingsConfigFromJSON parses a JSON blob into a SettingsConfig, keeping
// defaults for any section the blob omits.
func SettingsConfigFromJSON(data []byte) (SettingsConfig, error) {
	var raw struct {
		Source       json.RawMessage `json:"source,omitempty"`
		Iterator     json.RawMessage `json:"iterator,omitempty"`
		Handler      json.RawMessage `json:"vad_handler,omitempty"`
		LogDir       string          `json:"log_dir,omitempty"`
		UtteranceDir string          `json:"utterance_dir,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return SettingsConfig{}, fmt.Errorf("settings: %w", err)
	}

	cfg := DefaultSettingsConfig()
	cfg.LogDir = raw.LogDir
	cfg.UtteranceDir = raw.UtteranceDir

	if len(raw.Source) > 0 {
		if err := json.Unmarshal(raw.Source, &cfg.Source); err != nil {
			return SettingsConfig{}, fmt.Errorf("settings: source: %w", err)
		}
	}
	if len(raw.Iterator) > 0 {
		if err := json.Unmarshal(raw.Iterator, &cfg.Iterator); err != nil {
			return SettingsConfig{}, fmt.Errorf("settings: iterator: %w", err)
		}
	}
	if len(raw.Handler) > 0 {
		if err := json.Unmarshal(raw.Handler, &cfg.Handler); err != nil {
			return SettingsConfig{}, fmt.Errorf("settings: vad_handler: %w", err)
		}
	}

	// Capture and iterator must agree on the stream format; validate here so
	// a bad settings file fails before any device is opened.
	if err := cfg.Iterator.Validate(); err != nil {
		return SettingsConfig{}, err
	}
	if cfg.Source.SampleRate != cfg.Iterator.SampleRate {
		return SettingsConfig{}, fmt.Errorf("settings: source sample_rate %d does not match iterator sample_rate %d",
			cfg.Source.SampleRate, cfg.Iterator.SampleRate)
	}

	return cfg, nil
}

// SettingsConfigFromFile reads and parses a SettingsConfig from a JSON file.
func SettingsConfigFromFile(path string) (SettingsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultSettingsConfig(), fmt.Errorf("settings: read %q: %w", path, err)
	}
	return SettingsConfigFromJSON(data)
}
