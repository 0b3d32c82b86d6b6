package source

import "voicekit/core"

// SourceAudioInputEvent carries one captured audio chunk from the audio
// source into the pipeline. Chunk boundaries are arbitrary.
type SourceAudioInputEvent struct {
	AudioChunk core.AudioChunk
}

func (e *SourceAudioInputEvent) GetId() string {
	return "source.audio.chunk"
}

// SourcePausedEvent signals that capture was paused mid-session.
type SourcePausedEvent struct{}

func (e *SourcePausedEvent) GetId() string {
	return "source.paused"
}

// SourceResumedEvent signals that capture resumed after a pause.
type SourceResumedEvent struct{}

func (e *SourceResumedEvent) GetId() string {
	return "source.resumed"
}

// SourceStoppedEvent signals that capture stopped for good.
type SourceStoppedEvent struct{}

func (e *SourceStoppedEvent) GetId() string {
	return "source.stopped"
}

// SourceErrorEvent forwards a capture-layer failure (device or permission)
// into the pipeline.
type SourceErrorEvent struct {
	Message string
}

func (e *SourceErrorEvent) GetId() string {
	return "source.error"
}
