package vad

// Pipeline events mirroring the iterator's lifecycle events, one per emitted
// event and in the same order.

type VadSpeechStartEvent struct{}

func (e *VadSpeechStartEvent) GetId() string {
	return "vad.user_speech.started"
}

type VadSpeechRealStartEvent struct{}

func (e *VadSpeechRealStartEvent) GetId() string {
	return "vad.user_speech.confirmed"
}

type VadFrameProcessedEvent struct {
	IsSpeech  float32
	NotSpeech float32
}

func (e *VadFrameProcessedEvent) GetId() string {
	return "vad.frame.processed"
}

// VadSpeechEndEvent carries the finished utterance as normalized samples,
// pre-speech pad included.
type VadSpeechEndEvent struct {
	Audio      []float32
	SampleRate int
}

func (e *VadSpeechEndEvent) GetId() string {
	return "vad.user_speech.ended"
}

type VadMisfireEvent struct{}

func (e *VadMisfireEvent) GetId() string {
	return "vad.user_speech.misfire"
}

type VadErrorEvent struct {
	Message string
}

func (e *VadErrorEvent) GetId() string {
	return "vad.error"
}
