package vad

// Event is the closed set of notifications the iterator emits. Events are
// delivered synchronously through the registered callback, in the exact order
// the per-frame algorithm produces them.
type Event interface {
	vadEvent()
}

// SpeechStartEvent marks a candidate speech onset. It may later be retracted
// by a MisfireEvent if the onset never reaches MinSpeechFrames.
type SpeechStartEvent struct{}

// SpeechRealStartEvent confirms the onset: the utterance has accumulated
// MinSpeechFrames speech-positive frames and is no longer a misfire candidate.
type SpeechRealStartEvent struct{}

// FrameProcessedEvent carries the raw per-frame probabilities. Emitted for
// every completed frame regardless of decision state. The Frame slice is
// owned by the receiver.
type FrameProcessedEvent struct {
	IsSpeech  float32
	NotSpeech float32
	Frame     []float32
}

// SpeechEndEvent carries the full normalized audio of a finished utterance,
// pre-speech pad included.
type SpeechEndEvent struct {
	Audio []float32
}

// MisfireEvent retracts a candidate onset that never reached MinSpeechFrames;
// the buffered audio is discarded.
type MisfireEvent struct{}

// ErrorEvent reports a recoverable per-frame failure. Processing continues
// with subsequent frames.
type ErrorEvent struct {
	Message string
}

func (SpeechStartEvent) vadEvent()     {}
func (SpeechRealStartEvent) vadEvent() {}
func (FrameProcessedEvent) vadEvent()  {}
func (SpeechEndEvent) vadEvent()       {}
func (MisfireEvent) vadEvent()         {}
func (ErrorEvent) vadEvent()           {}

// EventCallback receives every emitted Event, preserving emission order.
type EventCallback func(Event)
