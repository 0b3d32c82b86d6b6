package vad

// Backend is the frame-level inference collaborator. Given one normalized
// frame it returns independent speech / non-speech scores in [0, 1], mutating
// the recurrent state it owns between consecutive calls. Implementations are
// not required to be safe for concurrent use; the iterator serializes calls.
type Backend interface {
	Infer(frame []float32) (isSpeech, notSpeech float32, err error)
	// ResetState restores the recurrent state to its initial value.
	ResetState()
	// Close frees backend resources. The backend must not be used afterward.
	Close() error
}
