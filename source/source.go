// Package source captures microphone audio and exposes it as a stream of
// raw PCM chunks with start/pause/resume/stop controls. No framing or
// analysis happens here; the VAD iterator owns all of that.
package source

import "voicekit/core"

// Source is the audio capture collaborator.
type Source interface {
	// CheckPermission probes whether an input device can be opened.
	CheckPermission() error
	// Start opens the device and begins delivering chunks.
	Start() error
	// Pause suspends chunk delivery without closing the device.
	Pause()
	// Resume restarts chunk delivery after a pause.
	Resume()
	// Stop closes the device and the chunk channel.
	Stop() error
	// Chunks is the delivery channel. Closed by Stop.
	Chunks() <-chan core.AudioChunk
	// Errors delivers capture failures that do not stop the stream.
	// Closed by Stop.
	Errors() <-chan error
}
