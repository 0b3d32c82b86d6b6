package vad

import (
	"encoding/binary"
	"errors"
	"fmt"
	"reflect"
	"testing"
)

// scriptedBackend returns a fixed score per call, in order. Calls past the
// end of the script score 0.1 (confident non-speech).
type scriptedBackend struct {
	scores []float32
	errAt  map[int]error
	calls  int
	resets int
	closes int
}

func (b *scriptedBackend) Infer(frame []float32) (float32, float32, error) {
	i := b.calls
	b.calls++
	if err, ok := b.errAt[i]; ok {
		return 0, 0, err
	}
	s := float32(0.1)
	if i < len(b.scores) {
		s = b.scores[i]
	}
	return s, 1 - s, nil
}

func (b *scriptedBackend) ResetState() { b.resets++ }
func (b *scriptedBackend) Close() error {
	b.closes++
	return nil
}

const testFrameSamples = 8

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.FrameSamples = testFrameSamples
	cfg.PositiveSpeechThreshold = 0.5
	cfg.NegativeSpeechThreshold = 0.35
	cfg.MinSpeechFrames = 3
	cfg.RedemptionFrames = 2
	cfg.PreSpeechPadFrames = 2
	return cfg
}

func newTestIterator(t *testing.T, cfg Config, backend Backend) (*Iterator, *[]Event) {
	t.Helper()
	it, err := NewIterator(cfg)
	if err != nil {
		t.Fatalf("NewIterator: %v", err)
	}
	if err := it.SetBackend(backend); err != nil {
		t.Fatalf("SetBackend: %v", err)
	}
	var events []Event
	it.SetEventCallback(func(ev Event) {
		events = append(events, ev)
	})
	return it, &events
}

// framesPCM builds one frame of PCM per value, every sample in frame k
// holding values[k].
func framesPCM(values []int16, frameSamples int) []byte {
	buf := make([]byte, 0, len(values)*frameSamples*2)
	for _, v := range values {
		for i := 0; i < frameSamples; i++ {
			var b [2]byte
			binary.LittleEndian.PutUint16(b[:], uint16(v))
			buf = append(buf, b[0], b[1])
		}
	}
	return buf
}

func eventTypes(events []Event) []string {
	types := make([]string, len(events))
	for i, ev := range events {
		switch ev.(type) {
		case FrameProcessedEvent:
			types[i] = "frame"
		case SpeechStartEvent:
			types[i] = "start"
		case SpeechRealStartEvent:
			types[i] = "realStart"
		case SpeechEndEvent:
			types[i] = "end"
		case MisfireEvent:
			types[i] = "misfire"
		case ErrorEvent:
			types[i] = "error"
		}
	}
	return types
}

func lastEndEvent(t *testing.T, events []Event) SpeechEndEvent {
	t.Helper()
	for i := len(events) - 1; i >= 0; i-- {
		if end, ok := events[i].(SpeechEndEvent); ok {
			return end
		}
	}
	t.Fatal("no SpeechEndEvent emitted")
	return SpeechEndEvent{}
}

func TestNoSpeechStaysIdle(t *testing.T) {
	backend := &scriptedBackend{scores: []float32{0.1, 0.3, 0.2, 0.34, 0.1}}
	it, events := newTestIterator(t, testConfig(), backend)

	if err := it.ProcessAudioData(framesPCM(make([]int16, 5), testFrameSamples)); err != nil {
		t.Fatalf("ProcessAudioData: %v", err)
	}

	want := []string{"frame", "frame", "frame", "frame", "frame"}
	if got := eventTypes(*events); !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

// Eight frames scored [0.1 0.1 0.6 0.6 0.6 0.1 0.1 0.1] with thresholds
// (0.5, 0.35), minSpeechFrames=3, redemptionFrames=2: start fires on frame 3,
// realStart on frame 5 and end on frame 8: the redemption count reaches 2 on
// frame 7 and exceeds it on frame 8, which is the documented end convention.
func TestConfirmedUtteranceLifecycle(t *testing.T) {
	backend := &scriptedBackend{scores: []float32{0.1, 0.1, 0.6, 0.6, 0.6, 0.1, 0.1, 0.1}}
	it, events := newTestIterator(t, testConfig(), backend)

	values := []int16{100, 200, 300, 400, 500, 600, 700, 800}
	if err := it.ProcessAudioData(framesPCM(values, testFrameSamples)); err != nil {
		t.Fatalf("ProcessAudioData: %v", err)
	}

	want := []string{
		"frame", "frame",
		"frame", "start",
		"frame", "frame", "realStart",
		"frame", "frame",
		"frame", "end",
	}
	if got := eventTypes(*events); !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}

	// Pad (frames 1-2) plus frames 3-8 = the whole stream.
	end := lastEndEvent(t, *events)
	if len(end.Audio) != 8*testFrameSamples {
		t.Errorf("end audio length = %d, want %d", len(end.Audio), 8*testFrameSamples)
	}
	if got, want := end.Audio[0], float32(100)/32768.0; got != want {
		t.Errorf("end audio starts with %v, want pad frame sample %v", got, want)
	}
}

// A trigger that never reaches minSpeechFrames before redemption runs out is
// a misfire: exactly one start, one misfire, no realStart, no end.
func TestMisfire(t *testing.T) {
	cfg := testConfig()
	cfg.PreSpeechPadFrames = 0
	backend := &scriptedBackend{scores: []float32{0.6, 0.1, 0.1, 0.1}}
	it, events := newTestIterator(t, cfg, backend)

	if err := it.ProcessAudioData(framesPCM(make([]int16, 4), testFrameSamples)); err != nil {
		t.Fatalf("ProcessAudioData: %v", err)
	}

	want := []string{"frame", "start", "frame", "frame", "frame", "misfire"}
	if got := eventTypes(*events); !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestHysteresisDeadZoneFreezesCounters(t *testing.T) {
	// Dead-zone frames (0.4) neither redeem nor confirm; the utterance
	// survives arbitrarily many of them and still ends 3 confident
	// non-speech frames after the last speech frame.
	backend := &scriptedBackend{scores: []float32{0.6, 0.6, 0.6, 0.4, 0.4, 0.4, 0.4, 0.1, 0.1, 0.1}}
	it, events := newTestIterator(t, testConfig(), backend)

	if err := it.ProcessAudioData(framesPCM(make([]int16, 10), testFrameSamples)); err != nil {
		t.Fatalf("ProcessAudioData: %v", err)
	}

	got := eventTypes(*events)
	if got[len(got)-1] != "end" {
		t.Fatalf("last event = %q, want end; full sequence %v", got[len(got)-1], got)
	}
	for _, typ := range got {
		if typ == "misfire" {
			t.Fatalf("unexpected misfire in %v", got)
		}
	}
}

func TestMinSpeechFramesOneConfirmsImmediately(t *testing.T) {
	cfg := testConfig()
	cfg.MinSpeechFrames = 1
	backend := &scriptedBackend{scores: []float32{0.9}}
	it, events := newTestIterator(t, cfg, backend)

	if err := it.ProcessAudioData(framesPCM(make([]int16, 1), testFrameSamples)); err != nil {
		t.Fatalf("ProcessAudioData: %v", err)
	}

	want := []string{"frame", "start", "realStart"}
	if got := eventTypes(*events); !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

// ForceEndSpeech always yields an end, never a misfire, even before the
// onset was confirmed.
func TestForceEndSpeech(t *testing.T) {
	cfg := testConfig()
	cfg.PreSpeechPadFrames = 0
	backend := &scriptedBackend{scores: []float32{0.6, 0.1}}
	it, events := newTestIterator(t, cfg, backend)

	if err := it.ProcessAudioData(framesPCM([]int16{100, 200}, testFrameSamples)); err != nil {
		t.Fatalf("ProcessAudioData: %v", err)
	}
	it.ForceEndSpeech()

	want := []string{"frame", "start", "frame", "end"}
	if got := eventTypes(*events); !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
	end := lastEndEvent(t, *events)
	if len(end.Audio) != 2*testFrameSamples {
		t.Errorf("end audio length = %d, want %d", len(end.Audio), 2*testFrameSamples)
	}

	// Idle: no-op.
	before := len(*events)
	it.ForceEndSpeech()
	if len(*events) != before {
		t.Errorf("ForceEndSpeech while idle emitted %d events", len(*events)-before)
	}
}

func TestResetDropsStateWithoutEvents(t *testing.T) {
	backend := &scriptedBackend{scores: []float32{0.1, 0.1, 0.6, 0.9}}
	it, events := newTestIterator(t, testConfig(), backend)

	// Two pad frames and a trigger, then reset mid-utterance.
	if err := it.ProcessAudioData(framesPCM([]int16{100, 200, 300}, testFrameSamples)); err != nil {
		t.Fatalf("ProcessAudioData: %v", err)
	}
	before := len(*events)
	it.Reset()
	if len(*events) != before {
		t.Error("Reset emitted events")
	}
	if backend.resets != 1 {
		t.Errorf("backend resets = %d, want 1", backend.resets)
	}

	// The pad buffer is empty after reset: a new trigger starts an
	// utterance containing only the trigger frame.
	if err := it.ProcessAudioData(framesPCM([]int16{400}, testFrameSamples)); err != nil {
		t.Fatalf("ProcessAudioData: %v", err)
	}
	it.ForceEndSpeech()
	end := lastEndEvent(t, *events)
	if len(end.Audio) != testFrameSamples {
		t.Errorf("post-reset utterance length = %d, want %d", len(end.Audio), testFrameSamples)
	}
}

func TestPadBufferBounded(t *testing.T) {
	cfg := testConfig()
	cfg.PreSpeechPadFrames = 2
	scores := make([]float32, 7)
	for i := range scores {
		scores[i] = 0.1
	}
	scores[6] = 0.9
	backend := &scriptedBackend{scores: scores}
	it, events := newTestIterator(t, cfg, backend)

	values := []int16{100, 200, 300, 400, 500, 600, 700}
	if err := it.ProcessAudioData(framesPCM(values, testFrameSamples)); err != nil {
		t.Fatalf("ProcessAudioData: %v", err)
	}
	it.ForceEndSpeech()

	// Only the last two idle frames (500, 600) pad the trigger frame (700).
	end := lastEndEvent(t, *events)
	if len(end.Audio) != 3*testFrameSamples {
		t.Fatalf("end audio length = %d, want %d", len(end.Audio), 3*testFrameSamples)
	}
	if got, want := end.Audio[0], float32(500)/32768.0; got != want {
		t.Errorf("pad starts with %v, want %v", got, want)
	}
}

// The same stream must produce identical events no matter how it is chunked,
// including chunks that split a sample between its two bytes and chunks
// larger than the internal ring.
func TestChunkBoundaryIndependence(t *testing.T) {
	scores := []float32{0.1, 0.6, 0.6, 0.6, 0.1, 0.1, 0.1, 0.1, 0.2, 0.1}
	values := []int16{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}
	stream := framesPCM(values, testFrameSamples)

	run := func(chunkSize int) []Event {
		backend := &scriptedBackend{scores: scores}
		it, events := newTestIterator(t, testConfig(), backend)
		for off := 0; off < len(stream); off += chunkSize {
			end := min(off+chunkSize, len(stream))
			if err := it.ProcessAudioData(stream[off:end]); err != nil {
				t.Fatalf("ProcessAudioData: %v", err)
			}
		}
		return *events
	}

	aligned := run(testFrameSamples * 2)
	for _, chunkSize := range []int{1, 3, 7, len(stream)} {
		t.Run(fmt.Sprintf("chunk=%d", chunkSize), func(t *testing.T) {
			if got := run(chunkSize); !reflect.DeepEqual(got, aligned) {
				t.Errorf("chunking changed events:\n got %v\nwant %v", eventTypes(got), eventTypes(aligned))
			}
		})
	}
}

// Inference failures are per-frame and recoverable: an error event replaces
// the frame's output and processing continues.
func TestInferenceErrorIsRecoverable(t *testing.T) {
	backend := &scriptedBackend{
		scores: []float32{0.1, 0.1, 0.1},
		errAt:  map[int]error{1: errors.New("backend exploded")},
	}
	it, events := newTestIterator(t, testConfig(), backend)

	if err := it.ProcessAudioData(framesPCM(make([]int16, 3), testFrameSamples)); err != nil {
		t.Fatalf("ProcessAudioData: %v", err)
	}

	want := []string{"frame", "error", "frame"}
	if got := eventTypes(*events); !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestLifecycleErrors(t *testing.T) {
	it, err := NewIterator(testConfig())
	if err != nil {
		t.Fatalf("NewIterator: %v", err)
	}
	if err := it.ProcessAudioData([]byte{0, 0}); err == nil {
		t.Error("ProcessAudioData without a backend should fail")
	}

	backend := &scriptedBackend{}
	if err := it.SetBackend(backend); err != nil {
		t.Fatalf("SetBackend: %v", err)
	}
	if err := it.SetBackend(backend); err == nil {
		t.Error("second SetBackend should fail")
	}

	if err := it.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if backend.closes != 1 {
		t.Errorf("backend closes = %d, want 1", backend.closes)
	}
	if err := it.ProcessAudioData([]byte{0, 0}); err == nil {
		t.Error("ProcessAudioData after Release should fail")
	}
	// Idempotent.
	if err := it.Release(); err != nil {
		t.Errorf("second Release: %v", err)
	}
	if backend.closes != 1 {
		t.Errorf("backend closed %d times", backend.closes)
	}
}
