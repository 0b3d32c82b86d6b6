package vad

import (
	"context"
	"fmt"

	"voicekit/core"
	sourceevents "voicekit/events/source"
	vadevents "voicekit/events/vad"
	"voicekit/utils/audio"
	vaditer "voicekit/vad"
)

// iteratorService adapts the iterator's lifecycle to the pipeline's IService
// contract.
type iteratorService struct {
	iterator  *vaditer.Iterator
	modelPath string
}

func (s *iteratorService) Init(_ context.Context) error {
	if s.modelPath == "" {
		return nil // backend injected by the caller
	}
	return s.iterator.InitModel(s.modelPath)
}

func (s *iteratorService) Cleanup() error {
	return s.iterator.Release()
}

func (s *iteratorService) Reset() error {
	s.iterator.Reset()
	return nil
}

// VADHandler wraps one iterator per listening session. It feeds source audio
// into the iterator (decoding µ-law/A-law input first), applies the pause
// policy, and forwards every iterator event downstream as a packet. All of
// it runs synchronously because the iterator is single-threaded.
type VADHandler struct {
	core.BaseHandler
	iterator *vaditer.Iterator
	config   VADConfig
	logger   *core.Logger
	trace    core.LogWriter
}

func NewVADHandler(iterator *vaditer.Iterator, config VADConfig, logger *core.Logger) *VADHandler {
	if logger == nil {
		logger = core.GetLogger()
	}
	return &VADHandler{
		BaseHandler: *core.NewBaseHandler(&iteratorService{
			iterator:  iterator,
			modelPath: config.ModelPath,
		}),
		iterator: iterator,
		config:   config,
		logger:   logger,
	}
}

// SetTraceWriter attaches an optional per-event trace sink (JSONL). Writes
// happen on the audio path, once per emitted event.
func (h *VADHandler) SetTraceWriter(w core.LogWriter) {
	h.trace = w
}

func (h *VADHandler) Initialize(
	inputChan <-chan *core.EventPacket,
	outputNextChan chan<- *core.EventPacket,
	outputTopChan chan<- *core.EventPacket,
	ctx context.Context,
) error {
	h.iterator.SetEventCallback(h.onIteratorEvent)
	return h.BaseHandler.Initialize(inputChan, outputNextChan, outputTopChan, ctx)
}

func (h *VADHandler) Start() error {
	go func() {
		for {
			select {
			case packet := <-h.InputChan:
				if packet == nil {
					return
				}
				if err := h.HandleEvent(packet); err != nil {
					h.logger.With(map[string]any{"error": err}).Error("VAD handler failed")
					h.ReportCritical(err)
					return
				}
			case <-h.Ctx.Done():
				return
			}
		}
	}()
	return nil
}

func (h *VADHandler) HandleEvent(packet *core.EventPacket) error {
	switch event := packet.Event.(type) {
	case *sourceevents.SourceAudioInputEvent:
		pcm, err := audio.ConvertToMonoPCM(event.AudioChunk, h.iterator.Config().SampleRate)
		if err != nil {
			// Bad chunk, not a broken session: report and keep listening.
			h.logger.With(map[string]any{"error": err}).Warn("dropping audio chunk")
			h.SendPacket(core.NewEventPacket(&vadevents.VadErrorEvent{
				Message: fmt.Sprintf("audio conversion failed: %v", err),
			}, core.EventRelayDestinationNextService, "VADHandler"))
			break
		}
		if err := h.iterator.ProcessAudioData(pcm); err != nil {
			return fmt.Errorf("process audio: %w", err)
		}
	case *sourceevents.SourcePausedEvent:
		if h.iterator.Config().SubmitUserSpeechOnPause {
			h.iterator.ForceEndSpeech()
		} else {
			h.iterator.Reset()
		}
	case *sourceevents.SourceStoppedEvent:
		// Flush whatever is in flight; the session is over.
		h.iterator.ForceEndSpeech()
	case *sourceevents.SourceErrorEvent:
		h.SendPacket(core.NewEventPacket(&vadevents.VadErrorEvent{
			Message: event.Message,
		}, core.EventRelayDestinationNextService, "VADHandler"))
	}
	h.SendPacket(packet)
	return nil
}

// onIteratorEvent maps each iterator event to its pipeline counterpart,
// preserving emission order.
func (h *VADHandler) onIteratorEvent(ev vaditer.Event) {
	var out core.IEvent
	switch e := ev.(type) {
	case vaditer.SpeechStartEvent:
		out = &vadevents.VadSpeechStartEvent{}
	case vaditer.SpeechRealStartEvent:
		out = &vadevents.VadSpeechRealStartEvent{}
	case vaditer.FrameProcessedEvent:
		h.traceEvent("vad.frame.processed", map[string]any{
			"is_speech":  e.IsSpeech,
			"not_speech": e.NotSpeech,
		})
		if !h.config.EmitFrameEvents {
			return
		}
		out = &vadevents.VadFrameProcessedEvent{IsSpeech: e.IsSpeech, NotSpeech: e.NotSpeech}
	case vaditer.SpeechEndEvent:
		out = &vadevents.VadSpeechEndEvent{
			Audio:      e.Audio,
			SampleRate: h.iterator.Config().SampleRate,
		}
	case vaditer.MisfireEvent:
		out = &vadevents.VadMisfireEvent{}
	case vaditer.ErrorEvent:
		h.logger.With(map[string]any{"message": e.Message}).Warn("VAD inference error")
		out = &vadevents.VadErrorEvent{Message: e.Message}
	default:
		return
	}
	if _, isFrame := ev.(vaditer.FrameProcessedEvent); !isFrame {
		h.traceEvent(out.GetId(), nil)
	}
	h.SendPacket(core.NewEventPacket(out, core.EventRelayDestinationNextService, "VADHandler"))
}

func (h *VADHandler) traceEvent(id string, attrs map[string]any) {
	if h.trace != nil {
		h.trace.Write("TRACE", id, attrs)
	}
}
