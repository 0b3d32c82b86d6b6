package source

import (
	"context"

	"voicekit/core"
	sourceevents "voicekit/events/source"
	audiosource "voicekit/source"
)

// sourceService adapts a capture source to the pipeline IService contract.
// Init doubles as the permission check so a denied microphone fails the
// session before any handler starts.
type sourceService struct {
	src audiosource.Source
}

func (s *sourceService) Init(_ context.Context) error {
	return s.src.CheckPermission()
}

func (s *sourceService) Cleanup() error {
	return s.src.Stop()
}

func (s *sourceService) Reset() error {
	return nil
}

// SourceHandler sits at the head of the pipeline, pumping captured chunks in
// as SourceAudioInputEvents and translating pause/resume/stop into their
// lifecycle events so downstream handlers can apply policy.
type SourceHandler struct {
	core.BaseHandler
	src    audiosource.Source
	logger *core.Logger
}

func NewSourceHandler(src audiosource.Source, logger *core.Logger) *SourceHandler {
	if logger == nil {
		logger = core.GetLogger()
	}
	return &SourceHandler{
		BaseHandler: *core.NewBaseHandler(&sourceService{src: src}),
		src:         src,
		logger:      logger,
	}
}

func (h *SourceHandler) Start() error {
	if err := h.src.Start(); err != nil {
		return err
	}

	go func() {
		errCh := h.src.Errors()
		for {
			select {
			case chunk, ok := <-h.src.Chunks():
				if !ok {
					h.SendPacket(core.NewEventPacket(&sourceevents.SourceStoppedEvent{},
						core.EventRelayDestinationNextService, "SourceHandler"))
					return
				}
				h.SendPacket(core.NewEventPacket(&sourceevents.SourceAudioInputEvent{AudioChunk: chunk},
					core.EventRelayDestinationNextService, "SourceHandler"))
			case err, ok := <-errCh:
				if !ok {
					// Closed on stop; keep draining chunks until their close.
					errCh = nil
					continue
				}
				h.SendPacket(core.NewEventPacket(&sourceevents.SourceErrorEvent{Message: err.Error()},
					core.EventRelayDestinationNextService, "SourceHandler"))
			case <-h.Ctx.Done():
				return
			}
		}
	}()

	go func() {
		for {
			select {
			case packet := <-h.InputChan:
				if packet == nil {
					return
				}
				if err := h.HandleEvent(packet); err != nil {
					h.ReportCritical(err)
				}
			case <-h.Ctx.Done():
				return
			}
		}
	}()
	return nil
}

// HandleEvent forwards packets echoed back from the pipeline top. Echoed
// packets continue down the chain; re-sending them to the top would loop.
func (h *SourceHandler) HandleEvent(packet *core.EventPacket) error {
	packet.Destination = core.EventRelayDestinationNextService
	h.SendPacket(packet)
	return nil
}

// Pause suspends capture and announces it downstream.
func (h *SourceHandler) Pause() {
	h.src.Pause()
	h.SendPacket(core.NewEventPacket(&sourceevents.SourcePausedEvent{},
		core.EventRelayDestinationNextService, "SourceHandler"))
}

// Resume restarts capture and announces it downstream.
func (h *SourceHandler) Resume() {
	h.src.Resume()
	h.SendPacket(core.NewEventPacket(&sourceevents.SourceResumedEvent{},
		core.EventRelayDestinationNextService, "SourceHandler"))
}
