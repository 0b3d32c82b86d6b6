package console

import (
	"fmt"
	"os"
	"path/filepath"

	"voicekit/core"
	vadevents "voicekit/events/vad"
	"voicekit/utils/audio"
)

// ConsoleHandler is a demo presentation sink: it logs speech lifecycle
// events and, when configured, dumps each finished utterance to a WAV file.
type ConsoleHandler struct {
	core.BaseHandler
	logger       *core.Logger
	utteranceDir string
	utterances   int
}

func NewConsoleHandler(logger *core.Logger, utteranceDir string) *ConsoleHandler {
	if logger == nil {
		logger = core.GetLogger()
	}
	return &ConsoleHandler{
		BaseHandler:  *core.NewBaseHandler(nil),
		logger:       logger,
		utteranceDir: utteranceDir,
	}
}

func (h *ConsoleHandler) Start() error {
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

func (h *ConsoleHandler) HandleEvent(packet *core.EventPacket) error {
	switch event := packet.Event.(type) {
	case *vadevents.VadSpeechStartEvent:
		h.logger.Info("speech started")
	case *vadevents.VadSpeechRealStartEvent:
		h.logger.Info("speech confirmed")
	case *vadevents.VadMisfireEvent:
		h.logger.Info("speech misfire, discarded")
	case *vadevents.VadErrorEvent:
		h.logger.With(map[string]any{"message": event.Message}).Warn("VAD error")
	case *vadevents.VadSpeechEndEvent:
		seconds := float64(len(event.Audio)) / float64(event.SampleRate)
		h.logger.With(map[string]any{"seconds": fmt.Sprintf("%.2f", seconds)}).Info("speech ended")
		if h.utteranceDir != "" {
			if err := h.dumpUtterance(event); err != nil {
				h.logger.With(map[string]any{"error": err}).Warn("utterance dump failed")
			}
		}
	}
	h.SendPacket(packet)
	return nil
}

func (h *ConsoleHandler) dumpUtterance(event *vadevents.VadSpeechEndEvent) error {
	if err := os.MkdirAll(h.utteranceDir, 0755); err != nil {
		return err
	}
	pcm := audio.Float32ToPCMBytes(event.Audio)
	wav, err := audio.PCMBytesToWavBytes(pcm, 1, event.SampleRate)
	if err != nil {
		return err
	}
	h.utterances++
	path := filepath.Join(h.utteranceDir, fmt.Sprintf("utterance-%03d.wav", h.utterances))
	return os.WriteFile(path, wav, 0644)
}
