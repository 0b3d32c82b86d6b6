package source

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"

	"voicekit/core"
	"voicekit/utils/audio"
)

// paInitOnce guards process-wide PortAudio initialization.
var paInitOnce sync.Once

// Config holds microphone capture settings.
type Config struct {
	SampleRate      int `json:"sample_rate"`
	FramesPerBuffer int `json:"frames_per_buffer"`
	// ChunkQueue is the delivery channel depth. When the consumer lags this
	// far behind, the oldest chunks are dropped.
	ChunkQueue int `json:"chunk_queue"`
}

// DefaultConfig returns capture settings matching the VAD defaults: 16 kHz
// mono with one 512-sample frame per buffer.
func DefaultConfig() Config {
	return Config{
		SampleRate:      16000,
		FramesPerBuffer: 512,
		ChunkQueue:      32,
	}
}

// MicSource captures mono 16-bit PCM from the default input device.
type MicSource struct {
	cfg    Config
	logger *core.Logger

	chunks chan core.AudioChunk
	errs   chan error
	stream *portaudio.Stream
	buf    []int16

	paused   atomic.Bool
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewMicSource initializes PortAudio (once per process) and prepares a
// capture source. The device is not opened until Start.
func NewMicSource(cfg Config, logger *core.Logger) (*MicSource, error) {
	if cfg.SampleRate <= 0 || cfg.FramesPerBuffer <= 0 {
		return nil, fmt.Errorf("source: invalid capture config: rate %d, frames %d", cfg.SampleRate, cfg.FramesPerBuffer)
	}
	if cfg.ChunkQueue <= 0 {
		cfg.ChunkQueue = DefaultConfig().ChunkQueue
	}
	var initErr error
	paInitOnce.Do(func() {
		initErr = portaudio.Initialize()
	})
	if initErr != nil {
		return nil, fmt.Errorf("source: portaudio init: %w", initErr)
	}
	if logger == nil {
		logger = core.GetLogger()
	}
	return &MicSource{
		cfg:    cfg,
		logger: logger,
		chunks: make(chan core.AudioChunk, cfg.ChunkQueue),
		errs:   make(chan error, 4),
		buf:    make([]int16, cfg.FramesPerBuffer),
		done:   make(chan struct{}),
	}, nil
}

// CheckPermission opens and immediately closes the default input stream.
// On platforms that gate microphone access this is where the denial shows up.
func (m *MicSource) CheckPermission() error {
	probe := make([]int16, 64)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(m.cfg.SampleRate), len(probe), probe)
	if err != nil {
		return fmt.Errorf("source: microphone unavailable: %w", err)
	}
	return stream.Close()
}

// Start opens the default input device and begins the capture loop.
func (m *MicSource) Start() error {
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(m.cfg.SampleRate), len(m.buf), m.buf)
	if err != nil {
		return fmt.Errorf("source: open stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("source: start stream: %w", err)
	}
	m.stream = stream

	m.wg.Add(1)
	go m.captureLoop()
	return nil
}

func (m *MicSource) captureLoop() {
	defer m.wg.Done()
	for {
		select {
		case <-m.done:
			return
		default:
		}

		if err := m.stream.Read(); err != nil {
			select {
			case <-m.done:
				return
			default:
			}
			m.logger.With(map[string]any{"error": err}).Warn("microphone read failed")
			// Surface the failure; drop it if nobody is draining errors.
			select {
			case m.errs <- err:
			default:
			}
			continue
		}
		if m.paused.Load() {
			// Keep draining the device so resume starts with fresh audio.
			continue
		}

		data := audio.Int16ToPCMBytes(m.buf)
		chunk := core.AudioChunk{
			Data:       &data,
			SampleRate: m.cfg.SampleRate,
			Channels:   1,
			Format:     core.PCM,
			Timestamp:  time.Now(),
		}
		select {
		case m.chunks <- chunk:
		default:
			// Consumer is behind; drop the oldest chunk to stay real-time.
			select {
			case <-m.chunks:
			default:
			}
			select {
			case m.chunks <- chunk:
			default:
			}
		}
	}
}

func (m *MicSource) Pause() {
	m.paused.Store(true)
}

func (m *MicSource) Resume() {
	m.paused.Store(false)
}

// Stop ends the capture loop, closes the device and the chunk channel.
func (m *MicSource) Stop() error {
	var err error
	m.stopOnce.Do(func() {
		close(m.done)
		if m.stream != nil {
			m.stream.Abort()
			m.wg.Wait()
			err = m.stream.Close()
		} else {
			m.wg.Wait()
		}
		close(m.chunks)
		close(m.errs)
	})
	return err
}

func (m *MicSource) Chunks() <-chan core.AudioChunk {
	return m.chunks
}

func (m *MicSource) Errors() <-chan error {
	return m.errs
}
