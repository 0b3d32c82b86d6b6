package runner

import (
	"context"

	"voicekit/core"
)

const channelDepth = 100

// Runner wires a handler chain together with buffered channels and drives
// its lifecycle. Packets flow handler-to-handler in order; top-destined
// packets come back to the runner, which either reacts (critical errors,
// session end) or echoes them to the head of the chain.
type Runner struct {
	Handlers       []core.IHandler
	logger         *core.Logger
	ctx            context.Context
	cancel         context.CancelFunc
	topOutputChan  chan *core.EventPacket
	lastOutputChan chan *core.EventPacket
	doneChan       chan struct{}
	doneClosed     bool // owned by the listen goroutine
}

func NewRunner(handlers []core.IHandler, logger *core.Logger) *Runner {
	if logger == nil {
		logger = core.GetLogger()
	}
	return &Runner{
		Handlers: handlers,
		logger:   logger,
	}
}

func (r *Runner) Start(parent context.Context) error {
	if len(r.Handlers) == 0 {
		return nil
	}

	r.ctx, r.cancel = context.WithCancel(parent)
	r.topOutputChan = make(chan *core.EventPacket, channelDepth)
	r.lastOutputChan = make(chan *core.EventPacket, channelDepth)
	r.doneChan = make(chan struct{})
	r.doneClosed = false

	// Create channels for each handler's input
	inputChans := make([]chan *core.EventPacket, len(r.Handlers))
	for i := range inputChans {
		inputChans[i] = make(chan *core.EventPacket, channelDepth)
	}

	// Initialize handlers with proper channel connections
	for i, handler := range r.Handlers {
		var outputNextChan chan<- *core.EventPacket

		if i < len(r.Handlers)-1 {
			// Not the last handler - output goes to next handler's input
			outputNextChan = inputChans[i+1]
		} else {
			// Last handler - output goes to our capture channel
			outputNextChan = r.lastOutputChan
		}

		err := handler.Initialize(
			inputChans[i],
			outputNextChan,
			r.topOutputChan,
			r.ctx,
		)
		if err != nil {
			r.cancel()
			return err
		}

		if err := handler.Start(); err != nil {
			r.cancel()
			return err
		}
	}

	go r.listenToOutputs()

	return nil
}

// Done is closed when the pipeline decided to end the session itself
// (critical error or EndSessionEvent).
func (r *Runner) Done() <-chan struct{} {
	return r.doneChan
}

func (r *Runner) listenToOutputs() {
	for {
		select {
		case packet := <-r.lastOutputChan:
			// Packets falling off the end of the chain are spent.
			_ = packet
		case packet := <-r.topOutputChan:
			r.processTopOutput(packet)
		case <-r.ctx.Done():
			return
		}
	}
}

// finish closes Done exactly once; several handlers can report critical
// errors before the cancellation is observed.
func (r *Runner) finish() {
	if !r.doneClosed {
		r.doneClosed = true
		close(r.doneChan)
	}
	r.cancel()
}

func (r *Runner) processTopOutput(packet *core.EventPacket) {
	switch event := packet.Event.(type) {
	case *core.CriticalErrorEvent:
		r.logger.With(map[string]any{"error": event.Error, "relayer": packet.Relayer}).Error("pipeline critical error")
		r.finish()
	case *core.EndSessionEvent:
		r.logger.With(map[string]any{"reason": event.Reason}).Info("session ended by pipeline")
		r.finish()
	default:
		// Echo back to the first handler so every handler can observe it.
		r.Handlers[0].HandleEvent(packet)
	}
}

func (r *Runner) Stop() error {
	if r.cancel != nil {
		r.cancel()
	}

	var errs []error
	for _, handler := range r.Handlers {
		if err := handler.Cleanup(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

func (r *Runner) Reset() error {
	var errs []error
	for _, handler := range r.Handlers {
		if err := handler.Reset(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
