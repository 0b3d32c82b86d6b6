package core

import (
	"context"
)

type IService interface {
	Init(ctx context.Context) error
	Cleanup() error
	Reset() error
}

type IHandler interface {
	Initialize(
		inputChan <-chan *EventPacket,
		outputNextChan chan<- *EventPacket,
		outputTopChan chan<- *EventPacket,
		ctx context.Context,
	) error
	Start() error // Starts the handler's event loop. Must not block.
	HandleEvent(packet *EventPacket) error

	Cleanup() error // Cleans up resources used by the handler's service.
	Reset() error   // Resets the handler to its initial state.
}

// BaseHandler wires a service into the pipeline and provides packet routing.
// Concrete handlers embed it and implement HandleEvent plus, when they need a
// custom loop, Start.
type BaseHandler struct {
	Service        IService
	Ctx            context.Context
	InputChan      <-chan *EventPacket
	outputNextChan chan<- *EventPacket
	outputTopChan  chan<- *EventPacket
}

func (h *BaseHandler) Initialize(
	inputChan <-chan *EventPacket,
	outputNextChan chan<- *EventPacket,
	outputTopChan chan<- *EventPacket,
	ctx context.Context,
) error {
	h.InputChan = inputChan
	h.outputNextChan = outputNextChan
	h.outputTopChan = outputTopChan
	h.Ctx = ctx
	if h.Service != nil {
		return h.Service.Init(ctx)
	}
	return nil
}

func (h *BaseHandler) Cleanup() error {
	if h.Service != nil {
		return h.Service.Cleanup()
	}
	return nil
}

func (h *BaseHandler) Reset() error {
	if h.Service != nil {
		return h.Service.Reset()
	}
	return nil
}

func (h *BaseHandler) SendPacket(packet *EventPacket) {
	switch packet.Destination {
	case EventRelayDestinationNextService:
		h.outputNextChan <- packet
	case EventRelayDestinationTopService:
		h.outputTopChan <- packet
	default:
		// Default to sending to the next handler if destination is unrecognized.
		h.outputNextChan <- packet
	}
}

// ReportCritical surfaces a non-recoverable service error to the runner.
func (h *BaseHandler) ReportCritical(err error) {
	h.outputTopChan <- NewEventPacket(
		&CriticalErrorEvent{Error: err.Error()},
		EventRelayDestinationTopService,
		"BaseHandler",
	)
}

func NewBaseHandler(service IService) *BaseHandler {
	return &BaseHandler{
		Service: service,
	}
}
