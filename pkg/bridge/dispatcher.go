package bridge

import (
	"sync"

	customlog "github.com/pyroscout/controller/pkg/log"
)

// Handler processes one parsed inbound message.
type Handler interface {
	HandleMessage(msg Message)
}

// HandlerFunc is a function type that implements Handler
type HandlerFunc func(msg Message)

// HandleMessage calls the function
func (f HandlerFunc) HandleMessage(msg Message) {
	f(msg)
}

// Dispatcher routes parsed inbound messages to registered handlers by
// message type. Handlers run on the dispatcher worker; anything long-running
// must hand off to its own goroutine or channel.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	any      []Handler
	logger   customlog.Logger
}

// NewDispatcher creates a new message dispatcher
func NewDispatcher(logger customlog.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string][]Handler),
		logger:   logger,
	}
}

// RegisterHandler adds a handler for a specific message type.
func (d *Dispatcher) RegisterHandler(messageType string, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.handlers[messageType] = append(d.handlers[messageType], handler)
	d.logger.Debugf("Registered handler for message type: %s", messageType)
}

// RegisterHandlerFunc adds a handler function for a specific message type.
func (d *Dispatcher) RegisterHandlerFunc(messageType string, handler func(Message)) {
	d.RegisterHandler(messageType, HandlerFunc(handler))
}

// RegisterAny adds a handler that receives every inbound message regardless
// of type.
func (d *Dispatcher) RegisterAny(handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.any = append(d.any, handler)
}

// RegisterAnyFunc adds a catch-all handler function.
func (d *Dispatcher) RegisterAnyFunc(handler func(Message)) {
	d.RegisterAny(HandlerFunc(handler))
}

// Dispatch routes a message to the registered handlers for its type.
func (d *Dispatcher) Dispatch(msg Message) {
	d.mu.RLock()
	typed := d.handlers[msg.Type]
	any := d.any
	d.mu.RUnlock()

	for _, h := range any {
		h.HandleMessage(msg)
	}
	if len(typed) == 0 && len(any) == 0 {
		d.logger.Debugf("No handler registered for message type: %s", msg.Type)
		return
	}
	for _, h := range typed {
		h.HandleMessage(msg)
	}
}
