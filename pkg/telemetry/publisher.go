package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pebbe/zmq4"

	customlog "github.com/pyroscout/controller/pkg/log"
)

// ErrPublisherClosed is returned when publishing after Close.
var ErrPublisherClosed = errors.New("telemetry publisher is closed")

// Topics published by the controller.
const (
	TopicLinkStatus = "link.status"
	TopicNavStatus  = "nav.status"
	TopicObstacle   = "nav.obstacle"
	TopicLidarScan  = "lidar.scan"
	TopicSensors    = "sensors.readings"
	TopicAlert      = "sensors.alert"
)

// frame is the wire envelope for every published message.
type frame struct {
	Type      string      `json:"type"`
	Timestamp float64     `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// Publisher broadcasts controller telemetry over a ZeroMQ PUB socket.
// External dashboards and recorders subscribe by topic.
type Publisher struct {
	ctx    *zmq4.Context
	socket *zmq4.Socket
	logger customlog.Logger

	mu     sync.Mutex
	closed bool
}

// NewPublisher creates a publisher bound to the given address
// (e.g. "tcp://*:5556").
func NewPublisher(bindAddress string, logger customlog.Logger) (*Publisher, error) {
	ctx, err := zmq4.NewContext()
	if err != nil {
		return nil, fmt.Errorf("failed to create ZeroMQ context: %w", err)
	}

	socket, err := ctx.NewSocket(zmq4.PUB)
	if err != nil {
		ctx.Term()
		return nil, fmt.Errorf("failed to create PUB socket: %w", err)
	}

	if err := socket.Bind(bindAddress); err != nil {
		socket.Close()
		ctx.Term()
		return nil, fmt.Errorf("failed to bind to %s: %w", bindAddress, err)
	}

	if err := socket.SetLinger(0); err != nil {
		socket.Close()
		ctx.Term()
		return nil, fmt.Errorf("failed to set linger option: %w", err)
	}

	logger.Infof("Telemetry publisher bound to %s", bindAddress)

	return &Publisher{
		ctx:    ctx,
		socket: socket,
		logger: logger,
	}, nil
}

// PublishJSON publishes a payload on the given topic, wrapped in the
// standard telemetry envelope.
func (p *Publisher) PublishJSON(topic, msgType string, payload interface{}) error {
	data, err := json.Marshal(frame{
		Type:      msgType,
		Timestamp: float64(time.Now().UnixNano()) / float64(time.Second),
		Data:      payload,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal telemetry payload: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPublisherClosed
	}

	if _, err := p.socket.Send(topic, zmq4.SNDMORE); err != nil {
		return fmt.Errorf("failed to send topic frame: %w", err)
	}
	if _, err := p.socket.SendBytes(data, 0); err != nil {
		return fmt.Errorf("failed to send payload frame: %w", err)
	}
	return nil
}

// Close shuts down the socket and context. Safe to call more than once.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true

	if err := p.socket.Close(); err != nil {
		p.logger.Warnf("Error closing telemetry socket: %v", err)
	}
	if err := p.ctx.Term(); err != nil {
		p.logger.Warnf("Error terminating ZeroMQ context: %v", err)
	}
	p.logger.Infof("Telemetry publisher closed")
}
