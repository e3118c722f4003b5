package bridge

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/pyroscout/controller/pkg/config"
	customlog "github.com/pyroscout/controller/pkg/log"
)

// Common errors
var (
	ErrNotConnected     = errors.New("not connected to bridge")
	ErrAlreadyConnected = errors.New("already connected to bridge")
)

const (
	connectTimeout    = 5 * time.Second
	readTimeout       = 500 * time.Millisecond
	writeTimeout      = 5 * time.Second
	queueTimeout      = 500 * time.Millisecond
	readBufferSize    = 8192
	inboundCapacity   = 100
	maxReconnectDelay = 30 * time.Second
)

// LinkState describes the channel's connection lifecycle.
type LinkState int

const (
	StateDisconnected LinkState = iota
	StateConnecting
	StateConnected
	StateReconnectScheduled
)

func (s LinkState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnectScheduled:
		return "reconnect_scheduled"
	default:
		return "unknown"
	}
}

// StatusFunc receives link state transitions with a human-readable reason.
type StatusFunc func(connected bool, reason string)

// Channel is the framed, queued, auto-reconnecting message link to the
// onboard bridge device. Messages are newline-delimited JSON objects over a
// TCP stream. Each active connection runs three workers: a receiver, a
// dispatcher and a sender, all observing a shared stop signal for
// cooperative shutdown.
type Channel struct {
	cfg        config.ConnectionConfig
	dispatcher *Dispatcher
	logger     customlog.Logger

	mu             sync.Mutex
	state          LinkState
	conn           net.Conn
	running        bool
	attempts       int
	lastHeartbeat  time.Time
	reconnectTimer *time.Timer
	stop           chan struct{}
	statusSubs     []StatusFunc

	wg sync.WaitGroup

	inbound  *lossyQueue
	outbound *unboundedQueue
}

// NewChannel creates a channel for the given connection settings. Connect
// must be called before any message can be sent.
func NewChannel(cfg config.ConnectionConfig, dispatcher *Dispatcher, logger customlog.Logger) *Channel {
	return &Channel{
		cfg:        cfg,
		dispatcher: dispatcher,
		logger:     logger,
		state:      StateDisconnected,
		inbound:    newLossyQueue(inboundCapacity),
		outbound:   newUnboundedQueue(),
	}
}

// OnStatus registers a subscriber for connection status transitions.
func (c *Channel) OnStatus(f StatusFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statusSubs = append(c.statusSubs, f)
}

// Connect opens the TCP link to the bridge and starts the communication
// workers. On failure a reconnect is scheduled when auto-reconnect is
// enabled.
func (c *Channel) Connect() error {
	c.mu.Lock()
	if c.state == StateConnected {
		c.mu.Unlock()
		c.logger.Infof("Already connected to bridge")
		return nil
	}
	if c.state == StateConnecting {
		c.mu.Unlock()
		c.logger.Infof("Connection attempt already in progress")
		return nil
	}
	// An explicit connect supersedes any pending retry.
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.state = StateConnecting
	host, port := c.cfg.Host, c.cfg.Port
	c.mu.Unlock()

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	c.logger.Infof("Connecting to bridge at %s", addr)

	conn, err := net.DialTimeout("tcp", addr, connectTimeout)
	if err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		auto := c.cfg.AutoReconnect
		c.mu.Unlock()

		c.logger.Errorf("Error connecting to bridge: %v", err)
		c.notifyStatus(false, fmt.Sprintf("connection failed: %v", err))
		if auto {
			c.scheduleReconnect()
		}
		return fmt.Errorf("connecting to bridge at %s: %w", addr, err)
	}

	c.mu.Lock()
	if c.state != StateConnecting {
		// Disconnect raced the dial; the link is no longer wanted.
		c.mu.Unlock()
		conn.Close()
		return nil
	}
	c.conn = conn
	c.state = StateConnected
	c.running = true
	c.attempts = 0
	c.lastHeartbeat = time.Now()
	stop := make(chan struct{})
	c.stop = stop
	c.mu.Unlock()

	c.wg.Add(3)
	go c.receiveLoop(conn, stop)
	go c.dispatchLoop(stop)
	go c.sendLoop(conn, stop)

	c.logger.Infof("Connected to bridge at %s", addr)
	c.notifyStatus(true, fmt.Sprintf("connected to %s", addr))
	return nil
}

// Disconnect stops the workers, closes the socket and clears both queues.
// It is a no-op when already disconnected.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	if !c.running && c.conn == nil {
		c.state = StateDisconnected
		c.mu.Unlock()
		return
	}
	c.running = false
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			c.logger.Errorf("Error closing socket: %v", err)
		}
	}
	c.wg.Wait()

	c.inbound.Drain()
	c.outbound.Drain()

	c.logger.Infof("Disconnected from bridge")
	c.notifyStatus(false, "disconnected")
}

// Send serializes command to its wire form and enqueues it for asynchronous
// delivery. It reports false when the channel is not connected or the
// command cannot be encoded.
func (c *Channel) Send(command interface{}) bool {
	if !c.Connected() {
		c.logger.Warnf("Cannot send command: not connected")
		return false
	}

	data, err := json.Marshal(command)
	if err != nil {
		c.logger.Errorf("Error encoding command: %v", err)
		return false
	}
	c.outbound.Push(append(data, '\n'))
	return true
}

// Connected reports whether the link is currently established.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateConnected
}

// State returns the current link state.
func (c *Channel) State() LinkState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts returns the current reconnect attempt counter.
func (c *Channel) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// LastHeartbeat returns the time of the most recently received message.
func (c *Channel) LastHeartbeat() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastHeartbeat
}

// receiveLoop reads framed bytes from the socket and pushes complete lines
// onto the inbound queue. Read deadlines double as the heartbeat liveness
// check cadence.
func (c *Channel) receiveLoop(conn net.Conn, stop chan struct{}) {
	defer c.wg.Done()

	buf := make([]byte, readBufferSize)
	var pending []byte

	for {
		select {
		case <-stop:
			c.logger.Debugf("Receive worker stopped")
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		n, err := conn.Read(buf)
		if n > 0 {
			// Any inbound traffic counts as proof of liveness.
			c.touchHeartbeat()

			pending = append(pending, buf[:n]...)
			for {
				idx := bytes.IndexByte(pending, '\n')
				if idx < 0 {
					break
				}
				line := pending[:idx]
				pending = pending[idx+1:]
				if len(line) > 0 {
					framed := make([]byte, len(line))
					copy(framed, line)
					c.inbound.Push(framed)
				}
			}
		}
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				c.checkHeartbeat()
				continue
			}
			if c.isRunning() {
				if errors.Is(err, io.EOF) {
					c.logger.Warnf("Connection closed by bridge")
					c.handleConnectionLoss("closed by bridge")
				} else {
					c.logger.Errorf("Error receiving data: %v", err)
					c.handleConnectionLoss(fmt.Sprintf("read failed: %v", err))
				}
			}
			c.logger.Debugf("Receive worker stopped")
			return
		}
	}
}

// dispatchLoop drains the inbound queue, parses each line as JSON and fans
// the message out to registered handlers. Unparseable lines are logged and
// dropped; the channel stays connected.
func (c *Channel) dispatchLoop(stop chan struct{}) {
	defer c.wg.Done()

	for {
		select {
		case <-stop:
			c.logger.Debugf("Dispatch worker stopped")
			return
		default:
		}

		line, ok := c.inbound.Pop(queueTimeout)
		if !ok {
			continue
		}

		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			c.logger.Warnf("Discarding unparseable line (%d bytes): %v", len(line), err)
			continue
		}

		switch msg.Type {
		case MsgTypeHeartbeat:
			c.touchHeartbeat()
		case MsgTypeError:
			c.logger.Warnf("Error reported by bridge: %s", msg.Message)
		}

		c.dispatcher.Dispatch(msg)
	}
}

// sendLoop drains the outbound queue and writes framed bytes to the socket.
// A write failure is treated as a connection loss.
func (c *Channel) sendLoop(conn net.Conn, stop chan struct{}) {
	defer c.wg.Done()

	for {
		select {
		case <-stop:
			c.logger.Debugf("Send worker stopped")
			return
		default:
		}

		data, ok := c.outbound.Pop(queueTimeout)
		if !ok {
			continue
		}

		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if _, err := conn.Write(data); err != nil {
			if c.isRunning() {
				c.logger.Errorf("Error sending data: %v", err)
				c.handleConnectionLoss(fmt.Sprintf("write failed: %v", err))
			}
			c.logger.Debugf("Send worker stopped")
			return
		}
		c.logger.Debugf("Sent %d bytes", len(data))
	}
}

func (c *Channel) isRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Channel) touchHeartbeat() {
	c.mu.Lock()
	c.lastHeartbeat = time.Now()
	c.mu.Unlock()
}

// checkHeartbeat treats the link as lost when nothing has been received for
// longer than the configured heartbeat timeout, even though the socket
// itself has not errored.
func (c *Channel) checkHeartbeat() {
	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	elapsed := time.Since(c.lastHeartbeat)
	timeout := c.cfg.HeartbeatTimeoutDuration()
	c.mu.Unlock()

	if elapsed > timeout {
		c.logger.Warnf("No heartbeat received in %.1fs", elapsed.Seconds())
		c.handleConnectionLoss(fmt.Sprintf("heartbeat timeout after %.1fs", elapsed.Seconds()))
	}
}

// handleConnectionLoss transitions to disconnected after an unexpected
// socket closure, I/O error or heartbeat timeout, then invokes the
// reconnection policy. Safe to call from any worker; only the first caller
// acts.
func (c *Channel) handleConnectionLoss(reason string) {
	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	c.state = StateDisconnected
	c.running = false
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	conn := c.conn
	c.conn = nil
	auto := c.cfg.AutoReconnect
	c.mu.Unlock()

	c.logger.Warnf("Connection lost: %s", reason)
	if conn != nil {
		conn.Close()
	}

	c.notifyStatus(false, "connection lost: "+reason)
	if auto {
		c.scheduleReconnect()
	}
}

// scheduleReconnect arms a retry after min(reconnectInterval*attempts, 30s),
// up to the configured maximum attempt count.
func (c *Channel) scheduleReconnect() {
	c.mu.Lock()
	if !c.cfg.AutoReconnect || c.state == StateReconnectScheduled {
		c.mu.Unlock()
		return
	}
	if c.attempts >= c.cfg.MaxReconnectAttempts {
		max := c.cfg.MaxReconnectAttempts
		c.mu.Unlock()
		c.logger.Warnf("Maximum reconnect attempts reached (%d)", max)
		c.notifyStatus(false, "connection failed: maximum reconnect attempts reached")
		return
	}

	c.attempts++
	attempt := c.attempts
	wait := time.Duration(float64(c.cfg.ReconnectIntervalDuration()) * float64(attempt))
	if wait > maxReconnectDelay {
		wait = maxReconnectDelay
	}

	c.state = StateReconnectScheduled
	c.reconnectTimer = time.AfterFunc(wait, func() {
		c.mu.Lock()
		c.reconnectTimer = nil
		if c.state != StateReconnectScheduled {
			c.mu.Unlock()
			return
		}
		c.state = StateDisconnected
		c.mu.Unlock()

		c.logger.Infof("Attempting reconnect...")
		c.Connect()
	})
	c.mu.Unlock()

	c.logger.Infof("Reconnect scheduled in %s (attempt %d)", wait, attempt)
	c.notifyStatus(false, fmt.Sprintf("reconnecting in %s (attempt %d)", wait, attempt))
}

func (c *Channel) notifyStatus(connected bool, reason string) {
	c.mu.Lock()
	subs := make([]StatusFunc, len(c.statusSubs))
	copy(subs, c.statusSubs)
	c.mu.Unlock()

	for _, f := range subs {
		f(connected, reason)
	}
}
