package camera

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/pyroscout/controller/pkg/bridge"
	"github.com/pyroscout/controller/pkg/config"
	customlog "github.com/pyroscout/controller/pkg/log"
)

// CommandSender issues commands to the bridge device.
type CommandSender interface {
	Send(command interface{}) bool
	Connected() bool
}

// Frame is the most recent video frame received from the robot.
type Frame struct {
	Data       string    `json:"data"` // base64-encoded JPEG
	ReceivedAt time.Time `json:"received_at"`
}

// CameraService manages the robot camera stream: starting and stopping it
// and caching the latest frame for API consumers.
type CameraService struct {
	cfg    config.CameraConfig
	sender CommandSender
	logger customlog.Logger

	mu         sync.RWMutex
	streaming  bool
	frame      *Frame
	frameCount uint64
	windowAt   time.Time
	windowN    int
	fps        float64
	frameSubs  []func(Frame)
}

// NewCameraService creates the camera service.
func NewCameraService(cfg config.CameraConfig, sender CommandSender, logger customlog.Logger) *CameraService {
	return &CameraService{
		cfg:    cfg,
		sender: sender,
		logger: logger,
	}
}

// OnFrame registers a subscriber invoked for every received frame.
func (s *CameraService) OnFrame(f func(Frame)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frameSubs = append(s.frameSubs, f)
}

// StartStream asks the robot to begin streaming with the configured
// frame rate and resolution.
func (s *CameraService) StartStream() bool {
	if !s.sender.Connected() {
		s.logger.Errorf("Cannot start camera stream: not connected")
		return false
	}
	ok := s.sender.Send(bridge.NewCameraStartCommand(s.cfg.FPS, s.cfg.Resolution[0], s.cfg.Resolution[1]))
	if ok {
		s.mu.Lock()
		s.streaming = true
		s.mu.Unlock()
		s.logger.Infof("Camera stream started (%d fps, %dx%d)", s.cfg.FPS, s.cfg.Resolution[0], s.cfg.Resolution[1])
	}
	return ok
}

// StopStream asks the robot to stop streaming.
func (s *CameraService) StopStream() bool {
	ok := s.sender.Send(bridge.NewCameraStopCommand())
	s.mu.Lock()
	s.streaming = false
	s.mu.Unlock()
	if ok {
		s.logger.Infof("Camera stream stopped")
	}
	return ok
}

// Streaming reports whether a stream has been requested.
func (s *CameraService) Streaming() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.streaming
}

// HandleMessage consumes camera frame messages from the bridge.
func (s *CameraService) HandleMessage(msg bridge.Message) {
	if msg.Type != bridge.MsgTypeCameraFrame {
		return
	}
	payload, err := msg.FramePayload()
	if err != nil {
		s.logger.Warnf("Malformed camera frame: %v", err)
		return
	}

	frame := Frame{Data: payload, ReceivedAt: time.Now()}

	s.mu.Lock()
	s.frame = &frame
	s.frameCount++
	s.windowN++
	if s.windowAt.IsZero() {
		s.windowAt = frame.ReceivedAt
	} else if elapsed := frame.ReceivedAt.Sub(s.windowAt); elapsed >= time.Second {
		s.fps = float64(s.windowN) / elapsed.Seconds()
		s.windowN = 0
		s.windowAt = frame.ReceivedAt
	}
	subs := make([]func(Frame), len(s.frameSubs))
	copy(subs, s.frameSubs)
	s.mu.Unlock()

	for _, f := range subs {
		f(frame)
	}
}

// LatestFrame returns the most recent frame, or nil when none arrived yet.
func (s *CameraService) LatestFrame() *Frame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.frame == nil {
		return nil
	}
	f := *s.frame
	return &f
}

// Stats returns frame counters for status reporting.
func (s *CameraService) Stats() (frames uint64, fps float64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frameCount, s.fps
}

// GetFrameHandler serves the latest cached frame.
func (s *CameraService) GetFrameHandler(c *fiber.Ctx) error {
	frame := s.LatestFrame()
	if frame == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"status":  "error",
			"message": "no camera frame available",
		})
	}
	return c.JSON(fiber.Map{
		"status": "success",
		"frame":  frame,
	})
}

// StreamControlHandler starts or stops the stream based on the action
// parameter.
func (s *CameraService) StreamControlHandler(c *fiber.Ctx) error {
	var req struct {
		Action string `json:"action"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": "invalid request body",
		})
	}

	var ok bool
	switch req.Action {
	case "start":
		ok = s.StartStream()
	case "stop":
		ok = s.StopStream()
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": "action must be start or stop",
		})
	}

	if !ok {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status":  "error",
			"message": "failed to send camera command",
		})
	}
	return c.JSON(fiber.Map{"status": "success"})
}
