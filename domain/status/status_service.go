package status

import (
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofiber/fiber/v2"

	"github.com/pyroscout/controller/pkg/bridge"
	"github.com/pyroscout/controller/pkg/nav"
	"github.com/pyroscout/controller/pkg/spatial"
)

// LinkInfo describes the transport link for reporting.
type LinkInfo interface {
	State() bridge.LinkState
	Attempts() int
	LastHeartbeat() time.Time
}

// CameraInfo describes the camera stream for reporting.
type CameraInfo interface {
	Streaming() bool
	Stats() (frames uint64, fps float64)
}

// Snapshot is the aggregate controller status served to clients.
type Snapshot struct {
	RobotID       string  `json:"robot_id"`
	SessionID     string  `json:"session_id,omitempty"`
	Uptime        string  `json:"uptime"`
	UptimeSeconds float64 `json:"uptime_seconds"`

	Link struct {
		State             string `json:"state"`
		ReconnectAttempts int    `json:"reconnect_attempts"`
		LastHeartbeat     string `json:"last_heartbeat,omitempty"`
	} `json:"link"`

	Navigation nav.State `json:"navigation"`

	Lidar struct {
		ScanActive bool   `json:"scan_active"`
		ScanID     uint64 `json:"scan_id,omitempty"`
		PointCount int    `json:"point_count"`
	} `json:"lidar"`

	Camera struct {
		Streaming  bool    `json:"streaming"`
		FrameCount uint64  `json:"frame_count"`
		FPS        float64 `json:"fps"`
	} `json:"camera"`
}

// StatusService aggregates the state of every subsystem into one snapshot.
type StatusService struct {
	robotID   string
	link      LinkInfo
	nav       *nav.Controller
	lidar     *spatial.Service
	camera    CameraInfo
	startedAt time.Time

	mu        sync.RWMutex
	sessionID string
}

// NewStatusService creates the status aggregator.
func NewStatusService(robotID string, link LinkInfo, navCtl *nav.Controller, lidar *spatial.Service, camera CameraInfo) *StatusService {
	return &StatusService{
		robotID:   robotID,
		link:      link,
		nav:       navCtl,
		lidar:     lidar,
		camera:    camera,
		startedAt: time.Now(),
	}
}

// SetSessionID records the active recording session for reporting.
func (s *StatusService) SetSessionID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionID = id
}

// Snapshot builds the current aggregate status.
func (s *StatusService) Snapshot() Snapshot {
	s.mu.RLock()
	sessionID := s.sessionID
	s.mu.RUnlock()

	var snap Snapshot
	snap.RobotID = s.robotID
	snap.SessionID = sessionID
	snap.Uptime = humanize.Time(s.startedAt)
	snap.UptimeSeconds = time.Since(s.startedAt).Seconds()

	snap.Link.State = s.link.State().String()
	snap.Link.ReconnectAttempts = s.link.Attempts()
	if hb := s.link.LastHeartbeat(); !hb.IsZero() {
		snap.Link.LastHeartbeat = humanize.Time(hb)
	}

	snap.Navigation = s.nav.Snapshot()

	snap.Lidar.ScanActive = s.lidar.ScanActive()
	if frame := s.lidar.Model().Current(); frame != nil {
		snap.Lidar.ScanID = frame.ScanID
		snap.Lidar.PointCount = len(frame.Points)
	}

	snap.Camera.Streaming = s.camera.Streaming()
	snap.Camera.FrameCount, snap.Camera.FPS = s.camera.Stats()

	return snap
}

// GetStatusHandler serves the aggregate status snapshot.
func (s *StatusService) GetStatusHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":     "success",
		"controller": s.Snapshot(),
	})
}
