package spatial

import (
	"sync"
	"time"

	"github.com/pyroscout/controller/pkg/bridge"
	"github.com/pyroscout/controller/pkg/config"
	customlog "github.com/pyroscout/controller/pkg/log"
)

const (
	// obstacleCheckPeriod is how often the front cone is inspected for
	// proximity alerts.
	obstacleCheckPeriod = time.Second

	// scanStaleAfter marks scanning inactive when no scan arrived for this
	// long.
	scanStaleAfter = 5 * time.Second

	// frontCone is the half-width of the forward cone monitored for
	// proximity alerts.
	frontCone = 0.5
)

// CommandSender issues commands to the bridge device.
type CommandSender interface {
	Send(command interface{}) bool
	Connected() bool
}

// Alert is a proximity warning from the front cone monitor.
type Alert struct {
	Angle    float64 `json:"angle"`
	Distance float64 `json:"distance"` // mm
}

// Service owns the spatial model and its lifecycle: it consumes lidar_data
// messages from the transport, controls scanning on the bridge, and runs a
// periodic monitor that raises proximity alerts for the forward cone.
// Alerts are delivered over a buffered channel so consumers on other
// goroutines never receive a direct call from the dispatch path.
type Service struct {
	cfg           config.LidarConfig
	alertDistance float64
	model         *Model
	sender        CommandSender
	logger        customlog.Logger

	mu         sync.Mutex
	enabled    bool
	scanning   bool
	lastScanAt time.Time
	scanSubs   []func(*Frame)

	alerts chan Alert
	stop   chan struct{}
	wg     sync.WaitGroup
}

// NewService creates the lidar service. alertDistance is the proximity (mm)
// below which a front obstacle raises an alert.
func NewService(cfg config.LidarConfig, alertDistance float64, sender CommandSender, logger customlog.Logger) *Service {
	return &Service{
		cfg:           cfg,
		alertDistance: alertDistance,
		model:         NewModel(cfg, logger),
		sender:        sender,
		logger:        logger,
		enabled:       cfg.Enabled,
		alerts:        make(chan Alert, 16),
	}
}

// Model returns the underlying spatial model.
func (s *Service) Model() *Model {
	return s.model
}

// HasScan reports whether at least one scan has been accepted.
func (s *Service) HasScan() bool {
	return s.model.Current() != nil
}

// BestDirection delegates to the spatial model.
func (s *Service) BestDirection(current float64, resolution int) float64 {
	return s.model.BestDirection(current, resolution)
}

// Alerts returns the proximity alert channel. Alerts are dropped when the
// consumer lags behind.
func (s *Service) Alerts() <-chan Alert {
	return s.alerts
}

// OnScan registers a callback invoked after each accepted scan. Callbacks
// run on the transport dispatch worker and must return quickly.
func (s *Service) OnScan(f func(*Frame)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scanSubs = append(s.scanSubs, f)
}

// Start launches the obstacle monitor.
func (s *Service) Start() {
	s.mu.Lock()
	if s.stop != nil {
		s.mu.Unlock()
		return
	}
	s.stop = make(chan struct{})
	stop := s.stop
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(obstacleCheckPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.checkObstacles()
			}
		}
	}()
	s.logger.Infof("Lidar service started")
}

// Stop halts the obstacle monitor.
func (s *Service) Stop() {
	s.mu.Lock()
	if s.stop == nil {
		s.mu.Unlock()
		return
	}
	close(s.stop)
	s.stop = nil
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Infof("Lidar service stopped")
}

// HandleMessage consumes lidar_data messages from the transport dispatcher.
func (s *Service) HandleMessage(msg bridge.Message) {
	if !s.Enabled() {
		return
	}
	points, err := msg.ScanPoints()
	if err != nil {
		s.logger.Warnf("Ignoring malformed scan message: %v", err)
		return
	}

	if !s.model.Update(points) {
		return
	}

	s.mu.Lock()
	s.scanning = true
	s.lastScanAt = time.Now()
	subs := make([]func(*Frame), len(s.scanSubs))
	copy(subs, s.scanSubs)
	s.mu.Unlock()

	frame := s.model.Current()
	for _, f := range subs {
		f(frame)
	}
}

// StartScan asks the bridge to start the lidar sweep.
func (s *Service) StartScan() bool {
	if !s.Enabled() {
		s.logger.Warnf("Lidar disabled, cannot start scan")
		return false
	}
	s.logger.Infof("Starting lidar scan")
	return s.sender.Send(bridge.NewLidarCommand("start_scan"))
}

// StopScan asks the bridge to stop the lidar sweep.
func (s *Service) StopScan() bool {
	s.mu.Lock()
	s.scanning = false
	s.mu.Unlock()

	s.logger.Infof("Stopping lidar scan")
	return s.sender.Send(bridge.NewLidarCommand("stop_scan"))
}

// Enabled reports whether lidar processing is active.
func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// SetEnabled toggles lidar processing.
func (s *Service) SetEnabled(enabled bool) {
	s.mu.Lock()
	s.enabled = enabled
	s.mu.Unlock()
	s.logger.Infof("Lidar enabled=%v", enabled)
}

// ScanActive reports whether scans are currently flowing; it turns false
// when the last accepted scan is stale.
func (s *Service) ScanActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scanning && time.Since(s.lastScanAt) > scanStaleAfter {
		s.scanning = false
	}
	return s.scanning
}

// checkObstacles raises an alert when the nearest reading in the forward
// cone is closer than the alert distance.
func (s *Service) checkObstacles() {
	if !s.Enabled() || !s.ScanActive() {
		return
	}

	obs, ok := s.model.NearestObstacleWithin(-frontCone, frontCone)
	if !ok || obs.Distance >= s.alertDistance {
		return
	}

	s.logger.Debugf("Obstacle detected: angle=%.2f rad, distance=%.0f mm", obs.Angle, obs.Distance)
	select {
	case s.alerts <- Alert{Angle: obs.Angle, Distance: obs.Distance}:
	default:
		// Consumer lagging; dropping is safer than blocking the monitor.
	}
}
